package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/credential"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultAuditBuffer is used when the access section leaves audit_buffer unset.
const defaultAuditBuffer = 256

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Access config.AccessConfig
	Logger *logging.Logger

	// Store is required. Engine and Ledger are built on it when nil.
	Store  credential.Store
	Engine *access.Engine
	Ledger *access.Ledger

	// Optional collaborators.
	AuditRepo audit.Repository
	MQTT      *mqtt.Client
	Influx    *influxdb.Client
	DB        *database.DB

	Version string
}

// Server is the HTTP API server for the access service.
//
// It manages the HTTP listener, routes, middleware, WebSocket hub and the
// asynchronous audit writer. The server is created with New() and started
// with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	accessCfg config.AccessConfig
	logger    *logging.Logger

	store  credential.Store
	engine *access.Engine
	ledger *access.Ledger

	auditRepo   audit.Repository
	auditCh     chan *audit.Event
	auditDone   chan struct{}
	auditCancel context.CancelFunc

	mqtt    *mqtt.Client
	influx  *influxdb.Client
	db      *database.DB
	metrics *Metrics

	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		accessCfg: deps.Access,
		logger:    deps.Logger,
		store:     deps.Store,
		engine:    deps.Engine,
		ledger:    deps.Ledger,
		auditRepo: deps.AuditRepo,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.engine == nil {
		s.engine = access.NewEngine(deps.Store)
	}
	if s.ledger == nil {
		s.ledger = access.NewLedger(deps.Store)
	}

	if s.auditRepo != nil {
		size := deps.Access.AuditBuffer
		if size <= 0 {
			size = defaultAuditBuffer
		}
		s.auditCh = make(chan *audit.Event, size)
	}

	s.hub = NewHub(deps.WS, deps.Logger)
	s.metrics = newMetrics(s.hub)

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and audit writer, subscribes to MQTT verify
// requests, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	// The audit writer outlives ctx so entries from requests still in
	// flight at shutdown are persisted. Close stops it after Shutdown.
	if s.auditCh != nil {
		var auditCtx context.Context
		auditCtx, s.auditCancel = context.WithCancel(context.Background())
		s.auditDone = make(chan struct{})
		go func() {
			defer close(s.auditDone)
			s.drainAuditLog(auditCtx)
		}()
	}

	if err := s.subscribeVerifyRequests(); err != nil {
		s.logger.Warn("failed to subscribe to MQTT verify requests", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then stops
// the hub and flushes queued audit entries.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("API server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)

	s.unsubscribeVerifyRequests()

	if s.cancel != nil {
		s.cancel()
	}
	if s.auditCancel != nil {
		s.auditCancel()
		<-s.auditDone
	}

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and its database answers.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api health check: %w", err)
		}
	}
	return nil
}

// mqttConnected reports whether events can be published to the broker.
func (s *Server) mqttConnected() bool {
	return s.mqtt != nil && s.mqtt.IsConnected()
}
