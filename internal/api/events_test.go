package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/credential"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-access/migrations"
)

func TestRecordDecision_QueuesAuditAndBroadcasts(t *testing.T) {
	srv, _ := testServer(t, newCredential("Alice", "ABC123", "room1", "room5"))
	client := subscribedClient(srv, ChannelAccessDecision)

	req := httpRequestWithID(http.MethodPost, "/api/v1/verify", `{"serial":"ABC123","resources":["room5"]}`, "req-7")
	w := serveRequest(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	ev := nextAuditEvent(t, srv)
	if ev.Kind != audit.KindDecision || ev.Outcome != audit.OutcomeGranted {
		t.Errorf("event = %s/%s, want decision/granted", ev.Kind, ev.Outcome)
	}
	if ev.Serial != "ABC123" || ev.Subject != "room5" || ev.CredentialID == "" {
		t.Errorf("event fields = %+v", ev)
	}
	if ev.Details["request_id"] != "req-7" || ev.Details["source"] != "http" {
		t.Errorf("details = %v", ev.Details)
	}

	msg := readClient(t, client)
	if msg.EventType != ChannelAccessDecision {
		t.Errorf("broadcast channel = %q", msg.EventType)
	}
}

func TestRecordDecision_RejectedRequestIsAuditedNotBroadcast(t *testing.T) {
	srv, _ := testServer(t)
	client := subscribedClient(srv, ChannelAccessDecision)

	doRequest(t, srv, http.MethodPost, "/api/v1/verify", `{"serial":"","resources":["room1"]}`)

	ev := nextAuditEvent(t, srv)
	if ev.Outcome != audit.OutcomeRejected || ev.Code != "invalid_request" {
		t.Errorf("event = %s/%s, want rejected/invalid_request", ev.Outcome, ev.Code)
	}
	if ev.Reason == "" {
		t.Error("rejected event should carry the reason")
	}

	select {
	case <-client.send:
		t.Error("rejected request should not be broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRecordCustody_Events(t *testing.T) {
	srv, _ := testServer(t, newCredential("Bob", "X1", "k1"))
	issued := subscribedClient(srv, ChannelKeyIssued)
	returned := subscribedClient(srv, ChannelKeyReturned)

	doRequest(t, srv, http.MethodPost, "/api/v1/issue_key", `{"serial":"X1","key":"k1"}`)
	ev := nextAuditEvent(t, srv)
	if ev.Kind != audit.KindIssue || ev.Outcome != audit.OutcomeIssued || ev.Subject != "k1" {
		t.Errorf("issue event = %+v", ev)
	}
	if msg := readClient(t, issued); msg.EventType != ChannelKeyIssued {
		t.Errorf("issued channel = %q", msg.EventType)
	}

	doRequest(t, srv, http.MethodPost, "/api/v1/issue_key", `{"serial":"X1","key":"k1"}`)
	ev = nextAuditEvent(t, srv)
	if ev.Outcome != audit.OutcomeRejected || ev.Code != "conflict" {
		t.Errorf("conflict event = %s/%s", ev.Outcome, ev.Code)
	}

	doRequest(t, srv, http.MethodPost, "/api/v1/return_key", `{"serial":"X1","key":"k1"}`)
	ev = nextAuditEvent(t, srv)
	if ev.Kind != audit.KindReturn || ev.Outcome != audit.OutcomeReturned {
		t.Errorf("return event = %s/%s", ev.Kind, ev.Outcome)
	}
	if msg := readClient(t, returned); msg.EventType != ChannelKeyReturned {
		t.Errorf("returned channel = %q", msg.EventType)
	}

	if got := srv.metrics.issued.Load(); got != 1 {
		t.Errorf("issued counter = %d, want 1", got)
	}
	if got := srv.metrics.rejected.Load(); got != 1 {
		t.Errorf("rejected counter = %d, want 1", got)
	}
}

func TestRecordCustody_StorageErrorOutcome(t *testing.T) {
	srv, store := testServer(t, newCredential("Bob", "X1", "k1"))
	store.FailSaves(errors.New("disk full"))

	doRequest(t, srv, http.MethodPost, "/api/v1/issue_key", `{"serial":"X1","key":"k1"}`)

	ev := nextAuditEvent(t, srv)
	if ev.Outcome != audit.OutcomeError || ev.Code != "storage_error" {
		t.Errorf("event = %s/%s, want error/storage_error", ev.Outcome, ev.Code)
	}
	if srv.metrics.failed.Load() != 1 {
		t.Errorf("failed counter = %d, want 1", srv.metrics.failed.Load())
	}
}

func TestAuditLog_DropsWhenFull(t *testing.T) {
	deps := testDeps(credential.NewMemoryStore())
	deps.AuditRepo = &memoryAuditRepo{}
	deps.Access.AuditBuffer = 1
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	srv.auditLog(&audit.Event{Kind: audit.KindDecision})
	srv.auditLog(&audit.Event{Kind: audit.KindDecision})

	if got := srv.metrics.dropped.Load(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestDrainAuditLog_FlushesOnCancel(t *testing.T) {
	repo := &memoryAuditRepo{}
	deps := testDeps(credential.NewMemoryStore())
	deps.AuditRepo = repo
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for range 5 {
		srv.auditLog(&audit.Event{Kind: audit.KindIssue, Serial: "X1"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv.drainAuditLog(ctx)

	if repo.count() != 5 {
		t.Errorf("written = %d, want 5", repo.count())
	}
}

func TestDrainAuditLog_WriteErrorsDoNotStop(t *testing.T) {
	repo := &memoryAuditRepo{err: errors.New("readonly database")}
	deps := testDeps(credential.NewMemoryStore())
	deps.AuditRepo = repo
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	srv.auditLog(&audit.Event{Kind: audit.KindDecision})
	srv.auditLog(&audit.Event{Kind: audit.KindDecision})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv.drainAuditLog(ctx)

	if len(srv.auditCh) != 0 {
		t.Errorf("%d events left in channel", len(srv.auditCh))
	}
}

// sqliteServer wires the production stores against a migrated temp database.
func sqliteServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "access.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	deps := testDeps(credential.NewSQLiteStore(db.DB))
	deps.AuditRepo = audit.NewSQLiteRepository(db.DB)
	deps.DB = db

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, db
}

func TestListAccessEvents_SQLite(t *testing.T) {
	srv, _ := sqliteServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/credentials", `{"name":"Bob","serial":"X1","access":["k1","room1"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}

	doRequest(t, srv, http.MethodPost, "/api/v1/verify", `{"serial":"X1","resources":["room1"]}`)
	doRequest(t, srv, http.MethodPost, "/api/v1/issue_key", `{"serial":"X1","key":"k1"}`)
	doRequest(t, srv, http.MethodPost, "/api/v1/issue_key", `{"serial":"X1","key":"k1"}`)

	// Drain synchronously.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv.drainAuditLog(ctx)

	tests := []struct {
		query     string
		wantTotal int
	}{
		{query: "", wantTotal: 3},
		{query: "?kind=issue", wantTotal: 2},
		{query: "?kind=issue&outcome=rejected", wantTotal: 1},
		{query: "?serial=X1&limit=1", wantTotal: 3},
		{query: "?serial=nobody", wantTotal: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodGet, "/api/v1/access-events"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
			}
			var result audit.ListResult
			decodeBody(t, w, &result)
			if result.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", result.Total, tt.wantTotal)
			}
		})
	}
}

func TestListAccessEvents_BadPagination(t *testing.T) {
	srv, _ := testServer(t)

	for _, q := range []string{"?limit=abc", "?offset=-1"} {
		w := doRequest(t, srv, http.MethodGet, "/api/v1/access-events"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestListAccessEvents_NotConfigured(t *testing.T) {
	srv, err := New(testDeps(credential.NewMemoryStore()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	w := doRequest(t, srv, http.MethodGet, "/api/v1/access-events", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHealth_SQLite(t *testing.T) {
	srv, db := sqliteServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	db.Close() //nolint:errcheck // Simulating a lost database

	w = doRequest(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status after close = %d, want 503", w.Code)
	}
}

func TestDisplayID(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: nil, want: ""},
		{in: "ABC123", want: "ABC123"},
		{in: json.Number("42"), want: "42"},
		{in: true, want: "true"},
		{in: 1.5, want: "1.5"},
	}

	for _, tt := range tests {
		if got := displayID(tt.in); got != tt.want {
			t.Errorf("displayID(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ─── helpers ───────────────────────────────────────────────────────

func subscribedClient(srv *Server, channels ...string) *WSClient {
	client := &WSClient{
		hub:           srv.hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		client.subscriptions[ch] = struct{}{}
	}
	srv.hub.Register(client)
	return client
}

func readClient(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return WSMessage{}
	}
}

func httpRequestWithID(method, path, body, requestID string) *http.Request {
	req := newJSONRequest(method, path, body)
	req.Header.Set("X-Request-ID", requestID)
	return req
}
