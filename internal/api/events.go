package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/credential"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
)

// origin describes where an access request came from.
type origin struct {
	transport string // "http" or "mqtt"
	door      string // set for MQTT requests
	requestID string
}

func (o origin) details() map[string]any {
	d := map[string]any{"source": o.transport}
	if o.door != "" {
		d["door"] = o.door
	}
	if o.requestID != "" {
		d["request_id"] = o.requestID
	}
	return d
}

// recordDecision fans a verify outcome out to the log, metrics, audit
// trail, WebSocket clients, MQTT and InfluxDB. err is the error returned
// by decoding or Decide, if any.
func (s *Server) recordDecision(o origin, req access.VerifyRequest, d access.Decision, err error, took time.Duration) {
	code := access.CodeOf(err)
	serial := displayID(req.Serial)
	resources := displayIDs(req.Resources)
	now := time.Now().UTC()

	s.metrics.observeDecision(d.Granted, string(code), took)

	event := &audit.Event{
		ID:           audit.NewEventID(),
		Kind:         audit.KindDecision,
		Serial:       serial,
		CredentialID: d.CredentialID,
		Subject:      strings.Join(resources, ","),
		Code:         string(code),
		Reason:       d.Reason,
		Details:      o.details(),
		CreatedAt:    now,
	}
	switch {
	case code == access.CodeStorage:
		event.Outcome = audit.OutcomeError
		event.Reason = err.Error()
		s.logger.Error("access decision failed", "serial", serial, "source", o.transport, "error", err)
	case err != nil:
		event.Outcome = audit.OutcomeRejected
		event.Reason = err.Error()
		s.logger.Info("access decision rejected", "serial", serial, "source", o.transport, "error", err)
	case d.Granted:
		event.Outcome = audit.OutcomeGranted
		event.Details["matched"] = idStrings(d.Matched)
		s.logger.Info("access granted", "serial", serial, "credential_id", d.CredentialID, "matched", idStrings(d.Matched), "source", o.transport)
	default:
		event.Outcome = audit.OutcomeDenied
		s.logger.Info("access denied", "serial", serial, "reason", d.Reason, "source", o.transport)
	}

	s.auditLog(event)

	if err != nil {
		return
	}

	s.hub.Broadcast(ChannelAccessDecision, event)

	if s.accessCfg.PublishDecisions && s.mqttConnected() {
		if pubErr := s.mqtt.PublishJSON(mqtt.Topics{}.AccessEvent(mqtt.EventDecision), event); pubErr != nil {
			s.logger.Warn("failed to publish access decision", "error", pubErr)
		}
	}

	if s.influx != nil {
		s.influx.WriteAccessDecision(influxdb.DecisionSample{
			Serial:       serial,
			CredentialID: d.CredentialID,
			Resources:    resources,
			Matched:      idStrings(d.Matched),
			Granted:      d.Granted,
			Code:         string(code),
			Latency:      took,
			At:           now,
		})
	}
}

// recordCustody fans an issue or return attempt out like recordDecision.
// Only successful transitions are broadcast and published.
func (s *Server) recordCustody(o origin, action custodyAction, req access.KeyRequest, receipt *access.Receipt, err error, took time.Duration) {
	code := access.CodeOf(err)
	serial := displayID(req.Serial)
	key := displayID(req.Key)
	now := time.Now().UTC()

	s.metrics.observeCustody(string(action), string(code), took)

	kind := audit.KindIssue
	if action == actionReturn {
		kind = audit.KindReturn
	}
	event := &audit.Event{
		ID:        audit.NewEventID(),
		Kind:      kind,
		Serial:    serial,
		Subject:   key,
		Code:      string(code),
		Details:   o.details(),
		CreatedAt: now,
	}

	held := 0
	switch {
	case err == nil:
		event.Outcome = audit.OutcomeIssued
		if action == actionReturn {
			event.Outcome = audit.OutcomeReturned
		}
		event.CredentialID = receipt.CredentialID
		event.Details["custody"] = receipt.Custody.Strings()
		held = receipt.Custody.Len()
		s.logger.Info("key "+action.pastParticiple(), "serial", serial, "credential_id", receipt.CredentialID, "key", key, "source", o.transport)
	case code == access.CodeStorage:
		event.Outcome = audit.OutcomeError
		event.Reason = err.Error()
		s.logger.Error("key "+string(action)+" failed", "serial", serial, "key", key, "error", err)
	default:
		event.Outcome = audit.OutcomeRejected
		event.Reason = err.Error()
		s.logger.Info("key "+string(action)+" rejected", "serial", serial, "key", key, "code", code)
	}

	s.auditLog(event)

	if s.influx != nil {
		s.influx.WriteCustodyEvent(influxdb.CustodySample{
			Action:       string(action),
			Serial:       serial,
			CredentialID: event.CredentialID,
			Key:          key,
			Outcome:      string(event.Outcome),
			Code:         string(code),
			Held:         held,
			At:           now,
		})
	}

	if err != nil {
		return
	}

	channel, topicEvent := ChannelKeyIssued, mqtt.EventKeyIssued
	if action == actionReturn {
		channel, topicEvent = ChannelKeyReturned, mqtt.EventKeyReturned
	}
	s.hub.Broadcast(channel, event)

	if s.mqttConnected() {
		if pubErr := s.mqtt.PublishJSON(mqtt.Topics{}.AccessEvent(topicEvent), event); pubErr != nil {
			s.logger.Warn("failed to publish custody change", "event", topicEvent, "error", pubErr)
		}
	}
}

// auditLog enqueues an event for asynchronous write (best-effort).
// If the channel is full the entry is dropped and a warning is logged.
func (s *Server) auditLog(event *audit.Event) {
	if s.auditCh == nil {
		return
	}

	select {
	case s.auditCh <- event:
	default:
		s.metrics.observeAuditDrop()
		s.logger.Warn("audit channel full, dropping entry",
			"kind", event.Kind,
			"serial", event.Serial,
		)
	}
}

// drainAuditLog writes queued events serially until ctx is cancelled, then
// flushes whatever is still buffered.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case event := <-s.auditCh:
			s.writeAuditEvent(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-s.auditCh:
					s.writeAuditEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAuditEvent(event *audit.Event) {
	if err := s.auditRepo.Create(context.Background(), event); err != nil {
		s.logger.Error("audit write failed",
			"kind", event.Kind,
			"serial", event.Serial,
			"error", err,
		)
	}
}

// handleListAccessEvents returns paginated access events with optional filters.
//
// Query parameters:
//   - kind: decision, issue, return
//   - serial: exact serial
//   - outcome: granted, denied, issued, returned, rejected, error
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAccessEvents(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "access event history not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Kind:    audit.Kind(q.Get("kind")),
		Serial:  q.Get("serial"),
		Outcome: audit.Outcome(q.Get("outcome")),
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list access events", "error", err)
		writeInternalError(w, "failed to list access events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// displayID renders a raw request identifier for logs and history. Values
// ParseID rejects are still shown so rejected requests stay traceable.
func displayID(v any) string {
	if v == nil {
		return ""
	}
	if id, err := credential.ParseID(v); err == nil {
		return string(id)
	}
	return fmt.Sprint(v)
}

func displayIDs(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, displayID(v))
	}
	return out
}

func idStrings(ids []credential.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
