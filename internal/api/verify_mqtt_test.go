package api

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
)

func TestVerifyFromBus(t *testing.T) {
	srv, _ := testServer(t, newCredential("Alice", "ABC123", "room1", "room5"))

	tests := []struct {
		name        string
		payload     string
		wantGranted bool
		wantCode    access.Code
		wantOutcome audit.Outcome
	}{
		{
			name:        "granted",
			payload:     `{"serial":"ABC123","resources":["room5"],"request_id":"r-1"}`,
			wantGranted: true,
			wantCode:    access.CodeOK,
			wantOutcome: audit.OutcomeGranted,
		},
		{
			name:        "denied unknown serial",
			payload:     `{"serial":"ZZZ","resources":["room5"],"request_id":"r-1"}`,
			wantCode:    access.CodeOK,
			wantOutcome: audit.OutcomeDenied,
		},
		{
			name:        "malformed payload",
			payload:     `{"serial":`,
			wantCode:    access.CodeInvalidRequest,
			wantOutcome: audit.OutcomeRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.verifyFromBus("door-lobby", []byte(tt.payload))
			if resp.Granted != tt.wantGranted {
				t.Errorf("granted = %v, want %v", resp.Granted, tt.wantGranted)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}

			ev := nextAuditEvent(t, srv)
			if ev.Outcome != tt.wantOutcome {
				t.Errorf("audit outcome = %q, want %q", ev.Outcome, tt.wantOutcome)
			}
			if ev.Details["source"] != "mqtt" || ev.Details["door"] != "door-lobby" {
				t.Errorf("audit details = %v", ev.Details)
			}
		})
	}
}

func TestVerifyFromBus_EchoesRequestID(t *testing.T) {
	srv, _ := testServer(t, newCredential("Alice", "ABC123", "room1"))

	resp := srv.verifyFromBus("door-lobby", []byte(`{"serial":"ABC123","resources":"room1","request_id":"req-42"}`))
	if resp.RequestID != "req-42" {
		t.Errorf("request_id = %q, want req-42", resp.RequestID)
	}
	if resp.Status != statusGranted {
		t.Errorf("status = %q, want %q", resp.Status, statusGranted)
	}

	ev := nextAuditEvent(t, srv)
	if ev.Details["request_id"] != "req-42" {
		t.Errorf("audit request_id = %v", ev.Details["request_id"])
	}
}

func TestHandleVerifyMessage_BadTopic(t *testing.T) {
	srv, _ := testServer(t)

	err := srv.handleVerifyMessage("graylogic/access/event/decision", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error for non-request topic")
	}
	if len(srv.auditCh) != 0 {
		t.Error("bad topic should not produce a decision")
	}
}

func TestHandleVerifyMessage_NoBroker(t *testing.T) {
	srv, _ := testServer(t, newCredential("Alice", "ABC123", "room1"))

	topic := mqtt.Topics{}.VerifyRequest("door-lobby")
	err := srv.handleVerifyMessage(topic, []byte(`{"serial":"ABC123","resources":["room1"]}`))
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}

	// The decision is still recorded even though the answer could not be sent.
	if ev := nextAuditEvent(t, srv); ev.Outcome != audit.OutcomeGranted {
		t.Errorf("audit outcome = %q, want granted", ev.Outcome)
	}
}

func TestSubscribeVerifyRequests_NoClient(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.subscribeVerifyRequests(); err != nil {
		t.Errorf("subscribeVerifyRequests() without MQTT = %v, want nil", err)
	}
	srv.unsubscribeVerifyRequests()
}
