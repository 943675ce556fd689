package access

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-access/internal/credential"
)

func TestEngine_Decide(t *testing.T) {
	store := newTestStore(t,
		&credential.Credential{Serial: "ABC123", Access: ids("room1", "room5", "12")},
		&credential.Credential{Serial: "EMPTY"},
	)
	engine := NewEngine(store)

	tests := []struct {
		name        string
		req         VerifyRequest
		wantGranted bool
		wantMatched []credential.ID
		wantReason  string
	}{
		{
			name:        "single authorized room",
			req:         VerifyRequest{Serial: "ABC123", Resources: []any{"room5"}},
			wantGranted: true,
			wantMatched: []credential.ID{"room5"},
		},
		{
			name:        "single unauthorized room",
			req:         VerifyRequest{Serial: "ABC123", Resources: []any{"room9"}},
			wantGranted: false,
			wantReason:  reasonNoAccess,
		},
		{
			name:        "any of several rooms suffices",
			req:         VerifyRequest{Serial: "ABC123", Resources: []any{"room9", "room1"}},
			wantGranted: true,
			wantMatched: []credential.ID{"room1"},
		},
		{
			name:        "numeric resource matches string entitlement",
			req:         VerifyRequest{Serial: "ABC123", Resources: []any{12}},
			wantGranted: true,
			wantMatched: []credential.ID{"12"},
		},
		{
			name:        "json number resource",
			req:         VerifyRequest{Serial: "ABC123", Resources: []any{json.Number("12")}},
			wantGranted: true,
			wantMatched: []credential.ID{"12"},
		},
		{
			name:        "duplicate requests collapse",
			req:         VerifyRequest{Serial: "ABC123", Resources: []any{"room1", "room1"}},
			wantGranted: true,
			wantMatched: []credential.ID{"room1"},
		},
		{
			name:        "credential with no access",
			req:         VerifyRequest{Serial: "EMPTY", Resources: []any{"room1"}},
			wantGranted: false,
			wantReason:  reasonNoAccess,
		},
		{
			name:        "unknown serial",
			req:         VerifyRequest{Serial: "ZZZ", Resources: []any{"room1"}},
			wantGranted: false,
			wantReason:  reasonNotFound,
		},
		{
			name:        "serial match is case sensitive",
			req:         VerifyRequest{Serial: "abc123", Resources: []any{"room1"}},
			wantGranted: false,
			wantReason:  reasonNotFound,
		},
		{
			name:        "room ids are case sensitive",
			req:         VerifyRequest{Serial: "ABC123", Resources: []any{"ROOM1"}},
			wantGranted: false,
			wantReason:  reasonNoAccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := engine.Decide(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Decide() error = %v", err)
			}
			if d.Granted != tt.wantGranted {
				t.Errorf("Granted = %v, want %v (reason %q)", d.Granted, tt.wantGranted, d.Reason)
			}
			if tt.wantReason != "" && d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.wantReason)
			}
			if d.Reason == "" {
				t.Error("Reason should never be empty")
			}
			if len(d.Matched) != len(tt.wantMatched) {
				t.Fatalf("Matched = %v, want %v", d.Matched, tt.wantMatched)
			}
			for i := range d.Matched {
				if d.Matched[i] != tt.wantMatched[i] {
					t.Errorf("Matched[%d] = %q, want %q", i, d.Matched[i], tt.wantMatched[i])
				}
			}
		})
	}
}

func TestEngine_Decide_InvalidRequest(t *testing.T) {
	engine := NewEngine(newTestStore(t, &credential.Credential{Serial: "ABC123", Access: ids("room1")}))

	tests := []struct {
		name string
		req  VerifyRequest
	}{
		{"missing serial", VerifyRequest{Resources: []any{"room1"}}},
		{"blank serial", VerifyRequest{Serial: "   ", Resources: []any{"room1"}}},
		{"boolean serial", VerifyRequest{Serial: true, Resources: []any{"room1"}}},
		{"nil resources", VerifyRequest{Serial: "ABC123"}},
		{"empty resources", VerifyRequest{Serial: "ABC123", Resources: []any{}}},
		{"blank resource", VerifyRequest{Serial: "ABC123", Resources: []any{"room1", ""}}},
		{"object resource", VerifyRequest{Serial: "ABC123", Resources: []any{map[string]any{}}}},
		{"fractional resource", VerifyRequest{Serial: "ABC123", Resources: []any{1.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Decide(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Decide() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestEngine_Decide_InvalidRequestSkipsLookup(t *testing.T) {
	engine := NewEngine(brokenDirectory{err: errDiskFull})

	_, err := engine.Decide(context.Background(), VerifyRequest{Serial: "", Resources: []any{"room1"}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Decide() error = %v, validation must run before the lookup", err)
	}
}

func TestEngine_Decide_StorageError(t *testing.T) {
	engine := NewEngine(brokenDirectory{err: errDiskFull})

	_, err := engine.Decide(context.Background(), VerifyRequest{Serial: "ABC123", Resources: []any{"room1"}})
	if !errors.Is(err, ErrStorage) || !errors.Is(err, errDiskFull) {
		t.Errorf("Decide() error = %v, want ErrStorage wrapping the cause", err)
	}
}

func TestEngine_Decide_GrantMonotonicity(t *testing.T) {
	engine := NewEngine(newTestStore(t, &credential.Credential{Serial: "M", Access: ids("a", "c")}))
	ctx := context.Background()

	universe := []any{"a", "b", "c", "d"}
	// Every subset of the universe, as a bitmask.
	for mask := 1; mask < 1<<len(universe); mask++ {
		var subset []any
		for i, r := range universe {
			if mask&(1<<i) != 0 {
				subset = append(subset, r)
			}
		}
		small, err := engine.Decide(ctx, VerifyRequest{Serial: "M", Resources: subset})
		if err != nil {
			t.Fatalf("Decide(%v) error = %v", subset, err)
		}
		if !small.Granted {
			continue
		}
		for _, extra := range universe {
			bigger := append(append([]any{}, subset...), extra)
			d, err := engine.Decide(ctx, VerifyRequest{Serial: "M", Resources: bigger})
			if err != nil {
				t.Fatalf("Decide(%v) error = %v", bigger, err)
			}
			if !d.Granted {
				t.Errorf("Decide(%v) denied although subset %v was granted", bigger, subset)
			}
		}
	}
}

func TestEngine_Decide_DoesNotMutate(t *testing.T) {
	store := newTestStore(t, &credential.Credential{Serial: "ABC123", Access: ids("room1")})
	engine := NewEngine(store)

	for range 3 {
		if _, err := engine.Decide(context.Background(), VerifyRequest{Serial: "ABC123", Resources: []any{"room1"}}); err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
	}
	if store.SaveCalls() != 0 {
		t.Errorf("Decide() wrote to the directory %d times", store.SaveCalls())
	}
}
