package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementDecision = "access_decision"
	measurementCustody  = "key_custody"
)

// DecisionSample describes one verify decision.
type DecisionSample struct {
	Serial       string
	CredentialID string
	Resources    []string
	Matched      []string
	Granted      bool
	Code         string
	Latency      time.Duration
	At           time.Time
}

// CustodySample describes one issue or return attempt.
type CustodySample struct {
	Action       string // "issue" or "return"
	Serial       string
	CredentialID string
	Key          string
	Outcome      string // "issued", "returned", "rejected", "error"
	Code         string
	Held         int // keys held after the attempt
	At           time.Time
}

// WriteAccessDecision records a verify decision. Serial and credential id
// are fields, not tags, to keep series cardinality bounded.
func (c *Client) WriteAccessDecision(s DecisionSample) {
	c.writePoint(decisionPoint(s))
}

// WriteCustodyEvent records an issue or return attempt.
func (c *Client) WriteCustodyEvent(s CustodySample) {
	c.writePoint(custodyPoint(s))
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func decisionPoint(s DecisionSample) *write.Point {
	outcome := "denied"
	if s.Granted {
		outcome = "granted"
	}
	code := s.Code
	if code == "" {
		code = "ok"
	}

	fields := map[string]any{
		"serial":    s.Serial,
		"granted":   s.Granted,
		"resources": strings.Join(s.Resources, ","),
		"matched":   len(s.Matched),
	}
	if s.CredentialID != "" {
		fields["credential_id"] = s.CredentialID
	}
	if s.Latency > 0 {
		fields["latency_us"] = s.Latency.Microseconds()
	}

	return write.NewPoint(measurementDecision,
		map[string]string{"outcome": outcome, "code": code},
		fields, timestampOrNow(s.At))
}

func custodyPoint(s CustodySample) *write.Point {
	code := s.Code
	if code == "" {
		code = "ok"
	}

	fields := map[string]any{
		"serial": s.Serial,
		"key":    s.Key,
		"held":   s.Held,
		"code":   code,
	}
	if s.CredentialID != "" {
		fields["credential_id"] = s.CredentialID
	}

	return write.NewPoint(measurementCustody,
		map[string]string{"action": s.Action, "outcome": s.Outcome},
		fields, timestampOrNow(s.At))
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
