package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/credential"
)

// Legacy verify status values still read by older door controllers.
const (
	statusGranted = "GRANTED"
	statusDenied  = "DENIED"
)

// verifyEnvelope is the wire form of a verify request. Resources may be a
// single identifier or an array of identifiers.
type verifyEnvelope struct {
	Serial    any             `json:"serial"`
	Resources json.RawMessage `json:"resources"`
	RequestID string          `json:"request_id,omitempty"`
}

// keyEnvelope is the wire form of an issue or return request.
type keyEnvelope struct {
	Serial any `json:"serial"`
	Key    any `json:"key"`
}

// VerifyResponse is returned by the verify endpoint and published on the
// MQTT response topic.
type VerifyResponse struct {
	Granted      bool            `json:"granted"`
	Status       string          `json:"status"`
	Reason       string          `json:"reason"`
	Code         access.Code     `json:"code"`
	CredentialID string          `json:"credential_id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Matched      []credential.ID `json:"matched,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
}

// CustodyResponse is returned by the issue and return endpoints. Exactly
// one of Issued or Returned is set, depending on the endpoint.
type CustodyResponse struct {
	Issued   *bool            `json:"issued,omitempty"`
	Returned *bool            `json:"returned,omitempty"`
	Message  string           `json:"message"`
	Code     access.Code      `json:"code"`
	Custody  credential.IDSet `json:"custody,omitempty"`
}

// decodeJSON decodes one JSON value keeping numbers as json.Number so
// integer identifiers keep their exact digits.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

// decodeVerifyRequest parses a verify body. Errors wrap access.ErrInvalidRequest.
func decodeVerifyRequest(r io.Reader) (access.VerifyRequest, string, error) {
	var env verifyEnvelope
	if err := decodeJSON(r, &env); err != nil {
		return access.VerifyRequest{}, "", fmt.Errorf("%w: invalid data format", access.ErrInvalidRequest)
	}

	resources, err := decodeResources(env.Resources)
	if err != nil {
		return access.VerifyRequest{}, env.RequestID, err
	}
	return access.VerifyRequest{Serial: env.Serial, Resources: resources}, env.RequestID, nil
}

// decodeResources accepts a scalar or an array. A missing field yields an
// empty list, which the engine rejects.
func decodeResources(raw json.RawMessage) ([]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var v any
	if err := decodeJSON(bytes.NewReader(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: resources: %w", access.ErrInvalidRequest, err)
	}
	if list, ok := v.([]any); ok {
		return list, nil
	}
	return []any{v}, nil
}

func decodeKeyRequest(r io.Reader) (access.KeyRequest, error) {
	var env keyEnvelope
	if err := decodeJSON(r, &env); err != nil {
		return access.KeyRequest{}, fmt.Errorf("%w: invalid data format", access.ErrInvalidRequest)
	}
	return access.KeyRequest{Serial: env.Serial, Key: env.Key}, nil
}

// handleVerify answers whether a serial may access any of the requested resources.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	req, _, err := decodeVerifyRequest(r.Body)
	var d access.Decision
	if err == nil {
		d, err = s.engine.Decide(ctx, req)
	}

	s.recordDecision(origin{transport: "http", requestID: requestIDFrom(ctx)}, req, d, err, time.Since(start))

	resp := buildVerifyResponse(d, err)
	writeJSON(w, statusForCode(resp.Code), resp)
}

func buildVerifyResponse(d access.Decision, err error) VerifyResponse {
	code := access.CodeOf(err)
	if err != nil {
		reason := err.Error()
		if code == access.CodeStorage {
			reason = "storage error"
		}
		return VerifyResponse{Status: statusDenied, Reason: reason, Code: code}
	}

	status := statusDenied
	if d.Granted {
		status = statusGranted
	}
	return VerifyResponse{
		Granted:      d.Granted,
		Status:       status,
		Reason:       d.Reason,
		Code:         code,
		CredentialID: d.CredentialID,
		Name:         d.Name,
		Matched:      d.Matched,
	}
}

// handleIssueKey lends a key to the credential.
func (s *Server) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	s.handleCustody(w, r, actionIssue)
}

// handleReturnKey takes a key back from the credential.
func (s *Server) handleReturnKey(w http.ResponseWriter, r *http.Request) {
	s.handleCustody(w, r, actionReturn)
}

func (s *Server) handleCustody(w http.ResponseWriter, r *http.Request, action custodyAction) {
	start := time.Now()
	ctx := r.Context()

	req, err := decodeKeyRequest(r.Body)
	var receipt *access.Receipt
	if err == nil {
		if action == actionIssue {
			receipt, err = s.ledger.IssueKey(ctx, req)
		} else {
			receipt, err = s.ledger.ReturnKey(ctx, req)
		}
	}

	s.recordCustody(origin{transport: "http", requestID: requestIDFrom(ctx)}, action, req, receipt, err, time.Since(start))

	resp := buildCustodyResponse(action, receipt, err)
	writeJSON(w, statusForCode(resp.Code), resp)
}

func buildCustodyResponse(action custodyAction, receipt *access.Receipt, err error) CustodyResponse {
	ok := err == nil
	resp := CustodyResponse{Code: access.CodeOf(err)}
	if action == actionIssue {
		resp.Issued = &ok
	} else {
		resp.Returned = &ok
	}

	if ok {
		resp.Message = fmt.Sprintf("key %s %s %s", receipt.Key, action.messageVerb(), receipt.Name)
		resp.Custody = receipt.Custody
		return resp
	}
	resp.Message = custodyFailureMessage(action, resp.Code, err)
	return resp
}

func custodyFailureMessage(action custodyAction, code access.Code, err error) string {
	switch code {
	case access.CodeNotFound:
		return "credential not found"
	case access.CodeForbidden:
		return "not entitled to this key"
	case access.CodeConflict:
		return "key already issued"
	case access.CodeInvalidState:
		return "key not held by this credential"
	case access.CodeStorage:
		return fmt.Sprintf("storage error, key not %s", action.pastParticiple())
	default:
		return err.Error()
	}
}

// custodyAction names the ledger operation behind a request.
type custodyAction string

const (
	actionIssue  custodyAction = "issue"
	actionReturn custodyAction = "return"
)

func (a custodyAction) pastParticiple() string {
	if a == actionIssue {
		return "issued"
	}
	return "returned"
}

func (a custodyAction) messageVerb() string {
	if a == actionIssue {
		return "issued to"
	}
	return "returned by"
}
