package access

import (
	"fmt"

	"github.com/nerrad567/gray-logic-access/internal/credential"
)

// VerifyRequest asks whether a credential may access any of Resources.
// Serial and each resource may be a string or an integer-like value.
type VerifyRequest struct {
	Serial    any
	Resources []any
}

// KeyRequest names a credential and a key for IssueKey or ReturnKey.
type KeyRequest struct {
	Serial any
	Key    any
}

// Decision is the outcome of Engine.Decide.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason"`

	// CredentialID and Name are empty when the serial is unknown.
	CredentialID string `json:"credential_id,omitempty"`
	Name         string `json:"name,omitempty"`

	// Matched lists the requested resources the credential may access,
	// in request order.
	Matched []credential.ID `json:"matched,omitempty"`
}

// Receipt describes a successful custody change.
type Receipt struct {
	CredentialID string           `json:"credential_id"`
	Serial       string           `json:"serial"`
	Name         string           `json:"name"`
	Key          credential.ID    `json:"key"`
	Custody      credential.IDSet `json:"custody"`
}

func parseSerial(v any) (string, error) {
	id, err := credential.ParseID(v)
	if err != nil {
		return "", fmt.Errorf("%w: serial: %w", ErrInvalidRequest, err)
	}
	return string(id), nil
}

func parseKey(v any) (credential.ID, error) {
	id, err := credential.ParseID(v)
	if err != nil {
		return "", fmt.Errorf("%w: key: %w", ErrInvalidRequest, err)
	}
	return id, nil
}

// parseResources returns the requested ids in order with duplicates removed.
func parseResources(values []any) ([]credential.ID, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: resources must not be empty", ErrInvalidRequest)
	}

	seen := make(credential.IDSet, len(values))
	ids := make([]credential.ID, 0, len(values))
	for i, v := range values {
		id, err := credential.ParseID(v)
		if err != nil {
			return nil, fmt.Errorf("%w: resources[%d]: %w", ErrInvalidRequest, i, err)
		}
		if seen.Has(id) {
			continue
		}
		seen.Add(id)
		ids = append(ids, id)
	}
	return ids, nil
}

func (r KeyRequest) parse() (serial string, key credential.ID, err error) {
	if serial, err = parseSerial(r.Serial); err != nil {
		return "", "", err
	}
	if key, err = parseKey(r.Key); err != nil {
		return "", "", err
	}
	return serial, key, nil
}
