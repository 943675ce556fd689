package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-access/internal/credential"
)

// Decision reasons.
const (
	reasonNotFound = "credential not found"
	reasonNoAccess = "no access to requested resources"
)

// Engine answers access questions from the directory's current state.
// It never mutates the directory and needs no locking.
type Engine struct {
	dir credential.Directory
}

// NewEngine creates an Engine reading from dir.
func NewEngine(dir credential.Directory) *Engine {
	return &Engine{dir: dir}
}

// Decide grants access when at least one requested resource is in the
// credential's access set. An unknown serial is a denial, not an error.
// Errors are ErrInvalidRequest for bad input and ErrStorage when the
// directory lookup fails.
func (e *Engine) Decide(ctx context.Context, req VerifyRequest) (Decision, error) {
	serial, err := parseSerial(req.Serial)
	if err != nil {
		return Decision{}, err
	}
	resources, err := parseResources(req.Resources)
	if err != nil {
		return Decision{}, err
	}

	cred, err := e.dir.FindBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			return Decision{Granted: false, Reason: reasonNotFound}, nil
		}
		return Decision{}, fmt.Errorf("%w: looking up credential: %w", ErrStorage, err)
	}

	d := Decision{CredentialID: cred.ID, Name: cred.Name}
	for _, res := range resources {
		if cred.Access.Has(res) {
			d.Matched = append(d.Matched, res)
		}
	}

	if len(d.Matched) == 0 {
		d.Reason = reasonNoAccess
		return d, nil
	}

	d.Granted = true
	d.Reason = "access granted to " + joinIDs(d.Matched)
	return d, nil
}

func joinIDs(ids []credential.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
