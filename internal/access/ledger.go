package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-access/internal/credential"
)

// Ledger issues and returns physical keys against credentials.
//
// Each operation is a read-check-write on one credential's custody set and
// holds that credential's lock for its whole duration. Locks are keyed by
// serial: serials are unique and immutable, so one serial always names one
// credential.
type Ledger struct {
	dir   credential.Directory
	locks *LockSet
}

// NewLedger creates a Ledger reading from and writing to dir.
func NewLedger(dir credential.Directory) *Ledger {
	return &Ledger{dir: dir, locks: NewLockSet()}
}

// IssueKey moves key from NOT_HELD to HELD for the credential.
//
// Checks run in order and the first failure wins: ErrInvalidRequest,
// ErrNotFound, ErrForbidden (key not in access), ErrConflict (key already
// held). A failed save returns ErrStorage and nothing is issued.
func (l *Ledger) IssueKey(ctx context.Context, req KeyRequest) (*Receipt, error) {
	serial, key, err := req.parse()
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(serial)
	defer unlock()

	cred, err := l.find(ctx, serial)
	if err != nil {
		return nil, err
	}

	if !cred.Access.Has(key) {
		return nil, fmt.Errorf("%w: key %s", ErrForbidden, key)
	}
	if cred.Custody.Has(key) {
		return nil, fmt.Errorf("%w: key %s", ErrConflict, key)
	}

	custody := cred.Custody.Clone()
	custody.Add(key)
	return l.commit(ctx, cred, key, custody)
}

// ReturnKey moves key from HELD to NOT_HELD for the credential.
//
// Entitlement is not checked: a key issued before its access was revoked
// can still be returned. Returning a key that is not held is
// ErrInvalidState.
func (l *Ledger) ReturnKey(ctx context.Context, req KeyRequest) (*Receipt, error) {
	serial, key, err := req.parse()
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(serial)
	defer unlock()

	cred, err := l.find(ctx, serial)
	if err != nil {
		return nil, err
	}

	if !cred.Custody.Has(key) {
		return nil, fmt.Errorf("%w: key %s", ErrInvalidState, key)
	}

	custody := cred.Custody.Clone()
	custody.Remove(key)
	return l.commit(ctx, cred, key, custody)
}

func (l *Ledger) find(ctx context.Context, serial string) (*credential.Credential, error) {
	cred, err := l.dir.FindBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			return nil, fmt.Errorf("%w: serial %q", ErrNotFound, serial)
		}
		return nil, fmt.Errorf("%w: looking up credential: %w", ErrStorage, err)
	}
	return cred, nil
}

// commit persists custody. The credential read earlier is left untouched so
// a failed save cannot leak an uncommitted set to the caller.
func (l *Ledger) commit(ctx context.Context, cred *credential.Credential, key credential.ID, custody credential.IDSet) (*Receipt, error) {
	if err := l.dir.SaveCustody(ctx, cred.ID, custody); err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			// Deleted between read and write.
			return nil, fmt.Errorf("%w: serial %q", ErrNotFound, cred.Serial)
		}
		return nil, fmt.Errorf("%w: saving custody: %w", ErrStorage, err)
	}

	return &Receipt{
		CredentialID: cred.ID,
		Serial:       cred.Serial,
		Name:         cred.Name,
		Key:          key,
		Custody:      custody,
	}, nil
}
