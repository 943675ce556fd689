package access

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-access/internal/credential"
)

// newTestStore returns a memory store seeded with credentials keyed by serial.
func newTestStore(t *testing.T, creds ...*credential.Credential) *credential.MemoryStore {
	t.Helper()

	store := credential.NewMemoryStore()
	for _, c := range creds {
		if c.Name == "" {
			c.Name = "Badge " + c.Serial
		}
		if err := store.Create(context.Background(), c); err != nil {
			t.Fatalf("seeding %s: %v", c.Serial, err)
		}
	}
	return store
}

func ids(values ...string) credential.IDSet {
	s := credential.NewIDSet()
	for _, v := range values {
		s.Add(credential.ID(v))
	}
	return s
}

func custodyOf(t *testing.T, dir credential.Directory, serial string) credential.IDSet {
	t.Helper()

	c, err := dir.FindBySerial(context.Background(), serial)
	if err != nil {
		t.Fatalf("FindBySerial(%q): %v", serial, err)
	}
	return c.Custody
}

// brokenDirectory fails every call with err.
type brokenDirectory struct {
	err error
}

func (b brokenDirectory) FindBySerial(context.Context, string) (*credential.Credential, error) {
	return nil, b.err
}

func (b brokenDirectory) SaveCustody(context.Context, string, credential.IDSet) error {
	return b.err
}

var errDiskFull = errors.New("disk full")
