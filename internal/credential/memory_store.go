package credential

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs tests and single-node
// deployments that do not need persistence. Credentials are deep-copied on
// the way in and out so callers never share sets with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	bySerial map[string]string

	saveErr   error
	saveCalls int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Credential),
		bySerial: make(map[string]string),
	}
}

// FailSaves makes every subsequent SaveCustody return err without changing
// state. Pass nil to restore normal behaviour.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// SaveCalls returns how many times SaveCustody has been called.
func (m *MemoryStore) SaveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalls
}

// Create stores a copy of c.
func (m *MemoryStore) Create(_ context.Context, c *Credential) error {
	if err := ValidateCredential(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = GenerateID()
	}
	now := time.Now().UTC().Truncate(time.Second)
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Access == nil {
		c.Access = IDSet{}
	}
	if c.Custody == nil {
		c.Custody = IDSet{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.bySerial[c.Serial]; taken {
		return ErrSerialExists
	}
	if _, taken := m.byID[c.ID]; taken {
		return fmt.Errorf("%w: id %s already exists", ErrInvalidCredential, c.ID)
	}

	m.byID[c.ID] = c.Clone()
	m.bySerial[c.Serial] = c.ID
	return nil
}

// FindBySerial returns a copy of the credential with exactly this serial.
func (m *MemoryStore) FindBySerial(_ context.Context, serial string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySerial[serial]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return m.byID[id].Clone(), nil
}

// GetByID returns a copy of the credential with this id.
func (m *MemoryStore) GetByID(_ context.Context, id string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.byID[id]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return c.Clone(), nil
}

// List returns copies of all credentials ordered by name.
func (m *MemoryStore) List(_ context.Context) ([]Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	creds := make([]Credential, 0, len(m.byID))
	for _, c := range m.byID {
		creds = append(creds, *c.Clone())
	}
	slices.SortFunc(creds, func(a, b Credential) int {
		if n := strings.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return creds, nil
}

// Update replaces the name and access set.
func (m *MemoryStore) Update(_ context.Context, c *Credential) error {
	if c == nil {
		return ErrInvalidCredential
	}
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if err := validateSet("access", c.Access); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[c.ID]
	if !ok {
		return ErrCredentialNotFound
	}
	stored.Name = c.Name
	stored.Access = c.Access.Clone()
	stored.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

// SaveCustody replaces the custody set unless a failure was injected.
func (m *MemoryStore) SaveCustody(_ context.Context, id string, custody IDSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}

	stored, ok := m.byID[id]
	if !ok {
		return ErrCredentialNotFound
	}
	stored.Custody = custody.Clone()
	stored.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// Delete removes a credential.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return ErrCredentialNotFound
	}
	delete(m.bySerial, c.Serial)
	delete(m.byID, id)
	return nil
}

// Count returns the number of credentials.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID), nil
}

var _ Store = (*MemoryStore)(nil)
