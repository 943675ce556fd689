package credential

import "context"

// Directory is the read-by-serial and custody-write contract consumed by the
// access core.
type Directory interface {
	// FindBySerial returns the credential whose serial equals serial exactly,
	// or ErrCredentialNotFound.
	FindBySerial(ctx context.Context, serial string) (*Credential, error)

	// SaveCustody atomically replaces the custody set of credential id.
	// A failed save leaves the stored set unchanged.
	SaveCustody(ctx context.Context, id string, custody IDSet) error
}

// Store extends Directory with the administrative CRUD path.
type Store interface {
	Directory

	Create(ctx context.Context, c *Credential) error
	GetByID(ctx context.Context, id string) (*Credential, error)
	List(ctx context.Context) ([]Credential, error)

	// Update replaces the name and access set. Serial and custody are
	// never changed by Update.
	Update(ctx context.Context, c *Credential) error

	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
