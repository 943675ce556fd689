package credential

import "errors"

// Domain errors for the credential package.
//
//	if errors.Is(err, credential.ErrCredentialNotFound) {
//	    // unknown serial or id
//	}
var (
	// ErrCredentialNotFound is returned when no credential matches a serial or id.
	ErrCredentialNotFound = errors.New("credential: not found")

	// ErrSerialExists is returned when creating a credential whose serial is taken.
	ErrSerialExists = errors.New("credential: serial already exists")

	// ErrInvalidCredential is returned when a credential fails validation.
	ErrInvalidCredential = errors.New("credential: invalid")

	// ErrInvalidName is returned when a name is empty or too long.
	ErrInvalidName = errors.New("credential: invalid name")

	// ErrInvalidSerial is returned when a serial is empty or too long.
	ErrInvalidSerial = errors.New("credential: invalid serial")

	// ErrInvalidID is returned when a value cannot be used as a resource or key identifier.
	ErrInvalidID = errors.New("credential: invalid identifier")
)
