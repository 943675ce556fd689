package credential

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength   = 128
	maxSerialLength = 128

	// maxSetSize bounds access and custody sets on admin writes.
	maxSetSize = 1024

	// idPrefix is prepended to generated credential ids.
	idPrefix = "cred-"
)

// ValidateCredential checks the fields an administrator may set.
func ValidateCredential(c *Credential) error {
	if c == nil {
		return ErrInvalidCredential
	}
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if err := ValidateSerial(c.Serial); err != nil {
		return err
	}
	if err := validateSet("access", c.Access); err != nil {
		return err
	}
	return validateSet("custody", c.Custody)
}

// ValidateName checks that a display name is present and bounded.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSerial checks that a serial is present and bounded. The serial is
// stored as given; surrounding whitespace is part of it.
func ValidateSerial(serial string) error {
	if strings.TrimSpace(serial) == "" {
		return fmt.Errorf("%w: serial is required", ErrInvalidSerial)
	}
	if utf8.RuneCountInString(serial) > maxSerialLength {
		return fmt.Errorf("%w: serial exceeds %d characters", ErrInvalidSerial, maxSerialLength)
	}
	return nil
}

func validateSet(field string, s IDSet) error {
	if len(s) > maxSetSize {
		return fmt.Errorf("%w: %s holds more than %d entries", ErrInvalidCredential, field, maxSetSize)
	}
	for id := range s {
		if strings.TrimSpace(string(id)) == "" {
			return fmt.Errorf("%w: %s contains an empty identifier", ErrInvalidID, field)
		}
	}
	return nil
}

// GenerateID returns a new credential id of the form cred-<uuid>.
func GenerateID() string {
	return idPrefix + uuid.NewString()
}
