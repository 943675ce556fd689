package credential

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ID is the canonical string form of a resource or key identifier.
type ID string

// ParseID converts a caller-supplied value into an ID.
//
// Accepted inputs are strings, Go integer types, json.Number holding an
// integer, and float64/float32 holding an integral value (as produced by
// encoding/json without UseNumber). Strings are kept byte for byte.
// Booleans, nil, fractions, objects, and arrays are rejected, as is any
// value whose string form is empty after trimming whitespace.
func ParseID(v any) (ID, error) {
	var s string

	switch t := v.(type) {
	case string:
		s = t
	case ID:
		s = string(t)
	case json.Number:
		n, err := parseIntegerToken(t.String())
		if err != nil {
			return "", err
		}
		s = n
	case int:
		s = strconv.FormatInt(int64(t), 10)
	case int8:
		s = strconv.FormatInt(int64(t), 10)
	case int16:
		s = strconv.FormatInt(int64(t), 10)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int64:
		s = strconv.FormatInt(t, 10)
	case uint:
		s = strconv.FormatUint(uint64(t), 10)
	case uint8:
		s = strconv.FormatUint(uint64(t), 10)
	case uint16:
		s = strconv.FormatUint(uint64(t), 10)
	case uint32:
		s = strconv.FormatUint(uint64(t), 10)
	case uint64:
		s = strconv.FormatUint(t, 10)
	case float32:
		return parseFloat(float64(t))
	case float64:
		return parseFloat(t)
	case nil:
		return "", fmt.Errorf("%w: missing value", ErrInvalidID)
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidID, v)
	}

	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidID)
	}
	return ID(s), nil
}

// parseIntegerToken accepts a JSON number literal only when it is an integer.
func parseIntegerToken(tok string) (string, error) {
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	if n, err := strconv.ParseUint(tok, 10, 64); err == nil {
		return strconv.FormatUint(n, 10), nil
	}
	// 1e3 and 5.0 are integral even though they are not integer literals.
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed number %q", ErrInvalidID, tok)
	}
	id, err := parseFloat(f)
	return string(id), err
}

func parseFloat(f float64) (ID, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return "", fmt.Errorf("%w: %v is not an integer", ErrInvalidID, f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return "", fmt.Errorf("%w: %v out of range", ErrInvalidID, f)
	}
	return ID(strconv.FormatInt(int64(f), 10)), nil
}

// IDSet is an unordered set of identifiers. The zero value is an empty set
// that can be read but not written; use NewIDSet for a writable set.
type IDSet map[ID]struct{}

// NewIDSet returns a set holding ids. Duplicates collapse.
func NewIDSet(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// ParseIDSet converts each value with ParseID and collects the results.
func ParseIDSet(values []any) (IDSet, error) {
	s := make(IDSet, len(values))
	for i, v := range values {
		id, err := ParseID(v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		s[id] = struct{}{}
	}
	return s, nil
}

// Has reports whether id is in the set.
func (s IDSet) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s IDSet) Add(id ID) {
	s[id] = struct{}{}
}

// Remove deletes id. Removing an absent id is a no-op.
func (s IDSet) Remove(id ID) {
	delete(s, id)
}

// Len returns the number of identifiers in the set.
func (s IDSet) Len() int {
	return len(s)
}

// Clone returns an independent writable copy. Cloning a nil set yields an
// empty, writable set.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold exactly the same identifiers.
func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the identifiers in ascending byte order.
func (s IDSet) Sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Strings returns the sorted identifiers as plain strings.
func (s IDSet) Strings() []string {
	ids := s.Sorted()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array so output is stable.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of strings or integers.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var values []any
	if err := dec.Decode(&values); err != nil {
		return fmt.Errorf("%w: expected an array: %v", ErrInvalidID, err)
	}

	set, err := ParseIDSet(values)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// Credential is a badge or device record.
type Credential struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Serial string `json:"serial"`

	// Access is the entitlement set: rooms that may be entered and keys
	// that may be issued.
	Access IDSet `json:"access"`

	// Custody holds the keys currently loaned to this credential. It may
	// contain keys no longer in Access when entitlement was revoked after
	// issue.
	Custody IDSet `json:"custody"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the credential.
func (c *Credential) Clone() *Credential {
	cp := *c
	cp.Access = c.Access.Clone()
	cp.Custody = c.Custody.Clone()
	return &cp
}
