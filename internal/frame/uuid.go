package frame

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidUUID    = errors.New("invalid uuid")
	ErrInvalidAddress = errors.New("invalid address")
)

// ValidationError reports which input field was rejected.
type ValidationError struct {
	Field string
	Input string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Input)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UUID is a 128-bit identifier in RFC 4122 network byte order.
type UUID [UUIDLen]byte

// ParseUUID accepts only the canonical 8-4-4-4-12 hyphenated form.
// uuid.Parse alone is too lenient (urn:uuid:, braces, bare 32 hex digits).
func ParseUUID(s string) (UUID, error) {
	var out UUID
	if !canonicalUUIDShape(s) {
		return out, &ValidationError{Field: "uuid", Input: s, Err: ErrInvalidUUID}
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return out, &ValidationError{Field: "uuid", Input: s, Err: ErrInvalidUUID}
	}
	copy(out[:], u[:])
	return out, nil
}

func canonicalUUIDShape(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(c) {
				return false
			}
		}
	}
	return true
}

// String renders the canonical upper-case form.
func (u UUID) String() string {
	return strings.ToUpper(uuid.UUID(u).String())
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
