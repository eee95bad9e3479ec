package frame

import (
	"encoding/hex"
	"strings"
)

// Address is a 6-byte device address in transmission order (first octet first).
type Address [AddressLen]byte

// ParseAddress parses AA:BB:CC:DD:EE:FF. Hex digits may be either case;
// no other separator or length is accepted.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != AddressLen*3-1 {
		return a, &ValidationError{Field: "address", Input: s, Err: ErrInvalidAddress}
	}
	for i := 0; i < AddressLen; i++ {
		p := i * 3
		if i > 0 && s[p-1] != ':' {
			return a, &ValidationError{Field: "address", Input: s, Err: ErrInvalidAddress}
		}
		if !isHex(s[p]) || !isHex(s[p+1]) {
			return a, &ValidationError{Field: "address", Input: s, Err: ErrInvalidAddress}
		}
		if _, err := hex.Decode(a[i:i+1], []byte(s[p:p+2])); err != nil {
			return a, &ValidationError{Field: "address", Input: s, Err: ErrInvalidAddress}
		}
	}
	return a, nil
}

func (a Address) String() string {
	parts := make([]string, AddressLen)
	for i, b := range a {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}

// RandomSubtype names the random-address category a scanner would infer from
// the two most significant bits, if the value were advertised as a random address:
//   - 00: non_resolvable_private
//   - 01: resolvable_private
//   - 10: reserved
//   - 11: static_random
func (a Address) RandomSubtype() string {
	switch (a[0] >> 6) & 0x03 {
	case 0:
		return "non_resolvable_private"
	case 1:
		return "resolvable_private"
	case 2:
		return "reserved"
	default:
		return "static_random"
	}
}
