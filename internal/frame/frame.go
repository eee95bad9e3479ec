package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// CompanyID is the manufacturer identifier the frame is advertised under.
	CompanyID uint16 = 0x004C

	UUIDLen    = 16
	AddressLen = 6

	// Len is the size of the manufacturer payload:
	//   uuid (16) | major (2, BE) | minor (2, BE) | address (6)
	Len = UUIDLen + 2 + 2 + AddressLen
)

const (
	offMajor   = UUIDLen
	offMinor   = offMajor + 2
	offAddress = offMinor + 2
)

var ErrFrameLength = errors.New("frame: payload must be 26 bytes")

// Frame is the fixed beacon payload carried as manufacturer specific data.
type Frame [Len]byte

// Encode lays out the identity and address. Field order never changes.
func Encode(uuid UUID, major, minor uint16, addr Address) Frame {
	var f Frame
	copy(f[:offMajor], uuid[:])
	binary.BigEndian.PutUint16(f[offMajor:offMinor], major)
	binary.BigEndian.PutUint16(f[offMinor:offAddress], minor)
	copy(f[offAddress:], addr[:])
	return f
}

// FromBytes copies a received payload into a Frame.
func FromBytes(b []byte) (Frame, error) {
	var f Frame
	if len(b) != Len {
		return f, fmt.Errorf("%w (got %d)", ErrFrameLength, len(b))
	}
	copy(f[:], b)
	return f, nil
}

func (f Frame) UUID() UUID {
	var u UUID
	copy(u[:], f[:offMajor])
	return u
}

func (f Frame) Major() uint16 { return binary.BigEndian.Uint16(f[offMajor:offMinor]) }

func (f Frame) Minor() uint16 { return binary.BigEndian.Uint16(f[offMinor:offAddress]) }

func (f Frame) Address() Address {
	var a Address
	copy(a[:], f[offAddress:])
	return a
}

// Bytes returns a copy of the payload.
func (f Frame) Bytes() []byte {
	out := make([]byte, Len)
	copy(out, f[:])
	return out
}

func (f Frame) String() string {
	return fmt.Sprintf("uuid=%s major=%d minor=%d addr=%s", f.UUID(), f.Major(), f.Minor(), f.Address())
}
