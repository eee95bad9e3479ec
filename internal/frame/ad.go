package frame

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	adTypeFlags            = 0x01
	adTypeLocalNameShort   = 0x08
	adTypeLocalNameFull    = 0x09
	adTypeTxPower          = 0x0A
	adTypeManufacturerData = 0xFF

	// MaxADLen is the legacy advertising data limit.
	MaxADLen = 31
)

// ManufacturerAD builds the manufacturer specific AD structure as it goes on air:
//
//	len | 0xFF | company id (little endian) | payload
//
// The host stack adds it to the advertising PDU; the payload itself carries no framing.
func ManufacturerAD(companyID uint16, payload []byte) []byte {
	out := make([]byte, 0, 4+len(payload))
	out = append(out, byte(1+2+len(payload)), adTypeManufacturerData)
	out = binary.LittleEndian.AppendUint16(out, companyID)
	return append(out, payload...)
}

// ADItem is one decoded AD structure.
type ADItem struct {
	Type byte
	Name string
	Data []byte
}

func (it ADItem) String() string {
	name := it.Name
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("0x%02X %s [%s]", it.Type, name, hexSpaced(it.Data))
}

// ParseAD walks length-prefixed AD structures and stops at the first
// zero length or truncated entry.
func ParseAD(adv []byte) []ADItem {
	var items []ADItem
	for i := 0; i < len(adv); {
		l := int(adv[i])
		if l == 0 || i+1+l > len(adv) {
			break
		}
		t := adv[i+1]
		items = append(items, ADItem{
			Type: t,
			Name: adTypeName(t),
			Data: append([]byte(nil), adv[i+2:i+1+l]...),
		})
		i += 1 + l
	}
	return items
}

// FindManufacturerData returns the payload following companyID, if present.
func FindManufacturerData(adv []byte, companyID uint16) ([]byte, bool) {
	for _, it := range ParseAD(adv) {
		if it.Type != adTypeManufacturerData || len(it.Data) < 2 {
			continue
		}
		if binary.LittleEndian.Uint16(it.Data) == companyID {
			return it.Data[2:], true
		}
	}
	return nil, false
}

func adTypeName(t byte) string {
	switch t {
	case adTypeFlags:
		return "Flags"
	case 0x02, 0x03:
		return "16-bit Service Class UUIDs"
	case 0x06, 0x07:
		return "128-bit Service Class UUIDs"
	case adTypeLocalNameShort:
		return "Shortened Local Name"
	case adTypeLocalNameFull:
		return "Complete Local Name"
	case adTypeTxPower:
		return "Tx Power Level"
	case 0x16:
		return "Service Data - 16-bit UUID"
	case adTypeManufacturerData:
		return "Manufacturer Specific Data"
	default:
		return ""
	}
}

func hexSpaced(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", v)
	}
	return sb.String()
}
