package iso7816

import (
	"fmt"

	"github.com/gregLibert/nfc-reader/pkg/bits"
)

// READ BINARY (INS 'B0'), reader variant (PC/SC Part 3, 3.2.2.1.8):
// P1-P2 carry the 16-bit block number (big-endian), Le the number of bytes to read.
// The reader maps the command onto the card protocol, e.g. a MIFARE READ of 16 bytes.
//
// GENERAL AUTHENTICATE (INS '86', PC/SC Part 3, 3.2.2.1.6):
// Data is a 5-byte authenticate data object:
//   Version (01) | Block MSB | Block LSB | Key Type | Key Number (slot)
//
// LOAD KEYS (INS '82', PC/SC Part 3, 3.2.2.1.4):
// P1 is the key structure (00 = card key, plain transmission, volatile memory),
// P2 the key slot, Data the key value (6 bytes for MIFARE).

// Key types understood by GENERAL AUTHENTICATE.
const (
	KeyTypeA byte = 0x60
	KeyTypeB byte = 0x61
)

// AuthenticateVersion is the only version of the authenticate data object.
const AuthenticateVersion byte = 0x01

// KeyLength is the size of a MIFARE Classic key.
const KeyLength = 6

// KeyStructureVolatile selects a plain card key stored in the reader's volatile memory.
const KeyStructureVolatile byte = 0x00

// ReadBinary creates a READ BINARY command for n bytes starting at block.
func ReadBinary(cla Class, block uint16, n int) *CommandAPDU {
	p1, p2 := bits.Split16(block)
	return NewCommandAPDU(cla, MustInstruction(INS_READ_BINARY), p1, p2, nil, n)
}

// GeneralAuthenticate creates the authenticate command for one block.
// The resulting APDU is always 10 bytes long.
func GeneralAuthenticate(cla Class, block uint16, keyType, slot byte) *CommandAPDU {
	hi, lo := bits.Split16(block)
	data := []byte{AuthenticateVersion, hi, lo, keyType, slot}
	return NewCommandAPDU(cla, MustInstruction(INS_GENERAL_AUTHENTICATE), 0x00, 0x00, data, 0)
}

// LoadKeys creates a LOAD KEYS command storing key in the reader slot.
func LoadKeys(cla Class, slot byte, key []byte) (*CommandAPDU, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeyLength, len(key))
	}
	data := append([]byte(nil), key...)
	return NewCommandAPDU(cla, MustInstruction(INS_LOAD_KEYS), KeyStructureVolatile, slot, data, 0), nil
}

// KeyTypeName returns "A", "B" or the hex value of an unknown key type.
func KeyTypeName(keyType byte) string {
	switch keyType {
	case KeyTypeA:
		return "A"
	case KeyTypeB:
		return "B"
	default:
		return fmt.Sprintf("0x%02X", keyType)
	}
}
