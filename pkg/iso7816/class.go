package iso7816

import (
	"fmt"

	"github.com/gregLibert/nfc-reader/pkg/bits"
)

// Class Byte (CLA) according to ISO/IEC 7816-4 and PC/SC Part 3.
//
// Bit 8: Proprietary (1) or Interindustry (0).
// Bit 7: Type of Interindustry (0=First, 1=Further).
// Bit 5: Command Chaining (0=Last/Only, 1=More follow).
//
// ISO 7816-4 reserves 0xFF as an invalid class for the card. PC/SC Part 3 uses that
// value for "pseudo-APDUs": commands consumed by the reader itself (LOAD KEYS,
// GENERAL AUTHENTICATE, READ BINARY on storage cards) and translated into the
// contactless protocol of the card in the field.

// ClassKind is the coarse family of a CLA byte.
type ClassKind int

const (
	ClassInterindustry ClassKind = iota
	ClassProprietary
	ClassReader
)

// ReaderClass is the PC/SC pseudo-APDU class byte.
const ReaderClass byte = 0xFF

// Class represents a parsed CLA byte.
type Class struct {
	Raw       byte
	Kind      ClassKind
	IsChained bool
	Channel   uint8 // Logical channel number (0-19), interindustry only
}

// NewClass decodes a raw CLA byte.
func NewClass(cla byte) Class {
	c := Class{Raw: cla}

	switch {
	case cla == ReaderClass:
		c.Kind = ClassReader
	case bits.IsSet(cla, 8):
		c.Kind = ClassProprietary
	default:
		c.Kind = ClassInterindustry
		c.IsChained = bits.IsSet(cla, 5)
		if !bits.IsSet(cla, 7) {
			c.Channel = bits.GetRange(cla, 2, 1)
		} else {
			c.Channel = bits.GetRange(cla, 4, 1) + 4
		}
	}

	return c
}

// Encode converts the Class back to its byte representation.
func (c Class) Encode() byte {
	return c.Raw
}

// IsReader reports whether the class addresses the reader (PC/SC pseudo-APDU).
func (c Class) IsReader() bool {
	return c.Kind == ClassReader
}

// Verbose returns a human-readable description of the CLA byte.
func (c Class) Verbose() string {
	switch c.Kind {
	case ClassReader:
		return fmt.Sprintf("Class: Reader pseudo-APDU (0x%02X)", c.Raw)
	case ClassProprietary:
		return fmt.Sprintf("Class: Proprietary (0x%02X)", c.Raw)
	default:
		chaining := "Last or only command"
		if c.IsChained {
			chaining = "More commands follow (Chaining)"
		}
		return fmt.Sprintf("Class: Interindustry (0x%02X)\nChaining: %s\nLogical Channel: %d", c.Raw, chaining, c.Channel)
	}
}
