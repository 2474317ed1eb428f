package iso7816

import (
	"fmt"

	"github.com/gregLibert/nfc-reader/pkg/bits"
)

// Instruction Byte (INS) Logic according to ISO/IEC 7816-4.
//
// 1. Data Encoding (Bit 1):
//    For interindustry instructions the least significant bit often selects
//    BER-TLV formatted data. Example: READ BINARY (0xB0) vs READ BINARY (BER-TLV) (0xB1).
//
// 2. Reserved Ranges:
//    INS values where the upper nibble is '6' or '9' (0x6X or 0x9X) are invalid.
//    They collide with SW1 values and transport procedure bytes (ISO/IEC 7816-3).
//
// PC/SC Part 3 reuses some interindustry codes for reader pseudo-APDUs (CLA 0xFF):
// 0x82 is LOAD KEYS, 0x86 GENERAL AUTHENTICATE, 0xB0 READ BINARY, 0xCA GET DATA.

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction codes used against contactless cards and PC/SC readers.
const (
	INS_VERIFY                InsCode = 0x20
	INS_LOAD_KEYS             InsCode = 0x82
	INS_GET_CHALLENGE         InsCode = 0x84
	INS_GENERAL_AUTHENTICATE  InsCode = 0x86
	INS_INTERNAL_AUTHENTICATE InsCode = 0x88
	INS_SELECT                InsCode = 0xA4
	INS_READ_BINARY           InsCode = 0xB0
	INS_READ_BINARY_BER       InsCode = 0xB1
	INS_READ_RECORD           InsCode = 0xB2
	INS_GET_RESPONSE          InsCode = 0xC0
	INS_ENVELOPE              InsCode = 0xC2
	INS_GET_DATA              InsCode = 0xCA
	INS_UPDATE_BINARY         InsCode = 0xD6
)

var insNames = map[InsCode]string{
	INS_VERIFY:                "VERIFY",
	INS_LOAD_KEYS:             "LOAD KEYS",
	INS_GET_CHALLENGE:         "GET CHALLENGE",
	INS_GENERAL_AUTHENTICATE:  "GENERAL AUTHENTICATE",
	INS_INTERNAL_AUTHENTICATE: "INTERNAL AUTHENTICATE",
	INS_SELECT:                "SELECT",
	INS_READ_BINARY:           "READ BINARY",
	INS_READ_BINARY_BER:       "READ BINARY (BER-TLV)",
	INS_READ_RECORD:           "READ RECORD",
	INS_GET_RESPONSE:          "GET RESPONSE",
	INS_ENVELOPE:              "ENVELOPE",
	INS_GET_DATA:              "GET DATA",
	INS_UPDATE_BINARY:         "UPDATE BINARY",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// Instruction represents the parsed INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction object with validation.
// It rejects '6X' and '9X' values as they are invalid according to ISO 7816-3.
func NewInstruction(ins InsCode) (Instruction, error) {
	switch bits.HighNibble(byte(ins)) {
	case 0x6, 0x9:
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// MustInstruction is NewInstruction for compile-time constants; it panics on reserved values.
func MustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw.String(), format)
}
