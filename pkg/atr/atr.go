// Package atr decodes the Answer To Reset reported by a PC/SC reader for the card in its field.
//
// ISO/IEC 7816-3 layout:
//
//	TS T0 [TA1 TB1 TC1 TD1] [TA2 ...] ... historical bytes ... [TCK]
//
// T0 high nibble (Y1) flags which of TA1..TD1 follow, T0 low nibble (K) is the number
// of historical bytes. Each TDi repeats the scheme: high nibble Yi+1, low nibble the
// protocol T. TCK is present as soon as any protocol other than T=0 is indicated.
//
// Contactless cards have no real ATR: the reader builds one (PC/SC Part 3, 3.1.3.2.3).
// For storage cards the historical bytes carry a descriptor:
//
//	80 4F 0C <RID A0 00 00 03 06> <SS standard> <NN NN card name> 00 00 00 00
package atr

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/nfc-reader/pkg/bits"
	"github.com/gregLibert/nfc-reader/pkg/tlv"
)

var (
	ErrTooShort  = errors.New("atr: too short")
	ErrInvalidTS = errors.New("atr: invalid initial character")
	ErrTruncated = errors.New("atr: truncated")
)

// Initial character values.
const (
	TSDirect  byte = 0x3B
	TSInverse byte = 0x3F
)

// PCSCRID is the registered application provider identifier of the PC/SC workgroup.
var PCSCRID = []byte{0xA0, 0x00, 0x00, 0x03, 0x06}

// InterfaceGroup holds the TAi..TDi bytes of one level. Present is the Y nibble
// announcing them: bit 1 TA, bit 2 TB, bit 3 TC, bit 4 TD.
type InterfaceGroup struct {
	Present        byte
	TA, TB, TC, TD byte
}

func (g InterfaceGroup) HasTA() bool { return bits.IsSet(g.Present, 1) }
func (g InterfaceGroup) HasTB() bool { return bits.IsSet(g.Present, 2) }
func (g InterfaceGroup) HasTC() bool { return bits.IsSet(g.Present, 3) }
func (g InterfaceGroup) HasTD() bool { return bits.IsSet(g.Present, 4) }

// ATR is a decoded Answer To Reset.
type ATR struct {
	Raw        []byte
	TS         byte
	Groups     []InterfaceGroup
	Protocols  []byte
	Historical []byte
	HasTCK     bool
	TCK        byte
	tckIndex   int

	// Storage is set when the historical bytes carry a PC/SC storage card descriptor.
	Storage *StorageCard

	objects *historicalTemplate
}

type historicalTemplate struct {
	AID   []byte       `tlv:"4F"`
	Other []bertlv.TLV `tlv:",unknown"`
}

// Parse decodes raw. The input is copied; raw is never modified.
func Parse(raw []byte) (*ATR, error) {
	if len(raw) < 2 {
		return nil, ErrTooShort
	}

	a := &ATR{Raw: bytes.Clone(raw), TS: raw[0]}
	if a.TS != TSDirect && a.TS != TSInverse {
		return nil, fmt.Errorf("%w: %02X", ErrInvalidTS, a.TS)
	}

	y := bits.HighNibble(raw[1])
	k := int(bits.LowNibble(raw[1]))
	idx := 2

	for {
		g := InterfaceGroup{Present: y}
		if idx+bits.Count(y, 4, 1) > len(raw) {
			return nil, fmt.Errorf("%w: interface bytes of group %d", ErrTruncated, len(a.Groups)+1)
		}
		for n, dst := range []*byte{&g.TA, &g.TB, &g.TC, &g.TD} {
			if bits.IsSet(y, uint(n+1)) {
				*dst = raw[idx]
				idx++
			}
		}
		a.Groups = append(a.Groups, g)

		if !g.HasTD() {
			break
		}
		a.Protocols = append(a.Protocols, bits.LowNibble(g.TD))
		y = bits.HighNibble(g.TD)
	}

	if idx+k > len(raw) {
		return nil, fmt.Errorf("%w: %d historical bytes announced, %d left", ErrTruncated, k, len(raw)-idx)
	}
	a.Historical = a.Raw[idx : idx+k]
	idx += k

	for _, p := range a.Protocols {
		if p != 0 {
			a.HasTCK = true
			break
		}
	}
	if a.HasTCK {
		if idx >= len(raw) {
			return nil, fmt.Errorf("%w: missing TCK", ErrTruncated)
		}
		a.TCK = raw[idx]
		a.tckIndex = idx
	}

	if len(a.Historical) > 1 && a.Historical[0] == 0x80 {
		var h historicalTemplate
		if err := tlv.Unmarshal(a.Historical[1:], &h); err == nil {
			a.objects = &h
			if h.AID != nil {
				a.Storage = parseStorageCard(h.AID)
			}
		}
	}

	return a, nil
}

// ChecksumValid reports whether the XOR of T0..TCK is zero.
// It is true when no TCK is expected.
func (a *ATR) ChecksumValid() bool {
	if !a.HasTCK {
		return true
	}
	var x byte
	for _, b := range a.Raw[1 : a.tckIndex+1] {
		x ^= b
	}
	return x == 0
}
