package contactless

import (
	"bytes"
	"fmt"

	"github.com/gregLibert/nfc-reader/pkg/iso7816"
)

// Profile is the technology family of a card, derived from its ATR.
type Profile struct {
	Name      string
	Signature []byte

	Class           byte
	ReadInstruction iso7816.InsCode
	BlockSize       int
	MaxPacketSize   int
	Readable        bool
}

// MemoryCard covers the storage cards a PC/SC reader exposes with a synthesized ATR
// (MIFARE Classic and compatibles).
var MemoryCard = Profile{
	Name:            "contactless memory card, class A",
	Signature:       []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F},
	Class:           iso7816.ReaderClass,
	ReadInstruction: iso7816.INS_READ_BINARY,
	BlockSize:       4,
	MaxPacketSize:   16,
	Readable:        true,
}

// ICCard is recognized but has no read support.
var ICCard = Profile{
	Name:            "contactless IC card, class B",
	Signature:       []byte{0xF0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
	Class:           iso7816.ReaderClass,
	ReadInstruction: iso7816.INS_READ_BINARY,
}

var profiles = []Profile{MemoryCard, ICCard}

// Classify matches the leading bytes of atr against the known signatures.
// atr is neither retained nor modified.
//
// A recognized but unreadable profile is returned together with an
// *UnsupportedCardError, so callers can still report what the card is.
func Classify(atr []byte) (Profile, error) {
	for _, p := range profiles {
		if !bytes.HasPrefix(atr, p.Signature) {
			continue
		}
		if !p.Readable {
			found := p
			return p, &UnsupportedCardError{ATR: bytes.Clone(atr), Profile: &found}
		}
		return p, nil
	}
	return Profile{}, &UnsupportedCardError{ATR: bytes.Clone(atr)}
}

// Validate checks that the profile can drive the block read engine.
func (p Profile) Validate() error {
	if !p.Readable {
		return fmt.Errorf("%w: profile %q is not readable", ErrInvalidParameter, p.Name)
	}
	if p.BlockSize <= 0 {
		return fmt.Errorf("%w: block size %d", ErrInvalidParameter, p.BlockSize)
	}
	if p.MaxPacketSize <= 0 || p.MaxPacketSize > iso7816.MaxShortLe {
		return fmt.Errorf("%w: max packet size %d (1..%d)", ErrInvalidParameter, p.MaxPacketSize, iso7816.MaxShortLe)
	}
	if _, err := iso7816.NewInstruction(p.ReadInstruction); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return nil
}
