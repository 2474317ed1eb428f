package atr

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gregLibert/nfc-reader/pkg/bits"
	"github.com/gregLibert/nfc-reader/pkg/tlv"
)

// StorageCard is the PC/SC Part 3 descriptor of a contactless storage card.
type StorageCard struct {
	RID      []byte
	Standard byte
	CardName uint16
}

// Standard bytes (PC/SC Part 3, Supplemental Document, table "SS").
var standards = map[byte]string{
	0x01: "ISO 14443 A, part 1",
	0x02: "ISO 14443 A, part 2",
	0x03: "ISO 14443 A, part 3",
	0x05: "ISO 14443 B, part 1",
	0x06: "ISO 14443 B, part 2",
	0x07: "ISO 14443 B, part 3",
	0x09: "ISO 15693, part 1",
	0x0A: "ISO 15693, part 2",
	0x0B: "ISO 15693, part 3",
	0x0C: "ISO 15693, part 4",
	0x11: "FeliCa",
}

// Card names (PC/SC Part 3, Supplemental Document, table "NN").
var cardNames = map[uint16]string{
	0x0001: "MIFARE Classic 1K",
	0x0002: "MIFARE Classic 4K",
	0x0003: "MIFARE Ultralight",
	0x0026: "MIFARE Mini",
	0x003A: "MIFARE Ultralight C",
	0x0036: "MIFARE Plus SL1 2K",
	0x0037: "MIFARE Plus SL1 4K",
	0xF004: "Topaz/Jewel",
	0xF011: "FeliCa 212K",
	0xF012: "FeliCa 424K",
}

func parseStorageCard(aid []byte) *StorageCard {
	if len(aid) < 8 || !bytes.Equal(aid[:5], PCSCRID) {
		return nil
	}
	return &StorageCard{
		RID:      bytes.Clone(aid[:5]),
		Standard: aid[5],
		CardName: bits.Join16(aid[6], aid[7]),
	}
}

// StandardName returns the name of the radio standard, or its hex value.
func (s *StorageCard) StandardName() string {
	if name, ok := standards[s.Standard]; ok {
		return name
	}
	return fmt.Sprintf("Standard 0x%02X", s.Standard)
}

// Name returns the card product name, or its hex value.
func (s *StorageCard) Name() string {
	if name, ok := cardNames[s.CardName]; ok {
		return name
	}
	return fmt.Sprintf("Card 0x%04X", s.CardName)
}

// Describe renders a multi-line report of the ATR.
func (a *ATR) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== ATR REPORT ===\n")
	sb.WriteString(fmt.Sprintf("    + Raw:        %s\n", tlv.Spaced(a.Raw)))

	convention := "Direct"
	if a.TS == TSInverse {
		convention = "Inverse"
	}
	sb.WriteString(fmt.Sprintf("    + TS:         %02X (%s convention)\n", a.TS, convention))

	for i, g := range a.Groups {
		var parts []string
		for _, ib := range []struct {
			name    string
			present bool
			value   byte
		}{{"TA", g.HasTA(), g.TA}, {"TB", g.HasTB(), g.TB}, {"TC", g.HasTC(), g.TC}, {"TD", g.HasTD(), g.TD}} {
			if ib.present {
				parts = append(parts, fmt.Sprintf("%s%d=%02X", ib.name, i+1, ib.value))
			}
		}
		if len(parts) > 0 {
			sb.WriteString(fmt.Sprintf("    + Interface:  %s\n", strings.Join(parts, " ")))
		}
	}

	if len(a.Protocols) > 0 {
		ps := make([]string, len(a.Protocols))
		for i, p := range a.Protocols {
			ps[i] = fmt.Sprintf("T=%d", p)
		}
		sb.WriteString(fmt.Sprintf("    + Protocols:  %s\n", strings.Join(ps, ", ")))
	}

	if len(a.Historical) > 0 {
		sb.WriteString(fmt.Sprintf("    + Historical: %s\n", tlv.Spaced(a.Historical)))
	}

	if a.HasTCK {
		status := "OK"
		if !a.ChecksumValid() {
			status = "INVALID"
		}
		sb.WriteString(fmt.Sprintf("    + TCK:        %02X (%s)\n", a.TCK, status))
	}

	if a.objects != nil {
		var objs strings.Builder
		tlv.WriteStructFields(&objs, "Historical", a.objects)
		if objs.Len() > 0 {
			sb.WriteString("[=] HISTORICAL DATA OBJECTS:\n")
			sb.WriteString(objs.String() + "\n")
		}
	}

	if s := a.Storage; s != nil {
		sb.WriteString("[=] STORAGE CARD:\n")
		sb.WriteString(fmt.Sprintf("    + RID:      %X\n", s.RID))
		sb.WriteString(fmt.Sprintf("    + Standard: %02X -> %s\n", s.Standard, s.StandardName()))
		sb.WriteString(fmt.Sprintf("    + Card:     %04X -> %s\n", s.CardName, s.Name()))
	}

	return strings.TrimRight(sb.String(), "\n")
}
