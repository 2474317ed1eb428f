package tlv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/moov-io/bertlv"
)

type nestedTemplate struct {
	Version []byte `tlv:"82"`
}

type testTemplate struct {
	AID     []byte          `tlv:"4F"`
	Label   []byte          `tlv:"50"`
	Details nestedTemplate  `tlv:"A5"`
	Extra   *nestedTemplate `tlv:"A6"`
	Other   []bertlv.TLV    `tlv:",unknown"`
}

func TestUnmarshal(t *testing.T) {
	rawData := Hex(
		"4F 0C A0 00 00 03 06 03 00 01 00 00 00 00", // PC/SC storage card AID
		"50 03 414243", // Label "ABC"
		"A5 03 8201FF", // nested template
		"A6 03 820102", // nested template behind a pointer
		"DF01 01 BB",   // unknown tag
	)

	var result testTemplate
	if err := Unmarshal(rawData, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !bytes.Equal(result.AID, Hex("A0 00 00 03 06 03 00 01 00 00 00 00")) {
		t.Errorf("AID = %X", result.AID)
	}
	if string(result.Label) != "ABC" {
		t.Errorf("Label = %q, want ABC", result.Label)
	}
	if !bytes.Equal(result.Details.Version, []byte{0xFF}) {
		t.Errorf("nested Version = %X, want FF", result.Details.Version)
	}
	if result.Extra == nil || !bytes.Equal(result.Extra.Version, []byte{0x01, 0x02}) {
		t.Errorf("pointer template not decoded: %+v", result.Extra)
	}
	if len(result.Other) != 1 || strings.ToUpper(result.Other[0].Tag) != "DF01" {
		t.Errorf("Unknown tag DF01 not captured correctly: %+v", result.Other)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	t.Run("Non-pointer target", func(t *testing.T) {
		err := Unmarshal([]byte{0x4F, 0x00}, testTemplate{})
		if err == nil || !strings.Contains(err.Error(), "pointer") {
			t.Errorf("Expected pointer error, got %v", err)
		}
	})
}
