package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/nfc-reader/pkg/tlv"
)

func TestReaderCommands(t *testing.T) {
	reader := NewClass(ReaderClass)

	tests := []struct {
		name string
		cmd  *CommandAPDU
		want []byte
	}{
		{
			name: "Authenticate block 4 with key B slot 0",
			cmd:  GeneralAuthenticate(reader, 4, KeyTypeB, 0x00),
			want: tlv.Hex("FF 86 00 00 05 01 00 04 61 00"),
		},
		{
			name: "Authenticate high block with key A slot 1",
			cmd:  GeneralAuthenticate(reader, 0x0102, KeyTypeA, 0x01),
			want: tlv.Hex("FF 86 00 00 05 01 01 02 60 01"),
		},
		{
			name: "Read 16 bytes at block 4",
			cmd:  ReadBinary(reader, 4, 16),
			want: tlv.Hex("FF B0 00 04 10"),
		},
		{
			name: "Read 4 bytes at block 0x0123",
			cmd:  ReadBinary(reader, 0x0123, 4),
			want: tlv.Hex("FF B0 01 23 04"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("APDU mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGeneralAuthenticate_Length(t *testing.T) {
	raw, err := GeneralAuthenticate(NewClass(ReaderClass), 63, KeyTypeB, 0).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 10 {
		t.Errorf("authenticate APDU is %d bytes, want 10", len(raw))
	}
}

func TestLoadKeys(t *testing.T) {
	key := tlv.Hex("FFFFFFFFFFFF")
	cmd, err := LoadKeys(NewClass(ReaderClass), 0x01, key)
	if err != nil {
		t.Fatalf("LoadKeys() error = %v", err)
	}

	got, _ := cmd.Bytes()
	if diff := cmp.Diff(tlv.Hex("FF 82 00 01 06 FFFFFFFFFFFF"), got); diff != "" {
		t.Errorf("APDU mismatch (-want +got):\n%s", diff)
	}

	key[0] = 0x00
	if cmd.Data[0] != 0xFF {
		t.Error("LoadKeys must copy the key")
	}

	if _, err := LoadKeys(NewClass(ReaderClass), 0, tlv.Hex("FFFF")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestKeyTypeName(t *testing.T) {
	for kt, want := range map[byte]string{KeyTypeA: "A", KeyTypeB: "B", 0x10: "0x10"} {
		if got := KeyTypeName(kt); got != want {
			t.Errorf("KeyTypeName(%02X) = %q, want %q", kt, got, want)
		}
	}
}
