package iso7816

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestCommandAPDU_Encoding(t *testing.T) {
	cls := NewClass(0x00)
	reader := NewClass(ReaderClass)
	insAuth := MustInstruction(INS_GENERAL_AUTHENTICATE)
	insRead := MustInstruction(INS_READ_BINARY)

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected string
	}{
		{
			name:     "Case 1: Header Only (No Data, No Le)",
			cmd:      NewCommandAPDU(cls, insAuth, 0x01, 0x02, nil, 0),
			expected: "00860102",
		},
		{
			name: "Case 3 Short: Authenticate data object",
			cmd:  NewCommandAPDU(reader, insAuth, 0x00, 0x00, []byte{0x01, 0x00, 0x04, 0x61, 0x00}, 0),
			// Lc=05
			expected: "FF860000050100046100",
		},
		{
			name:     "Case 2 Short: Read 16 bytes",
			cmd:      NewCommandAPDU(reader, insRead, 0x00, 0x04, nil, 16),
			expected: "FFB0000410",
		},
		{
			name: "Case 2 Short: Le=MaxShortLe (256)",
			cmd:  NewCommandAPDU(cls, insRead, 0x00, 0x00, nil, MaxShortLe),
			// Le=00 means 256 in Short mode
			expected: "00B0000000",
		},
		{
			name: "Case 4 Short: Data and Le",
			cmd:  NewCommandAPDU(cls, insAuth, 0x00, 0x00, []byte{0x01}, 10),
			// Lc=01, Data=01, Le=0A
			expected: "0086000001010A",
		},
		{
			name: "Case 3 Extended: Data > MaxShortLc",
			cmd: func() *CommandAPDU {
				longData := make([]byte, 260)
				return NewCommandAPDU(cls, insAuth, 0x00, 0x00, longData, 0)
			}(),
			// Lc Extended: 00 (Flag) + 0104 (Len 260) + Data...
			expected: "00860000000104" + hex.EncodeToString(make([]byte, 260)),
		},
		{
			name: "Case 2 Extended: Le=MaxExtendedLe (65536)",
			cmd:  NewCommandAPDU(cls, insRead, 0x00, 0x00, nil, MaxExtendedLe),
			// 00 flag + Le Extended (0000 for 65536)
			expected: "00B00000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotBytes, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Encoding failed: %v", err)
			}
			gotHex := strings.ToUpper(hex.EncodeToString(gotBytes))
			expectedHex := strings.ToUpper(tt.expected)

			if gotHex != expectedHex {
				dispGot := gotHex
				dispExp := expectedHex
				if len(dispGot) > 50 {
					dispGot = dispGot[:20] + "..." + dispGot[len(dispGot)-10:]
					dispExp = dispExp[:20] + "..." + dispExp[len(dispExp)-10:]
				}
				t.Errorf("Mismatch\nExpected: %s\nGot:      %s", dispExp, dispGot)
			}
		})
	}
}

func TestCommandAPDU_EncodingErrors(t *testing.T) {
	cls := NewClass(ReaderClass)
	ins := MustInstruction(INS_READ_BINARY)

	if _, err := NewCommandAPDU(cls, ins, 0, 0, nil, -1).Bytes(); err == nil {
		t.Error("Expected error for negative Ne")
	}
	if _, err := NewCommandAPDU(cls, ins, 0, 0, nil, MaxExtendedLe+1).Bytes(); err == nil {
		t.Error("Expected error for Ne above extended limit")
	}
	if _, err := NewCommandAPDU(cls, ins, 0, 0, make([]byte, MaxExtendedLc+1), 0).Bytes(); err == nil {
		t.Error("Expected error for data above extended limit")
	}
}

func TestParseResponseAPDU(t *testing.T) {
	// Raw: 01 02 03 (Data) | 90 00 (SW)
	raw, _ := hex.DecodeString("0102039000")
	resp, err := ParseResponseAPDU(raw)

	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Errorf("Wrong data length: got %d, want 3", len(resp.Data))
	}
	if resp.Status != SW_NO_ERROR {
		t.Errorf("Wrong status: got %04X, want %04X", uint16(resp.Status), uint16(SW_NO_ERROR))
	}
}

func TestParseResponseAPDU_StatusOnly(t *testing.T) {
	resp, err := ParseResponseAPDU([]byte{0x63, 0x00})
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(resp.Data) != 0 {
		t.Errorf("Expected empty payload, got %X", resp.Data)
	}
	if resp.Status != SW_WARN_NV_CHANGED_NO_INFO {
		t.Errorf("Wrong status: got %04X", uint16(resp.Status))
	}
}

func TestParseResponseAPDU_TooShort(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {0x90}} {
		_, err := ParseResponseAPDU(raw)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("ParseResponseAPDU(%X) error = %v, want ErrMalformedResponse", raw, err)
		}
	}
}
