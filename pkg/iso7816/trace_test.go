package iso7816

import (
	"testing"
)

func makeTx(sw StatusWord) Transaction {
	return Transaction{
		Command:  &CommandAPDU{},
		Response: &ResponseAPDU{Status: sw},
	}
}

func TestTransaction_IsSuccess(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{
			name: "Successful Transaction (9000)",
			tx:   makeTx(SW_NO_ERROR),
			want: true,
		},
		{
			name: "Response Available (6110)",
			tx:   makeTx(NewStatusWord(0x61, 0x10)),
			want: false,
		},
		{
			name: "Authentication refused (6300)",
			tx:   makeTx(SW_WARN_NV_CHANGED_NO_INFO),
			want: false,
		},
		{
			name: "Nil Response (Incomplete Transaction)",
			tx:   Transaction{Command: &CommandAPDU{}, Response: nil},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.IsSuccess(); got != tt.want {
				t.Errorf("Transaction.IsSuccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrace_Logic(t *testing.T) {
	t.Run("Empty Trace", func(t *testing.T) {
		var tr Trace
		if tr.Last() != nil {
			t.Error("Empty trace Last() should be nil")
		}
		if tr.IsSuccess() {
			t.Error("Empty trace IsSuccess() should be false")
		}
	})

	t.Run("Single Transaction Trace", func(t *testing.T) {
		tr := Trace{makeTx(SW_NO_ERROR)}
		if tr.Last() == nil {
			t.Fatal("Last() should not be nil")
		}
		if !tr.IsSuccess() {
			t.Error("Should be successful")
		}
	})

	t.Run("Failure in the middle", func(t *testing.T) {
		tr := Trace{
			makeTx(SW_NO_ERROR),
			makeTx(SW_WARN_NV_CHANGED_NO_INFO),
			makeTx(SW_NO_ERROR),
		}
		if tr.IsSuccess() {
			t.Error("Trace should fail if any step failed")
		}
	})

	t.Run("Filter by instruction", func(t *testing.T) {
		reader := NewClass(ReaderClass)
		ok := &ResponseAPDU{Status: SW_NO_ERROR}
		tr := Trace{
			{Command: GeneralAuthenticate(reader, 4, KeyTypeB, 0), Response: ok},
			{Command: ReadBinary(reader, 4, 16), Response: ok},
			{Command: GeneralAuthenticate(reader, 8, KeyTypeB, 0), Response: ok},
			{Command: ReadBinary(reader, 8, 16), Response: ok},
		}

		reads := tr.Filter(INS_READ_BINARY)
		if len(reads) != 2 {
			t.Fatalf("Filter() returned %d transactions, want 2", len(reads))
		}
		if reads[1].Command.P2 != 8 {
			t.Errorf("second read targets block %d, want 8", reads[1].Command.P2)
		}
	})
}
