package iso7816

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/nfc-reader/pkg/tlv"
)

type scriptedCard struct {
	replies [][]byte
	errs    []error
	sent    [][]byte
}

func (s *scriptedCard) Transmit(cmd []byte) ([]byte, error) {
	i := len(s.sent)
	s.sent = append(s.sent, cmd)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.replies[i], nil
}

func TestClient_Send(t *testing.T) {
	card := &scriptedCard{replies: [][]byte{tlv.Hex("9000"), tlv.Hex("0102 6300")}}
	var seen []Exchange
	client := NewClient(card)
	client.Observe = func(ex Exchange) { seen = append(seen, ex) }

	reader := NewClass(ReaderClass)

	resp, err := client.Send(GeneralAuthenticate(reader, 4, KeyTypeB, 0x00))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !resp.Status.IsSuccess() {
		t.Errorf("Status = %s, want success", resp.Status.Verbose())
	}

	resp, err = client.Send(ReadBinary(reader, 4, 16))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Status != SW_WARN_NV_CHANGED_NO_INFO {
		t.Errorf("Status = %04X, want 6300", uint16(resp.Status))
	}

	wantSent := [][]byte{tlv.Hex("FF860000050100046100"), tlv.Hex("FFB0000410")}
	if diff := cmp.Diff(wantSent, card.sent); diff != "" {
		t.Errorf("sent commands mismatch (-want +got):\n%s", diff)
	}
	if got := len(client.Trace()); got != 2 {
		t.Errorf("Trace length = %d, want 2", got)
	}
	if len(seen) != 2 || seen[1].Err != nil {
		t.Errorf("observer saw %+v", seen)
	}

	client.Reset()
	if client.Trace() != nil {
		t.Error("Reset() should clear the trace")
	}
}

func TestClient_SendTransportFailure(t *testing.T) {
	boom := errors.New("reader unplugged")
	card := &scriptedCard{errs: []error{boom}}
	client := NewClient(card)

	_, err := client.Send(ReadBinary(NewClass(ReaderClass), 4, 16))

	var te *TransmitError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransmitError", err)
	}
	if te.Ins != INS_READ_BINARY {
		t.Errorf("Ins = %s", te.Ins)
	}
	if !errors.Is(err, boom) {
		t.Error("TransmitError should unwrap to the transport error")
	}
	if len(client.Trace()) != 0 {
		t.Error("failed exchanges must not be recorded")
	}
}

func TestClient_SendMalformed(t *testing.T) {
	card := &scriptedCard{replies: [][]byte{{0x90}}}
	client := NewClient(card)

	_, err := client.Send(ReadBinary(NewClass(ReaderClass), 4, 16))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
	var te *TransmitError
	if errors.As(err, &te) {
		t.Error("malformed response is not a transport failure")
	}
}
