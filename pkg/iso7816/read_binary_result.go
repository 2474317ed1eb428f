package iso7816

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/nfc-reader/pkg/bits"
	"github.com/gregLibert/nfc-reader/pkg/tlv"
)

// ReadBinaryResult represents the outcome of a block read on a memory card:
// the interleaved LOAD KEYS, GENERAL AUTHENTICATE and READ BINARY exchanges.
type ReadBinaryResult struct {
	Trace
}

// NewReadBinaryResult wraps a trace made only of reader memory-card commands.
func NewReadBinaryResult(t Trace) (*ReadBinaryResult, error) {
	if len(t) == 0 {
		return nil, errors.New("cannot create result from empty trace")
	}

	for i, tx := range t {
		if tx.Command == nil || tx.Response == nil {
			return nil, fmt.Errorf("transaction %d is incomplete", i)
		}
		switch tx.Command.Instruction.Raw {
		case INS_LOAD_KEYS, INS_GENERAL_AUTHENTICATE, INS_READ_BINARY:
		default:
			return nil, fmt.Errorf("unexpected command in read trace: %s (%02X)",
				tx.Command.Instruction.Raw, byte(tx.Command.Instruction.Raw))
		}
	}

	return &ReadBinaryResult{Trace: t}, nil
}

// Data concatenates the payload of every READ BINARY in order.
// It returns nil unless every exchange of the trace succeeded.
func (r *ReadBinaryResult) Data() []byte {
	if !r.IsSuccess() {
		return nil
	}
	var buf bytes.Buffer
	for _, tx := range r.Filter(INS_READ_BINARY) {
		buf.Write(tx.Response.Data)
	}
	return buf.Bytes()
}

// Describe generates a detailed, ASCII-formatted report of the read operation.
func (r *ReadBinaryResult) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== READ BINARY REPORT ===\n")

	for i, tx := range r.Trace {
		cmd := tx.Command

		switch cmd.Instruction.Raw {
		case INS_LOAD_KEYS:
			sb.WriteString(fmt.Sprintf("[%d] Command: LOAD KEYS\n", i+1))
			sb.WriteString(fmt.Sprintf("    + Slot:    %02X\n", cmd.P2))
		case INS_GENERAL_AUTHENTICATE:
			sb.WriteString(fmt.Sprintf("[%d] Command: GENERAL AUTHENTICATE\n", i+1))
			if len(cmd.Data) == 5 {
				sb.WriteString(fmt.Sprintf("    + Block:   %d\n", bits.Join16(cmd.Data[1], cmd.Data[2])))
				sb.WriteString(fmt.Sprintf("    + Key:     %s (slot %02X)\n", KeyTypeName(cmd.Data[3]), cmd.Data[4]))
			}
		case INS_READ_BINARY:
			sb.WriteString(fmt.Sprintf("[%d] Command: READ BINARY\n", i+1))
			sb.WriteString(fmt.Sprintf("    + Block:   %d\n", bits.Join16(cmd.P1, cmd.P2)))
			sb.WriteString(fmt.Sprintf("    + Le:      %d\n", cmd.Ne))
		}

		sw := tx.Response.Status
		resultMsg := "[OK]"
		resultDesc := "SW_NO_ERROR"
		if !sw.IsSuccess() {
			resultMsg = "[!!]"
			resultDesc = sw.Verbose()
		}
		sb.WriteString(fmt.Sprintf("    + Result:  [%02X %02X] %s %s\n", sw.SW1(), sw.SW2(), resultMsg, resultDesc))
	}

	sb.WriteString("\n")
	sb.WriteString("[=] DATA OUTCOME:\n")

	data := r.Data()
	switch {
	case !r.IsSuccess():
		last := r.Last()
		sb.WriteString(fmt.Sprintf("    - Aborted on %s: %s\n", last.Command.Instruction.Raw, last.Response.Status.Verbose()))
	case len(data) > 0:
		sb.WriteString(fmt.Sprintf("    + Length: %d bytes\n", len(data)))
		sb.WriteString(fmt.Sprintf("    + Dump:   %X\n", data))
		sb.WriteString(fmt.Sprintf("    + ASCII:  %q\n", tlv.MakeSafeASCII(data)))
	default:
		sb.WriteString("    - No Data Received.\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
