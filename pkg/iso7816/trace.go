package iso7816

// TRANSACTION:
// A Transaction is one Command APDU sent by the host followed by the Response APDU
// returned by the card (or by the reader for pseudo-APDUs).
//
// TRACE:
// A Trace is a chronological sequence of Transactions. A single logical read on a
// contactless memory card is several physical exchanges: one GENERAL AUTHENTICATE and
// one READ BINARY per packet. The Trace keeps the whole conversation so reports can
// show which block failed and with which status word.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with status 9000.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status == SW_NO_ERROR
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports whether every transaction in the trace succeeded.
// An empty trace is not a success.
func (t Trace) IsSuccess() bool {
	if len(t) == 0 {
		return false
	}
	for i := range t {
		if !t[i].IsSuccess() {
			return false
		}
	}
	return true
}

// Filter returns the transactions whose instruction matches ins.
func (t Trace) Filter(ins InsCode) Trace {
	var out Trace
	for _, tx := range t {
		if tx.Command != nil && tx.Command.Instruction.Raw == ins {
			out = append(out, tx)
		}
	}
	return out
}
