package pcsctest

import (
	"bytes"

	"github.com/gregLibert/nfc-reader/internal/syncutil"
	"github.com/gregLibert/nfc-reader/pkg/bits"
	"github.com/gregLibert/nfc-reader/pkg/iso7816"
)

// Reply is a scripted answer to one transmitted command.
type Reply struct {
	Data []byte
	Err  error
}

// Card simulates a memory card behind a PC/SC reader answering reader pseudo-APDUs.
// A READ BINARY is only served for the block named by the last successful
// GENERAL AUTHENTICATE.
type Card struct {
	mu syncutil.Mutex

	ATR    []byte
	ATRErr error

	BlockSize int
	Memory    []byte

	// AuthStatus and ReadStatus force the status word answered for a block.
	AuthStatus map[uint16]iso7816.StatusWord
	ReadStatus map[uint16]iso7816.StatusWord

	// Replies, while not exhausted, answer commands in order instead of the simulation.
	Replies []Reply

	sent          [][]byte
	authenticated int
	keys          map[byte][]byte
}

// NewMemoryCard returns a card holding memory, addressed in blocks of blockSize bytes.
func NewMemoryCard(atr []byte, blockSize int, memory []byte) *Card {
	return &Card{
		ATR:           atr,
		BlockSize:     blockSize,
		Memory:        memory,
		AuthStatus:    map[uint16]iso7816.StatusWord{},
		ReadStatus:    map[uint16]iso7816.StatusWord{},
		authenticated: -1,
		keys:          map[byte][]byte{},
	}
}

// Pattern returns n bytes where byte i is i modulo 256.
func Pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// Sent returns every command received, in order.
func (c *Card) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	for i, s := range c.sent {
		out[i] = bytes.Clone(s)
	}
	return out
}

// Key returns the key loaded in a reader slot.
func (c *Card) Key(slot byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[slot]
}

func (c *Card) Transmit(cmd []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, bytes.Clone(cmd))

	if len(c.Replies) > 0 {
		r := c.Replies[0]
		c.Replies = c.Replies[1:]
		return r.Data, r.Err
	}

	return c.simulate(cmd), nil
}

func status(sw iso7816.StatusWord, data ...byte) []byte {
	return append(data, sw.SW1(), sw.SW2())
}

func (c *Card) simulate(cmd []byte) []byte {
	if len(cmd) < 4 {
		return status(iso7816.SW_ERR_WRONG_LENGTH)
	}
	if cmd[0] != iso7816.ReaderClass {
		return status(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
	}

	switch iso7816.InsCode(cmd[1]) {
	case iso7816.INS_LOAD_KEYS:
		if len(cmd) != 5+iso7816.KeyLength || int(cmd[4]) != iso7816.KeyLength {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		c.keys[cmd[3]] = bytes.Clone(cmd[5:])
		return status(iso7816.SW_NO_ERROR)

	case iso7816.INS_GENERAL_AUTHENTICATE:
		if len(cmd) != 10 || cmd[4] != 5 || cmd[5] != iso7816.AuthenticateVersion {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		block := bits.Join16(cmd[6], cmd[7])
		if sw, ok := c.AuthStatus[block]; ok {
			c.authenticated = -1
			return status(sw)
		}
		c.authenticated = int(block)
		return status(iso7816.SW_NO_ERROR)

	case iso7816.INS_READ_BINARY:
		if len(cmd) != 5 {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		block := bits.Join16(cmd[2], cmd[3])
		if c.authenticated != int(block) {
			return status(iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT)
		}
		if sw, ok := c.ReadStatus[block]; ok {
			return status(sw)
		}
		n := int(cmd[4])
		if n == 0 {
			n = iso7816.MaxShortLe
		}
		off := int(block) * c.BlockSize
		if off+n > len(c.Memory) {
			return status(iso7816.SW_ERR_WRONG_P1P2)
		}
		return status(iso7816.SW_NO_ERROR, bytes.Clone(c.Memory[off:off+n])...)

	default:
		return status(iso7816.SW_ERR_INS_INVALID)
	}
}
