// Package bits holds the small bit and byte helpers used by the APDU and ATR codecs.
// Bit positions follow the ISO 7816 convention: 1 is the least significant bit, 8 the most.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 3).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// Set returns b with bit n set.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// HighNibble returns bits 8-5 of b.
func HighNibble(b byte) byte {
	return GetRange(b, 8, 5)
}

// LowNibble returns bits 4-1 of b.
func LowNibble(b byte) byte {
	return GetRange(b, 4, 1)
}

// Count returns how many of the bits in the range high..low are set.
func Count(b byte, high, low uint) int {
	n := 0
	for i := low; i <= high; i++ {
		if IsSet(b, i) {
			n++
		}
	}
	return n
}

// Split16 returns the big-endian (high, low) bytes of v.
func Split16(v uint16) (byte, byte) {
	return byte(v >> 8), byte(v)
}

// Join16 combines a big-endian byte pair into a 16-bit value.
func Join16(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}
