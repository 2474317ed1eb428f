package contactless

import (
	"fmt"

	"github.com/gregLibert/nfc-reader/pkg/bits"
	"github.com/gregLibert/nfc-reader/pkg/iso7816"
)

// CHUNKING:
// A logical read (start block, length in bytes) larger than the profile's packet size
// is cut into ceil(length / maxPacket) physical reads. Chunk i starts at
//
//	start + floor(i * maxPacket / blockSize)
//
// so a 16-byte packet over 4-byte blocks advances the address by 4 blocks. Every
// chunk is maxPacket bytes long except the last, which takes the remainder.

// Chunk is one physical read.
type Chunk struct {
	Block  uint16
	Length int
}

// Chunks partitions a logical read. A length equal to maxPacket is a single chunk.
// Non-positive sizes, and chunks addressed beyond block 0xFFFF, are ErrInvalidParameter.
func Chunks(start uint16, length, blockSize, maxPacket int) ([]Chunk, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: read length %d", ErrInvalidParameter, length)
	}
	if blockSize <= 0 || maxPacket <= 0 {
		return nil, fmt.Errorf("%w: block size %d, packet size %d", ErrInvalidParameter, blockSize, maxPacket)
	}

	if length <= maxPacket {
		return []Chunk{{Block: start, Length: length}}, nil
	}

	n := (length + maxPacket - 1) / maxPacket
	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		block := int(start) + (i*maxPacket)/blockSize
		if block > 0xFFFF {
			return nil, fmt.Errorf("%w: chunk %d addresses block %d", ErrInvalidParameter, i, block)
		}
		size := maxPacket
		if i == n-1 {
			size = length - i*maxPacket
		}
		chunks = append(chunks, Chunk{Block: uint16(block), Length: size})
	}
	return chunks, nil
}

// BlockReader reads raw bytes from the card of one transaction, authenticating
// every physical read first.
type BlockReader struct {
	client  *iso7816.Client
	auth    *Authenticator
	profile Profile
	class   iso7816.Class
}

// NewBlockReader reads with profile through client. The profile must be readable.
func NewBlockReader(client *iso7816.Client, profile Profile, auth *Authenticator) (*BlockReader, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &BlockReader{
		client:  client,
		auth:    auth,
		profile: profile,
		class:   iso7816.NewClass(profile.Class),
	}, nil
}

// Read returns length bytes starting at block start. The first failing chunk aborts
// the whole read and no data is returned.
func (r *BlockReader) Read(start uint16, length int) ([]byte, error) {
	chunks, err := Chunks(start, length, r.profile.BlockSize, r.profile.MaxPacketSize)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, length)
	for _, c := range chunks {
		data, err := r.readPacket(c)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

// ReadBlocks reads size bytes from each block in order, authenticating each one.
func (r *BlockReader) ReadBlocks(blocks []uint16, size int) ([]byte, error) {
	if size <= 0 || size > r.profile.MaxPacketSize {
		return nil, fmt.Errorf("%w: block read size %d (1..%d)", ErrInvalidParameter, size, r.profile.MaxPacketSize)
	}

	out := make([]byte, 0, len(blocks)*size)
	for _, b := range blocks {
		data, err := r.readPacket(Chunk{Block: b, Length: size})
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

func (r *BlockReader) readPacket(c Chunk) ([]byte, error) {
	if err := r.auth.Authenticate(c.Block); err != nil {
		return nil, err
	}

	cmd := iso7816.ReadBinary(r.class, c.Block, c.Length)
	if r.profile.ReadInstruction != iso7816.INS_READ_BINARY {
		p1, p2 := bits.Split16(c.Block)
		cmd = iso7816.NewCommandAPDU(r.class, iso7816.MustInstruction(r.profile.ReadInstruction), p1, p2, nil, c.Length)
	}

	resp, err := r.client.Send(cmd)
	if err := exchangeError(opRead, c.Block, resp, err, ErrReadFailed); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// SectorLayout describes a sector-organized card. The last block of every sector is
// the sector trailer (keys and access bits); block 0 holds manufacturer data.
type SectorLayout struct {
	Sectors         int
	BlocksPerSector int
	BlockSize       int
}

// Classic1K is the layout of a MIFARE Classic 1K: 16 sectors of 4 blocks of 16 bytes.
var Classic1K = SectorLayout{Sectors: 16, BlocksPerSector: 4, BlockSize: 16}

// Validate checks the layout dimensions and that every block fits in 16 bits.
func (l SectorLayout) Validate() error {
	if l.Sectors <= 0 || l.BlocksPerSector < 2 || l.BlockSize <= 0 {
		return fmt.Errorf("%w: sector layout %dx%dx%d", ErrInvalidParameter, l.Sectors, l.BlocksPerSector, l.BlockSize)
	}
	if l.Sectors*l.BlocksPerSector > 0x10000 {
		return fmt.Errorf("%w: %d blocks exceed 16-bit addressing", ErrInvalidParameter, l.Sectors*l.BlocksPerSector)
	}
	return nil
}

// DataBlocks lists the general-purpose blocks in ascending order: everything except
// block 0 and the sector trailers.
func (l SectorLayout) DataBlocks() []uint16 {
	var blocks []uint16
	for s := 0; s < l.Sectors; s++ {
		for b := 0; b < l.BlocksPerSector-1; b++ {
			n := s*l.BlocksPerSector + b
			if n == 0 {
				continue
			}
			blocks = append(blocks, uint16(n))
		}
	}
	return blocks
}
