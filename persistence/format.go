package persistence

import "errors"

const (
	// MagicNumber identifies codebook artifact files (ASCII: "SVCB")
	MagicNumber = 0x53564342
	// Version is the current artifact format version
	Version = 1
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrInvalidShape   = errors.New("invalid codebook shape")
)

// FileHeader is the 64-byte header at the start of every codebook artifact.
// All multi-byte fields are little-endian.
type FileHeader struct {
	Magic       uint32 // 0x53564342 ("SVCB")
	Version     uint32 // Artifact format version
	Compression uint8  // CompressionType of the stored payload
	Padding     [3]byte
	Dim         uint32   // Vector dimensionality
	Subspaces   uint32   // Number of subquantizers
	Bits        uint32   // Bits per code (1..8)
	CreatedAt   int64    // UnixNano timestamp
	RawSize     uint32   // Payload bytes before compression
	StoredSize  uint32   // Payload bytes as stored
	Checksum    uint32   // CRC32 of the stored payload
	Reserved    [20]byte // Future use
}

const headerSize = 64
