package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Codebook is a trained set of product-quantizer centroids together with
// the shape needed to interpret them. Centroids is indexed as
// [subspace][centroid][dimension].
type Codebook struct {
	Dim       int
	Subspaces int
	Bits      int
	CreatedAt time.Time
	Centroids [][][]float32
}

// Validate checks that the codebook shape is internally consistent.
func (c *Codebook) Validate() error {
	if c.Dim <= 0 || c.Subspaces <= 0 || c.Dim%c.Subspaces != 0 {
		return fmt.Errorf("%w: dim=%d subspaces=%d", ErrInvalidShape, c.Dim, c.Subspaces)
	}
	if c.Bits < 1 || c.Bits > 8 {
		return fmt.Errorf("%w: bits=%d", ErrInvalidShape, c.Bits)
	}

	k := 1 << c.Bits
	subDim := c.Dim / c.Subspaces

	if len(c.Centroids) != c.Subspaces {
		return fmt.Errorf("%w: got %d subspaces, want %d", ErrInvalidShape, len(c.Centroids), c.Subspaces)
	}
	for m, sub := range c.Centroids {
		if len(sub) != k {
			return fmt.Errorf("%w: subspace %d has %d centroids, want %d", ErrInvalidShape, m, len(sub), k)
		}
		for ci, centroid := range sub {
			if len(centroid) != subDim {
				return fmt.Errorf("%w: centroid %d of subspace %d has dimension %d, want %d", ErrInvalidShape, ci, m, len(centroid), subDim)
			}
		}
	}

	return nil
}

// EncodeOptions configure how an artifact is encoded.
type EncodeOptions struct {
	// Compression selects the payload compression algorithm.
	Compression CompressionType
}

// DefaultEncodeOptions are the options applied when none are given.
var DefaultEncodeOptions = EncodeOptions{
	Compression: CompressionZSTD,
}

// Encode writes the codebook to w as a binary artifact. The payload is
// compressed according to the options; incompressible payloads are stored
// raw regardless of the requested algorithm.
func Encode(w io.Writer, c *Codebook, optFns ...func(o *EncodeOptions)) error {
	opts := DefaultEncodeOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := c.Validate(); err != nil {
		return err
	}

	k := 1 << c.Bits
	subDim := c.Dim / c.Subspaces

	var payload bytes.Buffer
	payload.Grow(c.Subspaces * k * subDim * 4)

	for _, sub := range c.Centroids {
		for _, centroid := range sub {
			if err := writeFloat32Slice(&payload, centroid); err != nil {
				return err
			}
		}
	}

	stored, compression, err := compressPayload(payload.Bytes(), opts.Compression)
	if err != nil {
		return err
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	header := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: uint8(compression),
		Dim:         uint32(c.Dim),
		Subspaces:   uint32(c.Subspaces),
		Bits:        uint32(c.Bits),
		CreatedAt:   createdAt.UnixNano(),
		RawSize:     uint32(payload.Len()),
		StoredSize:  uint32(len(stored)),
		Checksum:    CalculateChecksum(stored),
	}

	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	if _, err := w.Write(stored); err != nil {
		return err
	}

	return nil
}

// Decode reads a codebook artifact from r. The header and checksum are
// validated before any centroid data is interpreted.
func Decode(r io.Reader) (*Codebook, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}

	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, header.Version)
	}

	dim := int(header.Dim)
	subspaces := int(header.Subspaces)
	bits := int(header.Bits)

	if dim <= 0 || subspaces <= 0 || dim%subspaces != 0 || bits < 1 || bits > 8 {
		return nil, fmt.Errorf("%w: dim=%d subspaces=%d bits=%d", ErrInvalidShape, dim, subspaces, bits)
	}

	k := 1 << bits
	subDim := dim / subspaces

	if header.RawSize != uint32(subspaces*k*subDim*4) {
		return nil, fmt.Errorf("%w: payload size %d does not match dim=%d subspaces=%d bits=%d", ErrInvalidShape, header.RawSize, dim, subspaces, bits)
	}

	cr := NewChecksumReader(r)
	stored := make([]byte, header.StoredSize)
	if _, err := io.ReadFull(cr, stored); err != nil {
		return nil, err
	}
	if err := cr.Verify(header.Checksum); err != nil {
		return nil, err
	}

	payload, err := decompressPayload(stored, CompressionType(header.Compression), header.RawSize)
	if err != nil {
		return nil, err
	}

	pr := bytes.NewReader(payload)
	centroids := make([][][]float32, subspaces)
	for m := range centroids {
		centroids[m] = make([][]float32, k)
		for ci := range centroids[m] {
			centroid := make([]float32, subDim)
			if err := readFloat32SliceInto(pr, centroid); err != nil {
				return nil, err
			}
			centroids[m][ci] = centroid
		}
	}

	return &Codebook{
		Dim:       dim,
		Subspaces: subspaces,
		Bits:      bits,
		CreatedAt: time.Unix(0, header.CreatedAt),
		Centroids: centroids,
	}, nil
}

// Save writes the codebook to path. The artifact is written to a temporary
// file first and renamed into place, so an existing artifact at path is
// replaced atomically.
func Save(path string, c *Codebook, optFns ...func(o *EncodeOptions)) error {
	return SaveToFile(path, func(w io.Writer) error {
		return Encode(w, c, optFns...)
	})
}

// Load reads a codebook artifact from path.
func Load(path string) (*Codebook, error) {
	var c *Codebook

	if err := LoadFromFile(path, func(r io.Reader) error {
		var err error
		c, err = Decode(r)
		return err
	}); err != nil {
		return nil, err
	}

	return c, nil
}
