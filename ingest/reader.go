// Package ingest reads the binary sense-embedding interchange format and
// bulk-loads the result into a vector store.
//
// Two file kinds exist, both little-endian:
//
//	vocab.bin:
//	  count int32
//	  per record: wordLen int32, word (UTF-8 bytes), wordID int32
//
//	sense_embeddings.bin:
//	  count int32, dim int32
//	  per record: wordLen int32, word (UTF-8 bytes), senseID int32,
//	              dim float32 values
//
// Readers validate every length field before allocating, so a corrupt or
// truncated stream fails with a positioned error instead of an OOM.
package ingest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/sensevec/distance"
)

const (
	// maxLabelLen bounds a single word entry. Longer lengths indicate a
	// corrupt stream, not a real vocabulary entry.
	maxLabelLen = 1 << 16

	// maxDim bounds the embedding dimensionality a header may declare.
	maxDim = 1 << 16
)

// SenseRecord is one word sense with its embedding.
type SenseRecord struct {
	Word    string
	SenseID int32
	Vector  []float32
}

// SenseEmbeddings is a fully parsed embedding dump.
type SenseEmbeddings struct {
	Dim     int
	Records []SenseRecord
}

// ReadOptions configure how an embedding dump is parsed.
type ReadOptions struct {
	// NormalizeL2 scales every vector to unit length after reading.
	// Zero vectors are kept as-is.
	NormalizeL2 bool
}

// ReadSenseEmbeddings parses a sense_embeddings.bin stream.
func ReadSenseEmbeddings(r io.Reader, optFns ...func(o *ReadOptions)) (*SenseEmbeddings, error) {
	var opts ReadOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	br := bufio.NewReader(r)
	var scratch [4]byte

	count, err := readInt32(br, &scratch)
	if err != nil {
		return nil, fmt.Errorf("ingest: read record count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("ingest: negative record count %d", count)
	}

	dim, err := readInt32(br, &scratch)
	if err != nil {
		return nil, fmt.Errorf("ingest: read dimension: %w", err)
	}
	if dim <= 0 || dim > maxDim {
		return nil, fmt.Errorf("ingest: invalid dimension %d", dim)
	}

	emb := &SenseEmbeddings{
		Dim:     int(dim),
		Records: make([]SenseRecord, 0, count),
	}

	vecBytes := make([]byte, 4*dim)

	for i := int32(0); i < count; i++ {
		word, err := readLabel(br, &scratch)
		if err != nil {
			return nil, fmt.Errorf("ingest: record %d: %w", i, err)
		}

		senseID, err := readInt32(br, &scratch)
		if err != nil {
			return nil, fmt.Errorf("ingest: record %d: read sense id: %w", i, err)
		}

		if _, err := io.ReadFull(br, vecBytes); err != nil {
			return nil, fmt.Errorf("ingest: record %d: read vector: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(vecBytes[j*4:]))
		}

		if opts.NormalizeL2 {
			distance.NormalizeL2InPlace(vec)
		}

		emb.Records = append(emb.Records, SenseRecord{
			Word:    word,
			SenseID: senseID,
			Vector:  vec,
		})
	}

	return emb, nil
}

// ReadVocab parses a vocab.bin stream into a word to ID mapping.
// When a word appears more than once, the last entry wins.
func ReadVocab(r io.Reader) (map[string]int32, error) {
	br := bufio.NewReader(r)
	var scratch [4]byte

	count, err := readInt32(br, &scratch)
	if err != nil {
		return nil, fmt.Errorf("ingest: read vocab count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("ingest: negative vocab count %d", count)
	}

	vocab := make(map[string]int32, count)

	for i := int32(0); i < count; i++ {
		word, err := readLabel(br, &scratch)
		if err != nil {
			return nil, fmt.Errorf("ingest: vocab entry %d: %w", i, err)
		}

		id, err := readInt32(br, &scratch)
		if err != nil {
			return nil, fmt.Errorf("ingest: vocab entry %d: read word id: %w", i, err)
		}

		vocab[word] = id
	}

	return vocab, nil
}

func readInt32(br *bufio.Reader, scratch *[4]byte) (int32, error) {
	if _, err := io.ReadFull(br, scratch[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(scratch[:])), nil
}

func readLabel(br *bufio.Reader, scratch *[4]byte) (string, error) {
	n, err := readInt32(br, scratch)
	if err != nil {
		return "", fmt.Errorf("read word length: %w", err)
	}
	if n < 0 || n > maxLabelLen {
		return "", fmt.Errorf("invalid word length %d", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", fmt.Errorf("read word: %w", err)
	}
	return string(buf), nil
}
