package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testCodebook builds a small codebook with hand-checkable centroid values
// (dim 8, 2 subspaces, 2 bits, so 4 centroids of 4 dimensions each).
func testCodebook() *Codebook {
	const (
		dim       = 8
		subspaces = 2
		bits      = 2
	)

	k := 1 << bits
	subDim := dim / subspaces

	centroids := make([][][]float32, subspaces)
	for m := range centroids {
		centroids[m] = make([][]float32, k)
		for c := range centroids[m] {
			centroid := make([]float32, subDim)
			for d := range centroid {
				centroid[d] = float32(m)*10 + float32(c) + float32(d)*0.25
			}
			centroids[m][c] = centroid
		}
	}

	return &Codebook{
		Dim:       dim,
		Subspaces: subspaces,
		Bits:      bits,
		CreatedAt: time.Unix(0, 1724572800000000000),
		Centroids: centroids,
	}
}

func codebooksEqual(a, b *Codebook) bool {
	if a.Dim != b.Dim || a.Subspaces != b.Subspaces || a.Bits != b.Bits {
		return false
	}
	if len(a.Centroids) != len(b.Centroids) {
		return false
	}
	for m := range a.Centroids {
		if len(a.Centroids[m]) != len(b.Centroids[m]) {
			return false
		}
		for c := range a.Centroids[m] {
			if len(a.Centroids[m][c]) != len(b.Centroids[m][c]) {
				return false
			}
			for d := range a.Centroids[m][c] {
				if a.Centroids[m][c][d] != b.Centroids[m][c][d] {
					return false
				}
			}
		}
	}
	return true
}

func TestCodebookEncodeDecode(t *testing.T) {
	for _, compression := range []CompressionType{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			original := testCodebook()

			var buf bytes.Buffer
			err := Encode(&buf, original, func(o *EncodeOptions) {
				o.Compression = compression
			})
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			loaded, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if !codebooksEqual(original, loaded) {
				t.Errorf("decoded codebook differs from original")
			}
			if loaded.CreatedAt.UnixNano() != original.CreatedAt.UnixNano() {
				t.Errorf("CreatedAt mismatch: got %d, want %d", loaded.CreatedAt.UnixNano(), original.CreatedAt.UnixNano())
			}
		})
	}
}

func TestCodebookEncodeDefaultsCreatedAt(t *testing.T) {
	original := testCodebook()
	original.CreatedAt = time.Time{}

	before := time.Now()

	var buf bytes.Buffer
	if err := Encode(&buf, original); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	loaded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if loaded.CreatedAt.Before(before) {
		t.Errorf("CreatedAt not defaulted: got %v, want >= %v", loaded.CreatedAt, before)
	}
}

func TestCodebookCompressionShrinksPayload(t *testing.T) {
	// A larger codebook with repetitive values compresses well (dim 64,
	// 8 subspaces, 8 bits: 64KB of raw centroid data).
	const (
		dim       = 64
		subspaces = 8
		bits      = 8
	)

	k := 1 << bits
	subDim := dim / subspaces
	rawSize := subspaces * k * subDim * 4

	centroids := make([][][]float32, subspaces)
	for m := range centroids {
		centroids[m] = make([][]float32, k)
		for c := range centroids[m] {
			centroid := make([]float32, subDim)
			for d := range centroid {
				centroid[d] = float32(c % 7)
			}
			centroids[m][c] = centroid
		}
	}

	original := &Codebook{Dim: dim, Subspaces: subspaces, Bits: bits, Centroids: centroids}

	var buf bytes.Buffer
	if err := Encode(&buf, original); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if buf.Len() >= headerSize+rawSize {
		t.Errorf("artifact not compressed: %d bytes for %d raw payload bytes", buf.Len(), rawSize)
	}

	loaded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !codebooksEqual(original, loaded) {
		t.Errorf("decoded codebook differs from original")
	}
}

func TestCodebookValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Codebook)
	}{
		{"zero dim", func(c *Codebook) { c.Dim = 0 }},
		{"zero subspaces", func(c *Codebook) { c.Subspaces = 0 }},
		{"indivisible dim", func(c *Codebook) { c.Dim = 7 }},
		{"zero bits", func(c *Codebook) { c.Bits = 0 }},
		{"too many bits", func(c *Codebook) { c.Bits = 9 }},
		{"missing subspace", func(c *Codebook) { c.Centroids = c.Centroids[:1] }},
		{"missing centroid", func(c *Codebook) { c.Centroids[1] = c.Centroids[1][:3] }},
		{"short centroid", func(c *Codebook) { c.Centroids[0][2] = c.Centroids[0][2][:2] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCodebook()
			tt.mutate(c)

			if err := c.Validate(); !errors.Is(err, ErrInvalidShape) {
				t.Errorf("Validate: got %v, want ErrInvalidShape", err)
			}

			var buf bytes.Buffer
			if err := Encode(&buf, c); !errors.Is(err, ErrInvalidShape) {
				t.Errorf("Encode: got %v, want ErrInvalidShape", err)
			}
		})
	}

	if err := testCodebook().Validate(); err != nil {
		t.Errorf("Validate on valid codebook: %v", err)
	}
}

func TestCodebookDecodeCorruption(t *testing.T) {
	// Encode without compression so header field offsets map directly onto
	// the raw payload at byte 64.
	encode := func(t *testing.T) []byte {
		t.Helper()
		var buf bytes.Buffer
		err := Encode(&buf, testCodebook(), func(o *EncodeOptions) {
			o.Compression = CompressionNone
		})
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		return buf.Bytes()
	}

	t.Run("bad magic", func(t *testing.T) {
		data := encode(t)
		data[0] ^= 0xFF
		if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrInvalidMagic) {
			t.Errorf("got %v, want ErrInvalidMagic", err)
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		data := encode(t)
		binary.LittleEndian.PutUint32(data[4:8], 99)
		if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("got %v, want ErrInvalidVersion", err)
		}
	})

	t.Run("unknown compression", func(t *testing.T) {
		data := encode(t)
		data[8] = 7
		if _, err := Decode(bytes.NewReader(data)); err == nil {
			t.Errorf("expected error for unknown compression type")
		}
	})

	t.Run("bad bits", func(t *testing.T) {
		data := encode(t)
		binary.LittleEndian.PutUint32(data[20:24], 9)
		if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrInvalidShape) {
			t.Errorf("got %v, want ErrInvalidShape", err)
		}
	})

	t.Run("raw size mismatch", func(t *testing.T) {
		data := encode(t)
		binary.LittleEndian.PutUint32(data[32:36], 12)
		if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrInvalidShape) {
			t.Errorf("got %v, want ErrInvalidShape", err)
		}
	})

	t.Run("corrupted payload", func(t *testing.T) {
		data := encode(t)
		data[headerSize+3] ^= 0xFF
		_, err := Decode(bytes.NewReader(data))
		if !IsChecksumMismatch(err) {
			t.Errorf("got %v, want checksum mismatch", err)
		}
	})

	t.Run("truncated header", func(t *testing.T) {
		data := encode(t)
		if _, err := Decode(bytes.NewReader(data[:32])); err == nil {
			t.Errorf("expected error for truncated header")
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		data := encode(t)
		if _, err := Decode(bytes.NewReader(data[:len(data)-8])); err == nil {
			t.Errorf("expected error for truncated payload")
		}
	})
}

func TestCodebookSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codebook.bin")

	original := testCodebook()
	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !codebooksEqual(original, loaded) {
		t.Errorf("loaded codebook differs from original")
	}

	// Saving again replaces the artifact in place.
	replacement := testCodebook()
	replacement.Centroids[0][0][0] = 42
	if err := Save(path, replacement); err != nil {
		t.Fatalf("Save (replace) failed: %v", err)
	}

	loaded, err = Load(path)
	if err != nil {
		t.Fatalf("Load (replace) failed: %v", err)
	}
	if loaded.Centroids[0][0][0] != 42 {
		t.Errorf("replacement not visible: got %f, want 42", loaded.Centroids[0][0][0])
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected files in directory: %v", names)
	}
}

func TestCodebookLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}
