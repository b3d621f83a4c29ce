package persistence

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestCompressPayloadRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("sensevec codebook payload "), 512)

	for _, compression := range []CompressionType{CompressionLZ4, CompressionZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			stored, reported, err := compressPayload(data, compression)
			if err != nil {
				t.Fatalf("compressPayload failed: %v", err)
			}
			if reported != compression {
				t.Fatalf("reported type %v, want %v", reported, compression)
			}
			if len(stored) >= len(data) {
				t.Errorf("compressed size %d not smaller than input %d", len(stored), len(data))
			}

			restored, err := decompressPayload(stored, reported, uint32(len(data)))
			if err != nil {
				t.Fatalf("decompressPayload failed: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Errorf("restored payload differs from input")
			}
		})
	}
}

func TestCompressPayloadIncompressible(t *testing.T) {
	// Random bytes do not compress; compressPayload stores them raw and
	// reports CompressionNone.
	data := make([]byte, 4096)
	rng := rand.New(rand.NewSource(42))
	rng.Read(data)

	for _, compression := range []CompressionType{CompressionLZ4, CompressionZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			stored, reported, err := compressPayload(data, compression)
			if err != nil {
				t.Fatalf("compressPayload failed: %v", err)
			}
			if reported != CompressionNone {
				t.Fatalf("reported type %v, want CompressionNone", reported)
			}
			if !bytes.Equal(stored, data) {
				t.Errorf("raw fallback altered the payload")
			}

			restored, err := decompressPayload(stored, reported, uint32(len(data)))
			if err != nil {
				t.Fatalf("decompressPayload failed: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Errorf("restored payload differs from input")
			}
		})
	}
}

func TestCompressPayloadNone(t *testing.T) {
	data := []byte("uncompressed")

	stored, reported, err := compressPayload(data, CompressionNone)
	if err != nil {
		t.Fatalf("compressPayload failed: %v", err)
	}
	if reported != CompressionNone {
		t.Errorf("reported type %v, want CompressionNone", reported)
	}
	if !bytes.Equal(stored, data) {
		t.Errorf("payload altered")
	}
}

func TestDecompressPayloadSizeMismatch(t *testing.T) {
	data := bytes.Repeat([]byte("ab"), 256)

	if _, err := decompressPayload(data, CompressionNone, uint32(len(data)+1)); err == nil {
		t.Errorf("expected raw size mismatch error")
	}

	stored, reported, err := compressPayload(data, CompressionZSTD)
	if err != nil {
		t.Fatalf("compressPayload failed: %v", err)
	}
	if reported != CompressionZSTD {
		t.Fatalf("reported type %v, want CompressionZSTD", reported)
	}
	if _, err := decompressPayload(stored, reported, uint32(len(data)-1)); err == nil {
		t.Errorf("expected decompressed size mismatch error")
	}
}

func TestCompressionTypeString(t *testing.T) {
	tests := []struct {
		compression CompressionType
		want        string
	}{
		{CompressionNone, "none"},
		{CompressionLZ4, "lz4"},
		{CompressionZSTD, "zstd"},
		{CompressionType(9), "unknown(9)"},
	}

	for _, tt := range tests {
		if got := tt.compression.String(); got != tt.want {
			t.Errorf("String(%d): got %q, want %q", uint8(tt.compression), got, tt.want)
		}
	}
}
