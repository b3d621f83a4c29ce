package quantization

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestPackedLen(t *testing.T) {
	tests := []struct {
		m     int
		nbits int
		want  int
	}{
		{m: 0, nbits: 8, want: 0},
		{m: 1, nbits: 1, want: 1},
		{m: 8, nbits: 1, want: 1},
		{m: 9, nbits: 1, want: 2},
		{m: 3, nbits: 2, want: 1},
		{m: 3, nbits: 3, want: 2},
		{m: 8, nbits: 4, want: 4},
		{m: 5, nbits: 5, want: 4},
		{m: 7, nbits: 7, want: 7},
		{m: 8, nbits: 8, want: 8},
	}

	for _, tt := range tests {
		if got := PackedLen(tt.m, tt.nbits); got != tt.want {
			t.Errorf("PackedLen(%d, %d): expected %d, got %d", tt.m, tt.nbits, tt.want, got)
		}
	}
}

func TestPackCodesLayout(t *testing.T) {
	// Three 3-bit codes occupy nine bits, least significant first:
	// 5=101 in bits 0..2, 1=001 in bits 3..5, 7=111 in bits 6..8.
	// The third code straddles the byte boundary.
	packed, err := PackCodes([]byte{5, 1, 7}, 3)
	if err != nil {
		t.Fatalf("PackCodes failed: %v", err)
	}

	if !bytes.Equal(packed, []byte{0xCD, 0x01}) {
		t.Errorf("Expected [0xCD 0x01], got % X", packed)
	}

	codes, err := UnpackCodes(packed, 3, 3)
	if err != nil {
		t.Fatalf("UnpackCodes failed: %v", err)
	}
	if !bytes.Equal(codes, []byte{5, 1, 7}) {
		t.Errorf("Expected [5 1 7], got %v", codes)
	}
}

func TestPackCodesRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(8))

	for nbits := 1; nbits <= 8; nbits++ {
		for _, m := range []int{1, 3, 8, 13, 64} {
			codes := make([]byte, m)
			for i := range codes {
				codes[i] = byte(rng.Intn(1 << nbits))
			}

			packed, err := PackCodes(codes, nbits)
			if err != nil {
				t.Fatalf("PackCodes(m=%d, nbits=%d) failed: %v", m, nbits, err)
			}
			if len(packed) != PackedLen(m, nbits) {
				t.Errorf("PackCodes(m=%d, nbits=%d): expected %d bytes, got %d",
					m, nbits, PackedLen(m, nbits), len(packed))
			}

			unpacked, err := UnpackCodes(packed, m, nbits)
			if err != nil {
				t.Fatalf("UnpackCodes(m=%d, nbits=%d) failed: %v", m, nbits, err)
			}
			if !bytes.Equal(unpacked, codes) {
				t.Errorf("Round trip failed for m=%d, nbits=%d: %v != %v", m, nbits, unpacked, codes)
			}
		}
	}
}

func TestPackCodesEightBitIdentity(t *testing.T) {
	codes := []byte{0, 1, 127, 128, 255}

	packed, err := PackCodes(codes, 8)
	if err != nil {
		t.Fatalf("PackCodes failed: %v", err)
	}
	if !bytes.Equal(packed, codes) {
		t.Errorf("Expected identity layout at 8 bits, got %v", packed)
	}

	// The fast path must still copy, not alias.
	packed[0] = 42
	if codes[0] != 0 {
		t.Error("PackCodes aliased its input at 8 bits")
	}
}

func TestPackCodesRange(t *testing.T) {
	var rangeErr *CodeRangeError
	if _, err := PackCodes([]byte{0, 4, 1}, 2); !errors.As(err, &rangeErr) {
		t.Fatalf("Expected CodeRangeError, got %v", err)
	}
	if rangeErr.Subspace != 1 || rangeErr.Value != 4 || rangeErr.Limit != 4 {
		t.Errorf("Unexpected range error fields: %+v", rangeErr)
	}

	// Maximum value for the width is fine.
	if _, err := PackCodes([]byte{3, 3}, 2); err != nil {
		t.Errorf("PackCodes rejected in-range code: %v", err)
	}
}

func TestPackCodesInvalidBits(t *testing.T) {
	if _, err := PackCodes([]byte{0}, 0); err == nil {
		t.Error("Expected error for zero bits")
	}
	if _, err := PackCodes([]byte{0}, 9); err == nil {
		t.Error("Expected error for nine bits")
	}
	if _, err := UnpackCodes([]byte{0}, 1, 0); err == nil {
		t.Error("Expected error for zero bits")
	}
	if _, err := UnpackCodes([]byte{0}, 1, 9); err == nil {
		t.Error("Expected error for nine bits")
	}
}

func TestUnpackCodesShortBuffer(t *testing.T) {
	if _, err := UnpackCodes([]byte{0xFF}, 3, 3); err == nil {
		t.Error("Expected error for short buffer")
	}
	if _, err := UnpackCodes(nil, 1, 1); err == nil {
		t.Error("Expected error for nil buffer")
	}

	// Zero codes need zero bytes.
	codes, err := UnpackCodes(nil, 0, 4)
	if err != nil {
		t.Fatalf("UnpackCodes failed for empty input: %v", err)
	}
	if len(codes) != 0 {
		t.Errorf("Expected no codes, got %v", codes)
	}
}

func TestUnpackCodesTo(t *testing.T) {
	packed, err := PackCodes([]byte{6, 1, 4}, 3)
	if err != nil {
		t.Fatalf("PackCodes failed: %v", err)
	}

	// A reused scratch buffer must be fully overwritten.
	dst := []byte{0xFF, 0xFF, 0xFF}
	if err := UnpackCodesTo(dst, packed, 3); err != nil {
		t.Fatalf("UnpackCodesTo failed: %v", err)
	}
	if !bytes.Equal(dst, []byte{6, 1, 4}) {
		t.Errorf("Expected [6 1 4], got %v", dst)
	}

	if err := UnpackCodesTo(make([]byte, 5), packed, 3); err == nil {
		t.Error("Expected error for short buffer")
	}
}

func TestUnpackCodesIgnoresTrailingBits(t *testing.T) {
	// Two 3-bit codes use six bits; the top two bits of the byte are
	// unused padding and must not leak into the decoded values.
	packed := []byte{0b11_101_011}

	codes, err := UnpackCodes(packed, 2, 3)
	if err != nil {
		t.Fatalf("UnpackCodes failed: %v", err)
	}
	if !bytes.Equal(codes, []byte{0b011, 0b101}) {
		t.Errorf("Expected [3 5], got %v", codes)
	}
}

func BenchmarkPackCodes(b *testing.B) {
	rng := rand.New(rand.NewSource(9))
	codes := make([]byte, 16)
	for i := range codes {
		codes[i] = byte(rng.Intn(16))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = PackCodes(codes, 4)
	}
}

func BenchmarkUnpackCodes(b *testing.B) {
	rng := rand.New(rand.NewSource(10))
	codes := make([]byte, 16)
	for i := range codes {
		codes[i] = byte(rng.Intn(16))
	}
	packed, _ := PackCodes(codes, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = UnpackCodes(packed, 16, 4)
	}
}
