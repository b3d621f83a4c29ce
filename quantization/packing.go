package quantization

import (
	"errors"
	"fmt"
)

// PackedLen returns the number of bytes needed to hold m codes of nbits each.
func PackedLen(m, nbits int) int {
	return (m*nbits + 7) / 8
}

// PackCodes packs M centroid indices into a tight bit stream. Each code
// occupies exactly nbits bits, concatenated with no padding between fields,
// least-significant-bit first within each byte. A code whose bits straddle a
// byte boundary has its low bits in the current byte and its remaining high
// bits in the next one.
//
// When nbits == 8 packing degenerates to one byte per code. Codes outside
// [0, 2^nbits) are rejected; truncation would corrupt the stream silently.
func PackCodes(codes []byte, nbits int) ([]byte, error) {
	if nbits < 1 || nbits > 8 {
		return nil, fmt.Errorf("quantization: nbits must be between 1 and 8, got %d", nbits)
	}

	if nbits == 8 {
		out := make([]byte, len(codes))
		copy(out, codes)
		return out, nil
	}

	limit := 1 << nbits
	out := make([]byte, PackedLen(len(codes), nbits))

	for j, code := range codes {
		if int(code) >= limit {
			return nil, &CodeRangeError{Subspace: j, Value: int(code), Limit: limit}
		}

		bitOffset := j * nbits
		byteIdx := bitOffset / 8
		bitInByte := bitOffset % 8

		out[byteIdx] |= code << bitInByte
		if bitInByte+nbits > 8 {
			// High bits spill into the next byte.
			out[byteIdx+1] |= code >> (8 - bitInByte)
		}
	}

	return out, nil
}

// UnpackCodes reads m codes of nbits each from a packed bit stream, inverting
// PackCodes. Code j starts at bit offset j*nbits; a straddling value combines
// the low bits from the current byte with the high bits from the next.
func UnpackCodes(packed []byte, m, nbits int) ([]byte, error) {
	if m < 0 {
		return nil, errors.New("quantization: negative code count")
	}

	out := make([]byte, m)
	if err := UnpackCodesTo(out, packed, nbits); err != nil {
		return nil, err
	}
	return out, nil
}

// UnpackCodesTo unpacks len(dst) codes into dst without allocating. Scan
// loops that unpack one row per stored vector reuse a single buffer this
// way.
func UnpackCodesTo(dst, packed []byte, nbits int) error {
	if nbits < 1 || nbits > 8 {
		return fmt.Errorf("quantization: nbits must be between 1 and 8, got %d", nbits)
	}

	m := len(dst)
	if need := PackedLen(m, nbits); len(packed) < need {
		return fmt.Errorf("quantization: packed buffer has %d bytes, need %d for %d codes", len(packed), need, m)
	}

	if nbits == 8 {
		copy(dst, packed[:m])
		return nil
	}

	mask := byte(1<<nbits - 1)

	for j := 0; j < m; j++ {
		bitOffset := j * nbits
		byteIdx := bitOffset / 8
		bitInByte := bitOffset % 8

		if bitInByte+nbits <= 8 {
			dst[j] = (packed[byteIdx] >> bitInByte) & mask
		} else {
			bitsFromFirst := 8 - bitInByte
			bitsFromSecond := nbits - bitsFromFirst
			low := packed[byteIdx] >> bitInByte
			high := packed[byteIdx+1] & (1<<bitsFromSecond - 1)
			dst[j] = low | high<<bitsFromFirst
		}
	}

	return nil
}
