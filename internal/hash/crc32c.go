// Package hash provides the CRC32-Castagnoli checksum used for upload
// integrity validation. Go's crc32 package picks hardware instructions
// (SSE4.2, ARM CRC) when available.
package hash

import "hash/crc32"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}
