// Package persistence stores trained codebooks as self-describing binary
// artifacts.
//
// An artifact is a 64-byte header (magic, version, shape, compression flag,
// CRC32 checksum) followed by the centroid payload. Decode validates the
// header and verifies the checksum before any centroid data is interpreted,
// so a file written on one machine can be loaded on another. Save writes
// through a temporary file and renames it into place, which makes replacing
// an existing artifact atomic on POSIX filesystems.
//
// PLATFORM REQUIREMENTS:
// - Architecture: amd64 or arm64 only
// - Endianness: Little-endian (native on x86_64 and ARM64)
//
// The unsafe operations in this package are verified at runtime with alignment
// checks and platform validation. See safety.go for implementation details.
package persistence
