// Package mmap provides read-only memory-mapped file access.
//
// Codebook and code-block artifacts are written once and then read many
// times; mapping them avoids copying file contents through user-space
// buffers and lets the kernel share pages between processes.
//
// # Usage
//
//	m, err := mmap.Open("codebook.svcb")
//	if err != nil { ... }
//	defer m.Close()
//
//	// Zero-copy access to file contents
//	data := m.Bytes()
//
//	// View a byte range without copying
//	r, _ := m.Region(offset, size)
//
//	// Hint the expected access pattern to the kernel
//	_ = m.Advise(mmap.AccessSequential)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (Advise is a no-op)
//
// # Thread Safety
//
// Mapping and Region are safe for concurrent reads. Close is idempotent.
// Callers must not touch slices returned by Bytes after Close returns.
package mmap
