// Package cache provides block caching for blob reads.
//
// Remote artifact stores (S3, MinIO) serve reads over the network, so
// repeated scans of the same code blocks pay the round trip every time.
// A BlockCache keyed by blob name and block index keeps hot blocks close.
//
// # RAM cache
//
// LRU is a mutex-guarded LRU with a byte capacity. Sharded splits the
// capacity across 64 LRU shards to cut lock contention under concurrent
// search load.
//
// # Disk cache
//
// DiskCache persists blocks under a root directory as an L2 tier for
// cloud backends. Writes happen in the background off the read path,
// and the index is rebuilt from disk on startup.
package cache
