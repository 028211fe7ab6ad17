// Package cache keeps synthesized verse audio in two levels: an in-memory
// LRU (L1) and a zstd-compressed directory that survives restarts (L2).
package cache
