// Package cache keeps rendered WAV data so repeated requests for the same
// speaker and input skip the engine. It has an in-memory LRU (L1) and a
// zstd-compressed disk store (L2) that persists across runs.
package cache
