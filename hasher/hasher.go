// Package hasher computes content fingerprints for fetched files.
package hasher

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"sync"

	"sysvolscan/logger"

	"lukechampine.com/blake3"
)

const hashBufferSize = 32 * 1024

var hashBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSize)
		return &buf
	},
}

func newHash(algo string) (hash.Hash, bool) {
	switch algo {
	case "md5":
		return md5.New(), true
	case "sha1":
		return sha1.New(), true
	case "sha256":
		return sha256.New(), true
	case "blake3":
		return blake3.New(32, nil), true
	default:
		return nil, false
	}
}

// ComputeHashes reads r once and returns hex digests keyed by algorithm.
// Unknown algorithms are logged and skipped; a read error yields no digests.
func ComputeHashes(r io.Reader, algorithms []string) map[string]string {
	hashes := make(map[string]string, len(algorithms))

	type hasherEntry struct {
		name string
		h    hash.Hash
	}
	hashers := make([]hasherEntry, 0, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	seen := make(map[string]struct{}, len(algorithms))
	for _, algo := range algorithms {
		if _, ok := seen[algo]; ok {
			continue
		}
		h, ok := newHash(algo)
		if !ok {
			logger.Warnf("Unsupported hash algorithm: %s", algo)
			continue
		}
		seen[algo] = struct{}{}
		hashers = append(hashers, hasherEntry{name: algo, h: h})
		writers = append(writers, h)
	}
	if len(hashers) == 0 {
		return hashes
	}

	bufferPtr := hashBufferPool.Get().(*[]byte)
	_, err := io.CopyBuffer(io.MultiWriter(writers...), r, *bufferPtr)
	hashBufferPool.Put(bufferPtr)
	if err != nil {
		logger.Warnf("Failed to compute hashes: %v", err)
		return hashes
	}

	for i := range hashers {
		hashes[hashers[i].name] = hex.EncodeToString(hashers[i].h.Sum(nil))
	}
	return hashes
}

func HashBytes(data []byte, algorithms []string) map[string]string {
	return ComputeHashes(bytes.NewReader(data), algorithms)
}
