package config

import (
	"encoding/json"
	"hash/fnv"
)

// hashBytes returns a stable 64-bit FNV-1a hash. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// hashConfig hashes the decoded config, so whitespace, comments and key order
// in the file do not count as changes.
func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}
