package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Normalize trims a prompt and collapses internal whitespace so prompts
// that differ only in spacing share a fingerprint.
func Normalize(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}

// Fingerprint derives the deterministic cache key for a prompt, model and
// parameter set. Parameters are folded in sorted key order so map iteration
// order never leaks into the key.
func Fingerprint(prompt, modelID string, params map[string]string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(modelID)))

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte{0})
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(params[k]))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
