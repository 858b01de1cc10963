// Package hashing fingerprints a document's content reference and descriptive
// metadata. The digest is what gets committed to the ledger, so it must be
// deterministic: the same inputs always produce the same hash, regardless of
// map iteration order or when the call happens.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	dErrors "provenance/pkg/domain-errors"
)

// Fingerprint computes the canonical SHA-256 digest over a content reference
// and a stable serialization of its metadata. Pure: no I/O, no clock, no state.
func Fingerprint(contentRef string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(contentRef) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "content reference is required")
	}

	h := sha256.New()
	h.Write([]byte(contentRef))
	h.Write([]byte{0})

	// Sorted keys make the serialization independent of map order.
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(metadata[k]))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
