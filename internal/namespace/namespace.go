// Package namespace derives vector index partition keys from document sets.
package namespace

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Derive computes a stable namespace for a set of file identifiers.
// The identifiers are sorted before hashing, so the same set produces the
// same namespace regardless of order, and any change to the set produces a
// different one. The md5 hex digest matches what earlier deployments wrote
// into the index, so pre-seeded namespaces remain reachable.
func Derive(identifiers []string) string {
	ids := make([]string, len(identifiers))
	copy(ids, identifiers)
	sort.Strings(ids)
	sum := md5.Sum([]byte(strings.Join(ids, "")))
	return hex.EncodeToString(sum[:])
}
