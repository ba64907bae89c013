// Package id generates short random identifiers that correlate log lines
// with control plane requests.
package id

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns "<prefix>_<8 hex chars>", e.g. "load_3f9a01c2".
func New(prefix string) string {
	var b [4]byte
	_, _ = rand.Read(b[:]) // never fails since Go 1.24
	return prefix + "_" + hex.EncodeToString(b[:])
}
