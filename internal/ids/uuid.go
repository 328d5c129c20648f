// Package ids defines the identity and value types shared by every
// persisted node and document in the model data engine: UUIDs, vectors,
// matrices, bounds, triangles, and lines.
package ids

import (
	"crypto/sha1"
	"strings"

	"github.com/google/uuid"
)

// UUID is the 128-bit identity type used for unique ids, shared ids,
// revision ids, and document "_id" fields. The zero value is the sentinel
// "default" id (all-zero), used for e.g. "head of master".
type UUID = uuid.UUID

// Nil is the zero-value sentinel UUID.
var Nil = uuid.Nil

// New returns a fresh random (v4) UUID.
func New() UUID {
	return uuid.New()
}

// Parse parses a canonical string form into a UUID.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// nameNamespace is a fixed namespace for FromName's v5 hashing, private to
// this engine so ids derived here never collide with other UUID producers
// using the same external name.
var nameNamespace = uuid.NewSHA1(uuid.Nil, []byte("model-data-engine.v1"))

// FromName deterministically maps an arbitrary external name to a UUID: if
// the name already parses as a well-formed UUID literal it is returned
// as-is, otherwise a stable SHA-1 based (v5) UUID is derived from it. This
// lets importers assign reproducible ids to nodes named after external
// identifiers (e.g. an IFC GUID) without the caller tracking a mapping
// table.
func FromName(name string) UUID {
	trimmed := strings.TrimSpace(name)
	if u, err := uuid.Parse(trimmed); err == nil {
		return u
	}
	return uuid.NewSHA1(nameNamespace, []byte(trimmed))
}

// Bytes returns the 16-byte binary representation used for the "UUID"
// binary subtype on the wire.
func Bytes(u UUID) [16]byte {
	return u
}

// FromBytes reconstructs a UUID from its 16-byte binary representation.
func FromBytes(b []byte) (UUID, error) {
	return uuid.FromBytes(b)
}

// shortHash is used internally for fingerprinting where a full UUID would
// be overkill (e.g. bucket fingerprints in the multipart optimizer).
func shortHash(parts ...string) [20]byte {
	h := sha1.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Fingerprint returns a stable hex digest over the given parts, used for
// deterministic grouping keys (material-group fingerprints, clash-pair
// fingerprints) that must be identical across runs given identical inputs.
func Fingerprint(parts ...string) string {
	sum := shortHash(parts...)
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, len(sum)*2)
	for _, b := range sum {
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(out)
}
