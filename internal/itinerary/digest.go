package itinerary

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSnapshot separates snapshot digests from any other hash the module
// may compute over the same bytes. The version suffix allows migration.
const DomainSnapshot = "itinerary/snapshot/v1"

// Digest computes a content hash of the snapshot.
// Format: SHA256(domain + 0x00 + canonical JSON), hex encoded.
func Digest(snap Snapshot) (string, error) {
	canonical, err := MarshalCanonical(snap)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDigest(snap Snapshot) string {
	d, err := Digest(snap)
	if err != nil {
		panic(err)
	}
	return d
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
