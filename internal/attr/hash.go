package attr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainImage separates image hashes from any other hash computed over the
// same canonical bytes. The version suffix leaves room for a new algorithm.
const DomainImage = "pos/image/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ImageHash returns the content hash of a bare record. Two records with
// the same attributes hash identically regardless of key order or of how
// their strings were normalized.
func ImageHash(record map[string]any) (string, error) {
	canonical, err := marshalNormalized(record)
	if err != nil {
		return "", fmt.Errorf("image hash: %w", err)
	}
	return hashWithDomain(DomainImage, canonical), nil
}
