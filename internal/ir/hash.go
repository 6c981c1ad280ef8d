package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSnapshot is the domain prefix for snapshot identities.
// The version suffix allows a future algorithm migration.
const DomainSnapshot = "evsync/snapshot/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data boundaries unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotID computes the content-addressed id of a snapshot.
// Two snapshots of the same entity taken at the same event key share an
// id, which makes storing a snapshot idempotent. State bytes are excluded:
// equal inputs at equal keys must produce equal state.
func SnapshotID(semantics, session string, version int, key EventKey) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"semantics": semantics,
		"session":   session,
		"version":   version,
		"event_key": key,
	})
	if err != nil {
		return "", fmt.Errorf("SnapshotID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
