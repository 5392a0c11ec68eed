// Package sha256 names archived article bodies by their content digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BodyPath returns "<prefix>/<articleID>/<digest>.html". Identical bodies
// map to the same object, so re-archiving is idempotent.
func BodyPath(prefix, articleID string, body []byte) string {
	name := articleID + "/" + Digest(body) + ".html"
	if p := strings.Trim(prefix, "/"); p != "" {
		return p + "/" + name
	}
	return name
}
