package cache

import (
	"crypto/sha256"
	"fmt"
	"regexp"
)

// Key derives a stable cache key for a piece of content within a namespace.
// The key is "<namespace dir>/<hex sha256 of namespace/content>": every
// entry of a namespace lives under its own directory segment, so one
// namespace can be cleared without touching its neighbours even when one
// namespace name is a prefix of another. Hashing "namespace/content" keeps
// identical content in two namespaces from colliding. Empty content is
// valid and produces a valid key.
func Key(namespace, content string) string {
	sum := sha256.Sum256([]byte(namespace + "/" + content))
	return fmt.Sprintf("%s/%x", namespaceDir(namespace), sum)
}

// namespaceDir maps a namespace to its directory segment: the sanitized
// name plus a short hash of the raw name, so namespaces that sanitize to
// the same text ("a b" and "a_b") still get distinct directories.
func namespaceDir(namespace string) string {
	sum := sha256.Sum256([]byte(namespace))
	return fmt.Sprintf("%s-%x", sanitizeSegment(namespace), sum[:4])
}

var unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeSegment rewrites s into a safe filename segment.
func sanitizeSegment(s string) string {
	return unsafeSegment.ReplaceAllString(s, "_")
}
