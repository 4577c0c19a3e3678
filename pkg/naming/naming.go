// Package naming generates collision-resistant file identifiers and
// path-traversal-safe storage names from untrusted user input.
package naming

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxBaseLen bounds the sanitized portion of a secure name so storage
// backends with filename limits are never exceeded.
const maxBaseLen = 100

// NewFileID allocates a 128-bit random identifier.
func NewFileID() string {
	return uuid.NewString()
}

// SecureName derives a storage-safe name from a client-supplied filename.
// The result is `YYYYMMDD_HHMMSS_<8-hex-token>_<sanitized-base>`: the
// timestamp buckets names in time, the random token guards against
// collisions within a bucket, and the sanitized base keeps a human-readable
// trace of the original. The output never contains path separators, "..",
// or characters outside [A-Za-z0-9._-].
func SecureName(originalName string, now time.Time) string {
	base := stripPath(originalName)
	safe := sanitize(base)
	if safe == "" {
		safe = "file"
	}
	if len(safe) > maxBaseLen {
		safe = safe[:maxBaseLen]
	}

	u := uuid.New()
	token := hex.EncodeToString(u[:4])

	return now.UTC().Format("20060102_150405") + "_" + token + "_" + safe
}

// stripPath drops everything up to and including the last path separator,
// treating both slash styles as separators regardless of host OS.
func stripPath(name string) string {
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// sanitize keeps only [A-Za-z0-9._-], collapses dot runs so ".." can never
// survive, and trims leading dots so the name cannot become a hidden file.
func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastDot := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
			lastDot = false
		case r == '.':
			if !lastDot {
				b.WriteRune(r)
				lastDot = true
			}
		}
	}

	return strings.TrimLeft(b.String(), ".")
}
