// Package digest computes compact, charset-safe keys from composite inputs.
package digest

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// separator cannot appear in UTF-8 text, so distinct part lists never collide
// by concatenation.
var separator = []byte{0xff}

// Key hashes parts into a 16-character hex string.
func Key(parts ...string) string {
	h := xxhash.New()
	for i, p := range parts {
		if i > 0 {
			h.Write(separator)
		}
		h.WriteString(p)
	}
	return strconv.FormatUint(h.Sum64()|1<<63, 16)
}

// Prefixed returns prefix + "." + Key(parts...). The prefix keeps keys of one
// logical group together for listing and debugging.
func Prefixed(prefix string, parts ...string) string {
	return prefix + "." + Key(parts...)
}
