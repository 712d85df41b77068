package util

import (
	"crypto/rand"
	"encoding/hex"
	"path"
	"strings"
	"unicode"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// ShortID returns n hex characters of randomness, used for blob key suffixes.
func ShortID(n int) string {
	id := NewID("")
	if n <= 0 || n > len(id) {
		return id
	}
	return id[:n]
}

// Slugify lower-cases name and turns every run of characters outside a-z and
// 0-9 into one hyphen, so "Acme  Corp" becomes "acme-corp" and
// "Smith/Jones LLC" becomes "smith-jones-llc". A name with no usable
// characters yields "client".
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return "client"
	}
	return b.String()
}

// SafeFilename keeps letters, digits, dots, hyphens and underscores of the
// base name and drops everything else. Spaces become hyphens.
func SafeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	result := strings.Trim(b.String(), ".")
	if len(result) > 80 {
		result = result[len(result)-80:]
	}
	if result == "" {
		return "file"
	}
	return result
}
