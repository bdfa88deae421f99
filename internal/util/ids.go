// Package util holds small cross-cutting helpers shared by the store,
// tool, and gateway packages: id generation, filename sanitisation, and
// retry-with-backoff.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a new random UUID string, used for session headers,
// spawn record ids, and OpenAI-shim completion ids.
func NewID() string {
	return uuid.NewString()
}

// SafeFilename reversibly sanitises key into a filesystem-safe name:
// any byte outside [A-Za-z0-9._-] is hex-escaped as "%XX".
func SafeFilename(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			b.WriteString("%")
			b.WriteString(hexByte(c))
		}
	}
	return b.String()
}

// UnsafeFilename reverses SafeFilename.
func UnsafeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			if v, ok := unhexByte(name[i+1], name[i+2]); ok {
				b.WriteByte(v)
				i += 2
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"

func hexByte(c byte) string {
	return string([]byte{hexDigits[c>>4], hexDigits[c&0xf]})
}

func unhexByte(hi, lo byte) (byte, bool) {
	h, ok1 := unhexDigit(hi)
	l, ok2 := unhexDigit(lo)
	if !ok1 || !ok2 {
		return 0, false
	}
	return h<<4 | l, true
}

func unhexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
