// Package hashid implements the content-hash identity used throughout the
// repository: a fixed-width digest plus a one-byte suffix denoting the kind
// of object the digest names.
package hashid

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the error class for malformed hash values.
var Error = errs.Class("hashid")

// Size is the digest width in bytes.
const Size = 20

// Suffix distinguishes what kind of object a digest names. Two hashes with
// the same digest but different suffixes are different objects (I1).
type Suffix byte

const (
	// SuffixNone names an ordinary file object.
	SuffixNone Suffix = 0
	// SuffixCatalog names a catalog object.
	SuffixCatalog Suffix = 'C'
	// SuffixPartial names a partial file chunk object.
	SuffixPartial Suffix = 'P'
	// SuffixHistory names a history database object.
	SuffixHistory Suffix = 'H'
)

func (s Suffix) String() string {
	if s == SuffixNone {
		return ""
	}
	return string(rune(s))
}

// Hash is a digest with its kind suffix. The zero Hash is the distinguished
// null hash.
type Hash struct {
	Digest [Size]byte
	Suffix Suffix
}

// Null is the distinguished null hash.
var Null = Hash{}

// IsNull reports whether h is the null hash.
func (h Hash) IsNull() bool {
	return h == Null
}

// String returns the textual form: lowercase hex digest followed by the
// suffix character, if any.
func (h Hash) String() string {
	var b strings.Builder
	b.Grow(Size*2 + 1)
	b.WriteString(hex.EncodeToString(h.Digest[:]))
	if h.Suffix != SuffixNone {
		b.WriteByte(byte(h.Suffix))
	}
	return b.String()
}

// Parse parses the textual form produced by String.
func Parse(s string) (Hash, error) {
	var h Hash
	hexLen := Size * 2
	if len(s) < hexLen {
		return h, Error.New("hash %q too short", s)
	}
	digest, err := hex.DecodeString(s[:hexLen])
	if err != nil {
		return h, Error.Wrap(err)
	}
	copy(h.Digest[:], digest)

	rest := s[hexLen:]
	switch len(rest) {
	case 0:
		h.Suffix = SuffixNone
	case 1:
		h.Suffix = Suffix(rest[0])
	default:
		return h, Error.New("hash %q has trailing garbage %q", s, rest)
	}
	return h, nil
}

// StoragePath returns the storage-path convention the core produces for
// delete requests: xx/yyyyyyyy...[suffix], where xx is the first two hex
// characters of the digest.
func (h Hash) StoragePath() string {
	full := hex.EncodeToString(h.Digest[:])
	var b strings.Builder
	b.Grow(len(full) + 2)
	b.WriteString(full[:2])
	b.WriteByte('/')
	b.WriteString(full[2:])
	if h.Suffix != SuffixNone {
		b.WriteByte(byte(h.Suffix))
	}
	return b.String()
}

// ParseStoragePath recovers a Hash from a path produced by StoragePath.
func ParseStoragePath(path string) (Hash, error) {
	idx := strings.IndexByte(path, '/')
	if idx < 0 || idx != 2 {
		return Hash{}, Error.New("storage path %q missing two-character shard prefix", path)
	}
	return Parse(path[:idx] + path[idx+1:])
}
