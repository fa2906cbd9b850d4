package livefilter

import "github.com/casvault/gcsweep/hashid"

// KeyOf converts a hashid.Hash into the comparable Key this package uses
// internally. The suffix is folded into the final byte so that two hashes
// with the same digest but different suffixes (I1) map to different keys.
func KeyOf(h hashid.Hash) Key {
	var k Key
	copy(k[:], h.Digest[:])
	k[len(k)-1] ^= byte(h.Suffix)
	return k
}
