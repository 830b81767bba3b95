package feed

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Key is the storage key of a feed under a given storage version.
type Key [sha256.Size]byte

// String returns the hex form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// KeyOf returns the storage key for f under version. The key covers the feed
// type, the version, the enumerable values in order and the other attributes
// sorted by name; changing any of them changes the key.
func KeyOf(f Feed, version uint64) Key {
	return newKeyBuilder().
		Int32(int32(f.Type)).
		Uint64(version).
		Params(f.Params).
		Build()
}

// IdentityKey returns a version-independent key for f.
func IdentityKey(f Feed) Key {
	return newKeyBuilder().
		Int32(int32(f.Type)).
		Params(f.Params).
		Build()
}

// Value type tags of the canonical encoding.
const (
	tagFloat byte = iota + 1
	tagInt
	tagString
	tagBool
)

// keyBuilder writes a length-prefixed, type-tagged encoding into SHA-256.
// Order of operations matters.
type keyBuilder struct {
	h   hash.Hash
	buf [8]byte
}

func newKeyBuilder() *keyBuilder {
	return &keyBuilder{h: sha256.New()}
}

func (b *keyBuilder) Uint64(v uint64) *keyBuilder {
	binary.LittleEndian.PutUint64(b.buf[:], v)
	b.h.Write(b.buf[:8])
	return b
}

func (b *keyBuilder) Int32(v int32) *keyBuilder {
	binary.LittleEndian.PutUint32(b.buf[:4], uint32(v))
	b.h.Write(b.buf[:4])
	return b
}

func (b *keyBuilder) Bool(v bool) *keyBuilder {
	if v {
		b.h.Write([]byte{1})
	} else {
		b.h.Write([]byte{0})
	}
	return b
}

func (b *keyBuilder) String(s string) *keyBuilder {
	b.Uint64(uint64(len(s)))
	b.h.Write([]byte(s))
	return b
}

func (b *keyBuilder) Params(p Parameters) *keyBuilder {
	b.Uint64(uint64(len(p.enumerable)))
	b.h.Write(p.enumerable)

	keys := p.Keys()
	b.Uint64(uint64(len(keys)))
	for _, k := range keys {
		b.String(k)
		switch v := p.other[k].(type) {
		case float64:
			b.h.Write([]byte{tagFloat})
			b.Uint64(math.Float64bits(v))
		case int64:
			b.h.Write([]byte{tagInt})
			b.Uint64(uint64(v))
		case string:
			b.h.Write([]byte{tagString})
			b.String(v)
		case bool:
			b.h.Write([]byte{tagBool})
			b.Bool(v)
		}
	}
	return b
}

func (b *keyBuilder) Build() Key {
	var k Key
	copy(k[:], b.h.Sum(nil))
	return k
}
