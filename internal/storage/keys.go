package storage

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/holiman/uint256"
)

// Key is a 256-bit persistent storage key
type Key [32]byte

// keyPrefix separates storage variable keys from any other hashed domain.
// Deployed contracts depend on it: changing it moves every variable.
const keyPrefix = "storage."

// BaseKey derives the key of the storage variable at a dotted path
func BaseKey(path string) Key {
	return sha256.Sum256([]byte(keyPrefix + path))
}

// ElementKey derives the key of a collection element from the encoded
// element key and the key of the collection holding it
func ElementKey(encoded []byte, parent Key) Key {
	buf := make([]byte, 0, len(encoded)+len(parent))
	buf = append(buf, encoded...)
	buf = append(buf, parent[:]...)
	return sha256.Sum256(buf)
}

// EncodeWord encodes a copy-type key as one big-endian word
func EncodeWord(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// Offset returns the key n slots after k, wrapping at 2^256
func (k Key) Offset(n uint64) Key {
	if n == 0 {
		return k
	}
	v := new(uint256.Int).SetBytes32(k[:])
	v.Add(v, uint256.NewInt(n))
	return v.Bytes32()
}

// Int returns the key as a 256-bit integer
func (k Key) Int() *uint256.Int {
	return new(uint256.Int).SetBytes32(k[:])
}

func (k Key) String() string {
	return k.Int().Hex()
}
