package messaging

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// Bytes a name hash occupies on the wire.
const NameHashSize = 8

type NameHash uint64

// ASCII of the domain name, zero padded to the 32 bytes blake3 wants.
var nameDomainKey = [32]byte{
	'n', 'e', 't', 'c', 'o', 'd', 'e', '.', 'm', 'e', 's', 's', 'a', 'g', 'i', 'n',
	'g', '.', 'n', 'a', 'm', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashName maps a message name to the 64-bit id peers agree on.
func HashName(name string) NameHash {
	hasher, err := blake3.NewKeyed(nameDomainKey[:])
	if err != nil {
		panic("messaging: blake3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(name))

	var sum [NameHashSize]byte
	copy(sum[:], hasher.Sum(nil))

	return NameHash(binary.LittleEndian.Uint64(sum[:]))
}
