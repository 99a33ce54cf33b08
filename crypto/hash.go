package crypto

import (
	"golang.org/x/crypto/sha3"
)

// DigestLength is the size of every digest an authority signs.
const DigestLength = 32

// Keccak256 returns the legacy (pre-NIST) Keccak-256 of the concatenated
// inputs, the hash the EVM uses.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, chunk := range data {
		d.Write(chunk)
	}
	return d.Sum(nil)
}

// Keccak256Digest is Keccak256 as a fixed array.
func Keccak256Digest(data ...[]byte) (digest [DigestLength]byte) {
	copy(digest[:], Keccak256(data...))
	return digest
}
