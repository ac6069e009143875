// Package hash contains the hashing functions used across the module.
package hash

import (
	"github.com/thesishub/thesishub-go/pkg/util"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the legacy Keccak-256 hash of the given data (the
// Ethereum flavor, not the finalized SHA3-256).
func Keccak256(data []byte) util.Hash {
	var h util.Hash
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	d.Sum(h[:0])
	return h
}

// Keccak256Concat is a Keccak256 over the concatenation of all the given
// chunks, avoiding an intermediate buffer.
func Keccak256Concat(chunks ...[]byte) util.Hash {
	var h util.Hash
	d := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		d.Write(c)
	}
	d.Sum(h[:0])
	return h
}
