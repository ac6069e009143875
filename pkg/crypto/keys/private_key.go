/*
Package keys provides secp256k1 key handling and message signing.

It covers the privileged service credential: a fixed key the application
holds to authorize administrative storage operations. End-user signatures
are produced by the wallet provider and never touch this package, both
paths end up implementing the same Signer interface.
*/
package keys

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/thesishub/thesishub-go/pkg/crypto/hash"
	"github.com/thesishub/thesishub-go/pkg/util"
)

// Signer is a signing capability: something that has a chain identity and
// can produce EIP-191 personal-message signatures on its behalf. Wallet
// providers and locally held keys both satisfy it, call sites never branch
// on the concrete shape.
type Signer interface {
	// Address returns the signer's account identity.
	Address() util.Address
	// SignMessage signs an arbitrary message the personal-sign way,
	// returning a 65-byte r||s||v signature with v in {27, 28}.
	SignMessage(msg []byte) ([]byte, error)
}

// PrivateKey represents a secp256k1 private key and provides a high level
// API around it.
type PrivateKey struct {
	priv *secp256k1.PrivateKey
}

// NewPrivateKey creates a new random private key.
func NewPrivateKey() (*PrivateKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{priv: priv}, nil
}

// NewPrivateKeyFromHex returns a PrivateKey created from the given hex
// string, 0x prefix optional.
func NewPrivateKeyFromHex(str string) (*PrivateKey, error) {
	str = strings.TrimPrefix(strings.TrimPrefix(str, "0x"), "0X")
	b, err := hex.DecodeString(str)
	if err != nil {
		return nil, err
	}
	return NewPrivateKeyFromBytes(b)
}

// NewPrivateKeyFromBytes returns a PrivateKey from the given byte slice.
func NewPrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid byte length: expected %d bytes got %d", 32, len(b))
	}
	return &PrivateKey{priv: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Bytes returns the 32-byte serialization of the key.
func (p *PrivateKey) Bytes() []byte {
	return p.priv.Serialize()
}

// Address implements the Signer interface. The address is the last 20 bytes
// of the Keccak-256 hash of the uncompressed public key.
func (p *PrivateKey) Address() util.Address {
	pub := p.priv.PubKey().SerializeUncompressed()
	h := hash.Keccak256(pub[1:]) // drop the 0x04 format prefix
	addr, _ := util.AddressDecodeBytes(h.Bytes()[12:])
	return addr
}

// SignMessage implements the Signer interface. The message is prefixed per
// EIP-191 before hashing, so the produced signature can never double as a
// transaction signature.
func (p *PrivateKey) SignMessage(msg []byte) ([]byte, error) {
	digest := hash.Keccak256Concat(
		[]byte("\x19Ethereum Signed Message:\n"),
		[]byte(strconv.Itoa(len(msg))),
		msg,
	)
	compact := ecdsa.SignCompact(p.priv, digest.Bytes(), false)
	// Compact form carries the recovery header first, personal-sign
	// signatures carry it last.
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig, nil
}

// RecoverAddress returns the address whose key produced the given 65-byte
// personal-sign signature over msg.
func RecoverAddress(msg, sig []byte) (util.Address, error) {
	if len(sig) != 65 {
		return util.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	digest := hash.Keccak256Concat(
		[]byte("\x19Ethereum Signed Message:\n"),
		[]byte(strconv.Itoa(len(msg))),
		msg,
	)
	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact, digest.Bytes())
	if err != nil {
		return util.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	ser := pub.SerializeUncompressed()
	h := hash.Keccak256(ser[1:])
	return util.AddressDecodeBytes(h.Bytes()[12:])
}
