package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const hashSize = 32

// Hash is a 32 byte long value, used for transaction hashes, event topics
// and 32-byte contract parameters.
type Hash [hashSize]uint8

// HashDecodeString attempts to decode the given string into a Hash.
// An optional 0x prefix is accepted.
func HashDecodeString(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != hashSize*2 {
		return h, fmt.Errorf("expected string size of %d got %d", hashSize*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	return HashDecodeBytes(b)
}

// HashDecodeBytes attempts to decode the given bytes into a Hash.
func HashDecodeBytes(b []byte) (h Hash, err error) {
	if len(b) != hashSize {
		return h, fmt.Errorf("expected byte size of %d got %d", hashSize, len(b))
	}
	copy(h[:], b)
	return
}

// Bytes returns the byte slice representation of h.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String implements the stringer interface.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h.Bytes())
}

// Equals returns true if both Hash values are the same.
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// IsZero returns true if h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// UnmarshalJSON implements the json unmarshaller interface.
func (h *Hash) UnmarshalJSON(data []byte) (err error) {
	var js string
	if err = json.Unmarshal(data, &js); err != nil {
		return err
	}
	*h, err = HashDecodeString(js)
	return err
}

// MarshalJSON implements the json marshaller interface.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}
