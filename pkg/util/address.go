package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const addressSize = 20

// Address is a 20 byte long Ethereum account identifier.
type Address [addressSize]uint8

// AddressDecodeString attempts to decode the given string into an Address.
// An optional 0x prefix and mixed-case hex are accepted.
func AddressDecodeString(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != addressSize*2 {
		return a, fmt.Errorf("expected string size of %d got %d", addressSize*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	return AddressDecodeBytes(b)
}

// AddressDecodeBytes attempts to decode the given bytes into an Address.
func AddressDecodeBytes(b []byte) (a Address, err error) {
	if len(b) != addressSize {
		return a, fmt.Errorf("expected byte size of %d got %d", addressSize, len(b))
	}
	copy(a[:], b)
	return
}

// Bytes returns the byte slice representation of a.
func (a Address) Bytes() []byte {
	return a[:]
}

// String implements the stringer interface, the result is 0x-prefixed
// lowercase hex (the canonical form, so two addresses differing only in
// source-string case compare equal after decoding).
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a.Bytes())
}

// Equals returns true if both Address values are the same.
func (a Address) Equals(other Address) bool {
	return a == other
}

// IsZero returns true if a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// UnmarshalJSON implements the json unmarshaller interface.
func (a *Address) UnmarshalJSON(data []byte) (err error) {
	var js string
	if err = json.Unmarshal(data, &js); err != nil {
		return err
	}
	*a, err = AddressDecodeString(js)
	return err
}

// MarshalJSON implements the json marshaller interface.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalYAML implements the yaml unmarshaller interface.
func (a *Address) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	addr, err := AddressDecodeString(s)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// MarshalYAML implements the yaml marshaller interface.
func (a Address) MarshalYAML() (any, error) {
	return a.String(), nil
}
