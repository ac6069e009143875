/*
Package smartcontract provides ABI encoding and decoding for contract calls.

It deliberately covers only the parameter types the ThesisHub contracts use
(address, uint256, bytes32, bool, string, slices and tuples of those) rather
than the whole ABI specification; anything outside this set is a programming
error caught at encoding time.
*/
package smartcontract

import (
	"strings"

	"github.com/thesishub/thesishub-go/pkg/crypto/hash"
	"github.com/thesishub/thesishub-go/pkg/util"
)

// Type represents an ABI parameter type.
type Type struct {
	kind  kind
	elems []Type // tuple fields, or one element for a slice
}

type kind uint8

const (
	kindAddress kind = iota
	kindUint256
	kindBytes32
	kindBool
	kindString
	kindSlice
	kindTuple
)

// Elementary types.
var (
	AddressType = Type{kind: kindAddress}
	Uint256Type = Type{kind: kindUint256}
	Bytes32Type = Type{kind: kindBytes32}
	BoolType    = Type{kind: kindBool}
	StringType  = Type{kind: kindString}
)

// SliceType returns the type of a dynamically sized array of elem.
func SliceType(elem Type) Type {
	return Type{kind: kindSlice, elems: []Type{elem}}
}

// TupleType returns the type of a tuple (a solidity struct) with the given
// field types in order.
func TupleType(fields ...Type) Type {
	return Type{kind: kindTuple, elems: fields}
}

// String returns the canonical ABI notation of t, the one used for selector
// and event ID computation.
func (t Type) String() string {
	switch t.kind {
	case kindAddress:
		return "address"
	case kindUint256:
		return "uint256"
	case kindBytes32:
		return "bytes32"
	case kindBool:
		return "bool"
	case kindString:
		return "string"
	case kindSlice:
		return t.elems[0].String() + "[]"
	default:
		ss := make([]string, len(t.elems))
		for i := range t.elems {
			ss[i] = t.elems[i].String()
		}
		return "(" + strings.Join(ss, ",") + ")"
	}
}

// isDynamic reports whether t has a dynamic (offset-referenced) encoding.
func (t Type) isDynamic() bool {
	switch t.kind {
	case kindString, kindSlice:
		return true
	case kindTuple:
		for i := range t.elems {
			if t.elems[i].isDynamic() {
				return true
			}
		}
	}
	return false
}

// headSize returns the number of bytes t occupies in the head part of an
// encoded tuple.
func (t Type) headSize() int {
	if t.kind == kindTuple && !t.isDynamic() {
		var size int
		for i := range t.elems {
			size += t.elems[i].headSize()
		}
		return size
	}
	return wordSize
}

// Signature returns the canonical signature of a method or event with the
// given argument types.
func Signature(name string, args ...Type) string {
	ss := make([]string, len(args))
	for i := range args {
		ss[i] = args[i].String()
	}
	return name + "(" + strings.Join(ss, ",") + ")"
}

// Selector returns the 4-byte method selector of the given method.
func Selector(name string, args ...Type) []byte {
	h := hash.Keccak256([]byte(Signature(name, args...)))
	return h.Bytes()[:4]
}

// EventID returns the 32-byte topic hash of the given event.
func EventID(name string, args ...Type) util.Hash {
	return hash.Keccak256([]byte(Signature(name, args...)))
}
