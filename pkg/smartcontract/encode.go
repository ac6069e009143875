package smartcontract

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/thesishub/thesishub-go/pkg/util"
)

const wordSize = 32

// EncodeCall encodes a full contract call: the method selector followed by
// the ABI-encoded arguments. Values must match the types positionally:
// address is util.Address, uint256 is *uint256.Int, bytes32 is util.Hash,
// string is string, slices and tuples are []any.
func EncodeCall(method string, types []Type, values []any) ([]byte, error) {
	args, err := Encode(types, values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s arguments: %w", method, err)
	}
	return append(Selector(method, types...), args...), nil
}

// Encode ABI-encodes the given values as a top-level argument tuple.
func Encode(types []Type, values []any) ([]byte, error) {
	return encodeTuple(types, values)
}

func encodeTuple(types []Type, values []any) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("expected %d values got %d", len(types), len(values))
	}
	var (
		head, tail bytes.Buffer
		headLen    int
	)
	for i := range types {
		headLen += types[i].headSize()
	}
	for i, t := range types {
		if t.isDynamic() {
			enc, err := t.encodeTail(values[i])
			if err != nil {
				return nil, err
			}
			head.Write(encodeLength(headLen + tail.Len()))
			tail.Write(enc)
			continue
		}
		enc, err := t.encodeStatic(values[i])
		if err != nil {
			return nil, err
		}
		head.Write(enc)
	}
	return append(head.Bytes(), tail.Bytes()...), nil
}

func (t Type) encodeStatic(v any) ([]byte, error) {
	word := make([]byte, wordSize)
	switch t.kind {
	case kindAddress:
		addr, ok := v.(util.Address)
		if !ok {
			return nil, typeError(t, v)
		}
		copy(word[wordSize-20:], addr.Bytes())
	case kindUint256:
		num, ok := v.(*uint256.Int)
		if !ok {
			return nil, typeError(t, v)
		}
		b := num.Bytes32()
		copy(word, b[:])
	case kindBytes32:
		h, ok := v.(util.Hash)
		if !ok {
			return nil, typeError(t, v)
		}
		copy(word, h.Bytes())
	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(t, v)
		}
		if b {
			word[wordSize-1] = 1
		}
	case kindTuple:
		fields, ok := v.([]any)
		if !ok {
			return nil, typeError(t, v)
		}
		return encodeTuple(t.elems, fields)
	default:
		return nil, fmt.Errorf("%s is not a static type", t)
	}
	return word, nil
}

func (t Type) encodeTail(v any) ([]byte, error) {
	switch t.kind {
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, typeError(t, v)
		}
		enc := encodeLength(len(s))
		padded := make([]byte, pad(len(s)))
		copy(padded, s)
		return append(enc, padded...), nil
	case kindSlice:
		vals, ok := v.([]any)
		if !ok {
			return nil, typeError(t, v)
		}
		elems := make([]Type, len(vals))
		for i := range elems {
			elems[i] = t.elems[0]
		}
		body, err := encodeTuple(elems, vals)
		if err != nil {
			return nil, err
		}
		return append(encodeLength(len(vals)), body...), nil
	case kindTuple:
		fields, ok := v.([]any)
		if !ok {
			return nil, typeError(t, v)
		}
		return encodeTuple(t.elems, fields)
	default:
		return nil, fmt.Errorf("%s is not a dynamic type", t)
	}
}

func encodeLength(n int) []byte {
	word := make([]byte, wordSize)
	binary.BigEndian.PutUint64(word[wordSize-8:], uint64(n))
	return word
}

func pad(n int) int {
	if rem := n % wordSize; rem != 0 {
		return n + wordSize - rem
	}
	return n
}

func typeError(t Type, v any) error {
	return fmt.Errorf("cannot encode %T as %s", v, t)
}
