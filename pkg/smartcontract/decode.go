package smartcontract

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/thesishub/thesishub-go/pkg/util"
)

// ErrTruncated is returned when the data being decoded is shorter than its
// type requires.
var ErrTruncated = errors.New("truncated ABI data")

// Decode ABI-decodes data (a contract's return data or an event's data
// section) as a tuple of the given types. Decoded values are typed the same
// way Encode expects them.
func Decode(data []byte, types ...Type) ([]any, error) {
	return decodeTuple(data, types)
}

func decodeTuple(body []byte, types []Type) ([]any, error) {
	var (
		res = make([]any, len(types))
		pos int
	)
	for i, t := range types {
		if t.isDynamic() {
			offset, err := decodeLength(body, pos)
			if err != nil {
				return nil, err
			}
			if offset > len(body) {
				return nil, fmt.Errorf("%w: offset %d beyond %d bytes", ErrTruncated, offset, len(body))
			}
			res[i], err = t.decodeTail(body[offset:])
			if err != nil {
				return nil, err
			}
			pos += wordSize
			continue
		}
		size := t.headSize()
		if pos+size > len(body) {
			return nil, fmt.Errorf("%w: need %d bytes at %d, have %d", ErrTruncated, size, pos, len(body))
		}
		var err error
		res[i], err = t.decodeStatic(body[pos : pos+size])
		if err != nil {
			return nil, err
		}
		pos += size
	}
	return res, nil
}

func (t Type) decodeStatic(word []byte) (any, error) {
	switch t.kind {
	case kindAddress:
		for _, b := range word[:wordSize-20] {
			if b != 0 {
				return nil, fmt.Errorf("invalid address padding in %x", word)
			}
		}
		return util.AddressDecodeBytes(word[wordSize-20:])
	case kindUint256:
		return new(uint256.Int).SetBytes(word), nil
	case kindBytes32:
		return util.HashDecodeBytes(word)
	case kindBool:
		switch word[wordSize-1] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("invalid bool value %d", word[wordSize-1])
		}
	case kindTuple:
		return decodeTuple(word, t.elems)
	default:
		return nil, fmt.Errorf("%s is not a static type", t)
	}
}

func (t Type) decodeTail(body []byte) (any, error) {
	switch t.kind {
	case kindString:
		length, err := decodeLength(body, 0)
		if err != nil {
			return nil, err
		}
		if wordSize+length > len(body) {
			return nil, fmt.Errorf("%w: string of %d bytes in %d", ErrTruncated, length, len(body))
		}
		return string(body[wordSize : wordSize+length]), nil
	case kindSlice:
		length, err := decodeLength(body, 0)
		if err != nil {
			return nil, err
		}
		// Each element occupies at least one head word, so the body bounds
		// the element count; check before allocating anything length-sized.
		if length > (len(body)-wordSize)/wordSize {
			return nil, fmt.Errorf("%w: %d elements in %d bytes", ErrTruncated, length, len(body))
		}
		elems := make([]Type, length)
		for i := range elems {
			elems[i] = t.elems[0]
		}
		return decodeTuple(body[wordSize:], elems)
	case kindTuple:
		return decodeTuple(body, t.elems)
	default:
		return nil, fmt.Errorf("%s is not a dynamic type", t)
	}
}

// decodeLength reads a length or offset word at pos, requiring it to fit
// into a non-negative int.
func decodeLength(body []byte, pos int) (int, error) {
	if pos+wordSize > len(body) {
		return 0, fmt.Errorf("%w: no length word at %d", ErrTruncated, pos)
	}
	word := body[pos : pos+wordSize]
	for _, b := range word[:wordSize-8] {
		if b != 0 {
			return 0, fmt.Errorf("oversized length in %x", word)
		}
	}
	v := binary.BigEndian.Uint64(word[wordSize-8:])
	if v > uint64(1<<31) {
		return 0, fmt.Errorf("unreasonable length %d", v)
	}
	return int(v), nil
}
