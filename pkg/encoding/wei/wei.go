// Package wei converts between human-readable decimal ether strings and
// chain-native wei amounts (1 ether = 10^18 wei).
package wei

import (
	"errors"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of decimal places of the smallest unit.
const Decimals = 18

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Various parsing errors.
var (
	ErrInvalidFormat = errors.New("invalid decimal format")
	ErrNegative      = errors.New("negative amounts are not allowed")
	ErrTooBig        = errors.New("amount overflows 256 bits")
)

// FromString parses a non-negative decimal ether string and returns
// floor(s * 10^18). Fractional digits beyond the 18th are truncated, never
// rounded, so "0.05" yields 50000000000000000 and a 19-digit fraction loses
// exactly its last digit.
func FromString(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, ErrInvalidFormat
	}
	if s[0] == '-' {
		return nil, ErrNegative
	}
	if s[0] == '+' {
		s = s[1:]
	}
	ip, fp, _ := strings.Cut(s, ".")
	if ip == "" && fp == "" {
		return nil, ErrInvalidFormat
	}
	if ip == "" {
		ip = "0"
	}
	// big.Int.SetString tolerates a leading sign, both parts must be plain
	// digits.
	if !isDigits(ip) || !isDigits(fp) {
		return nil, ErrInvalidFormat
	}
	whole, ok := new(big.Int).SetString(ip, 10)
	if !ok {
		return nil, ErrInvalidFormat
	}
	whole.Mul(whole, scale)
	if fp != "" {
		if len(fp) > Decimals {
			fp = fp[:Decimals] // truncate, do not round
		}
		frac, ok := new(big.Int).SetString(fp, 10)
		if !ok {
			return nil, ErrInvalidFormat
		}
		for i := len(fp); i < Decimals; i++ {
			frac.Mul(frac, big.NewInt(10))
		}
		whole.Add(whole, frac)
	}
	res, overflow := uint256.FromBig(whole)
	if overflow {
		return nil, ErrTooBig
	}
	return res, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ToString renders the given wei amount as a decimal ether string with
// trailing fractional zeroes trimmed.
func ToString(w *uint256.Int) string {
	if w == nil {
		return "0"
	}
	buf := new(strings.Builder)
	q, r := new(big.Int).QuoRem(w.ToBig(), scale, new(big.Int))
	buf.WriteString(q.String())
	if r.Sign() > 0 {
		buf.WriteRune('.')
		str := r.String()
		for i := len(str); i < Decimals; i++ {
			buf.WriteRune('0')
		}
		buf.WriteString(strings.TrimRight(str, "0"))
	}
	return buf.String()
}
