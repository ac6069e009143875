package ethrpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/thesishub/thesishub-go/pkg/util"
)

type (
	// Uint64 is a JSON-RPC quantity, marshalled as a 0x-prefixed hex string
	// with no leading zeroes.
	Uint64 uint64

	// Bytes is arbitrary binary data, marshalled as a 0x-prefixed hex string.
	Bytes []byte

	// Value is a 256-bit quantity, marshalled as a 0x-prefixed hex string.
	Value struct {
		uint256.Int
	}

	// TransactionArgs is the parameter object of eth_call and
	// eth_sendTransaction.
	TransactionArgs struct {
		From  *util.Address `json:"from,omitempty"`
		To    *util.Address `json:"to,omitempty"`
		Value *Value        `json:"value,omitempty"`
		Data  Bytes         `json:"data,omitempty"`
	}

	// Log is a single emitted event record.
	Log struct {
		Address     util.Address `json:"address"`
		Topics      []util.Hash  `json:"topics"`
		Data        Bytes        `json:"data"`
		BlockNumber Uint64       `json:"blockNumber"`
		TxHash      util.Hash    `json:"transactionHash"`
		Index       Uint64       `json:"logIndex"`
		Removed     bool         `json:"removed"`
	}

	// Receipt is the result of eth_getTransactionReceipt.
	Receipt struct {
		TxHash          util.Hash     `json:"transactionHash"`
		BlockNumber     Uint64        `json:"blockNumber"`
		BlockHash       util.Hash     `json:"blockHash"`
		Status          Uint64        `json:"status"`
		GasUsed         Uint64        `json:"gasUsed"`
		ContractAddress *util.Address `json:"contractAddress"`
		Logs            []Log         `json:"logs"`
	}

	// FilterQuery is the parameter object of eth_getLogs.
	FilterQuery struct {
		FromBlock *Uint64       `json:"fromBlock,omitempty"`
		ToBlock   *Uint64       `json:"toBlock,omitempty"`
		Address   *util.Address `json:"address,omitempty"`
		Topics    [][]util.Hash `json:"topics,omitempty"`
	}

	// Head is a block header as delivered by newHeads subscriptions; only
	// the fields this client uses are mapped.
	Head struct {
		Number Uint64    `json:"number"`
		Hash   util.Hash `json:"hash"`
	}
)

// Succeeded reports whether the receipt belongs to a successfully executed
// transaction.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// MarshalJSON implements the json marshaller interface.
func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + strconv.FormatUint(uint64(u), 16) + `"`), nil
}

// UnmarshalJSON implements the json unmarshaller interface.
func (u *Uint64) UnmarshalJSON(data []byte) error {
	s, err := unquoteHex(data)
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity: %w", err)
	}
	*u = Uint64(v)
	return nil
}

// MarshalJSON implements the json marshaller interface.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + hex.EncodeToString(b) + `"`), nil
}

// UnmarshalJSON implements the json unmarshaller interface.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	s, err := unquoteHex(data)
	if err != nil {
		return err
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	*b = raw
	return nil
}

// NewValue wraps the given 256-bit amount for use in TransactionArgs.
func NewValue(v *uint256.Int) *Value {
	res := new(Value)
	res.Set(v)
	return res
}

// Amount returns the wrapped 256-bit quantity.
func (v *Value) Amount() *uint256.Int {
	res := new(uint256.Int)
	res.Set(&v.Int)
	return res
}

// MarshalJSON implements the json marshaller interface.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + v.ToBig().Text(16) + `"`), nil
}

// UnmarshalJSON implements the json unmarshaller interface.
func (v *Value) UnmarshalJSON(data []byte) error {
	s, err := unquoteHex(data)
	if err != nil {
		return err
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	if len(raw) > 32 {
		return fmt.Errorf("value exceeds 256 bits (%d bytes)", len(raw))
	}
	v.SetBytes(raw)
	return nil
}

func unquoteHex(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		s = "0"
	}
	return s, nil
}
