/*
Package hub provides bindings for the ThesisHub master contract.

The master contract keeps the registry of published theses and mints one
ERC20 token contract per thesis; holding a positive balance of that token is
what grants access to the thesis document. This package maps the fixed
contract interface (reads, writes, the ThesisAdded event) onto Go calls over
abstract RPC interfaces, so tests can substitute fakes for the network.
*/
package hub

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/thesishub/thesishub-go/pkg/ethrpc"
	"github.com/thesishub/thesishub-go/pkg/smartcontract"
	"github.com/thesishub/thesishub-go/pkg/util"
)

// Invoker is used by Hub to perform read-only contract calls and log
// queries, it's satisfied by rpcclient.Client.
type Invoker interface {
	CallContract(args ethrpc.TransactionArgs) ([]byte, error)
	GetLogs(filter ethrpc.FilterQuery) ([]ethrpc.Log, error)
}

// Actor is used by Hub to submit state-changing transactions, it's
// satisfied by rpcclient.Client.
type Actor interface {
	SendTransaction(args ethrpc.TransactionArgs) (util.Hash, error)
}

// Hub is a binding to a deployed ThesisHub master contract.
type Hub struct {
	invoker Invoker
	actor   Actor
	master  util.Address
}

// ThesisRecord describes one published thesis as the master contract keeps
// it. TokenAddress is the per-thesis ERC20 token contract, filled in from
// the registry read or from the ThesisAdded event (the addThesis call
// itself doesn't return it).
type ThesisRecord struct {
	TokenAddress util.Address
	Title        string
	CID          string
	Author       util.Address
	Description  string
	CostWei      *uint256.Int
}

// TokenHolding is one entry of an account's per-thesis token balances.
type TokenHolding struct {
	TokenAddress util.Address
	Balance      *uint256.Int
}

// ThesisAdded is the decoded registration event emitted by addThesis.
type ThesisAdded struct {
	Title        string
	CID          string
	TokenAddress util.Address
	Author       util.Address
	CostWei      *uint256.Int
	Description  string
}

// ErrEventNotFound is returned when a confirmed registration transaction
// carries no ThesisAdded event.
var ErrEventNotFound = errors.New("ThesisAdded event not found in transaction logs")

// thesisInfoType is the solidity struct addThesis takes and
// getAllThesisInfos returns: (cid, title, author, description,
// costInNativeInWei).
var thesisInfoType = smartcontract.TupleType(
	smartcontract.StringType,
	smartcontract.StringType,
	smartcontract.AddressType,
	smartcontract.StringType,
	smartcontract.Uint256Type,
)

// userTokenDataType is one entry of the getUserTokenData result:
// (tokenAddress, balance).
var userTokenDataType = smartcontract.TupleType(
	smartcontract.AddressType,
	smartcontract.Uint256Type,
)

// thesisAddedEvent is the topic hash of
// ThesisAdded(string,string,address,address,uint256,string).
var thesisAddedEvent = smartcontract.EventID("ThesisAdded",
	smartcontract.StringType,
	smartcontract.StringType,
	smartcontract.AddressType,
	smartcontract.AddressType,
	smartcontract.Uint256Type,
	smartcontract.StringType,
)

// New creates a Hub binding for the master contract at the given address.
func New(invoker Invoker, actor Actor, master util.Address) *Hub {
	return &Hub{
		invoker: invoker,
		actor:   actor,
		master:  master,
	}
}

// Master returns the master contract address.
func (h *Hub) Master() util.Address {
	return h.master
}

func (h *Hub) call(method string, types []smartcontract.Type, values []any, results ...smartcontract.Type) ([]any, error) {
	data, err := smartcontract.EncodeCall(method, types, values)
	if err != nil {
		return nil, err
	}
	ret, err := h.invoker.CallContract(ethrpc.TransactionArgs{
		To:   &h.master,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	res, err := smartcontract.Decode(ret, results...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return res, nil
}

// Theses performs the bulk registry read, zipping the two parallel result
// arrays (token addresses and thesis metadata) into records. A length
// mismatch between the arrays means the response cannot be trusted and is
// an error.
func (h *Hub) Theses() ([]ThesisRecord, error) {
	res, err := h.call("getAllThesisInfos", nil, nil,
		smartcontract.SliceType(smartcontract.AddressType),
		smartcontract.SliceType(thesisInfoType),
	)
	if err != nil {
		return nil, err
	}
	addrs := res[0].([]any)
	infos := res[1].([]any)
	if len(addrs) != len(infos) {
		return nil, fmt.Errorf("malformed registry: %d addresses for %d theses", len(addrs), len(infos))
	}
	records := make([]ThesisRecord, len(infos))
	for i := range infos {
		fields := infos[i].([]any)
		records[i] = ThesisRecord{
			TokenAddress: addrs[i].(util.Address),
			CID:          fields[0].(string),
			Title:        fields[1].(string),
			Author:       fields[2].(util.Address),
			Description:  fields[3].(string),
			CostWei:      fields[4].(*uint256.Int),
		}
	}
	return records, nil
}

// UserTokens returns the per-thesis token holdings of the given account.
func (h *Hub) UserTokens(account util.Address) ([]TokenHolding, error) {
	res, err := h.call("getUserTokenData",
		[]smartcontract.Type{smartcontract.AddressType},
		[]any{account},
		smartcontract.SliceType(userTokenDataType),
	)
	if err != nil {
		return nil, err
	}
	entries := res[0].([]any)
	holdings := make([]TokenHolding, len(entries))
	for i := range entries {
		fields := entries[i].([]any)
		holdings[i] = TokenHolding{
			TokenAddress: fields[0].(util.Address),
			Balance:      fields[1].(*uint256.Int),
		}
	}
	return holdings, nil
}

// AddThesis submits the registration transaction for the given record on
// behalf of from. The salt seeds the deterministic token contract address
// derivation on chain. The returned hash identifies the transaction, not
// the minted token contract; recover the latter from the ThesisAdded event
// after confirmation.
func (h *Hub) AddThesis(from util.Address, salt util.Hash, rec ThesisRecord) (util.Hash, error) {
	data, err := smartcontract.EncodeCall("addThesis",
		[]smartcontract.Type{smartcontract.Bytes32Type, thesisInfoType},
		[]any{salt, []any{rec.CID, rec.Title, rec.Author, rec.Description, rec.CostWei}},
	)
	if err != nil {
		return util.Hash{}, err
	}
	return h.actor.SendTransaction(ethrpc.TransactionArgs{
		From: &from,
		To:   &h.master,
		Data: data,
	})
}

// BuyToken submits a purchase of quantity units of the given thesis token,
// attaching valueWei as payment.
func (h *Hub) BuyToken(from, token util.Address, quantity *uint256.Int, valueWei *uint256.Int) (util.Hash, error) {
	data, err := smartcontract.EncodeCall("buyToken",
		[]smartcontract.Type{smartcontract.AddressType, smartcontract.Uint256Type},
		[]any{token, quantity},
	)
	if err != nil {
		return util.Hash{}, err
	}
	return h.actor.SendTransaction(ethrpc.TransactionArgs{
		From:  &from,
		To:    &h.master,
		Value: ethrpc.NewValue(valueWei),
		Data:  data,
	})
}

// ThesisAddedFromReceipt recovers the registration event of the given
// confirmed transaction by querying the master contract's logs in the
// receipt's block. ErrEventNotFound is returned when the block has no
// matching event for this transaction.
func (h *Hub) ThesisAddedFromReceipt(rcpt *ethrpc.Receipt) (*ThesisAdded, error) {
	block := rcpt.BlockNumber
	logs, err := h.invoker.GetLogs(ethrpc.FilterQuery{
		FromBlock: &block,
		ToBlock:   &block,
		Address:   &h.master,
		Topics:    [][]util.Hash{{thesisAddedEvent}},
	})
	if err != nil {
		return nil, fmt.Errorf("log query failed: %w", err)
	}
	for i := range logs {
		if !logs[i].TxHash.Equals(rcpt.TxHash) {
			continue
		}
		return decodeThesisAdded(logs[i].Data)
	}
	return nil, ErrEventNotFound
}

func decodeThesisAdded(data []byte) (*ThesisAdded, error) {
	fields, err := smartcontract.Decode(data,
		smartcontract.StringType,
		smartcontract.StringType,
		smartcontract.AddressType,
		smartcontract.AddressType,
		smartcontract.Uint256Type,
		smartcontract.StringType,
	)
	if err != nil {
		return nil, fmt.Errorf("malformed ThesisAdded event: %w", err)
	}
	return &ThesisAdded{
		Title:        fields[0].(string),
		CID:          fields[1].(string),
		TokenAddress: fields[2].(util.Address),
		Author:       fields[3].(util.Address),
		CostWei:      fields[4].(*uint256.Int),
		Description:  fields[5].(string),
	}, nil
}
