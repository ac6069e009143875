package hub

import (
	"encoding/hex"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thesishub/thesishub-go/pkg/ethrpc"
	"github.com/thesishub/thesishub-go/pkg/smartcontract"
	"github.com/thesishub/thesishub-go/pkg/util"
)

// fakeChain implements Invoker and Actor, answering reads from canned data
// and recording submitted transactions.
type fakeChain struct {
	callRet []byte
	callErr error
	logs    []ethrpc.Log
	logsErr error

	calls []ethrpc.TransactionArgs
	sent  []ethrpc.TransactionArgs
}

func (f *fakeChain) CallContract(args ethrpc.TransactionArgs) ([]byte, error) {
	f.calls = append(f.calls, args)
	return f.callRet, f.callErr
}

func (f *fakeChain) GetLogs(filter ethrpc.FilterQuery) ([]ethrpc.Log, error) {
	return f.logs, f.logsErr
}

func (f *fakeChain) SendTransaction(args ethrpc.TransactionArgs) (util.Hash, error) {
	f.sent = append(f.sent, args)
	return util.Hash{0xaa}, nil
}

func addr(t *testing.T, s string) util.Address {
	a, err := util.AddressDecodeString(s)
	require.NoError(t, err)
	return a
}

var (
	masterHex = "0x00000000000000000000000000000000000000a1"
	authorHex = "0x9d8a62f656a8d1615c1294fd71e9cfb3e4855a4f"
	tokenHex  = "0x2d3b96ab07321ba9691b5450aa2d1707f160dd86"
)

func TestTheses(t *testing.T) {
	author := addr(t, authorHex)
	token := addr(t, tokenHex)

	ret, err := smartcontract.Encode(
		[]smartcontract.Type{
			smartcontract.SliceType(smartcontract.AddressType),
			smartcontract.SliceType(thesisInfoType),
		},
		[]any{
			[]any{token},
			[]any{[]any{"QmCID", "Graph Rewriting", author, "On graphs", uint256.NewInt(100)}},
		},
	)
	require.NoError(t, err)

	chain := &fakeChain{callRet: ret}
	h := New(chain, chain, addr(t, masterHex))

	recs, err := h.Theses()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ThesisRecord{
		TokenAddress: token,
		CID:          "QmCID",
		Title:        "Graph Rewriting",
		Author:       author,
		Description:  "On graphs",
		CostWei:      uint256.NewInt(100),
	}, recs[0])

	// The read goes to the master contract with the right selector.
	require.Len(t, chain.calls, 1)
	assert.Equal(t, h.Master(), *chain.calls[0].To)
	assert.Equal(t, []byte(smartcontract.Selector("getAllThesisInfos")), []byte(chain.calls[0].Data[:4]))
}

func TestThesesLengthMismatch(t *testing.T) {
	token := addr(t, tokenHex)
	ret, err := smartcontract.Encode(
		[]smartcontract.Type{
			smartcontract.SliceType(smartcontract.AddressType),
			smartcontract.SliceType(thesisInfoType),
		},
		[]any{[]any{token, token}, []any{}},
	)
	require.NoError(t, err)

	chain := &fakeChain{callRet: ret}
	_, err = New(chain, chain, addr(t, masterHex)).Theses()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed registry")
}

func TestUserTokens(t *testing.T) {
	token := addr(t, tokenHex)
	ret, err := smartcontract.Encode(
		[]smartcontract.Type{smartcontract.SliceType(userTokenDataType)},
		[]any{[]any{[]any{token, uint256.NewInt(1)}, []any{util.Address{}, uint256.NewInt(0)}}},
	)
	require.NoError(t, err)

	chain := &fakeChain{callRet: ret}
	holdings, err := New(chain, chain, addr(t, masterHex)).UserTokens(addr(t, authorHex))
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, token, holdings[0].TokenAddress)
	assert.Equal(t, uint64(1), holdings[0].Balance.Uint64())
	assert.True(t, holdings[1].Balance.IsZero())
}

func TestAddThesis(t *testing.T) {
	author := addr(t, authorHex)
	chain := &fakeChain{}
	h := New(chain, chain, addr(t, masterHex))

	salt := util.Hash{0x42}
	txHash, err := h.AddThesis(author, salt, ThesisRecord{
		CID:         "QmCID",
		Title:       "Graph Rewriting",
		Author:      author,
		Description: "On graphs",
		CostWei:     uint256.NewInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, util.Hash{0xaa}, txHash)

	require.Len(t, chain.sent, 1)
	sent := chain.sent[0]
	assert.Equal(t, author, *sent.From)
	assert.Equal(t, h.Master(), *sent.To)
	assert.Nil(t, sent.Value)
	expected := hex.EncodeToString(smartcontract.Selector("addThesis",
		smartcontract.Bytes32Type, thesisInfoType))
	assert.Equal(t, expected, hex.EncodeToString(sent.Data[:4]))
	// The salt rides in the first argument word.
	assert.Equal(t, salt.Bytes(), []byte(sent.Data[4:36]))
}

func TestBuyToken(t *testing.T) {
	buyer := addr(t, authorHex)
	token := addr(t, tokenHex)
	chain := &fakeChain{}
	h := New(chain, chain, addr(t, masterHex))

	_, err := h.BuyToken(buyer, token, uint256.NewInt(1), uint256.NewInt(100))
	require.NoError(t, err)

	require.Len(t, chain.sent, 1)
	sent := chain.sent[0]
	assert.Equal(t, buyer, *sent.From)
	assert.Equal(t, h.Master(), *sent.To)
	require.NotNil(t, sent.Value)
	assert.Equal(t, uint64(100), sent.Value.Amount().Uint64())
	expected := hex.EncodeToString(smartcontract.Selector("buyToken",
		smartcontract.AddressType, smartcontract.Uint256Type))
	assert.Equal(t, expected, hex.EncodeToString(sent.Data[:4]))
}

func TestThesisAddedFromReceipt(t *testing.T) {
	author := addr(t, authorHex)
	token := addr(t, tokenHex)

	data, err := smartcontract.Encode(
		[]smartcontract.Type{
			smartcontract.StringType,
			smartcontract.StringType,
			smartcontract.AddressType,
			smartcontract.AddressType,
			smartcontract.Uint256Type,
			smartcontract.StringType,
		},
		[]any{"Graph Rewriting", "QmCID", token, author, uint256.NewInt(100), "On graphs"},
	)
	require.NoError(t, err)

	txHash := util.Hash{0xbb}
	chain := &fakeChain{logs: []ethrpc.Log{
		{TxHash: util.Hash{0x01}, Data: []byte{0xde, 0xad}}, // other tx, same block
		{TxHash: txHash, Data: data},
	}}
	h := New(chain, chain, addr(t, masterHex))

	ev, err := h.ThesisAddedFromReceipt(&ethrpc.Receipt{TxHash: txHash, BlockNumber: 7, Status: 1})
	require.NoError(t, err)
	assert.Equal(t, token, ev.TokenAddress)
	assert.Equal(t, "Graph Rewriting", ev.Title)
	assert.Equal(t, "QmCID", ev.CID)
	assert.Equal(t, author, ev.Author)
	assert.Equal(t, uint64(100), ev.CostWei.Uint64())
}

func TestThesisAddedFromReceiptNotFound(t *testing.T) {
	chain := &fakeChain{logs: []ethrpc.Log{{TxHash: util.Hash{0x01}}}}
	h := New(chain, chain, addr(t, masterHex))

	_, err := h.ThesisAddedFromReceipt(&ethrpc.Receipt{TxHash: util.Hash{0xbb}, BlockNumber: 7})
	assert.ErrorIs(t, err, ErrEventNotFound)

	chain.logs = nil
	_, err = h.ThesisAddedFromReceipt(&ethrpc.Receipt{TxHash: util.Hash{0xbb}, BlockNumber: 7})
	assert.ErrorIs(t, err, ErrEventNotFound)
}
