package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thesishub/thesishub-go/pkg/ethrpc"
)

// startWSServer runs a websocket JSON-RPC endpoint. It answers
// eth_subscribe with a fixed subscription ID and pushes one newHeads
// notification right after, answers eth_unsubscribe with true, and any
// other method from the responses map.
func startWSServer(t *testing.T, responses map[string]string) *WSClient {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()
		for {
			var req rpcCall
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			switch req.Method {
			case "eth_subscribe":
				require.NoError(t, ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0", "id": req.ID, "result": "0xsub1",
				}))
			case "test_newhead":
				// Test-only trigger delivering a header notification, so
				// the push happens strictly after the subscription is set
				// up on the client side.
				require.NoError(t, ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0", "id": req.ID, "result": true,
				}))
				require.NoError(t, ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0",
					"method":  "eth_subscription",
					"params": map[string]any{
						"subscription": "0xsub1",
						"result": map[string]string{
							"number": "0x10",
							"hash":   "0x15fa6bc26eb791295ce4f30d6687e1f29f5eca12aaecca856293f7bd5ce2a0b2",
						},
					},
				}))
			case "eth_unsubscribe":
				require.NoError(t, ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0", "id": req.ID, "result": true,
				}))
			default:
				require.NoError(t, ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0", "id": req.ID,
					"result": json.RawMessage(responses[req.Method]),
				}))
			}
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := NewWS(context.Background(), wsURL, Options{})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestWSRequest(t *testing.T) {
	c := startWSServer(t, map[string]string{"eth_blockNumber": `"0x4b7"`})
	n, err := c.BlockNumber()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x4b7), n)
}

func TestWSSubscribeNewHeads(t *testing.T) {
	c := startWSServer(t, nil)

	heads := make(chan *ethrpc.Head, 1)
	id, err := c.SubscribeNewHeads(heads)
	require.NoError(t, err)
	assert.Equal(t, "0xsub1", id)

	var pushed bool
	require.NoError(t, c.performRequest("test_newhead", nil, &pushed))

	select {
	case head := <-heads:
		assert.Equal(t, ethrpc.Uint64(0x10), head.Number)
	case <-time.After(time.Second):
		t.Fatal("no header notification received")
	}

	require.NoError(t, c.Unsubscribe(id))
	assert.Error(t, c.Unsubscribe(id))
	assert.Error(t, c.Unsubscribe("0xother"))
}

func TestWSConnLost(t *testing.T) {
	c := startWSServer(t, nil)
	c.Close()

	require.Eventually(t, func() bool {
		_, err := c.BlockNumber()
		return err != nil
	}, time.Second, 10*time.Millisecond)

	heads := make(chan *ethrpc.Head, 1)
	_, err := c.SubscribeNewHeads(heads)
	assert.Error(t, err)
}

func TestWSDialFailure(t *testing.T) {
	_, err := NewWS(context.Background(), "ws://127.0.0.1:1", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ethrpc.ErrNotAvailable)
}
