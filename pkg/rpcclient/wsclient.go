package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thesishub/thesishub-go/pkg/ethrpc"
)

// WSClient is a websocket-enabled RPC client that can additionally subscribe
// for new block headers via eth_subscribe. It inherits all regular Client
// methods, performing them over the websocket connection.
//
// Subscription-related methods hand events over to the channel provided by
// the caller; the channel is expected to be serviced, a stuck receiver stalls
// the whole reader loop.
type WSClient struct {
	Client

	ws        *websocket.Conn
	wsErr     error
	wsErrLock sync.Mutex
	done      chan struct{}
	requests  chan *ethrpc.Request

	respLock     sync.Mutex
	respChannels map[uint64]chan *ethrpc.Response

	subsLock      sync.RWMutex
	subscriptions map[string]chan<- *ethrpc.Head
}

// ErrWSConnLost is a WSClient-specific error that will be returned for any
// requests after the connection has been lost.
var ErrWSConnLost = errors.New("connection lost")

const (
	wsPongLimit  = 60 * time.Second
	wsPingPeriod = wsPongLimit / 2
	wsWriteLimit = wsPingPeriod / 2
)

// wsIn covers both responses and subscription notifications arriving on the
// same connection.
type wsIn struct {
	ID      json.RawMessage            `json:"id,omitempty"`
	JSONRPC string                     `json:"jsonrpc"`
	Method  string                     `json:"method,omitempty"`
	Params  *ethrpc.NotificationParams `json:"params,omitempty"`
	Error   *ethrpc.Error              `json:"error,omitempty"`
	Result  json.RawMessage            `json:"result,omitempty"`
}

// NewWS returns a new WSClient ready to use (with established websocket
// connection). You need to use websocket URL for it like `ws://1.2.3.4/ws`.
func NewWS(ctx context.Context, endpoint string, opts Options) (*WSClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ethrpc.ErrNotAvailable, err)
	}

	wsc := &WSClient{
		ws:            ws,
		done:          make(chan struct{}),
		requests:      make(chan *ethrpc.Request),
		respChannels:  make(map[uint64]chan *ethrpc.Response),
		subscriptions: make(map[string]chan<- *ethrpc.Head),
	}
	err = initClient(ctx, &wsc.Client, endpoint, opts)
	if err != nil {
		ws.Close()
		return nil, err
	}
	wsc.Client.cli = nil
	wsc.Client.requestF = wsc.makeWsRequest

	go wsc.wsReader()
	go wsc.wsWriter()
	return wsc, nil
}

func (c *WSClient) setCloseErr(err error) {
	c.wsErrLock.Lock()
	defer c.wsErrLock.Unlock()
	if c.wsErr == nil {
		c.wsErr = err
	}
}

// GetError returns the reason of the connection loss. It returns nil before
// the connection is closed.
func (c *WSClient) GetError() error {
	c.wsErrLock.Lock()
	defer c.wsErrLock.Unlock()
	return c.wsErr
}

// Close closes the connection and all channels associated with it.
func (c *WSClient) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.ws.Close()
}

func (c *WSClient) wsReader() {
	c.ws.SetReadDeadline(time.Now().Add(wsPongLimit))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wsPongLimit))
	})
readloop:
	for {
		in := new(wsIn)
		err := c.ws.ReadJSON(in)
		if err != nil {
			c.setCloseErr(fmt.Errorf("failed to read JSON response: %w", err))
			break readloop
		}
		if in.Method == "eth_subscription" && in.Params != nil {
			c.subsLock.RLock()
			ch, ok := c.subscriptions[in.Params.Subscription]
			c.subsLock.RUnlock()
			if !ok {
				// Unsubscription happened in between, drop the event.
				continue
			}
			head := new(ethrpc.Head)
			if err := json.Unmarshal(in.Params.Result, head); err != nil {
				c.setCloseErr(fmt.Errorf("failed to decode notification: %w", err))
				break readloop
			}
			select {
			case ch <- head:
			case <-c.done:
				break readloop
			}
			continue
		}
		var id uint64
		if err := json.Unmarshal(in.ID, &id); err != nil {
			c.setCloseErr(fmt.Errorf("unexpected response ID: %w", err))
			break readloop
		}
		c.respLock.Lock()
		respCh, ok := c.respChannels[id]
		delete(c.respChannels, id)
		c.respLock.Unlock()
		if ok {
			resp := &ethrpc.Response{Error: in.Error, Result: in.Result}
			resp.JSONRPC = in.JSONRPC
			resp.ID = in.ID
			respCh <- resp
			close(respCh)
		}
	}
	c.Close()
	c.respLock.Lock()
	for _, ch := range c.respChannels {
		close(ch)
	}
	c.respChannels = nil
	c.respLock.Unlock()
	c.dropSubscriptions()
}

func (c *WSClient) wsWriter() {
	pingTicker := time.NewTicker(wsPingPeriod)
	defer c.ws.Close()
	defer pingTicker.Stop()
	for {
		select {
		case <-c.done:
			return
		case req := <-c.requests:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.RequestTimeout)); err != nil {
				c.setCloseErr(fmt.Errorf("failed to set request write deadline: %w", err))
				return
			}
			if err := c.ws.WriteJSON(req); err != nil {
				c.setCloseErr(fmt.Errorf("failed to write JSON request: %w", err))
				return
			}
		case <-pingTicker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				c.setCloseErr(fmt.Errorf("failed to set ping write deadline: %w", err))
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				c.setCloseErr(fmt.Errorf("failed to write ping message: %w", err))
				return
			}
		}
	}
}

func (c *WSClient) dropSubscriptions() {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	c.subscriptions = nil
}

func (c *WSClient) makeWsRequest(r *ethrpc.Request) (*ethrpc.Response, error) {
	ch := make(chan *ethrpc.Response, 1)
	c.respLock.Lock()
	if c.respChannels == nil {
		c.respLock.Unlock()
		return nil, ErrWSConnLost
	}
	c.respChannels[r.ID] = ch
	c.respLock.Unlock()
	select {
	case <-c.done:
		return nil, ErrWSConnLost
	case c.requests <- r:
	}
	select {
	case <-c.done:
		return nil, ErrWSConnLost
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrWSConnLost
		}
		return resp, nil
	}
}

// SubscribeNewHeads subscribes for new block header events delivering them
// to the given channel and returns the subscription ID.
func (c *WSClient) SubscribeNewHeads(rcvr chan<- *ethrpc.Head) (string, error) {
	var id string
	if err := c.performRequest("eth_subscribe", []any{"newHeads"}, &id); err != nil {
		return "", err
	}
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	if c.subscriptions == nil {
		return "", ErrWSConnLost
	}
	c.subscriptions[id] = rcvr
	return id, nil
}

// Unsubscribe removes the subscription with the given ID.
func (c *WSClient) Unsubscribe(id string) error {
	c.subsLock.Lock()
	_, ok := c.subscriptions[id]
	delete(c.subscriptions, id)
	c.subsLock.Unlock()
	if !ok {
		return fmt.Errorf("unknown subscription %s", id)
	}
	var resp bool
	if err := c.performRequest("eth_unsubscribe", []any{id}, &resp); err != nil {
		return err
	}
	if !resp {
		return fmt.Errorf("server failed to cancel subscription %s", id)
	}
	return nil
}
