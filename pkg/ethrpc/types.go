/*
Package ethrpc contains a set of types used for JSON-RPC communication with
Ethereum nodes and wallet providers. It defines basic request/response types
as well as the errors and parameter/result shapes of the calls this client
uses.
*/
package ethrpc

import (
	"encoding/json"
)

const (
	// JSONRPCVersion is the only JSON-RPC protocol version supported.
	JSONRPCVersion = "2.0"
)

type (
	// Request represents a JSON-RPC request. It's generic enough to be used
	// in many JSON-RPC communication scenarios, yet at the same time it's
	// tailored for the needs of this client.
	Request struct {
		// JSONRPC is the protocol version, only valid when it contains JSONRPCVersion.
		JSONRPC string `json:"jsonrpc"`
		// Method is the method being called.
		Method string `json:"method"`
		// Params is a set of method-specific parameters passed to the call.
		// All Ethereum calls expect params to be an array.
		Params []any `json:"params"`
		// ID is a numeric identifier associated with this request.
		ID uint64 `json:"id"`
	}

	// Header is a generic JSON-RPC 2.0 response header (ID and JSON-RPC version).
	Header struct {
		ID      json.RawMessage `json:"id"`
		JSONRPC string          `json:"jsonrpc"`
	}

	// Response represents a standard raw JSON-RPC 2.0 response:
	// http://www.jsonrpc.org/specification#response_object.
	Response struct {
		Header
		Error  *Error          `json:"error,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
	}

	// Notification is a type used to represent wire format of subscription
	// events, they're special in that they look like requests but they
	// don't have IDs and their "method" is always eth_subscription.
	Notification struct {
		JSONRPC string             `json:"jsonrpc"`
		Method  string             `json:"method"`
		Params  NotificationParams `json:"params"`
	}

	// NotificationParams carries the subscription ID an event belongs to
	// together with the event payload.
	NotificationParams struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	}
)

// NewRequest creates a new request with the given method, parameters and ID.
func NewRequest(id uint64, method string, params ...any) *Request {
	if params == nil {
		params = []any{}
	}
	return &Request{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	}
}
