// Package rpctest runs an in-process JSON-RPC server mimicking the small
// slice of a development node (anvil) that kickbot touches. It exists so
// connection and snapshot logic can be tested without a node binary.
package rpctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Handler implements a single JSON-RPC method.
type Handler func(params []json.RawMessage) (interface{}, error)

// Node is a stub development node.
type Node struct {
	srv *httptest.Server

	mu        sync.Mutex
	methods   map[string]Handler
	calls     map[string]int
	snapshots map[string]bool
	nextSnap  int
	block     int
}

// New starts a stub node with the default method set registered.
func New() *Node {
	n := &Node{
		methods:   make(map[string]Handler),
		calls:     make(map[string]int),
		snapshots: make(map[string]bool),
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serve))

	n.Handle("web3_clientVersion", func([]json.RawMessage) (interface{}, error) {
		return "anvil/v0.2.0-rpctest", nil
	})
	n.Handle("eth_chainId", func([]json.RawMessage) (interface{}, error) {
		return "0x7a69", nil // 31337
	})
	n.Handle("net_version", func([]json.RawMessage) (interface{}, error) {
		return "31337", nil
	})
	n.Handle("eth_blockNumber", func([]json.RawMessage) (interface{}, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.block++
		return fmt.Sprintf("0x%x", n.block), nil
	})
	n.Handle("eth_gasPrice", func([]json.RawMessage) (interface{}, error) {
		return "0x3b9aca00", nil
	})
	n.Handle("eth_getBalance", func([]json.RawMessage) (interface{}, error) {
		return "0x21e19e0c9bab2400000", nil // 10000 ETH
	})
	n.Handle("evm_snapshot", func([]json.RawMessage) (interface{}, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		id := fmt.Sprintf("0x%x", n.nextSnap)
		n.nextSnap++
		n.snapshots[id] = true
		return id, nil
	})
	n.Handle("evm_revert", func(params []json.RawMessage) (interface{}, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("evm_revert wants 1 param, got %d", len(params))
		}
		var id string
		if err := json.Unmarshal(params[0], &id); err != nil {
			return nil, err
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		if !n.snapshots[id] {
			return false, nil
		}
		delete(n.snapshots, id) // markers are single-use
		return true, nil
	})
	return n
}

// URL returns the node endpoint.
func (n *Node) URL() string {
	return n.srv.URL
}

// Close shuts the node down.
func (n *Node) Close() {
	n.srv.Close()
}

// Handle registers or replaces the handler for method.
func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods[method] = h
}

// Calls returns how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// LiveSnapshots returns the number of unconsumed snapshot markers.
func (n *Node) LiveSnapshots() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.snapshots)
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	h, ok := n.methods[req.Method]
	n.mu.Unlock()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch {
	case !ok:
		resp.Error = &rpcError{Code: -32601, Message: "the method " + req.Method + " does not exist"}
	default:
		result, err := h(req.Params)
		if err != nil {
			resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		} else {
			resp.Result = result
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
