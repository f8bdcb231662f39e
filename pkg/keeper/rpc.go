package keeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RPCClient talks JSON-RPC to a ledger node over HTTP. It implements TxSender
// and Caller; log subscriptions run over the websocket client instead.
type RPCClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Contract Address `json:"contract"`
	Method   string  `json:"method"`
	Args     []any   `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("keeper: rpc error %d: %s", e.Code, e.Message)
}

func (c *RPCClient) SendTransaction(ctx context.Context, contract Address, method string, args ...any) (Receipt, error) {
	raw, err := c.post(ctx, "ledger_sendTransaction", contract, method, args)
	if err != nil {
		return Receipt{}, err
	}
	var out struct {
		TxHash   string `json:"tx_hash"`
		StatusOK bool   `json:"status_ok"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Receipt{}, fmt.Errorf("keeper: decode receipt: %w", err)
	}
	return Receipt{TxHash: out.TxHash, StatusOK: out.StatusOK}, nil
}

func (c *RPCClient) Call(ctx context.Context, contract Address, method string, args ...any) ([]any, error) {
	raw, err := c.post(ctx, "ledger_call", contract, method, args)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("keeper: decode call result: %w", err)
	}
	return out, nil
}

func (c *RPCClient) post(ctx context.Context, rpcMethod string, contract Address, method string, args []any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      time.Now().UnixNano(),
		Method:  rpcMethod,
		Params:  rpcParams{Contract: contract, Method: method, Args: args},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keeper: rpc request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("keeper: read rpc response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("keeper: rpc status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	var out rpcResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("keeper: decode rpc envelope: %w", err)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	return out.Result, nil
}
