package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// WSLogClient subscribes to contract log events over a long-lived websocket
// connection to a ledger node. Each SubscribeLogs call opens its own
// connection so tearing one subscription down never disturbs another.
type WSLogClient struct {
	Endpoint string
	Dialer   *websocket.Dialer
}

func NewWSLogClient(endpoint string) *WSLogClient {
	return &WSLogClient{Endpoint: endpoint, Dialer: websocket.DefaultDialer}
}

type wsSubscribeRequest struct {
	Method   string   `json:"method"`
	Contract Address  `json:"contract"`
	Topics   []string `json:"topics"`
}

type wsLogFrame struct {
	Contract string         `json:"contract"`
	Topics   []string       `json:"topics"`
	Data     map[string]any `json:"data"`
}

// SubscribeLogs dials the node, registers the filter and streams matching
// events until the context is done or the cancel func is called. Events are
// also filtered client-side; a node pushing broader logs is tolerated.
func (c *WSLogClient) SubscribeLogs(ctx context.Context, contract Address, topics []string) (<-chan LogEvent, func(), error) {
	conn, _, err := c.Dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("keeper: dial log endpoint: %w", err)
	}
	if err := conn.WriteJSON(wsSubscribeRequest{Method: "logs_subscribe", Contract: contract, Topics: topics}); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("keeper: register log filter: %w", err)
	}

	events := make(chan LogEvent)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			conn.Close()
		})
	}

	go func() {
		defer close(events)
		defer cancel()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("keeper: log stream closed: %v", err)
				}
				return
			}
			var frame wsLogFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				log.Printf("keeper: drop malformed log frame: %v", err)
				continue
			}
			ev := LogEvent{Contract: Address(frame.Contract), Topics: frame.Topics, Data: frame.Data}
			if !matchesFilter(ev, contract, topics) {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	// The watcher must not outlive the subscription: under a long-lived
	// context it would otherwise park here once per completed wait.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return events, cancel, nil
}

func matchesFilter(ev LogEvent, contract Address, topics []string) bool {
	if ev.Contract != contract {
		return false
	}
	if len(topics) > len(ev.Topics) {
		return false
	}
	for i, want := range topics {
		if want != "" && ev.Topics[i] != want {
			return false
		}
	}
	return true
}
