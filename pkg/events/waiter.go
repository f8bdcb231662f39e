// Package events waits for on-ledger condition fulfillment. The essential
// contract is "suspend this goroutine until a matching event or a deadline";
// the subscription is torn down on every exit path.
package events

import (
	"context"
	"time"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

// TopicConditionFulfilled is the first topic of a condition contract's
// fulfillment events.
const TopicConditionFulfilled = "ConditionFulfilled"

// Result tags the two normal outcomes of a fulfillment wait.
type Result int

const (
	ResultFulfilled Result = iota + 1
	ResultTimedOut
)

func (r Result) String() string {
	switch r {
	case ResultFulfilled:
		return "fulfilled"
	case ResultTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is the resolution of one wait. TimedOut is a normal outcome, not an
// error: it is the saga branch that leads to compensation. Event is set only
// when Result is ResultFulfilled.
type Outcome struct {
	Result Result
	Event  *keeper.LogEvent
}

// Waiter subscribes to a condition contract's fulfillment events.
type Waiter struct {
	subscriber keeper.LogSubscriber
	cfg        keeper.ContractConfig
}

func NewWaiter(subscriber keeper.LogSubscriber, cfg keeper.ContractConfig) *Waiter {
	return &Waiter{subscriber: subscriber, cfg: cfg}
}

// WaitForFulfillment blocks until the condition of the given type is
// fulfilled for the agreement, or the timeout elapses. Cancelling the context
// returns ctx.Err() without an outcome: cancellation is the caller giving up,
// not a timeout, and must not steer the saga into compensation.
func (w *Waiter) WaitForFulfillment(ctx context.Context, conditionType keeper.ConditionType, agreementID keeper.Bytes32, timeout time.Duration) (Outcome, error) {
	contract, err := w.cfg.ConditionAddress(conditionType)
	if err != nil {
		return Outcome{}, err
	}
	topics := []string{TopicConditionFulfilled, agreementID.Hex()}

	ch, cancel, err := w.subscriber.SubscribeLogs(ctx, contract, topics)
	if err != nil {
		return Outcome{}, err
	}
	defer cancel()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// Stream ended without a match; treat like a timeout once the
				// deadline fires rather than spinning on a closed channel.
				select {
				case <-deadline.C:
					return Outcome{Result: ResultTimedOut}, nil
				case <-ctx.Done():
					return Outcome{}, ctx.Err()
				}
			}
			if matchesAgreement(ev, agreementID) {
				ev := ev
				return Outcome{Result: ResultFulfilled, Event: &ev}, nil
			}
		case <-deadline.C:
			return Outcome{Result: ResultTimedOut}, nil
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
}

func matchesAgreement(ev keeper.LogEvent, agreementID keeper.Bytes32) bool {
	for _, topic := range ev.Topics {
		if topic == agreementID.Hex() {
			return true
		}
	}
	return false
}
