package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

var accessAddr = keeper.Address("0x" + strings.Repeat("2", 40))

func testConfig() keeper.ContractConfig {
	return keeper.ContractConfig{
		AgreementStore: keeper.Address("0x" + strings.Repeat("a", 40)),
		ConditionStore: keeper.Address("0x" + strings.Repeat("b", 40)),
		TemplateStore:  keeper.Address("0x" + strings.Repeat("c", 40)),
		Token:          keeper.Address("0x" + strings.Repeat("4", 40)),
		Conditions: map[keeper.ConditionType]keeper.Address{
			keeper.ConditionAccess: accessAddr,
		},
	}
}

type fakeSubscriber struct {
	ch chan keeper.LogEvent

	mu        sync.Mutex
	cancelled bool
	contract  keeper.Address
	topics    []string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{ch: make(chan keeper.LogEvent, 4)}
}

func (f *fakeSubscriber) SubscribeLogs(_ context.Context, contract keeper.Address, topics []string) (<-chan keeper.LogEvent, func(), error) {
	f.mu.Lock()
	f.contract = contract
	f.topics = append([]string(nil), topics...)
	f.mu.Unlock()
	return f.ch, func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeSubscriber) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func testAgreementID(t *testing.T) keeper.Bytes32 {
	t.Helper()
	id, err := keeper.ParseBytes32("0x" + strings.Repeat("f0", 32))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return id
}

func TestWaitResolvesOnMatchingEvent(t *testing.T) {
	subs := newFakeSubscriber()
	waiter := NewWaiter(subs, testConfig())
	agreementID := testAgreementID(t)

	subs.ch <- keeper.LogEvent{
		Contract: accessAddr,
		Topics:   []string{TopicConditionFulfilled, agreementID.Hex()},
		Data:     map[string]any{"grantee": "0x" + strings.Repeat("6", 40)},
	}

	outcome, err := waiter.WaitForFulfillment(context.Background(), keeper.ConditionAccess, agreementID, time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if outcome.Result != ResultFulfilled {
		t.Fatalf("result = %v, want fulfilled", outcome.Result)
	}
	if outcome.Event == nil || outcome.Event.Data["grantee"] == nil {
		t.Fatalf("fulfilled outcome must carry the event payload")
	}
	if !subs.wasCancelled() {
		t.Fatalf("subscription must be torn down after resolution")
	}
}

func TestWaitSkipsForeignAgreements(t *testing.T) {
	subs := newFakeSubscriber()
	waiter := NewWaiter(subs, testConfig())
	agreementID := testAgreementID(t)

	other, _ := keeper.ParseBytes32("0x" + strings.Repeat("0d", 32))
	subs.ch <- keeper.LogEvent{Contract: accessAddr, Topics: []string{TopicConditionFulfilled, other.Hex()}}
	subs.ch <- keeper.LogEvent{Contract: accessAddr, Topics: []string{TopicConditionFulfilled, agreementID.Hex()}}

	outcome, err := waiter.WaitForFulfillment(context.Background(), keeper.ConditionAccess, agreementID, time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if outcome.Result != ResultFulfilled {
		t.Fatalf("result = %v, want fulfilled", outcome.Result)
	}
}

func TestWaitTimesOut(t *testing.T) {
	subs := newFakeSubscriber()
	waiter := NewWaiter(subs, testConfig())

	start := time.Now()
	outcome, err := waiter.WaitForFulfillment(context.Background(), keeper.ConditionAccess, testAgreementID(t), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if outcome.Result != ResultTimedOut {
		t.Fatalf("result = %v, want timed_out", outcome.Result)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("returned before the deadline")
	}
	if !subs.wasCancelled() {
		t.Fatalf("subscription must be torn down on timeout")
	}
}

func TestWaitCancellationIsNotTimeout(t *testing.T) {
	subs := newFakeSubscriber()
	waiter := NewWaiter(subs, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	outcome, err := waiter.WaitForFulfillment(ctx, keeper.ConditionAccess, testAgreementID(t), time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v (outcome %+v)", err, outcome)
	}
	if outcome.Result != 0 {
		t.Fatalf("cancellation must not report a saga outcome, got %v", outcome.Result)
	}
	if !subs.wasCancelled() {
		t.Fatalf("subscription must be torn down on cancellation")
	}
}

func TestWaitMissingConditionAddress(t *testing.T) {
	waiter := NewWaiter(newFakeSubscriber(), testConfig())
	_, err := waiter.WaitForFulfillment(context.Background(), keeper.ConditionComputeExecution, testAgreementID(t), time.Second)
	if !errors.Is(err, keeper.ErrMissingAddress) {
		t.Fatalf("expected ErrMissingAddress, got %v", err)
	}
}
