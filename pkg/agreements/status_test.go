package agreements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

var (
	agreementStore = keeper.Address("0x" + strings.Repeat("a", 40))
	conditionStore = keeper.Address("0x" + strings.Repeat("b", 40))
	templateStore  = keeper.Address("0x" + strings.Repeat("c", 40))
	lockAddr       = keeper.Address("0x" + strings.Repeat("1", 40))
	accessAddr     = keeper.Address("0x" + strings.Repeat("2", 40))
	escrowAddr     = keeper.Address("0x" + strings.Repeat("3", 40))
	accessTemplate = keeper.Address("0x" + strings.Repeat("e", 40))
	consumerAddr   = keeper.Address("0x" + strings.Repeat("6", 40))
)

func testConfig() keeper.ContractConfig {
	return keeper.ContractConfig{
		AgreementStore: agreementStore,
		ConditionStore: conditionStore,
		TemplateStore:  templateStore,
		Token:          keeper.Address("0x" + strings.Repeat("4", 40)),
		Conditions: map[keeper.ConditionType]keeper.Address{
			keeper.ConditionLockPayment:   lockAddr,
			keeper.ConditionAccess:        accessAddr,
			keeper.ConditionEscrowPayment: escrowAddr,
		},
		Templates: map[keeper.ServiceType]keeper.Address{
			keeper.ServiceAccess: accessTemplate,
		},
	}
}

// fakeCaller answers Call by (contract, method) key.
type fakeCaller struct {
	results map[string][]any
	errs    map[string]error
}

func callKey(contract keeper.Address, method string) string {
	return string(contract) + "/" + method
}

func (f *fakeCaller) Call(_ context.Context, contract keeper.Address, method string, _ ...any) ([]any, error) {
	key := callKey(contract, method)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	res, ok := f.results[key]
	if !ok {
		return nil, fmt.Errorf("fakeCaller: no result for %s", key)
	}
	return res, nil
}

func testAgreementID(t *testing.T) keeper.Bytes32 {
	t.Helper()
	id, err := keeper.ParseBytes32("0x" + strings.Repeat("f0", 32))
	if err != nil {
		t.Fatalf("parse agreement id: %v", err)
	}
	return id
}

func conditionIDs(t *testing.T) []keeper.Bytes32 {
	t.Helper()
	out := make([]keeper.Bytes32, 3)
	for i := range out {
		id, err := keeper.ParseBytes32("0x" + strings.Repeat(fmt.Sprintf("%02d", i+1), 32))
		if err != nil {
			t.Fatalf("parse condition id: %v", err)
		}
		out[i] = id
	}
	return out
}

func agreementTuple(t *testing.T, templateID keeper.Address) []any {
	ids := conditionIDs(t)
	rawIDs := make([]any, len(ids))
	for i, id := range ids {
		rawIDs[i] = id.Hex()
	}
	return []any{"did:nv:abc", string(templateID), rawIDs}
}

func TestGetStatusAggregation(t *testing.T) {
	ids := conditionIDs(t)
	caller := &fakeCaller{results: map[string][]any{
		callKey(agreementStore, "getAgreement"): agreementTuple(t, accessTemplate),
	}}
	states := map[string]keeper.ConditionState{
		ids[0].Hex(): keeper.Fulfilled,
		ids[1].Hex(): keeper.Fulfilled,
		ids[2].Hex(): keeper.Unfulfilled,
	}
	addrs := map[string]keeper.Address{
		ids[0].Hex(): lockAddr,
		ids[1].Hex(): accessAddr,
		ids[2].Hex(): escrowAddr,
	}
	reader := NewStatusReader(&conditionAwareCaller{base: caller, states: states, addrs: addrs}, testConfig())

	status, err := reader.GetStatus(context.Background(), testAgreementID(t))
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.AllFulfilled {
		t.Fatalf("expected AllFulfilled=false with an unfulfilled escrow")
	}
	if status.Conditions[keeper.ConditionEscrowPayment] != keeper.Unfulfilled {
		t.Fatalf("escrow state = %v", status.Conditions[keeper.ConditionEscrowPayment])
	}
	if status.Conditions[keeper.ConditionAccess] != keeper.Fulfilled {
		t.Fatalf("access state = %v", status.Conditions[keeper.ConditionAccess])
	}
}

func TestGetStatusAllFulfilled(t *testing.T) {
	ids := conditionIDs(t)
	states := map[string]keeper.ConditionState{}
	addrs := map[string]keeper.Address{
		ids[0].Hex(): lockAddr,
		ids[1].Hex(): accessAddr,
		ids[2].Hex(): escrowAddr,
	}
	for _, id := range ids {
		states[id.Hex()] = keeper.Fulfilled
	}
	caller := &conditionAwareCaller{
		base: &fakeCaller{results: map[string][]any{
			callKey(agreementStore, "getAgreement"): agreementTuple(t, accessTemplate),
		}},
		states: states,
		addrs:  addrs,
	}
	reader := NewStatusReader(caller, testConfig())

	status, err := reader.GetStatus(context.Background(), testAgreementID(t))
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if !status.AllFulfilled {
		t.Fatalf("expected AllFulfilled=true")
	}
}

func TestGetStatusUnknownConditionAddressIsFatal(t *testing.T) {
	ids := conditionIDs(t)
	unknown := keeper.Address("0x" + strings.Repeat("9", 40))
	caller := &conditionAwareCaller{
		base: &fakeCaller{results: map[string][]any{
			callKey(agreementStore, "getAgreement"): agreementTuple(t, accessTemplate),
		}},
		states: map[string]keeper.ConditionState{ids[0].Hex(): keeper.Fulfilled, ids[1].Hex(): keeper.Fulfilled, ids[2].Hex(): keeper.Fulfilled},
		addrs:  map[string]keeper.Address{ids[0].Hex(): lockAddr, ids[1].Hex(): unknown, ids[2].Hex(): escrowAddr},
	}
	reader := NewStatusReader(caller, testConfig())

	_, err := reader.GetStatus(context.Background(), testAgreementID(t))
	if !errors.Is(err, keeper.ErrConditionNotFound) {
		t.Fatalf("expected ErrConditionNotFound, got %v", err)
	}
}

func TestGetAgreementZeroTemplateSentinel(t *testing.T) {
	caller := &fakeCaller{results: map[string][]any{
		callKey(agreementStore, "getAgreement"): agreementTuple(t, keeper.ZeroAddress),
	}}
	reader := NewStatusReader(caller, testConfig())

	ag, err := reader.GetAgreement(context.Background(), testAgreementID(t))
	if err != nil {
		t.Fatalf("get agreement: %v", err)
	}
	if ag.Created() {
		t.Fatalf("zero template sentinel must read as not created")
	}
	if len(ag.ConditionIDs) != 3 {
		t.Fatalf("condition ids = %d, want 3", len(ag.ConditionIDs))
	}
}

// conditionAwareCaller routes getCondition by condition id while delegating
// everything else to the base fake.
type conditionAwareCaller struct {
	base   *fakeCaller
	states map[string]keeper.ConditionState
	addrs  map[string]keeper.Address
}

func (c *conditionAwareCaller) Call(ctx context.Context, contract keeper.Address, method string, args ...any) ([]any, error) {
	if contract == conditionStore && method == "getCondition" {
		id, _ := args[0].(string)
		addr, ok := c.addrs[id]
		if !ok {
			return nil, fmt.Errorf("conditionAwareCaller: unexpected condition %s", id)
		}
		return []any{string(addr), float64(c.states[id])}, nil
	}
	return c.base.Call(ctx, contract, method, args...)
}
