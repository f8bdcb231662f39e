// Package agreements reads and creates service agreements on the ledger's
// agreement store. All durable agreement state lives on-chain; the types here
// are read-only projections recomputed on every query.
package agreements

import (
	"time"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

// Agreement is the orchestrator's projection of an on-ledger agreement. The
// ledger may move the underlying condition states but never the structural
// fields, so a projection never goes structurally stale.
type Agreement struct {
	AgreementID  keeper.Bytes32
	TemplateID   keeper.Address
	DID          string
	ConditionIDs []keeper.Bytes32
	Timeouts     []time.Duration
	TimeLocks    []time.Duration
}

// Created reports whether the agreement exists on-chain: the template id has
// left the zero sentinel an unwritten slot reads back as.
func (a Agreement) Created() bool {
	return a.TemplateID != "" && a.TemplateID != keeper.ZeroAddress
}

// Condition is one condition read back from the condition store.
type Condition struct {
	ID    keeper.Bytes32
	Type  keeper.ConditionType
	State keeper.ConditionState
}

// AgreementStatus is a point-in-time snapshot of every condition's state. It
// is recomputed on each query and never cached: the ledger can move between
// reads.
type AgreementStatus struct {
	AgreementID  keeper.Bytes32                                `json:"agreement_id"`
	Conditions   map[keeper.ConditionType]keeper.ConditionState `json:"-"`
	AllFulfilled bool                                          `json:"all_fulfilled"`
}

// ConditionStates renders the snapshot with string keys and values, the shape
// the HTTP facade and CLI serve.
func (s AgreementStatus) ConditionStates() map[string]string {
	out := make(map[string]string, len(s.Conditions))
	for t, state := range s.Conditions {
		out[string(t)] = state.String()
	}
	return out
}
