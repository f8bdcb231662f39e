package agreements

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

// StatusReader aggregates an agreement's on-ledger condition states into a
// status snapshot. The address-to-type table is built once from the
// configured condition contracts; an address outside the table means this
// SDK and the deployment disagree about what is deployed, which is fatal.
type StatusReader struct {
	caller     keeper.Caller
	cfg        keeper.ContractConfig
	typeByAddr map[keeper.Address]keeper.ConditionType
}

func NewStatusReader(caller keeper.Caller, cfg keeper.ContractConfig) *StatusReader {
	return &StatusReader{caller: caller, cfg: cfg, typeByAddr: cfg.TypeTable()}
}

// GetAgreement reads the structural agreement record from the agreement
// store. A missing agreement comes back with the zero template sentinel, not
// an error; Created distinguishes the two.
func (r *StatusReader) GetAgreement(ctx context.Context, agreementID keeper.Bytes32) (Agreement, error) {
	tuple, err := r.caller.Call(ctx, r.cfg.AgreementStore, "getAgreement", agreementID.Hex())
	if err != nil {
		return Agreement{}, fmt.Errorf("agreements: get agreement %s: %w", agreementID.Hex(), err)
	}
	if len(tuple) < 3 {
		return Agreement{}, fmt.Errorf("agreements: getAgreement returned %d values, want 3+", len(tuple))
	}

	ag := Agreement{AgreementID: agreementID}
	if did, ok := keeper.AsString(tuple[0]); ok {
		ag.DID = did
	}
	if tpl, ok := keeper.AsString(tuple[1]); ok {
		ag.TemplateID = keeper.Address(tpl)
	}
	rawIDs, ok := keeper.AsStringSlice(tuple[2])
	if !ok {
		return Agreement{}, fmt.Errorf("agreements: getAgreement condition ids are not a string list")
	}
	ag.ConditionIDs = make([]keeper.Bytes32, len(rawIDs))
	for i, raw := range rawIDs {
		id, err := keeper.ParseBytes32(raw)
		if err != nil {
			return Agreement{}, fmt.Errorf("agreements: condition id %d: %w", i, err)
		}
		ag.ConditionIDs[i] = id
	}
	if len(tuple) >= 5 {
		ag.Timeouts = asDurations(tuple[3])
		ag.TimeLocks = asDurations(tuple[4])
	}
	return ag, nil
}

// GetStatus reads the agreement's condition-id list, resolves every
// condition's current state and folds them into one snapshot. Per-condition
// reads run concurrently; results keep condition order.
func (r *StatusReader) GetStatus(ctx context.Context, agreementID keeper.Bytes32) (AgreementStatus, error) {
	ag, err := r.GetAgreement(ctx, agreementID)
	if err != nil {
		return AgreementStatus{}, err
	}

	conds := make([]Condition, len(ag.ConditionIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ag.ConditionIDs {
		i, id := i, id
		g.Go(func() error {
			cond, err := r.getCondition(gctx, id)
			if err != nil {
				return err
			}
			conds[i] = cond
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AgreementStatus{}, err
	}

	status := AgreementStatus{
		AgreementID:  agreementID,
		Conditions:   make(map[keeper.ConditionType]keeper.ConditionState, len(conds)),
		AllFulfilled: len(conds) > 0,
	}
	for _, cond := range conds {
		status.Conditions[cond.Type] = cond.State
		if cond.State != keeper.Fulfilled {
			status.AllFulfilled = false
		}
	}
	return status, nil
}

func (r *StatusReader) getCondition(ctx context.Context, id keeper.Bytes32) (Condition, error) {
	tuple, err := r.caller.Call(ctx, r.cfg.ConditionStore, "getCondition", id.Hex())
	if err != nil {
		return Condition{}, fmt.Errorf("agreements: get condition %s: %w", id.Hex(), err)
	}
	if len(tuple) < 2 {
		return Condition{}, fmt.Errorf("agreements: getCondition returned %d values, want 2", len(tuple))
	}
	rawAddr, ok := keeper.AsString(tuple[0])
	if !ok {
		return Condition{}, fmt.Errorf("agreements: condition %s type address is not a string", id.Hex())
	}
	condType, ok := r.typeByAddr[keeper.Address(rawAddr)]
	if !ok {
		return Condition{}, fmt.Errorf("%w: %s (condition %s)", keeper.ErrConditionNotFound, rawAddr, id.Hex())
	}
	rawState, ok := keeper.AsUint8(tuple[1])
	if !ok {
		return Condition{}, fmt.Errorf("agreements: condition %s state is not numeric", id.Hex())
	}
	return Condition{ID: id, Type: condType, State: keeper.ConditionState(rawState)}, nil
}

func asDurations(v any) []time.Duration {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]time.Duration, len(items))
	for i, item := range items {
		secs, ok := keeper.AsBigInt(item)
		if !ok {
			return nil
		}
		out[i] = time.Duration(secs.Int64()) * time.Second
	}
	return out
}
