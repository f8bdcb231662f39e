package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/nevermined-io/sdk-go/pkg/conditions"
	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

// ErrRefundFailed signals the escrow fulfillment did not land and the escrow
// condition is still open. A rejection against an already-closed condition is
// not an error; see Refund.
var ErrRefundFailed = errors.New("payments: escrow refund failed")

// RefundExecutor runs the saga's compensating transaction: fulfilling the
// escrow condition so locked funds flow back. Whether they return to the
// consumer or settle to the original recipient is the escrow contract's
// decision, not this executor's.
type RefundExecutor struct {
	sender  keeper.TxSender
	caller  keeper.Caller
	deriver *conditions.Deriver
	cfg     keeper.ContractConfig
}

func NewRefundExecutor(sender keeper.TxSender, caller keeper.Caller, deriver *conditions.Deriver, cfg keeper.ContractConfig) *RefundExecutor {
	return &RefundExecutor{sender: sender, caller: caller, deriver: deriver, cfg: cfg}
}

// Refund re-derives the lock and release condition ids through the shared
// deriver (the happy-path context is gone by the time compensation runs) and
// fulfills the escrow condition with them.
//
// Invoking Refund twice for one agreement is safe: the ledger rejects a
// second fulfillment of a closed condition, and a rejection whose escrow
// condition reads Fulfilled or Aborted is treated as a benign no-op.
func (e *RefundExecutor) Refund(ctx context.Context, agreementID keeper.Bytes32, price *big.Int, creator, consumer keeper.Address, serviceType keeper.ServiceType) error {
	set, err := e.deriver.Derive(agreementID, serviceType, price, creator, consumer)
	if err != nil {
		return err
	}
	escrowAddr, err := e.cfg.ConditionAddress(keeper.ConditionEscrowPayment)
	if err != nil {
		return err
	}

	receipt, err := e.sender.SendTransaction(ctx, escrowAddr, "fulfill",
		agreementID.Hex(), price.String(), string(consumer), string(creator), set.Lock.Hex(), set.Release.Hex())
	if err == nil && receipt.StatusOK {
		return nil
	}

	if closed, readErr := e.escrowClosed(ctx, set.Escrow); readErr == nil && closed {
		log.Printf("payments: escrow %s already closed, refund is a no-op", set.Escrow.Hex())
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	return fmt.Errorf("%w: fulfill reverted", ErrRefundFailed)
}

func (e *RefundExecutor) escrowClosed(ctx context.Context, escrowID keeper.Bytes32) (bool, error) {
	tuple, err := e.caller.Call(ctx, e.cfg.ConditionStore, "getCondition", escrowID.Hex())
	if err != nil {
		return false, err
	}
	if len(tuple) < 2 {
		return false, errors.New("payments: getCondition returned too few values")
	}
	state, ok := keeper.AsUint8(tuple[1])
	if !ok {
		return false, errors.New("payments: condition state is not numeric")
	}
	s := keeper.ConditionState(state)
	return s == keeper.Fulfilled || s == keeper.Aborted, nil
}
