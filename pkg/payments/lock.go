// Package payments executes the two money-moving steps of a purchase saga:
// locking the reward into escrow, and the compensating escrow release when
// fulfillment never arrives.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

var (
	// ErrInsufficientBalance: the consumer cannot cover the price. Nothing is
	// submitted; a lock transaction that is certain to revert is never sent.
	ErrInsufficientBalance = errors.New("payments: insufficient token balance")

	// ErrLockFulfillFailed: the allowance or lock transaction did not land.
	// The agreement already exists on-chain at this point, so the caller must
	// run compensation.
	ErrLockFulfillFailed = errors.New("payments: lock fulfillment failed")
)

// LockExecutor fulfills the lockPayment condition of an agreement.
type LockExecutor struct {
	sender keeper.TxSender
	caller keeper.Caller
	cfg    keeper.ContractConfig
}

func NewLockExecutor(sender keeper.TxSender, caller keeper.Caller, cfg keeper.ContractConfig) *LockExecutor {
	return &LockExecutor{sender: sender, caller: caller, cfg: cfg}
}

// Lock checks the consumer's balance, (re)grants the lock contract's
// allowance and fulfills the lock condition. The allowance is always set to
// the current price rather than assuming a prior value; concurrent purchases
// by the same consumer each re-approve.
func (e *LockExecutor) Lock(ctx context.Context, agreementID keeper.Bytes32, price *big.Int, consumer keeper.Address) error {
	lockAddr, err := e.cfg.ConditionAddress(keeper.ConditionLockPayment)
	if err != nil {
		return err
	}
	escrowAddr, err := e.cfg.ConditionAddress(keeper.ConditionEscrowPayment)
	if err != nil {
		return err
	}

	balance, err := e.balanceOf(ctx, consumer)
	if err != nil {
		return err
	}
	if balance.Cmp(price) < 0 {
		return fmt.Errorf("%w: balance %s < price %s", ErrInsufficientBalance, balance, price)
	}

	receipt, err := e.sender.SendTransaction(ctx, e.cfg.Token, "approve", string(lockAddr), price.String())
	if err != nil {
		return fmt.Errorf("%w: approve: %v", ErrLockFulfillFailed, err)
	}
	if !receipt.StatusOK {
		return fmt.Errorf("%w: approve reverted", ErrLockFulfillFailed)
	}

	receipt, err = e.sender.SendTransaction(ctx, lockAddr, "fulfill",
		agreementID.Hex(), string(escrowAddr), string(e.cfg.Token), price.String(), string(consumer))
	if err != nil {
		return fmt.Errorf("%w: fulfill: %v", ErrLockFulfillFailed, err)
	}
	if !receipt.StatusOK {
		return fmt.Errorf("%w: fulfill reverted", ErrLockFulfillFailed)
	}
	return nil
}

func (e *LockExecutor) balanceOf(ctx context.Context, consumer keeper.Address) (*big.Int, error) {
	tuple, err := e.caller.Call(ctx, e.cfg.Token, "balanceOf", string(consumer))
	if err != nil {
		return nil, fmt.Errorf("payments: read balance: %w", err)
	}
	if len(tuple) < 1 {
		return nil, errors.New("payments: balanceOf returned no value")
	}
	balance, ok := keeper.AsBigInt(tuple[0])
	if !ok {
		return nil, errors.New("payments: balanceOf result is not an amount")
	}
	return balance, nil
}
