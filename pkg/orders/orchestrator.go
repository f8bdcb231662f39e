// Package orders composes the purchase saga: resolve, derive, create, lock,
// wait, and on the one compensation point, refund. Each purchase attempt
// resolves to exactly one OrderResult; ambiguous ledger states are settled
// internally, never surfaced as a distinct outcome.
package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/nevermined-io/sdk-go/pkg/conditions"
	"github.com/nevermined-io/sdk-go/pkg/events"
	"github.com/nevermined-io/sdk-go/pkg/keeper"
	"github.com/nevermined-io/sdk-go/pkg/metadata"
)

// DefaultFulfillmentTimeout bounds the wait for the release condition when
// the service descriptor carries no timeout of its own.
const DefaultFulfillmentTimeout = 120 * time.Second

// OrderResult is the terminal outcome of one purchase attempt. Immutable
// once returned.
type OrderResult struct {
	AgreementID     keeper.Bytes32 `json:"agreement_id"`
	DID             string         `json:"did"`
	ServiceIndex    int            `json:"service_index"`
	AccessGranted   bool           `json:"access_granted"`
	RefundTriggered bool           `json:"refund_triggered"`
}

// The orchestrator depends on the narrow surface of each collaborator, not
// on the concrete SDK types, so tests drive the saga with fakes.

type Resolver interface {
	Resolve(ctx context.Context, did string) (*metadata.DDO, error)
}

type AgreementCreator interface {
	Create(ctx context.Context, agreementID keeper.Bytes32, did string, set conditions.Set, timeouts, timeLocks []time.Duration, consumer keeper.Address) error
}

type PaymentLocker interface {
	Lock(ctx context.Context, agreementID keeper.Bytes32, price *big.Int, consumer keeper.Address) error
}

type Refunder interface {
	Refund(ctx context.Context, agreementID keeper.Bytes32, price *big.Int, creator, consumer keeper.Address, serviceType keeper.ServiceType) error
}

type FulfillmentWaiter interface {
	WaitForFulfillment(ctx context.Context, conditionType keeper.ConditionType, agreementID keeper.Bytes32, timeout time.Duration) (events.Outcome, error)
}

// Params wires an Orchestrator. Every field except FulfillmentTimeout is
// required.
type Params struct {
	Resolver Resolver
	Deriver  *conditions.Deriver
	Creator  AgreementCreator
	Locker   PaymentLocker
	Refunder Refunder
	Waiter   FulfillmentWaiter
	Consumer keeper.Address

	FulfillmentTimeout time.Duration
}

type Orchestrator struct {
	p Params
}

func New(p Params) (*Orchestrator, error) {
	switch {
	case p.Resolver == nil:
		return nil, errors.New("orders: resolver is required")
	case p.Deriver == nil:
		return nil, errors.New("orders: deriver is required")
	case p.Creator == nil:
		return nil, errors.New("orders: creator is required")
	case p.Locker == nil:
		return nil, errors.New("orders: locker is required")
	case p.Refunder == nil:
		return nil, errors.New("orders: refunder is required")
	case p.Waiter == nil:
		return nil, errors.New("orders: waiter is required")
	case p.Consumer == "":
		return nil, errors.New("orders: consumer address is required")
	}
	if p.FulfillmentTimeout <= 0 {
		p.FulfillmentTimeout = DefaultFulfillmentTimeout
	}
	return &Orchestrator{p: p}, nil
}

// Purchase runs one purchase saga for a service of the asset. The returned
// OrderResult is always populated; a non-nil error explains a terminal
// failure (the result then reports what on-chain effects remain).
//
// There is no cross-restart resume. A crashed run leaves the ledger as the
// source of truth; a fresh run inspects it through the status reader before
// deciding anything.
func (o *Orchestrator) Purchase(ctx context.Context, did string, serviceIndex int) (OrderResult, error) {
	result := OrderResult{DID: did, ServiceIndex: serviceIndex}

	ddo, err := o.p.Resolver.Resolve(ctx, did)
	if err != nil {
		return result, err
	}
	svc, err := ddo.Service(serviceIndex)
	if err != nil {
		return result, err
	}

	agreementID, err := newAgreementID()
	if err != nil {
		return result, err
	}
	result.AgreementID = agreementID

	set, err := o.p.Deriver.Derive(agreementID, svc.ServiceType, svc.Price, ddo.Creator, o.p.Consumer)
	if err != nil {
		return result, err
	}

	timeouts := make([]time.Duration, 3)
	timeLocks := make([]time.Duration, 3)
	if err := o.p.Creator.Create(ctx, agreementID, did, set, timeouts, timeLocks, o.p.Consumer); err != nil {
		// Nothing landed on-chain; no payment is attempted and nothing needs
		// compensation.
		return result, fmt.Errorf("orders: create agreement: %w", err)
	}

	if err := o.p.Locker.Lock(ctx, agreementID, svc.Price, o.p.Consumer); err != nil {
		if rerr := o.compensate(ctx, &result, svc, ddo.Creator); rerr != nil {
			log.Printf("%v", rerr)
		}
		return result, fmt.Errorf("orders: lock payment: %w", err)
	}

	releaseType, err := conditions.ReleaseCondition(svc.ServiceType)
	if err != nil {
		return result, err
	}
	timeout := svc.Timeout
	if timeout <= 0 {
		timeout = o.p.FulfillmentTimeout
	}
	outcome, err := o.p.Waiter.WaitForFulfillment(ctx, releaseType, agreementID, timeout)
	if err != nil {
		// Cancellation or subscription failure. Not a timeout: the saga does
		// not compensate unless told to.
		return result, fmt.Errorf("orders: wait for fulfillment: %w", err)
	}

	switch outcome.Result {
	case events.ResultFulfilled:
		result.AccessGranted = true
		return result, nil
	case events.ResultTimedOut:
		// A failed refund means funds may still be locked; the caller must
		// know, so it surfaces as an error even though the timeout itself is
		// a normal branch.
		if err := o.compensate(ctx, &result, svc, ddo.Creator); err != nil {
			return result, err
		}
		return result, nil
	default:
		return result, fmt.Errorf("orders: unexpected wait outcome %v", outcome.Result)
	}
}

func (o *Orchestrator) compensate(ctx context.Context, result *OrderResult, svc metadata.ServiceDescriptor, creator keeper.Address) error {
	result.RefundTriggered = true
	if err := o.p.Refunder.Refund(ctx, result.AgreementID, svc.Price, creator, o.p.Consumer, svc.ServiceType); err != nil {
		return fmt.Errorf("orders: refund %s: %w", result.AgreementID.Hex(), err)
	}
	return nil
}

func newAgreementID() (keeper.Bytes32, error) {
	var id keeper.Bytes32
	if _, err := rand.Read(id[:]); err != nil {
		return keeper.Bytes32{}, fmt.Errorf("orders: generate agreement id: %w", err)
	}
	return id, nil
}
