// Package conditions derives the condition identifiers of a service
// agreement. The derivation is pure and deterministic: the compensation path
// recomputes ids long after the purchase context is gone and must land on
// exactly the same values, so every caller in this SDK routes through one
// Deriver and no second hashing code path exists.
package conditions

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

// ErrUnknownServiceType signals a service type with no registered template
// layout.
var ErrUnknownServiceType = errors.New("conditions: unknown service type")

// releaseByService maps each service type to the condition whose fulfillment
// releases the escrow. These are fixed by the deployed template contracts.
var releaseByService = map[keeper.ServiceType]keeper.ConditionType{
	keeper.ServiceAccess:    keeper.ConditionAccess,
	keeper.ServiceCompute:   keeper.ConditionComputeExecution,
	keeper.ServiceNFTSales:  keeper.ConditionTransferNFT,
	keeper.ServiceDIDSales:  keeper.ConditionTransferDID,
	keeper.ServiceNFTAccess: keeper.ConditionNFTAccess,
}

// submissionOrder permutes ids from creation order [lock, release, escrow]
// into the argument order the template's createAgreement expects. The sales
// templates take the transfer condition first; this mirrors the on-chain
// signatures and is not a normalization to "fix".
var submissionOrder = map[keeper.ServiceType][3]int{
	keeper.ServiceAccess:    {0, 1, 2},
	keeper.ServiceCompute:   {0, 1, 2},
	keeper.ServiceNFTAccess: {0, 1, 2},
	keeper.ServiceNFTSales:  {1, 0, 2},
	keeper.ServiceDIDSales:  {1, 0, 2},
}

// ReleaseCondition returns the condition type whose fulfillment grants the
// service for the given service type.
func ReleaseCondition(s keeper.ServiceType) (keeper.ConditionType, error) {
	t, ok := releaseByService[s]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServiceType, s)
	}
	return t, nil
}

// Set carries the three derived condition ids of one agreement, in their
// logical roles.
type Set struct {
	ServiceType keeper.ServiceType
	Lock        keeper.Bytes32
	Release     keeper.Bytes32
	Escrow      keeper.Bytes32
}

// CreationOrder returns the ids in the order they are derived:
// [lock, release, escrow].
func (s Set) CreationOrder() []keeper.Bytes32 {
	return []keeper.Bytes32{s.Lock, s.Release, s.Escrow}
}

// SubmissionOrder returns the ids in the argument order the service type's
// template contract expects.
func (s Set) SubmissionOrder() ([]keeper.Bytes32, error) {
	perm, ok := submissionOrder[s.ServiceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServiceType, s.ServiceType)
	}
	creation := s.CreationOrder()
	out := make([]keeper.Bytes32, 3)
	for i, idx := range perm {
		out[i] = creation[idx]
	}
	return out, nil
}

// Deriver computes condition ids from the configured contract addresses.
type Deriver struct {
	cfg keeper.ContractConfig
}

func NewDeriver(cfg keeper.ContractConfig) *Deriver {
	return &Deriver{cfg: cfg}
}

// Derive computes the lock, release and escrow condition ids of an agreement.
//
// Each id is SHA3-256 over a newline-joined encoding:
//
//	valuesHash = H(param1 \n param2 \n ...)
//	id         = H(conditionType \n contractAddress \n agreementID \n valuesHash)
//
// with identifiers rendered as 0x-prefixed lowercase hex and amounts in
// base-10. The escrow values include the lock and release ids, chaining the
// three digests together.
func (d *Deriver) Derive(agreementID keeper.Bytes32, serviceType keeper.ServiceType, price *big.Int, creator, consumer keeper.Address) (Set, error) {
	if agreementID.IsZero() {
		return Set{}, errors.New("conditions: zero agreement id")
	}
	if price == nil || price.Sign() < 0 {
		return Set{}, errors.New("conditions: price must be a non-negative amount")
	}
	releaseType, err := ReleaseCondition(serviceType)
	if err != nil {
		return Set{}, err
	}

	lockAddr, err := d.cfg.ConditionAddress(keeper.ConditionLockPayment)
	if err != nil {
		return Set{}, err
	}
	releaseAddr, err := d.cfg.ConditionAddress(releaseType)
	if err != nil {
		return Set{}, err
	}
	escrowAddr, err := d.cfg.ConditionAddress(keeper.ConditionEscrowPayment)
	if err != nil {
		return Set{}, err
	}

	lock := conditionID(keeper.ConditionLockPayment, lockAddr, agreementID,
		string(escrowAddr), string(d.cfg.Token), price.String(), string(consumer))
	release := conditionID(releaseType, releaseAddr, agreementID,
		string(creator), string(consumer))
	escrow := conditionID(keeper.ConditionEscrowPayment, escrowAddr, agreementID,
		price.String(), string(consumer), string(creator), lock.Hex(), release.Hex())

	return Set{ServiceType: serviceType, Lock: lock, Release: release, Escrow: escrow}, nil
}

func conditionID(t keeper.ConditionType, contract keeper.Address, agreementID keeper.Bytes32, params ...string) keeper.Bytes32 {
	values := contentHash(params...)
	return contentHash(string(t), string(contract), agreementID.Hex(), values.Hex())
}

func contentHash(parts ...string) keeper.Bytes32 {
	return keeper.Bytes32(sha3.Sum256([]byte(strings.Join(parts, "\n"))))
}
