// Package keeper holds the primitives this SDK shares with the deployed
// contract layer: addresses, 32-byte identifiers, condition/agreement state,
// and the narrow interfaces the higher-level components consume. The ledger
// itself is always a black box behind TxSender, Caller and LogSubscriber.
package keeper

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrMissingAddress signals an incomplete contract address book. This is a
	// deployment/configuration fault and is never retried.
	ErrMissingAddress = errors.New("keeper: contract address not configured")

	// ErrConditionNotFound signals a condition whose contract address does not
	// match any configured condition contract.
	ErrConditionNotFound = errors.New("keeper: condition contract not recognized")
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// Address is a deployed contract or account address, normalized to
// lowercase 0x-prefixed hex.
type Address string

// ParseAddress validates and normalizes an address.
func ParseAddress(s string) (Address, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	if !addressPattern.MatchString(n) {
		return "", fmt.Errorf("keeper: invalid address %q", s)
	}
	return Address(n), nil
}

// ZeroAddress is the sentinel an unset address slot reads back as.
const ZeroAddress = Address("0x0000000000000000000000000000000000000000")

// Bytes32 is a 32-byte ledger identifier (agreement ids, condition ids).
type Bytes32 [32]byte

// ParseBytes32 decodes a 0x-prefixed 64-digit hex string. Anything that is
// not exactly 32 bytes is rejected.
func ParseBytes32(s string) (Bytes32, error) {
	n := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	raw, err := hex.DecodeString(n)
	if err != nil {
		return Bytes32{}, fmt.Errorf("keeper: invalid 32-byte identifier %q: %w", s, err)
	}
	if len(raw) != 32 {
		return Bytes32{}, fmt.Errorf("keeper: identifier %q is %d bytes, want 32", s, len(raw))
	}
	var b Bytes32
	copy(b[:], raw)
	return b, nil
}

// Hex renders the identifier as 0x-prefixed lowercase hex.
func (b Bytes32) Hex() string { return "0x" + hex.EncodeToString(b[:]) }

// IsZero reports whether the identifier is the all-zero sentinel.
func (b Bytes32) IsZero() bool { return b == Bytes32{} }

func (b Bytes32) MarshalText() ([]byte, error) { return []byte(b.Hex()), nil }

func (b *Bytes32) UnmarshalText(text []byte) error {
	v, err := ParseBytes32(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// ConditionState mirrors the condition store's state enum. Only the ledger
// moves a condition between states; this SDK just reads them.
type ConditionState uint8

const (
	Uninitialized ConditionState = iota
	Unfulfilled
	Fulfilled
	Aborted
)

func (s ConditionState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Unfulfilled:
		return "unfulfilled"
	case Fulfilled:
		return "fulfilled"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ConditionType names a deployed condition contract.
type ConditionType string

const (
	ConditionLockPayment      ConditionType = "lockPayment"
	ConditionAccess           ConditionType = "access"
	ConditionEscrowPayment    ConditionType = "escrowPayment"
	ConditionComputeExecution ConditionType = "computeExecution"
	ConditionTransferNFT      ConditionType = "transferNFT"
	ConditionTransferDID      ConditionType = "transferDID"
	ConditionNFTAccess        ConditionType = "nftAccess"
	ConditionNFTHolder        ConditionType = "nftHolder"
)

// ServiceType names an on-chain agreement template.
type ServiceType string

const (
	ServiceAccess    ServiceType = "access"
	ServiceCompute   ServiceType = "compute"
	ServiceNFTSales  ServiceType = "nft-sales"
	ServiceDIDSales  ServiceType = "did-sales"
	ServiceNFTAccess ServiceType = "nft-access"
)

// Receipt is the synchronous result of a submitted transaction. StatusOK
// false is ambiguous on an eventually-consistent ledger: the write may still
// land, so callers confirm through reads rather than trusting the receipt.
type Receipt struct {
	TxHash   string
	StatusOK bool
}

// LogEvent is one entry from a contract's event log.
type LogEvent struct {
	Contract Address
	Topics   []string
	Data     map[string]any
}

// TxSender submits state-changing transactions to a deployed contract.
type TxSender interface {
	SendTransaction(ctx context.Context, contract Address, method string, args ...any) (Receipt, error)
}

// Caller performs read-only contract calls. Return values come back as a
// loosely-typed tuple; callers coerce what they need.
type Caller interface {
	Call(ctx context.Context, contract Address, method string, args ...any) ([]any, error)
}

// LogSubscriber streams a contract's log events filtered by topics. The
// returned cancel func tears the subscription down; it is safe to call more
// than once.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, contract Address, topics []string) (<-chan LogEvent, func(), error)
}
