package agreements

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nevermined-io/sdk-go/pkg/conditions"
	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

var (
	// ErrTemplateNotApproved signals the service type's on-chain template is
	// not in an approved state. No creation is attempted against it.
	ErrTemplateNotApproved = errors.New("agreements: template not approved")

	// ErrCreationFailed signals the creation could not be confirmed within
	// the polling budget. Retry policy belongs to the caller.
	ErrCreationFailed = errors.New("agreements: agreement creation not confirmed")
)

const (
	defaultConfirmAttempts = 6
	defaultConfirmDelay    = time.Second
)

// Creator submits agreement creation and confirms it landed. Receipts on an
// eventually-consistent ledger can read "not ok" while the write still lands,
// so an ambiguous receipt falls back to bounded read polling instead of being
// treated as failure.
type Creator struct {
	sender          keeper.TxSender
	status          *StatusReader
	cfg             keeper.ContractConfig
	confirmAttempts int
	confirmDelay    time.Duration
}

type CreatorOption func(*Creator)

// WithConfirmRetries overrides the confirmation polling budget.
func WithConfirmRetries(attempts int, delay time.Duration) CreatorOption {
	return func(c *Creator) {
		c.confirmAttempts = attempts
		c.confirmDelay = delay
	}
}

func NewCreator(sender keeper.TxSender, status *StatusReader, cfg keeper.ContractConfig, opts ...CreatorOption) *Creator {
	c := &Creator{
		sender:          sender,
		status:          status,
		cfg:             cfg,
		confirmAttempts: defaultConfirmAttempts,
		confirmDelay:    defaultConfirmDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.confirmAttempts < 1 {
		c.confirmAttempts = 1
	}
	if c.confirmDelay <= 0 {
		c.confirmDelay = defaultConfirmDelay
	}
	return c
}

// Create submits createAgreement for the derived condition set and returns
// once the agreement is observable on-chain.
func (c *Creator) Create(ctx context.Context, agreementID keeper.Bytes32, did string, set conditions.Set, timeouts, timeLocks []time.Duration, consumer keeper.Address) error {
	templateAddr, err := c.cfg.TemplateAddress(set.ServiceType)
	if err != nil {
		return err
	}
	approved, err := c.templateApproved(ctx, templateAddr)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("%w: %s (%s)", ErrTemplateNotApproved, set.ServiceType, templateAddr)
	}

	ids, err := set.SubmissionOrder()
	if err != nil {
		return err
	}
	receipt, err := c.sender.SendTransaction(ctx, templateAddr, "createAgreement",
		agreementID.Hex(), did, hexIDs(ids), durationSeconds(timeouts), durationSeconds(timeLocks), string(consumer))
	if err == nil && receipt.StatusOK {
		return nil
	}
	if err != nil {
		log.Printf("agreements: createAgreement %s submit error, confirming via reads: %v", agreementID.Hex(), err)
	}
	return c.confirmCreated(ctx, agreementID)
}

func (c *Creator) templateApproved(ctx context.Context, templateAddr keeper.Address) (bool, error) {
	tuple, err := c.status.caller.Call(ctx, c.cfg.TemplateStore, "isTemplateApproved", string(templateAddr))
	if err != nil {
		return false, fmt.Errorf("agreements: check template approval: %w", err)
	}
	if len(tuple) < 1 {
		return false, errors.New("agreements: isTemplateApproved returned no value")
	}
	approved, ok := keeper.AsBool(tuple[0])
	if !ok {
		return false, errors.New("agreements: isTemplateApproved result is not a bool")
	}
	return approved, nil
}

// confirmCreated polls getAgreement until the template id leaves the zero
// sentinel or the budget runs out.
func (c *Creator) confirmCreated(ctx context.Context, agreementID keeper.Bytes32) error {
	for attempt := 1; ; attempt++ {
		ag, err := c.status.GetAgreement(ctx, agreementID)
		if err == nil && ag.Created() {
			return nil
		}
		if attempt >= c.confirmAttempts {
			return fmt.Errorf("%w: %s after %d reads", ErrCreationFailed, agreementID.Hex(), attempt)
		}
		select {
		case <-time.After(c.confirmDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func hexIDs(ids []keeper.Bytes32) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

func durationSeconds(ds []time.Duration) []int64 {
	out := make([]int64, len(ds))
	for i, d := range ds {
		out[i] = int64(d / time.Second)
	}
	return out
}
