// Package store journals purchase attempts. The journal is audit-only: the
// ledger stays the durable source of saga truth and the core packages never
// read these rows.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevermined-io/sdk-go/pkg/orders"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

type Order struct {
	OrderID         string     `json:"order_id"`
	DID             string     `json:"did"`
	ServiceIndex    int        `json:"service_index"`
	AgreementID     string     `json:"agreement_id,omitempty"`
	AccessGranted   bool       `json:"access_granted"`
	RefundTriggered bool       `json:"refund_triggered"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// InsertOrder records a purchase attempt before the saga starts.
func (s *Store) InsertOrder(ctx context.Context, orderID, did string, serviceIndex int) error {
	_, err := s.DB.Exec(ctx, `
        INSERT INTO orders (order_id, did, service_index)
        VALUES ($1, $2, $3)
    `, orderID, did, serviceIndex)
	if err != nil {
		return fmt.Errorf("store: insert order: %w", err)
	}
	return nil
}

// CompleteOrder records the terminal result of the attempt. failureReason is
// empty on success and on the normal timeout/refund branch.
func (s *Store) CompleteOrder(ctx context.Context, orderID string, result orders.OrderResult, failureReason string) error {
	agreementID := ""
	if !result.AgreementID.IsZero() {
		agreementID = result.AgreementID.Hex()
	}
	_, err := s.DB.Exec(ctx, `
        UPDATE orders
        SET agreement_id=$1,
            access_granted=$2,
            refund_triggered=$3,
            failure_reason=$4,
            completed_at=now()
        WHERE order_id=$5
    `, agreementID, result.AccessGranted, result.RefundTriggered, failureReason, orderID)
	if err != nil {
		return fmt.Errorf("store: complete order: %w", err)
	}
	return nil
}

// GetOrder reads one journal row.
func (s *Store) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := s.DB.QueryRow(ctx, `
        SELECT order_id, did, service_index, coalesce(agreement_id,''),
               access_granted, refund_triggered, coalesce(failure_reason,''),
               created_at, completed_at
        FROM orders WHERE order_id=$1
    `, orderID).Scan(&o.OrderID, &o.DID, &o.ServiceIndex, &o.AgreementID,
		&o.AccessGranted, &o.RefundTriggered, &o.FailureReason, &o.CreatedAt, &o.CompletedAt)
	if err != nil {
		return Order{}, fmt.Errorf("store: get order %s: %w", orderID, err)
	}
	return o, nil
}

// Migrate creates the journal table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS orders (
            order_id         text PRIMARY KEY,
            did              text NOT NULL,
            service_index    int  NOT NULL,
            agreement_id     text,
            access_granted   boolean NOT NULL DEFAULT false,
            refund_triggered boolean NOT NULL DEFAULT false,
            failure_reason   text,
            created_at       timestamptz NOT NULL DEFAULT now(),
            completed_at     timestamptz
        );
        CREATE TABLE IF NOT EXISTS api_credentials (
            token_hash text PRIMARY KEY,
            client_id  text NOT NULL,
            scopes     text[] NOT NULL DEFAULT '{}',
            expires_at timestamptz,
            revoked_at timestamptz,
            created_at timestamptz NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
