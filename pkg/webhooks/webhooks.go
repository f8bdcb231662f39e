// Package webhooks delivers order lifecycle notifications to a subscriber
// endpoint. Payloads are signed with HMAC-SHA256 so the receiver can verify
// both origin and integrity without a shared transport secret.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SignatureHeader = "X-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"

	EventOrderCompleted = "order.completed"
	EventOrderRefunded  = "order.refunded"
	EventOrderFailed    = "order.failed"
)

// Event is the wire payload of one notification.
type Event struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	OrderID     string          `json:"order_id"`
	AgreementID string          `json:"agreement_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Sign computes the hex HMAC-SHA256 of the raw body under the secret.
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerificationResult reports what a receiver can conclude about an incoming
// notification before touching its payload.
type VerificationResult struct {
	Valid   bool           `json:"valid"`
	EventID string         `json:"event_id,omitempty"`
	Type    string         `json:"event_type,omitempty"`
	Details map[string]any `json:"details"`
}

// Verify checks an incoming notification's signature against the shared
// secret. A missing or undecodable signature yields an invalid result, not
// an error; errors are reserved for misconfiguration.
func Verify(headers http.Header, rawBody []byte, secret string) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, fmt.Errorf("webhooks: verifier secret is empty")
	}

	res := VerificationResult{
		EventID: strings.TrimSpace(headers.Get(EventIDHeader)),
		Type:    strings.TrimSpace(headers.Get(EventTypeHeader)),
		Details: map[string]any{
			"signature_header_present": false,
			"signature_hex_decodable":  false,
		},
	}
	if res.Type == "" {
		res.Type = "unknown"
	}

	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHex == "" {
		return res, nil
	}
	res.Details["signature_header_present"] = true

	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return res, nil
	}
	res.Details["signature_hex_decodable"] = true

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	res.Valid = hmac.Equal(mac.Sum(nil), provided)
	return res, nil
}

// Notifier posts signed events to one subscriber endpoint.
type Notifier struct {
	Endpoint   string
	HTTPClient *http.Client

	secret string
	now    func() time.Time
}

func NewNotifier(endpoint, secret string) (*Notifier, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("webhooks: endpoint is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhooks: secret is required")
	}
	return &Notifier{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		secret:     secret,
		now:        time.Now,
	}, nil
}

// Notify signs and delivers one event. The event id is generated here so
// retries by the caller produce distinct deliveries.
func (n *Notifier) Notify(ctx context.Context, eventType, orderID, agreementID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhooks: marshal payload: %w", err)
	}
	evt := Event{
		EventID:     "evt_" + uuid.NewString(),
		EventType:   eventType,
		OccurredAt:  n.now().UTC(),
		OrderID:     orderID,
		AgreementID: agreementID,
		Payload:     raw,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("webhooks: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(body, n.secret))
	req.Header.Set(EventIDHeader, evt.EventID)
	req.Header.Set(EventTypeHeader, evt.EventType)

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhooks: deliver %s: %w", evt.EventID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhooks: deliver %s: status %d", evt.EventID, resp.StatusCode)
	}
	return nil
}
