// Package authn authenticates API clients of the order service. Credentials
// are opaque bearer tokens; only their SHA-256 hash is stored.
package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	ScopeOrdersRead  = "orders:read"
	ScopeOrdersWrite = "orders:write"
)

// ClientIdentity is the resolved caller of an authenticated request.
type ClientIdentity struct {
	ClientID string
	Scopes   []string
}

// AuthenticateBearer resolves an Authorization header to a client identity.
// Unknown, revoked, and expired tokens all map to ErrUnauthorized; the caller
// cannot distinguish them.
func AuthenticateBearer(ctx context.Context, db *pgxpool.Pool, authorization string) (*ClientIdentity, error) {
	token, ok := parseBearerToken(authorization)
	if !ok {
		return nil, ErrUnauthorized
	}
	var out ClientIdentity
	var expiresAt *time.Time
	err := db.QueryRow(ctx, `
SELECT client_id,scopes,expires_at
FROM api_credentials
WHERE token_hash=$1
  AND revoked_at IS NULL
`, hashToken(token)).Scan(&out.ClientID, &out.Scopes, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if credentialExpired(time.Now().UTC(), expiresAt) {
		return nil, ErrUnauthorized
	}
	return &out, nil
}

func HasScope(scopes []string, required string) bool {
	for _, s := range scopes {
		if s == required {
			return true
		}
	}
	return false
}

func parseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func credentialExpired(now time.Time, expiresAt *time.Time) bool {
	return expiresAt != nil && !now.Before(expiresAt.UTC())
}
