// Package gateway is the consumer-side client of the provider gateway: once
// access is granted on-chain, the asset itself is fetched here. The gateway
// authenticates consumers with short-lived signed access grants.
package gateway

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

const grantTTL = 5 * time.Minute

// AccessClaims is the grant payload the gateway verifies: which consumer,
// which asset, and under which agreement.
type AccessClaims struct {
	AgreementID string `json:"agreement_id"`
	jwt.RegisteredClaims
}

// Client fetches purchased assets from a provider gateway.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	consumer keeper.Address
	key      *ecdsa.PrivateKey
	now      func() time.Time
}

func New(baseURL string, consumer keeper.Address, key *ecdsa.PrivateKey) (*Client, error) {
	if key == nil {
		return nil, errors.New("gateway: signing key is required")
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		consumer:   consumer,
		key:        key,
		now:        time.Now,
	}, nil
}

// AccessToken builds the signed grant for one agreement.
func (c *Client) AccessToken(did string, agreementID keeper.Bytes32) (string, error) {
	now := c.now().UTC()
	claims := AccessClaims{
		AgreementID: agreementID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    string(c.consumer),
			Subject:   did,
			Audience:  jwt.ClaimStrings{c.BaseURL},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(grantTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("gateway: sign access grant: %w", err)
	}
	return signed, nil
}

// Access downloads the asset payload for a granted agreement.
func (c *Client) Access(ctx context.Context, did string, agreementID keeper.Bytes32) ([]byte, error) {
	grant, err := c.AccessToken(did, agreementID)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/api/v1/access/%s/%s", c.BaseURL, url.PathEscape(did), url.PathEscape(agreementID.Hex()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+grant)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: access request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read access response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: access status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
