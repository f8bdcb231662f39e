// Package metadata resolves DIDs against the catalog service. The catalog is
// read-only from this SDK's perspective.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

// ErrServiceNotFound signals a DDO without the requested service index.
var ErrServiceNotFound = errors.New("metadata: service index not found")

// ServiceDescriptor describes one purchasable service of an asset.
type ServiceDescriptor struct {
	Index       int                `json:"index"`
	ServiceType keeper.ServiceType `json:"type"`
	Price       *big.Int           `json:"-"`
	Endpoint    string             `json:"service_endpoint"`
	Timeout     time.Duration      `json:"-"`
}

func (s *ServiceDescriptor) UnmarshalJSON(raw []byte) error {
	var wire struct {
		Index       int    `json:"index"`
		Type        string `json:"type"`
		Price       string `json:"price"`
		Endpoint    string `json:"service_endpoint"`
		TimeoutSecs int64  `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	s.Index = wire.Index
	s.ServiceType = keeper.ServiceType(wire.Type)
	s.Endpoint = wire.Endpoint
	s.Timeout = time.Duration(wire.TimeoutSecs) * time.Second
	if wire.Price != "" {
		price, ok := new(big.Int).SetString(wire.Price, 10)
		if !ok {
			return fmt.Errorf("metadata: invalid price %q", wire.Price)
		}
		s.Price = price
	}
	return nil
}

// DDO is the catalog's descriptor document for one asset.
type DDO struct {
	DID      string              `json:"did"`
	Creator  keeper.Address      `json:"creator"`
	Services []ServiceDescriptor `json:"services"`
}

// Service returns the service at the given index.
func (d *DDO) Service(index int) (ServiceDescriptor, error) {
	for _, svc := range d.Services {
		if svc.Index == index {
			return svc, nil
		}
	}
	return ServiceDescriptor{}, fmt.Errorf("%w: %s index %d", ErrServiceNotFound, d.DID, index)
}

// Client is a thin HTTP client for the catalog's resolve endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Resolve fetches the DDO for a DID.
func (c *Client) Resolve(ctx context.Context, did string) (*DDO, error) {
	u := fmt.Sprintf("%s/api/v1/ddo/%s", c.BaseURL, url.PathEscape(did))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata: resolve %s: %w", did, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("metadata: read resolve response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata: resolve %s: status %d: %s", did, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var ddo DDO
	if err := json.Unmarshal(body, &ddo); err != nil {
		return nil, fmt.Errorf("metadata: decode ddo: %w", err)
	}
	if ddo.DID == "" {
		ddo.DID = did
	}
	return &ddo, nil
}
