package metadata

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

const ddoJSON = `{
  "did": "did:nv:1234",
  "creator": "0x5555555555555555555555555555555555555555",
  "services": [
    {"index": 0, "type": "access", "price": "100", "service_endpoint": "https://gateway.example/access", "timeout_seconds": 60},
    {"index": 2, "type": "nft-sales", "price": "2500"}
  ]
}`

func TestResolveDecodesDDO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ddo/did:nv:1234" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(ddoJSON))
	}))
	defer srv.Close()

	ddo, err := New(srv.URL).Resolve(context.Background(), "did:nv:1234")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ddo.DID != "did:nv:1234" {
		t.Fatalf("did = %s", ddo.DID)
	}
	if ddo.Creator != keeper.Address("0x5555555555555555555555555555555555555555") {
		t.Fatalf("creator = %s", ddo.Creator)
	}
	if len(ddo.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(ddo.Services))
	}

	svc, err := ddo.Service(0)
	if err != nil {
		t.Fatalf("service 0: %v", err)
	}
	if svc.ServiceType != keeper.ServiceAccess {
		t.Fatalf("type = %s", svc.ServiceType)
	}
	if svc.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("price = %s", svc.Price)
	}
	if svc.Timeout != 60*time.Second {
		t.Fatalf("timeout = %v", svc.Timeout)
	}
	if svc.Endpoint != "https://gateway.example/access" {
		t.Fatalf("endpoint = %s", svc.Endpoint)
	}
}

func TestResolveServiceLookupByIndexNotPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ddoJSON))
	}))
	defer srv.Close()

	ddo, err := New(srv.URL).Resolve(context.Background(), "did:nv:1234")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	svc, err := ddo.Service(2)
	if err != nil {
		t.Fatalf("service 2: %v", err)
	}
	if svc.ServiceType != keeper.ServiceNFTSales {
		t.Fatalf("type = %s", svc.ServiceType)
	}
	if _, err := ddo.Service(1); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("index 1 has no service, got %v", err)
	}
}

func TestResolveNotFoundStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such asset", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Resolve(context.Background(), "did:nv:missing"); err == nil {
		t.Fatalf("expected error on 404")
	}
}

func TestResolveRejectsMalformedPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"did":"did:nv:x","services":[{"index":0,"type":"access","price":"not-a-number"}]}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Resolve(context.Background(), "did:nv:x"); err == nil {
		t.Fatalf("expected decode error for malformed price")
	}
}
