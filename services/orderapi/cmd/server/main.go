package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevermined-io/sdk-go/pkg/agreements"
	"github.com/nevermined-io/sdk-go/pkg/authn"
	"github.com/nevermined-io/sdk-go/pkg/conditions"
	"github.com/nevermined-io/sdk-go/pkg/db"
	"github.com/nevermined-io/sdk-go/pkg/events"
	"github.com/nevermined-io/sdk-go/pkg/httpx"
	"github.com/nevermined-io/sdk-go/pkg/keeper"
	"github.com/nevermined-io/sdk-go/pkg/metadata"
	"github.com/nevermined-io/sdk-go/pkg/orders"
	"github.com/nevermined-io/sdk-go/pkg/payments"
	"github.com/nevermined-io/sdk-go/pkg/webhooks"
	"github.com/nevermined-io/sdk-go/services/orderapi/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := keeper.LoadContractConfig(envOr("ARTIFACTS_PATH", "artifacts.yaml"))
	if err != nil {
		log.Fatalf("orderapi: load artifacts: %v", err)
	}
	consumer, err := keeper.ParseAddress(os.Getenv("CONSUMER_ADDRESS"))
	if err != nil {
		log.Fatalf("orderapi: CONSUMER_ADDRESS: %v", err)
	}

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("orderapi: database: %v", err)
	}
	defer pool.Close()
	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("orderapi: %v", err)
	}

	rpc := keeper.NewRPCClient(envOr("LEDGER_RPC_URL", "http://localhost:8545"))
	logs := keeper.NewWSLogClient(envOr("LEDGER_WS_URL", "ws://localhost:8546"))
	catalog := metadata.New(envOr("METADATA_URL", "http://localhost:5000"))

	deriver := conditions.NewDeriver(cfg)
	status := agreements.NewStatusReader(rpc, cfg)
	orchestrator, err := orders.New(orders.Params{
		Resolver: catalog,
		Deriver:  deriver,
		Creator:  agreements.NewCreator(rpc, status, cfg),
		Locker:   payments.NewLockExecutor(rpc, rpc, cfg),
		Refunder: payments.NewRefundExecutor(rpc, rpc, deriver, cfg),
		Waiter:   events.NewWaiter(logs, cfg),
		Consumer: consumer,
	})
	if err != nil {
		log.Fatalf("orderapi: %v", err)
	}

	var notifier *webhooks.Notifier
	if endpoint := os.Getenv("ORDER_WEBHOOK_URL"); endpoint != "" {
		notifier, err = webhooks.NewNotifier(endpoint, os.Getenv("ORDER_WEBHOOK_SECRET"))
		if err != nil {
			log.Fatalf("orderapi: webhook notifier: %v", err)
		}
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api/v1", func(api chi.Router) {
		api.With(requireScope(pool, authn.ScopeOrdersWrite)).Post("/orders", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				DID          string `json:"did"`
				ServiceIndex int    `json:"service_index"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
				return
			}
			if req.DID == "" {
				httpx.WriteError(w, http.StatusBadRequest, "MISSING_DID", "did is required")
				return
			}

			orderID := "ord_" + uuid.NewString()
			if err := st.InsertOrder(r.Context(), orderID, req.DID, req.ServiceIndex); err != nil {
				httpx.WriteError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
				return
			}

			result, purchaseErr := orchestrator.Purchase(r.Context(), req.DID, req.ServiceIndex)
			reason := ""
			if purchaseErr != nil {
				reason = purchaseErr.Error()
			}
			if err := st.CompleteOrder(r.Context(), orderID, result, reason); err != nil {
				log.Printf("orderapi: journal order %s: %v", orderID, err)
			}
			notifyOrder(r.Context(), notifier, orderID, result, reason)

			status := http.StatusOK
			if purchaseErr != nil && !errors.Is(purchaseErr, context.Canceled) {
				status = http.StatusConflict
			}
			httpx.WriteJSON(w, status, map[string]any{
				"request_id": httpx.NewRequestID(),
				"order_id":   orderID,
				"result":     result,
				"error":      reason,
			})
		})

		api.With(requireScope(pool, authn.ScopeOrdersRead)).Get("/orders/{order_id}", func(w http.ResponseWriter, r *http.Request) {
			o, err := st.GetOrder(r.Context(), chi.URLParam(r, "order_id"))
			if err != nil {
				httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "order": o})
		})

		api.With(requireScope(pool, authn.ScopeOrdersRead)).Get("/agreements/{agreement_id}/status", func(w http.ResponseWriter, r *http.Request) {
			agreementID, err := keeper.ParseBytes32(chi.URLParam(r, "agreement_id"))
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "BAD_AGREEMENT_ID", err.Error())
				return
			}
			snap, err := status.GetStatus(r.Context(), agreementID)
			if err != nil {
				code, httpStatus := "LEDGER_ERROR", http.StatusBadGateway
				if errors.Is(err, keeper.ErrConditionNotFound) {
					code, httpStatus = "CONDITION_NOT_FOUND", http.StatusInternalServerError
				}
				httpx.WriteError(w, httpStatus, code, err.Error())
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]any{
				"request_id":    httpx.NewRequestID(),
				"agreement_id":  snap.AgreementID.Hex(),
				"conditions":    snap.ConditionStates(),
				"all_fulfilled": snap.AllFulfilled,
			})
		})
	})

	addr := ":" + envOr("SERVICE_PORT", "8080")
	log.Printf("orderapi: listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("orderapi: serve: %v", err)
	}
}

// requireScope authenticates the bearer credential and checks one scope. Set
// AUTH_DISABLED=true to skip the check in local development.
func requireScope(pool *pgxpool.Pool, scope string) func(http.Handler) http.Handler {
	disabled := os.Getenv("AUTH_DISABLED") == "true"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if disabled {
				next.ServeHTTP(w, r)
				return
			}
			client, err := authn.AuthenticateBearer(r.Context(), pool, r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, authn.ErrUnauthorized) {
					httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credential")
					return
				}
				httpx.WriteError(w, http.StatusInternalServerError, "AUTH_ERROR", err.Error())
				return
			}
			if !authn.HasScope(client.Scopes, scope) {
				httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "credential lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func notifyOrder(ctx context.Context, notifier *webhooks.Notifier, orderID string, result orders.OrderResult, reason string) {
	if notifier == nil {
		return
	}
	eventType := webhooks.EventOrderCompleted
	switch {
	case reason != "":
		eventType = webhooks.EventOrderFailed
	case result.RefundTriggered:
		eventType = webhooks.EventOrderRefunded
	}
	agreementID := ""
	if !result.AgreementID.IsZero() {
		agreementID = result.AgreementID.Hex()
	}
	payload := map[string]any{"result": result, "error": reason}
	if err := notifier.Notify(ctx, eventType, orderID, agreementID, payload); err != nil {
		log.Printf("orderapi: webhook %s: %v", orderID, err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
