package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	mw "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/services"
)

// Pinger reports datastore liveness. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterConfig wires the HTTP surface. An empty JWTSecret leaves the API
// unauthenticated.
type RouterConfig struct {
	Transfers      *services.TransferService
	Accounts       *services.AccountService
	History        *services.HistoryService
	Database       Pinger
	Logger         *zap.Logger
	JWTSecret      string
	RequestTimeout time.Duration
}

// NewRouter builds the static route table.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	transfers := NewTransferHandler(cfg.Transfers, cfg.Logger)
	accounts := NewAccountHandler(cfg.Accounts, cfg.Logger)
	history := NewHistoryHandler(cfg.History, cfg.Logger)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(mw.SecurityHeaders)
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", healthHandler(cfg.Database))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(mw.Authenticator(cfg.JWTSecret))
		}

		r.Post("/transfers", transfers.CreateTransfer)

		r.Post("/accounts", accounts.CreateAccount)
		r.Get("/accounts/by-number/{accountNumber}", accounts.GetAccountByNumber)
		r.Get("/accounts/{accountId}", accounts.GetAccount)
		r.Get("/accounts/{accountId}/transactions", history.GetHistory)
		r.Post("/accounts/{accountId}/deposits", transfers.CreateDeposit)

		r.Get("/transactions/by-reference/{referenceNumber}", transfers.GetTransactionByReference)
		r.Get("/transactions/{transactionId}", transfers.GetTransaction)
	})

	return r
}

// healthHandler answers 200 when the database responds to a ping.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
