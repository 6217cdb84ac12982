package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/ledger-backend/internal/api/handlers"
	"github.com/baharkarakas/ledger-backend/internal/auth"
	"github.com/baharkarakas/ledger-backend/internal/config"
	"github.com/baharkarakas/ledger-backend/internal/metrics"
	"github.com/baharkarakas/ledger-backend/internal/middleware"
)

type RouterDeps struct {
	Cfg           config.Config
	TM            *auth.TokenManager
	Users         handlers.UserService
	Balances      handlers.BalanceReader
	Transfers     handlers.Transferrer
	History       handlers.HistoryReader
	Notifications handlers.Subscriber
	// TransferCounter backs the per-caller transfer window; nil disables it.
	TransferCounter middleware.WindowCounter
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	authH := handlers.NewAuthHandler(d.TM, d.Users)
	accountH := handlers.NewAccountHandler(d.Balances, d.Transfers, d.History)
	notifyH := handlers.NewNotificationsHandler(d.Notifications)
	authMW := middleware.NewAuthMiddleware(d.TM)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/signup", authH.Signup)
			r.Post("/signin", authH.Signin)
			r.Post("/refresh", authH.Refresh)
		})

		r.Route("/account", func(r chi.Router) {
			r.With(authMW.AuthStream).Get("/notifications", notifyH.Stream)

			r.Group(func(r chi.Router) {
				r.Use(authMW.Auth)
				r.Get("/balance", accountH.Balance)
				r.With(middleware.WindowLimit("transfer", d.Cfg.TransferRateLimit, d.Cfg.TransferRateWindow, d.TransferCounter)).
					Post("/transfer", accountH.Transfer)
				r.Get("/history", accountH.History)
				r.Get("/export", accountH.Export)
				r.Get("/analytics", accountH.Analytics)
			})
		})
	})

	return r
}
