package api

import (
	"net/http"

	"github.com/dom/pack-minter/internal/api/handlers"
	"github.com/dom/pack-minter/internal/api/middleware"
	"github.com/dom/pack-minter/internal/config"
	"github.com/dom/pack-minter/internal/content"
	"github.com/dom/pack-minter/internal/service"
	"github.com/dom/pack-minter/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OperatorSubject is the service token subject allowed to inspect and
// replay the reconciliation queue.
const OperatorSubject = "operator"

type RouterDeps struct {
	Services *service.Services
	Hub      *websocket.Hub
	// LocalStore is set when content is served by this process.
	LocalStore *content.LocalStore
	Registry   *prometheus.Registry
	Config     *config.Config
	Logger     *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	mintHandler := handlers.NewMintHandler(deps.Services.Mint, deps.Logger)
	ledgerHandler := handlers.NewLedgerHandler(deps.Services.Ledger, deps.Logger)
	battleHandler := handlers.NewBattleHandler(deps.Services.Ledger, deps.Logger)
	reconcileHandler := handlers.NewReconciliationHandler(deps.Services.Reconcile, deps.Logger)

	// The pack-opening client posts to the bare path.
	r.Post("/mint", mintHandler.Mint)

	if deps.LocalStore != nil {
		contentHandler := handlers.NewContentHandler(deps.LocalStore)
		r.Get("/content/{digest}", contentHandler.Get)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/mint", mintHandler.Mint)

		r.Get("/leaderboard", ledgerHandler.Leaderboard)
		r.Get("/nfts", ledgerHandler.NFTs)
		r.Get("/wallets/{address}", ledgerHandler.Wallet)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ServiceAuth(deps.Services.Tokens, deps.Logger, service.BattleSubject))
			r.Post("/wallets/{address}/wins", battleHandler.RecordWin)
		})

		r.Route("/reconciliation", func(r chi.Router) {
			r.Use(middleware.ServiceAuth(deps.Services.Tokens, deps.Logger, OperatorSubject))
			r.Get("/", reconcileHandler.List)
			r.Post("/replay", reconcileHandler.Replay)
		})

		if deps.Hub != nil {
			wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Config.CORSAllowedOrigins, deps.Logger)
			r.Get("/ws", wsHandler.Handle)
		}
	})

	return r
}
