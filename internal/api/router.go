package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sokolovdp/finmars-core-sub005/internal/api/handlers"
	custommiddleware "github.com/sokolovdp/finmars-core-sub005/internal/api/middleware"
	"github.com/sokolovdp/finmars-core-sub005/internal/config"
	"github.com/sokolovdp/finmars-core-sub005/internal/ledger"
	"github.com/sokolovdp/finmars-core-sub005/internal/performance"
	"github.com/sokolovdp/finmars-core-sub005/internal/report"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
	"github.com/sokolovdp/finmars-core-sub005/internal/task"
)

// Services bundles everything the router exposes.
type Services struct {
	DB          *sql.DB
	Reports     *report.Service
	Performance *performance.Service
	Ledger      *ledger.Service
	Tasks       *task.Service
	Registers   *repository.RegisterRepository
	Reference   *repository.ReferenceRepository
	APIKeys     custommiddleware.KeyResolver
}

// NewRouter creates and configures the HTTP router
func NewRouter(log zerolog.Logger, svc Services, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace is unauthenticated.
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(svc.DB)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.APIKey(svc.APIKeys))

			r.Route("/reports", func(r chi.Router) {
				reportHandler := handlers.NewReportHandler(svc.Reports)
				r.Post("/balance", reportHandler.Balance)
				r.Post("/pl", reportHandler.PL)
				r.Post("/transactions", reportHandler.Transactions)
			})

			r.Route("/registers", func(r chi.Router) {
				registerHandler := handlers.NewRegisterHandler(svc.Registers, svc.Reference, svc.Tasks)
				r.Get("/", registerHandler.List)
				r.Post("/", registerHandler.Create)
				r.Get("/{id}/records", registerHandler.Records)
				r.Post("/calculate", registerHandler.RunPipeline)
			})

			r.Route("/performance", func(r chi.Router) {
				performanceHandler := handlers.NewPerformanceHandler(svc.Performance)
				r.Post("/", performanceHandler.Compute)
				r.Post("/snapshot", performanceHandler.Snapshot)
			})

			r.Route("/tasks", func(r chi.Router) {
				taskHandler := handlers.NewTaskHandler(svc.Tasks)
				r.Get("/{id}", taskHandler.Get)
				r.Post("/{id}/cancel", taskHandler.Cancel)
			})

			r.Route("/ledger", func(r chi.Router) {
				ledgerHandler := handlers.NewLedgerHandler(svc.Ledger)
				r.Post("/transactions", ledgerHandler.BookTransaction)
				r.Post("/prices", ledgerHandler.StorePrice)
				r.Post("/fx-rates", ledgerHandler.StoreRate)
			})
		})
	})

	return r
}
