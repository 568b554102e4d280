package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cimillas/ultimate-parking/internal/metrics"
)

// TicketService is everything the ticket routes need.
type TicketService interface {
	TicketIssuer
	TicketQuoter
	ActiveTicketFinder
	TicketSettler
}

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Tickets TicketService
	CashCut CashCutReporter
	Store   Pinger

	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	CORSOrigins []string
	// StaticDir, when set, is served for GET requests no API route matches.
	StaticDir string
}

// NewRouter builds the API handler.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))

	r.NotFound(NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", HealthHandler)
	r.Get("/ready", ReadyHandler(cfg.Store, logger))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/ticket", HandleIssueTicket(cfg.Tickets, logger))
	r.Get("/ticket/{id}", HandleQuoteTicket(cfg.Tickets, logger))
	r.Get("/ticket/plate/{plate}", HandleFindActiveByPlate(cfg.Tickets, logger))
	r.Post("/pay/{id}", HandleSettleTicket(cfg.Tickets, logger))
	r.Post("/cash-cut", HandleCashCut(cfg.CashCut, logger))

	if cfg.StaticDir != "" {
		r.Get("/*", http.FileServer(http.Dir(cfg.StaticDir)).ServeHTTP)
	}

	return r
}
