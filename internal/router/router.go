package router

import (
	"net/http"

	"voucherhub-api/internal/handler"
	"voucherhub-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ChatHandler    *handler.ChatHandler
	VoucherHandler *handler.VoucherHandler
	AdminHandler   *handler.AdminHandler
	AuthHandler    *handler.AuthHandler
	AuthMiddleware func(http.Handler) http.Handler
	BarcodeDir     string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// Barcode images referenced by chat replies - public
	if cfg.BarcodeDir != "" {
		fileServer := http.FileServer(http.Dir(cfg.BarcodeDir))
		r.Handle("/barcodes/*", http.StripPrefix("/barcodes/", fileServer))
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Auth endpoints
			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/token", cfg.AuthHandler.GenerateToken)
					r.Post("/revoke", cfg.AuthHandler.RevokeToken)
				})
			}

			// Chat endpoints
			if cfg.ChatHandler != nil {
				r.Route("/chat", func(r chi.Router) {
					r.Post("/message", cfg.ChatHandler.HandleMessage)
					r.Post("/import", cfg.ChatHandler.HandleImport)
				})
			}

			// Inventory endpoints
			if cfg.VoucherHandler != nil {
				r.Route("/vouchers", func(r chi.Router) {
					r.Get("/", cfg.VoucherHandler.List)
					r.Get("/grouped", cfg.VoucherHandler.Grouped)
					r.Get("/summary", cfg.VoucherHandler.Summary)
					r.Get("/stores", cfg.VoucherHandler.Stores)
				})
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/health", cfg.AdminHandler.GetHealth)
					r.Post("/sweep", cfg.AdminHandler.TriggerSweep)
				})
			}
		})
	})

	return r
}
