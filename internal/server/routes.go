package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/media/info", h.MediaInfo).Methods(http.MethodGet)
	r.HandleFunc("/media/thumbnail", h.Thumbnail).Methods(http.MethodGet)
	r.HandleFunc("/media/thumbnail-file", h.ThumbnailFile).Methods(http.MethodPost)

	// Fixed paths go before /compressions/{id}.
	r.HandleFunc("/compressions", h.CreateCompression).Methods(http.MethodPost)
	r.HandleFunc("/compressions", h.ListCompressions).Methods(http.MethodGet)
	r.HandleFunc("/compressions/state", h.CompressionState).Methods(http.MethodGet)
	r.HandleFunc("/compressions/cancel", h.CancelCompression).Methods(http.MethodPost)
	r.HandleFunc("/compressions/events", h.ProgressStream).Methods(http.MethodGet)
	r.HandleFunc("/compressions/{id}", h.GetCompression).Methods(http.MethodGet)
	r.HandleFunc("/compressions/{id}", h.DeleteCompression).Methods(http.MethodDelete)

	r.HandleFunc("/cache", h.ClearCache).Methods(http.MethodDelete)
	r.HandleFunc("/log-level", h.SetLogLevel).Methods(http.MethodPut)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         86400,
	})

	chain := ChainMiddleware(
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
		c.Handler,
	)

	return chain(r)
}
