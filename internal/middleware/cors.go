package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the configured origins to call the API. The surface is read
// heavy; the only writes are POSTs.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", requestIDHeader, "Retry-After"},
		MaxAge:           600,
		AllowCredentials: false,
	})

	return handler.Handler
}
