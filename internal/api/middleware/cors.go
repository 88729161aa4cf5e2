package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// NewCORS creates the CORS middleware for the report API. The surface is
// JSON over GET and POST, authenticated with the X-API-Key header
// (X-Master-User when dev mode is on), so only those are allowed through.
func NewCORS(allowedOrigins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"X-API-Key",
			"X-Master-User",
		},
		ExposedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})
}
