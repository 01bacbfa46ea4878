package middlewares

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewCorsMw allows browser based dashboards on the given origins to call the
// API.  Should be first in the chain so that preflight requests short-circuit.
func NewCorsMw(origins []string) mux.MiddlewareFunc {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Correlation-ID"},
		ExposedHeaders: []string{"X-Txn-ID", "X-Correlation-ID"},
	})

	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}
