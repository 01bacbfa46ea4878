package middlewares

import (
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"

	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

func NewRecoveryMw() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.Logger(r.Context()).Errorf("caught panic: %v : %s", err, debug.Stack())

					rw.Header().Set("Content-Type", "application/json")
					rw.WriteHeader(http.StatusInternalServerError)
					rw.Write([]byte(`{"error":"internal server error","kind":"internal"}` + "\n"))
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
