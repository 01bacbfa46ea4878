package middlewares

import (
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

var correlationIDRegexp = regexp.MustCompile(`^[\w-]{3,64}$`)

// CorrelationMw echoes a caller supplied correlation ID and uses it as the
// transaction ID for log lines of the request.  Must run before LoggingMw.
type CorrelationMw struct {
	headerName string
	next       http.Handler
}

func NewCorrelationMw(headerName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return &CorrelationMw{headerName: http.CanonicalHeaderKey(headerName), next: next}
	}
}

func (mw *CorrelationMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ids, ok := r.Header[mw.headerName]
	if ok && len(ids) > 0 {
		if correlationIDRegexp.MatchString(ids[0]) {
			rw.Header().Set(mw.headerName, ids[0])
			r = r.WithContext(logging.WithTxnID(r.Context(), ids[0]))
		} else {
			rw.Header().Set(mw.headerName, "<Bad_Correlation_Id>")
		}
	}

	mw.next.ServeHTTP(rw, r)
}
