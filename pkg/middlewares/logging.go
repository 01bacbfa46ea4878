package middlewares

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

type statusRecorder struct {
	http.ResponseWriter

	statusCode int
	size       int
	logData    bool
	logger     *logrus.Entry
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size

	if err == nil && rw.logData {
		rw.logger.Debugf("wrote %d bytes: %s", size, b[:size])
	}
	return size, err
}

// LoggingMw tags each request with a transaction ID and writes one audit
// line per request.  Response bodies are logged only when logRequests is set.
type LoggingMw struct {
	logRequests bool
	next        http.Handler
}

func NewLoggingMw(logRequests bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return &LoggingMw{next: next, logRequests: logRequests}
	}
}

func (mw *LoggingMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	txnID, ok := logging.TxnID(r.Context())
	if !ok {
		txnID = uuid.New().String()
		r = r.WithContext(logging.WithTxnID(r.Context(), txnID))
	}
	rw.Header().Set("X-Txn-ID", txnID)

	if mw.logRequests {
		logging.Logger(r.Context()).Debugf("request headers: %+v", r.Header)
	}

	rec := statusRecorder{
		ResponseWriter: rw,
		statusCode:     http.StatusOK,
		logData:        mw.logRequests,
		logger:         logging.Logger(r.Context()),
	}
	mw.next.ServeHTTP(&rec, r)

	logging.Logger(r.Context()).WithFields(
		logrus.Fields{
			"entrytype": "audit",
			"status":    rec.statusCode,
			"method":    r.Method,
			"remote":    r.RemoteAddr,
			"start":     startTime.Format(time.RFC3339Nano),
			"duration":  time.Since(startTime),
			"path":      r.URL.Path,
			"size":      rec.size,
		},
	).Info(http.StatusText(rec.statusCode))
}
