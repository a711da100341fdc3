package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"trigger-engine/internal/common/logging"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"

	maxIDLength = 128
)

// RequestID tags the request context with a request id, reusing a sane inbound one, and
// carries an inbound correlation id through to the logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := cleanID(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx := logging.ContextWithRequestID(r.Context(), id)
		if corr := cleanID(r.Header.Get(HeaderCorrelationID)); corr != "" {
			ctx = logging.ContextWithCorrelationID(ctx, corr)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func cleanID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > maxIDLength {
		return ""
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return id
}
