package middlewares

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
)

type ridKey struct{}

// WithRequestID genera o propaga un Request ID único por request. Si el
// cliente envía X-Request-ID se respeta, si no se genera uno nuevo.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if rid == "" {
				var b [16]byte
				_, _ = rand.Read(b[:])
				rid = hex.EncodeToString(b[:])
			}
			w.Header().Set("X-Request-ID", rid)
			ctx := context.WithValue(r.Context(), ridKey{}, rid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID recupera el id inyectado por WithRequestID, o "".
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(ridKey{}).(string)
	return rid
}
