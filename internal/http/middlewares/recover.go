package middlewares

import (
	"net/http"
	"runtime/debug"

	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// WithRecover convierte un panic del handler en un 500 y deja el stack en el
// log en vez de tumbar el proceso.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recuperado",
						logger.String("panic", toString(rec)),
						logger.String("stack", string(debug.Stack())),
					)
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"server_error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic"
}
