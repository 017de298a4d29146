package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/httputil"
)

// Recovery returns middleware that recovers from panics, logs the stack, and
// responds with a 500.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					httputil.WriteReason(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
