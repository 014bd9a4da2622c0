// Package shield is the middleware stack of the admin API: response
// headers for a JSON-only service, request body limits and per-request
// IDs.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// MaxBody is the default request body limit.
const MaxBody = 1 << 20

// Stack returns the admin API middleware in order:
// Recoverer → GetHead → SecurityHeaders → LimitBody → RequestID.
// GetHead needs a chi router to look routes up.
func Stack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.Recoverer,
		middleware.GetHead,
		SecurityHeaders(DefaultHeaders()),
		LimitBody(MaxBody),
		RequestID(logger),
	}
}
