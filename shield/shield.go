// Package shield is the HTTP middleware stack of the relay status API:
// security headers, a request body cap, HEAD handling and per-request
// logging.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID)
//	for _, mw := range shield.APIStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

// DefaultMaxBody caps request bodies on the status API.
const DefaultMaxBody = 64 << 10

// APIStack returns the middleware for a local JSON API, in order:
// HeadToGet, SecurityHeaders, MaxBody, RequestLog.
func APIStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		RequestLog(logger),
	}
}
