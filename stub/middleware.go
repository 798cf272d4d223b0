package stub

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/intermedia-net/vault-chef-probe/stub/tokens"
)

type contextKey string

const (
	tokenKey contextKey = "token"
	entryKey contextKey = "entry"
)

// A specialized `http.ResponseWriter` for logging.
type loggingResponseWriter struct {
	http.ResponseWriter
	status     int
	contentLen int
}

// Write the header for the given status code.
func (l *loggingResponseWriter) WriteHeader(status int) {
	l.status = status
	l.ResponseWriter.WriteHeader(status)
}

// Write the given content to the client.
func (l *loggingResponseWriter) Write(content []byte) (int, error) {
	l.contentLen += len(content)
	return l.ResponseWriter.Write(content)
}

// A middleware that provides logging for each HTTP request.
//
// The token header is never logged.
func loggingMiddleware(logger hclog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := loggingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}

		next.ServeHTTP(&lw, r)

		logger.Info("request",
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.status,
			"bytes", lw.contentLen,
			"duration", time.Since(start))
	})
}

// A middleware for wrapping routes that require a token.
//
// The token and its entry are provided through the request context. Missing,
// unknown and expired tokens are all rejected the same way.
func (api *API) withTokenRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, entry := api.tokenStore.Get(r)

		if entry == nil {
			writeErrors(w, http.StatusForbidden, "permission denied")
			return
		}

		ctx := context.WithValue(r.Context(), tokenKey, token)
		ctx = context.WithValue(ctx, entryKey, entry)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestEntry(r *http.Request) (string, *tokens.Entry) {
	token, _ := r.Context().Value(tokenKey).(string)
	entry, _ := r.Context().Value(entryKey).(*tokens.Entry)

	return token, entry
}
