package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/V4T54L/worksync/internal/domain"
)

const (
	APIKeyHeader = "X-API-Key"
	// APIKeyParam carries the key on routes opened by a browser EventSource,
	// which cannot set request headers.
	APIKeyParam = "api_key"
)

// AuthOption adjusts how a route presents its API key.
type AuthOption func(*authOptions)

type authOptions struct {
	allowQuery bool
}

// WithQueryKey also accepts the key from the api_key query parameter.
func WithQueryKey() AuthOption {
	return func(o *authOptions) { o.allowQuery = true }
}

// Auth returns a middleware that admits requests carrying a valid API key,
// read from X-API-Key or an "Authorization: Bearer" header. Rejections are
// JSON and never echo the key; logs carry a short fingerprint instead.
func Auth(repo domain.APIKeyRepository, logger *slog.Logger, opts ...AuthOption) func(http.Handler) http.Handler {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := presentedKey(r, o.allowQuery)
			if key == "" {
				logger.Warn("API key missing from request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				deny(w, http.StatusUnauthorized, "API key required")
				return
			}

			ok, err := repo.IsValid(r.Context(), key)
			if err != nil {
				logger.Error("failed to validate API key", "error", err, "path", r.URL.Path)
				deny(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !ok {
				logger.Warn("invalid API key provided",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"key_fingerprint", Fingerprint(key),
				)
				deny(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request, allowQuery bool) string {
	if k := strings.TrimSpace(r.Header.Get(APIKeyHeader)); k != "" {
		return k
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		if k := strings.TrimSpace(token); k != "" {
			return k
		}
	}
	if allowQuery {
		return strings.TrimSpace(r.URL.Query().Get(APIKeyParam))
	}
	return ""
}

// Fingerprint identifies a key in logs without revealing it.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
