package mw

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/urldammit/internal/logger"
	"github.com/MrSnakeDoc/urldammit/internal/utils"
)

type trustKey struct{}

// Trust marks each request trusted when the client IP is in trusted.
// An empty list trusts everyone. Nothing is rejected here: handlers decide
// what an untrusted client may do.
func Trust(trusted []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(trusted)
	if m.IsEmpty() {
		log.Debug("Trust: empty matcher, every client is trusted")
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(WithTrusted(r.Context(), true)))
			})
		}
	}

	log.Debugf("Trust: initialized with %d rules, trustProxy=%v", len(trusted), trustProxy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			ok := m.Allow(ip)
			log.Debugf("Trust: IP=%s trusted=%v", ip, ok)
			next.ServeHTTP(w, r.WithContext(WithTrusted(r.Context(), ok)))
		})
	}
}

// WithTrusted returns a copy of ctx carrying the trust flag.
func WithTrusted(ctx context.Context, trusted bool) context.Context {
	return context.WithValue(ctx, trustKey{}, trusted)
}

// IsTrusted reports whether Trust accepted the request. Requests that never
// went through Trust are untrusted.
func IsTrusted(ctx context.Context) bool {
	v, _ := ctx.Value(trustKey{}).(bool)
	return v
}
