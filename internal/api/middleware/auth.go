package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dom/pack-minter/internal/service"
	"go.uber.org/zap"
)

type contextKey string

const (
	SubjectKey contextKey = "subject"
)

// ServiceAuth requires a bearer service token whose subject is one of
// subjects.
func ServiceAuth(tokens *service.ServiceTokenService, logger *zap.Logger, subjects ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		allowed[s] = true
	}
	logger = logger.Named("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("missing authorization header", zap.String("path", r.URL.Path))
				writeUnauthorized(w, "Authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("invalid authorization header format", zap.String("path", r.URL.Path))
				writeUnauthorized(w, "Invalid authorization header")
				return
			}

			subject, err := tokens.Validate(parts[1])
			if err != nil {
				logger.Warn("token validation failed", zap.String("path", r.URL.Path), zap.Error(err))
				writeUnauthorized(w, "Invalid token")
				return
			}
			if !allowed[subject] {
				logger.Warn("subject not allowed", zap.String("path", r.URL.Path), zap.String("subject", subject))
				writeUnauthorized(w, "Token not allowed for this endpoint")
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectKey).(string)
	return subject, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
