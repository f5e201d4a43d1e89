package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sourcelane/negotiator-backend/api/responses"
	pkgAuth "github.com/sourcelane/negotiator-backend/pkg/auth"
	"github.com/sourcelane/negotiator-backend/pkg/config"
	pkgerrors "github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
)

// Auth validates a bearer service token and seeds the request context with
// the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseServiceToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxService, claims.Service)
			ctx = context.WithValue(ctx, ctxScopes, claims.Scopes)

			if logg != nil {
				ctx = logg.WithField(ctx, "service", claims.Service)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope gates a route on one token scope.
func RequireScope(scope string, cfgLogger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &pkgAuth.ServiceTokenClaims{
				Service: ServiceFromContext(r.Context()),
				Scopes:  ScopesFromContext(r.Context()),
			}
			if claims.Service == "" {
				responses.WriteError(r.Context(), cfgLogger, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if !claims.HasScope(scope) {
				responses.WriteError(r.Context(), cfgLogger, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "insufficient scope"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
