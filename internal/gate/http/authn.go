package http

import (
	"net/http"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/service"
	"github.com/aussiebroadwan/rostergate/pkg/authsdk"
	"github.com/aussiebroadwan/rostergate/pkg/httpx"
	"github.com/aussiebroadwan/rostergate/pkg/slogx"
)

// AuthnMiddleware authenticates the bearer token and stores the resulting
// domain.Identity in the request context. Every failure gets the same 401
// invalid_token response; the reason is only logged.
func AuthnMiddleware(tokens *service.TokenService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			id, err := tokens.ValidateRequest(ctx, r.Header)
			if err != nil {
				reason := service.RejectReason(err)
				switch reason {
				case "bad_signature", "algorithm_mismatch":
					log.Warn("access token rejected", "reason", reason)
				case "directory_unavailable":
					log.Error("access token rejected", "reason", reason, "err", err)
				default:
					log.Info("access token rejected", "reason", reason)
				}

				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				authsdk.ErrInvalidToken.WriteError(w)
				return
			}

			ctx = domain.WithIdentity(ctx, id)
			ctx = httpx.WithUserID(ctx, id.User.ID)
			ctx = slogx.WithContext(ctx, log.With("user_id", id.User.ID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// identity returns the caller set by AuthnMiddleware, writing a 401 when
// the handler was mounted without it.
func identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
	}
	return id, ok
}
