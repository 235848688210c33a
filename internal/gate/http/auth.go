package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/service"
	"github.com/aussiebroadwan/rostergate/pkg/authsdk"
	"github.com/aussiebroadwan/rostergate/pkg/httpx"
	"github.com/aussiebroadwan/rostergate/pkg/slogx"
)

// errLoginOTP is the login answer for a wrong one-time password. It is a
// 401 like every other login failure.
var errLoginOTP = authsdk.NewOAuth2Error(http.StatusUnauthorized, authsdk.ErrorCodeInvalidOTP, "the one-time password is invalid")

// AuthHandler serves the session endpoints.
type AuthHandler struct {
	TokenService *service.TokenService
	MFAService   *service.MFAService
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in
//	@Description	Checks a username and password and returns a token pair. Accounts with TOTP enabled must also send a current one-time password.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse	"Access and refresh token"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_grant, mfa_required or invalid_otp"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse	"User directory unavailable"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	req, ok := httpx.BindAndValidate[authsdk.LoginRequest](w, r)
	if !ok {
		return
	}

	pair, err := h.TokenService.Login(ctx, req.Username, req.Password, req.OTP)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrMFARequired):
		authsdk.ErrMFARequired.WriteError(w)
		return
	case errors.Is(err, service.ErrInvalidOTP):
		errLoginOTP.WriteError(w)
		return
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInactiveSubject):
		authsdk.ErrInvalidGrant.WriteError(w)
		return
	case errors.Is(err, service.ErrDirectoryUnavailable):
		log.Error("login failed", "err", err)
		authsdk.ErrUnavailable.WriteError(w)
		return
	default:
		log.Error("login failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	writeTokenPair(w, pair)
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Renew a session
//	@Description	Redeems a refresh token for a new token pair. The refresh token is rotated and the old one stops working.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse	"Access and refresh token"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Unknown, expired or rotated refresh token"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse	"Store unavailable"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	req, ok := httpx.BindAndValidate[authsdk.RefreshRequest](w, r)
	if !ok {
		return
	}

	pair, err := h.TokenService.Renew(ctx, req.RefreshToken)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidRefresh):
		log.Info("refresh rejected", "reason", err.Error())
		authsdk.ErrInvalidGrant.WriteError(w)
		return
	case errors.Is(err, service.ErrDirectoryUnavailable):
		log.Error("refresh failed", "err", err)
		authsdk.ErrUnavailable.WriteError(w)
		return
	default:
		log.Error("refresh failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	writeTokenPair(w, pair)
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Revokes the caller's refresh token. The access token stays valid until it expires.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Success		204	"Refresh token revoked"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		503	{object}	authsdk.ErrorResponse	"Store unavailable"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.TokenService.Logout(r.Context(), id.User.ID); err != nil {
		slogx.FromContext(r.Context()).Error("logout failed", "err", err)
		authsdk.ErrUnavailable.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /v1/auth/me
//
//	@Summary		Describe the caller
//	@Description	Returns the authenticated user and the expiry of the presented access token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MeResponse		"Caller identity"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/auth/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity(w, r)
	if !ok {
		return
	}

	enabled, err := h.MFAService.Enabled(ctx, id.User.ID)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to load MFA state", "err", err)
	}

	resp := authsdk.MeResponse{
		UserID:     id.User.ID,
		Username:   id.User.Username,
		Role:       id.User.Role,
		MFAEnabled: enabled,
	}
	if id.Claims.ExpiresAt != nil {
		resp.ExpiresAt = id.Claims.ExpiresAt.Unix()
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func writeTokenPair(w http.ResponseWriter, p domain.TokenPair) {
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        p.TokenType,
		ExpiresIn:        int(p.ExpiresIn.Seconds()),
		RefreshExpiresIn: int(p.RefreshExpiresIn.Seconds()),
	})
}
