package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/rostergate/internal/gate/service"
	"github.com/aussiebroadwan/rostergate/pkg/authsdk"
	"github.com/aussiebroadwan/rostergate/pkg/httpx"
	"github.com/aussiebroadwan/rostergate/pkg/slogx"
)

// QR codes are clamped to this edge length range in pixels.
const (
	minQRSize = 64
	maxQRSize = 1024
)

var (
	errMFAAlreadyEnabled = authsdk.NewOAuth2Error(http.StatusConflict, "mfa_already_enabled", "MFA is already enabled for this user")
	errMFANotEnrolled    = authsdk.NewOAuth2Error(http.StatusBadRequest, "mfa_not_enrolled", "no TOTP secret has been set up for this user")
)

// MFAHandler handles all MFA-related endpoints.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleSetup handles POST /v1/mfa/totp/setup
//
//	@Summary		Start TOTP enrolment
//	@Description	Generates a pending TOTP secret for the caller. Calling it again before enabling replaces the secret.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPSetupResponse	"Pending secret and provisioning URI"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing access token"
//	@Failure		409	{object}	authsdk.ErrorResponse		"MFA already enabled"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/mfa/totp/setup [post].
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	id, ok := identity(w, r)
	if !ok {
		return
	}

	enr, err := h.MFAService.Setup(ctx, id.User.ID, id.User.Username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	log.Info("TOTP setup started")

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPSetupResponse{
		Secret:          enr.Secret,
		ProvisioningURI: enr.ProvisioningURI,
	})
}

// HandleQRCode handles GET /v1/mfa/totp/qr
//
//	@Summary		Render the pending secret as a QR code
//	@Description	Returns the provisioning URI of the pending secret as a PNG. Enabled secrets are never shown again.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		png
//	@Param			size	query		int						false	"Edge length in pixels (64-1024)"	default(256)
//	@Success		200		{file}		binary					"PNG image"
//	@Failure		400		{object}	authsdk.ErrorResponse	"No pending secret or bad size"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		409		{object}	authsdk.ErrorResponse	"MFA already enabled"
//	@Router			/v1/mfa/totp/qr [get].
func (h *MFAHandler) HandleQRCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := identity(w, r)
	if !ok {
		return
	}

	size := service.DefaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "size must be between 64 and 1024")
			return
		}
		size = n
	}

	png, err := h.MFAService.QRCode(ctx, id.User.ID, id.User.Username, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// HandleEnable handles POST /v1/mfa/totp/enable
//
//	@Summary		Confirm TOTP enrolment
//	@Description	Enables the pending secret once the caller proves possession with a current code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TOTPCodeRequest	true	"TOTP code"
//	@Success		204		"MFA enabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code or no pending secret"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		409		{object}	authsdk.ErrorResponse	"MFA already enabled"
//	@Router			/v1/mfa/totp/enable [post].
func (h *MFAHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	req, ok := httpx.BindAndValidate[authsdk.TOTPCodeRequest](w, r)
	if !ok {
		return
	}

	if err := h.MFAService.Enable(r.Context(), id.User.ID, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("TOTP enabled")
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles POST /v1/mfa/totp/disable
//
//	@Summary		Disable TOTP
//	@Description	Removes the caller's enabled secret after checking a current code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TOTPCodeRequest	true	"TOTP code"
//	@Success		204		"MFA disabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code or MFA not enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/mfa/totp/disable [post].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	req, ok := httpx.BindAndValidate[authsdk.TOTPCodeRequest](w, r)
	if !ok {
		return
	}

	if err := h.MFAService.Disable(r.Context(), id.User.ID, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("TOTP disabled")
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerify handles POST /v1/mfa/totp/verify
//
//	@Summary		Step-up verification
//	@Description	Checks a code against the caller's enabled secret. Never fails on a wrong code; the answer is in the body.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TOTPCodeRequest		true	"TOTP code"
//	@Success		200		{object}	authsdk.TOTPVerifyResponse	"Verification result"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse		"Invalid or missing access token"
//	@Router			/v1/mfa/totp/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	req, ok := httpx.BindAndValidate[authsdk.TOTPCodeRequest](w, r)
	if !ok {
		return
	}

	valid := h.MFAService.Verify(r.Context(), id.User.ID, req.Code)
	if !valid {
		slogx.FromContext(r.Context()).Info("TOTP step-up failed")
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPVerifyResponse{Valid: valid})
}

func (h *MFAHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidOTP):
		authsdk.ErrInvalidOTP.WriteError(w)
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		errMFAAlreadyEnabled.WriteError(w)
	case errors.Is(err, service.ErrMFANotEnrolled):
		errMFANotEnrolled.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("MFA operation failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
