package authsdk

import (
	"context"
	"net/http"
	"strconv"
)

// SetupTOTP provisions a pending TOTP secret. It is not enforced until
// EnableTOTP confirms a code generated from it.
func (s *Session) SetupTOTP(ctx context.Context) (*TOTPSetupResponse, error) {
	resp, err := s.call(ctx, http.MethodPost, "/v1/mfa/totp/setup", nil)
	if err != nil {
		return nil, err
	}
	return expectJSON[TOTPSetupResponse](resp, http.StatusOK)
}

// EnableTOTP confirms the pending secret with a current code.
func (s *Session) EnableTOTP(ctx context.Context, code string) error {
	return s.postCode(ctx, "/v1/mfa/totp/enable", code)
}

// DisableTOTP removes MFA from the account. A current code is required.
func (s *Session) DisableTOTP(ctx context.Context, code string) error {
	return s.postCode(ctx, "/v1/mfa/totp/disable", code)
}

// VerifyTOTP performs a step-up check of code against the enabled secret.
func (s *Session) VerifyTOTP(ctx context.Context, code string) (bool, error) {
	resp, err := s.call(ctx, http.MethodPost, "/v1/mfa/totp/verify", TOTPCodeRequest{Code: code})
	if err != nil {
		return false, err
	}

	out, err := expectJSON[TOTPVerifyResponse](resp, http.StatusOK)
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

// TOTPQRCode fetches the provisioning URI of the pending secret as a PNG of
// size by size pixels.
func (s *Session) TOTPQRCode(ctx context.Context, size int) ([]byte, error) {
	path := "/v1/mfa/totp/qr"
	if size > 0 {
		path += "?size=" + strconv.Itoa(size)
	}

	resp, err := s.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if err := parseErrorResponse(resp, body); err != nil {
		return nil, err
	}

	return body, nil
}

func (s *Session) postCode(ctx context.Context, path, code string) error {
	resp, err := s.call(ctx, http.MethodPost, path, TOTPCodeRequest{Code: code})
	if err != nil {
		return err
	}
	return expectNoContent(resp)
}
