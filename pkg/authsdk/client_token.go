package authsdk

import (
	"context"
	"net/http"
)

// Login exchanges a username and password (plus a TOTP code when MFA is
// enabled) for a token pair.
func (c *SDKClient) Login(ctx context.Context, username, password, otp string) (*TokenResponse, error) {
	return c.requestToken(ctx, "/v1/auth/login", LoginRequest{
		Username: username,
		Password: password,
		OTP:      otp,
	})
}

// Refresh exchanges a refresh token for a new pair. The old refresh token
// stops working.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.requestToken(ctx, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken})
}

func (c *SDKClient) requestToken(ctx context.Context, path string, body any) (*TokenResponse, error) {
	resp, err := c.call(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	return expectJSON[TokenResponse](resp, http.StatusOK)
}
