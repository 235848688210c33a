package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// expiryBuffer makes a Session renew shortly before the gate would reject
// its access token.
const expiryBuffer = 30 * time.Second

// SDKClient is a client for the rostergate service.
// It provides access to unauthenticated operations and can create authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new gate client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// AuthenticateWithPassword logs in and returns a Session. otp may be empty
// for accounts without MFA; otherwise the error matches ErrMFARequired.
func (c *SDKClient) AuthenticateWithPassword(ctx context.Context, username, password, otp string) (*Session, error) {
	tokenResp, err := c.Login(ctx, username, password, otp)
	if err != nil {
		return nil, err
	}

	return newSession(c, tokenResp), nil
}

// AuthenticateWithRefreshToken creates an authenticated session from an existing refresh token.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	tokenResp, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	return newSession(c, tokenResp), nil
}

// NewSessionFromTokens creates an authenticated session from existing tokens.
// The session will still perform auto-refresh when the access token expires.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	s := &Session{client: c}
	s.adopt(accessToken, refreshToken, expiresIn)
	return s
}
