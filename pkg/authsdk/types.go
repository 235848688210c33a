package authsdk

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse is the wire form of OAuth2Error.
type ErrorResponse struct {
	// Error is the error code (e.g., "invalid_request", "invalid_grant")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`

	// Fields holds per-field validation messages keyed by json name
	Fields map[string]string `json:"fields,omitempty"`
}

// ============================================================================
// Token Types
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64" example:"jsmith"`
	Password string `json:"password" validate:"required,max=256" example:"correct horse battery staple"`
	// OTP is the current TOTP code, required once MFA is enabled
	OTP string `json:"otp,omitempty" validate:"omitempty,len=6,numeric" example:"123456"`
}

// RefreshRequest is the body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,len=64,hexadecimal"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	// AccessToken is the HS256 JWT used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque 64 hex character renewal credential
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type" example:"Bearer"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in" example:"3600"`

	// RefreshExpiresIn is the lifetime in seconds of the refresh token
	RefreshExpiresIn int `json:"refresh_expires_in" example:"86400"`
}

// ============================================================================
// User Types
// ============================================================================

// MeResponse describes the authenticated caller.
type MeResponse struct {
	UserID     string `json:"user_id" example:"01J9Z3K5V8Q4N2M7P6R1T0W3XY"`
	Username   string `json:"username" example:"jsmith"`
	Role       string `json:"role" example:"clerk"`
	MFAEnabled bool   `json:"mfa_enabled"`
	// ExpiresAt is the access token expiry in unix seconds
	ExpiresAt int64 `json:"expires_at"`
}

// ============================================================================
// MFA Types
// ============================================================================

// TOTPSetupResponse carries a pending TOTP secret.
type TOTPSetupResponse struct {
	Secret          string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	ProvisioningURI string `json:"provisioning_uri" example:"otpauth://totp/rostergate:jsmith?secret=JBSWY3DPEHPK3PXP&issuer=rostergate&algorithm=SHA1&digits=6&period=30"`
}

// TOTPCodeRequest is the body for enabling, disabling and verifying TOTP.
type TOTPCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric" example:"123456"`
}

// TOTPVerifyResponse reports a step-up verification result.
type TOTPVerifyResponse struct {
	Valid bool `json:"valid"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the user directory connection status
	Database string `json:"database"`

	// RateLimit reports which rate limit backend answers ("redis", "file"
	// or "degraded")
	RateLimit string `json:"rate_limit"`
}
