package domain

import "time"

// MFASecret is a user's TOTP secret. Setup stores it disabled; a confirmed
// code enables it.
type MFASecret struct {
	UserID    string
	Secret    string // base32, no padding
	Enabled   bool
	CreatedAt time.Time
	EnabledAt *time.Time
}

// MFAEnrollment is returned by setup so the user can load the secret into an
// authenticator app.
type MFAEnrollment struct {
	Secret          string
	ProvisioningURI string
	Issuer          string
	Account         string
}
