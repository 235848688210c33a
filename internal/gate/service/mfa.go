package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"strconv"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultQRSize is the edge length in pixels of provisioning QR codes.
const DefaultQRSize = 256

// validateOpts mirrors the cryptox TOTP parameters for the otp library.
var validateOpts = totp.ValidateOpts{
	Period:    uint(cryptox.TOTPPeriod / time.Second),
	Skew:      cryptox.TOTPSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

var (
	ErrInvalidOTP        = errors.New("invalid_otp")
	ErrMFANotEnrolled    = errors.New("mfa not enrolled")
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
)

// MFAService provisions TOTP secrets and checks codes against them.
type MFAService struct {
	Store  store.Store
	Issuer string // shown in authenticator apps
	Now    func() time.Time

	// Timeout bounds each operation's store calls (default DefaultLookupTimeout).
	Timeout time.Duration
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ProvisioningURI renders the otpauth URI authenticator apps import.
func ProvisioningURI(issuer, account, secret string) string {
	q := "secret=" + secret +
		"&issuer=" + url.QueryEscape(issuer) +
		"&algorithm=" + cryptox.TOTPAlgorithm +
		"&digits=" + strconv.Itoa(cryptox.TOTPDigits) +
		"&period=" + strconv.Itoa(int(cryptox.TOTPPeriod/time.Second))
	return "otpauth://totp/" + url.PathEscape(issuer) + ":" + url.PathEscape(account) + "?" + q
}

// Setup stores a fresh disabled secret for userID and returns it with its
// provisioning URI. Running Setup again before Enable replaces the pending
// secret; once enabled it is refused.
func (s *MFAService) Setup(ctx context.Context, userID, account string) (domain.MFAEnrollment, error) {
	_, secret, err := cryptox.GenerateTOTPSecret()
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	err = s.Store.MFASecrets().PutPendingMFASecret(ctx, userID, secret, s.now())
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	case err != nil:
		return domain.MFAEnrollment{}, fmt.Errorf("failed to store MFA secret: %w", err)
	}

	return domain.MFAEnrollment{
		Secret:          secret,
		ProvisioningURI: ProvisioningURI(s.Issuer, account, secret),
		Issuer:          s.Issuer,
		Account:         account,
	}, nil
}

// Verify reports whether code is valid now for the user's enabled secret.
// It never errors: a missing, pending or unreadable secret is simply false.
func (s *MFAService) Verify(ctx context.Context, userID, code string) bool {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	m, err := s.Store.MFASecrets().GetMFASecret(ctx, userID)
	if err != nil || !m.Enabled {
		return false
	}
	return s.check(m, code)
}

// Enabled reports whether the user has a confirmed secret.
func (s *MFAService) Enabled(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	m, err := s.Store.MFASecrets().GetMFASecret(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return m.Enabled, nil
}

// Enable confirms the pending secret with a current code.
func (s *MFAService) Enable(ctx context.Context, userID, code string) error {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	m, err := s.Store.MFASecrets().GetMFASecret(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrMFANotEnrolled
	case err != nil:
		return fmt.Errorf("failed to get MFA secret: %w", err)
	}

	if m.Enabled {
		return ErrMFAAlreadyEnabled
	}
	if !s.check(m, code) {
		return ErrInvalidOTP
	}

	if err := s.Store.MFASecrets().EnableMFASecret(ctx, userID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMFAAlreadyEnabled
		}
		return fmt.Errorf("failed to enable MFA: %w", err)
	}
	return nil
}

// Disable removes an enabled secret after checking a current code.
func (s *MFAService) Disable(ctx context.Context, userID, code string) error {
	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	m, err := s.Store.MFASecrets().GetMFASecret(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrMFANotEnrolled
	case err != nil:
		return fmt.Errorf("failed to get MFA secret: %w", err)
	}

	if !m.Enabled {
		return ErrMFANotEnrolled
	}
	if !s.check(m, code) {
		return ErrInvalidOTP
	}

	if err := s.Store.MFASecrets().DeleteMFASecret(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to disable MFA: %w", err)
	}
	return nil
}

// QRCode renders the provisioning URI of the pending secret as a PNG.
// Enabled secrets are never shown again.
func (s *MFAService) QRCode(ctx context.Context, userID, account string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}

	ctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()

	m, err := s.Store.MFASecrets().GetMFASecret(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrMFANotEnrolled
	case err != nil:
		return nil, fmt.Errorf("failed to get MFA secret: %w", err)
	}
	if m.Enabled {
		return nil, ErrMFAAlreadyEnabled
	}

	key, err := otp.NewKeyFromURL(ProvisioningURI(s.Issuer, account, m.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to parse provisioning uri: %w", err)
	}

	img, err := key.Image(size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return buf.Bytes(), nil
}

// check accepts code only when cryptox and the otp library both do.
func (s *MFAService) check(m domain.MFASecret, code string) bool {
	now := s.now()

	raw, err := cryptox.DecodeBase32(m.Secret)
	if err != nil || !cryptox.VerifyTOTP(raw, code, now) {
		return false
	}

	ok, err := totp.ValidateCustom(code, m.Secret, now, validateOpts)
	return err == nil && ok
}
