package cryptox

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 - RFC 6238 mandates HMAC-SHA1 for standard authenticators
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"
)

// TOTP parameters. They are fixed so that any standard authenticator app
// produces matching codes from the provisioning URI.
const (
	TOTPSecretSize = 20
	TOTPDigits     = 6
	TOTPPeriod     = 30 * time.Second
	TOTPAlgorithm  = "SHA1"

	// TOTPSkew is the number of neighbouring time steps accepted on each side
	// of the current one.
	TOTPSkew = 1
)

// GenerateTOTPSecret returns a fresh 20 byte secret and its base32 form.
func GenerateTOTPSecret() ([]byte, string, error) {
	raw, err := randomBytes(TOTPSecretSize)
	if err != nil {
		return nil, "", err
	}
	return raw, EncodeBase32(raw), nil
}

// TOTPStep returns the RFC 6238 time step counter for t.
func TOTPStep(t time.Time) int64 {
	return t.Unix() / int64(TOTPPeriod/time.Second)
}

// HOTP computes the RFC 4226 value for counter: HMAC-SHA1 over the big-endian
// counter, dynamic truncation, top bit masked, modulo 10^6, zero padded.
func HOTP(secret []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", TOTPDigits, bin%1_000_000)
}

// TOTPAt returns the code valid for the time step containing t.
func TOTPAt(secret []byte, t time.Time) string {
	return HOTP(secret, uint64(TOTPStep(t))) // #nosec G115 - step is non-negative after 1970
}

// VerifyTOTP reports whether code matches the step containing now or one of
// its TOTPSkew neighbours. Codes of the wrong length never match.
func VerifyTOTP(secret []byte, code string, now time.Time) bool {
	if len(secret) == 0 || len(code) != TOTPDigits {
		return false
	}

	base := TOTPStep(now)
	matched := 0
	for delta := int64(-TOTPSkew); delta <= TOTPSkew; delta++ {
		step := base + delta
		if step < 0 {
			continue
		}
		want := HOTP(secret, uint64(step)) // #nosec G115 - checked above
		matched |= subtle.ConstantTimeCompare([]byte(want), []byte(code))
	}
	return matched == 1
}
