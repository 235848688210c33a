package cryptox

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

var rfcSecret = []byte("12345678901234567890")

func TestTOTPRFC6238VectorsSHA1(t *testing.T) {
	// RFC 6238 appendix B, truncated to six digits.
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, tc := range cases {
		at := time.Unix(tc.ts, 0)
		require.Equal(t, tc.code, TOTPAt(rfcSecret, at), "t=%d", tc.ts)
		require.True(t, VerifyTOTP(rfcSecret, tc.code, at), "t=%d", tc.ts)
	}
}

func TestHOTPRFC4226Vectors(t *testing.T) {
	want := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}
	for counter, code := range want {
		require.Equal(t, code, HOTP(rfcSecret, uint64(counter)), "counter %d", counter)
	}
}

func TestVerifyTOTPDriftWindow(t *testing.T) {
	now := time.Unix(1700000015, 0)

	codeAt := func(d time.Duration) string { return TOTPAt(rfcSecret, now.Add(d)) }

	// Sanity: the five neighbouring steps produce distinct codes.
	seen := map[string]bool{}
	for _, d := range []time.Duration{-60, -30, 0, 30, 60} {
		c := codeAt(d * time.Second)
		require.False(t, seen[c])
		seen[c] = true
	}

	require.True(t, VerifyTOTP(rfcSecret, codeAt(0), now))
	require.True(t, VerifyTOTP(rfcSecret, codeAt(-30*time.Second), now))
	require.True(t, VerifyTOTP(rfcSecret, codeAt(30*time.Second), now))

	require.False(t, VerifyTOTP(rfcSecret, codeAt(-60*time.Second), now))
	require.False(t, VerifyTOTP(rfcSecret, codeAt(60*time.Second), now))
}

func TestVerifyTOTPRejectsBadInput(t *testing.T) {
	now := time.Unix(1111111111, 0)
	require.False(t, VerifyTOTP(rfcSecret, "", now))
	require.False(t, VerifyTOTP(rfcSecret, "50471", now))
	require.False(t, VerifyTOTP(rfcSecret, "0050471", now))
	require.False(t, VerifyTOTP(nil, "050471", now))
}

func TestTOTPMatchesAuthenticatorLibrary(t *testing.T) {
	raw, encoded, err := GenerateTOTPSecret()
	require.NoError(t, err)
	require.Len(t, raw, TOTPSecretSize)
	require.Len(t, encoded, 32)

	opts := totp.ValidateOpts{
		Period:    uint(TOTPPeriod / time.Second),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}

	start := time.Unix(1700000000, 0)
	for i := range 20 {
		at := start.Add(time.Duration(i) * 37 * time.Second)
		want, err := totp.GenerateCodeCustom(encoded, at, opts)
		require.NoError(t, err)
		require.Equal(t, want, TOTPAt(raw, at))
	}
}
