package cryptox

import (
	"encoding/base32"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeBase32RFC4648Vectors(t *testing.T) {
	// RFC 4648 section 10, padding stripped.
	vectors := map[string]string{
		"":       "",
		"f":      "MY",
		"fo":     "MZXQ",
		"foo":    "MZXW6",
		"foob":   "MZXW6YQ",
		"fooba":  "MZXW6YTB",
		"foobar": "MZXW6YTBOI",
	}
	for in, want := range vectors {
		require.Equal(t, want, EncodeBase32([]byte(in)), "input %q", in)

		got, err := DecodeBase32(want)
		require.NoError(t, err)
		require.Equal(t, in, string(got))
	}
}

func TestEncodeBase32MatchesStdlib(t *testing.T) {
	std := base32.StdEncoding.WithPadding(base32.NoPadding)
	for range 100 {
		raw, _, err := GenerateTOTPSecret()
		require.NoError(t, err)
		require.Equal(t, std.EncodeToString(raw), EncodeBase32(raw))
	}
}

func TestDecodeBase32IsForgiving(t *testing.T) {
	got, err := DecodeBase32("mzxw-6ytb oi======")
	require.NoError(t, err)
	require.Equal(t, "foobar", string(got))
}

func TestDecodeBase32RejectsOutsideAlphabet(t *testing.T) {
	for _, bad := range []string{"MZXW1", "MZXW8", "MZ!W6"} {
		_, err := DecodeBase32(bad)
		require.ErrorIs(t, err, ErrBase32, "input %q", bad)
	}
}
