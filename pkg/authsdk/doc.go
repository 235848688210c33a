/*
Package authsdk provides a client SDK for the rostergate API security service.

# SDKClient vs Session

  - SDKClient: unauthenticated operations (login, refresh, health probes)
  - Session: authenticated operations with automatic token refresh

Create an SDKClient and log in:

	client := authsdk.NewSDKClient("https://gate.example.mil")

	session, err := client.AuthenticateWithPassword(ctx, "jsmith", password, "")
	if errors.Is(err, authsdk.ErrMFARequired) {
		session, err = client.AuthenticateWithPassword(ctx, "jsmith", password, otp)
	}

Sessions renew their access token with the refresh token shortly before it
expires. Each renewal rotates the refresh token; the gate keeps a single
active refresh token per user, so logging in elsewhere invalidates an older
session's refresh token.

	me, err := session.Me(ctx)

# MFA

	setup, err := session.SetupTOTP(ctx)      // secret + otpauth:// URI
	err = session.EnableTOTP(ctx, code)       // confirm with a current code
	ok, err := session.VerifyTOTP(ctx, code)  // step-up check

# Errors

Every failure response decodes to *OAuth2Error. Match it with errors.Is
against the predefined values (ErrInvalidGrant, ErrInvalidToken,
ErrMFARequired, ...), or inspect Code and StatusCode directly.
*/
package authsdk
