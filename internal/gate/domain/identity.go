package domain

import (
	"context"

	"github.com/aussiebroadwan/rostergate/pkg/jwtx"
)

// Identity is the authenticated caller of a request. It is built once by the
// authentication middleware and never mutated.
type Identity struct {
	User   User
	Claims jwtx.Claims
}

type identityKey struct{}

// WithIdentity returns a child context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
