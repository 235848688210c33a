package authsdk

import (
	"context"
	"net/http"
)

// Me returns the identity the gate resolved for this session.
func (s *Session) Me(ctx context.Context) (*MeResponse, error) {
	resp, err := s.call(ctx, http.MethodGet, "/v1/auth/me", nil)
	if err != nil {
		return nil, err
	}
	return expectJSON[MeResponse](resp, http.StatusOK)
}
