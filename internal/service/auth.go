package service

import (
	"context"
	"log"
)

// AuthStatus describes whether the mail provider is usable and, if not, how
// to start a consent flow.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	AuthURL       string `json:"auth_url,omitempty"`
}

// CheckAuth verifies the held credential against the provider by fetching
// the account profile. When no usable credential exists it returns a fresh
// authorization URL instead of an error.
func (s *Service) CheckAuth(ctx context.Context) AuthStatus {
	if s.authFlow.Authenticated() {
		email, err := s.gateway.Profile(ctx)
		if err == nil {
			return AuthStatus{Authenticated: true, Email: email}
		}
		log.Printf("WARN: held credential unusable, restarting consent flow: %v", err)
	}
	return AuthStatus{AuthURL: s.authFlow.AuthURL()}
}

// CompleteAuth finishes the consent flow with the provider callback values.
func (s *Service) CompleteAuth(ctx context.Context, state, code string) error {
	return s.authFlow.Exchange(ctx, state, code)
}
