// Package auth holds the Gmail credential session: a cached OAuth2 token
// pair with transparent refresh and the consent-flow plumbing around it.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/inboxagent/inboxagent/internal/domain"
)

// Session caches one provider credential for the lifetime of the process.
// Refresh is exclusive: at most one refresh call is in flight at a time.
type Session struct {
	oauth oauth2.Config

	mu        sync.Mutex
	token     *oauth2.Token
	state     string // pending consent-flow state nonce
	tokenFile string
}

// NewSession creates a session. If tokenFile names an existing file, the
// credential stored there is loaded once; a missing or unreadable file just
// means the session starts unauthenticated.
func NewSession(cfg oauth2.Config, tokenFile string) *Session {
	s := &Session{oauth: cfg, tokenFile: tokenFile}

	if tokenFile != "" {
		tok, err := readTokenFile(tokenFile)
		switch {
		case err == nil:
			s.token = tok
		case !errors.Is(err, os.ErrNotExist):
			log.Printf("WARN: ignoring token file %s: %v", tokenFile, err)
		}
	}
	return s
}

// Token returns a valid access token, refreshing the cached one if it has
// expired. With no credential, or when the refresh is rejected, it fails
// closed with ErrAuthRequired.
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return nil, fmt.Errorf("no credential held: %w", domain.ErrAuthRequired)
	}
	if s.token.Valid() {
		return s.token, nil
	}
	if s.token.RefreshToken == "" {
		return nil, fmt.Errorf("access token expired and no refresh token: %w", domain.ErrAuthRequired)
	}

	tok, err := s.oauth.TokenSource(ctx, s.token).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh rejected: %v: %w", err, domain.ErrAuthRequired)
	}
	// TokenSource drops the refresh token when the provider does not echo
	// it back; keep the old one.
	if tok.RefreshToken == "" {
		tok.RefreshToken = s.token.RefreshToken
	}
	s.token = tok
	s.persistLocked()
	return tok, nil
}

// Authenticated reports whether a credential is held at all. It does not
// verify the credential against the provider.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// AuthURL starts a fresh consent flow and returns the provider authorization
// URL the user must visit. The state nonce is checked on callback.
func (s *Session) AuthURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = "st_" + uuid.New().String()[:8]
	return s.oauth.AuthCodeURL(s.state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange completes the consent flow: verifies the state nonce, trades the
// authorization code for a token pair and caches it.
func (s *Session) Exchange(ctx context.Context, state, code string) error {
	s.mu.Lock()
	pending := s.state
	s.mu.Unlock()

	if pending == "" || state != pending {
		return fmt.Errorf("%w: unknown oauth state", domain.ErrInvalidInput)
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("code exchange failed: %v: %w", err, domain.ErrAuthRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ""
	s.token = tok
	s.persistLocked()
	return nil
}

// persistLocked rewrites the token file. Persistence is best effort; the
// in-memory credential stays authoritative.
func (s *Session) persistLocked() {
	if s.tokenFile == "" {
		return
	}
	data, err := json.Marshal(s.token)
	if err != nil {
		log.Printf("WARN: failed to marshal token: %v", err)
		return
	}
	if err := os.WriteFile(s.tokenFile, data, 0o600); err != nil {
		log.Printf("WARN: failed to write token file %s: %v", s.tokenFile, err)
	}
}

func readTokenFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}
