// Package auth holds the identity-provider abstraction, the public-path
// classifier and the anti-forgery token source used by the request pipeline.
package auth

import (
	"context"
	"sync"
)

// TokenProvider supplies bearer credentials from the identity provider.
// Token may fail or return empty when the session is gone; TriggerLogout is
// the side-effecting escape hatch that navigates the user away.
type TokenProvider interface {
	// Token returns the current bearer credential, or empty when none is
	// available.
	Token(ctx context.Context) (string, error)

	// CurrentUserID returns the resolved user identifier, or empty when
	// unknown. Its absence is not an error.
	CurrentUserID() string

	// TriggerLogout forces a logout/redirect. It must be safe to call more
	// than once.
	TriggerLogout()
}

// StaticProvider is a TokenProvider backed by fixed values. It is used by the
// demo proxy and by tests.
type StaticProvider struct {
	mu          sync.Mutex
	token       string
	userID      string
	logoutCalls int
}

// NewStaticProvider creates a provider with a fixed token and user id. Both
// may be empty to model a guest session.
func NewStaticProvider(token, userID string) *StaticProvider {
	return &StaticProvider{token: token, userID: userID}
}

// Token returns the configured bearer credential.
func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, nil
}

// CurrentUserID returns the configured user id.
func (p *StaticProvider) CurrentUserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

// TriggerLogout drops the credentials and records the call.
func (p *StaticProvider) TriggerLogout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.userID = ""
	p.logoutCalls++
}

// SetToken replaces the credentials, modeling a fresh login.
func (p *StaticProvider) SetToken(token, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	p.userID = userID
}

// LogoutCalls returns how many times TriggerLogout fired.
func (p *StaticProvider) LogoutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logoutCalls
}
