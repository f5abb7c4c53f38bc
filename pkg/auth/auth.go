// Package auth verifies externally issued session tokens and carries
// the authenticated session through request contexts. Token issuance
// lives with the owner's auth service; this package only verifies,
// checks the email whitelist, and tags requests.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Session identifies an authenticated caller. Email is empty when
// verification is disabled and the session id arrives as a header.
type Session struct {
	ID    string
	Email string
}

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession tags a context with the caller's session.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext reads the session the middleware stored.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(Session)
	return s, ok
}

// Verifier checks HS256-signed session tokens carrying sid and email
// claims.
type Verifier struct {
	enabled   bool
	secret    []byte
	whitelist map[string]struct{}
}

// NewVerifier builds a Verifier from config. cfg may be nil, which
// disables verification.
func NewVerifier(cfg *config.AuthConfig) (*Verifier, error) {
	if cfg == nil || !cfg.Enabled {
		return &Verifier{}, nil
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth enabled without jwt_secret")
	}

	v := &Verifier{
		enabled: true,
		secret:  []byte(cfg.JWTSecret),
	}
	if len(cfg.EmailWhitelist) > 0 {
		v.whitelist = make(map[string]struct{}, len(cfg.EmailWhitelist))
		for _, email := range cfg.EmailWhitelist {
			v.whitelist[normalizeEmail(email)] = struct{}{}
		}
	}
	return v, nil
}

// Enabled reports whether tokens are being verified.
func (v *Verifier) Enabled() bool {
	return v.enabled
}

// VerifyToken validates the signature and expiry, extracts the sid and
// email claims, and applies the whitelist. Every failure maps to the
// unauthorized code.
func (v *Verifier) VerifyToken(tokenString string) (Session, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return Session{}, protocol.WrapError(protocol.CodeUnauthorized, "invalid session token", err)
	}

	sid := stringClaim(token, "sid")
	if sid == "" {
		return Session{}, protocol.Unauthorized("session token carries no sid claim")
	}
	email := normalizeEmail(stringClaim(token, "email"))
	if email == "" {
		return Session{}, protocol.Unauthorized("session token carries no email claim")
	}
	if err := v.checkWhitelist(email); err != nil {
		return Session{}, err
	}
	return Session{ID: sid, Email: email}, nil
}

// checkWhitelist allows any verified token when no whitelist is
// configured.
func (v *Verifier) checkWhitelist(email string) error {
	if len(v.whitelist) == 0 {
		return nil
	}
	if _, ok := v.whitelist[email]; !ok {
		return protocol.Unauthorized("account is not on the access list")
	}
	return nil
}

func stringClaim(token jwt.Token, name string) string {
	raw, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return strings.TrimSpace(s)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
