package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/protocol"
)

const testSecret = "unit-test-secret"

func newEnabledVerifier(t *testing.T, whitelist ...string) *Verifier {
	t.Helper()
	v, err := NewVerifier(&config.AuthConfig{
		Enabled:        true,
		JWTSecret:      testSecret,
		EmailWhitelist: whitelist,
	})
	require.NoError(t, err)
	return v
}

func signToken(t *testing.T, secret string, claims map[string]interface{}) string {
	t.Helper()
	token := jwt.New()
	for k, v := range claims {
		require.NoError(t, token.Set(k, v))
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func validClaims() map[string]interface{} {
	return map[string]interface{}{
		"sid":             "sess-1",
		"email":           "owner@example.com",
		jwt.ExpirationKey: time.Now().Add(time.Hour),
	}
}

func TestVerifyTokenValid(t *testing.T) {
	v := newEnabledVerifier(t)

	session, err := v.VerifyToken(signToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, Session{ID: "sess-1", Email: "owner@example.com"}, session)
}

func TestVerifyTokenRejections(t *testing.T) {
	v := newEnabledVerifier(t)

	expired := validClaims()
	expired[jwt.ExpirationKey] = time.Now().Add(-time.Hour)

	noSid := validClaims()
	delete(noSid, "sid")

	noEmail := validClaims()
	delete(noEmail, "email")

	tests := []struct {
		name  string
		token string
	}{
		{"expired token", signToken(t, testSecret, expired)},
		{"wrong secret", signToken(t, "other-secret", validClaims())},
		{"missing sid claim", signToken(t, testSecret, noSid)},
		{"missing email claim", signToken(t, testSecret, noEmail)},
		{"malformed token", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyToken(tt.token)
			require.Error(t, err)
			assert.Equal(t, protocol.CodeUnauthorized, protocol.CodeOf(err))
		})
	}
}

func TestWhitelist(t *testing.T) {
	v := newEnabledVerifier(t, "Owner@Example.com")

	session, err := v.VerifyToken(signToken(t, testSecret, validClaims()))
	require.NoError(t, err, "whitelist comparison is case-insensitive")
	assert.Equal(t, "owner@example.com", session.Email)

	outsider := validClaims()
	outsider["email"] = "other@example.com"
	_, err = v.VerifyToken(signToken(t, testSecret, outsider))
	require.Error(t, err)
	assert.Equal(t, protocol.CodeUnauthorized, protocol.CodeOf(err))
}

func TestEmptyWhitelistAllowsAnyVerifiedToken(t *testing.T) {
	v := newEnabledVerifier(t)

	claims := validClaims()
	claims["email"] = "anyone@example.com"
	_, err := v.VerifyToken(signToken(t, testSecret, claims))
	assert.NoError(t, err)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(&config.AuthConfig{Enabled: true})
	assert.Error(t, err)

	v, err := NewVerifier(nil)
	require.NoError(t, err)
	assert.False(t, v.Enabled())
}

func echoSession() (http.Handler, *Session) {
	captured := &Session{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := FromContext(r.Context()); ok {
			*captured = s
		}
		w.WriteHeader(http.StatusOK)
	})
	return handler, captured
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) protocol.Error {
	t.Helper()
	var envelope protocol.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestMiddlewareDisabledUsesSessionHeader(t *testing.T) {
	v, err := NewVerifier(&config.AuthConfig{})
	require.NoError(t, err)
	handler, captured := echoSession()

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/status", nil)
	req.Header.Set("X-Session-ID", "sess-7")
	rec := httptest.NewRecorder()
	v.Middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Session{ID: "sess-7"}, *captured)
}

func TestMiddlewareDisabledRejectsMissingHeader(t *testing.T) {
	v, err := NewVerifier(nil)
	require.NoError(t, err)
	handler, _ := echoSession()

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/status", nil)
	rec := httptest.NewRecorder()
	v.Middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, protocol.CodeUnauthorized, decodeEnvelope(t, rec).Code)
}

func TestMiddlewareEnabled(t *testing.T) {
	v := newEnabledVerifier(t)

	tests := []struct {
		name       string
		authorize  func(r *http.Request)
		wantStatus int
	}{
		{
			"valid bearer token",
			func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims()))
			},
			http.StatusOK,
		},
		{
			"missing header",
			func(r *http.Request) {},
			http.StatusUnauthorized,
		},
		{
			"not a bearer scheme",
			func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwdw==") },
			http.StatusUnauthorized,
		},
		{
			"garbage token",
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") },
			http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, captured := echoSession()
			req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
			tt.authorize(req)
			rec := httptest.NewRecorder()
			v.Middleware(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "sess-1", captured.ID)
				assert.Equal(t, "owner@example.com", captured.Email)
			} else {
				assert.Equal(t, protocol.CodeUnauthorized, decodeEnvelope(t, rec).Code)
			}
		})
	}
}
