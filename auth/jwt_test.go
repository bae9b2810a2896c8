package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	testSecret = []byte("taste-secret")
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func signHS256(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "user-42",
		"iss":    "https://id.example.com",
		"aud":    "cinecache",
		"exp":    testNow.Add(time.Hour).Unix(),
		"iat":    testNow.Add(-time.Minute).Unix(),
		"region": "GB",
	}
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func newTestAuthenticator() *JWTAuthenticator {
	return NewJWTAuthenticator(JWTConfig{
		Issuer:   "https://id.example.com",
		Audience: "cinecache",
		Now:      func() time.Time { return testNow },
	}, NewStaticKeyProvider(testSecret))
}

func TestJWTAuthenticator_Valid(t *testing.T) {
	a := newTestAuthenticator()

	id, err := a.Authenticate(context.Background(), bearer(signHS256(t, validClaims(), testSecret)))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.Subject != "user-42" || id.Claim("region") != "GB" {
		t.Errorf("identity = %+v", id)
	}
	if !id.ExpiresAt.Equal(testNow.Add(time.Hour)) || !id.IssuedAt.Equal(testNow.Add(-time.Minute)) {
		t.Errorf("times = %v / %v", id.ExpiresAt, id.IssuedAt)
	}
	if id.Claim("exp") != "" {
		t.Error("Claim() of a non-string should be empty")
	}
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := newTestAuthenticator()

	with := func(mutate func(jwt.MapClaims)) jwt.MapClaims {
		c := validClaims()
		mutate(c)
		return c
	}

	tests := []struct {
		name    string
		header  http.Header
		wantErr error
	}{
		{"no header", http.Header{}, ErrMissingCredentials},
		{"basic scheme", http.Header{"Authorization": {"Basic dXNlcjpwdw=="}}, ErrMissingCredentials},
		{"empty bearer", http.Header{"Authorization": {"Bearer  "}}, ErrMissingCredentials},
		{"garbage", bearer("not.a.jwt"), ErrTokenMalformed},
		{"expired", bearer(signHS256(t, with(func(c jwt.MapClaims) { c["exp"] = testNow.Add(-time.Hour).Unix() }), testSecret)), ErrTokenExpired},
		{"within leeway", bearer(signHS256(t, with(func(c jwt.MapClaims) { c["exp"] = testNow.Add(-10 * time.Second).Unix() }), testSecret)), nil},
		{"no exp", bearer(signHS256(t, with(func(c jwt.MapClaims) { delete(c, "exp") }), testSecret)), ErrInvalidCredentials},
		{"wrong issuer", bearer(signHS256(t, with(func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }), testSecret)), ErrInvalidCredentials},
		{"wrong audience", bearer(signHS256(t, with(func(c jwt.MapClaims) { c["aud"] = "other" }), testSecret)), ErrInvalidCredentials},
		{"no subject", bearer(signHS256(t, with(func(c jwt.MapClaims) { delete(c, "sub") }), testSecret)), ErrInvalidCredentials},
		{"wrong key", bearer(signHS256(t, validClaims(), []byte("other-secret"))), ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTAuthenticator_RejectsUnlistedAlgorithm(t *testing.T) {
	a := NewJWTAuthenticator(JWTConfig{
		Algorithms: []string{"RS256"},
		Now:        func() time.Time { return testNow },
	}, NewStaticKeyProvider(testSecret))

	_, err := a.Authenticate(context.Background(), bearer(signHS256(t, validClaims(), testSecret)))
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestJWTAuthenticator_NoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newTestAuthenticator().Authenticate(context.Background(), bearer(token)); err == nil {
		t.Error("alg=none token was accepted")
	}
}

func TestStaticKeyProvider_Empty(t *testing.T) {
	if _, err := NewStaticKeyProvider(nil).GetKey(context.Background(), ""); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("GetKey() error = %v, want ErrKeyNotFound", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in    string
		token string
		ok    bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := bearerToken(tt.in)
		if token != tt.token || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v", tt.in, token, ok)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil || SubjectFromContext(ctx) != "" {
		t.Fatal("empty context has an identity")
	}

	ctx = WithIdentity(ctx, &Identity{Subject: "user-42"})
	if SubjectFromContext(ctx) != "user-42" {
		t.Errorf("SubjectFromContext() = %q", SubjectFromContext(ctx))
	}
}
