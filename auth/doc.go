// Package auth identifies the caller of per-user endpoints such as
// /me/taste from an OAuth2 bearer token.
//
// A JWTAuthenticator verifies the token signature with a KeyProvider
// (a static HMAC secret or a JWKS endpoint) and checks expiry, issuer and
// audience. Middleware attaches the resulting Identity to the request
// context:
//
//	authn := auth.NewJWTAuthenticator(auth.JWTConfig{Issuer: iss}, auth.NewJWKSKeyProvider(auth.JWKSConfig{URL: jwksURL}))
//	mux.Handle("GET /me/taste", auth.Middleware(authn)(tasteHandler))
package auth
