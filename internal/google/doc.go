// Package google is the identity provider for drivemanager. It runs the
// Google OAuth 2.0 authorization code flow with PKCE, identifies the user
// through OpenID Connect, keeps the token fresh, optionally caches it on disk
// and tells subscribers whenever the signed-in state changes.
//
// Drive calls authenticate through HTTPClient, whose token source always
// follows the current sign-in.
package google
