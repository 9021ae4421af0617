// Package session tracks whether the user is signed in.
//
// A Manager owns the single Session of the running server. It drives the
// identity provider for sign-in and sign-out, listens to the provider for
// changes it did not start (a failed token refresh, a sign-in completed in
// another tab) and keeps the file listing in step: the listing is refreshed
// whenever the session becomes signed in and cleared when it stops being so.
package session
