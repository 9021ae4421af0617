package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/drivemanager/internal/apperr"
)

const (
	testClientID = "client-123"
	testEmail    = "jane@example.com"
	testKeyID    = "test-key"
)

// fakeIssuer is an OpenID Connect issuer with token, userinfo and revoke
// endpoints.
type fakeIssuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	mu            sync.Mutex
	withIDToken   bool
	refreshFails  bool
	revokeStatus  int
	revoked       []string
	lastVerifier  string
	refreshCount  int
	userinfoCalls int
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{key: key, withIDToken: true, revokeStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/jwks", f.jwks)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/userinfo", f.userinfo)
	mux.HandleFunc("/revoke", f.revoke)
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                f.srv.URL,
		"authorization_endpoint":                f.srv.URL + "/auth",
		"token_endpoint":                        f.srv.URL + "/token",
		"userinfo_endpoint":                     f.srv.URL + "/userinfo",
		"jwks_uri":                              f.srv.URL + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIssuer) jwks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &f.key.PublicKey,
		KeyID:     testKeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

func (f *fakeIssuer) idToken() string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   f.srv.URL,
		"aud":   testClientID,
		"sub":   "user-1",
		"email": testEmail,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(f.key)
	if err != nil {
		panic(err)
	}
	return signed
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != "good-code" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		f.lastVerifier = r.PostForm.Get("code_verifier")
		resp := map[string]any{
			"access_token":  "access-1",
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		}
		if f.withIDToken {
			resp["id_token"] = f.idToken()
		}
		writeJSON(w, http.StatusOK, resp)

	case "refresh_token":
		if f.refreshFails {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		f.refreshCount++
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "access-refreshed",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (f *fakeIssuer) userinfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.userinfoCalls++
	f.mu.Unlock()

	if r.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sub": "user-1", "email": testEmail, "email_verified": true})
}

func (f *fakeIssuer) revoke(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, r.PostForm.Get("token"))
	w.WriteHeader(f.revokeStatus)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestProvider(t *testing.T, f *fakeIssuer, cachePath string) *Provider {
	t.Helper()
	p := NewProvider(Config{
		ClientID:       testClientID,
		ClientSecret:   "secret",
		RedirectURL:    "http://127.0.0.1:8080/oauth/callback",
		Issuer:         f.srv.URL,
		RevokeURL:      f.srv.URL + "/revoke",
		TokenCachePath: cachePath,
		WatchInterval:  time.Hour,
		HTTPClient:     f.srv.Client(),
	})
	t.Cleanup(p.Close)
	return p
}

// signIn runs AuthURL then Exchange and returns the identity.
func signIn(t *testing.T, p *Provider) Identity {
	t.Helper()
	ctx := context.Background()

	consent, err := p.AuthURL(ctx)
	require.NoError(t, err)
	u, err := url.Parse(consent)
	require.NoError(t, err)

	id, err := p.Exchange(ctx, u.Query().Get("state"), "good-code")
	require.NoError(t, err)
	return id
}

func TestProvider_InitRequiresClientID(t *testing.T) {
	p := NewProvider(Config{})
	err := p.Init(context.Background())
	assert.ErrorContains(t, err, "client ID is required")
}

func TestProvider_InitDiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := NewProvider(Config{ClientID: testClientID, Issuer: srv.URL, HTTPClient: srv.Client()})
	defer p.Close()

	err := p.Init(context.Background())
	assert.ErrorContains(t, err, "failed to discover")
	_, err = p.AuthURL(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// Run with -race: sign-in requests can arrive while Init is still running.
func TestProvider_SignInDuringInit(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f, "")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, p.Init(context.Background()))
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := p.AuthURL(context.Background()); err != nil {
				assert.ErrorIs(t, err, ErrNotInitialized)
			}
			if _, err := p.Exchange(context.Background(), "unknown", "good-code"); err != nil {
				assert.True(t, errors.Is(err, ErrNotInitialized) || errors.Is(err, ErrUnknownState), err)
			}
		}
	}()
	wg.Wait()

	_, err := p.AuthURL(context.Background())
	assert.NoError(t, err)
}

func TestProvider_AuthURL(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))

	first, err := p.AuthURL(context.Background())
	require.NoError(t, err)
	second, err := p.AuthURL(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(first)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, f.srv.URL+"/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/drive")
	assert.NotEmpty(t, q.Get("state"))

	u2, _ := url.Parse(second)
	assert.NotEqual(t, q.Get("state"), u2.Query().Get("state"), "every sign-in gets its own state")
}

func TestProvider_ExchangeVerifiesIDToken(t *testing.T) {
	f := newFakeIssuer(t)
	cache := filepath.Join(t.TempDir(), "drivemanager", "google.token")
	p := newTestProvider(t, f, cache)
	require.NoError(t, p.Init(context.Background()))

	var events []bool
	var mu sync.Mutex
	unsubscribe := p.Subscribe(func(signedIn bool) {
		mu.Lock()
		events = append(events, signedIn)
		mu.Unlock()
	})
	defer unsubscribe()

	id := signIn(t, p)
	assert.Equal(t, Identity{Email: testEmail, AccessToken: "access-1"}, id)

	current, ok := p.Current()
	assert.True(t, ok)
	assert.Equal(t, testEmail, current.Email)

	f.mu.Lock()
	assert.NotEmpty(t, f.lastVerifier, "the PKCE verifier is sent with the code")
	assert.Zero(t, f.userinfoCalls, "the ID token already names the user")
	f.mu.Unlock()

	mu.Lock()
	assert.Equal(t, []bool{true}, events)
	mu.Unlock()

	info, err := os.Stat(cache)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestProvider_ExchangeFallsBackToUserInfo(t *testing.T) {
	f := newFakeIssuer(t)
	f.withIDToken = false
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))

	id := signIn(t, p)
	assert.Equal(t, testEmail, id.Email)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.userinfoCalls)
}

func TestProvider_ExchangeFailures(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))
	ctx := context.Background()

	_, err := p.Exchange(ctx, "never-issued", "good-code")
	assert.ErrorIs(t, err, ErrUnknownState)

	consent, err := p.AuthURL(ctx)
	require.NoError(t, err)
	u, _ := url.Parse(consent)
	state := u.Query().Get("state")

	_, err = p.Exchange(ctx, state, "bad-code")
	assert.ErrorContains(t, err, "failed to exchange authorization code")

	_, err = p.Exchange(ctx, state, "good-code")
	assert.ErrorIs(t, err, ErrUnknownState, "a state is usable once")

	_, ok := p.Current()
	assert.False(t, ok)
}

func TestProvider_SignOut(t *testing.T) {
	f := newFakeIssuer(t)
	cache := filepath.Join(t.TempDir(), "google.token")
	p := newTestProvider(t, f, cache)
	require.NoError(t, p.Init(context.Background()))
	signIn(t, p)

	var lastState *bool
	p.Subscribe(func(signedIn bool) { lastState = &signedIn })

	require.NoError(t, p.SignOut(context.Background()))

	_, ok := p.Current()
	assert.False(t, ok)
	require.NotNil(t, lastState)
	assert.False(t, *lastState)
	_, err := os.Stat(cache)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	f.mu.Lock()
	assert.Equal(t, []string{"refresh-1"}, f.revoked)
	f.mu.Unlock()

	_, err = p.TokenSource().Token()
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestProvider_SignOutClearsLocallyWhenRevokeFails(t *testing.T) {
	f := newFakeIssuer(t)
	f.revokeStatus = http.StatusBadRequest
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))
	signIn(t, p)

	err := p.SignOut(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.StatusCode(err))

	_, ok := p.Current()
	assert.False(t, ok)
}

func TestProvider_RestoresCachedToken(t *testing.T) {
	f := newFakeIssuer(t)
	cache := filepath.Join(t.TempDir(), "google.token")
	require.NoError(t, saveToken(cache, &oauth2.Token{
		AccessToken:  "cached-access",
		RefreshToken: "cached-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}))

	p := newTestProvider(t, f, cache)
	require.NoError(t, p.Init(context.Background()))

	id, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, Identity{Email: testEmail, AccessToken: "cached-access"}, id)
}

func TestProvider_RestoreRefreshesExpiredToken(t *testing.T) {
	f := newFakeIssuer(t)
	cache := filepath.Join(t.TempDir(), "google.token")
	require.NoError(t, saveToken(cache, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "cached-refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	p := newTestProvider(t, f, cache)
	require.NoError(t, p.Init(context.Background()))

	id, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "access-refreshed", id.AccessToken)

	cached, err := loadToken(cache)
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed", cached.AccessToken)
}

func TestProvider_RestoreDropsUnrefreshableToken(t *testing.T) {
	f := newFakeIssuer(t)
	f.refreshFails = true
	cache := filepath.Join(t.TempDir(), "google.token")
	require.NoError(t, saveToken(cache, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	p := newTestProvider(t, f, cache)
	require.NoError(t, p.Init(context.Background()), "a bad cache is not an init failure")

	_, ok := p.Current()
	assert.False(t, ok)
	_, err := os.Stat(cache)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestProvider_CheckTokenSignsOutOnRefreshFailure(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))
	signIn(t, p)

	// Expire the token so the next Token call has to refresh.
	p.mu.Lock()
	expired := &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Minute)}
	p.source = p.newSource(expired)
	p.mu.Unlock()

	f.mu.Lock()
	f.refreshFails = true
	f.mu.Unlock()

	signedOut := make(chan struct{})
	p.Subscribe(func(signedIn bool) {
		if !signedIn {
			close(signedOut)
		}
	})

	p.checkToken(context.Background())

	select {
	case <-signedOut:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not told about the sign-out")
	}
	_, ok := p.Current()
	assert.False(t, ok)
}

func TestProvider_RefreshNotifiesSubscribers(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))
	signIn(t, p)

	p.mu.Lock()
	expired := &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Minute)}
	p.source = p.newSource(expired)
	p.mu.Unlock()

	var states []bool
	p.Subscribe(func(signedIn bool) { states = append(states, signedIn) })

	tok, err := p.TokenSource().Token()
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed", tok.AccessToken)

	assert.Equal(t, []bool{true}, states)
	id, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "access-refreshed", id.AccessToken)
}

func TestProvider_Invalidate(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))

	calls := 0
	p.Subscribe(func(bool) { calls++ })
	p.Invalidate(context.Background())
	assert.Zero(t, calls, "nothing to invalidate while signed out")

	signIn(t, p)
	var last bool
	p.Subscribe(func(signedIn bool) { last = signedIn })
	p.Invalidate(context.Background())

	_, ok := p.Current()
	assert.False(t, ok)
	assert.False(t, last)

	f.mu.Lock()
	assert.Empty(t, f.revoked, "a rejected token is not revoked")
	f.mu.Unlock()
}

func TestProvider_HTTPClientUsesCurrentToken(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))
	client := p.HTTPClient()

	_, err := client.Get(f.srv.URL + "/echo")
	assert.ErrorIs(t, err, ErrNotSignedIn)

	signIn(t, p)

	resp, err := client.Get(f.srv.URL + "/echo")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf [64]byte
	n, _ := resp.Body.Read(buf[:])
	assert.Equal(t, "Bearer access-1", string(buf[:n]))
}

func TestProvider_Unsubscribe(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f, "")
	require.NoError(t, p.Init(context.Background()))

	calls := 0
	unsubscribe := p.Subscribe(func(bool) { calls++ })
	unsubscribe()

	signIn(t, p)
	assert.Zero(t, calls)
}
