package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/drivemanager/internal/apperr"
	"github.com/teemow/drivemanager/internal/instrumentation"
	"github.com/teemow/drivemanager/internal/logging"
)

const (
	// DefaultIssuer is Google's OpenID Connect issuer.
	DefaultIssuer = "https://accounts.google.com"

	// DefaultRevokeURL is Google's token revocation endpoint.
	DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	// DefaultWatchInterval is how often the signed-in token is checked.
	DefaultWatchInterval = time.Minute

	// pendingTTL bounds how long a started sign-in can be completed.
	pendingTTL = 10 * time.Minute
)

var (
	// ErrNotSignedIn is returned by the token source while nobody is signed in.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrUnknownState is returned when a callback's state matches no started sign-in.
	ErrUnknownState = errors.New("unknown or expired sign-in state")

	// ErrNotInitialized is returned when Init has not completed.
	ErrNotInitialized = errors.New("identity provider not initialized")

	// ErrNoEmail is returned when neither the ID token nor userinfo names the user.
	ErrNoEmail = errors.New("identity provider returned no email")
)

// Identity is the signed-in user as seen by the provider.
type Identity struct {
	Email       string
	AccessToken string
}

// Config configures a Provider.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURL is the callback the consent screen returns to.
	RedirectURL string

	// Scopes defaults to DefaultOAuthScopes.
	Scopes []string

	// Issuer defaults to DefaultIssuer.
	Issuer string

	// RevokeURL defaults to DefaultRevokeURL.
	RevokeURL string

	// TokenCachePath is where the token is persisted. Empty disables caching.
	TokenCachePath string

	// WatchInterval defaults to DefaultWatchInterval.
	WatchInterval time.Duration

	// HTTPClient is used for discovery, code exchange, refresh and
	// revocation. Nil uses http.DefaultClient.
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

type pendingSignIn struct {
	verifier string
	created  time.Time
}

// Provider runs the Google sign-in flow and owns the resulting token.
type Provider struct {
	config  Config
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	oidcProvider   *oidc.Provider
	oauthConfig    *oauth2.Config
	verifierConfig oidc.Config

	mu       sync.Mutex
	pending  map[string]pendingSignIn
	source   oauth2.TokenSource
	token    *oauth2.Token
	identity Identity

	subMu   sync.Mutex
	subs    map[uint64]func(signedIn bool)
	nextSub uint64

	initOnce sync.Once
	initErr  error
	ready    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewProvider creates a Provider. Nothing touches the network until Init.
func NewProvider(config Config) *Provider {
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}
	if config.RevokeURL == "" {
		config.RevokeURL = DefaultRevokeURL
	}
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultOAuthScopes
	}
	if config.WatchInterval <= 0 {
		config.WatchInterval = DefaultWatchInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		config:  config,
		logger:  logging.WithComponent(logger, "google"),
		metrics: config.Metrics,
		pending: make(map[string]pendingSignIn),
		subs:    make(map[uint64]func(bool)),
		stop:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

// Init discovers the issuer, restores a cached token and starts the token
// watcher. Only the first call does any work.
func (p *Provider) Init(ctx context.Context) error {
	p.initOnce.Do(func() {
		p.initErr = p.init(ctx)
	})
	return p.initErr
}

func (p *Provider) init(ctx context.Context) error {
	if p.config.ClientID == "" {
		return fmt.Errorf("google client ID is required")
	}

	ctx = p.clientContext(ctx)
	op, err := oidc.NewProvider(ctx, p.config.Issuer)
	if err != nil {
		return fmt.Errorf("failed to discover %s: %w", p.config.Issuer, err)
	}

	endpoint := op.Endpoint()
	if p.config.Issuer == DefaultIssuer {
		endpoint = google.Endpoint
	}

	p.oidcProvider = op
	p.verifierConfig.ClientID = p.config.ClientID
	p.oauthConfig = &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  p.config.RedirectURL,
		Scopes:       p.config.Scopes,
	}
	close(p.ready)

	p.restore(ctx)

	p.wg.Add(1)
	go p.watch()

	p.logger.Info("identity provider ready",
		slog.String("issuer", p.config.Issuer),
		slog.Bool("signed_in", p.signedIn()),
	)
	return nil
}

// initialized reports whether Init has configured the OAuth client. Fields
// written by init are safe to read once it returns true.
func (p *Provider) initialized() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

// restore signs the cached user back in. Any failure leaves the provider
// signed out; a stale cache file is removed.
func (p *Provider) restore(ctx context.Context) {
	if p.config.TokenCachePath == "" {
		return
	}

	tok, err := loadToken(p.config.TokenCachePath)
	if err != nil {
		p.logger.Warn("ignoring token cache", logging.Err(err))
		_ = removeToken(p.config.TokenCachePath)
		return
	}
	if tok == nil {
		return
	}

	src := p.newSource(tok)
	fresh, err := src.Token()
	if err != nil {
		p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultExpired)
		p.logger.Info("cached token no longer valid", logging.Err(err))
		_ = removeToken(p.config.TokenCachePath)
		return
	}

	info, err := p.oidcProvider.UserInfo(ctx, src)
	if err != nil || info.Email == "" {
		p.logger.Warn("could not identify cached user", logging.Err(err))
		return
	}

	p.establish(ctx, src, fresh, info.Email)
}

// AuthURL starts a sign-in and returns the consent URL to send the browser
// to. Each call gets its own state and PKCE verifier.
func (p *Provider) AuthURL(_ context.Context) (string, error) {
	if !p.initialized() {
		return "", ErrNotInitialized
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	now := time.Now()
	p.mu.Lock()
	for s, ps := range p.pending {
		if now.Sub(ps.created) > pendingTTL {
			delete(p.pending, s)
		}
	}
	p.pending[state] = pendingSignIn{verifier: verifier, created: now}
	p.mu.Unlock()

	return p.oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	), nil
}

// Exchange completes the sign-in started with state.
func (p *Provider) Exchange(ctx context.Context, state, code string) (id Identity, err error) {
	if !p.initialized() {
		return Identity{}, ErrNotInitialized
	}

	start := time.Now()
	defer func() {
		status, result := instrumentation.StatusSuccess, instrumentation.OAuthResultSuccess
		if err != nil {
			status, result = instrumentation.StatusError, instrumentation.OAuthResultFailure
		}
		p.metrics.RecordOAuthAuth(ctx, result)
		p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, status, id.Email, time.Since(start))
	}()

	p.mu.Lock()
	ps, ok := p.pending[state]
	delete(p.pending, state)
	p.mu.Unlock()
	if !ok || time.Since(ps.created) > pendingTTL {
		return Identity{}, ErrUnknownState
	}
	if code == "" {
		return Identity{}, fmt.Errorf("authorization code is required")
	}

	ctx = p.clientContext(ctx)
	tok, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(ps.verifier))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	email, err := p.emailFor(ctx, tok)
	if err != nil {
		return Identity{}, err
	}

	p.establish(ctx, p.newSource(tok), tok, email)
	return Identity{Email: email, AccessToken: tok.AccessToken}, nil
}

// emailFor reads the email from the verified ID token, falling back to the
// userinfo endpoint.
func (p *Provider) emailFor(ctx context.Context, tok *oauth2.Token) (string, error) {
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		idToken, err := p.oidcProvider.Verifier(&p.verifierConfig).Verify(ctx, raw)
		if err != nil {
			return "", fmt.Errorf("failed to verify ID token: %w", err)
		}
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return "", fmt.Errorf("failed to parse ID token claims: %w", err)
		}
		if claims.Email != "" {
			return claims.Email, nil
		}
	}

	info, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return "", fmt.Errorf("failed to fetch user info: %w", err)
	}
	if info.Email == "" {
		return "", ErrNoEmail
	}
	return info.Email, nil
}

// establish makes src the signed-in token source and notifies subscribers.
func (p *Provider) establish(ctx context.Context, src oauth2.TokenSource, tok *oauth2.Token, email string) {
	p.mu.Lock()
	wasSignedIn := p.source != nil
	p.source = src
	p.token = tok
	p.identity = Identity{Email: email, AccessToken: tok.AccessToken}
	p.mu.Unlock()

	p.persist(tok)
	if !wasSignedIn {
		p.metrics.IncrementActiveSessions(ctx)
	}
	p.logger.Info("signed in", logging.UserHash(email), logging.Domain(email))
	p.notify(true)
}

// SignOut revokes the token at Google and forgets it locally. Local state is
// cleared even when revocation fails; the revocation error is returned.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	tok := p.token
	p.mu.Unlock()

	var revokeErr error
	if tok != nil {
		revokeErr = p.revoke(ctx, tok)
		if revokeErr != nil {
			p.logger.Warn("token revocation failed", logging.Err(revokeErr))
		}
	}

	p.forget(ctx, nil)
	return revokeErr
}

func (p *Provider) revoke(ctx context.Context, tok *oauth2.Token) (err error) {
	start := time.Now()
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRevoke, status, "", time.Since(start))
	}()

	value := tok.RefreshToken
	if value == "" {
		value = tok.AccessToken
	}

	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token: %w", &apperr.StatusError{Code: resp.StatusCode})
	}
	return nil
}

// forget clears the signed-in state. When only is non-nil the state is
// cleared only if only is still the current source.
func (p *Provider) forget(ctx context.Context, only oauth2.TokenSource) {
	p.mu.Lock()
	if p.source == nil || (only != nil && p.source != only) {
		p.mu.Unlock()
		return
	}
	email := p.identity.Email
	p.source = nil
	p.token = nil
	p.identity = Identity{}
	p.mu.Unlock()

	if p.config.TokenCachePath != "" {
		if err := removeToken(p.config.TokenCachePath); err != nil {
			p.logger.Warn("failed to clear token cache", logging.Err(err))
		}
	}
	p.metrics.DecrementActiveSessions(ctx)
	p.logger.Info("signed out", logging.UserHash(email))
	p.notify(false)
}

// Invalidate signs out locally after an API rejected the current token. The
// token is not revoked; Google already refuses it.
func (p *Provider) Invalidate(ctx context.Context) {
	if !p.signedIn() {
		return
	}
	p.logger.Warn("access token rejected, signing out")
	p.forget(ctx, nil)
}

// Current returns the signed-in identity.
func (p *Provider) Current() (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity, p.source != nil
}

func (p *Provider) signedIn() bool {
	_, ok := p.Current()
	return ok
}

// Subscribe registers fn to be called with the new state on every sign-in,
// token refresh and sign-out, including ones caused by a failed token
// refresh. fn runs on the goroutine that changed the state and must not block.
func (p *Provider) Subscribe(fn func(signedIn bool)) (unsubscribe func()) {
	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

func (p *Provider) notify(signedIn bool) {
	p.subMu.Lock()
	fns := make([]func(bool), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(signedIn)
	}
}

// watch checks the token every WatchInterval until Close.
func (p *Provider) watch() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.checkToken(context.Background())
		}
	}
}

// checkToken signs out when the current token can no longer be refreshed.
func (p *Provider) checkToken(ctx context.Context) {
	p.mu.Lock()
	src := p.source
	p.mu.Unlock()
	if src == nil {
		return
	}

	if _, err := src.Token(); err != nil {
		p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		p.logger.Warn("token refresh failed, signing out", logging.Err(err))
		p.forget(ctx, src)
	}
}

// Close stops the token watcher. Subscriptions are left to their owners.
func (p *Provider) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()
}

// TokenSource returns a source that always serves the current user's token
// and fails with ErrNotSignedIn while nobody is signed in.
func (p *Provider) TokenSource() oauth2.TokenSource {
	return currentSource{p: p}
}

// HTTPClient returns a client that authenticates every request with the
// current user's token. It is forced to HTTP/1.1; Drive uploads over
// HTTP/2 have produced protocol errors.
func (p *Provider) HTTPClient() *http.Client {
	base := http.RoundTripper(&http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	})
	if p.config.HTTPClient != nil && p.config.HTTPClient.Transport != nil {
		base = p.config.HTTPClient.Transport
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: p.TokenSource(),
			Base:   base,
		},
	}
}

func (p *Provider) httpClient() *http.Client {
	if p.config.HTTPClient != nil {
		return p.config.HTTPClient
	}
	return http.DefaultClient
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.config.HTTPClient != nil {
		return oidc.ClientContext(ctx, p.config.HTTPClient)
	}
	return ctx
}

func (p *Provider) persist(tok *oauth2.Token) {
	if p.config.TokenCachePath == "" {
		return
	}
	if err := saveToken(p.config.TokenCachePath, tok); err != nil {
		p.logger.Warn("failed to cache token", logging.Err(err))
	}
}

// newSource wraps the refreshing source so refreshed tokens are recorded,
// cached and reflected in Current.
func (p *Provider) newSource(tok *oauth2.Token) oauth2.TokenSource {
	s := &refreshingSource{
		p:    p,
		last: tok.AccessToken,
	}
	s.base = p.oauthConfig.TokenSource(p.clientContext(context.Background()), tok)
	return s
}

type refreshingSource struct {
	p    *Provider
	base oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *refreshingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	refreshed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if refreshed {
		s.p.refreshed(s, tok)
	}
	return tok, nil
}

func (p *Provider) refreshed(src oauth2.TokenSource, tok *oauth2.Token) {
	p.mu.Lock()
	current := p.source == src
	if current {
		p.token = tok
		p.identity.AccessToken = tok.AccessToken
	}
	p.mu.Unlock()

	p.metrics.RecordOAuthTokenRefresh(context.Background(), instrumentation.OAuthResultSuccess)
	p.logger.Debug("token refreshed", slog.String("token", logging.SanitizeToken(tok.AccessToken)))
	if current {
		p.persist(tok)
		p.notify(true)
	}
}

type currentSource struct {
	p *Provider
}

func (s currentSource) Token() (*oauth2.Token, error) {
	s.p.mu.Lock()
	src := s.p.source
	s.p.mu.Unlock()

	if src == nil {
		return nil, ErrNotSignedIn
	}
	return src.Token()
}
