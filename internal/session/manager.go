package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/drivemanager/internal/apperr"
	"github.com/teemow/drivemanager/internal/events"
	"github.com/teemow/drivemanager/internal/google"
	"github.com/teemow/drivemanager/internal/logging"
)

// State is the initialization state of the Manager.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNotReady is returned by sign-in calls made before Initialize succeeded.
var ErrNotReady = errors.New("session not initialized")

// Session is the signed-in state shown to the user.
type Session struct {
	SignedIn    bool   `json:"signedIn"`
	UserEmail   string `json:"userEmail,omitempty"`
	AccessToken string `json:"-"`
}

// Provider is the identity provider the Manager drives.
type Provider interface {
	Init(ctx context.Context) error
	AuthURL(ctx context.Context) (string, error)
	Exchange(ctx context.Context, state, code string) (google.Identity, error)
	SignOut(ctx context.Context) error
	Current() (google.Identity, bool)
	Subscribe(fn func(signedIn bool)) (unsubscribe func())
}

// Refresher is the file listing kept in step with the session.
type Refresher interface {
	Refresh(ctx context.Context) error
	Clear()
}

// Reporter surfaces a failed operation to the user.
type Reporter interface {
	Report(ctx context.Context, operation string, err error)
}

// Callback is the query of the OAuth redirect.
type Callback struct {
	State string
	Code  string
	// Error is set when the user declined consent, e.g. "access_denied".
	Error string
}

// Config holds the Manager's collaborators. Files, Reporter and Publisher
// may be nil.
type Config struct {
	Provider  Provider
	Files     Refresher
	Reporter  Reporter
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Manager owns the Session.
type Manager struct {
	provider  Provider
	files     Refresher
	reporter  Reporter
	publisher events.Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	session Session

	initOnce    sync.Once
	initErr     error
	unsubscribe func()
	wake        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewManager creates a Manager in StateInitializing.
func NewManager(config Config) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		provider:  config.Provider,
		files:     config.Files,
		reporter:  config.Reporter,
		publisher: config.Publisher,
		logger:    logging.WithComponent(logger, "session"),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Initialize prepares the provider, subscribes to its state changes and
// resolves the current session, refreshing the listing when a user is
// already signed in. A failure is final: the Manager stays in StateFailed.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.initErr = m.initialize(ctx)
	})
	return m.initErr
}

func (m *Manager) initialize(ctx context.Context) error {
	if err := m.provider.Init(ctx); err != nil {
		err = apperr.Wrap(apperr.ErrInitialization, err)
		m.mu.Lock()
		m.state = StateFailed
		m.session = Session{}
		m.mu.Unlock()
		m.report(ctx, "initialize", err)
		m.publish()
		return err
	}

	unsubscribe := m.provider.Subscribe(func(bool) {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	})
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.resolve(ctx)

	m.mu.Lock()
	m.state = StateReady
	m.mu.Unlock()
	m.publish()

	m.wg.Add(1)
	go m.listen()

	m.logger.Info("session manager ready", slog.Bool("signed_in", m.Session().SignedIn))
	return nil
}

// listen re-resolves the session whenever the provider reports a change.
func (m *Manager) listen() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
			m.resolve(m.ctx)
		}
	}
}

// resolve reads the provider's identity into the Session. On a flip to
// signed in the listing is refreshed; on a flip to signed out it is cleared.
func (m *Manager) resolve(ctx context.Context) {
	id, signedIn := m.provider.Current()

	next := Session{}
	if signedIn {
		next = Session{SignedIn: true, UserEmail: id.Email, AccessToken: id.AccessToken}
	}

	m.mu.Lock()
	prev := m.session
	m.session = next
	m.mu.Unlock()

	// A refreshed access token alone changes nothing the views render.
	if prev.SignedIn == next.SignedIn && prev.UserEmail == next.UserEmail {
		return
	}
	m.publish()

	switch {
	case next.SignedIn && (!prev.SignedIn || prev.UserEmail != next.UserEmail):
		m.logger.Info("session signed in", logging.UserHash(next.UserEmail))
		if m.files != nil {
			if err := m.files.Refresh(ctx); err != nil {
				m.logger.Debug("refresh after sign-in failed", logging.Err(err))
			}
		}
	case !next.SignedIn && prev.SignedIn:
		m.logger.Info("session signed out", logging.UserHash(prev.UserEmail))
		if m.files != nil {
			m.files.Clear()
		}
	}
}

// SignIn starts the consent flow and returns the URL to send the browser to.
func (m *Manager) SignIn(ctx context.Context) (string, error) {
	if m.State() != StateReady {
		return "", apperr.Wrap(apperr.ErrSignIn, ErrNotReady)
	}
	consentURL, err := m.provider.AuthURL(ctx)
	if err != nil {
		err = apperr.Wrap(apperr.ErrSignIn, err)
		m.report(ctx, "sign_in", err)
		return "", err
	}
	return consentURL, nil
}

// CompleteSignIn finishes the consent flow from the OAuth redirect. On
// success the Session is signed in and the listing refreshed.
func (m *Manager) CompleteSignIn(ctx context.Context, cb Callback) error {
	if m.State() != StateReady {
		return apperr.Wrap(apperr.ErrSignIn, ErrNotReady)
	}
	if cb.Error != "" {
		err := apperr.Wrap(apperr.ErrSignIn, fmt.Errorf("consent not granted: %s", cb.Error))
		m.report(ctx, "sign_in", err)
		return err
	}

	if _, err := m.provider.Exchange(ctx, cb.State, cb.Code); err != nil {
		err = apperr.Wrap(apperr.ErrSignIn, err)
		m.report(ctx, "sign_in", err)
		return err
	}

	m.resolve(ctx)
	return nil
}

// SignOut signs out at the provider and clears the Session and listing.
// Local state is cleared even when the provider fails; that failure is
// reported and returned.
func (m *Manager) SignOut(ctx context.Context) error {
	providerErr := m.provider.SignOut(ctx)

	m.mu.Lock()
	prev := m.session
	m.session = Session{}
	m.mu.Unlock()

	if m.files != nil {
		m.files.Clear()
	}
	if prev.SignedIn {
		m.logger.Info("session signed out", logging.UserHash(prev.UserEmail))
		m.publish()
	}

	if providerErr != nil {
		err := apperr.Wrap(apperr.ErrSignOut, providerErr)
		m.report(ctx, "sign_out", err)
		return err
	}
	return nil
}

// Session returns a snapshot of the current Session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// State returns the initialization state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close unsubscribes from the provider and stops the listener.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		unsubscribe := m.unsubscribe
		m.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		m.cancel()
		m.wg.Wait()
	})
}

func (m *Manager) report(ctx context.Context, operation string, err error) {
	if m.reporter != nil {
		m.reporter.Report(ctx, operation, err)
		return
	}
	m.logger.ErrorContext(ctx, "operation failed", logging.Operation(operation), logging.Err(err))
}

func (m *Manager) publish() {
	if m.publisher != nil {
		m.publisher.Publish(events.Event{Type: events.TypeSession})
	}
}
