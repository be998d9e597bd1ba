// Package session owns the authentication state of the running client.
//
// The Controller is the only writer of the current session. Other
// components read it through Current/CurrentEmail or observe it via OnChange.
package session

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/usecase"
)

// State is the authentication state of the client.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// ChangeFunc observes the current session. nil means signed out.
type ChangeFunc func(session *domain.Session)

type Controller struct {
	auth     usecase.AuthProvider
	notifier usecase.Notifier
	logger   *zap.Logger

	mu                  sync.RWMutex
	current             *domain.Session
	pendingConfirmation bool
	version             uint64
	sub                 usecase.Subscription
	listeners           map[int]ChangeFunc
	nextListener        int

	// emitMu delivers changes to listeners in version order.
	emitMu  sync.Mutex
	emitted uint64
}

func New(auth usecase.AuthProvider, notifier usecase.Notifier, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		auth:      auth,
		notifier:  notifier,
		logger:    logger,
		listeners: make(map[int]ChangeFunc),
	}
}

// Start subscribes to provider pushes and resolves the initial state once.
// A failed resume leaves the controller unauthenticated.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sub := c.auth.OnSessionChange(c.handleProviderChange)

	c.mu.Lock()
	c.sub = sub
	before := c.version
	c.mu.Unlock()

	resumed, err := c.auth.GetSession(ctx)
	if err != nil {
		c.logger.Warn("unable to resume session", zap.Error(err))
		return nil
	}

	c.mu.RLock()
	raced := c.version != before
	c.mu.RUnlock()
	if raced {
		// a push already decided the state
		return nil
	}
	if resumed != nil {
		c.logger.Info("session resumed", zap.String("email", resumed.UserEmail))
	}
	c.set(resumed)
	return nil
}

// Stop tears down the provider subscription.
func (c *Controller) Stop() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			c.logger.Warn("closing auth subscription failed", zap.Error(err))
		}
	}
}

func (c *Controller) SignUp(ctx context.Context, email, password string) (usecase.SignUpResult, error) {
	if err := validateCredentials(email, password); err != nil {
		return usecase.SignUpResult{}, c.fail("sign up failed", err)
	}

	result, err := c.auth.SignUp(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return usecase.SignUpResult{}, c.fail("sign up failed", err)
	}

	if result.PendingConfirmation {
		c.mu.Lock()
		c.pendingConfirmation = true
		c.mu.Unlock()
		c.notify().Success("Check your inbox to confirm your account")
	}
	if result.Session != nil {
		c.set(result.Session)
	}
	return result, nil
}

func (c *Controller) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, c.fail("sign in failed", err)
	}

	session, err := c.auth.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, c.fail("sign in failed", err)
	}
	if session == nil {
		return nil, c.fail("sign in failed", domain.ErrSessionNotFound)
	}

	c.set(session)
	return cloneSession(session), nil
}

// SignOut clears local state even when the provider call fails.
func (c *Controller) SignOut(ctx context.Context) error {
	err := c.auth.SignOut(ctx)
	c.set(nil)
	if err != nil {
		return c.fail("sign out failed", err)
	}
	return nil
}

// Current returns a copy of the live session.
func (c *Controller) Current() (*domain.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil, false
	}
	return cloneSession(c.current), true
}

// CurrentEmail returns the email of the signed-in user.
func (c *Controller) CurrentEmail() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return "", false
	}
	return c.current.UserEmail, true
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Unauthenticated
	}
	return Authenticated
}

// PendingConfirmation is true after a sign-up that still awaits email confirmation.
func (c *Controller) PendingConfirmation() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pendingConfirmation
}

// OnChange registers fn for every session change and returns its unsubscribe func.
func (c *Controller) OnChange(fn ChangeFunc) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) handleProviderChange(event domain.AuthEvent, session *domain.Session) {
	c.logger.Debug("auth state changed", zap.String("event", string(event)))
	if event == domain.AuthSignedOut {
		session = nil
	}
	c.set(session)
}

func (c *Controller) set(session *domain.Session) {
	c.mu.Lock()
	c.version++
	version := c.version
	changed := !sameSession(c.current, session)
	c.current = cloneSession(session)
	if session != nil {
		c.pendingConfirmation = false
	}
	listeners := make([]ChangeFunc, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if !changed {
		return
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if version < c.emitted {
		// a newer change was already delivered
		return
	}
	c.emitted = version
	for _, fn := range listeners {
		fn(cloneSession(session))
	}
}

func (c *Controller) fail(message string, err error) error {
	authErr := domain.NewAuthError(message, err)
	c.notify().Error(authErr)
	return authErr
}

func (c *Controller) notify() usecase.Notifier {
	if c.notifier == nil {
		return nopNotifier{}
	}
	return c.notifier
}

func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.NewError(domain.ErrCodeInvalid, "a valid email is required")
	}
	if password == "" {
		return domain.NewError(domain.ErrCodeInvalid, "password is required")
	}
	return nil
}

func sameSession(a, b *domain.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.AccessToken == b.AccessToken
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

type nopNotifier struct{}

func (nopNotifier) Success(string)                {}
func (nopNotifier) Warn(domain.ErrorKind, string) {}
func (nopNotifier) Error(error)                   {}
