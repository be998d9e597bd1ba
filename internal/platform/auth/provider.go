package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/repository"
	"github.com/fastygo/taskboard/usecase"
)

// errSuperseded reports that the session changed while a refresh was running.
var errSuperseded = errors.New("session changed during refresh")

// Revocations fans session revocations out to every running client.
type Revocations interface {
	Publish(ctx context.Context, sessionID string) error
	Watch(ctx context.Context) (<-chan string, error)
}

type Config struct {
	JWTSecret           string
	Issuer              string
	AccessTTL           time.Duration
	RefreshInterval     time.Duration
	RefreshMargin       time.Duration
	RequireConfirmation bool
	MinPasswordLength   int
	BcryptCost          int
}

// Provider implements usecase.AuthProvider on top of the user table, the
// Redis session registry and a locally persisted session.
type Provider struct {
	users       repository.UserRepository
	sessions    repository.SessionRepository
	cache       repository.SessionCache
	revocations Revocations
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
	cron        *cron.Cron

	mu          sync.Mutex
	current     *domain.Session
	epoch       uint64
	listeners   map[int]usecase.SessionListener
	nextID      int
	cancelWatch context.CancelFunc
	started     bool

	// emitMu orders cache writes and listener calls by epoch.
	emitMu  sync.Mutex
	emitted uint64
}

func NewProvider(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	cache repository.SessionCache,
	revocations Revocations,
	cfg Config,
	logger *zap.Logger,
) *Provider {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = 5 * time.Minute
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 6
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "taskboard"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		users:       users,
		sessions:    sessions,
		cache:       cache,
		revocations: revocations,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		cron:        cron.New(cron.WithSeconds()),
		listeners:   make(map[int]usecase.SessionListener),
	}
}

// Start schedules token auto-refresh and begins watching for revocations.
// A failed revocation watch is logged; refresh still runs.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	schedule := fmt.Sprintf("@every %ds", int(p.cfg.RefreshInterval.Seconds()))
	if _, err := p.cron.AddFunc(schedule, p.autoRefresh); err != nil {
		return err
	}
	p.cron.Start()

	if p.revocations != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		ch, err := p.revocations.Watch(watchCtx)
		if err != nil {
			cancel()
			p.logger.Warn("session revocation watch unavailable", zap.Error(err))
		} else {
			p.mu.Lock()
			p.cancelWatch = cancel
			p.mu.Unlock()
			go p.watchRevocations(ch)
		}
	}

	p.logger.Info("auth provider started", zap.Duration("refresh_interval", p.cfg.RefreshInterval))
	return nil
}

// Stop halts auto-refresh and the revocation watch.
func (p *Provider) Stop(ctx context.Context) {
	stopCtx := p.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	p.mu.Lock()
	cancel := p.cancelWatch
	p.cancelWatch = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (usecase.SignUpResult, error) {
	if len(password) < p.cfg.MinPasswordLength {
		return usecase.SignUpResult{}, domain.NewError(domain.ErrCodeInvalid,
			fmt.Sprintf("password should be at least %d characters", p.cfg.MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return usecase.SignUpResult{}, domain.WrapError(domain.ErrCodeInvalid, "unable to hash password", err)
	}

	user := &domain.User{Email: email, PasswordHash: string(hash)}
	if !p.cfg.RequireConfirmation {
		confirmed := p.now().UTC()
		user.ConfirmedAt = &confirmed
	}
	if err := p.users.Create(ctx, user); err != nil {
		return usecase.SignUpResult{}, err
	}

	if p.cfg.RequireConfirmation {
		p.logger.Info("user registered, awaiting confirmation", zap.String("email", user.Email))
		return usecase.SignUpResult{PendingConfirmation: true}, nil
	}

	session, err := p.issue(ctx, user)
	if err != nil {
		return usecase.SignUpResult{}, err
	}
	p.setCurrent(session, domain.AuthSignedIn)
	return usecase.SignUpResult{Session: cloneSession(session)}, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	user, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsConfirmed() {
		return nil, domain.ErrEmailNotConfirmed
	}

	session, err := p.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	p.setCurrent(session, domain.AuthSignedIn)
	return cloneSession(session), nil
}

// SignOut revokes the current session everywhere. Local state is cleared
// even when the registry or the revocation feed fails.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == nil {
		var err error
		current, err = p.cache.Load()
		if err != nil {
			p.logger.Warn("reading persisted session failed", zap.Error(err))
		}
	}

	var result error
	if current != nil {
		if err := p.sessions.Delete(ctx, current.ID); err != nil {
			result = errors.Join(result, err)
		}
		if p.revocations != nil {
			if err := p.revocations.Publish(ctx, current.ID); err != nil {
				result = errors.Join(result, err)
			}
		}
	}

	p.setCurrent(nil, domain.AuthSignedOut)
	return result
}

// GetSession returns the live session, resuming a persisted one when needed.
// A session missing from the registry is treated as signed out.
func (p *Provider) GetSession(ctx context.Context) (*domain.Session, error) {
	p.mu.Lock()
	session := cloneSession(p.current)
	epoch := p.epoch
	p.mu.Unlock()

	resumed := session == nil
	if resumed {
		cached, err := p.cache.Load()
		if err != nil {
			return nil, err
		}
		if cached == nil {
			return nil, nil
		}
		session = cached
	}

	registered, err := p.sessions.Get(ctx, session.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			p.dropLocal(epoch)
			return nil, nil
		}
		return nil, err
	}
	if registered.RefreshToken != session.RefreshToken {
		p.dropLocal(epoch)
		return nil, nil
	}

	if err := p.verify(session.AccessToken); err != nil || p.expiresSoon(session) {
		refreshed, err := p.refresh(ctx, session, epoch)
		if errors.Is(err, errSuperseded) {
			return p.currentSession(), nil
		}
		if err != nil {
			return nil, err
		}
		return refreshed, nil
	}

	if resumed {
		// slide the refresh window for a session picked up after restart
		if err := p.sessions.Extend(ctx, session.ID, 0); err != nil {
			p.logger.Warn("extending resumed session failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.epoch != epoch {
		// signed in or out while resuming
		return cloneSession(p.current), nil
	}
	if p.current == nil {
		p.current = cloneSession(session)
	}
	return session, nil
}

// OnSessionChange registers listener for every session change.
func (p *Provider) OnSessionChange(listener usecase.SessionListener) usecase.Subscription {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	p.mu.Unlock()

	var once sync.Once
	return usecase.SubscriptionFunc(func() error {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
		return nil
	})
}

func (p *Provider) issue(ctx context.Context, user *domain.User) (*domain.Session, error) {
	now := p.now().UTC()
	session := &domain.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		UserEmail:    user.Email,
		RefreshToken: uuid.NewString(),
		CreatedAt:    now,
	}
	if err := p.sign(session, now); err != nil {
		return nil, err
	}
	if err := p.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// refresh re-signs session and makes it current, provided no sign-in or
// sign-out happened since epoch was read. A superseded refresh returns
// errSuperseded and leaves no trace in the registry.
func (p *Provider) refresh(ctx context.Context, session *domain.Session, epoch uint64) (*domain.Session, error) {
	next := cloneSession(session)
	if err := p.sign(next, p.now().UTC()); err != nil {
		return nil, err
	}
	if !p.epochIs(epoch) {
		return nil, errSuperseded
	}
	if err := p.sessions.Save(ctx, next); err != nil {
		return nil, err
	}
	if !p.replaceIf(epoch, next, domain.AuthTokenRefreshed) {
		if p.currentID() != next.ID {
			if err := p.sessions.Delete(ctx, next.ID); err != nil {
				p.logger.Warn("removing superseded session failed", zap.String("session_id", next.ID), zap.Error(err))
			}
		}
		return nil, errSuperseded
	}
	return cloneSession(next), nil
}

func (p *Provider) sign(session *domain.Session, now time.Time) error {
	expires := now.Add(p.cfg.AccessTTL)
	claims := jwt.MapClaims{
		"sub":   session.UserID,
		"email": session.UserEmail,
		"sid":   session.ID,
		"iss":   p.cfg.Issuer,
		"iat":   now.Unix(),
		"exp":   expires.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.cfg.JWTSecret))
	if err != nil {
		return err
	}
	session.AccessToken = token
	session.ExpiresAt = expires
	return nil
}

// verify checks the token signature; an expired but otherwise valid token passes.
func (p *Provider) verify(tokenString string) error {
	_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(p.cfg.JWTSecret), nil
	})
	var ve *jwt.ValidationError
	if errors.As(err, &ve) && ve.Errors == jwt.ValidationErrorExpired {
		return nil
	}
	return err
}

func (p *Provider) expiresSoon(session *domain.Session) bool {
	return session.ExpiresAt.Before(p.now().Add(p.cfg.RefreshMargin))
}

func (p *Provider) autoRefresh() {
	p.mu.Lock()
	session := cloneSession(p.current)
	epoch := p.epoch
	p.mu.Unlock()
	if session == nil || !p.expiresSoon(session) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RefreshInterval)
	defer cancel()

	if _, err := p.sessions.Get(ctx, session.ID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			p.logger.Info("session expired in registry, signing out", zap.String("session_id", session.ID))
			p.replaceIf(epoch, nil, domain.AuthSignedOut)
			return
		}
		p.logger.Warn("session refresh check failed", zap.Error(err))
		return
	}
	if _, err := p.refresh(ctx, session, epoch); err != nil {
		if errors.Is(err, errSuperseded) {
			p.logger.Debug("token refresh superseded", zap.String("session_id", session.ID))
			return
		}
		p.logger.Warn("token refresh failed", zap.Error(err))
	}
}

func (p *Provider) watchRevocations(ch <-chan string) {
	for id := range ch {
		p.mu.Lock()
		revoked := p.current != nil && p.current.ID == id
		epoch := p.epoch
		p.mu.Unlock()
		if revoked && p.replaceIf(epoch, nil, domain.AuthSignedOut) {
			p.logger.Info("current session revoked externally", zap.String("session_id", id))
		}
	}
}

// dropLocal forgets a session the registry no longer knows, unless the
// state moved on since epoch.
func (p *Provider) dropLocal(epoch uint64) {
	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.epoch++
	version := p.epoch
	p.mu.Unlock()

	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if version < p.emitted {
		return
	}
	p.emitted = version
	if err := p.cache.Clear(); err != nil {
		p.logger.Warn("clearing persisted session failed", zap.Error(err))
	}
}

func (p *Provider) epochIs(epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch == epoch
}

func (p *Provider) currentID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.ID
}

func (p *Provider) currentSession() *domain.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneSession(p.current)
}

// setCurrent replaces the session unconditionally.
func (p *Provider) setCurrent(session *domain.Session, event domain.AuthEvent) {
	p.mu.Lock()
	version, listeners := p.swapLocked(session)
	p.mu.Unlock()
	p.emit(version, session, event, listeners)
}

// replaceIf replaces the session only when nothing changed since epoch.
func (p *Provider) replaceIf(epoch uint64, session *domain.Session, event domain.AuthEvent) bool {
	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return false
	}
	version, listeners := p.swapLocked(session)
	p.mu.Unlock()
	p.emit(version, session, event, listeners)
	return true
}

func (p *Provider) swapLocked(session *domain.Session) (uint64, []usecase.SessionListener) {
	p.current = cloneSession(session)
	p.epoch++
	listeners := make([]usecase.SessionListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	return p.epoch, listeners
}

// emit persists the session and notifies listeners. Changes older than the
// last one emitted are dropped, so the cache and listeners end on the
// newest state. Listeners must not call back into the provider.
func (p *Provider) emit(version uint64, session *domain.Session, event domain.AuthEvent, listeners []usecase.SessionListener) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if version < p.emitted {
		return
	}
	p.emitted = version

	var err error
	if session == nil {
		err = p.cache.Clear()
	} else {
		err = p.cache.Store(session)
	}
	if err != nil {
		p.logger.Warn("persisting session failed", zap.Error(err))
	}

	for _, l := range listeners {
		l(event, cloneSession(session))
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

var _ usecase.AuthProvider = (*Provider)(nil)
