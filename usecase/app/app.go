// Package app gates the task board behind the session: a board is mounted
// while a user is signed in and torn down as soon as the session disappears.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/usecase/board"
	"github.com/fastygo/taskboard/usecase/session"
)

// View is the screen currently rendered.
type View string

const (
	ViewAuth  View = "auth"
	ViewBoard View = "board"
)

// BoardFactory builds a fresh, unmounted board for a new session.
type BoardFactory func() *board.Board

// ViewState is everything the UI needs to render the current screen.
type ViewState struct {
	View                View            `json:"view"`
	Email               string          `json:"email,omitempty"`
	PendingConfirmation bool            `json:"pending_confirmation"`
	Board               *board.Snapshot `json:"board,omitempty"`
}

type App struct {
	session  *session.Controller
	newBoard BoardFactory
	logger   *zap.Logger

	mu          sync.Mutex
	board       *board.Board
	baseCtx     context.Context
	unsubscribe func()
}

func New(ctrl *session.Controller, factory BoardFactory, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		session:  ctrl,
		newBoard: factory,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// Start resolves the initial session and mounts the board when one exists.
// ctx bounds the lifetime of boards mounted later by session pushes.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.baseCtx = ctx
	a.unsubscribe = a.session.OnChange(a.onSessionChange)
	a.mu.Unlock()

	if err := a.session.Start(ctx); err != nil {
		return err
	}
	if a.session.State() == session.Authenticated {
		a.mount(ctx)
	}
	return nil
}

// Stop unmounts the board and releases the session subscription.
func (a *App) Stop() {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	a.unmount()
	a.session.Stop()
}

func (a *App) Session() *session.Controller {
	return a.session
}

// Board returns the mounted board, if any.
func (a *App) Board() (*board.Board, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.board, a.board != nil
}

func (a *App) View() ViewState {
	state := ViewState{
		View:                ViewAuth,
		PendingConfirmation: a.session.PendingConfirmation(),
	}
	email, ok := a.session.CurrentEmail()
	if !ok {
		return state
	}
	b, mounted := a.Board()
	if !mounted {
		return state
	}
	snap := b.Snapshot()
	state.View = ViewBoard
	state.Email = email
	state.Board = &snap
	return state
}

func (a *App) onSessionChange(s *domain.Session) {
	if s == nil || a.session.State() != session.Authenticated {
		a.unmount()
		return
	}
	a.mu.Lock()
	ctx := a.baseCtx
	a.mu.Unlock()
	a.mount(ctx)
}

func (a *App) mount(ctx context.Context) {
	a.mu.Lock()
	if a.board != nil {
		a.mu.Unlock()
		return
	}
	b := a.newBoard()
	a.board = b
	a.mu.Unlock()

	if err := b.Mount(ctx); err != nil {
		// the board already surfaced the failure; it stays mounted for manual reloads
		a.logger.Warn("initial task load failed", zap.Error(err))
	}
}

func (a *App) unmount() {
	a.mu.Lock()
	b := a.board
	a.board = nil
	a.mu.Unlock()

	if b != nil {
		b.Unmount()
	}
}
