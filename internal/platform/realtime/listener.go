package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/usecase"
)

// DefaultChannel is the NOTIFY channel the tasks trigger publishes to.
const DefaultChannel = "tasks_changes"

const (
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
	loadTimeout = 5 * time.Second
)

// listenConn is one connection in LISTEN mode.
type listenConn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close()
}

type pooledConn struct {
	conn *pgxpool.Conn
}

func (c pooledConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.conn.Conn().WaitForNotification(ctx)
}

// Close drops the connection instead of returning it to the pool, since it
// is still in LISTEN mode.
func (c pooledConn) Close() {
	_ = c.conn.Conn().Close(context.Background())
	c.conn.Release()
}

type subscriber struct {
	table     string
	eventType domain.ChangeType
	handler   usecase.ChangeHandler
}

// Listener fans Postgres notifications out to subscribed handlers. It holds
// one pooled connection in LISTEN mode while running and reconnects with
// backoff for as long as anyone is subscribed.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	logger  *zap.Logger

	dial       func(ctx context.Context) (listenConn, error)
	load       func(ctx context.Context, table string, id int64) (json.RawMessage, error)
	minBackoff time.Duration

	mu      sync.Mutex
	subs    map[int]subscriber
	nextID  int
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewListener(pool *pgxpool.Pool, channel string, logger *zap.Logger) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Listener{
		pool:       pool,
		channel:    channel,
		logger:     logger,
		minBackoff: minBackoff,
		subs:       make(map[int]subscriber),
	}
	l.dial = l.listen
	l.load = l.loadRecord
	return l
}

// Start opens the LISTEN connection. It is a no-op while the loop is alive,
// including while it is reconnecting.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil
	}

	conn, err := l.dial(ctx)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(loopCtx, conn, l.done)

	l.logger.Info("realtime listener started", zap.String("channel", l.channel))
	return nil
}

// Stop closes the LISTEN connection and waits for the loop to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Subscribe registers handler for events of eventType on table, starting the
// listener if needed.
func (l *Listener) Subscribe(ctx context.Context, table string, eventType domain.ChangeType, handler usecase.ChangeHandler) (usecase.Subscription, error) {
	if handler == nil {
		return nil, domain.ErrInvalidPayload
	}

	// registered before Start so a loop that is about to go idle sees it
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = subscriber{table: table, eventType: eventType, handler: handler}
	l.mu.Unlock()

	if err := l.Start(ctx); err != nil {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
		return nil, err
	}

	l.logger.Debug("realtime subscription added",
		zap.String("table", table),
		zap.String("event", string(eventType)))

	var once sync.Once
	return usecase.SubscriptionFunc(func() error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
		return nil
	}), nil
}

// Ping reports whether the LISTEN connection is alive.
func (l *Listener) Ping(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return domain.ErrChannelUnavailable
	}
	return nil
}

func (l *Listener) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *Listener) listen(ctx context.Context) (listenConn, error) {
	if l.pool == nil {
		return nil, domain.ErrChannelUnavailable
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "acquire listen connection", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "listen on "+l.channel, err)
	}
	return pooledConn{conn: conn}, nil
}

// loadRecord reads the row a notification refers to as JSON.
func (l *Listener) loadRecord(ctx context.Context, table string, id int64) (json.RawMessage, error) {
	if l.pool == nil {
		return nil, domain.ErrChannelUnavailable
	}
	var record []byte
	sql := "SELECT row_to_json(r) FROM " + pgx.Identifier{table}.Sanitize() + " r WHERE r.id = $1"
	if err := l.pool.QueryRow(ctx, sql, id).Scan(&record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.ErrCodeNotFound, "record not found")
		}
		return nil, err
	}
	return record, nil
}

func (l *Listener) run(ctx context.Context, conn listenConn, done chan struct{}) {
	defer close(done)

	for {
		err := l.receive(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			l.retire()
			l.logger.Info("realtime listener stopped", zap.String("channel", l.channel))
			return
		}
		l.logger.Error("realtime listener failed", zap.String("channel", l.channel), zap.Error(err))

		conn = l.reconnect(ctx)
		if conn == nil {
			return
		}
		l.logger.Info("realtime listener reconnected", zap.String("channel", l.channel))
	}
}

func (l *Listener) receive(ctx context.Context, conn listenConn) error {
	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch(ctx, []byte(notification.Payload))
	}
}

// reconnect retries with exponential backoff. It returns nil once the
// listener is stopped or nobody is subscribed any more.
func (l *Listener) reconnect(ctx context.Context) listenConn {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()

	delay := l.minBackoff
	for {
		l.mu.Lock()
		idle := len(l.subs) == 0
		if idle {
			l.retireLocked()
		}
		l.mu.Unlock()
		if idle {
			l.logger.Info("realtime listener idle", zap.String("channel", l.channel))
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.retire()
			return nil
		case <-timer.C:
		}

		conn, err := l.dial(ctx)
		if err == nil {
			l.mu.Lock()
			l.running = true
			l.mu.Unlock()
			return conn
		}
		l.logger.Warn("realtime reconnect failed", zap.Duration("retry_in", delay), zap.Error(err))
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

func (l *Listener) retire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retireLocked()
}

func (l *Listener) retireLocked() {
	l.running = false
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// dispatch decodes one notification payload, loads the row it refers to
// and delivers it to every matching subscriber outside the lock.
func (l *Listener) dispatch(ctx context.Context, payload []byte) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		l.logger.Warn("ignoring malformed notification", zap.Error(err))
		return
	}

	l.mu.Lock()
	handlers := make([]usecase.ChangeHandler, 0, len(l.subs))
	for _, sub := range l.subs {
		if sub.table == event.Table && sub.eventType == event.Type {
			handlers = append(handlers, sub.handler)
		}
	}
	l.mu.Unlock()
	if len(handlers) == 0 {
		return
	}

	if len(event.Record) == 0 && event.ID != 0 && event.Type != domain.ChangeDelete {
		loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
		record, err := l.load(loadCtx, event.Table, event.ID)
		cancel()
		if err != nil {
			l.logger.Warn("loading notified row failed",
				zap.String("table", event.Table),
				zap.Int64("id", event.ID),
				zap.Error(err))
			return
		}
		event.Record = record
	}

	for _, handler := range handlers {
		handler(event)
	}
}

var _ usecase.Realtime = (*Listener)(nil)
