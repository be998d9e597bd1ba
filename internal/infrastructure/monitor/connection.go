package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Check tests one dependency. Count is optional and fills ComponentStatus.Detail.
type Check struct {
	Name    string
	Timeout time.Duration
	Ping    func(ctx context.Context) error
	Count   func() (int, error)
}

// PostgresCheck pings the pool.
func PostgresCheck(pool *pgxpool.Pool) Check {
	return Check{Name: "postgresql", Timeout: 3 * time.Second, Ping: pool.Ping}
}

// RedisCheck pings the session registry.
func RedisCheck(client *redislib.Client) Check {
	return Check{
		Name:    "redis",
		Timeout: 2 * time.Second,
		Ping:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}
}

type Monitor struct {
	checks   []Check
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	status Status
	stopCh chan struct{}
	once   sync.Once
}

func New(interval time.Duration, logger *zap.Logger, checks ...Check) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		checks:   checks,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	components := make(map[string]ComponentStatus, len(m.status.Components))
	for k, v := range m.status.Components {
		components[k] = v
	}
	return Status{Components: components, LastCheck: m.status.LastCheck}
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every check once and stores the result.
func (m *Monitor) Refresh() {
	components := make(map[string]ComponentStatus, len(m.checks))
	for _, c := range m.checks {
		components[c.Name] = m.run(c)
	}

	m.mu.Lock()
	previous := m.status.Components
	m.status = Status{Components: components, LastCheck: time.Now()}
	m.mu.Unlock()

	for name, cs := range components {
		if prev, ok := previous[name]; ok && prev.Healthy && !cs.Healthy {
			m.logger.Warn("dependency became unhealthy", zap.String("component", name), zap.String("error", cs.Error))
		}
	}
}

func (m *Monitor) run(c Check) ComponentStatus {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	var cs ComponentStatus
	if c.Ping != nil {
		if err := c.Ping(ctx); err != nil {
			cs.Error = err.Error()
		}
	}
	if c.Count != nil && cs.Error == "" {
		n, err := c.Count()
		if err != nil {
			cs.Error = err.Error()
		} else {
			cs.Detail = &n
		}
	}
	cs.Healthy = cs.Error == ""
	cs.Latency = time.Since(started)
	return cs
}
