package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// memoryLimiter keeps one token bucket per key in process memory.
type memoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	config  Config
	limit   rate.Limit
	now     func() time.Time

	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter builds an in-memory limiter and starts its sweeper.
// Callers must Stop it.
func NewMemoryLimiter(cfg Config) Stoppable {
	cfg.ApplyDefaults()
	l := &memoryLimiter{
		clients: make(map[string]*client),
		config:  cfg,
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		now:     time.Now,
		ticker:  time.NewTicker(cfg.Window * 2),
		stopCh:  make(chan struct{}),
	}
	go l.sweep()
	return l
}

func (l *memoryLimiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{bucket: rate.NewLimiter(l.limit, l.config.burst())}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.bucket.AllowN(now, 1)
}

func (l *memoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, key)
}

func (l *memoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *memoryLimiter) sweep() {
	for {
		select {
		case <-l.ticker.C:
			l.evictIdle()
		case <-l.stopCh:
			l.ticker.Stop()
			return
		}
	}
}

// evictIdle drops clients idle for two windows; their buckets are full again.
func (l *memoryLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-2 * l.config.Window)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *memoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

var _ Stoppable = (*memoryLimiter)(nil)
