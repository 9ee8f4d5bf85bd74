package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxClients = 10000
	defaultIdleTTL    = 5 * time.Minute
)

// Limiter tracks a token bucket per client id with bounded memory: idle
// entries are evicted, and when the table is full the stalest entry is
// dropped to make room. It is an injected capability, not process-global
// state, so servers and tests can each own their instance.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rps        rate.Limit
	burst      int
	maxClients int
	idleTTL    time.Duration
	now        func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMaxClients bounds the number of tracked client ids.
func WithMaxClients(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxClients = n
		}
	}
}

// WithIdleTTL sets how long an unused bucket survives before eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(l *Limiter) {
		if ttl > 0 {
			l.idleTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New creates a limiter allowing rps requests per second with the given burst
// per client.
func New(rps float64, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:    make(map[string]*bucket),
		rps:        rate.Limit(rps),
		burst:      burst,
		maxClients: defaultMaxClients,
		idleTTL:    defaultIdleTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether the client may proceed now.
func (l *Limiter) Allow(clientID string) bool {
	if clientID == "" {
		clientID = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[clientID]
	if !ok {
		l.evictLocked(now)
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[clientID] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// evictLocked drops idle buckets, and the stalest one if the table is still
// full. Called with the mutex held before inserting a new entry.
func (l *Limiter) evictLocked(now time.Time) {
	if len(l.buckets) < l.maxClients {
		return
	}
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, id)
		}
	}
	if len(l.buckets) < l.maxClients {
		return
	}
	var oldestID string
	var oldest time.Time
	for id, b := range l.buckets {
		if oldestID == "" || b.lastSeen.Before(oldest) {
			oldestID = id
			oldest = b.lastSeen
		}
	}
	if oldestID != "" {
		delete(l.buckets, oldestID)
	}
}
