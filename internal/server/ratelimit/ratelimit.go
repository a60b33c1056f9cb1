// Package ratelimit throttles API clients with one token bucket per client and
// route.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info describes the bucket state after a request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	lastSeen time.Time
}

// Limiter hands out tokens per client. Stop must be called to end the cleanup
// goroutine.
type Limiter struct {
	config *Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewLimiter creates a limiter. A nil config uses DefaultConfig.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	l := &Limiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanupLoop(config.CleanupInterval)
	} else {
		close(l.done)
	}
	return l
}

// Allow takes a token for clientID on the route. The bucket key includes the route
// so an exhausted generate budget does not block variant creation.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Allowlist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Denylist[clientID] {
		return false, Info{}
	}

	ep := l.config.Match(path, method)
	if ep == nil {
		ep = &EndpointConfig{Path: "*", Method: method, Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	}
	if ep.Limit <= 0 || ep.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	b := l.bucketFor(clientID+"|"+ep.Method+" "+ep.Path, ep, now)

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
		r.CancelAt(now)
		return false, Info{Limit: b.limit, RetryAfter: delay}
	}
	return true, Info{
		Allowed:   true,
		Limit:     b.limit,
		Remaining: int(b.limiter.TokensAt(now)),
	}
}

func (l *Limiter) bucketFor(key string, ep *EndpointConfig, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		burst := ep.Burst
		if burst <= 0 {
			burst = ep.Limit
		}
		every := ep.Window / time.Duration(ep.Limit)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), burst), limit: ep.Limit}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets buckets idle for longer than IdleTTL.
func (l *Limiter) sweep() {
	ttl := l.config.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the cleanup goroutine and waits for it to exit. Safe to call twice.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}
