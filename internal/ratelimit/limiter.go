// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

// Package ratelimit throttles requests per client with golang.org/x/time/rate
// token buckets.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Defaults. The sustained rate matches 100 requests per minute.
const (
	DefaultBurst           = 100
	DefaultRate            = 100.0 / 60.0
	MinRate                = 0.01
	DefaultCleanupInterval = 5 * time.Minute
	DefaultClientMaxAge    = time.Hour
)

// Config configures a Limiter.
type Config struct {
	// Burst is the bucket capacity. Defaults to DefaultBurst if zero or negative.
	Burst int

	// Rate is the refill rate in requests per second.
	// Defaults to DefaultRate if zero or negative.
	Rate float64

	// CleanupInterval is how often idle clients are dropped.
	CleanupInterval time.Duration

	// ClientMaxAge is how long a client may stay idle before it is dropped.
	ClientMaxAge time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-key token bucket rate limiter. It is safe for concurrent use.
//
// A background goroutine drops idle keys. Call Close to stop it.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*entry
	burst   int
	rate    float64
	maxAge  time.Duration
	now     func() time.Time

	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	gauge     prometheus.Gauge
	rejection prometheus.Counter
}

// New creates a Limiter and starts its cleanup goroutine.
// If reg is non-nil, client-count and rejection metrics are registered with it.
func New(cfg Config, reg prometheus.Registerer) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	perSecond := cfg.Rate
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	perSecond = max(perSecond, MinRate)

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	maxAge := cfg.ClientMaxAge
	if maxAge <= 0 {
		maxAge = DefaultClientMaxAge
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		clients:  make(map[string]*entry),
		burst:    burst,
		rate:     perSecond,
		maxAge:   maxAge,
		now:      now,
		stopChan: make(chan struct{}),
	}

	if reg != nil {
		l.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mysurvey_ratelimiter_clients",
			Help: "Current number of tracked rate limiter clients",
		})
		l.rejection = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mysurvey_ratelimiter_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		})
		reg.MustRegister(l.gauge, l.rejection)
	}

	l.wg.Add(1)
	go l.cleanupLoop(interval)

	return l
}

// Allow consumes a token for key. When no token is available it returns false
// and the wait until the next one.
func (l *Limiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, exists := l.clients[key]
	if !exists {
		e = &entry{lim: rate.NewLimiter(rate.Limit(l.rate), l.burst)}
		l.clients[key] = e
		l.setGauge()
	}
	e.lastSeen = now

	if e.lim.AllowN(now, 1) {
		return true, 0
	}

	if l.rejection != nil {
		l.rejection.Inc()
	}
	// The reservation only measures the wait; cancel it so no token is held.
	r := e.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// ClientCount returns the number of tracked keys.
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Cleanup drops keys idle for longer than maxAge.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-maxAge)
	for key, e := range l.clients {
		if e.lastSeen.Before(threshold) {
			delete(l.clients, key)
		}
	}
	l.setGauge()
}

// setGauge must be called with mu held.
func (l *Limiter) setGauge() {
	if l.gauge != nil {
		l.gauge.Set(float64(len(l.clients)))
	}
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Cleanup(l.maxAge)
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit. It is safe to
// call more than once.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}
