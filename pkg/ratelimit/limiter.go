package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config is one limiter's window/max pair
type Config struct {
	// Name identifies the limiter in metrics, logs and errors
	Name string `yaml:"-"`
	// Window is the trailing duration requests are counted over
	Window time.Duration `yaml:"window"`
	// Max is the number of requests accepted within any Window
	Max int `yaml:"max"`
}

// Validate checks that the config describes a usable window
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("limiter %q: window must be positive", c.Name)
	}
	if c.Max < 1 {
		return fmt.Errorf("limiter %q: max must be at least 1", c.Name)
	}
	return nil
}

// Result is the outcome of a single check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAfter is how long until the oldest request in the window expires,
	// freeing one slot
	ResetAfter time.Duration
}

// Checker is implemented by both the in-process and the Redis limiter so
// HTTP middleware can use either.
type Checker interface {
	Allow(ctx context.Context, identifier string) (Result, error)
	// Peek reports the window for identifier without recording a request
	Peek(ctx context.Context, identifier string) (Result, error)
	Config() Config
}

// Clock returns the current time
type Clock func() time.Time

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		l.now = clock
	}
}

// Limiter is an in-process sliding-window rate limiter. Each identifier keeps
// the timestamps of its accepted requests; a request is rejected on read when
// the trailing window already holds Max of them.
//
// The map is only ever mutated through Check and Sweep. Instances do
// not share state, so every use case gets its own Limiter.
type Limiter struct {
	config  Config
	now     Clock
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewLimiter creates a limiter. It panics on an invalid config, which is a
// programming error.
func NewLimiter(config Config, opts ...Option) *Limiter {
	if err := config.Validate(); err != nil {
		panic(err)
	}

	l := &Limiter{
		config:  config,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the limiter's window/max pair
func (l *Limiter) Config() Config {
	return l.config
}

// Check records a request for identifier if the window has room. It never
// blocks on I/O and never fails.
func (l *Limiter) Check(identifier string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	window := prune(l.windows[identifier], now.Add(-l.config.Window))

	if len(window) >= l.config.Max {
		l.windows[identifier] = window
		return Result{
			Allowed:    false,
			Limit:      l.config.Max,
			Remaining:  0,
			ResetAfter: window[0].Add(l.config.Window).Sub(now),
		}
	}

	window = append(window, now)
	l.windows[identifier] = window

	return Result{
		Allowed:    true,
		Limit:      l.config.Max,
		Remaining:  l.config.Max - len(window),
		ResetAfter: window[0].Add(l.config.Window).Sub(now),
	}
}

// Allow adapts Check to the Checker interface
func (l *Limiter) Allow(_ context.Context, identifier string) (Result, error) {
	return l.Check(identifier), nil
}

// Peek implements Checker. An identifier that was never seen is not
// tracked by looking at it.
func (l *Limiter) Peek(_ context.Context, identifier string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	window := prune(l.windows[identifier], now.Add(-l.config.Window))
	res := Result{
		Allowed:   len(window) < l.config.Max,
		Limit:     l.config.Max,
		Remaining: max(l.config.Max-len(window), 0),
	}
	if len(window) > 0 {
		res.ResetAfter = window[0].Add(l.config.Window).Sub(now)
	}
	return res, nil
}

// Sweep prunes every window and evicts identifiers with nothing left.
// It returns the number of evicted identifiers.
func (l *Limiter) Sweep() int {
	now := l.now()
	cutoff := now.Add(-l.config.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, window := range l.windows {
		window = prune(window, cutoff)
		if len(window) == 0 {
			delete(l.windows, id)
			evicted++
			continue
		}
		l.windows[id] = window
	}
	return evicted
}

// Len returns the number of identifiers currently tracked
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order so the expired ones are always a prefix.
func prune(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	if i == len(window) {
		return nil
	}
	// copy so the backing array of expired entries can be collected
	return append([]time.Time(nil), window[i:]...)
}
