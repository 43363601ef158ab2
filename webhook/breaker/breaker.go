package breaker

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while a destination is blocked
var ErrOpen = errors.New("circuit open")

/* State represents the circuit state of one destination
 * Follows the lifecycle: Closed -> Open -> HalfOpen -> Closed/Open
 */
type State int

const (
	Closed State = iota + 1
	Open
	HalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds
type Config struct {
	// Threshold is the number of failures within Window that opens the circuit
	Threshold int
	Window    time.Duration
	// Cooldown is the first open period, multiplied on every re-open up to MaxCooldown
	Cooldown    time.Duration
	MaxCooldown time.Duration
	Multiplier  float64
	Now         func() time.Time
}

// DefaultConfig returns the default thresholds
func DefaultConfig() Config {
	return Config{
		Threshold:   5,
		Window:      time.Minute,
		Cooldown:    30 * time.Second,
		MaxCooldown: 5 * time.Minute,
		Multiplier:  2,
		Now:         time.Now,
	}
}

// Stats is the observable state of one destination
type Stats struct {
	Key         string
	State       State
	Failures    int
	Opens       int
	OpenedAt    time.Time
	NextRetryAt time.Time
}

type circuit struct {
	state        State
	failures     []time.Time
	opens        int
	openedAt     time.Time
	cooldown     time.Duration
	probing      bool
	probeStarted time.Time
}

/* Breaker tracks one circuit per destination key
 * Safe for concurrent use
 */
type Breaker struct {
	cfg      Config
	mu       sync.Mutex
	circuits map[string]*circuit
}

// New creates a breaker, zero config fields take their defaults
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = max(def.MaxCooldown, cfg.Cooldown)
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
	}
}

/* Allow must be called before each attempt to key
 * It returns ErrOpen while the circuit is open, and while a half-open probe is in flight
 * Once the cool-down has elapsed the first caller becomes the probe
 */
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(key)
	now := b.cfg.Now()

	switch c.state {
	case Open:
		if now.Before(c.openedAt.Add(c.cooldown)) {
			return ErrOpen
		}
		c.state = HalfOpen
		c.probing = true
		c.probeStarted = now
		return nil
	case HalfOpen:
		// A probe that never reported back is abandoned after one cool-down
		if c.probing && now.Before(c.probeStarted.Add(c.cooldown)) {
			return ErrOpen
		}
		c.probing = true
		c.probeStarted = now
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the circuit and resets the failure counter
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(key)
	c.state = Closed
	c.failures = c.failures[:0]
	c.opens = 0
	c.cooldown = 0
	c.probing = false
	c.openedAt = time.Time{}
}

// RecordFailure counts a failed attempt and opens the circuit when due
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(key)
	now := b.cfg.Now()

	switch c.state {
	case HalfOpen:
		b.open(c, now)
	case Open:
		// Attempts are not issued while open, nothing to count
	default:
		c.failures = append(b.prune(c.failures, now), now)
		if len(c.failures) >= b.cfg.Threshold {
			b.open(c, now)
		}
	}
}

// Stats returns the state of key, an unknown key reports a closed circuit
func (b *Breaker) Stats(key string) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return Stats{Key: key, State: Closed}
	}
	return b.stats(key, c)
}

// AllStats returns the state of every known destination sorted by key
func (b *Breaker) AllStats() []Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := make([]Stats, 0, len(b.circuits))
	for key, c := range b.circuits {
		all = append(all, b.stats(key, c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })
	return all
}

func (b *Breaker) stats(key string, c *circuit) Stats {
	now := b.cfg.Now()
	c.failures = b.prune(c.failures, now)

	s := Stats{
		Key:      key,
		State:    c.state,
		Failures: len(c.failures),
		Opens:    c.opens,
		OpenedAt: c.openedAt,
	}
	if c.state == Open {
		s.NextRetryAt = c.openedAt.Add(c.cooldown)
	}
	return s
}

func (b *Breaker) get(key string) *circuit {
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{state: Closed}
		b.circuits[key] = c
	}
	return c
}

func (b *Breaker) open(c *circuit, now time.Time) {
	c.opens++
	c.state = Open
	c.openedAt = now
	c.probing = false
	c.cooldown = b.cooldown(c.opens)
}

func (b *Breaker) cooldown(opens int) time.Duration {
	d := float64(b.cfg.Cooldown) * math.Pow(b.cfg.Multiplier, float64(opens-1))
	if d > float64(b.cfg.MaxCooldown) {
		return b.cfg.MaxCooldown
	}
	return time.Duration(d)
}

// prune drops failures that fell out of the rolling window
func (b *Breaker) prune(failures []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(failures) && !failures[i].After(cutoff) {
		i++
	}
	return append(failures[:0], failures[i:]...)
}
