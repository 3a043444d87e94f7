package limiter

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/and161185/campus-board/internal/model"
)

// Default write throttle: one post or comment every 3 seconds, burst 3.
const (
	DefaultPostRate  = rate.Limit(1.0 / 3.0)
	DefaultPostBurst = 3
	defaultIdleAfter = 30 * time.Minute
)

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// PostThrottle rate-limits writes per posting token hash.
// Keys are token hashes, so nothing ties the bucket to an account.
type PostThrottle struct {
	mu        sync.Mutex
	visitors  map[model.TokenHash]*visitor
	rps       rate.Limit
	burst     int
	idleAfter time.Duration
	now       func() time.Time
	log       *zap.Logger
	cron      *cron.Cron
}

// NewPostThrottle constructs a throttle. Non-positive values fall back to defaults.
func NewPostThrottle(rps float64, burst int, log *zap.Logger) *PostThrottle {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = DefaultPostRate
	}
	if burst <= 0 {
		burst = DefaultPostBurst
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PostThrottle{
		visitors:  make(map[model.TokenHash]*visitor),
		rps:       r,
		burst:     burst,
		idleAfter: defaultIdleAfter,
		now:       time.Now,
		log:       log,
	}
}

// WithClock overrides the throttle clock (tests).
func (t *PostThrottle) WithClock(now func() time.Time) *PostThrottle {
	t.now = now
	return t
}

// Allow reports whether h may write now, consuming one token if so.
func (t *PostThrottle) Allow(h model.TokenHash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	v, ok := t.visitors[h]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(t.rps, t.burst)}
		t.visitors[h] = v
	}
	v.lastSeen = now
	return v.lim.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the idle period and returns how many.
func (t *PostThrottle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for h, v := range t.visitors {
		if now.Sub(v.lastSeen) > t.idleAfter {
			delete(t.visitors, h)
			n++
		}
	}
	return n
}

// Len returns the number of tracked buckets.
func (t *PostThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visitors)
}

// Start schedules periodic sweeps on spec (cron syntax, e.g. "@every 10m").
// Extra sweepers (such as a Memory login limiter) run on the same schedule.
func (t *PostThrottle) Start(spec string, extra ...interface{ Sweep() int }) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n := t.Sweep()
		for _, s := range extra {
			n += s.Sweep()
		}
		if n > 0 {
			t.log.Debug("limiter sweep", zap.Int("dropped", n))
		}
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.cron = c
	t.mu.Unlock()
	c.Start()
	return nil
}

// Stop halts the sweep schedule, waiting for a running sweep to finish.
func (t *PostThrottle) Stop() {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
