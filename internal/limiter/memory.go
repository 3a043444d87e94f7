package limiter

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is an in-process Limiter with the same window/lockout semantics as PG.
// Used with the SQLite backend and in tests.
type Memory struct {
	mu       sync.Mutex
	m        map[string]*memEntry
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// NewMemory constructs an in-memory limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		m:        make(map[string]*memEntry),
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

// WithClock overrides the limiter clock (tests).
func (l *Memory) WithClock(now func() time.Time) *Memory {
	l.now = now
	return l
}

func memKey(username string, ipHash []byte) string {
	return username + "\x00" + string(ipHash)
}

func (l *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.m[memKey(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

func (l *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, memKey(username, ipHash))
	return nil
}

func (l *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := memKey(username, ipHash)
	e, ok := l.m[k]
	if !ok || now.Sub(e.updatedAt) > l.window {
		e = &memEntry{}
		l.m[k] = e
	}
	e.fails++
	e.updatedAt = now
	if e.fails >= l.maxFails {
		e.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}

// Sweep drops entries that are neither blocked nor inside the failure window.
func (l *Memory) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, e := range l.m {
		if !e.blockedUntil.After(now) && now.Sub(e.updatedAt) > l.window {
			delete(l.m, k)
			n++
		}
	}
	return n
}
