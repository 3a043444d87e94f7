// Package tokencache keeps the current day's posting token in a single slot
// and coalesces concurrent refreshes into one issuance request.
package tokencache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// Issuer obtains a fresh posting token from the issuance endpoint.
type Issuer interface {
	Issue(ctx context.Context) (model.PostingToken, error)
}

// IssuerFunc adapts a function to Issuer.
type IssuerFunc func(ctx context.Context) (model.PostingToken, error)

// Issue calls f.
func (f IssuerFunc) Issue(ctx context.Context) (model.PostingToken, error) { return f(ctx) }

// Store persists the cache slot between processes. Optional.
type Store interface {
	// Load returns the stored token; ok is false when nothing is stored.
	Load() (tok model.PostingToken, ok bool, err error)
	// Save replaces the stored token.
	Save(tok model.PostingToken) error
	// Clear removes the stored token.
	Clear() error
}

const flightKey = "current"

// DefaultIssueTimeout bounds a single issuance request shared by coalesced callers.
const DefaultIssueTimeout = 15 * time.Second

// Cache is a single-slot posting token cache. Safe for concurrent use.
type Cache struct {
	issuer       Issuer
	store        Store
	now          func() time.Time
	log          *zap.Logger
	issueTimeout time.Duration

	mu     sync.Mutex
	tok    model.PostingToken
	has    bool
	loaded bool

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithStore persists the slot through s.
func WithStore(s Store) Option { return func(c *Cache) { c.store = s } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Cache) { c.log = l } }

// WithIssueTimeout bounds the shared issuance request.
func WithIssueTimeout(d time.Duration) Option { return func(c *Cache) { c.issueTimeout = d } }

// New constructs a Cache around issuer.
func New(issuer Issuer, opts ...Option) *Cache {
	c := &Cache{
		issuer:       issuer,
		now:          time.Now,
		log:          zap.NewNop(),
		issueTimeout: DefaultIssueTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Get returns today's usable token, issuing a new one when the slot is empty,
// from an earlier period, or expired. Callers arriving while an issuance is in
// flight share its result. Failures are not cached.
func (c *Cache) Get(ctx context.Context) (model.PostingToken, error) {
	if err := ctx.Err(); err != nil {
		return model.PostingToken{}, fmt.Errorf("token: %w", errs.FromContext(err))
	}
	if tok, ok := c.current(); ok {
		return tok, nil
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		// A flight that finished between our check and DoChan already filled the slot.
		if tok, ok := c.current(); ok {
			return tok, nil
		}
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.issueTimeout)
		defer cancel()

		tok, err := c.issuer.Issue(ictx)
		if err != nil {
			return nil, errs.FromContext(err)
		}
		if !tok.UsableAt(c.now()) {
			return nil, fmt.Errorf("issued token for period %q not usable now: %w", tok.Period, errs.ErrIssuanceFailed)
		}
		c.set(tok)
		c.log.Info("posting token issued", zap.String("period", tok.Period), zap.Time("expires_at", tok.ExpiresAt))
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return model.PostingToken{}, fmt.Errorf("token: %w", errs.FromContext(ctx.Err()))
	case res := <-ch:
		if res.Err != nil {
			c.log.Warn("posting token issuance failed", zap.Error(res.Err), zap.Bool("shared", res.Shared))
			return model.PostingToken{}, fmt.Errorf("token: %w", res.Err)
		}
		return res.Val.(model.PostingToken), nil
	}
}

// Invalidate empties the slot; the next Get issues a new token.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tok, c.has, c.loaded = model.PostingToken{}, false, true
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			c.log.Warn("clear token store", zap.Error(err))
		}
	}
}

// current returns the slot when it is usable now. The store is read once, lazily.
func (c *Cache) current() (model.PostingToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.loaded = true
		if c.store != nil {
			tok, ok, err := c.store.Load()
			switch {
			case err != nil:
				c.log.Warn("load token store", zap.Error(err))
			case ok:
				c.tok, c.has = tok, true
			}
		}
	}
	if c.has && c.tok.UsableAt(c.now()) {
		return c.tok, true
	}
	return model.PostingToken{}, false
}

func (c *Cache) set(tok model.PostingToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tok, c.has, c.loaded = tok, true, true
	if c.store != nil {
		if err := c.store.Save(tok); err != nil {
			c.log.Warn("save token store", zap.Error(err))
		}
	}
}
