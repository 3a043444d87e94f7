package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/campus-board/internal/crypto"
	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/limiter"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/repository"
)

const (
	roleModerator   = "moderator"
	jwtLeeway       = 30 * time.Second
	excerptLen      = 80
	DefaultFlagScan = 1000
)

// ModerationService is the privileged authority, separate from posting tokens.
type ModerationService interface {
	// Register creates a moderator account.
	Register(ctx context.Context, username, password string) (uuid.UUID, error)
	// LoginWithIP applies rate limiting and issues a moderator token.
	LoginWithIP(ctx context.Context, username, password, ip string) (model.ModeratorToken, error)
	// Authorize verifies a moderator token and returns the moderator.
	Authorize(ctx context.Context, token string) (*model.Moderator, error)
	// Delete removes any subject. Already gone is success.
	Delete(ctx context.Context, mod *model.Moderator, s model.Subject) error
	// FlagReport aggregates recent flags per subject, most flagged first.
	FlagReport(ctx context.Context, limit int) ([]model.FlagReport, error)
}

type ModerationServiceImpl struct {
	mods      repository.ModeratorRepository
	content   repository.ContentRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	log       *zap.Logger
	now       func() time.Time
}

// NewModerationService constructs ModerationService with required dependencies.
func NewModerationService(mods repository.ModeratorRepository, content repository.ContentRepository,
	signKey []byte, accessTTL time.Duration, lim limiter.Limiter, log *zap.Logger) *ModerationServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModerationServiceImpl{
		mods: mods, content: content, signKey: signKey, accessTTL: accessTTL,
		lim: lim, log: log, now: time.Now,
	}
}

// WithClock overrides the service clock (tests).
func (s *ModerationServiceImpl) WithClock(now func() time.Time) *ModerationServiceImpl {
	s.now = now
	return s
}

type moderatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Register creates a moderator with an Argon2id password hash.
func (s *ModerationServiceImpl) Register(ctx context.Context, username, password string) (uuid.UUID, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return uuid.Nil, fmt.Errorf("validation: empty username/password: %w", errs.ErrInvalidInput)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	pwdHash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}
	m := &model.Moderator{ID: id, Username: username, PwdHash: pwdHash, CreatedAt: s.now().UTC()}
	if err := s.mods.Create(ctx, m); err != nil {
		return uuid.Nil, fmt.Errorf("register moderator: %w", errs.FromContext(err))
	}
	s.log.Info("moderator registered", zap.String("username", username))
	return id, nil
}

// Bootstrap registers username unless it already exists.
func (s *ModerationServiceImpl) Bootstrap(ctx context.Context, username, password string) error {
	_, err := s.Register(ctx, username, password)
	if errors.Is(err, errs.ErrAlreadyExists) {
		return nil
	}
	return err
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *ModerationServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.ModeratorToken, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.ModeratorToken{}, err
	}
	if !allowed {
		return model.ModeratorToken{}, errs.ErrRateLimited
	}

	m, err := s.mods.GetByUsername(ctx, username)
	ok := false
	if err == nil {
		ok, err = pkgcrypto.VerifyPassword(password, m.PwdHash)
		if err != nil {
			s.log.Error("stored moderator hash unreadable", zap.String("username", username), zap.Error(err))
		}
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return model.ModeratorToken{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.ModeratorToken{}, errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, username, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}
	return s.issueAccessToken(m.ID)
}

// issueAccessToken creates a signed HS256 JWT carrying the moderator role.
func (s *ModerationServiceImpl) issueAccessToken(id uuid.UUID) (model.ModeratorToken, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := moderatorClaims{
		Role: roleModerator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.ModeratorToken{}, err
	}
	return model.ModeratorToken{AccessToken: signed, ExpiresAt: exp}, nil
}

// Authorize parses and validates a moderator JWT, then confirms the account still exists.
func (s *ModerationServiceImpl) Authorize(ctx context.Context, token string) (*model.Moderator, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, errs.ErrUnauthorized
	}
	var claims moderatorClaims
	tok, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return s.signKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(jwtLeeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid || claims.Role != roleModerator {
		return nil, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return nil, errs.ErrUnauthorized
	}
	m, err := s.mods.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", errs.FromContext(err))
	}
	return m, nil
}

// Delete hard-deletes any post or comment on behalf of a moderator.
func (s *ModerationServiceImpl) Delete(ctx context.Context, mod *model.Moderator, sub model.Subject) error {
	if mod == nil {
		return errs.ErrUnauthorized
	}
	if err := validSubject(sub); err != nil {
		return err
	}
	deleted, err := s.content.Delete(ctx, sub)
	if err != nil && !errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrStorageConflict) {
		return fmt.Errorf("moderator delete %s: %w", sub, errs.FromContext(err))
	}
	s.log.Info("content deleted by moderator",
		zap.Stringer("subject", sub), zap.String("moderator", mod.Username), zap.Bool("existed", deleted))
	return nil
}

// FlagReport groups up to DefaultFlagScan recent flags by subject.
func (s *ModerationServiceImpl) FlagReport(ctx context.Context, limit int) ([]model.FlagReport, error) {
	flags, err := s.content.ListFlags(ctx, DefaultFlagScan)
	if err != nil {
		return nil, fmt.Errorf("flag report: %w", errs.FromContext(err))
	}

	bySubject := map[model.Subject]*model.FlagReport{}
	reporters := map[model.Subject]map[model.TokenHash]struct{}{}
	var order []model.Subject
	for _, f := range flags {
		r, ok := bySubject[f.Subject]
		if !ok {
			r = &model.FlagReport{Subject: f.Subject, Reasons: map[string]int{}}
			bySubject[f.Subject] = r
			reporters[f.Subject] = map[model.TokenHash]struct{}{}
			order = append(order, f.Subject)
		}
		r.Count++
		r.Reasons[f.Reason]++
		reporters[f.Subject][f.TokenHash] = struct{}{}
		if f.CreatedAt.After(r.LatestAt) {
			r.LatestAt = f.CreatedAt
		}
	}

	out := make([]model.FlagReport, 0, len(order))
	for _, sub := range order {
		r := bySubject[sub]
		r.Reporters = len(reporters[sub])
		body, err := s.body(ctx, sub)
		switch {
		case err == nil:
			r.Exists = true
			r.Excerpt = excerpt(body)
		case errors.Is(err, errs.ErrNotFound):
		default:
			return nil, fmt.Errorf("flag report %s: %w", sub, errs.FromContext(err))
		}
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Reporters != out[j].Reporters {
			return out[i].Reporters > out[j].Reporters
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].LatestAt.After(out[j].LatestAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ModerationServiceImpl) body(ctx context.Context, sub model.Subject) (string, error) {
	switch sub.Type {
	case model.SubjectPost:
		p, err := s.content.GetPost(ctx, sub.ID)
		if err != nil {
			return "", err
		}
		return p.Body, nil
	default:
		c, err := s.content.GetComment(ctx, sub.ID)
		if err != nil {
			return "", err
		}
		return c.Body, nil
	}
}

func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= excerptLen {
		return s
	}
	r := []rune(s)
	return string(r[:excerptLen]) + "…"
}
