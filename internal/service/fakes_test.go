package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/limiter"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/repository"
)

type fakeContent struct {
	mu       sync.Mutex
	posts    map[uuid.UUID]*model.Post
	comments map[uuid.UUID]*model.Comment
	votes    []model.Vote
	flags    []model.Flag

	err error // returned by every call when set

	deleteOwnedCalls int
	deleteCalls      int
}

var _ repository.ContentRepository = (*fakeContent)(nil)

func newFakeContent() *fakeContent {
	return &fakeContent{posts: map[uuid.UUID]*model.Post{}, comments: map[uuid.UUID]*model.Comment{}}
}

func (f *fakeContent) CreatePost(_ context.Context, p *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *p
	f.posts[p.ID] = &cp
	return nil
}

func (f *fakeContent) CreateComment(_ context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.posts[c.PostID]; !ok {
		return errs.ErrNotFound
	}
	cp := *c
	f.comments[c.ID] = &cp
	return nil
}

func (f *fakeContent) countComments(postID uuid.UUID) int64 {
	var n int64
	for _, c := range f.comments {
		if c.PostID == postID {
			n++
		}
	}
	return n
}

func (f *fakeContent) GetPost(_ context.Context, id uuid.UUID) (*model.PostSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.posts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &model.PostSummary{Post: *p, Comments: f.countComments(id)}, nil
}

func (f *fakeContent) GetComment(_ context.Context, id uuid.UUID) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.comments[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContent) ListPosts(_ context.Context, limit int, since time.Time) ([]model.PostSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.PostSummary
	for _, p := range f.posts {
		if p.CreatedAt.Before(since) {
			continue
		}
		out = append(out, model.PostSummary{Post: *p, Comments: f.countComments(p.ID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeContent) ListComments(_ context.Context, postID uuid.UUID) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Comment
	for _, c := range f.comments {
		if c.PostID == postID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeContent) owner(s model.Subject) (model.TokenHash, bool) {
	switch s.Type {
	case model.SubjectPost:
		if p, ok := f.posts[s.ID]; ok {
			return p.TokenHash, true
		}
	case model.SubjectComment:
		if c, ok := f.comments[s.ID]; ok {
			return c.TokenHash, true
		}
	}
	return "", false
}

func (f *fakeContent) OwnerHash(_ context.Context, s model.Subject) (model.TokenHash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	h, ok := f.owner(s)
	if !ok {
		return "", errs.ErrNotFound
	}
	return h, nil
}

func (f *fakeContent) AppendVote(_ context.Context, v *model.Vote) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.votes = append(f.votes, *v)
	switch v.Subject.Type {
	case model.SubjectPost:
		p, ok := f.posts[v.Subject.ID]
		if !ok {
			return 0, errs.ErrNotFound
		}
		p.Score += int64(v.Value)
		return p.Score, nil
	default:
		c, ok := f.comments[v.Subject.ID]
		if !ok {
			return 0, errs.ErrNotFound
		}
		c.Score += int64(v.Value)
		return c.Score, nil
	}
}

func (f *fakeContent) AppendFlag(_ context.Context, fl *model.Flag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.owner(fl.Subject); !ok {
		return errs.ErrNotFound
	}
	f.flags = append(f.flags, *fl)
	return nil
}

func (f *fakeContent) ListFlags(_ context.Context, limit int) ([]model.Flag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Flag, len(f.flags))
	for i, fl := range f.flags {
		out[len(f.flags)-1-i] = fl
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeContent) remove(s model.Subject) bool {
	switch s.Type {
	case model.SubjectPost:
		if _, ok := f.posts[s.ID]; ok {
			delete(f.posts, s.ID)
			return true
		}
	case model.SubjectComment:
		if _, ok := f.comments[s.ID]; ok {
			delete(f.comments, s.ID)
			return true
		}
	}
	return false
}

func (f *fakeContent) DeleteOwned(_ context.Context, s model.Subject, owner model.TokenHash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteOwnedCalls++
	if f.err != nil {
		return false, f.err
	}
	if h, ok := f.owner(s); !ok || h != owner {
		return false, nil
	}
	return f.remove(s), nil
}

func (f *fakeContent) Delete(_ context.Context, s model.Subject) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.err != nil {
		return false, f.err
	}
	return f.remove(s), nil
}

type fakeMods struct {
	mu     sync.Mutex
	byName map[string]*model.Moderator

	createErr error
	getErr    error
}

var _ repository.ModeratorRepository = (*fakeMods)(nil)

func (f *fakeMods) Create(_ context.Context, m *model.Moderator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.Moderator{}
	}
	if _, exists := f.byName[m.Username]; exists {
		return errs.ErrAlreadyExists
	}
	cp := *m
	f.byName[m.Username] = &cp
	return nil
}

func (f *fakeMods) GetByID(_ context.Context, id uuid.UUID) (*model.Moderator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, m := range f.byName {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeMods) GetByUsername(_ context.Context, username string) (*model.Moderator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	m, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type denyThrottle struct{}

func (denyThrottle) Allow(model.TokenHash) bool { return false }
