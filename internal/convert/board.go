// Package convert maps domain types to and from campusboard.v1 wire messages.
// Token hashes never cross this boundary.
package convert

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/timestamppb"

	v1 "github.com/and161185/campus-board/internal/api/boardv1"
	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// --- helpers ---

func ts(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}

// FromTS converts a wire timestamp; nil yields the zero time.
func FromTS(t *timestamppb.Timestamp) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.AsTime().UTC()
}

// ParseID parses a wire UUID, reporting ErrInvalidInput on failure.
func ParseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("validation: bad %s %q: %w", field, s, errs.ErrInvalidInput)
	}
	return id, nil
}

// --- Subject (client -> server) ---

// FromSubject converts a wire subject to the domain form.
func FromSubject(in *v1.Subject) (model.Subject, error) {
	if in == nil {
		return model.Subject{}, fmt.Errorf("validation: missing subject: %w", errs.ErrInvalidInput)
	}
	typ, err := model.ParseSubjectType(in.Type)
	if err != nil {
		return model.Subject{}, fmt.Errorf("validation: %v: %w", err, errs.ErrInvalidInput)
	}
	id, err := ParseID("subject id", in.Id)
	if err != nil {
		return model.Subject{}, err
	}
	return model.Subject{Type: typ, ID: id}, nil
}

// ToSubject converts a domain subject to the wire form.
func ToSubject(s model.Subject) *v1.Subject {
	return &v1.Subject{Type: string(s.Type), Id: s.ID.String()}
}

// FromSort parses a feed sort; empty means newest first.
func FromSort(s string) (model.FeedSort, error) {
	switch model.FeedSort(s) {
	case "", model.SortNew:
		return model.SortNew, nil
	case model.SortHot:
		return model.SortHot, nil
	default:
		return "", fmt.Errorf("validation: unknown sort %q: %w", s, errs.ErrInvalidInput)
	}
}

// --- Posts / comments (server -> client) ---

// ToPost converts a decorated post summary.
func ToPost(p model.PostSummary) *v1.Post {
	return &v1.Post{
		Id:        p.ID.String(),
		Title:     p.Title,
		Body:      p.Body,
		Alias:     p.Alias,
		Score:     p.Score,
		Comments:  p.Comments,
		Mine:      p.Mine,
		Hot:       p.Hot,
		CreatedAt: ts(p.CreatedAt),
	}
}

// ToPosts converts a feed.
func ToPosts(ps []model.PostSummary) []*v1.Post {
	out := make([]*v1.Post, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToPost(p))
	}
	return out
}

// ToComment converts a decorated comment.
func ToComment(c model.CommentView) *v1.Comment {
	return &v1.Comment{
		Id:        c.ID.String(),
		PostId:    c.PostID.String(),
		Body:      c.Body,
		Alias:     c.Alias,
		Score:     c.Score,
		Mine:      c.Mine,
		CreatedAt: ts(c.CreatedAt),
	}
}

// ToComments converts a thread's comments.
func ToComments(cs []model.CommentView) []*v1.Comment {
	out := make([]*v1.Comment, 0, len(cs))
	for _, c := range cs {
		out = append(out, ToComment(c))
	}
	return out
}

// ToThread converts a full thread.
func ToThread(t model.Thread) *v1.GetThreadResponse {
	return &v1.GetThreadResponse{Post: ToPost(t.Post), Comments: ToComments(t.Comments)}
}

// --- client side (wire -> display) ---

// FromPost converts a wire post back to a summary. The token hash stays empty.
func FromPost(p *v1.Post) (model.PostSummary, error) {
	if p == nil {
		return model.PostSummary{}, fmt.Errorf("nil post")
	}
	id, err := ParseID("post id", p.Id)
	if err != nil {
		return model.PostSummary{}, err
	}
	return model.PostSummary{
		Post: model.Post{
			ID:        id,
			Title:     p.Title,
			Body:      p.Body,
			Score:     p.Score,
			CreatedAt: FromTS(p.CreatedAt),
		},
		Comments: p.Comments,
		Alias:    p.Alias,
		Mine:     p.Mine,
		Hot:      p.Hot,
	}, nil
}

// FromComment converts a wire comment back to a view.
func FromComment(c *v1.Comment) (model.CommentView, error) {
	if c == nil {
		return model.CommentView{}, fmt.Errorf("nil comment")
	}
	id, err := ParseID("comment id", c.Id)
	if err != nil {
		return model.CommentView{}, err
	}
	postID, err := ParseID("post id", c.PostId)
	if err != nil {
		return model.CommentView{}, err
	}
	return model.CommentView{
		Comment: model.Comment{
			ID:        id,
			PostID:    postID,
			Body:      c.Body,
			Score:     c.Score,
			CreatedAt: FromTS(c.CreatedAt),
		},
		Alias: c.Alias,
		Mine:  c.Mine,
	}, nil
}
