// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// PeriodLayout is the day-granularity layout of PostingToken.Period.
const PeriodLayout = "20060102"

// Content size limits, in characters.
const (
	MaxBodyLen   = 500
	MaxTitleLen  = 120
	MaxReasonLen = 200
)

// DefaultFlagReason is recorded when a flag carries no reason.
const DefaultFlagReason = "community"

// PeriodOf returns the UTC calendar day of t in YYYYMMDD form.
func PeriodOf(t time.Time) string { return t.UTC().Format(PeriodLayout) }

// PostingToken is a day-scoped secret issued once per calendar day per account.
// The secret is never stored; content carries only its hash.
type PostingToken struct {
	Secret    string    `json:"secret"`
	Period    string    `json:"period"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UsableAt reports whether the token may be used at now: same period, not expired.
func (t PostingToken) UsableAt(now time.Time) bool {
	return t.Secret != "" && t.Period == PeriodOf(now) && now.Before(t.ExpiresAt)
}

// TokenHash is the lowercase hex SHA-256 of a posting token secret.
// It is the only authorship marker ever attached to content.
type TokenHash string

func (h TokenHash) String() string { return string(h) }

// SubjectType names the kind of content a vote, flag or delete targets.
type SubjectType string

const (
	SubjectPost    SubjectType = "post"
	SubjectComment SubjectType = "comment"
)

// ParseSubjectType validates a wire subject type.
func ParseSubjectType(s string) (SubjectType, error) {
	switch SubjectType(s) {
	case SubjectPost, SubjectComment:
		return SubjectType(s), nil
	default:
		return "", fmt.Errorf("unknown subject type %q", s)
	}
}

// Subject addresses a single post or comment.
type Subject struct {
	Type SubjectType
	ID   uuid.UUID
}

func (s Subject) String() string { return string(s.Type) + "/" + s.ID.String() }

// Post is a top-level confession.
type Post struct {
	ID        uuid.UUID
	Title     string // optional
	Body      string
	TokenHash TokenHash // immutable once set
	Score     int64     // running sum of applied votes
	CreatedAt time.Time
}

// Comment is a reply to a Post. It survives deletion of its post.
type Comment struct {
	ID        uuid.UUID
	PostID    uuid.UUID
	Body      string
	TokenHash TokenHash
	Score     int64
	CreatedAt time.Time
}

// Vote is one append-only ±1 entry in the vote log.
type Vote struct {
	ID        uuid.UUID
	Subject   Subject
	TokenHash TokenHash
	Value     int // +1 or -1
	CreatedAt time.Time
}

// Flag is one append-only moderation report.
type Flag struct {
	ID        uuid.UUID
	Subject   Subject
	TokenHash TokenHash
	Reason    string
	CreatedAt time.Time
}

// FeedSort selects feed ordering.
type FeedSort string

const (
	SortNew FeedSort = "new"
	SortHot FeedSort = "hot"
)

// PostSummary is a post as listed in a feed, with read-time derived fields.
type PostSummary struct {
	Post
	Comments int64  // comment count
	Alias    string // thread-scoped alias of the author
	Mine     bool   // viewer hash equals author hash
	Hot      float64
}

// CommentView is a comment with its thread-scoped alias.
type CommentView struct {
	Comment
	Alias string
	Mine  bool
}

// Thread is a post with its comments, oldest first.
type Thread struct {
	Post     PostSummary
	Comments []CommentView
}

// FlagReport aggregates flags for a single subject for moderator review.
type FlagReport struct {
	Subject   Subject
	Count     int
	Reporters int // distinct token hashes
	Reasons   map[string]int
	LatestAt  time.Time
	Exists    bool
	Excerpt   string // first characters of the flagged body, when it still exists
}

// DeleteResult is the typed response of the privileged deletion endpoint.
type DeleteResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Moderator represents a moderator account. Moderators are a distinct authority
// from posting tokens; nothing links a moderator to content they authored.
type Moderator struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	PwdHash   string    // encoded Argon2id hash
	CreatedAt time.Time
}

// ModeratorToken is an issued moderator credential.
type ModeratorToken struct {
	AccessToken string
	ExpiresAt   time.Time
}
