package boardv1

import "google.golang.org/protobuf/types/known/timestamppb"

// Subject addresses a post or comment. Type is "post" or "comment".
type Subject struct {
	Type string `json:"type"`
	Id   string `json:"id"`
}

// Post is a feed entry. The author's token hash is never sent; Alias and Mine are derived from it.
type Post struct {
	Id        string                 `json:"id"`
	Title     string                 `json:"title,omitempty"`
	Body      string                 `json:"body"`
	Alias     string                 `json:"alias"`
	Score     int64                  `json:"score"`
	Comments  int64                  `json:"comments"`
	Mine      bool                   `json:"mine,omitempty"`
	Hot       float64                `json:"hot,omitempty"`
	CreatedAt *timestamppb.Timestamp `json:"createdAt"`
}

// Comment is a reply within a thread.
type Comment struct {
	Id        string                 `json:"id"`
	PostId    string                 `json:"postId"`
	Body      string                 `json:"body"`
	Alias     string                 `json:"alias"`
	Score     int64                  `json:"score"`
	Mine      bool                   `json:"mine,omitempty"`
	CreatedAt *timestamppb.Timestamp `json:"createdAt"`
}

type CreatePostRequest struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

type CreatePostResponse struct {
	Post *Post `json:"post"`
}

type CreateCommentRequest struct {
	PostId string `json:"postId"`
	Body   string `json:"body"`
}

type CreateCommentResponse struct {
	Comment *Comment `json:"comment"`
}

type VoteRequest struct {
	Subject *Subject `json:"subject"`
	Value   int32    `json:"value"`
}

type VoteResponse struct {
	Score int64 `json:"score"`
}

type FlagRequest struct {
	Subject *Subject `json:"subject"`
	Reason  string   `json:"reason,omitempty"`
}

type FlagResponse struct{}

type DeleteRequest struct {
	Subject *Subject `json:"subject"`
}

type DeleteResponse struct {
	Ok bool `json:"ok"`
}

type ListPostsRequest struct {
	Sort  string `json:"sort,omitempty"` // "new" (default) or "hot"
	Limit int32  `json:"limit,omitempty"`
}

type ListPostsResponse struct {
	Posts []*Post `json:"posts"`
}

type GetThreadRequest struct {
	PostId string `json:"postId"`
}

// GetThreadResponse carries a nil Post when the post was deleted but comments survive.
type GetThreadResponse struct {
	Post     *Post      `json:"post,omitempty"`
	Comments []*Comment `json:"comments"`
}

func (r *VoteRequest) GetSubject() *Subject {
	if r == nil {
		return nil
	}
	return r.Subject
}

func (r *FlagRequest) GetSubject() *Subject {
	if r == nil {
		return nil
	}
	return r.Subject
}

func (r *DeleteRequest) GetSubject() *Subject {
	if r == nil {
		return nil
	}
	return r.Subject
}
