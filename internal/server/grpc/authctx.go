package grpcserver

import (
	"context"

	"github.com/and161185/campus-board/internal/identity"
	"github.com/and161185/campus-board/internal/model"
)

type ctxKey string

const tokenKey ctxKey = "cb.postingToken"

// WithPostingToken stores the caller's posting token in context.
func WithPostingToken(ctx context.Context, tok model.PostingToken) context.Context {
	return context.WithValue(ctx, tokenKey, tok)
}

// PostingTokenFromCtx fetches the posting token from context.
func PostingTokenFromCtx(ctx context.Context) (model.PostingToken, bool) {
	tok, ok := ctx.Value(tokenKey).(model.PostingToken)
	return tok, ok && tok.Secret != ""
}

// viewerFromCtx returns the hash of the caller's token, or "" for anonymous readers.
func viewerFromCtx(ctx context.Context) model.TokenHash {
	tok, ok := PostingTokenFromCtx(ctx)
	if !ok {
		return ""
	}
	h, err := identity.HashToken(tok)
	if err != nil {
		return ""
	}
	return h
}
