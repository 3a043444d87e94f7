package boardv1

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// Metadata keys carrying the caller's posting token.
const (
	MDToken   = "x-posting-token"
	MDPeriod  = "x-posting-period"
	MDExpires = "x-posting-expires"
)

// PostingTokenMD renders tok as request metadata, e.g. for per-RPC credentials.
func PostingTokenMD(tok model.PostingToken) map[string]string {
	return map[string]string{
		MDToken:   tok.Secret,
		MDPeriod:  tok.Period,
		MDExpires: tok.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

// WithPostingToken attaches tok to the outgoing call metadata.
func WithPostingToken(ctx context.Context, tok model.PostingToken) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		MDToken, tok.Secret,
		MDPeriod, tok.Period,
		MDExpires, tok.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
}

// PostingTokenFromIncoming extracts the posting token from server-side metadata.
// ok is false when no token header is present.
func PostingTokenFromIncoming(ctx context.Context) (tok model.PostingToken, ok bool, err error) {
	md, _ := metadata.FromIncomingContext(ctx)
	secret := first(md, MDToken)
	if secret == "" {
		return model.PostingToken{}, false, nil
	}
	tok = model.PostingToken{Secret: secret, Period: first(md, MDPeriod)}
	if raw := first(md, MDExpires); raw != "" {
		exp, perr := time.Parse(time.RFC3339Nano, raw)
		if perr != nil {
			return model.PostingToken{}, true, fmt.Errorf("%s: %w", MDExpires, errs.ErrInvalidInput)
		}
		tok.ExpiresAt = exp.UTC()
	}
	return tok, true, nil
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
