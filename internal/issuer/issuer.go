// Package issuer talks to the external posting-token issuance endpoint.
package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// maxBody caps how much of a response we read.
const maxBody = 64 << 10

// Client issues posting tokens on behalf of an authenticated session.
type Client struct {
	url     string
	session string
	http    *http.Client
}

// New constructs a Client for the endpoint at url, authenticated with the
// session bearer credential. A nil hc uses a client with a 30s timeout.
func New(url, session string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, session: session, http: hc}
}

// issueResponse accepts both the documented field names and the legacy
// snake_case ones older issuance endpoints return.
type issueResponse struct {
	Secret       string `json:"secret"`
	LegacyToken  string `json:"token"`
	Period       string `json:"period"`
	ExpiresAt    string `json:"expiresAt"`
	LegacyExpiry string `json:"expires_at"`
}

// Issue POSTs with no body and decodes {secret, period, expiresAt}.
// Non-2xx and malformed responses are ErrIssuanceFailed; a missed deadline is ErrTimeout.
func (c *Client) Issue(ctx context.Context) (model.PostingToken, error) {
	if c.session == "" {
		return model.PostingToken{}, fmt.Errorf("issue: empty session credential: %w", errs.ErrInvalidInput)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, nil)
	if err != nil {
		return model.PostingToken{}, fmt.Errorf("issue: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.session)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return model.PostingToken{}, fmt.Errorf("issue: %w", errs.FromContext(cerr))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return model.PostingToken{}, fmt.Errorf("issue: %w", errs.FromContext(err))
		}
		return model.PostingToken{}, fmt.Errorf("issue: %v: %w", err, errs.ErrIssuanceFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return model.PostingToken{}, fmt.Errorf("issue: read body: %v: %w", err, errs.ErrIssuanceFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.PostingToken{}, fmt.Errorf("issue: status %d: %w", resp.StatusCode, errs.ErrIssuanceFailed)
	}
	return decode(body)
}

func decode(body []byte) (model.PostingToken, error) {
	var r issueResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return model.PostingToken{}, fmt.Errorf("issue: decode: %v: %w", err, errs.ErrIssuanceFailed)
	}
	secret := firstNonEmpty(r.Secret, r.LegacyToken)
	if secret == "" {
		return model.PostingToken{}, fmt.Errorf("issue: response without secret: %w", errs.ErrIssuanceFailed)
	}
	if _, err := time.Parse(model.PeriodLayout, r.Period); err != nil || len(r.Period) != len(model.PeriodLayout) {
		return model.PostingToken{}, fmt.Errorf("issue: bad period %q: %w", r.Period, errs.ErrIssuanceFailed)
	}
	exp, err := time.Parse(time.RFC3339Nano, firstNonEmpty(r.ExpiresAt, r.LegacyExpiry))
	if err != nil {
		return model.PostingToken{}, fmt.Errorf("issue: bad expiresAt: %w", errs.ErrIssuanceFailed)
	}
	return model.PostingToken{Secret: secret, Period: r.Period, ExpiresAt: exp}, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
