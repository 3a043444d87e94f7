// Package modclient calls the admin HTTP API on behalf of a moderator.
package modclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

const maxBody = 1 << 20

// Client talks to one admin server.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New constructs a Client for baseURL. A nil hc uses a client with a 30s timeout.
func New(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

// WithToken returns a copy authenticated with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// FlagEntry is one row of the moderation flag report.
type FlagEntry struct {
	SubjectType string         `json:"subject_type"`
	ID          string         `json:"id"`
	Count       int            `json:"count"`
	Reporters   int            `json:"reporters"`
	Reasons     map[string]int `json:"reasons"`
	LatestAt    time.Time      `json:"latest_at"`
	Exists      bool           `json:"exists"`
	Excerpt     string         `json:"excerpt,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// statusErr maps an admin API status onto a sentinel.
func statusErr(code int, msg string) error {
	var kind error
	switch code {
	case http.StatusBadRequest:
		kind = errs.ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = errs.ErrUnauthorized
	case http.StatusNotFound:
		kind = errs.ErrNotFound
	case http.StatusConflict:
		kind = errs.ErrAlreadyExists
	case http.StatusTooManyRequests:
		kind = errs.ErrRateLimited
	case http.StatusGatewayTimeout:
		kind = errs.ErrTimeout
	default:
		return fmt.Errorf("admin api: status %d: %s", code, msg)
	}
	if msg == "" {
		return fmt.Errorf("admin api: status %d: %w", code, kind)
	}
	return fmt.Errorf("admin api: %s: %w", msg, kind)
}

// do sends in as JSON (when non-nil) and decodes the response into out.
// For non-2xx statuses out is still decoded when possible.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return 0, errs.FromContext(cerr)
		}
		return 0, errs.FromContext(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("admin api: read body: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp.StatusCode, fmt.Errorf("admin api: decode: %w", err)
			}
		}
		return resp.StatusCode, nil
	}
	if out != nil {
		_ = json.Unmarshal(raw, out)
	}
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	return resp.StatusCode, statusErr(resp.StatusCode, eb.Error)
}

// Login exchanges credentials for a moderator token.
func (c *Client) Login(ctx context.Context, username, password string) (model.ModeratorToken, error) {
	var out struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	in := map[string]string{"username": username, "password": password}
	if _, err := c.do(ctx, http.MethodPost, "/admin/login", in, &out); err != nil {
		return model.ModeratorToken{}, fmt.Errorf("login: %w", err)
	}
	if out.AccessToken == "" {
		return model.ModeratorToken{}, errors.New("login: empty access token")
	}
	return model.ModeratorToken{AccessToken: out.AccessToken, ExpiresAt: out.ExpiresAt}, nil
}

// Delete removes any post or comment. The typed result is returned even on failure.
func (c *Client) Delete(ctx context.Context, s model.Subject) (model.DeleteResult, error) {
	in := map[string]string{"subject_type": string(s.Type), "id": s.ID.String()}
	var res model.DeleteResult
	if _, err := c.do(ctx, http.MethodPost, "/admin/delete", in, &res); err != nil {
		return res, fmt.Errorf("delete %s: %w", s, err)
	}
	if !res.OK {
		return res, fmt.Errorf("delete %s: %s", s, res.Error)
	}
	return res, nil
}

// Flags fetches the flag report. limit <= 0 returns everything the server scans.
func (c *Client) Flags(ctx context.Context, limit int) ([]FlagEntry, error) {
	path := "/admin/flags"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Flags []FlagEntry `json:"flags"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	return out.Flags, nil
}
