// Package upstream fetches posts and accounts from the platform's v2 REST API.
// Ordinary failures are reported as absence; only missing credentials are fatal.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/retry"
)

const (
	DefaultBaseURL = "https://api.twitter.com/2"

	tweetFields = "created_at,public_metrics,entities,referenced_tweets,author_id"
	expansions  = "author_id,referenced_tweets.id.author_id,entities.mentions.username"
	userFields  = "username,public_metrics,created_at"
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	Policy      retry.Policy
}

// Client is a rate-limit aware reader of the upstream API.
type Client struct {
	http   *resty.Client
	policy retry.Policy
	log    zerolog.Logger
	now    func() time.Time
}

// New builds a Client. A missing bearer token is a fatal configuration error.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BearerToken) == "" {
		return nil, fmt.Errorf("%w: upstream bearer token is empty", model.ErrFatalConfig)
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetAuthToken(cfg.BearerToken).
		SetHeader("User-Agent", "engagement-ingest").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	cl := &Client{http: c, policy: cfg.Policy, log: log, now: time.Now}
	if cl.policy.OnRetry == nil {
		cl.policy.OnRetry = func(attempt int, wait time.Duration, err error) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("upstream call failed; retrying")
		}
	}
	return cl, nil
}

// FetchByIdentity returns the most recent posts authored by the account with
// id ref. The second return value is false when nothing could be fetched.
func (c *Client) FetchByIdentity(ctx context.Context, ref string, pageSize int) (*Page, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}
	params := timelineParams(clamp(pageSize, 5, 100))
	return c.fetchPage(ctx, "/users/"+url.PathEscape(ref)+"/tweets", params)
}

// FetchByQuery returns recent posts matching any of terms.
func (c *Client) FetchByQuery(ctx context.Context, terms []string, pageSize int) (*Page, bool) {
	q := BuildQuery(terms)
	if q == "" {
		return nil, false
	}
	params := timelineParams(clamp(pageSize, 10, 100))
	params["query"] = q
	return c.fetchPage(ctx, "/tweets/search/recent", params)
}

// ResolveHandle maps a handle (with or without '@') to its platform id.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, bool) {
	handle = model.NormalizeHandle(handle)
	if handle == "" {
		return "", false
	}
	var out wireUserLookup
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		return c.get(ctx, "/users/by/username/"+url.PathEscape(handle), map[string]string{"user.fields": userFields}, &out)
	})
	if err != nil {
		c.log.Warn().Err(err).Str("handle", handle).Msg("handle resolution failed")
		return "", false
	}
	if out.Data == nil || out.Data.ID == "" {
		c.log.Info().Str("handle", handle).Msg("handle not found upstream")
		return "", false
	}
	return out.Data.ID, true
}

func (c *Client) fetchPage(ctx context.Context, path string, params map[string]string) (*Page, bool) {
	var body wireTimeline
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		body = wireTimeline{}
		return c.get(ctx, path, params, &body)
	})
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("upstream fetch failed")
		return nil, false
	}
	return toPage(&body), true
}

// get issues one request and classifies the result for the retry policy:
// transport errors and 5xx retry, 429 carries a wait hint, everything else is permanent.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return retry.Permanent(err)
		}
		return fmt.Errorf("%w: %v", model.ErrTransport, err)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return &model.ThrottleError{Wait: c.waitHint(resp.Header())}
	case code >= 500:
		return fmt.Errorf("%w: status %d", model.ErrTransport, code)
	case code < 200 || code >= 300:
		return retry.Permanent(fmt.Errorf("upstream status %d: %s", code, truncate(resp.String(), 200)))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// waitHint reads Retry-After (seconds or HTTP date) or x-rate-limit-reset
// (epoch seconds). Zero means no usable hint.
func (c *Client) waitHint(h http.Header) time.Duration {
	now := c.now()
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil && t.After(now) {
			return t.Sub(now)
		}
	}
	if v := strings.TrimSpace(h.Get("x-rate-limit-reset")); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}

// BuildQuery joins terms into an OR query, quoting multi-word terms.
func BuildQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if strings.ContainsAny(t, " \t") {
			t = strconv.Quote(t)
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " OR ")
}

func timelineParams(max int) map[string]string {
	return map[string]string{
		"max_results":  strconv.Itoa(max),
		"tweet.fields": tweetFields,
		"expansions":   expansions,
		"user.fields":  userFields,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
