package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loreleibot/lorelei/structs"
)

const defaultBaseURL = "https://discord.com/api/v9"

// maxTries bounds the retry loop for rate limits and transient
// server errors; everything else fails on the first response.
const maxTries = 5

// Doer issues a single HTTP request. *http.Client satisfies it;
// tests substitute a stub.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	doer      Doer
	limiter   *Limiter
	baseURL   string
	authToken string
	userAgent string
	log       *slog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

func WithDoer(d Doer) ClientOption {
	return func(c *Client) { c.doer = d }
}

func NewClient(authToken string, log *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		doer:      http.DefaultClient,
		limiter:   NewLimiter(log),
		baseURL:   defaultBaseURL,
		authToken: authToken,
		userAgent: "lorelei (https://github.com/loreleibot/lorelei, v0)",
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do runs a request through the route's rate-limit bucket and
// returns the response body. 429s are delayed and retried here;
// other failures map onto the error taxonomy and return directly.
func (c *Client) Do(ctx context.Context, route Route, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for tries := 0; tries < maxTries; tries++ {
		data, retryAfter, err := c.attempt(ctx, route, payload)
		if err == nil {
			return data, nil
		}
		if retryAfter < 0 {
			return nil, err
		}
		lastErr = err
		c.log.Warn("retrying request", "bucket", route.Bucket(), "after", retryAfter, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryAfter):
		}
	}
	return nil, fmt.Errorf("%s %s: retries exhausted: %w", route.Method, route.Path, lastErr)
}

// attempt performs one try. A non-negative retryAfter means the
// caller should wait that long and try again.
func (c *Client) attempt(ctx context.Context, route Route, payload []byte) ([]byte, time.Duration, error) {
	permit, err := c.limiter.Acquire(ctx, route.Bucket())
	if err != nil {
		return nil, -1, err
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, route.Method, c.baseURL+route.Path, bodyReader)
	if err != nil {
		permit.Release()
		return nil, -1, err
	}
	req.Header.Set("Authorization", c.authToken)
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.doer.Do(req)
	if err != nil {
		permit.Release()
		return nil, -1, fmt.Errorf("transport: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		permit.Release()
		return nil, -1, fmt.Errorf("transport: %w", err)
	}
	permit.Update(res.Header)

	if res.StatusCode == http.StatusTooManyRequests {
		var rl structs.RateLimitResponse
		retryAfter := time.Second
		if err := json.Unmarshal(data, &rl); err == nil && rl.RetryAfter > 0 {
			retryAfter = rl.RetryAfterDuration()
		}
		c.limiter.ApplyRetryAfter(permit, retryAfter, rl.Global)
		permit.Release()
		if rl.Global {
			c.log.Warn("global rate limit hit", "retry_after", retryAfter)
		}
		return nil, retryAfter, ErrRateLimited
	}
	permit.Release()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return data, -1, nil
	}

	// Transient server errors get a linear backoff retry.
	switch res.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return nil, time.Second, &HTTPError{Status: res.StatusCode}
	}

	var ae apiError
	_ = json.Unmarshal(data, &ae)
	return nil, -1, &HTTPError{Status: res.StatusCode, Code: ae.Code, Message: ae.Message}
}
