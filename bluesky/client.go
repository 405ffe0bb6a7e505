package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BenHamm/bluesky-times/logger"
	"github.com/BenHamm/bluesky-times/utils"
)

const (
	DefaultHost = "https://bsky.social"

	maxRetries     = 3
	requestTimeout = 15 * time.Second
)

var retryBaseDelay = 2 * time.Second

// ErrAuth marks credential failures, which are never retried.
var ErrAuth = errors.New("authentication failed")

// Client speaks the handful of XRPC methods the pipeline needs. It holds
// the session token from Login and sends it on every subsequent call.
type Client struct {
	host       string
	httpClient *http.Client
	accessJwt  string
	did        string
}

func NewClient(host string) *Client {
	if host == "" {
		host = DefaultHost
	}
	return &Client{
		host:       host,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Login creates a session with a handle and app password.
func (c *Client) Login(ctx context.Context, identifier, appPassword string) error {
	body := map[string]string{"identifier": identifier, "password": appPassword}
	var sess Session
	if err := c.post(ctx, "com.atproto.server.createSession", body, &sess); err != nil {
		return err
	}
	c.accessJwt = sess.AccessJwt
	c.did = sess.DID
	logger.Log.Debugf("session created for %s (%s)", sess.Handle, sess.DID)
	return nil
}

// Timeline returns one page of the session user's home timeline.
func (c *Client) Timeline(ctx context.Context, cursor string, limit int) ([]FeedItem, string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var resp timelineResponse
	if err := c.get(ctx, "app.bsky.feed.getTimeline", params, &resp); err != nil {
		return nil, "", err
	}
	return resp.Feed, resp.Cursor, nil
}

// Posts hydrates up to 25 posts by URI.
func (c *Client) Posts(ctx context.Context, uris []string) ([]PostView, error) {
	params := url.Values{}
	for _, u := range uris {
		params.Add("uris", u)
	}
	var resp postsResponse
	if err := c.get(ctx, "app.bsky.feed.getPosts", params, &resp); err != nil {
		return nil, err
	}
	return resp.Posts, nil
}

func (c *Client) get(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/xrpc/%s?%s", c.host, method, params.Encode())
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, out)
}

func (c *Client) post(ctx context.Context, method string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/xrpc/%s", c.host, method)
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

// doWithRetry runs one request with a bounded backoff budget. Transient
// failures (transport errors, 429, 5xx) are retried; auth failures and
// other 4xx responses are terminal.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			logger.Log.Debugf("retrying in %v (attempt %d/%d): %v", delay, attempt, maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := build()
		if err != nil {
			return err
		}
		if c.accessJwt != "" {
			req.Header.Set("Authorization", "Bearer "+c.accessJwt)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if out == nil {
				return nil
			}
			return json.Unmarshal(data, out)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrAuth, xrpcMessage(data))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s returned status %d: %s", req.URL.Path, resp.StatusCode, xrpcMessage(data))
		default:
			return fmt.Errorf("%s returned status %d: %s", req.URL.Path, resp.StatusCode, xrpcMessage(data))
		}
	}
	return lastErr
}

func xrpcMessage(data []byte) string {
	var xe xrpcError
	if json.Unmarshal(data, &xe) == nil {
		if xe.Message != "" {
			return xe.Message
		}
		if xe.Error != "" {
			return xe.Error
		}
	}
	return utils.Truncate(string(data), 120)
}
