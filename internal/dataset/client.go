package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FranksOps/serpdump/internal/metrics"
	"github.com/FranksOps/serpdump/internal/serp"
	"github.com/FranksOps/serpdump/internal/waf"
	"github.com/FranksOps/serpdump/pkg/httpclient"
	"github.com/FranksOps/serpdump/pkg/proxy"
)

const (
	DefaultBaseURL   = "https://api.brightdata.com/datasets/v3"
	DefaultDatasetID = "gd_m5zlb2loauntf6oof"

	userAgent = "serpdump/1.0"

	// errorBodyLimit caps how much of a failed response ends up in the error.
	errorBodyLimit = 512
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Config holds the process-wide settings of the API client. It is read-only
// after New.
type Config struct {
	BaseURL   string
	APIKey    string
	DatasetID string

	Timeout      time.Duration
	MaxRedirects int
	// Transport is the underlying round tripper, e.g. from fingerprint.Transport.
	// Its Proxy func should be ProxyFromContext when ProxyPool is set.
	Transport http.RoundTripper
	ProxyPool *proxy.Pool

	Logger *zap.Logger
}

// Client talks to the trigger, progress and snapshot endpoints.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *httpclient.Client
	logger *zap.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DatasetID == "" {
		cfg.DatasetID = DefaultDatasetID
	}
	if cfg.APIKey == "" {
		return nil, errors.New("dataset: api key is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("dataset: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("dataset: base url %q must be absolute", cfg.BaseURL)
	}

	hc, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		BearerToken:  cfg.APIKey,
		UserAgent:    userAgent,
		Transport:    cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}

	return &Client{
		cfg:    cfg,
		base:   base,
		http:   hc,
		logger: cfg.Logger,
	}, nil
}

// Trigger starts a scrape job for the given searches and returns its handle.
func (c *Client) Trigger(ctx context.Context, specs []serp.SearchSpec) (JobHandle, error) {
	const op = "trigger"

	body, err := json.Marshal(specs)
	if err != nil {
		return "", protocolError(op, "encode searches", err)
	}

	q := url.Values{}
	q.Set("dataset_id", c.cfg.DatasetID)
	q.Set("include_errors", "true")

	c.logger.Info("triggering search requests", zap.Int("searches", len(specs)))

	data, err := c.do(ctx, op, http.MethodPost, c.endpoint(q, "trigger"), body)
	if err != nil {
		return "", err
	}

	var resp TriggerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", protocolError(op, "decode trigger response", err)
	}
	handle, ok := resp.Handle()
	if !ok {
		return "", protocolError(op, "no request_id or snapshot_id in trigger response", nil)
	}

	c.logger.Info("search requests triggered", zap.String("job_id", string(handle)))
	return handle, nil
}

// Status fetches the current progress of a job.
func (c *Client) Status(ctx context.Context, handle JobHandle) (*Progress, error) {
	const op = "status"

	data, err := c.do(ctx, op, http.MethodGet, c.endpoint(nil, "progress", string(handle)), nil)
	if err != nil {
		return nil, err
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, protocolError(op, "decode progress response", err)
	}

	c.logger.Debug("status response", zap.String("job_id", string(handle)), zap.String("status", string(p.Status)))
	return &p, nil
}

// Download fetches the finished snapshot as JSON.
func (c *Client) Download(ctx context.Context, handle JobHandle) (Snapshot, error) {
	const op = "download"

	q := url.Values{}
	q.Set("format", "json")

	data, err := c.do(ctx, op, http.MethodGet, c.endpoint(q, "snapshot", string(handle)), nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, protocolError(op, "snapshot is not valid JSON", nil)
	}

	c.logger.Info("snapshot downloaded", zap.String("job_id", string(handle)), zap.Int("bytes", len(data)))
	return Snapshot(data), nil
}

func (c *Client) endpoint(q url.Values, segments ...string) string {
	u := c.base.JoinPath(segments...)
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do performs one round trip and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, target string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, transportError(op, 0, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var activeProxy *url.URL
	if c.cfg.ProxyPool != nil {
		if activeProxy = c.cfg.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	resp, err := c.http.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = c.cfg.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(proxy.Label(activeProxy)).Inc()
		}
		metrics.RecordAPIRequest(op, 0)
		return nil, transportError(op, 0, "request failed", err)
	}
	defer resp.Body.Close()
	metrics.RecordAPIRequest(op, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		msg := strings.TrimSpace(string(excerpt))
		// A block page means the proxy, not the API, answered.
		if src, blocked := waf.Detect(waf.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: excerpt}); blocked {
			metrics.BlockedResponses.WithLabelValues(src).Inc()
			c.logger.Warn("response blocked by bot protection",
				zap.String("op", op), zap.String("source", src), zap.String("proxy", proxy.Label(activeProxy)))
			if activeProxy != nil {
				_ = c.cfg.ProxyPool.MarkFailure(activeProxy)
				metrics.ProxyFailures.WithLabelValues(proxy.Label(activeProxy)).Inc()
			}
			return nil, transportError(op, resp.StatusCode, "blocked by "+src, nil)
		}
		if activeProxy != nil {
			_ = c.cfg.ProxyPool.MarkSuccess(activeProxy)
		}
		return nil, transportError(op, resp.StatusCode, msg, nil)
	}

	if activeProxy != nil {
		_ = c.cfg.ProxyPool.MarkSuccess(activeProxy)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, resp.StatusCode, "read body", err)
	}
	return data, nil
}

// ProxyFromContext is an http.Transport Proxy func that routes a request
// through the proxy chosen by the Client, falling back to the environment.
func ProxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
