// Package collyfetcher implements the content fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"reportwatch/internal/fetcher/ratelimit"
	"reportwatch/internal/watch"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxBodyBytes truncates extracted text. Zero means no cap.
	MaxBodyBytes int
	// PerHostRPS throttles requests per host. Zero means unlimited.
	PerHostRPS   float64
	PerHostBurst int
}

// Fetcher implements watch.Fetcher with a Colly collector per request.
// Responses are reduced to plain text before they reach classification.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	logger        *zap.Logger
	retries       atomic.Int64
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.PerHostRPS, Burst: cfg.PerHostBurst})
	return &Fetcher{cfg: cfg, baseCollector: c, limiter: limiter, logger: logger}
}

// Fetch executes a single HTTP GET, retrying transient failures with
// exponential backoff. The returned error is always a *watch.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, req watch.FetchRequest) (watch.FetchResponse, error) {
	var lastErr *watch.FetchError
	backoff := f.cfg.RetryBackoff
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			f.retries.Add(1)
			f.logger.Debug("retrying fetch",
				zap.String("url", req.URL), zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return watch.FetchResponse{}, &watch.FetchError{
					URL: req.URL, Kind: watch.ErrKindTimeout, Err: ctx.Err(),
				}
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := f.limiter.Wait(ctx, req.URL); err != nil {
			return watch.FetchResponse{}, &watch.FetchError{
				URL: req.URL, Kind: watch.ErrKindTimeout, Err: err,
			}
		}
		resp, ferr := f.fetchOnce(ctx, req)
		if ferr == nil {
			return resp, nil
		}
		lastErr = ferr
		if !ferr.Retryable() {
			break
		}
	}
	return watch.FetchResponse{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, req watch.FetchRequest) (watch.FetchResponse, *watch.FetchError) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = f.cfg.Timeout
	}

	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(timeout)

	var (
		result    watch.FetchResponse
		respErr   error
		errStatus int
	)
	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		result = watch.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Content:    htmlToText(r.Body, f.cfg.MaxBodyBytes),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		respErr = err
		if r != nil {
			errStatus = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return watch.FetchResponse{}, &watch.FetchError{
			URL: req.URL, Kind: watch.ErrKindTimeout, Err: ctx.Err(),
		}
	case visitErr := <-done:
		if respErr == nil && visitErr != nil {
			respErr = visitErr
		}
		if respErr != nil {
			return watch.FetchResponse{}, classifyError(req.URL, errStatus, respErr)
		}
		return result, nil
	}
}

func classifyError(url string, status int, err error) *watch.FetchError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &watch.FetchError{URL: url, Kind: watch.ErrKindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &watch.FetchError{URL: url, Kind: watch.ErrKindTimeout, Err: err}
	case status > 0:
		return &watch.FetchError{URL: url, Kind: watch.ErrKindHTTP, StatusCode: status, Err: err}
	default:
		return &watch.FetchError{URL: url, Kind: watch.ErrKindNetwork, Err: err}
	}
}

// htmlToText reduces an HTML body to readable text. Non-HTML bodies pass
// through unchanged.
func htmlToText(body []byte, maxBytes int) string {
	text := string(body)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err == nil {
		doc.Find("script, style, noscript, nav, header, footer").Remove()
		extracted := strings.TrimSpace(doc.Find("body").Text())
		if extracted != "" {
			text = collapseWhitespace(extracted)
		}
	}
	if maxBytes > 0 && len(text) > maxBytes {
		text = text[:maxBytes]
	}
	return text
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Retries returns the cumulative count of retry attempts since creation.
func (f *Fetcher) Retries() int64 {
	return f.retries.Load()
}

var _ watch.Fetcher = (*Fetcher)(nil)

// String describes the fetcher configuration for startup logs.
func (f *Fetcher) String() string {
	return fmt.Sprintf("colly fetcher (timeout %s, retries %d)", f.cfg.Timeout, f.cfg.MaxRetries)
}
