// Package fetch acquires pages. Every request flows through the same
// pipeline: cache, robots gate, per-domain pacing, transport attempt with
// retries, block classification, and at most one transport escalation.
// Ordinary failure is a result status, never an error.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/prospector/internal/cache"
	"github.com/sells-group/prospector/internal/govern"
	"github.com/sells-group/prospector/internal/mitigate"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/proxy"
	"github.com/sells-group/prospector/internal/resilience"
)

// Config tunes the fetch client. Zero values fall back to defaults.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	RenderTimeout  time.Duration
	RespectRobots  bool
	Retry          resilience.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "prospector/1.0 (+https://github.com/sells-group/prospector)"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 60 * time.Second
	}
	return c
}

// Client is the acquisition pipeline. Safe for concurrent use.
type Client struct {
	cfg           Config
	governor      *govern.Governor
	pool          *proxy.Pool
	mitigator     *mitigate.Mitigator
	tiers         *cache.Tiered
	robots        *robotsGate
	renderer      Renderer
	baseTransport *http.Transport
	flight        singleflight.Group
}

// Option configures the client.
type Option func(*Client)

// WithProxyPool routes lightweight fetches through rotating identities.
func WithProxyPool(p *proxy.Pool) Option {
	return func(c *Client) { c.pool = p }
}

// WithCache enables the response cache.
func WithCache(t *cache.Tiered) Option {
	return func(c *Client) { c.tiers = t }
}

// WithRenderer enables the rendered transport.
func WithRenderer(r Renderer) Option {
	return func(c *Client) { c.renderer = r }
}

// NewClient builds a fetch client over the given governor.
func NewClient(cfg Config, governor *govern.Governor, opts ...Option) *Client {
	c := &Client{
		cfg:           cfg.withDefaults(),
		governor:      governor,
		mitigator:     mitigate.NewMitigator(),
		baseTransport: http.DefaultTransport.(*http.Transport).Clone(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.robots = newRobotsGate(&http.Client{Transport: c.baseTransport}, c.cfg.UserAgent)
	return c
}

// Fetch acquires one URL. The returned result always has a terminal status;
// blocked and failed fetches are reported in Status and Reason, not as
// errors.
func (c *Client) Fetch(ctx context.Context, req model.FetchRequest) model.FetchResult {
	norm, err := model.NormalizeURL(req.URL)
	if err != nil {
		return model.FetchResult{
			URL:       req.URL,
			Status:    model.FetchError,
			Transport: req.Transport,
			Reason:    err.Error(),
		}
	}
	req.URL = norm
	domain := model.Domain(norm)
	req.Transport = c.resolveTransport(req, domain)

	key := cache.Key(norm, string(req.Transport))
	if c.tiers != nil {
		if res, ok := c.cachedResult(ctx, key); ok {
			return res
		}
	}

	// Concurrent fetches for the same key collapse into one in-flight
	// request; late joiners share the leader's result.
	v, _, _ := c.flight.Do(key, func() (any, error) {
		if c.tiers != nil {
			if res, ok := c.cachedResult(ctx, key); ok {
				return res, nil
			}
		}
		return c.fetchOrigin(ctx, req, key), nil
	})
	return v.(model.FetchResult)
}

// fetchOrigin runs the uncached path: robots gate, governor admission, the
// retried attempt with at most one escalation, and the cache write.
func (c *Client) fetchOrigin(ctx context.Context, req model.FetchRequest, key string) model.FetchResult {
	norm := req.URL
	domain := model.Domain(norm)

	if c.cfg.RespectRobots && !c.robotsAllowed(ctx, norm) {
		return model.FetchResult{
			URL:       norm,
			Status:    model.FetchBlocked,
			Transport: req.Transport,
			Reason:    "robots.txt disallows",
		}
	}

	if !c.waitAdmit(ctx, domain) {
		return timeoutResult(req, ctx.Err())
	}

	res, class := c.attempt(ctx, req, domain)

	// One escalation step: a challenge that a rendered pass might clear.
	if class == mitigate.Challenged && res.StatusCode != http.StatusTooManyRequests && c.renderer != nil {
		if up, ok := c.mitigator.Escalate(req); ok {
			zap.L().Info("fetch: escalating transport after challenge",
				zap.String("url", norm),
				zap.String("domain", domain),
			)
			if !c.waitAdmit(ctx, domain) {
				return timeoutResult(up, ctx.Err())
			}
			res, class = c.attempt(ctx, up, domain)
		}
	}
	if class == mitigate.Challenged {
		// Challenge that we could not or did not escalate past.
		res.Status = model.FetchBlocked
		if res.Reason == "" {
			res.Reason = "challenge not cleared"
		}
	}

	if res.Status == model.FetchOK && c.tiers != nil {
		c.storeResult(ctx, key, res)
	}
	return res
}

// resolveTransport picks the transport for auto requests: rendered when the
// origin has challenged us before and a renderer exists, lightweight
// otherwise.
func (c *Client) resolveTransport(req model.FetchRequest, domain string) model.Transport {
	switch req.Transport {
	case model.TransportLightweight, model.TransportRendered:
		return req.Transport
	}
	if c.renderer != nil && c.mitigator.Hostile(domain) {
		return model.TransportRendered
	}
	return model.TransportLightweight
}

// attempt runs one transport with the retry budget and classifies the final
// response. It reports the outcome to the governor and, for lightweight
// attempts, to the proxy pool.
func (c *Client) attempt(ctx context.Context, req model.FetchRequest, domain string) (model.FetchResult, mitigate.Classification) {
	resp, err := resilience.RetryVal(ctx, c.cfg.Retry, func(ctx context.Context) (response, error) {
		return c.once(ctx, req)
	})
	if err != nil {
		c.governor.Report(domain, govern.OutcomeError)
		if isTimeout(err) {
			return timeoutResult(req, err), mitigate.Clean
		}
		return model.FetchResult{
			URL:       req.URL,
			Status:    model.FetchError,
			Transport: req.Transport,
			Elapsed:   resp.elapsed,
			Reason:    err.Error(),
		}, mitigate.Clean
	}

	class := mitigate.Classify(resp.statusCode, resp.header, resp.body, resp.elapsed)
	res := model.FetchResult{
		URL:        req.URL,
		StatusCode: resp.statusCode,
		Body:       resp.body,
		Header:     resp.header,
		Transport:  req.Transport,
		Elapsed:    resp.elapsed,
	}

	switch class {
	case mitigate.Clean:
		if resp.statusCode >= 200 && resp.statusCode < 300 {
			c.governor.Report(domain, govern.OutcomeSuccess)
			res.Status = model.FetchOK
		} else {
			c.governor.Report(domain, govern.OutcomeError)
			res.Status = model.FetchError
			res.Reason = http.StatusText(resp.statusCode)
			res.Body = nil
		}
	case mitigate.Challenged:
		c.governor.Report(domain, govern.OutcomeSoftBlock)
		res.Status = model.FetchBlocked
		res.Reason = "challenge detected"
		res.Body = nil
	case mitigate.Blocked:
		c.governor.Report(domain, govern.OutcomeHardBlock)
		res.Status = model.FetchBlocked
		res.Reason = "access denied"
		res.Body = nil
	}
	return res, class
}

// once executes a single transport attempt. Retryable HTTP statuses become
// retryable errors so the attempt loop tries again; everything else returns
// as a response for classification.
func (c *Client) once(ctx context.Context, req model.FetchRequest) (response, error) {
	var (
		resp response
		err  error
	)
	if req.Transport == model.TransportRendered {
		resp, err = c.doRendered(ctx, req)
	} else {
		var id *proxy.Identity
		var viaProxy *url.URL
		if c.pool != nil {
			if acquired, ok := c.pool.Acquire(); ok {
				id = acquired
				viaProxy = acquired.Endpoint
			}
		}
		resp, err = c.doLightweight(ctx, req, viaProxy)
		if id != nil {
			c.pool.Release(id, err == nil && resp.statusCode < 500, resp.elapsed)
		}
	}
	if err != nil {
		return resp, err
	}

	// 5xx and 408 are transient server trouble; retry within budget. 429 is
	// left for classification so it feeds the governor as a soft block.
	if resp.statusCode != http.StatusTooManyRequests && resilience.RetryableStatus(resp.statusCode) {
		return resp, resilience.Retryable(
			errors.New("fetch: "+http.StatusText(resp.statusCode)),
			resp.statusCode,
		)
	}
	return resp, nil
}

// waitAdmit sleeps out the governor's delay. Returns false if ctx expires
// first.
func (c *Client) waitAdmit(ctx context.Context, domain string) bool {
	delay := c.governor.Admit(domain)
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) robotsAllowed(ctx context.Context, norm string) bool {
	u, err := url.Parse(norm)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return c.robots.allowed(ctx, u.Scheme, u.Host, path)
}

func (c *Client) cachedResult(ctx context.Context, key string) (model.FetchResult, bool) {
	e, ok, err := c.tiers.Get(ctx, key)
	if err != nil {
		zap.L().Warn("fetch: cache read failed", zap.Error(err))
		return model.FetchResult{}, false
	}
	if !ok {
		return model.FetchResult{}, false
	}
	var res model.FetchResult
	if err := json.Unmarshal(e.Value, &res); err != nil {
		return model.FetchResult{}, false
	}
	res.CacheHit = true
	return res, true
}

func (c *Client) storeResult(ctx context.Context, key string, res model.FetchResult) {
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	// Rendered payloads are expensive to recompute and keep longer.
	class := cache.ClassPage
	if res.Transport == model.TransportRendered {
		class = cache.ClassStructured
	}
	if err := c.tiers.Set(ctx, class, key, payload); err != nil {
		zap.L().Warn("fetch: cache write failed", zap.Error(err))
	}
}

func timeoutResult(req model.FetchRequest, err error) model.FetchResult {
	reason := "deadline exceeded"
	if err != nil {
		reason = err.Error()
	}
	return model.FetchResult{
		URL:       req.URL,
		Status:    model.FetchTimeout,
		Transport: req.Transport,
		Reason:    reason,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
