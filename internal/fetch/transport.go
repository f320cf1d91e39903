package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
)

// maxBodyBytes caps how much of a response body is read. Pages past this
// size are truncated, not failed; extraction works on what arrived.
const maxBodyBytes = 2 << 20

// Renderer executes a fetch through a full-rendering reader service. The
// jina reader client satisfies it.
type Renderer interface {
	Render(ctx context.Context, rawURL string, headers map[string]string) (statusCode int, header http.Header, body []byte, err error)
}

// response is the raw outcome of one transport attempt before
// classification.
type response struct {
	statusCode int
	header     http.Header
	body       []byte
	elapsed    time.Duration
}

// doLightweight issues a plain GET, optionally through proxyURL. Transport
// errors come back wrapped in the retry taxonomy so the attempt loop can
// decide whether another try is worthwhile.
func (c *Client) doLightweight(ctx context.Context, req model.FetchRequest, proxyURL *url.URL) (response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}

	transport := c.baseTransport.Clone()
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{Timeout: timeout, Transport: transport}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return response{}, resilience.Terminal(eris.Wrap(err, "fetch: build request"))
	}
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return response{elapsed: time.Since(start)}, eris.Wrap(err, "fetch: get")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	if err != nil {
		return response{elapsed: elapsed}, eris.Wrap(err, "fetch: read body")
	}

	return response{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       body,
		elapsed:    elapsed,
	}, nil
}

// doRendered delegates to the configured reader service.
func (c *Client) doRendered(ctx context.Context, req model.FetchRequest) (response, error) {
	if c.renderer == nil {
		return response{}, resilience.Terminal(eris.New("fetch: rendered transport requested but no renderer configured"))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.RenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	statusCode, header, body, err := c.renderer.Render(ctx, req.URL, req.Headers)
	elapsed := time.Since(start)
	if err != nil {
		return response{elapsed: elapsed}, eris.Wrap(err, "fetch: render")
	}
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	return response{
		statusCode: statusCode,
		header:     header,
		body:       body,
		elapsed:    elapsed,
	}, nil
}
