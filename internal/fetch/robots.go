package fetch

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const robotsTTL = 6 * time.Hour

type robotsEntry struct {
	group     *robotstxt.Group
	fetchedAt time.Time
}

// robotsGate caches per-host robots.txt verdicts. Unreachable or malformed
// robots files fail open: acquisition proceeds and the condition is logged.
type robotsGate struct {
	mu        sync.Mutex
	client    *http.Client
	userAgent string
	entries   map[string]robotsEntry
	now       func() time.Time
}

func newRobotsGate(client *http.Client, userAgent string) *robotsGate {
	return &robotsGate{
		client:    client,
		userAgent: userAgent,
		entries:   make(map[string]robotsEntry),
		now:       time.Now,
	}
}

// allowed reports whether the user agent may fetch the path on the given
// scheme://host origin.
func (r *robotsGate) allowed(ctx context.Context, scheme, host, path string) bool {
	group := r.lookup(ctx, scheme, host)
	if group == nil {
		return true
	}
	return group.Test(path)
}

func (r *robotsGate) lookup(ctx context.Context, scheme, host string) *robotstxt.Group {
	r.mu.Lock()
	if e, ok := r.entries[host]; ok && r.now().Sub(e.fetchedAt) < robotsTTL {
		r.mu.Unlock()
		return e.group
	}
	r.mu.Unlock()

	group := r.fetch(ctx, scheme, host)

	r.mu.Lock()
	r.entries[host] = robotsEntry{group: group, fetchedAt: r.now()}
	r.mu.Unlock()
	return group
}

// fetch retrieves and parses robots.txt for a host. Returns nil (allow all)
// on any failure.
func (r *robotsGate) fetch(ctx context.Context, scheme, host string) *robotstxt.Group {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		zap.L().Debug("fetch: robots.txt unreachable, failing open",
			zap.String("host", host),
			zap.Error(err),
		)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	// 4xx means no robots policy; anything else we treat as absent too.
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		zap.L().Debug("fetch: robots.txt malformed, failing open", zap.String("host", host))
		return nil
	}
	return robots.FindGroup(r.userAgent)
}
