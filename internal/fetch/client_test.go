package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/cache"
	"github.com/sells-group/prospector/internal/govern"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
)

func testGovernor() *govern.Governor {
	return govern.New(govern.Config{Baseline: time.Millisecond})
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

var cleanPage = "<html><body><h1>Granite Peak Tooling</h1><p>" +
	strings.Repeat("Carbide end mills and lathe inserts in stock. ", 30) +
	"</p></body></html>"

type fakeRenderer struct {
	calls atomic.Int32
	body  string
}

func (f *fakeRenderer) Render(_ context.Context, _ string, _ map[string]string) (int, http.Header, []byte, error) {
	f.calls.Add(1)
	return 200, http.Header{}, []byte(f.body), nil
}

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(cleanPage))
	}))
	defer srv.Close()

	c := NewClient(Config{Retry: fastRetry()}, testGovernor())
	res := c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL + "/catalog"})

	assert.Equal(t, model.FetchOK, res.Status)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, model.TransportLightweight, res.Transport)
	assert.Contains(t, string(res.Body), "Granite Peak Tooling")
	assert.False(t, res.CacheHit)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(cleanPage))
	}))
	defer srv.Close()

	c := NewClient(Config{Retry: fastRetry()}, testGovernor())
	res := c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL})

	assert.Equal(t, model.FetchOK, res.Status)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_NotFoundFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	c := NewClient(Config{Retry: fastRetry()}, testGovernor())
	res := c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL + "/gone"})

	assert.Equal(t, model.FetchError, res.Status)
	assert.Equal(t, 404, res.StatusCode)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, int32(1), hits.Load(), "a 404 must not be retried")
}

func TestFetch_InvalidURL(t *testing.T) {
	c := NewClient(Config{Retry: fastRetry()}, testGovernor())
	res := c.Fetch(context.Background(), model.FetchRequest{URL: "not a url"})
	assert.Equal(t, model.FetchError, res.Status)
	assert.NotEmpty(t, res.Reason)
}

func TestFetch_ChallengeEscalatesOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>Please complete the reCAPTCHA to continue.</body></html>"))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{body: cleanPage}
	c := NewClient(Config{Retry: fastRetry()}, testGovernor(), WithRenderer(renderer))

	res := c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL})

	assert.Equal(t, model.FetchOK, res.Status)
	assert.Equal(t, model.TransportRendered, res.Transport)
	assert.Equal(t, int32(1), renderer.calls.Load())

	// The origin is now hostile: auto requests start rendered.
	res = c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL + "/other"})
	assert.Equal(t, model.TransportRendered, res.Transport)
	assert.Equal(t, int32(2), renderer.calls.Load())
}

func TestFetch_ChallengeWithoutRendererIsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>Please complete the reCAPTCHA to continue.</body></html>"))
	}))
	defer srv.Close()

	c := NewClient(Config{Retry: fastRetry()}, testGovernor())
	res := c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL})

	assert.Equal(t, model.FetchBlocked, res.Status)
	assert.NotEmpty(t, res.Reason)
	assert.Nil(t, res.Body, "blocked responses must not leak challenge bodies downstream")
}

func TestFetch_CacheHitSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(cleanPage))
	}))
	defer srv.Close()

	tiers := cache.NewTiered(cache.NewMemory(time.Hour, 0), nil)
	c := NewClient(Config{Retry: fastRetry()}, testGovernor(), WithCache(tiers))

	first := c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL})
	require.Equal(t, model.FetchOK, first.Status)

	second := c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL})
	assert.Equal(t, model.FetchOK, second.Status)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_ConcurrentSameURLCollapses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(cleanPage))
	}))
	defer srv.Close()

	tiers := cache.NewTiered(cache.NewMemory(time.Hour, 0), nil)
	c := NewClient(Config{Retry: fastRetry()}, testGovernor(), WithCache(tiers))

	const workers = 4
	results := make([]model.FetchResult, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL + "/catalog"})
		}()
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, model.FetchOK, res.Status)
		assert.Contains(t, string(res.Body), "Granite Peak Tooling")
	}
	assert.Equal(t, int32(1), hits.Load(), "simultaneous fetches for one key share a single origin request")
}

func TestFetch_RobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(cleanPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Config{Retry: fastRetry(), RespectRobots: true}, testGovernor())

	res := c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL + "/private/pricing"})
	assert.Equal(t, model.FetchBlocked, res.Status)
	assert.Contains(t, res.Reason, "robots")

	res = c.Fetch(context.Background(), model.FetchRequest{URL: srv.URL + "/public"})
	assert.Equal(t, model.FetchOK, res.Status)
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(Config{Retry: fastRetry()}, testGovernor())
	res := c.Fetch(ctx, model.FetchRequest{URL: srv.URL})
	assert.Equal(t, model.FetchTimeout, res.Status)
}
