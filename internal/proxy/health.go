package proxy

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthChecker periodically re-tests quarantined identities against a
// lightweight known-good endpoint and readmits the ones that respond.
type HealthChecker struct {
	pool     *Pool
	probeURL string
	interval time.Duration
	timeout  time.Duration
}

// NewHealthChecker creates a checker probing probeURL every interval.
func NewHealthChecker(pool *Pool, probeURL string, interval time.Duration) *HealthChecker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HealthChecker{
		pool:     pool,
		probeURL: probeURL,
		interval: interval,
		timeout:  10 * time.Second,
	}
}

// Run probes until ctx is done. Start it in its own goroutine.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probeAll(ctx)
		}
	}
}

func (h *HealthChecker) probeAll(ctx context.Context) {
	for _, id := range h.pool.quarantined() {
		if err := h.probe(ctx, id); err != nil {
			zap.L().Debug("proxy: health probe failed",
				zap.String("endpoint", id.Endpoint.Host),
				zap.Error(err),
			)
			continue
		}
		h.pool.clearQuarantine(id)
		zap.L().Info("proxy: identity readmitted after probe",
			zap.String("endpoint", id.Endpoint.Host),
		)
	}
}

// probe issues a HEAD request to the known-good endpoint through id.
func (h *HealthChecker) probe(ctx context.Context, id *Identity) error {
	client := &http.Client{
		Timeout: h.timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(id.Endpoint),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.probeURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
