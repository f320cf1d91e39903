package mitigate

import (
	"sync"

	"github.com/sells-group/prospector/internal/model"
)

// browserHeaders make the rendered retry look like an interactive session.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Upgrade-Insecure-Requests": "1",
}

// Mitigator remembers which origins have challenged us so later requests
// start on the rendered transport instead of burning a lightweight attempt.
type Mitigator struct {
	mu      sync.RWMutex
	hostile map[string]bool
}

// NewMitigator creates an empty mitigator.
func NewMitigator() *Mitigator {
	return &Mitigator{hostile: make(map[string]bool)}
}

// Escalate returns a copy of req upgraded one transport step with realistic
// headers. ok is false when the request is already at the top transport —
// the engine never loops escalation.
func (m *Mitigator) Escalate(req model.FetchRequest) (model.FetchRequest, bool) {
	if req.Transport == model.TransportRendered {
		return req, false
	}

	m.MarkHostile(model.Domain(req.URL))

	up := req
	up.Transport = model.TransportRendered
	up.Headers = make(map[string]string, len(req.Headers)+len(browserHeaders))
	for k, v := range req.Headers {
		up.Headers[k] = v
	}
	for k, v := range browserHeaders {
		up.Headers[k] = v
	}
	return up, true
}

// MarkHostile records that an origin served a challenge.
func (m *Mitigator) MarkHostile(domain string) {
	if domain == "" {
		return
	}
	m.mu.Lock()
	m.hostile[domain] = true
	m.mu.Unlock()
}

// Hostile reports whether an origin previously challenged us. The fetch
// client uses this to pick the rendered transport up front for auto requests.
func (m *Mitigator) Hostile(domain string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hostile[domain]
}
