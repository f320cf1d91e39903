// Package mitigate detects bot-challenge responses and decides how to
// escalate. Detection is best-effort: blocked results are surfaced honestly,
// never converted into empty-but-successful fetches.
package mitigate

import (
	"net/http"
	"strings"
	"time"
)

// Classification is the verdict on one fetch response.
type Classification string

const (
	// Clean means the response looks like a real page.
	Clean Classification = "clean"
	// Challenged means an anti-bot interstitial that may clear after one
	// transport escalation.
	Challenged Classification = "challenged"
	// Blocked means an explicit denial unlikely to clear without a
	// different network identity.
	Blocked Classification = "blocked"
)

// challengeMarkers appear on interstitial pages that a rendering transport
// can sometimes pass.
var challengeMarkers = []string{
	"checking your browser",
	"cf-browser-verification",
	"cf-challenge",
	"just a moment...",
	"captcha",
	"recaptcha",
	"hcaptcha",
	"verify you are human",
	"ddos protection by",
}

// denialMarkers indicate an explicit, durable refusal.
var denialMarkers = []string{
	"access denied",
	"you have been blocked",
	"your ip has been banned",
	"request blocked",
	"forbidden",
}

// minPlausibleBody is the smallest body a content-rich page plausibly has.
const minPlausibleBody = 600

// minPlausibleElapsed guards against instant canned responses; real pages
// take longer than this to serve.
const minPlausibleElapsed = 2 * time.Millisecond

// Classify inspects one response. The caller passes the observed elapsed
// time so improbably fast canned responses can be flagged.
func Classify(statusCode int, header http.Header, body []byte, elapsed time.Duration) Classification {
	lower := strings.ToLower(string(body))

	// Cloudflare-style denials: 403/503 with cf headers.
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-mitigated") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			if containsAny(lower, challengeMarkers) {
				return Challenged
			}
			return Blocked
		}
	}

	if statusCode == http.StatusForbidden {
		return Blocked
	}
	if statusCode == http.StatusTooManyRequests {
		return Challenged
	}

	if containsAny(lower, denialMarkers) && len(body) < 4096 {
		return Blocked
	}
	if containsAny(lower, challengeMarkers) {
		return Challenged
	}

	// A 200 with a suspiciously small body, or one served impossibly fast,
	// is usually a JS shell or canned challenge.
	if statusCode == http.StatusOK && len(body) > 0 && len(body) < minPlausibleBody {
		if strings.Contains(lower, "<noscript") || strings.Contains(lower, "javascript is required") ||
			strings.Contains(lower, `http-equiv="refresh"`) {
			return Challenged
		}
		if elapsed > 0 && elapsed < minPlausibleElapsed {
			return Challenged
		}
	}

	return Clean
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
