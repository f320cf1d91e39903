package model

import (
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
)

// trackingParams lists query parameters that identify campaigns or clicks
// rather than content. They are dropped during normalization so that the
// same page reached via different referrals dedupes to one URL.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igshid":  true,
	"ref":     true,
	"ref_src": true,
	"spm":     true,
	"_hsenc":  true,
	"_hsmi":   true,
	"yclid":   true,
}

// NormalizeURL canonicalizes a URL for deduplication and cache keying:
// lowercase scheme and host, default ports and fragments stripped, query
// parameters sorted with tracking parameters removed, trailing slash
// stripped from non-root paths. Idempotent.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", eris.Wrapf(err, "model: parse url %q", raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("model: url missing scheme or host: %q", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Strip default ports.
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	u.Fragment = ""

	// Drop tracking params, sort the rest for a stable ordering.
	q := u.Query()
	for k := range q {
		if trackingParams[k] || strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
		}
	}
	if len(q) == 0 {
		u.RawQuery = ""
	} else {
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			vals := q[k]
			sort.Strings(vals)
			for _, v := range vals {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	// Strip trailing slash except for the bare root.
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "/" {
		u.Path = ""
	}

	return u.String(), nil
}

// Domain extracts the registrable domain (eTLD+1) of a URL. Used as the
// per-origin key for pacing and for source-independence checks: subdomains
// of one site never count as independent sources.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	// IPs, localhost, and other unlisted hosts keep their literal form.
	return strings.TrimPrefix(host, "www.")
}
