// Package verify cross-references claims gathered from independent sources
// and assigns each subject a deterministic confidence. Identical evidence
// always produces identical output; there is no randomness and no model call
// in this path.
package verify

import (
	"sort"
	"strings"

	"github.com/sells-group/prospector/internal/model"
)

// Confidence coefficients. Values are additive and clamped to [0,1].
const (
	nameBase          = 0.20 // a resolved name claim
	contactFieldBonus = 0.05 // each of phone, email, website, address
	maxContactBonus   = 0.20
	earlySourceBonus  = 0.20 // first and second corroborating domains
	thirdSourceBonus  = 0.10
	lateSourceBonus   = 0.05 // every domain past the third
	negativePenalty   = 0.30 // per distinct negative signal
	disputedCap       = 0.40
)

// coreFields are the fields whose material disagreement between independent
// domains marks a subject disputed.
var coreFields = []string{model.FieldName, model.FieldPhone, model.FieldAddress, model.FieldCity}

// Verify cross-references everything independent sources claim about one
// subject. Zero usable sources yields zero confidence with an explicit
// reason; absence of evidence is never verified-false.
func Verify(subject string, claims []model.SourcedClaims) model.VerifiedEntity {
	claims = usable(claims)
	if len(claims) == 0 {
		return model.VerifiedEntity{
			Subject:    subject,
			State:      model.StateUnverified,
			Confidence: 0,
			Claims:     map[string]model.ClaimValue{},
			Reason:     "no accessible sources produced claims",
		}
	}

	resolved := resolveClaims(claims)
	domains := distinctDomains(claims)
	contradictions := findContradictions(claims)
	signals := scanNegativeSignals(claims)
	agreeing := domainsAgreeingOnIdentity(claims)

	state := model.StateUnverified
	switch {
	case len(contradictions) > 0 || len(signals) > 0:
		state = model.StateDisputed
	case len(agreeing) >= 2:
		state = model.StateVerified
	case len(domains) >= 2:
		state = model.StateCorroborating
	}

	confidence := score(resolved, domains, signals)
	if state == model.StateDisputed && confidence > disputedCap {
		confidence = disputedCap
	}

	return model.VerifiedEntity{
		Subject:              subject,
		State:                state,
		Confidence:           confidence,
		Claims:               resolved,
		CorroboratingSources: domains,
		Contradictions:       contradictions,
		NegativeSignals:      signals,
	}
}

// score computes the deterministic confidence: field evidence plus
// diminishing per-domain increments minus negative-signal penalties.
func score(resolved map[string]model.ClaimValue, domains []string, signals []string) float64 {
	c := 0.0
	if _, ok := resolved[model.FieldName]; ok {
		c += nameBase
	}

	contact := 0.0
	for _, f := range []string{model.FieldPhone, model.FieldEmail, model.FieldWebsite, model.FieldAddress} {
		if _, ok := resolved[f]; ok {
			contact += contactFieldBonus
		}
	}
	if contact > maxContactBonus {
		contact = maxContactBonus
	}
	c += contact

	for i := range domains {
		switch {
		case i < 2:
			c += earlySourceBonus
		case i == 2:
			c += thirdSourceBonus
		default:
			c += lateSourceBonus
		}
	}

	c -= float64(len(signals)) * negativePenalty

	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// usable drops claim sets that assert nothing.
func usable(claims []model.SourcedClaims) []model.SourcedClaims {
	out := claims[:0:0]
	for _, c := range claims {
		if len(c.Fields) > 0 || c.Snippet != "" {
			out = append(out, c)
		}
	}
	return out
}

// resolveClaims picks, per field, the value backed by the most distinct
// domains. Ties break toward the lexicographically smaller canonical value
// so resolution is order-independent.
func resolveClaims(claims []model.SourcedClaims) map[string]model.ClaimValue {
	type tally struct {
		value   string
		domains map[string]bool
	}
	byField := make(map[string]map[string]*tally)

	for _, c := range claims {
		for field, value := range c.Fields {
			canon := canonical(field, value)
			if canon == "" {
				continue
			}
			if byField[field] == nil {
				byField[field] = make(map[string]*tally)
			}
			t, ok := byField[field][canon]
			if !ok {
				t = &tally{value: value, domains: make(map[string]bool)}
				byField[field][canon] = t
			} else if value < t.value {
				// Deterministic representative regardless of claim order.
				t.value = value
			}
			t.domains[c.Domain] = true
		}
	}

	resolved := make(map[string]model.ClaimValue, len(byField))
	for field, tallies := range byField {
		var bestCanon string
		var best *tally
		for canon, t := range tallies {
			if best == nil ||
				len(t.domains) > len(best.domains) ||
				(len(t.domains) == len(best.domains) && canon < bestCanon) {
				best, bestCanon = t, canon
			}
		}
		sources := make([]string, 0, len(best.domains))
		for d := range best.domains {
			sources = append(sources, d)
		}
		sort.Strings(sources)
		resolved[field] = model.ClaimValue{Value: best.value, Sources: sources}
	}
	return resolved
}

// findContradictions reports core fields where independent domains assert
// materially different values.
func findContradictions(claims []model.SourcedClaims) []model.Contradiction {
	var out []model.Contradiction
	for _, field := range coreFields {
		values := make(map[string]string) // canonical -> representative
		byDomain := make(map[string]map[string]bool)
		for _, c := range claims {
			v, ok := c.Fields[field]
			if !ok {
				continue
			}
			canon := canonical(field, v)
			if canon == "" {
				continue
			}
			values[canon] = v
			if byDomain[canon] == nil {
				byDomain[canon] = make(map[string]bool)
			}
			byDomain[canon][c.Domain] = true
		}
		if len(values) < 2 {
			continue
		}
		// A single domain disagreeing with itself is noise, not a dispute.
		seen := make(map[string]bool)
		for _, doms := range byDomain {
			for d := range doms {
				seen[d] = true
			}
		}
		if len(seen) < 2 {
			continue
		}

		conflicting := make([]string, 0, len(values))
		for _, v := range values {
			conflicting = append(conflicting, v)
		}
		sort.Strings(conflicting)
		out = append(out, model.Contradiction{Field: field, Conflicting: conflicting})
	}
	return out
}

// domainsAgreeingOnIdentity returns the distinct domains whose claims agree
// with the majority on both name and locality. Two such domains make the
// subject verifiable.
func domainsAgreeingOnIdentity(claims []model.SourcedClaims) []string {
	resolved := resolveClaims(claims)
	name, hasName := resolved[model.FieldName]
	city, hasCity := resolved[model.FieldCity]
	if !hasName || !hasCity {
		return nil
	}

	agree := make(map[string]bool)
	for _, c := range claims {
		n, okN := c.Fields[model.FieldName]
		l, okL := c.Fields[model.FieldCity]
		if !okN && !okL {
			continue
		}
		if okN && canonical(model.FieldName, n) != canonical(model.FieldName, name.Value) {
			continue
		}
		if okL && canonical(model.FieldCity, l) != canonical(model.FieldCity, city.Value) {
			continue
		}
		// Must positively assert at least the name.
		if okN {
			agree[c.Domain] = true
		}
	}

	out := make([]string, 0, len(agree))
	for d := range agree {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func distinctDomains(claims []model.SourcedClaims) []string {
	set := make(map[string]bool)
	for _, c := range claims {
		if c.Domain != "" {
			set[c.Domain] = true
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// canonical normalizes a field value for comparison. Phones compare by
// digits; everything else folds case, punctuation, and surrounding noise.
func canonical(field, value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if field == model.FieldPhone {
		var b strings.Builder
		for _, r := range value {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		digits := b.String()
		// Strip a leading country code so +1 (406) 555-0142 matches
		// 406-555-0142.
		if len(digits) == 11 && digits[0] == '1' {
			digits = digits[1:]
		}
		return digits
	}

	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
