package model

// VerificationState tracks how far a subject has progressed through
// cross-referencing. The progression is
// unverified → corroborating → verified | disputed.
type VerificationState string

const (
	StateUnverified    VerificationState = "unverified"
	StateCorroborating VerificationState = "corroborating"
	StateVerified      VerificationState = "verified"
	StateDisputed      VerificationState = "disputed"
)

// SourcedClaims is the set of structured fields one source asserts about a
// subject, with enough context to scan for negative signals.
type SourcedClaims struct {
	SourceURL string            `json:"source_url"`
	Domain    string            `json:"domain"`
	Fields    map[string]string `json:"fields"`
	Snippet   string            `json:"snippet,omitempty"`
}

// ClaimValue is a resolved claim with its supporting sources.
type ClaimValue struct {
	Value   string   `json:"value"`
	Sources []string `json:"sources"`
}

// Contradiction records independent sources materially disagreeing on a
// core field.
type Contradiction struct {
	Field       string   `json:"field"`
	Conflicting []string `json:"conflicting_values"`
}

// VerifiedEntity is the terminal artifact handed to callers: a subject, its
// cross-referenced claims, and a bounded deterministic confidence.
type VerifiedEntity struct {
	ID                   string                `json:"id,omitempty"`
	Subject              string                `json:"subject"`
	State                VerificationState     `json:"state"`
	Confidence           float64               `json:"confidence"`
	Claims               map[string]ClaimValue `json:"claims"`
	CorroboratingSources []string              `json:"corroborating_sources"`
	Contradictions       []Contradiction       `json:"contradictions,omitempty"`
	NegativeSignals      []string              `json:"negative_signals,omitempty"`
	// Reason explains zero-confidence outcomes so absence of evidence is
	// never mistaken for verified-false.
	Reason string `json:"reason,omitempty"`
}
