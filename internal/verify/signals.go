package verify

import (
	"fmt"
	"strings"

	"github.com/sells-group/prospector/internal/model"
)

// negativeKeywords flag testimony that the subject may no longer operate or
// may not be trustworthy. Matching is case-insensitive substring scan over
// each source's snippet context.
var negativeKeywords = []string{
	"permanently closed",
	"out of business",
	"no longer in business",
	"going out of business",
	"ceased operations",
	"shut down",
	"filed for bankruptcy",
	"license revoked",
	"scam",
	"fraudulent",
}

// scanNegativeSignals returns one entry per keyword hit, tagged with the
// domain that asserted it.
func scanNegativeSignals(claims []model.SourcedClaims) []string {
	var signals []string
	for _, c := range claims {
		text := strings.ToLower(c.Snippet)
		if text == "" {
			continue
		}
		for _, kw := range negativeKeywords {
			if strings.Contains(text, kw) {
				signals = append(signals, fmt.Sprintf("%s: %q", c.Domain, kw))
			}
		}
	}
	return signals
}
