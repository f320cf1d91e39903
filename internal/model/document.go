package model

// Structured field keys produced by extraction. Strategies agree on these
// names so verification can cross-reference values between sources.
const (
	FieldName    = "name"
	FieldPhone   = "phone"
	FieldEmail   = "email"
	FieldWebsite = "website"
	FieldAddress = "address"
	FieldCity    = "city"
	FieldRegion  = "region"
	FieldPrice   = "price"
)

// ExtractedDocument is the cleaned output of one fetched page. Produced once
// per unique URL per acquisition run; immutable after creation.
type ExtractedDocument struct {
	URL          string            `json:"url"`
	Title        string            `json:"title,omitempty"`
	CleanText    string            `json:"clean_text"`
	Fields       map[string]string `json:"fields,omitempty"`
	Strategy     string            `json:"strategy"`
	QualityScore float64           `json:"quality_score"`
}
