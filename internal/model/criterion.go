package model

// Criterion is one discrete inclusion or exclusion rule extracted from a trial protocol
type Criterion struct {
	ID             int               `json:"id"`                        // Stable sequence number in protocol order (1-based)
	Category       CriterionCategory `json:"category"`                  // Which section the statement came from
	Text           string            `json:"text"`                      // Original statement text
	NormalizedText string            `json:"normalized_text"`           // Canonicalized form used for prompting and cache keys
	Heuristic      string            `json:"heuristic,omitempty"`       // Which segmentation rule produced it (e.g., "enumeration:3.", "sentence")
}

// CriterionCategory tags a criterion as inclusion or exclusion
type CriterionCategory string

const (
	CategoryInclusion CriterionCategory = "inclusion"
	CategoryExclusion CriterionCategory = "exclusion"
)

func (c CriterionCategory) String() string {
	return string(c)
}
