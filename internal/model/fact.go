package model

// FactKeyNote is the key assigned to profile lines without a recognizable
// key/value delimiter. The key space is otherwise free-form: the parser must
// never assume a closed set of medical attribute names.
const FactKeyNote = "note"

// PatientFact is one attribute/value pair segmented from the free-text
// patient profile. Values are raw text; no numeric or unit parsing happens
// before adjudication.
type PatientFact struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	SourceSpan *Span  `json:"source_span,omitempty"` // Offsets into the original profile text
}

// Span is a half-open [Start, End) byte range into a source document
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}
