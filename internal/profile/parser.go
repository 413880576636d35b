package profile

import (
	"strings"

	"eligo/internal/model"
)

// EmptyProfileError signals a blank patient profile submission
type EmptyProfileError struct{}

func (e *EmptyProfileError) Error() string {
	return "patient profile is empty"
}

// maxKeyTokens bounds how long the left side of a colon may be before the
// line is treated as prose rather than a key/value pair.
const maxKeyTokens = 6

// Parse segments a free-text patient profile into attribute/value facts.
// Keys are free-form: the profile is never forced into a fixed schema, and
// lines without a recognizable delimiter survive as "note" facts rather
// than being dropped. Values stay raw text; any numeric comparison happens
// during adjudication, not here.
func Parse(text string) ([]model.PatientFact, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &EmptyProfileError{}
	}

	var facts []model.PatientFact
	offset := 0

	for _, line := range strings.SplitAfter(text, "\n") {
		lineStart := offset
		offset += len(line)

		content := strings.TrimSuffix(line, "\n")
		trimmed := strings.TrimSpace(stripBullet(content))
		if trimmed == "" {
			continue
		}

		span := &model.Span{Start: lineStart, End: lineStart + len(content)}

		key, value, ok := splitKeyValue(trimmed)
		if !ok {
			facts = append(facts, model.PatientFact{
				Key:        model.FactKeyNote,
				Value:      trimmed,
				SourceSpan: span,
			})
			continue
		}

		facts = append(facts, model.PatientFact{
			Key:        key,
			Value:      value,
			SourceSpan: span,
		})
	}

	return facts, nil
}

// splitKeyValue recognizes "key: value" and "key - value" delimiters.
// The key side must be short enough to read as an attribute name.
func splitKeyValue(line string) (key, value string, ok bool) {
	for _, delim := range []string{":", " - "} {
		idx := strings.Index(line, delim)
		if idx <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:idx])
		v := strings.TrimSpace(line[idx+len(delim):])
		if k == "" || v == "" {
			continue
		}
		if len(strings.Fields(k)) > maxKeyTokens {
			continue
		}
		return k, v, true
	}
	return "", "", false
}

func stripBullet(line string) string {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimPrefix(trimmed, prefix)
		}
	}
	return trimmed
}
