package oracle

import (
	"fmt"
	"strconv"
	"strings"

	"eligo/internal/model"
)

// adjudication is the parsed form of one per-criterion oracle response
type adjudication struct {
	Status     model.VerdictStatus
	Confidence model.Confidence
	Rationale  string
}

// parseAdjudication parses an oracle response against the adjudication
// output contract. Strict: a missing field, an unrecognized status value,
// or an empty rationale is a contract violation, never inferred around.
func parseAdjudication(raw string) (*adjudication, error) {
	var (
		statusLine     string
		confidenceLine string
		rationaleLine  string
	)

	for _, line := range strings.Split(stripFences(raw), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case hasFieldPrefix(line, "STATUS"):
			statusLine = fieldValue(line)
		case hasFieldPrefix(line, "CONFIDENCE"):
			confidenceLine = fieldValue(line)
		case hasFieldPrefix(line, "RATIONALE"):
			rationaleLine = fieldValue(line)
		}
	}

	if statusLine == "" {
		return nil, &ResponseParseError{Reason: "missing STATUS field", Raw: raw}
	}

	status, ok := parseStatus(statusLine)
	if !ok {
		return nil, &ResponseParseError{Reason: fmt.Sprintf("unrecognized status value %q", statusLine), Raw: raw}
	}

	confidence, ok := parseConfidence(confidenceLine)
	if !ok {
		return nil, &ResponseParseError{Reason: fmt.Sprintf("unrecognized confidence value %q", confidenceLine), Raw: raw}
	}

	if rationaleLine == "" {
		return nil, &ResponseParseError{Reason: "empty rationale", Raw: raw}
	}

	return &adjudication{
		Status:     status,
		Confidence: confidence,
		Rationale:  rationaleLine,
	}, nil
}

// triggerFinding is one parsed silent-trigger line
type triggerFinding struct {
	FactIndex   int  // 1-based fact number from the prompt
	CriterionID *int // nil when the oracle answered "none"
	Rationale   string
}

// parseTriggers parses the trigger-pass response. Either the exact
// "TRIGGERS: NONE" sentinel or one well-formed TRIGGER line per finding.
func parseTriggers(raw string, factCount, criterionCount int) ([]triggerFinding, error) {
	cleaned := stripFences(raw)

	var findings []triggerFinding
	sawContent := false

	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if hasFieldPrefix(line, "TRIGGERS") {
			if strings.EqualFold(fieldValue(line), "none") {
				if len(findings) > 0 {
					return nil, &ResponseParseError{Reason: "response mixes TRIGGERS: NONE with TRIGGER lines", Raw: raw}
				}
				return nil, nil
			}
			return nil, &ResponseParseError{Reason: fmt.Sprintf("unrecognized TRIGGERS value %q", fieldValue(line)), Raw: raw}
		}

		if !hasFieldPrefix(line, "TRIGGER") {
			sawContent = true
			continue
		}

		finding, err := parseTriggerLine(fieldValue(line), factCount, criterionCount)
		if err != nil {
			return nil, &ResponseParseError{Reason: err.Error(), Raw: raw}
		}
		findings = append(findings, *finding)
	}

	if len(findings) == 0 {
		reason := "missing TRIGGERS: NONE sentinel"
		if sawContent {
			reason = "no TRIGGER lines or TRIGGERS: NONE sentinel found"
		}
		return nil, &ResponseParseError{Reason: reason, Raw: raw}
	}

	return findings, nil
}

// parseTriggerLine parses "fact=<n> | criterion=<id or none> | rationale=<text>"
func parseTriggerLine(body string, factCount, criterionCount int) (*triggerFinding, error) {
	finding := &triggerFinding{FactIndex: -1}
	sawRationale := false

	for _, part := range strings.SplitN(body, "|", 3) {
		part = strings.TrimSpace(part)
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("malformed trigger segment %q", part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "fact":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > factCount {
				return nil, fmt.Errorf("trigger references invalid fact number %q", value)
			}
			finding.FactIndex = n
		case "criterion":
			if strings.EqualFold(value, "none") {
				finding.CriterionID = nil
				continue
			}
			id, err := strconv.Atoi(value)
			if err != nil || id < 1 || id > criterionCount {
				return nil, fmt.Errorf("trigger references invalid criterion id %q", value)
			}
			finding.CriterionID = &id
		case "rationale":
			if value == "" {
				return nil, fmt.Errorf("trigger has empty rationale")
			}
			finding.Rationale = value
			sawRationale = true
		default:
			return nil, fmt.Errorf("unknown trigger segment %q", key)
		}
	}

	if finding.FactIndex < 1 {
		return nil, fmt.Errorf("trigger missing fact number")
	}
	if !sawRationale {
		return nil, fmt.Errorf("trigger missing rationale")
	}

	return finding, nil
}

func parseStatus(value string) (model.VerdictStatus, bool) {
	for _, s := range []model.VerdictStatus{model.StatusMet, model.StatusViolated, model.StatusUndetermined} {
		if strings.EqualFold(value, string(s)) {
			return s, true
		}
	}
	return "", false
}

func parseConfidence(value string) (model.Confidence, bool) {
	for _, c := range []model.Confidence{model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh} {
		if strings.EqualFold(value, string(c)) {
			return c, true
		}
	}
	return "", false
}

// hasFieldPrefix reports whether the line starts with "<field>:" (case-insensitive)
func hasFieldPrefix(line, field string) bool {
	if len(line) <= len(field) {
		return false
	}
	return strings.EqualFold(line[:len(field)], field) && line[len(field)] == ':'
}

// fieldValue returns the text after the first colon, trimmed
func fieldValue(line string) string {
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value)
}

// stripFences removes markdown code fences some models wrap output in
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```text")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}
