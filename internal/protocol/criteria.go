package protocol

import (
	"fmt"
	"regexp"
	"strings"

	"eligo/internal/model"
)

// CriteriaExtractionError signals that a criteria section header was found
// but no extractable statements exist beneath it. This must never degrade
// into a silent criteria-less report.
type CriteriaExtractionError struct {
	Section string
}

func (e *CriteriaExtractionError) Error() string {
	return fmt.Sprintf("criteria extraction failed: %q section contains no extractable statements", e.Section)
}

// Structurer segments normalized protocol text into discrete criterion
// statements, each tagged inclusion or exclusion in document order.
type Structurer struct {
	minTokens       int
	assumeInclusion bool
}

// NewStructurer creates a structurer from configuration
func NewStructurer(cfg model.StructurerConfig) *Structurer {
	minTokens := cfg.MinStatementTokens
	if minTokens <= 0 {
		minTokens = 3
	}
	return &Structurer{
		minTokens:       minTokens,
		assumeInclusion: cfg.AssumeInclusion,
	}
}

// Result is the structured criteria list plus any documented ambiguity flags
type Result struct {
	Criteria []model.Criterion
	Flags    []string
}

var (
	// A header line is numbering/bullets, an optional qualifier, the section
	// keyword, an optional "criteria", and nothing else of substance.
	headerRe = regexp.MustCompile(`(?i)^\s*(?:[0-9]+(?:\.[0-9]+)*[.)]?\s+|[ivxlc]+[.)]\s*|[#*\-•]+\s*)*(?:key\s+|main\s+|major\s+)?(inclusion|exclusion)(?:\s+criteria)?\s*[:.]?\s*$`)

	// An inline header carries its first statement on the same line, e.g.
	// "Exclusion: Age > 75 years at screening."
	inlineHeaderRe = regexp.MustCompile(`(?i)^\s*(?:[0-9]+(?:\.[0-9]+)*[.)]?\s+|[ivxlc]+[.)]\s*|[#*\-•]+\s*)*(?:key\s+|main\s+|major\s+)?(inclusion|exclusion)(?:\s+criteria)?\s*[:.]\s+(\S.*)$`)

	// Enumeration markers that delimit statement units within a section
	enumRe = regexp.MustCompile(`^\s*([0-9]+[.)]|[a-z][.)]|[ivx]+[.)]|[-*•])\s+(.+)$`)
)

type section struct {
	header   string
	category model.CriterionCategory
	lines    []string
}

// Structure splits normalized protocol text into an ordered criteria list.
// Statement units follow the protocol's own enumeration markers, falling
// back to sentence-boundary splitting when a section has no enumeration.
func (s *Structurer) Structure(text string) (*Result, error) {
	sections := splitSections(text)

	if len(sections) == 0 {
		if s.assumeInclusion {
			criteria := s.fallbackCriteria(text)
			return &Result{Criteria: criteria, Flags: []string{model.FlagFullDocumentFallback}}, nil
		}
		return &Result{Flags: []string{model.FlagNoSections}}, nil
	}

	var criteria []model.Criterion
	nextID := 1

	for _, sec := range sections {
		statements := s.sectionStatements(sec)
		if len(statements) == 0 {
			return nil, &CriteriaExtractionError{Section: sec.header}
		}
		for _, st := range statements {
			criteria = append(criteria, model.Criterion{
				ID:             nextID,
				Category:       sec.category,
				Text:           st.text,
				NormalizedText: canonicalize(st.text),
				Heuristic:      st.heuristic,
			})
			nextID++
		}
	}

	return &Result{Criteria: criteria}, nil
}

type statement struct {
	text      string
	heuristic string
}

// splitSections walks the document lines and groups them under the nearest
// preceding inclusion/exclusion header. Text before the first header is
// preamble and carries no criteria.
func splitSections(text string) []section {
	var sections []section
	var current *section

	for _, line := range strings.Split(text, "\n") {
		if m := headerRe.FindStringSubmatch(line); m != nil {
			sections = append(sections, section{
				header:   strings.TrimSpace(line),
				category: headerCategory(m[1]),
			})
			current = &sections[len(sections)-1]
			continue
		}
		// Inline header: the statement follows the keyword on the same line
		if m := inlineHeaderRe.FindStringSubmatch(line); m != nil {
			sections = append(sections, section{
				header:   strings.TrimSpace(line),
				category: headerCategory(m[1]),
				lines:    []string{m[2]},
			})
			current = &sections[len(sections)-1]
			continue
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}

	return sections
}

func headerCategory(keyword string) model.CriterionCategory {
	if strings.EqualFold(keyword, "exclusion") {
		return model.CategoryExclusion
	}
	return model.CategoryInclusion
}

// sectionStatements splits a section body into statement units
func (s *Structurer) sectionStatements(sec section) []statement {
	var statements []statement
	var current *statement
	enumerated := false

	for _, line := range sec.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			current = nil
			continue
		}

		if m := enumRe.FindStringSubmatch(trimmed); m != nil {
			enumerated = true
			statements = append(statements, statement{
				text:      strings.TrimSpace(m[2]),
				heuristic: "enumeration:" + m[1],
			})
			current = &statements[len(statements)-1]
			continue
		}

		// Continuation of the previous enumerated statement
		if current != nil {
			current.text += " " + trimmed
		}
	}

	if !enumerated {
		body := strings.TrimSpace(strings.Join(sec.lines, " "))
		statements = nil
		for _, sentence := range splitSentences(body) {
			statements = append(statements, statement{text: sentence, heuristic: "sentence"})
		}
	}

	// Statements under the minimum token count are noise
	kept := statements[:0]
	for _, st := range statements {
		if len(strings.Fields(st.text)) >= s.minTokens {
			kept = append(kept, st)
		}
	}
	return kept
}

// fallbackCriteria treats sentence units of the whole document as inclusion
// criteria. Only reachable when the full-document mode is explicitly enabled.
func (s *Structurer) fallbackCriteria(text string) []model.Criterion {
	body := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))

	var criteria []model.Criterion
	nextID := 1
	for _, sentence := range splitSentences(body) {
		if len(strings.Fields(sentence)) < s.minTokens {
			continue
		}
		criteria = append(criteria, model.Criterion{
			ID:             nextID,
			Category:       model.CategoryInclusion,
			Text:           sentence,
			NormalizedText: canonicalize(sentence),
			Heuristic:      "fallback:sentence",
		})
		nextID++
	}
	return criteria
}

// splitSentences splits text on sentence terminators (simple heuristic)
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		sentence := strings.TrimSpace(current.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == ';' || r == '!' || r == '?' {
			// Look ahead to avoid splitting on decimals and abbreviations
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				flush()
			}
		}
	}
	flush()

	return sentences
}

// canonicalize produces the normalized form used for prompting dedupe and
// cache keys: lowercased, collapsed whitespace, trailing punctuation dropped
func canonicalize(text string) string {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	return strings.TrimRight(text, ".,;:")
}
