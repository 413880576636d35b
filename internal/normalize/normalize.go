package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// MinDocumentLength is the threshold below which a protocol is treated as
// unextractable rather than merely short.
const MinDocumentLength = 20

// MalformedDocumentError signals that the protocol text is empty or too
// short to plausibly contain criteria. Surfaced to the caller instead of
// silently producing a criteria-less report.
type MalformedDocumentError struct {
	Length int
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("protocol document malformed: %d characters after normalization (minimum %d); text extraction likely failed", e.Length, MinDocumentLength)
}

var htmlMarkerRe = regexp.MustCompile(`(?i)<(!doctype\s+html|html|head|body|div|p|br|ul|ol|li|table)[\s/>]`)

// Document converts raw protocol text into its canonical plain-text form:
// LF line endings, collapsed horizontal whitespace, stripped non-printable
// characters. HTML input is reduced to visible text first. Line structure
// is preserved because downstream segmentation keys off enumeration lines.
func Document(raw string) (string, error) {
	text := raw
	if htmlMarkerRe.MatchString(text) {
		if visible, err := visibleText(text); err == nil {
			text = visible
		}
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = collapseSpaces(stripNonPrintable(line))
	}
	text = strings.Join(lines, "\n")

	// Collapse runs of blank lines to a single blank line
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	text = strings.TrimSpace(text)

	if len(text) < MinDocumentLength {
		return "", &MalformedDocumentError{Length: len(text)}
	}

	return text, nil
}

// visibleText extracts text nodes from HTML, skipping scripts/styles.
// Block-level elements become line breaks so enumerated criteria stay on
// separate lines.
func visibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			case "p", "div", "li", "br", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				buf.WriteString("\n")
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return buf.String(), nil
}

// stripNonPrintable removes control and other non-printable runes, keeping tabs
func stripNonPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
}

// collapseSpaces collapses runs of spaces to a single space and trims the line
func collapseSpaces(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if r == ' ' {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteRune(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
