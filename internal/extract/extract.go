// Package extract pulls structured legal-document fields out of the
// portal's HTML/XML payloads: the metadata table (court, case number,
// decision date, ECLI, document type, norms), the title, the body
// sections (Leitsatz, Tenor, Gruende) and a capped full-text rendering.
//
// Extraction never throws on bad input. A document that fails to parse,
// or one missing some of the fields below, simply comes back with those
// fields left at their zero value (except Court, which falls back to
// "UNKNOWN" whenever a document parses); callers treat extraction as
// best-effort, exactly as they do for the teacher's own web content
// extractor.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// knownCourts lists the court tokens recognized in a raw court label; the
// first one found as a substring (case-sensitive) wins.
var knownCourts = []string{"BVerfG", "BGH", "BAG", "BSG", "BVerwG", "BFH", "BPatG"}

// metadataLabels is the set of lower-cased metadata-table labels that
// extractMetadataTable recognizes.
var metadataLabels = map[string]bool{
	"gericht":           true,
	"entscheidungsdatum": true,
	"aktenzeichen":       true,
	"ecli":               true,
	"dokumenttyp":        true,
	"normen":             true,
}

const fullTextCap = 50_000

var whitespaceRegex = regexp.MustCompile(`\s+`)

// ExtractedContent is the structured result of Extract.
type ExtractedContent struct {
	Title        string
	Court        string
	DecisionDate time.Time
	CaseNumber   string
	ECLI         string
	DocumentType string
	Norms        string
	Subject      string
	FullText     string
	Leitsatz     string
	Tenor        string
	Gruende      string
}

// Extract parses an HTML or XML document body and pulls out the fields
// above. It never returns an error: on any parse failure, it returns a
// zero-value ExtractedContent.
func Extract(content []byte) ExtractedContent {
	var result ExtractedContent

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return result
	}

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())

	rawCourt, rawDate := extractMetadataTable(doc, &result)
	result.Court = normalizeCourt(rawCourt)
	result.DecisionDate = parseGermanDate(rawDate)

	result.Subject = extractSubject(doc)
	result.FullText = capFullText(normalizeWhitespace(doc.Text()))

	result.Leitsatz = extractSection(doc, "leitsatz")
	result.Tenor = extractSection(doc, "tenor")
	result.Gruende = extractSection(doc, "gründe", "gruende", "entscheidungsgründe")

	return result
}

// extractMetadataTable walks every table row in the document, matching
// the first cell (case-insensitively, trimmed of trailing colons) against
// the known metadata labels, and filling in the corresponding field from
// the second cell. It returns the raw court and decision-date strings so
// the caller can apply normalization/parsing separately.
func extractMetadataTable(doc *goquery.Document, result *ExtractedContent) (rawCourt, rawDate string) {
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}

		label := strings.ToLower(strings.TrimSpace(cells.First().Text()))
		label = strings.TrimSuffix(label, ":")

		if !metadataLabels[label] {
			return
		}

		value := strings.TrimSpace(cells.Eq(1).Text())
		if value == "" {
			return
		}

		switch label {
		case "gericht":
			rawCourt = value
		case "entscheidungsdatum":
			rawDate = value
		case "aktenzeichen":
			result.CaseNumber = value
		case "ecli":
			result.ECLI = value
		case "dokumenttyp":
			result.DocumentType = value
		case "normen":
			result.Norms = value
		}
	})

	return rawCourt, rawDate
}

// normalizeCourt returns the recognized court token contained in raw, or
// "UNKNOWN" if none of the known tokens appear.
func normalizeCourt(raw string) string {
	for _, court := range knownCourts {
		if strings.Contains(raw, court) {
			return court
		}
	}

	return "UNKNOWN"
}

// parseGermanDate parses a dd.MM.yyyy date. It falls back to dateparse's
// lenient parser for any other recognizable format, and returns the zero
// time on failure.
func parseGermanDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	if t, err := time.Parse("02.01.2006", raw); err == nil {
		return t
	}

	if t, err := dateparse.ParseAny(raw); err == nil {
		return t
	}

	return time.Time{}
}

// extractSubject returns the text of the first document layout title
// paragraph.
func extractSubject(doc *goquery.Document) string {
	sel := doc.Find(".docLayoutTitle p, .doc-layout-title p").First()
	if sel.Length() == 0 {
		sel = doc.Find("h1").First()
	}

	return strings.TrimSpace(sel.Text())
}

// extractSection finds a heading whose text matches (case-insensitively)
// one of names and returns the text of the first following sibling that is
// a div, p or dd element.
func extractSection(doc *goquery.Document, names ...string) string {
	var text string

	doc.Find("h1, h2, h3, h4, dt, strong").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		headingText := strings.ToLower(strings.TrimSpace(heading.Text()))
		headingText = strings.TrimSuffix(headingText, ":")

		for _, name := range names {
			if headingText != strings.ToLower(name) {
				continue
			}

			next := heading.Next()
			for next.Length() > 0 && !next.Is("div, p, dd") {
				next = next.Next()
			}

			if next.Length() > 0 {
				text = strings.TrimSpace(next.Text())
				return false
			}
		}

		return true
	})

	return text
}

// normalizeWhitespace collapses runs of whitespace into single spaces.
// goquery already strips tags via Text(), so this only needs to tidy up
// the remaining runs of spaces/newlines left behind by block elements.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// capFullText truncates s to fullTextCap runes, appending an ellipsis
// when truncated.
func capFullText(s string) string {
	runes := []rune(s)
	if len(runes) <= fullTextCap {
		return s
	}

	return string(runes[:fullTextCap]) + "…"
}
