// Package legaldocml detects and structurally validates the LegalDocML.de
// profile of Akoma Ntoso: namespace presence, required metadata
// subelements, FRBR bibliographic levels, identifier formats, and
// German-judgment-specific probes.
package legaldocml

import (
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strings"
)

var (
	knownRoots = map[string]bool{
		"akomantoso": true, "act": true, "bill": true, "doc": true,
		"judgment": true, "portion": true, "documentcollection": true,
	}

	germanJudgmentHints = []string{"judgment", "urteil", "beschluss", "entscheidung"}

	eIDRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*(\.[a-zA-Z0-9_-]+)*$`)
	wIDRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	guidRegex = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	germanProbeFields = []string{"courtType", "docketNumber", "decisionDate", "judges", "procedure"}
)

// Report is the outcome of Validate.
type Report struct {
	Valid       bool
	RootElement string
	IsLegalDocML bool
	Errors      []string
	Warnings    []string
	Validations []string
}

// addError records an error; Valid becomes false once any are present.
func (r *Report) addError(msg string) { r.Errors = append(r.Errors, msg) }
func (r *Report) addWarning(msg string) { r.Warnings = append(r.Warnings, msg) }
func (r *Report) addValidation(msg string) { r.Validations = append(r.Validations, msg) }

// element is a minimal structural view of one XML element built by walking
// decoder tokens; it mirrors the teacher's own style of decoding sitemap XML
// into small structs rather than pulling in a schema-validation library.
type element struct {
	name     string
	attrs    map[string]string
	children []*element
	text     string
}

func localName(n xml.Name) string {
	if i := strings.IndexByte(n.Local, ':'); i >= 0 {
		return strings.ToLower(n.Local[i+1:])
	}

	return strings.ToLower(n.Local)
}

// parseTree walks the token stream into a tree. It is tolerant: malformed
// input yields whatever was parsed before the first error, never a panic.
func parseTree(data []byte) *element {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var root *element

	stack := []*element{}

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: localName(t.Name), attrs: map[string]string{}}
			for _, a := range t.Attr {
				el.attrs[localName(a.Name)] = a.Value
			}

			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			} else if root == nil {
				root = el
			}

			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

			if len(stack) == 0 && root == nil {
				break
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}
		}

		if err == io.EOF {
			break
		}
	}

	return root
}

func (e *element) find(name string) *element {
	if e == nil {
		return nil
	}

	if e.name == name {
		return e
	}

	for _, c := range e.children {
		if found := c.find(name); found != nil {
			return found
		}
	}

	return nil
}

func (e *element) findChild(name string) *element {
	if e == nil {
		return nil
	}

	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}

	return nil
}

// Validate detects LegalDocML/Akoma Ntoso structure in raw XML and produces
// a Report. It never panics on malformed input; a parse failure simply
// yields a root-level error.
func Validate(xmlBytes []byte) Report {
	report := Report{}

	isLegalDocML := detectNamespace(xmlBytes)
	report.IsLegalDocML = isLegalDocML

	root := parseTree(xmlBytes)
	if root == nil {
		report.addError("document could not be parsed")
		report.Valid = false

		return report
	}

	report.RootElement = root.name

	if !isLegalDocML {
		report.addError("no LegalDocML/Akoma Ntoso namespace found on root element")
	}

	if !knownRoots[root.name] {
		report.addWarning("unexpected root element: " + root.name)
	}

	meta := root.find("meta")
	if meta == nil {
		report.addError("meta element is absent")
	} else {
		checkMetaSubelements(meta, &report)
		checkFRBRLevels(meta, &report)
	}

	if root.find("body") == nil {
		report.addWarning("missing structural element: body")
	}

	checkIdentifiers(root, &report)

	if looksLikeGermanJudgment(root) {
		probeGermanFields(root, &report)
	}

	report.Valid = len(report.Errors) == 0

	return report
}

func checkMetaSubelements(meta *element, report *Report) {
	for _, sub := range []string{"identification", "publication", "lifecycle"} {
		if meta.findChild(sub) == nil {
			report.addWarning("missing meta subelement: " + sub)
		}
	}
}

func checkFRBRLevels(meta *element, report *Report) {
	for _, level := range []string{"FRBRWork", "FRBRExpression", "FRBRManifestation"} {
		if meta.find(strings.ToLower(level)) == nil {
			report.addWarning("missing FRBR level: " + level)
		}
	}
}

func checkIdentifiers(root *element, report *Report) {
	walkIdentifiers(root, report)
}

func walkIdentifiers(e *element, report *Report) {
	if e == nil {
		return
	}

	if eID, ok := e.attrs["eid"]; ok && !eIDRegex.MatchString(eID) {
		report.addWarning("malformed eId: " + eID)
	}

	if wID, ok := e.attrs["wid"]; ok && !wIDRegex.MatchString(wID) {
		report.addWarning("malformed wId: " + wID)
	}

	if guid, ok := e.attrs["guid"]; ok && !guidRegex.MatchString(guid) {
		report.addWarning("malformed GUID: " + guid)
	}

	for _, c := range e.children {
		walkIdentifiers(c, report)
	}
}

func looksLikeGermanJudgment(root *element) bool {
	name := strings.ToLower(root.name)
	for _, hint := range germanJudgmentHints {
		if strings.Contains(name, hint) {
			return true
		}
	}

	return root.find("judgment") != nil
}

func probeGermanFields(root *element, report *Report) {
	for _, field := range germanProbeFields {
		lname := strings.ToLower(field)
		if root.find(lname) != nil {
			report.addValidation("found German field: " + field)
		}
	}
}

// detectNamespace reports whether the raw bytes mention the Akoma
// Ntoso/LegalDocML namespace URI or the "akomaNtoso"/"akn:" tokens, without
// requiring a successful structural parse.
func detectNamespace(xmlBytes []byte) bool {
	s := strings.ToLower(string(xmlBytes))
	return strings.Contains(s, "akomantoso") ||
		strings.Contains(s, "akn:") ||
		strings.Contains(s, "legaldocml")
}
