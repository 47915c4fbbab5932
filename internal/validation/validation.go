// Package validation composes the sanitizer, ECLI validator and LegalDocML
// validator into a single call that returns one structured report, with
// strict and lenient failure modes.
package validation

import (
	"github.com/lueurxax/legaldocml-crawler/internal/ecli"
	"github.com/lueurxax/legaldocml-crawler/internal/legaldocml"
	"github.com/lueurxax/legaldocml-crawler/internal/sanitize"
)

// Mode selects how errors other than sanitization failures are treated.
type Mode int

const (
	// Strict fails the whole document on any error.
	Strict Mode = iota
	// Lenient still fails on sanitization errors, but downgrades every
	// other error to a warning.
	Lenient
)

// Config bundles the sanitizer bound configuration with the pipeline mode.
// The three Disable flags default to false, i.e. every sub-validator runs
// by default; a caller wiring an explicit "enabled" toggle from its own
// configuration surface should negate it into the corresponding Disable
// field.
type Config struct {
	Mode     Mode
	Sanitize sanitize.Config

	// DisableSchema skips folding legaldocml's deep structural warnings
	// (meta subelements, FRBR levels, identifier formats) into the
	// composed report; namespace/format detection still runs.
	DisableSchema bool
	// DisableLegalDocML skips the legaldocml structural pass entirely:
	// no namespace detection, no format classification.
	DisableLegalDocML bool
	// DisableECLI skips ECLI identifier extraction.
	DisableECLI bool
}

// Report is the composed result of running C1-C3 over one document.
type Report struct {
	Valid              bool
	SanitizationPassed bool
	StructureValid     bool
	LegalDocMLFormat   bool
	DocumentType       string
	ECLIIdentifiers    []string
	ElementCount       int
	HasSubstantialContent bool
	Validations        []string
	Warnings           []string
	Errors             []string
	OriginalSize       int
	SanitizedSize      int
}

const substantialContentThreshold = 200

// Validate runs the full pipeline: sanitize, then (if sanitization passed)
// structural validation and ECLI extraction.
func Validate(raw []byte, cfg Config) Report {
	report := Report{OriginalSize: len(raw)}

	clean, err := sanitize.Sanitize(raw, cfg.Sanitize)
	if err != nil {
		report.SanitizationPassed = false
		report.Errors = append(report.Errors, err.Error())
		report.Valid = false

		return report
	}

	report.SanitizationPassed = true
	report.SanitizedSize = len(clean)

	var structErrors []string

	if !cfg.DisableLegalDocML {
		structReport := legaldocml.Validate(clean)
		report.StructureValid = structReport.Valid
		report.LegalDocMLFormat = structReport.IsLegalDocML
		structErrors = structReport.Errors

		if !cfg.DisableSchema {
			report.Validations = append(report.Validations, structReport.Validations...)
			report.Warnings = append(report.Warnings, structReport.Warnings...)
		}

		if structReport.IsLegalDocML {
			report.DocumentType = structReport.RootElement
		}
	} else {
		report.StructureValid = true
	}

	if !cfg.DisableECLI {
		for id := range ecli.ExtractAll(string(clean)) {
			report.ECLIIdentifiers = append(report.ECLIIdentifiers, id)
		}
	}

	report.ElementCount = countElements(clean)
	report.HasSubstantialContent = len(clean) >= substantialContentThreshold

	applyMode(&report, structErrors, cfg.Mode)

	return report
}

// applyMode folds structural errors into the report according to the
// selected mode: strict treats them as fatal errors, lenient downgrades
// them to warnings (sanitization failures are already handled earlier and
// are fatal in both modes).
func applyMode(report *Report, structErrors []string, mode Mode) {
	switch mode {
	case Strict:
		report.Errors = append(report.Errors, structErrors...)
		report.Valid = len(report.Errors) == 0
	case Lenient:
		report.Warnings = append(report.Warnings, structErrors...)
		report.Valid = true
	default:
		report.Errors = append(report.Errors, structErrors...)
		report.Valid = len(report.Errors) == 0
	}
}

func countElements(xmlBytes []byte) int {
	count := 0

	for i := 0; i < len(xmlBytes); i++ {
		if xmlBytes[i] == '<' && i+1 < len(xmlBytes) && xmlBytes[i+1] != '/' && xmlBytes[i+1] != '?' && xmlBytes[i+1] != '!' {
			count++
		}
	}

	return count
}

// QuickResult is the fast-path result of QuickValidate: sanitize, parse,
// format-detect and ECLI-extract only, skipping deep LegalDocML checks.
type QuickResult struct {
	Valid            bool
	LegalDocMLFormat bool
	ECLIIdentifiers  []string
}

// QuickValidate runs sanitize -> structure parse -> format detect -> ECLI
// extract, skipping the deep LegalDocML subelement/FRBR/identifier checks.
func QuickValidate(raw []byte, sanitizeCfg sanitize.Config) QuickResult {
	clean, err := sanitize.Sanitize(raw, sanitizeCfg)
	if err != nil {
		return QuickResult{Valid: false}
	}

	structReport := legaldocml.Validate(clean)

	ids := make([]string, 0)
	for id := range ecli.ExtractAll(string(clean)) {
		ids = append(ids, id)
	}

	return QuickResult{
		Valid:            structReport.Valid,
		LegalDocMLFormat: structReport.IsLegalDocML,
		ECLIIdentifiers:  ids,
	}
}
