// Package ecli validates and extracts European Case Law Identifiers.
//
// ECLI:<CC>:<Court>:<Year>:<Ordinal> is a stable, structured string naming a
// specific judgment. This package accepts the identifier case-insensitively,
// normalizes it to upper case, and additionally accepts the bare EU court
// form "EU:C:<Year>:<Ordinal>" without the leading "ECLI:" token.
package ecli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// euCountryCodes is the ISO 3166-1 alpha-2 set of EU member states plus the
// two historical/administrative exceptions (EL for Greece, UK retained for
// pre-Brexit case law) and the EU court itself.
var euCountryCodes = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"EL": true, "HU": true, "IE": true, "IT": true, "LV": true, "LT": true,
	"LU": true, "MT": true, "NL": true, "PL": true, "PT": true, "RO": true,
	"SK": true, "SI": true, "ES": true, "SE": true, "UK": true, "EU": true,
}

// knownGermanCourts is the hard-coded set of German court codes whose
// absence triggers only a debug log, never an error.
var knownGermanCourts = map[string]bool{
	"BGH": true, "BVERFG": true, "BAG": true, "BSG": true,
	"BVERWG": true, "BFH": true, "BPATG": true, "OLG": true,
	"LG": true, "AG": true, "VG": true, "OVG": true, "FG": true,
	"SG": true, "LSG": true, "ARBG": true, "LARBG": true,
}

const (
	minYear       = 1900
	courtPattern  = `[A-Z][A-Z0-9]{0,6}`
	ordinalMax    = 25
	ordinalChars  = `[A-Z0-9.]`
	prefixECLI    = "ECLI:"
	prefixEUCourt = "EU:C:"
)

// ecliRegex matches the canonical ECLI:<CC>:<Court>:<Year>:<Ordinal> form.
var ecliRegex = regexp.MustCompile(
	`(?i)\bECLI:([A-Z]{2}):(` + courtPattern + `):(\d{4}):(` + ordinalChars + `{1,` + itoa(ordinalMax) + `})\b`,
)

// euCourtRegex matches the alternative bare EU court form.
var euCourtRegex = regexp.MustCompile(
	`(?i)\bEU:C:(\d{4}):(` + ordinalChars + `{1,` + itoa(ordinalMax) + `})\b`,
)

func itoa(n int) string { return strconv.Itoa(n) }

// Components is the parsed form of a validated ECLI string.
type Components struct {
	CountryCode string
	Court       string
	Year        int
	Ordinal     string
}

// Result is the outcome of Validate.
type Result struct {
	Normalized string
	Components Components
	Valid      bool
}

// Validate parses and validates an ECLI string. It is case-insensitive and
// normalizes the result to upper case, adding the "ECLI:" prefix when it is
// missing (except for the bare EU court form, which stays as given).
func Validate(s string) (Result, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Result{}, fmt.Errorf("ecli: empty input")
	}

	upper := strings.ToUpper(trimmed)

	if m := euCourtRegex.FindStringSubmatch(upper); m != nil && isFullMatch(euCourtRegex, upper) {
		year, err := strconv.Atoi(m[1])
		if err != nil || !yearInRange(year) {
			return Result{}, fmt.Errorf("ecli: year out of range: %s", m[1])
		}

		return Result{
			Normalized: "EU:C:" + m[1] + ":" + m[2],
			Components: Components{CountryCode: "EU", Court: "C", Year: year, Ordinal: m[2]},
			Valid:      true,
		}, nil
	}

	withPrefix := upper
	if !strings.HasPrefix(withPrefix, prefixECLI) {
		withPrefix = prefixECLI + withPrefix
	}

	m := ecliRegex.FindStringSubmatch(withPrefix)
	if m == nil || !isFullMatch(ecliRegex, withPrefix) {
		return Result{}, fmt.Errorf("ecli: does not match grammar: %q", s)
	}

	cc, court, yearStr, ordinal := m[1], m[2], m[3], m[4]

	if !euCountryCodes[cc] {
		return Result{}, fmt.Errorf("ecli: unknown country code: %s", cc)
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil || !yearInRange(year) {
		return Result{}, fmt.Errorf("ecli: year out of range: %s", yearStr)
	}

	normalized := fmt.Sprintf("ECLI:%s:%s:%s:%s", cc, court, yearStr, ordinal)

	return Result{
		Normalized: normalized,
		Components: Components{CountryCode: cc, Court: court, Year: year, Ordinal: ordinal},
		Valid:      true,
	}, nil
}

// isFullMatch reports whether re matches the entirety of s (not just a
// substring), so that trailing garbage after a valid-looking prefix is
// rejected rather than silently truncated.
func isFullMatch(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

func yearInRange(year int) bool {
	return year >= minYear && year <= time.Now().Year()+1
}

// ExtractAll scans text for every occurrence of either accepted ECLI form
// and returns the set of normalized, valid matches. Invalid-looking matches
// are silently discarded; the result is a set, so reordering or duplicating
// the input text never changes it.
func ExtractAll(text string) map[string]bool {
	found := map[string]bool{}

	for _, m := range ecliRegex.FindAllString(text, -1) {
		if r, err := Validate(m); err == nil && r.Valid {
			found[r.Normalized] = true
		}
	}

	for _, m := range euCourtRegex.FindAllString(text, -1) {
		if r, err := Validate(m); err == nil && r.Valid {
			found[r.Normalized] = true
		}
	}

	return found
}

// IsGerman reports whether a (previously validated) ECLI string's country
// code is DE.
func IsGerman(s string) bool {
	r, err := Validate(s)
	if err != nil {
		return false
	}

	return r.Components.CountryCode == "DE"
}

// KnownGermanCourt reports whether court is in the hard-coded set of known
// German court codes. Callers should log unknown codes at debug level only,
// never treat them as an error.
func KnownGermanCourt(court string) bool {
	return knownGermanCourts[strings.ToUpper(court)]
}
