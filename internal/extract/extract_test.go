package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const sampleDoc = `<html><head><title>BGH, Urteil vom 12.03.2024</title></head>
<body>
<div class="docLayoutTitle"><p>Haftung des Frachtf&uuml;hrers bei grober Fahrl&auml;ssigkeit</p></div>
<table>
<tr><td>Gericht:</td><td>BGH 3. Zivilsenat</td></tr>
<tr><td>Entscheidungsdatum:</td><td>12.03.2024</td></tr>
<tr><td>Aktenzeichen:</td><td>III ZR 45/23</td></tr>
<tr><td>ECLI:</td><td>ECLI:DE:BGH:2024:120324UIIIZR45.23.0</td></tr>
<tr><td>Dokumenttyp:</td><td>Urteil</td></tr>
<tr><td>Normen:</td><td>&sect; 435 HGB</td></tr>
</table>
<h2>Leitsatz</h2>
<div>Der Frachtf&uuml;hrer haftet nach Ma&szlig;gabe des &sect; 435 HGB.</div>
<h2>Tenor</h2>
<div>Die Revision wird zur&uuml;ckgewiesen.</div>
<h2>Gr&uuml;nde</h2>
<div>I. Der Kl&auml;ger begehrt Schadensersatz.</div>
</body></html>`

func TestExtractFullDocument(t *testing.T) {
	t.Parallel()

	result := Extract([]byte(sampleDoc))

	assert.Equal(t, "BGH, Urteil vom 12.03.2024", result.Title)
	assert.Equal(t, "BGH", result.Court)
	assert.Equal(t, "III ZR 45/23", result.CaseNumber)
	assert.Equal(t, "ECLI:DE:BGH:2024:120324UIIIZR45.23.0", result.ECLI)
	assert.Equal(t, "Urteil", result.DocumentType)
	assert.Contains(t, result.Norms, "435 HGB")
	assert.True(t, result.DecisionDate.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, result.Subject, "Haftung des Frachtführers")
	assert.Contains(t, result.Leitsatz, "Frachtführer haftet")
	assert.Contains(t, result.Tenor, "Revision wird zurückgewiesen")
	assert.Contains(t, result.Gruende, "Kläger begehrt Schadensersatz")
	assert.Contains(t, result.FullText, "BGH")
}

func TestExtractCourtNormalizationUnknown(t *testing.T) {
	t.Parallel()

	doc := `<html><body><table><tr><td>Gericht:</td><td>Amtsgericht Musterstadt</td></tr></table></body></html>`

	result := Extract([]byte(doc))

	assert.Equal(t, "UNKNOWN", result.Court)
}

func TestExtractGermanDateParsing(t *testing.T) {
	t.Parallel()

	doc := `<html><body><table><tr><td>Entscheidungsdatum:</td><td>01.01.2020</td></tr></table></body></html>`

	result := Extract([]byte(doc))

	assert.True(t, result.DecisionDate.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestExtractMissingFieldsStayZero(t *testing.T) {
	t.Parallel()

	result := Extract([]byte(`<html><body><p>no metadata here</p></body></html>`))

	assert.Empty(t, result.CaseNumber)
	assert.Empty(t, result.ECLI)
	assert.True(t, result.DecisionDate.IsZero())
	assert.Equal(t, "UNKNOWN", result.Court)
}

func TestExtractNeverPanicsOnMalformedInput(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		Extract([]byte("<html><body><table><tr><td>unterminated"))
	})

	assert.NotPanics(t, func() {
		Extract([]byte("not html at all \x00\x01"))
	})
}

func TestFullTextCappedAtLimit(t *testing.T) {
	t.Parallel()

	long := make([]byte, 0, fullTextCap*3)
	long = append(long, []byte("<html><body><p>")...)

	for i := 0; i < fullTextCap*2; i++ {
		long = append(long, 'a')
	}

	long = append(long, []byte("</p></body></html>")...)

	result := Extract(long)

	runes := []rune(result.FullText)
	assert.LessOrEqual(t, len(runes), fullTextCap+1)
	assert.Contains(t, result.FullText, "…")
}
