package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRejectsXXE(t *testing.T) {
	t.Parallel()

	input := `<?xml version="1.0"?><!DOCTYPE d [<!ENTITY x SYSTEM "file:///etc/passwd">]><d>&x;</d>`

	_, err := Sanitize([]byte(input), Config{})
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, KindDoctype, sErr.Kind)
}

func TestSanitizeRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := Sanitize(nil, Config{})
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, KindSecurityViolation, sErr.Kind)
}

func TestSanitizeRejectsOversized(t *testing.T) {
	t.Parallel()

	big := []byte("<a>" + strings.Repeat("x", 100) + "</a>")

	_, err := Sanitize(big, Config{MaxSizeBytes: 10})
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, KindSecurityViolation, sErr.Kind)
}

func TestSanitizeRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := Sanitize([]byte("<a><b></a>"), Config{})
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, KindMalformedXML, sErr.Kind)
}

func TestSanitizeRejectsBomb(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("<a>")

	for i := 0; i < 20; i++ {
		sb.WriteString("&amp;")
	}

	sb.WriteString("</a>")

	_, err := Sanitize([]byte(sb.String()), Config{MaxExpansionRatio: 1})
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, KindXMLBomb, sErr.Kind)
}

func TestSanitizeStripsBOMAndControlChars(t *testing.T) {
	t.Parallel()

	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("<a>\x01hello\x07</a>")...)

	out, err := Sanitize(input, Config{})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "\x01")
	assert.NotContains(t, string(out), "\x07")
	assert.Equal(t, byte('<'), out[0])
}

func TestSanitizeRoundTrip(t *testing.T) {
	t.Parallel()

	input := []byte(`<doc><title>Hello &amp; welcome</title></doc>`)

	first, err := Sanitize(input, Config{})
	require.NoError(t, err)

	second, err := Sanitize(first, Config{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestForTextContentAndAttributeValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a &amp; b &lt;c&gt;", ForTextContent("a & b <c>"))
	assert.Equal(t, `a &amp; &quot;b&quot; &apos;c&apos;`, ForAttributeValue(`a & "b" 'c'`))
}
