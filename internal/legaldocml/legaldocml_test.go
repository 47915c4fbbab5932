package legaldocml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCompleteDocument(t *testing.T) {
	t.Parallel()

	xmlDoc := `<?xml version="1.0"?>
<akomaNtoso xmlns="http://docs.oasis-open.org/legaldocml/ns/akn/3.0">
  <judgment>
    <meta>
      <identification>
        <FRBRWork/>
        <FRBRExpression/>
        <FRBRManifestation/>
      </identification>
      <publication/>
      <lifecycle/>
    </meta>
    <body>
      <courtType>BGH</courtType>
      <docketNumber>123</docketNumber>
    </body>
  </judgment>
</akomaNtoso>`

	report := Validate([]byte(xmlDoc))

	assert.True(t, report.Valid)
	assert.True(t, report.IsLegalDocML)
	assert.Empty(t, report.Errors)
	assert.Contains(t, report.Validations, "found German field: courtType")
}

func TestValidateMissingNamespaceIsError(t *testing.T) {
	t.Parallel()

	report := Validate([]byte(`<doc><meta><identification/></meta></doc>`))

	assert.False(t, report.Valid)
	assert.False(t, report.IsLegalDocML)
	assert.NotEmpty(t, report.Errors)
}

func TestValidateMissingMetaIsError(t *testing.T) {
	t.Parallel()

	report := Validate([]byte(`<akomaNtoso><body/></akomaNtoso>`))

	assert.False(t, report.Valid)
	assert.Contains(t, report.Errors[0], "meta")
}

func TestValidateUnexpectedRootIsWarningOnly(t *testing.T) {
	t.Parallel()

	xmlDoc := `<weirdroot xmlns="http://docs.oasis-open.org/legaldocml/ns/akn/3.0">` +
		`<meta><identification/><publication/><lifecycle/><FRBRWork/><FRBRExpression/><FRBRManifestation/></meta>` +
		`<body/></weirdroot>`

	report := Validate([]byte(xmlDoc))

	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
	assert.Contains(t, report.Warnings, "unexpected root element: weirdroot")
}

func TestValidateMalformedInputDoesNotPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		report := Validate([]byte(`not xml at all`))
		assert.False(t, report.Valid)
	})
}
