package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/legaldocml-crawler/internal/sanitize"
)

func TestValidateXXEFailsSanitization(t *testing.T) {
	t.Parallel()

	input := `<?xml version="1.0"?><!DOCTYPE d [<!ENTITY x SYSTEM "file:///etc/passwd">]><d>&x;</d>`

	report := Validate([]byte(input), Config{Mode: Strict})

	assert.False(t, report.Valid)
	assert.False(t, report.SanitizationPassed)
}

func TestValidateExtractsECLIs(t *testing.T) {
	t.Parallel()

	input := `<doc><meta><identification/><publication/><lifecycle/></meta><body>ECLI:DE:BGH:2024:123</body></doc>`

	report := Validate([]byte(input), Config{Mode: Lenient})

	assert.True(t, report.SanitizationPassed)
	assert.Contains(t, report.ECLIIdentifiers, "ECLI:DE:BGH:2024:123")
}

func TestValidateStrictVsLenient(t *testing.T) {
	t.Parallel()

	input := `<doc><body/></doc>` // missing meta -> structural error

	strict := Validate([]byte(input), Config{Mode: Strict})
	assert.False(t, strict.Valid)
	assert.NotEmpty(t, strict.Errors)

	lenient := Validate([]byte(input), Config{Mode: Lenient})
	assert.True(t, lenient.Valid)
	assert.Empty(t, lenient.Errors)
	assert.NotEmpty(t, lenient.Warnings)
}

func TestQuickValidate(t *testing.T) {
	t.Parallel()

	result := QuickValidate([]byte(`<doc>ECLI:DE:BGH:2024:123</doc>`), sanitize.Config{})
	assert.NotEmpty(t, result.ECLIIdentifiers)
}
