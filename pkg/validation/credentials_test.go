package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCredential(t *testing.T) {
	assert.NoError(t, ValidateCredential("client ID", "AbC_123-xyz"))
	assert.ErrorContains(t, ValidateCredential("client ID", ""), "cannot be empty")
	assert.ErrorContains(t, ValidateCredential("client secret", "has space"), "whitespace")
	assert.ErrorContains(t, ValidateCredential("client secret", strings.Repeat("a", 129)), "length")
}

func TestValidateMarketplaceUserID(t *testing.T) {
	assert.NoError(t, ValidateMarketplaceUserID("123456789"))
	assert.Error(t, ValidateMarketplaceUserID(""))
	assert.Error(t, ValidateMarketplaceUserID("12a4"))
	assert.Error(t, ValidateMarketplaceUserID("-1"))
}

func TestValidateTemplate(t *testing.T) {
	got, err := ValidateTemplate("  Hello, I will answer soon.\n")
	require.NoError(t, err)
	assert.Equal(t, "Hello, I will answer soon.", got)

	_, err = ValidateTemplate("   ")
	assert.Error(t, err)

	// Length is counted in characters, not bytes.
	_, err = ValidateTemplate(strings.Repeat("я", MaxTemplateLength))
	assert.NoError(t, err)

	_, err = ValidateTemplate(strings.Repeat("я", MaxTemplateLength+1))
	assert.ErrorContains(t, err, "too long")
}
