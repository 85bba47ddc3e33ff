package extraction_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotext/internal/domain"
	"annotext/internal/extraction"
)

const validCustom = "Find every named person and place in this passage and answer with JSON: {text}"

func TestRenderPrompt_BuiltIn(t *testing.T) {
	for _, pt := range []domain.PromptType{
		domain.PromptTypeGeneral,
		domain.PromptTypeLanguageSpecific,
		domain.PromptTypeDomainSpecific,
	} {
		t.Run(string(pt), func(t *testing.T) {
			out, err := extraction.RenderPrompt(pt, "TEXT-UNDER-TEST", "")
			require.NoError(t, err)
			assert.Equal(t, 1, strings.Count(out, "TEXT-UNDER-TEST"))
			assert.NotContains(t, out, domain.TextPlaceholder)
		})
	}
}

func TestTemplate_UnknownFallsBack(t *testing.T) {
	tpl, ok := extraction.Template("poetry")
	want, _ := extraction.Template(domain.PromptTypeDomainSpecific)

	assert.False(t, ok)
	assert.Equal(t, want, tpl)
}

func TestRenderPrompt_Custom(t *testing.T) {
	out, err := extraction.RenderPrompt(domain.PromptTypeCustom, "abc", validCustom)

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "abc"))
}

func TestRenderPrompt_CustomInvalid(t *testing.T) {
	_, err := extraction.RenderPrompt(domain.PromptTypeCustom, "abc", "too short {text}")

	assert.ErrorIs(t, err, domain.ErrInvalidPromptTemplate)
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = extraction.ValidateCustomTemplate(strings.Repeat("no placeholder ", 10))
	assert.ErrorIs(t, err, domain.ErrInvalidPromptTemplate)
}
