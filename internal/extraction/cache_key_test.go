package extraction_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"annotext/internal/domain"
	"annotext/internal/extraction"
)

func TestCacheKey(t *testing.T) {
	model := uuid.New()
	cfg := domain.DefaultProcessingConfig()
	base := extraction.CacheKey("Karbala", domain.PromptTypeGeneral, model, &cfg)

	assert.Equal(t, base, extraction.CacheKey("Karbala", domain.PromptTypeGeneral, model, &cfg))
	assert.NotEqual(t, base, extraction.CacheKey("Karbala ", domain.PromptTypeGeneral, model, &cfg))
	assert.NotEqual(t, base, extraction.CacheKey("Karbala", domain.PromptTypeDomainSpecific, model, &cfg))
	assert.NotEqual(t, base, extraction.CacheKey("Karbala", domain.PromptTypeGeneral, uuid.New(), &cfg))

	chunked := cfg
	chunked.ChunkSize = 500
	assert.NotEqual(t, base, extraction.CacheKey("Karbala", domain.PromptTypeGeneral, model, &chunked))
}

func TestCacheKey_CustomPromptIncluded(t *testing.T) {
	model := uuid.New()
	a := domain.DefaultProcessingConfig()
	a.CustomPrompt = validCustom
	b := a
	b.CustomPrompt = validCustom + " Be precise."

	assert.NotEqual(t,
		extraction.CacheKey("x", domain.PromptTypeCustom, model, &a),
		extraction.CacheKey("x", domain.PromptTypeCustom, model, &b))
	assert.Equal(t,
		extraction.CacheKey("x", domain.PromptTypeGeneral, model, &a),
		extraction.CacheKey("x", domain.PromptTypeGeneral, model, &b))
}
