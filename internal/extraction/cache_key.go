package extraction

import (
	"fmt"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"annotext/internal/domain"
)

// CacheKey derives the extraction cache key. The text digest is xxhash64,
// which is not collision resistant: a collision can only return another
// text's entities for a single TTL window, and the rune length in the key
// narrows that further. The text is hashed exactly as stored because cached
// offsets refer to it.
func CacheKey(text string, promptType domain.PromptType, modelID uuid.UUID, cfg *domain.LLMProcessingConfig) string {
	key := fmt.Sprintf("ner:v1:%016x:%d:%s:%s:%d:%d",
		xxhash.Sum64String(text),
		utf8.RuneCountInString(text),
		promptType,
		modelID,
		cfg.ChunkSize,
		cfg.OverlapSize,
	)
	if promptType == domain.PromptTypeCustom {
		key += fmt.Sprintf(":%016x", xxhash.Sum64String(cfg.CustomPrompt))
	}
	return key
}
