package extraction

import (
	"fmt"
	"strings"

	"annotext/internal/domain"
)

// SystemMessage is sent as the system instruction on every extraction call.
const SystemMessage = `You are an expert in Named Entity Recognition (NER). Extract entities from the given text and return them in JSON format with the following structure: {"entities": [{"text": "entity_text", "entity_type": "PERSON", "start": 0, "end": 10, "confidence": 0.9}]}`

const jsonInstruction = `Return the results in JSON format with the following structure:
[{"text": "entity_text", "entity_type": "ENTITY_TYPE", "start": 0, "end": 10, "confidence": 0.9}]`

const entityTypeLine = "Entity types to identify: PERSON, LOCATION, DATE, TIME, ORGANIZATION, DESIGNATION, NUMBER"

var templates = map[domain.PromptType]string{
	domain.PromptTypeGeneral: `You are an expert in Named Entity Recognition (NER).
Analyze the following text and identify all named entities.
` + jsonInstruction + `

Text to analyze:
{text}

` + entityTypeLine,

	domain.PromptTypeLanguageSpecific: `You are an expert in Urdu language and Named Entity Recognition (NER).
Analyze the following Urdu text and identify all named entities, considering Urdu linguistic patterns and cultural context.
` + jsonInstruction + `

Text to analyze:
{text}

` + entityTypeLine + `

Urdu-specific considerations:
- Names may have honorifics (e.g., Hazrat, Maulana, Syed)
- Locations may include historical and religious sites
- Dates may include Islamic calendar references
- Organizations may include religious institutions and historical groups`,

	domain.PromptTypeDomainSpecific: `You are an expert in Urdu Marsiya poetry and Named Entity Recognition (NER).
Analyze the following Marsiya text and identify all named entities, considering the specific context of Karbala, Islamic history, and Marsiya poetry traditions.
` + jsonInstruction + `

Text to analyze:
{text}

` + entityTypeLine + `

Marsiya-specific considerations:
- PERSON: Prophets, Imams, historical figures, family members, companions
- LOCATION: Karbala, Mecca, Medina, historical battle sites, sacred places
- DATE: Islamic dates, significant historical events, religious occasions
- TIME: Periods, eras, historical timeframes
- ORGANIZATION: Armies, tribes, religious groups, historical institutions
- DESIGNATION: Titles, honorifics, roles in historical context
- NUMBER: Significant numerical values, dates, quantities

Focus on the religious and historical significance of entities in the context of the Battle of Karbala and related events.`,
}

// Template returns the built-in template for promptType. Unknown types,
// including custom, resolve to the domain-specific template; the second
// return value is false when that fallback was applied.
func Template(promptType domain.PromptType) (string, bool) {
	if tpl, ok := templates[promptType]; ok {
		return tpl, true
	}
	return templates[domain.PromptTypeDomainSpecific], false
}

// ValidateCustomTemplate rejects user templates that would waste an LLM call.
func ValidateCustomTemplate(tpl string) error {
	if !domain.IsValidCustomPrompt(tpl) {
		return &domain.ValidationError{
			Field:   "custom_prompt",
			Message: domain.ErrInvalidPromptTemplate.Error(),
			Err:     domain.ErrInvalidPromptTemplate,
		}
	}
	return nil
}

// RenderPrompt substitutes text into the template selected by promptType.
// custom is only consulted for domain.PromptTypeCustom and must pass
// ValidateCustomTemplate.
func RenderPrompt(promptType domain.PromptType, text, custom string) (string, error) {
	if promptType == domain.PromptTypeCustom {
		if err := ValidateCustomTemplate(custom); err != nil {
			return "", fmt.Errorf("extraction.RenderPrompt: %w", err)
		}
		return strings.ReplaceAll(custom, domain.TextPlaceholder, text), nil
	}
	tpl, _ := Template(promptType)
	return strings.Replace(tpl, domain.TextPlaceholder, text, 1), nil
}
