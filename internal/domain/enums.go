package domain

import "strings"

// JobStatus represents the lifecycle of a processing job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusRetrying  JobStatus = "retrying"
)

// NonTerminalJobStatuses lists statuses for which a job is still considered active.
var NonTerminalJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusQueued,
	JobStatusRunning,
	JobStatusPaused,
	JobStatusRetrying,
}

// JobType enumerates the kinds of background work.
type JobType string

const (
	JobTypeEntityExtraction JobType = "entity_extraction"
	JobTypeLLMProcessing    JobType = "llm_processing"
	JobTypeBulkExtraction   JobType = "bulk_extraction"
	JobTypeConnectionTest   JobType = "connection_test"
	JobTypeCleanup          JobType = "cleanup"
	JobTypeCustom           JobType = "custom"
)

// ValidJobTypes is the set of accepted job types.
var ValidJobTypes = map[JobType]bool{
	JobTypeEntityExtraction: true,
	JobTypeLLMProcessing:    true,
	JobTypeBulkExtraction:   true,
	JobTypeConnectionTest:   true,
	JobTypeCleanup:          true,
	JobTypeCustom:           true,
}

// PromptType selects the instruction template injected into an extraction call.
type PromptType string

const (
	PromptTypeGeneral          PromptType = "general"
	PromptTypeLanguageSpecific PromptType = "language_specific"
	PromptTypeDomainSpecific   PromptType = "domain_specific"
	PromptTypeCustom           PromptType = "custom"
)

// NormalizePromptType maps legacy aliases onto the canonical prompt types.
// Unknown values are returned unchanged; template selection handles the fallback.
func NormalizePromptType(s string) PromptType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "urdu":
		return PromptTypeLanguageSpecific
	case "marsiya":
		return PromptTypeDomainSpecific
	default:
		return PromptType(strings.ToLower(strings.TrimSpace(s)))
	}
}

// EntitySource records how an entity came to exist.
type EntitySource string

const (
	EntitySourceLLM        EntitySource = "llm"
	EntitySourceManual     EntitySource = "manual"
	EntitySourceImport     EntitySource = "import"
	EntitySourceCorrection EntitySource = "correction"
)

// DocumentProcessingStatus tracks extraction progress on a document.
type DocumentProcessingStatus string

const (
	DocumentStatusPending    DocumentProcessingStatus = "pending"
	DocumentStatusProcessing DocumentProcessingStatus = "processing"
	DocumentStatusCompleted  DocumentProcessingStatus = "completed"
	DocumentStatusFailed     DocumentProcessingStatus = "failed"
)

// Provider names an LLM vendor integration.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderLocal     Provider = "local"
	ProviderCustom    Provider = "custom"
)

// DefaultEntityTypes are seeded into the entity type registry.
var DefaultEntityTypes = []string{
	"PERSON",
	"LOCATION",
	"DATE",
	"TIME",
	"ORGANIZATION",
	"DESIGNATION",
	"NUMBER",
}
