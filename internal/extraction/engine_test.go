package extraction_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"annotext/internal/cache/memory"
	"annotext/internal/domain"
	"annotext/internal/extraction"
	"annotext/internal/port"
	"annotext/mocks"
)

// nameClient answers with every known name that appears in the prompt.
type nameClient struct {
	mu    sync.Mutex
	calls int
	names map[string]string
	err   error
	reply string
}

func (c *nameClient) Complete(_ context.Context, req port.CompletionRequest) (*port.Completion, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.reply != "" {
		return &port.Completion{Text: c.reply, PromptTokens: 10, CompletionTokens: 5}, nil
	}
	var items []string
	for name, typ := range c.names {
		if strings.Contains(req.Prompt, name) {
			items = append(items, fmt.Sprintf(`{"text": %q, "entity_type": %q, "confidence": 0.9}`, name, typ))
		}
	}
	return &port.Completion{
		Text:             `{"entities": [` + strings.Join(items, ",") + `]}`,
		PromptTokens:     100,
		CompletionTokens: 20,
	}, nil
}

func (c *nameClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type usageLog struct {
	mu     sync.Mutex
	events []domain.UsageEvent
}

func (u *usageLog) Record(_ context.Context, ev domain.UsageEvent) {
	u.mu.Lock()
	u.events = append(u.events, ev)
	u.mu.Unlock()
}

func (u *usageLog) count(kind domain.UsageKind) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, ev := range u.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func testModel() *domain.LLMModel {
	return &domain.LLMModel{ID: uuid.New(), Provider: domain.ProviderOpenAI, ModelName: "gpt-test", CostPer1KTokens: 0.002}
}

func newRequest(text string, client port.CompletionClient, model *domain.LLMModel, chunk, overlap int) extraction.ExtractRequest {
	cfg := domain.DefaultProcessingConfig()
	cfg.ChunkSize = chunk
	cfg.OverlapSize = overlap
	return extraction.ExtractRequest{
		Text:       text,
		PromptType: domain.PromptTypeGeneral,
		Model:      model,
		Config:     cfg,
		Client:     client,
		Types:      extraction.NewTypeSet(domain.DefaultEntityTypes),
	}
}

type span struct {
	Text, Type string
	Start, End int
}

func spans(ents []domain.PositionedEntity) []span {
	out := make([]span, 0, len(ents))
	for _, e := range ents {
		out = append(out, span{e.Text, e.EntityType, e.Start, e.End})
	}
	return out
}

func TestEngine_ChunkedMatchesSingleCall(t *testing.T) {
	text := strings.Repeat("Hazrat Ali went to Karbala. ", 10)
	names := map[string]string{"Hazrat Ali": "PERSON", "Karbala": "LOCATION"}
	model := testModel()

	single := &nameClient{names: names}
	e := extraction.NewEngine(nil, nil, nil, extraction.EngineConfig{})
	whole, err := e.Extract(context.Background(), newRequest(text, single, model, 10000, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, whole.Stats.Chunks)
	assert.Len(t, whole.Entities, 20)

	chunkedClient := &nameClient{names: names}
	var progress []int
	var mu sync.Mutex
	req := newRequest(text, chunkedClient, model, 60, 20)
	req.OnProgress = func(done, total int) {
		mu.Lock()
		progress = append(progress, done)
		mu.Unlock()
	}
	chunked, err := e.Extract(context.Background(), req)
	require.NoError(t, err)

	assert.Greater(t, chunked.Stats.Chunks, 1)
	assert.Equal(t, chunked.Stats.Chunks, chunkedClient.callCount())
	assert.Len(t, progress, chunked.Stats.Chunks)
	assert.Equal(t, spans(whole.Entities), spans(chunked.Entities))
}

func TestEngine_CacheHitSkipsProvider(t *testing.T) {
	client := &nameClient{names: map[string]string{"Karbala": "LOCATION"}}
	usage := &usageLog{}
	e := extraction.NewEngine(memory.NewExtractionCache(), usage, nil, extraction.EngineConfig{})
	model := testModel()
	text := "The caravan reached Karbala."

	first, err := e.Extract(context.Background(), newRequest(text, client, model, 1000, 100))
	require.NoError(t, err)
	assert.False(t, first.Stats.CacheHit)

	second, err := e.Extract(context.Background(), newRequest(text, client, model, 1000, 100))
	require.NoError(t, err)

	assert.True(t, second.Stats.CacheHit)
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, spans(first.Entities), spans(second.Entities))
	require.Len(t, second.Entities, 1)
	assert.True(t, second.Entities[0].Meta.Cached)
	assert.Equal(t, 1, usage.count(domain.UsageCacheHit))
	assert.Equal(t, 1, usage.count(domain.UsageRequest))
}

func TestEngine_RecordsUsageAndUnmatched(t *testing.T) {
	client := &nameClient{reply: `[{"text": "Karbala", "entity_type": "LOCATION"}, {"text": "Damascus", "entity_type": "LOCATION"}]`}
	usage := &usageLog{}
	e := extraction.NewEngine(nil, usage, nil, extraction.EngineConfig{})
	model := testModel()

	res, err := e.Extract(context.Background(), newRequest("To Karbala.", client, model, 1000, 100))
	require.NoError(t, err)

	assert.Len(t, res.Entities, 1)
	assert.Equal(t, 2, res.Stats.Candidates)
	assert.Equal(t, 1, res.Stats.Unmatched)
	assert.Equal(t, 15, res.Stats.TokensUsed)

	usage.mu.Lock()
	defer usage.mu.Unlock()
	require.Len(t, usage.events, 2)
	assert.Equal(t, domain.UsageRequest, usage.events[0].Kind)
	assert.True(t, usage.events[0].Success)
	assert.Equal(t, model.ID, usage.events[0].ModelID)
	assert.InDelta(t, 0.00003, usage.events[0].Cost, 1e-12)
	assert.Equal(t, domain.UsageOutcome, usage.events[1].Kind)
	assert.Equal(t, 1, usage.events[1].Entities)
	assert.Equal(t, 1, usage.events[1].Unmatched)
}

func TestEngine_UnparsableOutputYieldsNoEntities(t *testing.T) {
	client := &nameClient{reply: "Sorry, I cannot help with that."}
	e := extraction.NewEngine(nil, nil, nil, extraction.EngineConfig{})

	res, err := e.Extract(context.Background(), newRequest("Hazrat Ali", client, testModel(), 1000, 100))

	require.NoError(t, err)
	assert.Empty(t, res.Entities)
}

func TestEngine_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("upstream 500")
	usage := &usageLog{}
	e := extraction.NewEngine(nil, usage, nil, extraction.EngineConfig{})

	_, err := e.Extract(context.Background(), newRequest("Hazrat Ali", &nameClient{err: boom}, testModel(), 1000, 100))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, usage.count(domain.UsageRequest))
	assert.Equal(t, 0, usage.count(domain.UsageOutcome))
}

func TestEngine_DeadlineBecomesProviderTimeout(t *testing.T) {
	e := extraction.NewEngine(nil, nil, nil, extraction.EngineConfig{})

	_, err := e.Extract(context.Background(), newRequest("Hazrat Ali", &nameClient{err: context.DeadlineExceeded}, testModel(), 1000, 100))

	assert.ErrorIs(t, err, domain.ErrProviderTimeout)
}

func TestEngine_CancellationIsNotAFailedRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := completionFunc(func(callCtx context.Context, _ port.CompletionRequest) (*port.Completion, error) {
		cancel()
		<-callCtx.Done()
		return nil, callCtx.Err()
	})
	usage := &usageLog{}
	e := extraction.NewEngine(nil, usage, nil, extraction.EngineConfig{})

	_, err := e.Extract(ctx, newRequest("Hazrat Ali", client, testModel(), 1000, 100))

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrProviderTimeout)
	assert.Equal(t, 0, usage.count(domain.UsageRequest))
}

func TestEngine_InvalidCustomPromptIsConfigurationError(t *testing.T) {
	client := &nameClient{}
	e := extraction.NewEngine(nil, nil, nil, extraction.EngineConfig{})
	req := newRequest("Hazrat Ali", client, testModel(), 1000, 100)
	req.PromptType = domain.PromptTypeCustom
	req.Config.CustomPrompt = "{text}"

	_, err := e.Extract(context.Background(), req)

	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrInvalidPromptTemplate)
	assert.Equal(t, 0, client.callCount())
}

func TestEngine_NoModel(t *testing.T) {
	e := extraction.NewEngine(nil, nil, nil, extraction.EngineConfig{})

	_, err := e.Extract(context.Background(), extraction.ExtractRequest{Text: "x"})

	assert.ErrorIs(t, err, domain.ErrNoActiveModel)
}

func TestEngine_FallbackModelAttribution(t *testing.T) {
	fallbackID := uuid.New()
	client := completionFunc(func(context.Context, port.CompletionRequest) (*port.Completion, error) {
		return &port.Completion{Text: "[]", ModelID: fallbackID, CostPer1K: 1, PromptTokens: 1000}, nil
	})
	usage := &usageLog{}
	e := extraction.NewEngine(nil, usage, nil, extraction.EngineConfig{})

	_, err := e.Extract(context.Background(), newRequest("x", client, testModel(), 1000, 100))
	require.NoError(t, err)

	usage.mu.Lock()
	defer usage.mu.Unlock()
	assert.Equal(t, fallbackID, usage.events[0].ModelID)
	assert.InDelta(t, 1.0, usage.events[0].Cost, 1e-9)
}

type completionFunc func(context.Context, port.CompletionRequest) (*port.Completion, error)

func (f completionFunc) Complete(ctx context.Context, req port.CompletionRequest) (*port.Completion, error) {
	return f(ctx, req)
}

func TestEngine_CacheErrorsDegradeToMiss(t *testing.T) {
	cache := new(mocks.MockExtractionCache)
	cache.On("Get", mock.Anything, mock.AnythingOfType("string")).Return(nil, false, errors.New("connection refused"))
	cache.On("Set", mock.Anything, mock.AnythingOfType("string"), mock.Anything, time.Hour).Return(errors.New("connection refused"))

	client := &nameClient{names: map[string]string{"Hazrat Ali": "PERSON"}}
	e := extraction.NewEngine(cache, nil, nil, extraction.EngineConfig{})

	res, err := e.Extract(context.Background(), newRequest("Hazrat Ali spoke.", client, testModel(), 1000, 100))
	require.NoError(t, err)
	assert.False(t, res.Stats.CacheHit)
	assert.Equal(t, 1, client.callCount())
	require.Len(t, res.Entities, 1)
	cache.AssertExpectations(t)
}
