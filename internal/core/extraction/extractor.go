package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/episodegraph/internal/config"
	"github.com/agenthands/episodegraph/internal/core/common"
	"github.com/agenthands/episodegraph/internal/core/ident"
	"github.com/agenthands/episodegraph/internal/core/model"
	"github.com/agenthands/episodegraph/internal/llm"
)

type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeLLMError   Outcome = "llm_error"
	OutcomeParseError Outcome = "parse_error"
)

// Result carries the accepted records of one extraction call. Items is
// empty, never nil, when Outcome is not OutcomeOK.
type Result[T any] struct {
	Items   []T
	Outcome Outcome
	Dropped int
	Err     error
}

func failed[T any](outcome Outcome, err error) Result[T] {
	return Result[T]{Items: []T{}, Outcome: outcome, Err: err}
}

var errNoRecords = errors.New("response is neither a JSON array nor an object holding one")

type Extractor struct {
	LLM      llm.LLMClient
	Embedder llm.EmbedderClient
	Prompts  config.ExtractionPrompts

	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

type Option func(*Extractor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSampling overrides the default temperature (0.1) and token budget (1000).
func WithSampling(temperature float32, maxTokens int) Option {
	return func(e *Extractor) {
		if temperature > 0 {
			e.temperature = temperature
		}
		if maxTokens > 0 {
			e.maxTokens = maxTokens
		}
	}
}

// NewExtractor builds an extractor. embedder may be nil, in which case
// entities carry no embedding.
func NewExtractor(llmClient llm.LLMClient, embedder llm.EmbedderClient, prompts config.ExtractionPrompts, opts ...Option) *Extractor {
	if prompts.Entities == "" {
		prompts.Entities = DefaultEntityPrompt
	}
	if prompts.Relationships == "" {
		prompts.Relationships = DefaultRelationshipPrompt
	}
	e := &Extractor{
		LLM:         llmClient,
		Embedder:    embedder,
		Prompts:     prompts,
		temperature: 0.1,
		maxTokens:   1000,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) generate(ctx context.Context, prompt string) (string, error) {
	return e.LLM.Generate(ctx, prompt, llm.WithTemperature(e.temperature), llm.WithMaxTokens(e.maxTokens))
}

type rawEntity struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties"`
}

// ExtractEntities asks the LLM for the entities mentioned in text. Invalid
// records are dropped individually.
func (e *Extractor) ExtractEntities(ctx context.Context, text string) Result[model.Entity] {
	if strings.TrimSpace(text) == "" {
		return failed[model.Entity](OutcomeSkipped, nil)
	}

	response, err := e.generate(ctx, fmt.Sprintf(e.Prompts.Entities, text))
	if err != nil {
		e.logger.Warn("entity extraction failed", zap.Error(err))
		return failed[model.Entity](OutcomeLLMError, fmt.Errorf("failed to generate entities: %w", err))
	}

	records, err := decodeRecords(response)
	if err != nil {
		e.logger.Warn("entity extraction returned unparseable output", zap.Error(err))
		return failed[model.Entity](OutcomeParseError, fmt.Errorf("failed to parse entities: %w", err))
	}

	res := Result[model.Entity]{Items: []model.Entity{}, Outcome: OutcomeOK}
	for _, rec := range records {
		ent, err := parseEntity(rec)
		if err != nil {
			res.Dropped++
			e.logger.Warn("skipping invalid entity", zap.ByteString("record", rec), zap.Error(err))
			continue
		}
		ent.Embedding = e.embed(ctx, ent)
		res.Items = append(res.Items, ent)
	}
	return res
}

func parseEntity(rec json.RawMessage) (model.Entity, error) {
	var raw rawEntity
	if err := json.Unmarshal(rec, &raw); err != nil {
		return model.Entity{}, err
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return model.Entity{}, errors.New("missing name")
	}
	typ, ok := model.ParseEntityType(raw.Type)
	if !ok {
		return model.Entity{}, fmt.Errorf("unknown entity type %q", raw.Type)
	}
	return model.Entity{
		Name:        name,
		Type:        typ,
		Description: strings.TrimSpace(raw.Description),
		Properties:  raw.Properties,
	}, nil
}

func (e *Extractor) embed(ctx context.Context, ent model.Entity) []float32 {
	if e.Embedder == nil {
		return nil
	}
	vec, err := e.Embedder.Embed(ctx, ent.Name+" "+ent.Description)
	if err != nil {
		e.logger.Debug("embedding unavailable", zap.String("entity", ent.Name), zap.Error(err))
		return nil
	}
	return vec
}

type rawRelationship struct {
	Source      string         `json:"source"`
	Target      string         `json:"target"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Confidence  any            `json:"confidence"`
	Properties  map[string]any `json:"properties"`
}

// ExtractRelationships asks the LLM for relationships among entities. It
// does not call the LLM when fewer than two entities are given. Records
// whose endpoints are not among entities are dropped.
func (e *Extractor) ExtractRelationships(ctx context.Context, text string, entities []model.Entity) Result[model.Relationship] {
	if len(entities) < 2 || strings.TrimSpace(text) == "" {
		return failed[model.Relationship](OutcomeSkipped, nil)
	}

	known := make(map[string]string, len(entities))
	names := make([]string, 0, len(entities))
	for _, ent := range entities {
		id := ident.EntityID(ent.Name)
		if _, dup := known[id]; dup {
			continue
		}
		known[id] = ent.Name
		names = append(names, ent.Name)
	}

	nameList, err := json.Marshal(names)
	if err != nil {
		return failed[model.Relationship](OutcomeSkipped, err)
	}

	response, err := e.generate(ctx, fmt.Sprintf(e.Prompts.Relationships, text, string(nameList)))
	if err != nil {
		e.logger.Warn("relationship extraction failed", zap.Error(err))
		return failed[model.Relationship](OutcomeLLMError, fmt.Errorf("failed to generate relationships: %w", err))
	}

	records, err := decodeRecords(response)
	if err != nil {
		e.logger.Warn("relationship extraction returned unparseable output", zap.Error(err))
		return failed[model.Relationship](OutcomeParseError, fmt.Errorf("failed to parse relationships: %w", err))
	}

	res := Result[model.Relationship]{Items: []model.Relationship{}, Outcome: OutcomeOK}
	for _, rec := range records {
		rel, err := parseRelationship(rec, known)
		if err != nil {
			res.Dropped++
			e.logger.Warn("skipping invalid relationship", zap.ByteString("record", rec), zap.Error(err))
			continue
		}
		res.Items = append(res.Items, rel)
	}
	return res
}

func parseRelationship(rec json.RawMessage, known map[string]string) (model.Relationship, error) {
	var raw rawRelationship
	if err := json.Unmarshal(rec, &raw); err != nil {
		return model.Relationship{}, err
	}

	source, ok := known[ident.EntityID(strings.TrimSpace(raw.Source))]
	if !ok {
		return model.Relationship{}, fmt.Errorf("unknown source entity %q", raw.Source)
	}
	target, ok := known[ident.EntityID(strings.TrimSpace(raw.Target))]
	if !ok {
		return model.Relationship{}, fmt.Errorf("unknown target entity %q", raw.Target)
	}

	typ, ok := model.ParseRelationType(raw.Type)
	if !ok {
		return model.Relationship{}, fmt.Errorf("unknown relationship type %q", raw.Type)
	}

	confidence, err := parseConfidence(raw.Confidence)
	if err != nil {
		return model.Relationship{}, err
	}

	return model.Relationship{
		Source:      source,
		Target:      target,
		Type:        typ,
		Description: strings.TrimSpace(raw.Description),
		Confidence:  confidence,
		Properties:  raw.Properties,
	}, nil
}

func parseConfidence(v any) (float64, error) {
	switch c := v.(type) {
	case nil:
		return model.DefaultConfidence, nil
	case float64:
		return model.ClampConfidence(c), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric confidence %q", c)
		}
		return model.ClampConfidence(f), nil
	default:
		return 0, fmt.Errorf("non-numeric confidence %v", c)
	}
}

// decodeRecords splits a reply into its array elements. An object wrapping
// the array, or a single bare record, is accepted as well.
func decodeRecords(response string) ([]json.RawMessage, error) {
	raw, err := common.ParseJSON[json.RawMessage](response)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, errNoRecords
	}
	if _, single := wrapper["name"]; single {
		return []json.RawMessage{raw}, nil
	}
	if _, single := wrapper["source"]; single {
		return []json.RawMessage{raw}, nil
	}
	for _, key := range []string{"entities", "relationships", "items", "data"} {
		if v, ok := wrapper[key]; ok {
			if err := json.Unmarshal(v, &records); err == nil {
				return records, nil
			}
		}
	}
	for _, v := range wrapper {
		if err := json.Unmarshal(v, &records); err == nil {
			return records, nil
		}
	}
	return nil, errNoRecords
}
