package gen

import (
	"context"
	"errors"
	"io"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/pelldrake/ashveil/internal/engine"
)

// TextService streams game-master responses as JSON constrained to the
// GameResponse schema.
type TextService struct {
	cache *ClientCache
	model string
}

// NewTextService returns a service using model for all calls.
func NewTextService(cache *ClientCache, model string) *TextService {
	return &TextService{cache: cache, model: model}
}

// Stream starts a streaming generation call.
func (s *TextService) Stream(ctx context.Context, req engine.TextRequest) (engine.ChunkStream, error) {
	client, err := s.cache.Get(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}
	model := client.GenerativeModel(s.model)
	model.SetTemperature(req.Temperature)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = gameResponseSchema()

	iter := model.GenerateContentStream(ctx, genai.Text(req.Prompt))
	return &chunkStream{iter: iter}, nil
}

type chunkStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *chunkStream) Next() (engine.Chunk, error) {
	resp, err := s.iter.Next()
	if errors.Is(err, iterator.Done) {
		return engine.Chunk{}, io.EOF
	}
	if err != nil {
		return engine.Chunk{}, err
	}

	var chunk engine.Chunk
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				chunk.Text += string(text)
			}
		}
	}
	// Usage metadata is cumulative for the call; every chunk carries the
	// latest totals.
	if resp.UsageMetadata != nil {
		chunk.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		chunk.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return chunk, nil
}

// gameResponseSchema mirrors models.GameResponse so the service is forced to
// emit exactly the document shape the parser expects.
func gameResponseSchema() *genai.Schema {
	stringProp := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }

	fixedStrings := func(keys ...string) *genai.Schema {
		props := make(map[string]*genai.Schema, len(keys))
		for _, k := range keys {
			props[k] = stringProp()
		}
		return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: keys}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"day":               {Type: genai.TypeInteger},
			"time":              stringProp(),
			"current_situation": stringProp(),
			"environment": fixedStrings(
				"Location", "Daytime", "Light", "Temperature", "Humidity", "Wind", "Soundscape",
			),
			"inventory": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":        stringProp(),
						"description": stringProp(),
						"weight":      {Type: genai.TypeNumber},
						"equipped":    {Type: genai.TypeBoolean},
					},
					Required: []string{"name", "description", "weight", "equipped"},
				},
			},
			"perks_skills": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":        stringProp(),
						"degree":      stringProp(),
						"description": stringProp(),
					},
					Required: []string{"name", "degree", "description"},
				},
			},
			"attributes": fixedStrings(
				"Name", "Background", "Age", "Health", "Sanity", "Hunger", "Thirst", "Stamina",
			),
			"options": {
				Type:  genai.TypeArray,
				Items: stringProp(),
			},
			"image_prompt": stringProp(),
		},
		Required: []string{
			"day", "time", "current_situation", "environment", "inventory",
			"perks_skills", "attributes", "options", "image_prompt",
		},
	}
}
