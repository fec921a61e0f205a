package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/rs/zerolog"
)

// VertexProvider calls Gemini models on Vertex AI, trying each configured model in
// order until one answers.
type VertexProvider struct {
	client *genai.Client
	models []string
	logger zerolog.Logger
}

func NewVertexProvider(ctx context.Context, project, location string, models []string, logger zerolog.Logger) (*VertexProvider, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex project is required")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one vertex model is required")
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("create Vertex AI client: %w", err)
	}

	return &VertexProvider{
		client: client,
		models: models,
		logger: logger.With().Str("component", "vertex").Logger(),
	}, nil
}

func (p *VertexProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("vertex request has no messages")
	}

	var lastErr error
	for _, name := range p.models {
		resp, err := p.generateWithModel(ctx, name, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var invalid *ErrInvalidResponse
		if errors.As(err, &invalid) {
			return nil, err
		}
		p.logger.Warn().Err(err).Str("model", name).Msg("model failed, trying next")
		lastErr = err
	}

	return nil, &ErrProviderUnavailable{Err: fmt.Errorf("all models failed: %w", lastErr)}
}

func (p *VertexProvider) generateWithModel(ctx context.Context, name string, req Request) (*Response, error) {
	model := p.client.GenerativeModel(name)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	model.SetTemperature(float32(req.Temperature))
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = buildVertexSchema(req.Schema.Definition)
	}

	chat := model.StartChat()
	last := len(req.Messages) - 1
	for _, m := range req.Messages[:last] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		chat.History = append(chat.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	result, err := chat.SendMessage(ctx, genai.Text(req.Messages[last].Content))
	if err != nil {
		return nil, err
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, errors.New("no candidates in response")
	}

	candidate := result.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if candidate.FinishReason == genai.FinishReasonMaxTokens {
		return nil, &ErrMaxTokensExceeded{Content: []byte(text.String())}
	}

	content, err := structuredContent(req.Schema, text.String())
	if err != nil {
		return nil, err
	}

	resp := &Response{Content: content, Model: name, StopReason: "end"}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp, nil
}

func (p *VertexProvider) ModelID() string {
	return p.models[0]
}

func (p *VertexProvider) Close() error {
	return p.client.Close()
}

func buildVertexSchema(def map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	switch def["type"] {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
	case "object":
		schema.Type = genai.TypeObject
	}
	if desc, ok := def["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := def["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if propDef, ok := v.(map[string]any); ok {
				schema.Properties[k] = buildVertexSchema(propDef)
			}
		}
	}
	schema.Required = anyStrings(def["required"])
	if items, ok := def["items"].(map[string]any); ok {
		schema.Items = buildVertexSchema(items)
	}
	if v, ok := number(def["minimum"]); ok {
		schema.Minimum = v
	}
	if v, ok := number(def["maximum"]); ok {
		schema.Maximum = v
	}
	if v, ok := number(def["minItems"]); ok {
		schema.MinItems = int64(v)
	}

	return schema
}
