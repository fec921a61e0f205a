package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"frq-generator/config"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, config.LLM{Provider: "mock", MaxRetries: 2, Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ModelID())
	resp, err := p.Generate(ctx, Request{Schema: gradeSchema()})
	require.NoError(t, err, "the configured mock answers without queued responses")
	assert.Contains(t, string(resp.Content), `"scores"`)

	_, err = NewProvider(ctx, config.LLM{Provider: "bard"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown LLM provider")

	for _, name := range []string{"gemini", "openai", "anthropic", "vertex"} {
		_, err = NewProvider(ctx, config.LLM{Provider: name}, zerolog.Nop())
		assert.Error(t, err, name)
	}
}

func TestLoggingProviderRecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	mock := NewMockProvider(MockResponse{
		Content: json.RawMessage(`{"ok":true}`),
		Usage:   Usage{InputTokens: 3, OutputTokens: 4},
	})
	p := WithLogging(mock, logger)

	_, err := p.Generate(WithPurpose(context.Background(), "grade"), Request{})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "llm", entry["component"])
	assert.Equal(t, "grade", entry["purpose"])
	assert.Equal(t, float64(3), entry["input_tokens"])
	assert.Equal(t, "llm request", entry["message"])
}

func TestTimeoutProviderBoundsCall(t *testing.T) {
	p := WithTimeout(blockingProvider{}, 5*time.Millisecond)
	_, err := p.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, Provider(blockingProvider{}), WithTimeout(blockingProvider{}, 0))
}

type blockingProvider struct{}

func (blockingProvider) Generate(ctx context.Context, _ Request) (*Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) ModelID() string { return "blocking" }

func TestMockProviderValidatesAgainstSchema(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{"feedback":"ok"}`)})

	_, err := mock.Generate(context.Background(), Request{Schema: gradeSchema()})
	var invalid *ErrInvalidResponse
	assert.ErrorAs(t, err, &invalid)

	_, err = mock.Generate(context.Background(), Request{})
	var unavailable *ErrProviderUnavailable
	assert.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 2, mock.CallCount())
}

func TestBuildGeminiSchema(t *testing.T) {
	s := buildGeminiSchema(gradeSchema().Definition)

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.ElementsMatch(t, []string{"feedback", "scores"}, s.Required)
	require.Contains(t, s.Properties, "scores")
	items := s.Properties["scores"].Items
	require.NotNil(t, items)
	assert.Equal(t, genai.TypeNumber, items.Type)
	require.NotNil(t, items.Maximum)
	assert.Equal(t, 5.0, *items.Maximum)

	withMin := gradeSchema()
	withMin.Definition["properties"].(map[string]any)["scores"].(map[string]any)["minItems"] = 1
	scores := buildGeminiSchema(withMin.Definition).Properties["scores"]
	require.NotNil(t, scores.MinItems)
	assert.Equal(t, int64(1), *scores.MinItems)
}

func TestSynthesizingMockFollowsSchema(t *testing.T) {
	schema := gradeSchema()
	schema.Definition["properties"].(map[string]any)["scores"].(map[string]any)["minItems"] = 2
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{"feedback":"queued","scores":[1]}`)}).Synthesize()

	resp, err := mock.Generate(context.Background(), Request{Schema: schema})
	require.NoError(t, err)
	assert.JSONEq(t, `{"feedback":"queued","scores":[1]}`, string(resp.Content), "queued responses come first")

	resp, err = mock.Generate(context.Background(), Request{Schema: schema})
	require.NoError(t, err)
	var g struct {
		Feedback string    `json:"feedback"`
		Scores   []float64 `json:"scores"`
	}
	require.NoError(t, json.Unmarshal(resp.Content, &g))
	assert.NotEmpty(t, g.Feedback)
	assert.Equal(t, []float64{5, 5}, g.Scores)

	resp, err = mock.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotEmpty(t, string(resp.Content))
}
