// Package aimodel binds the FRQ operations (generate, simulate an answer, grade) to an llm.Provider.
package aimodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"frq-generator/config"
	"frq-generator/domain"
	"frq-generator/infrastructure/llm"
)

type Settings struct {
	Standard    string
	Categories  []string
	MaxScore    float64
	MaxTokens   int
	Temperature float64
}

func SettingsFromConfig(gen config.Generation, l config.LLM) Settings {
	return Settings{
		Standard:    gen.Standard,
		Categories:  gen.Categories,
		MaxScore:    gen.MaxScore,
		MaxTokens:   l.MaxTokens,
		Temperature: l.Temperature,
	}
}

// Model is safe for concurrent use when the underlying provider is.
type Model struct {
	provider llm.Provider
	settings Settings
	logger   zerolog.Logger
}

func New(provider llm.Provider, settings Settings, logger zerolog.Logger) *Model {
	if settings.Standard == "" {
		settings.Standard = config.DefaultStandard
	}
	if settings.MaxScore < 1 {
		settings.MaxScore = config.DefaultMaxScore
	}
	return &Model{
		provider: provider,
		settings: settings,
		logger:   logger.With().Str("component", "aimodel").Logger(),
	}
}

func (m *Model) Generate(ctx context.Context, topic string) (domain.Candidate, error) {
	ctx = llm.WithPurpose(ctx, "generate")

	var c domain.Candidate
	prompt := generatePrompt(m.settings.Standard, m.settings.Categories, m.settings.MaxScore, topic)
	if err := m.structured(ctx, teacherSystem, prompt, CandidateSchema, &c); err != nil {
		return domain.Candidate{}, &domain.CapabilityError{Op: "generate", Err: err}
	}
	return c, nil
}

func (m *Model) SimulateAnswer(ctx context.Context, passage, question string) (string, error) {
	ctx = llm.WithPurpose(ctx, "simulate-answer")

	resp, err := m.provider.Generate(ctx, llm.Request{
		System:      studentSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: answerPrompt(m.settings.Standard, passage, question)}},
		MaxTokens:   m.settings.MaxTokens,
		Temperature: m.settings.Temperature,
	})
	if err != nil {
		return "", &domain.CapabilityError{Op: "simulate answer", Err: err}
	}

	answer := strings.TrimSpace(string(resp.Content))
	if answer == "" {
		return "", &domain.CapabilityError{Op: "simulate answer", Err: errors.New("empty answer")}
	}
	return answer, nil
}

func (m *Model) Grade(ctx context.Context, passage, question, rubric, response string) (domain.Grade, error) {
	ctx = llm.WithPurpose(ctx, "grade")

	var g domain.Grade
	prompt := gradePrompt(m.settings.Standard, m.settings.Categories, m.settings.MaxScore, passage, question, rubric, response)
	if err := m.structured(ctx, teacherSystem, prompt, GradeSchema(m.settings.MaxScore), &g); err != nil {
		return domain.Grade{}, &domain.CapabilityError{Op: "grade", Err: err}
	}
	return g, nil
}

// structured asks for schema-conforming JSON and decodes it into out. Output the provider
// rejects as invalid gets exactly one repair round trip.
func (m *Model) structured(ctx context.Context, system, prompt string, schema *llm.Schema, out any) error {
	req := llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Schema:      schema,
		MaxTokens:   m.settings.MaxTokens,
		Temperature: m.settings.Temperature,
	}

	resp, err := m.provider.Generate(ctx, req)

	var invalid *llm.ErrInvalidResponse
	if errors.As(err, &invalid) {
		m.logger.Warn().Err(err).Str("schema", schema.Name).Msg("malformed model output, requesting repair")
		req.Messages = append(req.Messages,
			llm.Message{Role: llm.RoleAssistant, Content: string(invalid.Content)},
			llm.Message{Role: llm.RoleUser, Content: repairPrompt(invalid.Err)},
		)
		resp, err = m.provider.Generate(llm.WithPurpose(ctx, "repair"), req)
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Content, out); err != nil {
		return fmt.Errorf("decode %s: %w", schema.Name, err)
	}
	return nil
}
