package application

import (
	"context"

	"frq-generator/domain"
)

// Store is the content store the workflows persist to.
type Store interface {
	PutAttempt(ctx context.Context, a *domain.QuestionAttempt) error
	PutEvaluation(ctx context.Context, e *domain.EvaluationRecord) error
	GetFinalAttempt(ctx context.Context, questionID string) (*domain.QuestionAttempt, error)
	ListAttempts(ctx context.Context, questionID string) ([]*domain.QuestionAttempt, error)
	ClaimGeneration(ctx context.Context, c domain.GenerationClaim) (domain.ClaimOutcome, error)
	ReleaseGeneration(ctx context.Context, questionID, runID string) error
}

// Capability is the AI model. Implementations return *domain.CapabilityError on failure.
type Capability interface {
	Generate(ctx context.Context, topic string) (domain.Candidate, error)
	SimulateAnswer(ctx context.Context, passage, question string) (string, error)
	Grade(ctx context.Context, passage, question, rubric, response string) (domain.Grade, error)
}
