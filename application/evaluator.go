package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"frq-generator/domain"
)

// Evaluator grades a learner response against a published question.
type Evaluator struct {
	store  Store
	ai     Capability
	logger zerolog.Logger
}

func NewEvaluator(store Store, ai Capability, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store:  store,
		ai:     ai,
		logger: logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate returns domain.ErrNotFound for an unknown question, domain.ErrNotReady while
// generation is still pending, and domain.ErrGenerationFailed for a question that will never
// be published. In the last case the evaluation is recorded as failed.
func (e *Evaluator) Evaluate(ctx context.Context, job domain.EvaluationJob) (domain.Grade, error) {
	q, err := e.store.GetFinalAttempt(ctx, job.ID)
	if err != nil {
		return domain.Grade{}, fmt.Errorf("evaluation %s: %w", job.EvaluationID, err)
	}

	log := e.logger.With().
		Str("question_id", job.ID).
		Str("evaluation_id", job.EvaluationID).
		Logger()

	switch q.State {
	case domain.QuestionPending:
		return domain.Grade{}, fmt.Errorf("evaluation %s: %w", job.EvaluationID, domain.ErrNotReady)

	case domain.QuestionFailed:
		log.Warn().Msg("question failed generation, recording failed evaluation")
		rec := domain.NewFailedEvaluation(job.ID, job.EvaluationID, job.UserID, domain.StatusUnableToGenerate)
		if err := e.store.PutEvaluation(ctx, rec); err != nil {
			return domain.Grade{}, err
		}
		return domain.Grade{}, fmt.Errorf("evaluation %s: %w", job.EvaluationID, domain.ErrGenerationFailed)

	case domain.QuestionPublished:
		if q.Candidate == nil {
			return domain.Grade{}, fmt.Errorf("question %s published without content", job.ID)
		}

	default:
		return domain.Grade{}, fmt.Errorf("question %s in unexpected state %q", job.ID, q.State)
	}

	c := q.Candidate
	grade, err := e.ai.Grade(ctx, c.Context, c.Question, c.Rubric, job.Response)
	if err != nil {
		return domain.Grade{}, fmt.Errorf("evaluation %s: %w", job.EvaluationID, err)
	}
	if len(grade.Scores) == 0 {
		err := &domain.CapabilityError{Op: "grade", Err: errors.New("grade has no scores")}
		return domain.Grade{}, fmt.Errorf("evaluation %s: %w", job.EvaluationID, err)
	}

	if err := e.store.PutEvaluation(ctx, domain.NewCompletedEvaluation(job.ID, job.EvaluationID, job.UserID, grade)); err != nil {
		return domain.Grade{}, err
	}
	log.Info().Int("scores", len(grade.Scores)).Msg("evaluation completed")
	return grade, nil
}

// Abandon records the evaluation as failed once its request has been given up on.
func (e *Evaluator) Abandon(ctx context.Context, job domain.EvaluationJob) error {
	e.logger.Warn().
		Str("question_id", job.ID).
		Str("evaluation_id", job.EvaluationID).
		Msg("evaluation abandoned, recording failed evaluation")
	rec := domain.NewFailedEvaluation(job.ID, job.EvaluationID, job.UserID, domain.StatusUnableToEvaluate)
	return e.store.PutEvaluation(ctx, rec)
}
