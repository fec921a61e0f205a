package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"frq-generator/config"
	"frq-generator/domain"
)

type GeneratorConfig struct {
	MaxIterations   int
	AcceptThreshold float64
	MaxScore        float64
	// LeaseTTL is how long a run may drive one question before another run can take over.
	LeaseTTL time.Duration
}

func GeneratorConfigFrom(gen config.Generation, worker config.Worker) GeneratorConfig {
	return GeneratorConfig{
		MaxIterations:   gen.MaxIterations,
		AcceptThreshold: gen.AcceptThreshold,
		MaxScore:        gen.MaxScore,
		LeaseTTL:        worker.JobTimeout,
	}
}

// Generator runs the quality-gated generation loop for one question.
type Generator struct {
	store  Store
	ai     Capability
	cfg    GeneratorConfig
	logger zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewGenerator(store Store, ai Capability, cfg GeneratorConfig, logger zerolog.Logger) *Generator {
	return &Generator{
		store:  store,
		ai:     ai,
		cfg:    cfg,
		logger: logger.With().Str("component", "generator").Logger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Generate produces a published question for job or explains why it could not.
//
// Returned errors: domain.ErrAlreadyCompleted for a question already in a terminal state,
// domain.ErrInFlight while another run holds the lease, domain.ErrQualityGateExhausted when
// every iteration was rejected, and capability or store errors unchanged.
func (g *Generator) Generate(ctx context.Context, job domain.GenerationJob) (domain.Candidate, error) {
	runID := g.newID()
	log := g.logger.With().Str("question_id", job.ID).Str("run_id", runID).Logger()

	outcome, err := g.store.ClaimGeneration(ctx, domain.GenerationClaim{
		QuestionID: job.ID,
		Topic:      job.Topic,
		OwnerID:    job.UserID,
		RequestID:  job.RequestID,
		RunID:      runID,
		Until:      g.now().Add(g.cfg.LeaseTTL),
	})
	if err != nil {
		return domain.Candidate{}, err
	}
	switch outcome {
	case domain.ClaimCompleted:
		log.Info().Msg("question already completed, skipping")
		return domain.Candidate{}, domain.ErrAlreadyCompleted
	case domain.ClaimBusy:
		log.Info().Msg("question generation held by another run")
		return domain.Candidate{}, domain.ErrInFlight
	}

	c, err := g.run(ctx, job, log)
	if err != nil && !errors.Is(err, domain.ErrQualityGateExhausted) {
		// Background context: the job context may be the reason we are bailing out.
		if rerr := g.store.ReleaseGeneration(context.Background(), job.ID, runID); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to release generation lease")
		}
	}
	return c, err
}

// Abandon marks a question failed once its generation request has been given up on.
// The question is left alone when it is already terminal or another run still holds a live lease.
func (g *Generator) Abandon(ctx context.Context, job domain.GenerationJob) error {
	runID := g.newID()
	log := g.logger.With().Str("question_id", job.ID).Str("run_id", runID).Logger()

	outcome, err := g.store.ClaimGeneration(ctx, domain.GenerationClaim{
		QuestionID: job.ID,
		Topic:      job.Topic,
		OwnerID:    job.UserID,
		RequestID:  job.RequestID,
		RunID:      runID,
		Until:      g.now().Add(g.cfg.LeaseTTL),
	})
	if err != nil {
		return err
	}
	if outcome != domain.ClaimAcquired {
		log.Info().Str("outcome", outcome.String()).Msg("question not abandoned")
		return nil
	}

	log.Warn().Msg("generation abandoned, marking question failed")
	if err := g.store.PutAttempt(ctx, domain.NewFailedAttempt(job.ID, job.Topic, job.UserID, job.RequestID)); err != nil {
		if rerr := g.store.ReleaseGeneration(context.WithoutCancel(ctx), job.ID, runID); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to release generation lease")
		}
		return err
	}
	return nil
}

func (g *Generator) run(ctx context.Context, job domain.GenerationJob, log zerolog.Logger) (domain.Candidate, error) {
	offset, err := g.rejectedOffset(ctx, job.ID)
	if err != nil {
		return domain.Candidate{}, err
	}

	for i := 0; i < g.cfg.MaxIterations; i++ {
		c, grade, err := g.selfCheck(ctx, job.Topic)
		if err != nil {
			return domain.Candidate{}, fmt.Errorf("question %s iteration %d: %w", job.ID, i, err)
		}

		accepted, err := Accept(grade.Scores, g.cfg.AcceptThreshold, g.cfg.MaxScore)
		if err != nil {
			return domain.Candidate{}, fmt.Errorf("question %s iteration %d: %w", job.ID, i, err)
		}
		pct, _ := Percentage(grade.Scores, g.cfg.MaxScore)

		if accepted {
			log.Info().Int("iteration", i).Float64("percentage", pct).Msg("candidate accepted")
			// The self-check goes in before the publish so a completed question always has it.
			eval := domain.NewCompletedEvaluation(job.ID, g.newID(), domain.SelfCheckGrader(domain.FinalIteration), grade)
			if err := g.store.PutEvaluation(ctx, eval); err != nil {
				return domain.Candidate{}, err
			}
			if err := g.store.PutAttempt(ctx, domain.NewPublishedAttempt(job.ID, job.Topic, job.UserID, job.RequestID, c)); err != nil {
				return domain.Candidate{}, err
			}
			return c, nil
		}

		iteration := offset + i + 1
		log.Info().Int("iteration", iteration).Float64("percentage", pct).Msg("candidate rejected")
		if err := g.store.PutAttempt(ctx, domain.NewRejectedAttempt(job.ID, job.Topic, iteration, c)); err != nil {
			return domain.Candidate{}, err
		}
		eval := domain.NewCompletedEvaluation(job.ID, g.newID(), domain.SelfCheckGrader(iteration), grade)
		if err := g.store.PutEvaluation(ctx, eval); err != nil {
			return domain.Candidate{}, err
		}
	}

	log.Warn().Int("max_iterations", g.cfg.MaxIterations).Msg("quality gate exhausted")
	if err := g.store.PutAttempt(ctx, domain.NewFailedAttempt(job.ID, job.Topic, job.UserID, job.RequestID)); err != nil {
		return domain.Candidate{}, err
	}
	return domain.Candidate{}, domain.ErrQualityGateExhausted
}

func (g *Generator) selfCheck(ctx context.Context, topic string) (domain.Candidate, domain.Grade, error) {
	c, err := g.ai.Generate(ctx, topic)
	if err != nil {
		return domain.Candidate{}, domain.Grade{}, err
	}
	answer, err := g.ai.SimulateAnswer(ctx, c.Context, c.Question)
	if err != nil {
		return domain.Candidate{}, domain.Grade{}, err
	}
	grade, err := g.ai.Grade(ctx, c.Context, c.Question, c.Rubric, answer)
	if err != nil {
		return domain.Candidate{}, domain.Grade{}, err
	}
	return c, grade, nil
}

// rejectedOffset returns the highest rejected iteration already stored, so a resumed run
// appends after an interrupted one instead of overwriting its attempts.
func (g *Generator) rejectedOffset(ctx context.Context, questionID string) (int, error) {
	attempts, err := g.store.ListAttempts(ctx, questionID)
	if err != nil {
		return 0, err
	}
	offset := 0
	for _, a := range attempts {
		if a.Iteration > offset {
			offset = a.Iteration
		}
	}
	return offset, nil
}
