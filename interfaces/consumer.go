package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"frq-generator/application"
	"frq-generator/domain"
	"frq-generator/infrastructure"
)

type GenerationWorkflow interface {
	Generate(ctx context.Context, job domain.GenerationJob) (domain.Candidate, error)
	Abandon(ctx context.Context, job domain.GenerationJob) error
}

type EvaluationWorkflow interface {
	Evaluate(ctx context.Context, job domain.EvaluationJob) (domain.Grade, error)
	Abandon(ctx context.Context, job domain.EvaluationJob) error
}

// Consumer turns queue batches into workflow runs and reports a disposition per message.
type Consumer struct {
	generator   GenerationWorkflow
	evaluator   EvaluationWorkflow
	validate    *validator.Validate
	concurrency int
	jobTimeout  time.Duration
	logger      zerolog.Logger
}

func NewConsumer(generator GenerationWorkflow, evaluator EvaluationWorkflow, concurrency int, jobTimeout time.Duration, logger zerolog.Logger) *Consumer {
	return &Consumer{
		generator:   generator,
		evaluator:   evaluator,
		validate:    validator.New(),
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
		logger:      logger.With().Str("component", "consumer").Logger(),
	}
}

// Generations is the queue handler for generation requests.
func (c *Consumer) Generations() infrastructure.Handler {
	return generationHandler{c}
}

// Evaluations is the queue handler for evaluation requests.
func (c *Consumer) Evaluations() infrastructure.Handler {
	return evaluationHandler{c}
}

type generationHandler struct{ c *Consumer }

func (h generationHandler) HandleBatch(ctx context.Context, batch []infrastructure.Delivery) []infrastructure.Disposition {
	return h.c.HandleGenerations(ctx, batch)
}

func (h generationHandler) Abandon(ctx context.Context, d infrastructure.Delivery) {
	var job domain.GenerationJob
	if err := h.c.decode(d.Body, &job); err != nil {
		return
	}
	if err := h.c.generator.Abandon(ctx, job); err != nil {
		h.c.logger.Error().Err(err).Str("question_id", job.ID).Msg("failed to abandon generation")
	}
}

type evaluationHandler struct{ c *Consumer }

func (h evaluationHandler) HandleBatch(ctx context.Context, batch []infrastructure.Delivery) []infrastructure.Disposition {
	return h.c.HandleEvaluations(ctx, batch)
}

func (h evaluationHandler) Abandon(ctx context.Context, d infrastructure.Delivery) {
	var job domain.EvaluationJob
	if err := h.c.decode(d.Body, &job); err != nil {
		return
	}
	if err := h.c.evaluator.Abandon(ctx, job); err != nil {
		h.c.logger.Error().Err(err).Str("evaluation_id", job.EvaluationID).Msg("failed to abandon evaluation")
	}
}

// HandleGenerations runs the generation workflow for every message of the batch.
func (c *Consumer) HandleGenerations(ctx context.Context, batch []infrastructure.Delivery) []infrastructure.Disposition {
	results := application.RunBatch(ctx, batch, c.concurrency, c.jobTimeout, func(ctx context.Context, d infrastructure.Delivery) error {
		var job domain.GenerationJob
		if err := c.decode(d.Body, &job); err != nil {
			return err
		}
		_, err := c.generator.Generate(ctx, job)
		return err
	})
	return c.settle("generation", batch, results)
}

// HandleEvaluations runs the evaluation workflow for every message of the batch.
func (c *Consumer) HandleEvaluations(ctx context.Context, batch []infrastructure.Delivery) []infrastructure.Disposition {
	results := application.RunBatch(ctx, batch, c.concurrency, c.jobTimeout, func(ctx context.Context, d infrastructure.Delivery) error {
		var job domain.EvaluationJob
		if err := c.decode(d.Body, &job); err != nil {
			return err
		}
		_, err := c.evaluator.Evaluate(ctx, job)
		return err
	})
	return c.settle("evaluation", batch, results)
}

func (c *Consumer) decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decode message: %v", domain.ErrInvalidRequest, err)
	}
	if err := c.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

func (c *Consumer) settle(kind string, batch []infrastructure.Delivery, results []application.Result) []infrastructure.Disposition {
	out := make([]infrastructure.Disposition, len(results))
	for i, r := range results {
		level := zerolog.InfoLevel
		switch r.Outcome {
		case application.OutcomeRetry:
			out[i] = infrastructure.Retry
			level = zerolog.WarnLevel
		case application.OutcomeWait:
			out[i] = infrastructure.Wait
		case application.OutcomeFailed:
			out[i] = infrastructure.Ack
			level = zerolog.ErrorLevel
		default:
			out[i] = infrastructure.Ack
		}

		event := c.logger.WithLevel(level).
			Err(r.Err).
			Str("kind", kind).
			Int("attempt", batch[i].Attempt).
			Int("waits", batch[i].Waits).
			Str("outcome", r.Outcome.String())
		if r.Outcome == application.OutcomeFailed {
			event = event.Bytes("body", batch[i].Body)
		}
		event.Msg("message processed")
	}
	return out
}
