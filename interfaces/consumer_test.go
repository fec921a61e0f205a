package interfaces

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frq-generator/domain"
	"frq-generator/infrastructure"
)

type fakeGenerator struct {
	mu        sync.Mutex
	jobs      []domain.GenerationJob
	errs      map[string]error
	abandoned []domain.GenerationJob
}

func (f *fakeGenerator) Generate(_ context.Context, job domain.GenerationJob) (domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return domain.Candidate{}, f.errs[job.ID]
}

func (f *fakeGenerator) Abandon(_ context.Context, job domain.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, job)
	return nil
}

type fakeEvaluator struct {
	mu         sync.Mutex
	jobs       []domain.EvaluationJob
	err        error
	abandoned  []domain.EvaluationJob
	abandonErr error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, job domain.EvaluationJob) (domain.Grade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return domain.Grade{}, f.err
}

func (f *fakeEvaluator) Abandon(_ context.Context, job domain.EvaluationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, job)
	return f.abandonErr
}

func newTestConsumer(gen *fakeGenerator, eval *fakeEvaluator) *Consumer {
	return NewConsumer(gen, eval, 2, time.Second, zerolog.Nop())
}

func TestConsumerHandleGenerations(t *testing.T) {
	gen := &fakeGenerator{errs: map[string]error{
		"done":      domain.ErrAlreadyCompleted,
		"busy":      domain.ErrInFlight,
		"exhausted": domain.ErrQualityGateExhausted,
		"flaky":     &domain.CapabilityError{Op: "generate", Err: errors.New("503")},
	}}
	c := newTestConsumer(gen, &fakeEvaluator{})

	batch := []infrastructure.Delivery{
		{Body: []byte(`{"id":"ok","userId":"u","topic":"fractions"}`)},
		{Body: []byte(`{"id":"done","userId":"u","topic":"fractions"}`)},
		{Body: []byte(`{"id":"busy","userId":"u","topic":"fractions"}`), Attempt: 1},
		{Body: []byte(`{"id":"exhausted","userId":"u","topic":"fractions"}`)},
		{Body: []byte(`{"id":"flaky","userId":"u","topic":"fractions"}`)},
		{Body: []byte(`not json`)},
		{Body: []byte(`{"id":"no-topic","userId":"u"}`)},
	}

	got := c.HandleGenerations(context.Background(), batch)

	assert.Equal(t, []infrastructure.Disposition{
		infrastructure.Ack,
		infrastructure.Ack,
		infrastructure.Wait,
		infrastructure.Ack,
		infrastructure.Retry,
		infrastructure.Ack,
		infrastructure.Ack,
	}, got)
	assert.Len(t, gen.jobs, 5, "invalid messages never reach the workflow")
}

func TestConsumerHandleEvaluations(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want infrastructure.Disposition
	}{
		{"graded", nil, infrastructure.Ack},
		{"not ready", domain.ErrNotReady, infrastructure.Wait},
		{"unknown question", domain.ErrNotFound, infrastructure.Ack},
		{"failed question", domain.ErrGenerationFailed, infrastructure.Ack},
		{"deadline", context.DeadlineExceeded, infrastructure.Retry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := &fakeEvaluator{err: tt.err}
			c := newTestConsumer(&fakeGenerator{}, eval)

			got := c.HandleEvaluations(context.Background(), []infrastructure.Delivery{
				{Body: []byte(`{"id":"q1","evaluationId":"e1","userId":"learner","response":"The flight lasted 12 seconds."}`)},
			})

			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
			require.Len(t, eval.jobs, 1)
			assert.Equal(t, domain.EvaluationJob{
				ID:           "q1",
				EvaluationID: "e1",
				UserID:       "learner",
				Response:     "The flight lasted 12 seconds.",
			}, eval.jobs[0])
		})
	}
}

func TestConsumerRejectsEmptyResponse(t *testing.T) {
	eval := &fakeEvaluator{}
	c := newTestConsumer(&fakeGenerator{}, eval)

	got := c.HandleEvaluations(context.Background(), []infrastructure.Delivery{
		{Body: []byte(`{"id":"q1","evaluationId":"e1","userId":"learner","response":""}`)},
	})

	assert.Equal(t, []infrastructure.Disposition{infrastructure.Ack}, got)
	assert.Empty(t, eval.jobs)
}

func TestConsumerAbandonEvaluation(t *testing.T) {
	eval := &fakeEvaluator{}
	h := newTestConsumer(&fakeGenerator{}, eval).Evaluations()

	h.Abandon(context.Background(), infrastructure.Delivery{
		Body:  []byte(`{"id":"q1","evaluationId":"e1","userId":"learner","response":"42"}`),
		Waits: 7,
	})

	require.Len(t, eval.abandoned, 1)
	assert.Equal(t, domain.EvaluationJob{ID: "q1", EvaluationID: "e1", UserID: "learner", Response: "42"}, eval.abandoned[0])
}

func TestConsumerAbandonGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	h := newTestConsumer(gen, &fakeEvaluator{}).Generations()

	h.Abandon(context.Background(), infrastructure.Delivery{Body: []byte(`{"id":"q1","userId":"u","topic":"fractions","requestId":"r1"}`)})

	require.Len(t, gen.abandoned, 1)
	assert.Equal(t, domain.GenerationJob{ID: "q1", UserID: "u", Topic: "fractions", RequestID: "r1"}, gen.abandoned[0])
}

func TestConsumerAbandonIgnoresInvalidBody(t *testing.T) {
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{}
	c := newTestConsumer(gen, eval)

	c.Generations().Abandon(context.Background(), infrastructure.Delivery{Body: []byte(`not json`)})
	c.Evaluations().Abandon(context.Background(), infrastructure.Delivery{Body: []byte(`{"id":"q1"}`)})

	assert.Empty(t, gen.abandoned)
	assert.Empty(t, eval.abandoned)
}

func TestConsumerAbandonSurvivesStoreError(t *testing.T) {
	eval := &fakeEvaluator{abandonErr: errors.New("db down")}
	h := newTestConsumer(&fakeGenerator{}, eval).Evaluations()

	assert.NotPanics(t, func() {
		h.Abandon(context.Background(), infrastructure.Delivery{
			Body: []byte(`{"id":"q1","evaluationId":"e1","userId":"learner","response":"42"}`),
		})
	})
	assert.Len(t, eval.abandoned, 1)
}

func TestConsumerHandlersDispatch(t *testing.T) {
	gen := &fakeGenerator{errs: map[string]error{"busy": domain.ErrInFlight}}
	eval := &fakeEvaluator{err: domain.ErrNotReady}
	c := newTestConsumer(gen, eval)

	got := c.Generations().HandleBatch(context.Background(), []infrastructure.Delivery{
		{Body: []byte(`{"id":"busy","userId":"u","topic":"fractions"}`)},
	})
	assert.Equal(t, []infrastructure.Disposition{infrastructure.Wait}, got)

	got = c.Evaluations().HandleBatch(context.Background(), []infrastructure.Delivery{
		{Body: []byte(`{"id":"q1","evaluationId":"e1","userId":"learner","response":"42"}`)},
	})
	assert.Equal(t, []infrastructure.Disposition{infrastructure.Wait}, got)
}
