package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"frq-generator/domain"
)

type lease struct {
	owner string
	until time.Time
}

// memStore mirrors the claim and upsert semantics of the gorm content store.
type memStore struct {
	mu          sync.Mutex
	attempts    map[string]domain.QuestionAttempt
	evaluations map[string]domain.EvaluationRecord
	leases      map[string]lease
	now         func() time.Time

	putErr      error
	evalPutErr  error
	released    []string
	attemptPuts int
}

func newMemStore() *memStore {
	return &memStore{
		attempts:    map[string]domain.QuestionAttempt{},
		evaluations: map[string]domain.EvaluationRecord{},
		leases:      map[string]lease{},
		now:         time.Now,
	}
}

func attemptKey(id string, iteration int) string {
	return id + "/" + domain.QuestionKey(iteration)
}

func (s *memStore) PutAttempt(_ context.Context, a *domain.QuestionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.attemptPuts++
	s.attempts[attemptKey(a.QuestionID, a.Iteration)] = *a
	if a.IsFinal() {
		delete(s.leases, a.QuestionID)
	}
	return nil
}

func (s *memStore) PutEvaluation(_ context.Context, e *domain.EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evalPutErr != nil {
		return s.evalPutErr
	}
	s.evaluations[e.QuestionID+"/"+e.EvaluationID] = *e
	return nil
}

func (s *memStore) GetFinalAttempt(_ context.Context, questionID string) (*domain.QuestionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptKey(questionID, domain.FinalIteration)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) ListAttempts(_ context.Context, questionID string) ([]*domain.QuestionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.QuestionAttempt
	for _, a := range s.attempts {
		if a.QuestionID == questionID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Iteration < out[j].Iteration })
	return out, nil
}

func (s *memStore) ClaimGeneration(_ context.Context, c domain.GenerationClaim) (domain.ClaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := attemptKey(c.QuestionID, domain.FinalIteration)
	a, ok := s.attempts[key]
	if !ok {
		a = *domain.NewPendingAttempt(c.QuestionID, c.Topic, c.OwnerID, c.RequestID)
		s.attempts[key] = a
	}
	if a.Terminal() {
		return domain.ClaimCompleted, nil
	}
	if l, held := s.leases[c.QuestionID]; held && !l.until.Before(s.now()) {
		return domain.ClaimBusy, nil
	}
	s.leases[c.QuestionID] = lease{owner: c.RunID, until: c.Until}
	return domain.ClaimAcquired, nil
}

func (s *memStore) ReleaseGeneration(_ context.Context, questionID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leases[questionID]; ok && l.owner == runID {
		delete(s.leases, questionID)
	}
	s.released = append(s.released, runID)
	return nil
}

func (s *memStore) attemptsOf(questionID string) []domain.QuestionAttempt {
	list, _ := s.ListAttempts(context.Background(), questionID)
	out := make([]domain.QuestionAttempt, len(list))
	for i, a := range list {
		out[i] = *a
	}
	return out
}

func (s *memStore) evaluationsOf(questionID string) []domain.EvaluationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EvaluationRecord
	for _, e := range s.evaluations {
		if e.QuestionID == questionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GraderID < out[j].GraderID })
	return out
}

func (s *memStore) hasLease(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.leases[questionID]
	return ok
}

// scriptedAI hands out grades in order and counts calls.
type scriptedAI struct {
	mu     sync.Mutex
	grades [][]float64

	generateErr error
	gradeErr    error
	// gate, when set, blocks Generate until closed.
	gate chan struct{}

	generateCalls int
	answerCalls   int
	gradeCalls    int
}

func (s *scriptedAI) Generate(ctx context.Context, topic string) (domain.Candidate, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return domain.Candidate{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateCalls++
	if s.generateErr != nil {
		return domain.Candidate{}, s.generateErr
	}
	n := s.generateCalls
	return domain.Candidate{
		Context:  fmt.Sprintf("context %d about %s", n, topic),
		Question: fmt.Sprintf("question %d?", n),
		Rubric:   "Evidence; Analysis; Clarity",
	}, nil
}

func (s *scriptedAI) SimulateAnswer(_ context.Context, _, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerCalls++
	return "answer to " + question, nil
}

func (s *scriptedAI) Grade(_ context.Context, _, _, _, _ string) (domain.Grade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gradeCalls++
	if s.gradeErr != nil {
		return domain.Grade{}, s.gradeErr
	}
	if len(s.grades) == 0 {
		return domain.Grade{}, &domain.CapabilityError{Op: "grade", Err: fmt.Errorf("no scripted grade")}
	}
	scores := s.grades[0]
	if len(s.grades) > 1 {
		s.grades = s.grades[1:]
	}
	return domain.Grade{Feedback: "feedback", Scores: scores}, nil
}

func (s *scriptedAI) calls() (generate, answer, grade int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateCalls, s.answerCalls, s.gradeCalls
}
