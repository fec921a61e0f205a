package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"frq-generator/domain"
)

// FRQItem is one row of the content table. Questions and evaluations share the table,
// partitioned by ID and sub-keyed by Type (QUESTION#<n> or EVALUATION#<id>).
type FRQItem struct {
	ID         string         `gorm:"primaryKey;size:64"`
	Type       string         `gorm:"primaryKey;size:128"`
	Topic      string         `gorm:"type:text"`
	UserID     string         `gorm:"size:255;index"`
	State      string         `gorm:"size:32;not null"`
	Content    datatypes.JSON `gorm:"not null"`
	RequestID  string         `gorm:"size:64"`
	LeaseOwner string         `gorm:"size:64"`
	LeaseUntil *time.Time
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
}

func (FRQItem) TableName() string {
	return "frq_items"
}

// ContentStore persists question attempts and evaluation records.
// Writes are last-writer-wins per (id, type); the store does no merging.
type ContentStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewContentStore(db *gorm.DB) *ContentStore {
	return &ContentStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *ContentStore) PutAttempt(ctx context.Context, a *domain.QuestionAttempt) error {
	row, err := attemptToRow(a, s.now())
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, row); err != nil {
		return fmt.Errorf("store question %s#%d: %w", a.QuestionID, a.Iteration, err)
	}
	a.CreatedAt = row.CreatedAt
	return nil
}

func (s *ContentStore) PutEvaluation(ctx context.Context, e *domain.EvaluationRecord) error {
	row, err := evaluationToRow(e, s.now())
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, row); err != nil {
		return fmt.Errorf("store evaluation %s/%s: %w", e.QuestionID, e.EvaluationID, err)
	}
	e.CreatedAt = row.CreatedAt
	return nil
}

func (s *ContentStore) upsert(ctx context.Context, row *FRQItem) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
}

// GetFinalAttempt returns the iteration 0 attempt or domain.ErrNotFound.
func (s *ContentStore) GetFinalAttempt(ctx context.Context, questionID string) (*domain.QuestionAttempt, error) {
	var row FRQItem
	err := s.db.WithContext(ctx).
		Where("id = ? AND type = ?", questionID, domain.QuestionKey(domain.FinalIteration)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question %s: %w", questionID, err)
	}
	return rowToAttempt(&row)
}

// ListAttempts returns every attempt of a question ordered by iteration.
func (s *ContentStore) ListAttempts(ctx context.Context, questionID string) ([]*domain.QuestionAttempt, error) {
	var rows []FRQItem
	err := s.db.WithContext(ctx).
		Where("id = ? AND type LIKE ?", questionID, domain.QuestionKeyPrefix+"%").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list questions %s: %w", questionID, err)
	}
	return rowsToAttempts(rows)
}

// ListEvaluations returns the evaluation records of one grader for a question.
func (s *ContentStore) ListEvaluations(ctx context.Context, questionID, graderID string) ([]*domain.EvaluationRecord, error) {
	var rows []FRQItem
	err := s.db.WithContext(ctx).
		Where("id = ? AND type LIKE ? AND user_id = ?", questionID, domain.EvaluationKeyPrefix+"%", graderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list evaluations %s: %w", questionID, err)
	}

	out := make([]*domain.EvaluationRecord, 0, len(rows))
	for i := range rows {
		e, err := rowToEvaluation(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ListFinalAttempts scans the iteration 0 attempt of every question.
func (s *ContentStore) ListFinalAttempts(ctx context.Context) ([]*domain.QuestionAttempt, error) {
	var rows []FRQItem
	err := s.db.WithContext(ctx).
		Where("type = ?", domain.QuestionKey(domain.FinalIteration)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan final questions: %w", err)
	}
	return rowsToAttempts(rows)
}

// ListAllAttempts scans every attempt of every question.
func (s *ContentStore) ListAllAttempts(ctx context.Context) ([]*domain.QuestionAttempt, error) {
	var rows []FRQItem
	err := s.db.WithContext(ctx).
		Where("type LIKE ?", domain.QuestionKeyPrefix+"%").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan questions: %w", err)
	}
	return rowsToAttempts(rows)
}

// ClaimGeneration creates the pending placeholder when absent and then check-and-sets
// the generation lease on it. Only a pending placeholder with no live lease can be claimed.
// The claim's RequestID is recorded for auditing and never compared.
func (s *ContentStore) ClaimGeneration(ctx context.Context, c domain.GenerationClaim) (domain.ClaimOutcome, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	placeholder, err := attemptToRow(domain.NewPendingAttempt(c.QuestionID, c.Topic, c.OwnerID, c.RequestID), now)
	if err != nil {
		return domain.ClaimBusy, err
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(placeholder).Error; err != nil {
		return domain.ClaimBusy, fmt.Errorf("create placeholder %s: %w", c.QuestionID, err)
	}

	updates := map[string]any{
		"lease_owner": c.RunID,
		"lease_until": c.Until.UTC(),
	}
	if c.RequestID != "" {
		updates["request_id"] = c.RequestID
	}
	res := db.Model(&FRQItem{}).
		Where("id = ? AND type = ? AND state = ? AND (lease_until IS NULL OR lease_until < ?)",
			c.QuestionID, domain.QuestionKey(domain.FinalIteration), string(domain.QuestionPending), now).
		Updates(updates)
	if res.Error != nil {
		return domain.ClaimBusy, fmt.Errorf("claim question %s: %w", c.QuestionID, res.Error)
	}
	if res.RowsAffected == 1 {
		return domain.ClaimAcquired, nil
	}

	current, err := s.GetFinalAttempt(ctx, c.QuestionID)
	if err != nil {
		return domain.ClaimBusy, err
	}
	if current.Terminal() {
		return domain.ClaimCompleted, nil
	}
	return domain.ClaimBusy, nil
}

// ReleaseGeneration drops a lease still held by runID so a redelivery can claim immediately.
func (s *ContentStore) ReleaseGeneration(ctx context.Context, questionID, runID string) error {
	err := s.db.WithContext(ctx).Model(&FRQItem{}).
		Where("id = ? AND type = ? AND lease_owner = ?", questionID, domain.QuestionKey(domain.FinalIteration), runID).
		Updates(map[string]any{"lease_owner": "", "lease_until": nil}).Error
	if err != nil {
		return fmt.Errorf("release question %s: %w", questionID, err)
	}
	return nil
}

func attemptToRow(a *domain.QuestionAttempt, now time.Time) (*FRQItem, error) {
	content, err := json.Marshal(domain.QuestionContent(a))
	if err != nil {
		return nil, fmt.Errorf("marshal question content: %w", err)
	}
	return &FRQItem{
		ID:        a.QuestionID,
		Type:      domain.QuestionKey(a.Iteration),
		Topic:     a.Topic,
		UserID:    a.OwnerID,
		State:     string(a.State),
		Content:   datatypes.JSON(content),
		RequestID: a.RequestID,
		CreatedAt: now,
	}, nil
}

func evaluationToRow(e *domain.EvaluationRecord, now time.Time) (*FRQItem, error) {
	content, err := json.Marshal(domain.EvaluationContent(e))
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation content: %w", err)
	}
	return &FRQItem{
		ID:        e.QuestionID,
		Type:      domain.EvaluationKey(e.EvaluationID),
		UserID:    e.GraderID,
		State:     string(e.State),
		Content:   datatypes.JSON(content),
		CreatedAt: now,
	}, nil
}

func rowToAttempt(row *FRQItem) (*domain.QuestionAttempt, error) {
	iteration, err := domain.ParseQuestionKey(row.Type)
	if err != nil {
		return nil, err
	}
	a := &domain.QuestionAttempt{
		QuestionID: row.ID,
		Iteration:  iteration,
		Topic:      row.Topic,
		OwnerID:    row.UserID,
		State:      domain.QuestionState(row.State),
		RequestID:  row.RequestID,
		CreatedAt:  row.CreatedAt,
	}
	if a.State == domain.QuestionPublished || a.State == domain.QuestionRejected {
		var c domain.Candidate
		if err := json.Unmarshal(row.Content, &c); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", row.Type, err)
		}
		a.Candidate = &c
	}
	return a, nil
}

func rowsToAttempts(rows []FRQItem) ([]*domain.QuestionAttempt, error) {
	out := make([]*domain.QuestionAttempt, 0, len(rows))
	for i := range rows {
		a, err := rowToAttempt(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QuestionID != out[j].QuestionID {
			return out[i].QuestionID < out[j].QuestionID
		}
		return out[i].Iteration < out[j].Iteration
	})
	return out, nil
}

func rowToEvaluation(row *FRQItem) (*domain.EvaluationRecord, error) {
	evaluationID, err := domain.ParseEvaluationKey(row.Type)
	if err != nil {
		return nil, err
	}
	e := &domain.EvaluationRecord{
		QuestionID:   row.ID,
		EvaluationID: evaluationID,
		GraderID:     row.UserID,
		State:        domain.EvaluationState(row.State),
		CreatedAt:    row.CreatedAt,
	}
	switch e.State {
	case domain.EvaluationCompleted:
		var g domain.Grade
		if err := json.Unmarshal(row.Content, &g); err != nil {
			return nil, fmt.Errorf("decode evaluation %s: %w", row.Type, err)
		}
		e.Grade = &g
	case domain.EvaluationFailed:
		var sc domain.StatusContent
		if err := json.Unmarshal(row.Content, &sc); err != nil {
			return nil, fmt.Errorf("decode evaluation %s: %w", row.Type, err)
		}
		e.Reason = sc.Reason
	}
	return e, nil
}
