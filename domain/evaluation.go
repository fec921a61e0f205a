package domain

import (
	"strconv"
	"time"
)

type EvaluationState string

const (
	EvaluationPending   EvaluationState = "pending"
	EvaluationCompleted EvaluationState = "completed"
	EvaluationFailed    EvaluationState = "failed"
)

// Grade is the result of grading a response against a rubric.
// Scores are ordered per rubric category.
type Grade struct {
	Feedback string    `json:"feedback"`
	Scores   []float64 `json:"scores"`
}

// EvaluationRecord is one grading result, either an AI self-check or a learner submission.
type EvaluationRecord struct {
	QuestionID   string
	EvaluationID string
	GraderID     string
	State        EvaluationState
	Grade        *Grade
	// Reason explains a failed evaluation.
	Reason    string
	CreatedAt time.Time
}

// SelfCheckGrader is the grader identity for the automation self-check of the given iteration.
func SelfCheckGrader(iteration int) string {
	return AutomationOwner + "#" + strconv.Itoa(iteration)
}

func NewPendingEvaluation(questionID, evaluationID, graderID string) *EvaluationRecord {
	return &EvaluationRecord{
		QuestionID:   questionID,
		EvaluationID: evaluationID,
		GraderID:     graderID,
		State:        EvaluationPending,
	}
}

func NewCompletedEvaluation(questionID, evaluationID, graderID string, g Grade) *EvaluationRecord {
	return &EvaluationRecord{
		QuestionID:   questionID,
		EvaluationID: evaluationID,
		GraderID:     graderID,
		State:        EvaluationCompleted,
		Grade:        &g,
	}
}

func NewFailedEvaluation(questionID, evaluationID, graderID, reason string) *EvaluationRecord {
	return &EvaluationRecord{
		QuestionID:   questionID,
		EvaluationID: evaluationID,
		GraderID:     graderID,
		State:        EvaluationFailed,
		Reason:       reason,
	}
}
