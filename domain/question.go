package domain

import "time"

// QuestionState is the lifecycle state of a question attempt.
// The iteration 0 attempt moves pending -> published | failed and never leaves a terminal state.
// Attempts at iteration >= 1 are always rejected.
type QuestionState string

const (
	QuestionPending   QuestionState = "pending"
	QuestionPublished QuestionState = "published"
	QuestionFailed    QuestionState = "failed"
	QuestionRejected  QuestionState = "rejected"
)

// Placeholder statuses as rendered in stored content.
const (
	StatusPending          = "Pending"
	StatusUnableToGenerate = "Unable to generate FRQ"
	StatusUnableToEvaluate = "Unable to evaluate response"
)

// AutomationOwner owns rejected self-check attempts.
const AutomationOwner = "AI"

// FinalIteration is the iteration slot holding the public state of a question.
const FinalIteration = 0

// Candidate is a generated free response question.
type Candidate struct {
	Context  string `json:"context"`
	Question string `json:"question"`
	Rubric   string `json:"rubric"`
}

// QuestionAttempt is one generation trial for a question id.
type QuestionAttempt struct {
	QuestionID string
	Iteration  int
	Topic      string
	OwnerID    string
	State      QuestionState
	Candidate  *Candidate
	// RequestID is the dedup token of the generation request that produced the attempt.
	RequestID string
	CreatedAt time.Time
}

func (a *QuestionAttempt) IsFinal() bool {
	return a.Iteration == FinalIteration
}

// Terminal reports whether the attempt can no longer change state.
func (a *QuestionAttempt) Terminal() bool {
	return a.State == QuestionPublished || a.State == QuestionFailed || a.State == QuestionRejected
}

// NewPendingAttempt builds the iteration 0 placeholder written before generation starts.
func NewPendingAttempt(questionID, topic, ownerID, requestID string) *QuestionAttempt {
	return &QuestionAttempt{
		QuestionID: questionID,
		Iteration:  FinalIteration,
		Topic:      topic,
		OwnerID:    ownerID,
		State:      QuestionPending,
		RequestID:  requestID,
	}
}

// NewPublishedAttempt builds the iteration 0 attempt for an accepted candidate.
func NewPublishedAttempt(questionID, topic, ownerID, requestID string, c Candidate) *QuestionAttempt {
	return &QuestionAttempt{
		QuestionID: questionID,
		Iteration:  FinalIteration,
		Topic:      topic,
		OwnerID:    ownerID,
		State:      QuestionPublished,
		Candidate:  &c,
		RequestID:  requestID,
	}
}

// NewFailedAttempt builds the iteration 0 placeholder for a question that will never be published.
func NewFailedAttempt(questionID, topic, ownerID, requestID string) *QuestionAttempt {
	return &QuestionAttempt{
		QuestionID: questionID,
		Iteration:  FinalIteration,
		Topic:      topic,
		OwnerID:    ownerID,
		State:      QuestionFailed,
		RequestID:  requestID,
	}
}

// NewRejectedAttempt builds an audit trail attempt for a candidate that failed the quality gate.
func NewRejectedAttempt(questionID, topic string, iteration int, c Candidate) *QuestionAttempt {
	return &QuestionAttempt{
		QuestionID: questionID,
		Iteration:  iteration,
		Topic:      topic,
		OwnerID:    AutomationOwner,
		State:      QuestionRejected,
		Candidate:  &c,
	}
}
