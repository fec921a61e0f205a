package domain

import "time"

// ClaimOutcome is the result of trying to take the generation lease of a question.
type ClaimOutcome int

const (
	// ClaimAcquired means the caller now drives the generation loop.
	ClaimAcquired ClaimOutcome = iota
	// ClaimCompleted means the question already reached a terminal state.
	ClaimCompleted
	// ClaimBusy means another run holds an unexpired lease.
	ClaimBusy
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimAcquired:
		return "acquired"
	case ClaimCompleted:
		return "completed"
	case ClaimBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// GenerationClaim asks for the lease on a question's iteration 0 placeholder.
// The placeholder is created from QuestionID, Topic, OwnerID and RequestID when absent.
type GenerationClaim struct {
	QuestionID string
	Topic      string
	OwnerID    string
	RequestID  string
	RunID      string
	Until      time.Time
}
