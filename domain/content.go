package domain

// StatusContent is the stored body of a placeholder.
type StatusContent struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// QuestionContent returns the stored body of an attempt: a placeholder status or the candidate.
func QuestionContent(a *QuestionAttempt) any {
	switch a.State {
	case QuestionPending:
		return StatusContent{Status: StatusPending}
	case QuestionFailed:
		return StatusContent{Status: StatusUnableToGenerate}
	default:
		if a.Candidate == nil {
			return Candidate{}
		}
		return *a.Candidate
	}
}

// EvaluationContent returns the stored body of an evaluation record.
func EvaluationContent(e *EvaluationRecord) any {
	switch e.State {
	case EvaluationCompleted:
		if e.Grade == nil {
			return Grade{Scores: []float64{}}
		}
		return *e.Grade
	case EvaluationFailed:
		return StatusContent{Status: string(EvaluationFailed), Reason: e.Reason}
	default:
		return StatusContent{Status: string(EvaluationPending)}
	}
}
