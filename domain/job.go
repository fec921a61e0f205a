package domain

// GenerationJob is the queue message requesting generation of a question.
type GenerationJob struct {
	ID     string `json:"id" validate:"required"`
	UserID string `json:"userId" validate:"required"`
	Topic  string `json:"topic" validate:"required"`
	// RequestID names the HTTP request that ordered the question and is stored for auditing.
	// Redeliveries are deduplicated by question id and the generation lease, not by this value.
	RequestID string `json:"requestId,omitempty"`
}

// EvaluationJob is the queue message requesting grading of a learner response.
type EvaluationJob struct {
	ID           string `json:"id" validate:"required"`
	EvaluationID string `json:"evaluationId" validate:"required"`
	UserID       string `json:"userId" validate:"required"`
	Response     string `json:"response" validate:"required"`
}
