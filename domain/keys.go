package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Sort key prefixes partitioning items under a question id.
const (
	QuestionKeyPrefix   = "QUESTION#"
	EvaluationKeyPrefix = "EVALUATION#"
)

func QuestionKey(iteration int) string {
	return QuestionKeyPrefix + strconv.Itoa(iteration)
}

func EvaluationKey(evaluationID string) string {
	return EvaluationKeyPrefix + evaluationID
}

// ParseQuestionKey extracts the iteration from a QUESTION# sort key.
func ParseQuestionKey(key string) (int, error) {
	raw, ok := strings.CutPrefix(key, QuestionKeyPrefix)
	if !ok {
		return 0, fmt.Errorf("not a question key: %q", key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid iteration in key %q", key)
	}
	return n, nil
}

// ParseEvaluationKey extracts the evaluation id from an EVALUATION# sort key.
func ParseEvaluationKey(key string) (string, error) {
	id, ok := strings.CutPrefix(key, EvaluationKeyPrefix)
	if !ok || id == "" {
		return "", fmt.Errorf("not an evaluation key: %q", key)
	}
	return id, nil
}
