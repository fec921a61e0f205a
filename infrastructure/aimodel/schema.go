package aimodel

import (
	"fmt"
	"strconv"

	"frq-generator/infrastructure/llm"
)

var CandidateSchema = &llm.Schema{
	Name:        "frq-candidate",
	Description: "A free response question with its reading context and scoring rubric",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"context": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The context for the question",
			},
			"question": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The question itself",
			},
			"rubric": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The rubric for the question",
			},
		},
		"required":             []any{"context", "question", "rubric"},
		"additionalProperties": false,
	},
}

// GradeSchema asks for feedback and at least one score per response, each between 1 and maxScore.
func GradeSchema(maxScore float64) *llm.Schema {
	return &llm.Schema{
		Name:        "frq-grade",
		Description: "Feedback and per-category scores for a student response",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"feedback": map[string]any{
					"type":        "string",
					"description": "The grading for the student's response according to rubric",
				},
				"scores": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": map[string]any{
						"type":    "number",
						"minimum": 1,
						"maximum": maxScore,
					},
					"description": fmt.Sprintf("List of numeric scores from 1-%s for each rubric category", scale(maxScore)),
				},
			},
			"required":             []any{"feedback", "scores"},
			"additionalProperties": false,
		},
	}
}

func scale(maxScore float64) string {
	return strconv.FormatFloat(maxScore, 'f', -1, 64)
}
