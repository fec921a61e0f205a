package application

import (
	"math"

	"frq-generator/domain"
)

// Metrics summarizes generation quality over every stored attempt.
type Metrics struct {
	TotalQuestions  int `json:"totalQuestions"`
	TotalIterations int `json:"totalIterations"`
	TotalError      int `json:"totalError"`
	FirstRight      int `json:"firstRight"`
	// FTR is the first-time-right percentage of published questions.
	FTR       int `json:"ftr"`
	ErrorRate int `json:"errorRate"`
}

// Summarize computes Metrics from a scan of all attempts. A published question is first-time
// right when it has no rejected iteration 1 attempt. Percentages are relative to the number of
// published questions and are 0 when there are none.
func Summarize(attempts []*domain.QuestionAttempt) Metrics {
	m := Metrics{TotalIterations: len(attempts)}

	published := map[string]bool{}
	for _, a := range attempts {
		if !a.IsFinal() {
			continue
		}
		switch a.State {
		case domain.QuestionPublished:
			published[a.QuestionID] = true
		case domain.QuestionFailed:
			m.TotalError++
		}
	}
	m.TotalQuestions = len(published)

	firstWrong := 0
	for _, a := range attempts {
		if a.Iteration == 1 && a.State == domain.QuestionRejected && published[a.QuestionID] {
			firstWrong++
		}
	}
	m.FirstRight = m.TotalQuestions - firstWrong

	if m.TotalQuestions > 0 {
		m.FTR = percent(m.FirstRight, m.TotalQuestions)
		m.ErrorRate = percent(m.TotalError, m.TotalQuestions)
	}
	return m
}

func percent(n, total int) int {
	return int(math.Round(100 * float64(n) / float64(total)))
}
