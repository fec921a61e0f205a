package application

import (
	"errors"

	"frq-generator/domain"
)

// Percentage is 100 * sum(scores) / (len(scores) * maxScore).
func Percentage(scores []float64, maxScore float64) (float64, error) {
	if len(scores) == 0 {
		return 0, &domain.CapabilityError{Op: "grade", Err: errors.New("grade has no scores")}
	}
	return 100 * sum(scores) / (float64(len(scores)) * maxScore), nil
}

// Accept reports whether scores meet threshold percent of the maximum. The comparison is
// done without division so that a grade of exactly the threshold is accepted.
func Accept(scores []float64, threshold, maxScore float64) (bool, error) {
	if len(scores) == 0 {
		return false, &domain.CapabilityError{Op: "grade", Err: errors.New("grade has no scores")}
	}
	return 100*sum(scores) >= threshold*float64(len(scores))*maxScore, nil
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}
