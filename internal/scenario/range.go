package scenario

import "fmt"

// StepRange is an inclusive range of step indexes.
type StepRange struct {
	From int
	To   int
}

// SplitSteps splits [from, to] into batches of at most batchSize steps.
func SplitSteps(from, to, batchSize int) ([]StepRange, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if from < 0 || to < from {
		return nil, fmt.Errorf("invalid step range %d..%d", from, to)
	}

	ranges := make([]StepRange, 0, (to-from)/batchSize+1)
	for start := from; start <= to; start += batchSize {
		end := start + batchSize - 1
		if end > to {
			end = to
		}
		ranges = append(ranges, StepRange{From: start, To: end})
	}
	return ranges, nil
}
