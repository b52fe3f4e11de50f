package setup

import (
	"fmt"
	"math"
	"time"

	"github.com/roseram/previewd/internal/types"
)

// CalculateProgress converts completed steps to a whole percentage.
func CalculateProgress(completedSteps []int) int {
	return int(math.Round(float64(len(completedSteps)) / float64(types.TotalSetupSteps) * 100))
}

// NextStep returns the lowest step not yet completed, or 0 when all four
// are done.
func NextStep(session *types.SetupSession) int {
	for step := 1; step <= types.TotalSetupSteps; step++ {
		if !session.HasCompleted(step) {
			return step
		}
	}
	return 0
}

// IsSetupComplete reports whether every step has completed.
func IsSetupComplete(session *types.SetupSession) bool {
	return len(session.CompletedSteps) == types.TotalSetupSteps
}

// FormatDuration renders the elapsed time between start and end (now when
// end is nil) as "Ns", "Nm Ss", or "Nh Nm".
func FormatDuration(start time.Time, end *time.Time) string {
	until := time.Now()
	if end != nil {
		until = *end
	}

	elapsed := until.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	totalSeconds := int(elapsed.Seconds())
	switch {
	case totalSeconds < 60:
		return fmt.Sprintf("%ds", totalSeconds)
	case totalSeconds < 3600:
		return fmt.Sprintf("%dm %ds", totalSeconds/60, totalSeconds%60)
	default:
		return fmt.Sprintf("%dh %dm", totalSeconds/3600, (totalSeconds%3600)/60)
	}
}
