package coach

import "fmt"

// DefaultEstimatedDays is reported when the model gives no estimate.
const DefaultEstimatedDays = 15

const (
	fallbackGuidance = "Slow breathing: in 4, hold 2, out 6. Notice thoughts, don't act on them. You're safe."
	fallbackInsight  = "Every day you choose differently rewires the habit. Keep going, one day at a time."
	defaultMainText  = "You're stronger than this urge."
	defaultGuidance  = "Breathe slowly. This will pass."
)

// FallbackGuidance is the deterministic crisis response used when the
// provider cannot answer.
func FallbackGuidance(s Streak) (mainText, guidanceText string) {
	if s.Current > 0 {
		mainText = fmt.Sprintf("You've held %d days of progress, and that shows strength. This urge is temporary. Sit with it and breathe.", s.Current)
	} else {
		mainText = "You chose to change. That first step matters. This feeling will pass."
	}
	return mainText, fallbackGuidance
}
