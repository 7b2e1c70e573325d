package coach

import (
	"fmt"
	"strings"
)

// MaxMessageLength caps chat and voice messages, in characters.
const MaxMessageLength = 1000

var deepKeywords = []string{
	"urge", "triggered", "struggling", "relapse", "tempted", "feeling weak",
	"can't resist", "about to", "edge", "edging", "craving", "lonely",
	"stressed", "anxious", "depressed", "help", "addiction", "overcome",
	"improve", "how to", "what should", "can't stop", "giving up", "fight",
}

// IsDeep reports whether message reads like a request for in-depth support.
func IsDeep(message string) bool {
	lower := strings.ToLower(message)
	for _, k := range deepKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Streak is the caller's current and longest streak, in days.
type Streak struct {
	Current int `json:"currentStreak" validate:"gte=0"`
	Longest int `json:"longestStreak" validate:"gte=0"`
}

// Context describes the streak in one short sentence.
func (s Streak) Context() string {
	switch {
	case s.Current <= 0:
		return "Starting fresh today."
	case s.Current == s.Longest:
		return fmt.Sprintf("NEW RECORD: %d days.", s.Current)
	case s.Longest > 0 && float64(s.Current) >= float64(s.Longest)*0.7:
		return fmt.Sprintf("Approaching your record, %d days to beat it.", s.Longest-s.Current)
	case s.Current >= 7:
		return fmt.Sprintf("Building momentum at %d days.", s.Current)
	case s.Current >= 3:
		return fmt.Sprintf("Early phase, day %d.", s.Current)
	default:
		return fmt.Sprintf("Day %d. Every day counts.", s.Current)
	}
}

func chatPrompt(persona string, deep bool, s Streak) string {
	if deep {
		return fmt.Sprintf("You are %s, an advanced recovery coach. Current streak: %d, longest: %d. %s",
			persona, s.Current, s.Longest, s.Context())
	}
	return fmt.Sprintf("You are %s, a friendly AI coach. Current streak: %d, longest: %d. Keep answers concise.",
		persona, s.Current, s.Longest)
}

func voicePrompt(persona string) string {
	return fmt.Sprintf("You are %s Voice Coach. Keep responses short, warm and direct.", persona)
}

const (
	affirmationSystem = "You are a supportive coach. Generate short affirmations, one per line."
	affirmationUser   = "Generate EXACTLY 6 short affirmations, 5-8 words each, for someone recovering from pornography addiction. One per line, no numbering."
)

func crisisPrompt(persona string, s Streak) string {
	return fmt.Sprintf("You are %s Crisis Coach. Current streak: %d. %s "+
		"Provide a short, grounding, empowering message (3 paragraphs max) and a 2-3 sentence breathing grounding instruction. "+
		`Respond in JSON: {"mainText":"...","guidanceText":"..."}`,
		persona, s.Current, s.Context())
}

func crisisUser(s Streak) string {
	return fmt.Sprintf("Current streak: %d. I need urgent help.", s.Current)
}

func reportPrompt(persona string, in ReportInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Generate a 3-4 paragraph motivational report for:\n", persona)
	fmt.Fprintf(&b, "Frequency: %s\n", orDefault(in.Frequency, "Unknown"))
	fmt.Fprintf(&b, "Effects: %s\n", joinOrNone(in.Effects))
	fmt.Fprintf(&b, "Triggers: %s\n", joinOrNone(in.Triggers))
	fmt.Fprintf(&b, "Goals: %s\n", joinOrNone(in.Goals))
	if in.GoalDetails != "" {
		fmt.Fprintf(&b, "Details: %s\n", in.GoalDetails)
	}
	fmt.Fprintf(&b, `Return JSON: {"insight":"...","estimatedDays":%d}`, DefaultEstimatedDays)
	return b.String()
}

const reportUser = "Generate the report JSON"

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
