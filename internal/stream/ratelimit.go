package stream

import (
	"fmt"
	"math"
	"time"
)

// Window is usage against one configured rate-limit window.
type Window struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// RateLimitSnapshot is the server's current view of usage across all four
// windows. It is replaced wholesale whenever the server reports it.
type RateLimitSnapshot struct {
	Burst   Window `json:"burst"`
	PerChat Window `json:"per_chat"`
	Hourly  Window `json:"hourly"`
	Daily   Window `json:"daily"`
}

// humanReset renders the time until a rate-limit reset for display: whole
// hours when more than 60 minutes remain, whole minutes when at least one
// remains, and a generic nudge otherwise.
func humanReset(reset, now time.Time) string {
	remaining := reset.Sub(now)
	switch {
	case remaining > time.Hour:
		hours := int(math.Round(remaining.Hours()))
		if hours <= 1 {
			return "try again in 1 hour"
		}
		return fmt.Sprintf("try again in %d hours", hours)
	case remaining >= time.Minute:
		minutes := int(math.Ceil(remaining.Minutes()))
		if minutes == 1 {
			return "try again in 1 minute"
		}
		return fmt.Sprintf("try again in %d minutes", minutes)
	default:
		return "try again in a moment"
	}
}
