package extractor

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrPaymentRequired isolates pay-walled items into their own result bucket.
var ErrPaymentRequired = errors.New("payment required")

// SkipError marks an item permanently unfetchable; callers set skip=true.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "unfetchable: " + e.Reason }

// SleepError marks an item not yet released (live or premiering). Delay is
// the extractor's own estimate of time until availability; callers add
// their own buffer on top.
type SleepError struct {
	Reason string
	Delay  time.Duration
}

func (e *SleepError) Error() string { return "not yet available: " + e.Reason }

var skipSubstrings = []string{
	"Video unavailable",
	"members-only",
	"confirm your age",
	"Private video",
}

var sleepSubstrings = []string{
	"live video",
	"Premieres in",
	"will begin in",
	"begin in a few moments",
}

var delayRe = regexp.MustCompile(`in (\d+) (day|hour|minute|second)s?`)

// Classify maps an extractor failure onto the error taxonomy: payment
// walls, permanently unfetchable items, and not-yet-released items. Returns
// nil for anything else so generic failures keep their original error.
func Classify(err error) error {
	var re *RunError
	if !errors.As(err, &re) {
		return nil
	}
	msg := re.Message

	if strings.Contains(msg, "requires payment") {
		return ErrPaymentRequired
	}
	for _, s := range skipSubstrings {
		if strings.Contains(msg, s) {
			return &SkipError{Reason: s}
		}
	}
	for _, s := range sleepSubstrings {
		if strings.Contains(msg, s) {
			return &SleepError{Reason: s, Delay: parseDelay(msg)}
		}
	}
	return nil
}

// parseDelay extracts "in N unit" from a premiere/live message. "a few
// moments" maps to one hour; anything unparsable to one day.
func parseDelay(msg string) time.Duration {
	if strings.Contains(msg, "a few moments") {
		return time.Hour
	}
	m := delayRe.FindStringSubmatch(msg)
	if m == nil {
		return 24 * time.Hour
	}
	n := time.Duration(0)
	for _, c := range m[1] {
		n = n*10 + time.Duration(c-'0')
	}
	switch m[2] {
	case "day":
		return n * 24 * time.Hour
	case "hour":
		return n * time.Hour
	case "minute":
		return n * time.Minute
	default:
		return n * time.Second
	}
}
