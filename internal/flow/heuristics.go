// Package flow implements the conversation engine: the onboarding state machine,
// input heuristics, goal parsing, streak tracking, and reply generation shared by
// every inbound channel.
package flow

import (
	"strings"
)

// nonSubstantiveReplies are short greetings and acknowledgements that never count
// as a goals statement.
var nonSubstantiveReplies = map[string]bool{
	"hey": true, "hi": true, "hello": true, "yo": true, "sup": true,
	"ok": true, "okay": true, "k": true, "kk": true,
	"yes": true, "yeah": true, "yep": true, "no": true, "nah": true,
	"sure": true, "cool": true, "nice": true, "lol": true, "haha": true,
	"thanks": true, "thank you": true, "thx": true,
	"hmm": true, "idk": true, "what": true, "huh": true, "why": true,
}

// LooksLikeGoals reports whether inbound text plausibly states one or more goals:
// not a known throwaway reply, and long enough to carry content.
func LooksLikeGoals(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" || nonSubstantiveReplies[normalized] {
		return false
	}
	if len(normalized) < 10 {
		return false
	}
	return len(strings.Fields(normalized)) >= 3
}

// timeOfDayKeywords match any mention of a time of day or clock time.
var timeOfDayKeywords = []string{
	"morning", "midday", "noon", "lunch", "afternoon", "evening", "night",
	"am", "pm", "o'clock", "oclock", "sunrise", "after work", "before work",
	"early", "late",
}

// timezoneKeywords map common timezone mentions to IANA identifiers.
var timezoneKeywords = []struct {
	keyword string
	zone    string
}{
	{"eastern", "America/New_York"},
	{"est", "America/New_York"},
	{"edt", "America/New_York"},
	{"new york", "America/New_York"},
	{"central", "America/Chicago"},
	{"cst", "America/Chicago"},
	{"cdt", "America/Chicago"},
	{"chicago", "America/Chicago"},
	{"mountain", "America/Denver"},
	{"mst", "America/Denver"},
	{"mdt", "America/Denver"},
	{"denver", "America/Denver"},
	{"pacific", "America/Los_Angeles"},
	{"pst", "America/Los_Angeles"},
	{"pdt", "America/Los_Angeles"},
	{"california", "America/Los_Angeles"},
	{"la", "America/Los_Angeles"},
	{"london", "Europe/London"},
	{"uk", "Europe/London"},
	{"gmt", "Europe/London"},
	{"berlin", "Europe/Berlin"},
	{"paris", "Europe/Paris"},
	{"utc", "UTC"},
}

// DefaultTimezone is used when no timezone keyword matches.
const DefaultTimezone = "America/New_York"

// LooksLikeSchedule reports whether inbound text mentions a timezone or a time of
// day, i.e. plausibly answers the schedule question.
func LooksLikeSchedule(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range timeOfDayKeywords {
		if containsTimeWord(normalized, kw) {
			return true
		}
	}
	for _, tz := range timezoneKeywords {
		if containsWord(normalized, tz.keyword) {
			return true
		}
	}
	return false
}

// InferTimezone infers an IANA timezone identifier from schedule text,
// defaulting to DefaultTimezone.
func InferTimezone(text string) string {
	normalized := strings.ToLower(text)
	for _, tz := range timezoneKeywords {
		if containsWord(normalized, tz.keyword) {
			return tz.zone
		}
	}
	return DefaultTimezone
}

// Keyword sets for check-in hour inference, checked in order. Morning is the
// default when nothing matches.
var (
	eveningKeywords = []string{"evening", "night", "after work", "dinner", "late"}
	middayKeywords  = []string{"midday", "noon", "lunch", "afternoon"}
	morningKeywords = []string{"morning", "sunrise", "early", "before work", "breakfast"}
)

// InferCheckinHour infers the user's preferred primary check-in hour (local)
// from schedule text: evening 19, midday 13, morning 8, default morning.
func InferCheckinHour(text string) int {
	normalized := strings.ToLower(text)
	for _, kw := range eveningKeywords {
		if strings.Contains(normalized, kw) {
			return 19
		}
	}
	for _, kw := range middayKeywords {
		if strings.Contains(normalized, kw) {
			return 13
		}
	}
	for _, kw := range morningKeywords {
		if strings.Contains(normalized, kw) {
			return 8
		}
	}
	return 8
}

// confirmationWords accept the proposed plan.
var confirmationWords = []string{
	"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "sounds good",
	"let's go", "lets go", "let's do it", "lets do it", "deal", "i'm in",
	"im in", "perfect", "great", "love it", "absolutely", "definitely", "down",
}

// IsConfirmation reports whether inbound text accepts the proposed plan.
func IsConfirmation(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, w := range confirmationWords {
		if normalized == w || strings.HasPrefix(normalized, w+" ") || strings.HasPrefix(normalized, w+"!") || strings.HasPrefix(normalized, w+",") {
			return true
		}
	}
	return false
}

// checkinTriggers are phrases a user sends to start reporting on their goals.
var checkinTriggers = []string{
	"check in", "checkin", "checking in", "check-in", "done for today",
	"report", "update time",
}

// IsCheckinTrigger reports whether inbound text starts a check-in exchange.
func IsCheckinTrigger(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, t := range checkinTriggers {
		if normalized == t || strings.HasPrefix(normalized, t) {
			return true
		}
	}
	return false
}

// negationWords veto a positive completion reading.
var negationWords = []string{"didn't", "didnt", "not", "no", "nope", "missed", "failed", "skip", "skipped", "couldn't", "couldnt"}

// completionWords signal the user did the thing.
var completionWords = []string{"done", "did", "yes", "yeah", "yep", "finished", "completed", "crushed", "nailed", "hit", "smashed"}

// IsPositiveCompletion reports whether a check-in reply counts as completing the
// day's goals. Negations win over completion words.
func IsPositiveCompletion(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, w := range negationWords {
		if containsWord(normalized, w) {
			return false
		}
	}
	for _, w := range completionWords {
		if containsWord(normalized, w) {
			return true
		}
	}
	return false
}

// containsTimeWord matches a time-of-day keyword with relaxed boundaries: a
// clock digit may precede it ("7pm") and a plural "s" may follow ("mornings").
func containsTimeWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		beforeOK := start == 0 || !isLetter(s[start-1])
		if end < len(s) && s[end] == 's' {
			end++
		}
		afterOK := end == len(s) || !isWordChar(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(s) {
			return false
		}
	}
}

// containsWord reports whether s contains w bounded by non-letter characters.
func containsWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		beforeOK := start == 0 || !isWordChar(s[start-1])
		afterOK := end == len(s) || !isWordChar(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(s) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
