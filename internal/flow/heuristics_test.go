package flow

import "testing"

func TestLooksLikeGoals(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"gym 4x a week, read 2 books", true},
		{"run every morning and stop doomscrolling", true},
		{"1. gym\n2. read more\n3. sleep by 11", true},
		{"ok", false},
		{"hey", false},
		{"thanks", false},
		{"gym", false},
		{"get fit now", true},
		{"be better", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := LooksLikeGoals(tt.text); got != tt.want {
			t.Errorf("LooksLikeGoals(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestLooksLikeSchedule(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"mornings work best", true},
		{"I'm in pacific time", true},
		{"7pm after the gym", true},
		{"9am works for me", true},
		{"eastern, evenings", true},
		{"whenever works", false},
		{"love this game", false},
		{"sure", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := LooksLikeSchedule(tt.text); got != tt.want {
			t.Errorf("LooksLikeSchedule(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestInferTimezone(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"pacific, evenings", "America/Los_Angeles"},
		{"I'm in Chicago", "America/Chicago"},
		{"EST here", "America/New_York"},
		{"mountain time", "America/Denver"},
		{"London, mornings", "Europe/London"},
		{"mornings are good", DefaultTimezone},
	}
	for _, tt := range tests {
		if got := InferTimezone(tt.text); got != tt.want {
			t.Errorf("InferTimezone(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestInferCheckinHour(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"evenings after work", 19},
		{"night owl here", 19},
		{"lunch break", 13},
		{"early mornings", 8},
		{"pacific time", 8},
	}
	for _, tt := range tests {
		if got := InferCheckinHour(tt.text); got != tt.want {
			t.Errorf("InferCheckinHour(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestIsConfirmation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"yes", true},
		{"Yeah, let's do it", true},
		{"sounds good", true},
		{"I'm in", true},
		{"ok!", true},
		{"not sure about this", false},
		{"how much does it cost?", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsConfirmation(tt.text); got != tt.want {
			t.Errorf("IsConfirmation(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsPositiveCompletion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"done", true},
		{"yep, hit the gym", true},
		{"crushed it today", true},
		{"didn't do it", false},
		{"not done yet", false},
		{"missed the gym but did read", false},
		{"rough day", false},
	}
	for _, tt := range tests {
		if got := IsPositiveCompletion(tt.text); got != tt.want {
			t.Errorf("IsPositiveCompletion(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsCheckinTrigger(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"checking in", true},
		{"check in time", true},
		{"done for today", true},
		{"hey", false},
		{"how are you", false},
	}
	for _, tt := range tests {
		if got := IsCheckinTrigger(tt.text); got != tt.want {
			t.Errorf("IsCheckinTrigger(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
