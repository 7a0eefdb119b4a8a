package flow

import (
	"regexp"
	"strings"

	"github.com/coachpipe/coachpipe/internal/models"
)

// listItemRegex strips leading numbering or bullet markers from a line.
var listItemRegex = regexp.MustCompile(`^\s*(?:\d+[.)]\s*|[-*•]\s*)`)

// ParseGoals decomposes a goals statement into individual goal texts, capped at
// models.MaxGoalsPerUser. Parse order: numbered/bulleted list, newline split,
// comma split, whole text as a single goal.
func ParseGoals(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")

	// Numbered or bulleted list items.
	var items []string
	for _, line := range lines {
		if listItemRegex.MatchString(line) {
			if item := strings.TrimSpace(listItemRegex.ReplaceAllString(line, "")); item != "" {
				items = append(items, item)
			}
		}
	}
	if len(items) >= 2 {
		return capGoals(items)
	}

	// Plain one-goal-per-line input.
	items = items[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) >= 2 {
		return capGoals(items)
	}

	// Comma-separated clauses ("gym 4x a week, read 2 books").
	items = items[:0]
	for _, part := range strings.Split(text, ",") {
		if trimmed := strings.TrimSpace(part); len(trimmed) >= 3 {
			items = append(items, trimmed)
		}
	}
	if len(items) >= 2 {
		return capGoals(items)
	}

	return []string{text}
}

func capGoals(items []string) []string {
	if len(items) > models.MaxGoalsPerUser {
		return items[:models.MaxGoalsPerUser]
	}
	return items
}

// GoalsFromTexts builds positioned goal records for a user from parsed goal texts.
func GoalsFromTexts(userID string, texts []string) []models.Goal {
	goals := make([]models.Goal, 0, len(texts))
	for i, t := range texts {
		goals = append(goals, models.Goal{
			UserID:   userID,
			Position: i + 1,
			Text:     t,
			Active:   true,
		})
	}
	return goals
}
