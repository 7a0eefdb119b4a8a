package flow

import (
	"time"

	"github.com/coachpipe/coachpipe/internal/models"
)

const dateLayout = "2006-01-02"

// ApplyCheckin records a positive check-in for the given local calendar day on
// the user row and on every active goal. It is idempotent per day: a second
// positive check-in on the same date changes nothing. A check-in the day after
// the last one extends the streak; any gap resets it to 1.
func ApplyCheckin(u models.User, goals []models.Goal, today time.Time) (models.User, []models.Goal) {
	todayStr := today.Format(dateLayout)
	if u.LastCheckinDate == todayStr {
		return u, goals
	}

	yesterdayStr := today.AddDate(0, 0, -1).Format(dateLayout)
	if u.LastCheckinDate == yesterdayStr {
		u.CurrentStreak++
	} else {
		u.CurrentStreak = 1
	}
	u.LastCheckinDate = todayStr
	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}

	updated := make([]models.Goal, len(goals))
	for i, g := range goals {
		if u.CurrentStreak == 1 {
			g.CurrentStreak = 1
		} else {
			g.CurrentStreak++
		}
		if g.CurrentStreak > g.LongestStreak {
			g.LongestStreak = g.CurrentStreak
		}
		updated[i] = g
	}
	return u, updated
}

// UserLocation resolves the user's timezone, falling back to the default zone
// when unset or invalid.
func UserLocation(u models.User) *time.Location {
	if u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
