package service

import (
	"time"

	"helios.network/testnetapi/internal/modules/leaderboard/dto"
)

// weekWindow is the lookback used for activity labels.
const weekWindow = 7 * 24 * time.Hour

// periodStart returns the inclusive start of a leaderboard window in UTC.
// Daily and monthly windows are calendar aligned; weekly is rolling.
func periodStart(period string, now time.Time) (time.Time, bool) {
	now = now.UTC()
	switch period {
	case dto.PeriodDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	case dto.PeriodWeekly:
		return now.Add(-weekWindow), true
	case dto.PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), true
	default:
		return time.Time{}, false
	}
}
