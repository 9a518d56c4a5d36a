package leveling

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// MaxXP is the upper bound of a user's xp balance.
	MaxXP = 1_000_000
	// MaxLevels is the largest level a table may define.
	MaxLevels = 100
)

// Table maps level to the minimum xp needed for it. Level 1 is at 0.
type Table map[int]int

// DefaultTable is the xp level table used when none is configured.
func DefaultTable() Table {
	return Table{
		1:  0,
		2:  100,
		3:  250,
		4:  500,
		5:  1000,
		6:  2000,
		7:  3500,
		8:  5000,
		9:  7500,
		10: 10000,
	}
}

// DefaultContributionTable is the contributor reputation table.
func DefaultContributionTable() Table {
	return Table{
		1: 0,
		2: 100,
		3: 250,
		4: 500,
		5: 1000,
	}
}

// Validate checks that levels are 1..N without gaps, level 1 is at 0 and
// thresholds strictly increase.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("level table is empty")
	}
	if len(t) > MaxLevels {
		return fmt.Errorf("level table defines %d levels, max is %d", len(t), MaxLevels)
	}
	if t[1] != 0 {
		return errors.New("level 1 must start at 0 xp")
	}
	for level := 1; level <= len(t); level++ {
		threshold, ok := t[level]
		if !ok {
			return fmt.Errorf("level table is missing level %d", level)
		}
		if level > 1 && threshold <= t[level-1] {
			return fmt.Errorf("threshold for level %d (%d) must exceed level %d (%d)",
				level, threshold, level-1, t[level-1])
		}
	}
	return nil
}

// MaxLevel returns the highest defined level.
func (t Table) MaxLevel() int {
	return len(t)
}

// Threshold returns the minimum xp for level.
func (t Table) Threshold(level int) (int, bool) {
	v, ok := t[level]
	return v, ok
}

// Levels returns the defined levels in ascending order.
func (t Table) Levels() []int {
	levels := make([]int, 0, len(t))
	for l := range t {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	return levels
}

// LevelFor returns the highest level whose threshold is <= xp.
func (t Table) LevelFor(xp int) int {
	for level := t.MaxLevel(); level >= 1; level-- {
		if threshold, ok := t[level]; ok && xp >= threshold {
			return level
		}
	}
	return 1
}

// Status is a user's position within a level table.
type Status struct {
	Level            int     `json:"level"`
	NextLevel        int     `json:"next_level"`
	CurrentXP        int     `json:"current_xp"`
	CurrentThreshold int     `json:"current_threshold"`
	NextThreshold    int     `json:"next_threshold"`
	XPToNext         int     `json:"xp_to_next"`
	Progress         float64 `json:"progress"`
	IsMaxLevel       bool    `json:"is_max_level"`
}

// Status computes level and progress toward the next level. Progress is a
// percentage within the current level band rounded to 2 decimals.
func (t Table) Status(xp int) Status {
	level := t.LevelFor(xp)
	s := Status{
		Level:            level,
		CurrentXP:        xp,
		CurrentThreshold: t[level],
	}

	if level >= t.MaxLevel() {
		s.NextLevel = level
		s.NextThreshold = t[level]
		s.Progress = 100
		s.IsMaxLevel = true
		return s
	}

	s.NextLevel = level + 1
	s.NextThreshold = t[level+1]
	s.XPToNext = s.NextThreshold - xp

	band := s.NextThreshold - s.CurrentThreshold
	if band > 0 {
		s.Progress = float64(xp-s.CurrentThreshold) / float64(band) * 100
	}
	s.Progress = math.Round(s.Progress*100) / 100
	return s
}

// Activity label thresholds for xp earned in the last 7 days.
const (
	WeeklyOnFire   = 500
	WeeklyTrending = 250
	WeeklyActive   = 100
)

// ActivityLabel describes recent activity for leaderboard entries.
func ActivityLabel(weeklyXP int) string {
	switch {
	case weeklyXP >= WeeklyOnFire:
		return "On Fire"
	case weeklyXP >= WeeklyTrending:
		return "Trending"
	case weeklyXP >= WeeklyActive:
		return "Active"
	default:
		return ""
	}
}
