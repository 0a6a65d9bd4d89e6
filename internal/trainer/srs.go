package trainer

import (
	"math"

	"github.com/Romariozh/vim-deepl/internal/storage"
)

const (
	daySeconds = 86400
	yearDays   = 365

	minEF     = 1.3
	defaultEF = 2.5
)

// computeSRS applies the SM-2 update for one graded review and returns the
// full post-review card state. All timestamps are unix seconds.
func computeSRS(c *storage.Card, grade int, nowTS int64) storage.SRSState {
	ef := c.EF
	if ef == 0 {
		ef = defaultEF
	}
	q := float64(5 - grade)
	ef = ef + 0.1 - q*(0.08+q*0.02)
	if ef < minEF {
		ef = minEF
	}

	st := storage.SRSState{
		Lapses:        c.Lapses,
		EF:            ef,
		LastReviewAt:  nowTS,
		LastGrade:     grade,
		CorrectStreak: c.CorrectStreak,
		WrongStreak:   c.WrongStreak,
	}

	if grade < 3 {
		st.Lapses++
		st.Reps = 0
		st.IntervalDays = 1
		st.WrongStreak++
		st.CorrectStreak = 0
	} else {
		st.Reps = c.Reps + 1
		switch {
		case st.Reps <= 1:
			st.IntervalDays = 1
		case st.Reps == 2:
			st.IntervalDays = 3
		default:
			prev := c.IntervalDays
			if prev < 1 {
				prev = 1
			}
			st.IntervalDays = int(math.Round(float64(prev) * ef))
			if st.IntervalDays < 1 {
				st.IntervalDays = 1
			}
		}
		st.CorrectStreak++
		st.WrongStreak = 0
	}
	st.DueAt = nowTS + int64(st.IntervalDays)*daySeconds

	// Guard against absurd schedules surviving legacy data: anything still in
	// the distant past collapses to tomorrow.
	if st.DueAt < nowTS-yearDays*daySeconds {
		st.IntervalDays = 1
		st.DueAt = nowTS + daySeconds
	}
	return st
}
