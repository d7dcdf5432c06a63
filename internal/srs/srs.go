package srs

import (
	"fmt"
	"math"
	"time"

	"github.com/devyk100/memoriva/internal/domain"
)

// Interval constants, in minutes.
const (
	MinutesPerDay = 1440

	// MaxInterval caps every interval at 100 years.
	MaxInterval = 100 * 365 * MinutesPerDay

	newAgainInterval   = 5
	newHardInterval    = 10
	newEasyInterval    = 20
	againResetInterval = 10
)

// Ease factor bounds.
const (
	MinEaseFactor = 1.3
	MaxEaseFactor = 2.7
)

// NewCardPolicy decides which grades of a new card use up the daily
// new-card allowance.
type NewCardPolicy string

const (
	// EveryGrade counts a new card against the allowance whatever the grade.
	EveryGrade NewCardPolicy = "every_grade"
	// EasyOnly counts a new card against the allowance only when graded Easy.
	EasyOnly NewCardPolicy = "easy_only"
)

// Params holds the tunable parts of the scheduler.
type Params struct {
	// DefaultEaseFactor seeds freshly created scheduling state.
	DefaultEaseFactor float64
	// NewCardPolicy controls Result.ConsumesNewAllowance.
	NewCardPolicy NewCardPolicy
	// Location defines calendar days. Nil means the location of the
	// times passed in.
	Location *time.Location
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() *Params {
	return &Params{
		DefaultEaseFactor: MinEaseFactor,
		NewCardPolicy:     EveryGrade,
	}
}

// Validate checks that the parameters can be used for scheduling.
func (p *Params) Validate() error {
	if math.IsNaN(p.DefaultEaseFactor) || p.DefaultEaseFactor < MinEaseFactor || p.DefaultEaseFactor > MaxEaseFactor {
		return fmt.Errorf("srs: default ease factor %v out of range [%v, %v]", p.DefaultEaseFactor, MinEaseFactor, MaxEaseFactor)
	}
	switch p.NewCardPolicy {
	case EveryGrade, EasyOnly:
	default:
		return fmt.Errorf("srs: unknown new card policy %q", p.NewCardPolicy)
	}
	return nil
}

// InitialState is the state given to a card the first time a user sees it.
func (p *Params) InitialState() domain.SchedulingState {
	return domain.SchedulingState{
		Repetitions: -1,
		EaseFactor:  p.DefaultEaseFactor,
		Interval:    1,
	}
}

// Result is the outcome of grading a card.
type Result struct {
	State domain.SchedulingState
	// WasNew is true when the graded card had never been studied.
	WasNew bool
	// ConsumesNewAllowance is true when the review counts against the
	// daily new-card cap rather than the review cap.
	ConsumesNewAllowance bool
}

// NextState computes the scheduling state that follows grading current with
// grade at time now. The input is not mutated.
func (p *Params) NextState(current domain.SchedulingState, grade Grade, now time.Time) Result {
	now = p.in(now)
	interval := min(max(current.Interval, 0), MaxInterval)

	if current.IsNew() {
		switch grade {
		case Again:
			interval = newAgainInterval
		case Hard:
			interval = newHardInterval
		default:
			interval = newEasyInterval
		}
		next := now.Add(minutes(interval))
		reviewed := now
		return Result{
			State: domain.SchedulingState{
				Repetitions:  1,
				EaseFactor:   p.sanitizeEase(current.EaseFactor),
				Interval:     interval,
				LastReviewed: &reviewed,
				NextReview:   &next,
			},
			WasNew:               true,
			ConsumesNewAllowance: p.NewCardPolicy != EasyOnly || grade == Easy,
		}
	}

	// Reviews are anchored to when the card was due, not when it was graded.
	anchor := now
	if current.NextReview != nil {
		anchor = p.in(*current.NextReview)
	}

	ease := p.sanitizeEase(current.EaseFactor)
	var next time.Time

	switch grade {
	case Again:
		if interval < MinutesPerDay {
			interval = interval * 3 / 2
		} else {
			interval = againResetInterval
		}
		next = anchor.Add(minutes(interval))
		if eod := EndOfDay(anchor); next.After(eod) {
			next = eod
		}
	default:
		q := grade.quality()
		ease = clampEase(ease - 0.8 + 0.2*q + 0.02*q*q)
		interval = int64(math.Min(math.Floor(float64(max(interval, MinutesPerDay))*ease), MaxInterval))
		next = anchor.Add(minutes(interval))
	}

	return Result{
		State: domain.SchedulingState{
			Repetitions:  current.Repetitions + 1,
			EaseFactor:   ease,
			Interval:     interval,
			LastReviewed: &anchor,
			NextReview:   &next,
		},
	}
}

// EndOfDay returns 23:59:59.999 on t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// StartOfDay returns midnight at the start of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (p *Params) in(t time.Time) time.Time {
	if p.Location == nil {
		return t
	}
	return t.In(p.Location)
}

func (p *Params) sanitizeEase(e float64) float64 {
	if math.IsNaN(e) || e == 0 {
		return clampEase(p.DefaultEaseFactor)
	}
	return clampEase(e)
}

func clampEase(e float64) float64 {
	return math.Min(MaxEaseFactor, math.Max(MinEaseFactor, e))
}

func minutes(n int64) time.Duration {
	return time.Duration(n) * time.Minute
}
