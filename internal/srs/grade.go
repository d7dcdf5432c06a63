package srs

import (
	"fmt"

	"github.com/devyk100/memoriva/internal/domain"
)

// Grade is the user's response to a card review.
// The integer values are the wire encoding used by callers.
type Grade int

const (
	Again Grade = iota // Failed to recall.
	Hard               // Recalled with effort.
	Easy               // Recalled without effort.
)

var gradeNames = [...]string{Again: "Again", Hard: "Hard", Easy: "Easy"}

// IsValid reports whether g is one of Again, Hard or Easy.
func (g Grade) IsValid() bool {
	return g >= Again && g <= Easy
}

// String returns the grade name, or "Grade(n)" for invalid values.
func (g Grade) String() string {
	if g.IsValid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

// quality maps a passing grade to its SM-2 quality score.
func (g Grade) quality() float64 {
	if g == Easy {
		return 5
	}
	return 3
}

// ParseGrade converts the boundary encoding (0, 1, 2) into a Grade.
func ParseGrade(v int) (Grade, error) {
	g := Grade(v)
	if !g.IsValid() {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidGrade, v)
	}
	return g, nil
}
