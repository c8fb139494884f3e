package course

import (
	"strconv"
	"strings"
)

// GradeKind tags the populated variant of a Grade.
type GradeKind string

const (
	// GradeKindNone means no grade has been published.
	GradeKindNone GradeKind = ""
	// GradeKindLevel is a categorical grade such as "A-" or "Pass".
	GradeKindLevel GradeKind = "level"
	// GradeKindNumeric is a numeric score.
	GradeKindNumeric GradeKind = "numeric"
)

// Grade is the tagged variant {None, Level(category), Numeric(value)}.
type Grade struct {
	Kind  GradeKind `json:"kind,omitempty"`
	Level string    `json:"level,omitempty"`
	Value float64   `json:"value,omitempty"`
}

// NewGrade builds a Grade from the platform's raw pair. A populated level wins over the numeric score.
func NewGrade(level string, value *float64) Grade {
	if trimmed := strings.TrimSpace(level); trimmed != "" {
		return Grade{Kind: GradeKindLevel, Level: trimmed}
	}
	if value != nil {
		return Grade{Kind: GradeKindNumeric, Value: *value}
	}
	return Grade{}
}

// IsZero reports whether no grade is present.
func (g Grade) IsZero() bool {
	return g.Kind == GradeKindNone
}

// Display renders the grade for humans. It is empty for GradeKindNone.
func (g Grade) Display() string {
	switch g.Kind {
	case GradeKindLevel:
		return g.Level
	case GradeKindNumeric:
		return strconv.FormatFloat(g.Value, 'f', -1, 64)
	default:
		return ""
	}
}
