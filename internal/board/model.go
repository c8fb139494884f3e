// Package board reconciles assignments onto a task board and keeps its cards and lists ordered.
package board

import "time"

// Label is a card label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Card is a task-board card as reported by the board service.
type Card struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ListID      string     `json:"idList"`
	Labels      []Label    `json:"labels"`
	Due         *time.Time `json:"due"`
	DueComplete bool       `json:"dueComplete"`
	Closed      bool       `json:"closed"`
	Pos         float64    `json:"pos"`
}

// HasLabel reports whether the card carries a label with the given name.
func (c Card) HasLabel(name string) bool {
	for _, label := range c.Labels {
		if label.Name == name {
			return true
		}
	}
	return false
}

// List is a task-board list. Lists are matched to courses by name.
type List struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Closed bool    `json:"closed"`
	Pos    float64 `json:"pos"`
}

// PositionUpdate moves one card or list to a new position value.
type PositionUpdate struct {
	ID  string
	Pos float64
}

// Card fields accepted by UpdateCard.
const (
	FieldDue         = "due"
	FieldDueComplete = "dueComplete"
	FieldClosed      = "closed"
	FieldPos         = "pos"
)
