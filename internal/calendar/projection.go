// Package calendar derives what the calendar view shows from the assignment
// state. Nothing here is persisted.
package calendar

import "github.com/klabast/wb-services/duty-calendar/internal/assignment"

// Category picks the highlight style of a marked date.
type Category string

const (
	CategoryDefault  Category = "default"
	CategoryFiltered Category = "filtered"
)

// Mark is the display descriptor of one date.
type Mark struct {
	Highlighted bool     `json:"highlighted"`
	Selected    bool     `json:"isSelected"`
	Category    Category `json:"category,omitempty"`
}

// Marking maps date keys to their descriptor.
type Marking map[string]Mark

// Project builds the marking for the given assignments, selected date and
// student filter. Empty selectedDate / filterStudent mean unset. The selected
// date is flagged whether or not it passes the filter.
func Project(m assignment.Map, selectedDate, filterStudent string) Marking {
	out := make(Marking, len(m)+1)

	for date, e := range m {
		switch {
		case filterStudent == "":
			out[date] = Mark{Highlighted: true, Category: CategoryDefault}
		case e.Contains(filterStudent):
			out[date] = Mark{Highlighted: true, Category: CategoryFiltered}
		}
	}

	if selectedDate != "" {
		mark := out[selectedDate]
		mark.Selected = true
		out[selectedDate] = mark
	}
	return out
}
