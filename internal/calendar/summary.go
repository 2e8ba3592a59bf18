package calendar

import (
	"time"

	"github.com/klabast/wb-services/duty-calendar/internal/assignment"
)

// DateLayout is the date key format.
const DateLayout = "2006-01-02"

const (
	NoAssignmentText = "No students assigned for this date"
	AllStudentsLabel = "All"
)

// Summary describes the students on duty for one date.
type Summary struct {
	Date        string   `json:"date"`
	DisplayDate string   `json:"display_date"`
	Students    []string `json:"students"`
	Count       int      `json:"count"`
	Legacy      bool     `json:"legacy"`
	Message     string   `json:"message,omitempty"`
}

// Summarize builds the summary of date from its entry; ok reports whether the
// date has one.
func Summarize(date string, e assignment.Entry, ok bool) Summary {
	s := Summary{
		Date:        date,
		DisplayDate: FormatDate(date),
		Students:    []string{},
	}
	if !ok {
		s.Message = NoAssignmentText
		return s
	}
	s.Students = e.Students()
	s.Count = len(s.Students)
	s.Legacy = e.IsLegacy()
	return s
}

// FormatDate renders a date key as "Wed May 01 2024". Input that is not a
// date key is returned unchanged.
func FormatDate(date string) string {
	if date == "" {
		return ""
	}
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("Mon Jan 02 2006")
}

// ValidDate reports whether date is a YYYY-MM-DD calendar date.
func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// Chip is one entry of the student filter bar.
type Chip struct {
	Label   string `json:"label"`
	Student string `json:"student"`
	Active  bool   `json:"active"`
}

// FilterChips returns the "All" chip followed by one chip per student. The
// chip matching active (or "All" when active is empty) is flagged.
func FilterChips(students []string, active string) []Chip {
	chips := make([]Chip, 0, len(students)+1)
	chips = append(chips, Chip{Label: AllStudentsLabel, Active: active == ""})
	for _, s := range students {
		chips = append(chips, Chip{Label: s, Student: s, Active: s == active})
	}
	return chips
}
