package model

import "time"

// ClockLayout is the zero-padded 24-hour HH:MM layout blocks are stored in.
// Lexical order of values in this layout matches chronological order within a day.
const ClockLayout = "15:04"

// Block is one recurring weekly time interval. DayOfWeek uses 1=Monday..7=Sunday.
type Block struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Location  string    `json:"location"`
	DayOfWeek int       `json:"day_of_week"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

var dayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DayOfWeek converts a time.Weekday (Sunday=0) into the block numbering (Monday=1, Sunday=7).
func DayOfWeek(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// ValidDay reports whether day is within 1..7.
func ValidDay(day int) bool {
	return day >= 1 && day <= 7
}

// DayName returns the English name for day, or "" when day is out of range.
func DayName(day int) string {
	if !ValidDay(day) {
		return ""
	}
	return dayNames[day]
}
