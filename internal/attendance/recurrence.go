package attendance

import "time"

// Frequency is the recurrence rule of a Template.
type Frequency string

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// Template describes a series of sessions. DayOfWeek uses 0=Monday .. 6=Sunday
// and only matters for weekly and biweekly templates.
type Template struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
	Frequency Frequency `json:"frequency" validate:"required,oneof=daily weekly biweekly monthly"`
	DayOfWeek int       `json:"day_of_week" validate:"min=0,max=6"`
	Notes     string    `json:"notes,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the template before it is stored and expanded.
func (t Template) Validate() error {
	var extra []FieldError
	if !t.StartDate.IsZero() && !t.EndDate.IsZero() && DateOf(t.StartDate).After(DateOf(t.EndDate)) {
		extra = append(extra, FieldError{Field: "end_date", Error: "must not be before start_date"})
	}
	if !t.StartTime.Before(t.EndTime) {
		extra = append(extra, FieldError{Field: "end_time", Error: "must be after start_time"})
	}
	return checkStruct(t, extra...)
}

// Expand returns the session dates the template produces, in ascending order.
// A template whose start is after its end yields no dates.
func Expand(t Template) []time.Time {
	start, end := DateOf(t.StartDate), DateOf(t.EndDate)
	var dates []time.Time
	for cur := start; !cur.After(end); {
		switch t.Frequency {
		case Daily:
			dates = append(dates, cur)
			cur = cur.AddDate(0, 0, 1)
		case Weekly:
			if Weekday(cur) == t.DayOfWeek {
				dates = append(dates, cur)
			}
			cur = cur.AddDate(0, 0, 1)
		case Biweekly:
			if Weekday(cur) == t.DayOfWeek {
				dates = append(dates, cur)
				cur = cur.AddDate(0, 0, 14)
			} else {
				cur = cur.AddDate(0, 0, 1)
			}
		case Monthly:
			// no clamping: a 31st start skips shorter months
			if cur.Day() == start.Day() {
				dates = append(dates, cur)
			}
			cur = cur.AddDate(0, 0, 1)
		default:
			return nil
		}
	}
	return dates
}
