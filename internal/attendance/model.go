package attendance

import (
	"fmt"
	"strings"
	"time"
)

// Status is the attendance mark of one student for one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Valid reports whether s is one of the four known marks.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Label is the capitalised form used in exports.
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// StudentStatus is the enrollment status of a student.
type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentInactive  StudentStatus = "inactive"
	StudentGraduated StudentStatus = "graduated"
	StudentSuspended StudentStatus = "suspended"
)

// Student is a registered student.
type Student struct {
	ID         string        `json:"id"`
	StudentID  string        `json:"student_id" validate:"required"`
	FirstName  string        `json:"first_name" validate:"required"`
	LastName   string        `json:"last_name" validate:"required"`
	Email      string        `json:"email" validate:"required,email"`
	Phone      string        `json:"phone,omitempty"`
	Department string        `json:"department,omitempty"`
	Major      string        `json:"major,omitempty"`
	Status     StudentStatus `json:"status" validate:"omitempty,oneof=active inactive graduated suspended"`
	Semester   int           `json:"semester" validate:"min=0"`
	CreatedAt  time.Time     `json:"created_at"`
}

// FullName returns "First Last".
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Course is a course students enroll in. Capacity is only a reporting denominator.
type Course struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Capacity    int       `json:"capacity"`
	Credits     int       `json:"credits"`
	Semester    int       `json:"semester"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is one dated occurrence of a course.
type Session struct {
	ID                string     `json:"id"`
	CourseID          string     `json:"course_id"`
	CourseCode        string     `json:"course_code,omitempty"` // joined from courses
	Date              time.Time  `json:"date"`
	StartTime         *TimeOfDay `json:"start_time,omitempty"`
	EndTime           *TimeOfDay `json:"end_time,omitempty"`
	DurationMinutes   int        `json:"duration_minutes"`
	LateCutoffMinutes int        `json:"late_cutoff_minutes"`
	CheckinCode       string     `json:"-"`
	Notes             string     `json:"notes,omitempty"`
	IsRecurring       bool       `json:"is_recurring"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TimeRange renders "HH:MM - HH:MM", or an empty string when a bound is missing.
func (s Session) TimeRange() string {
	if s.StartTime == nil || s.EndTime == nil {
		return ""
	}
	return s.StartTime.String() + " - " + s.EndTime.String()
}

// Record is the attendance mark of a student for a session. There is at most
// one per (session, student).
type Record struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	StudentID   string     `json:"student_id"`
	Status      Status     `json:"status"`
	Remarks     string     `json:"remarks"`
	CheckinTime *time.Time `json:"checkin_time,omitempty"`
	RecordedAt  time.Time  `json:"recorded_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// joined on reads that need them
	Student *Student `json:"student,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// RecordFields are the mutable columns written by an upsert. A nil pointer
// leaves the stored value untouched.
type RecordFields struct {
	Status      Status
	Remarks     *string
	CheckinTime *time.Time
}

// DateRange is an optional inclusive window of civil dates.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether d falls inside the window.
func (r DateRange) Contains(d time.Time) bool {
	d = DateOf(d)
	if r.From != nil && d.Before(DateOf(*r.From)) {
		return false
	}
	if r.To != nil && d.After(DateOf(*r.To)) {
		return false
	}
	return true
}

// RecordFilter narrows attendance reads. Empty fields are not applied.
type RecordFilter struct {
	SessionID string
	StudentID string
	CourseID  string
	Range     DateRange
	Status    Status
}

// ImportLog tracks one bulk student import.
type ImportLog struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	UploadedBy   string     `json:"uploaded_by,omitempty"`
	FileName     string     `json:"file_name"`
	Status       string     `json:"status"`
	TotalRecords int        `json:"total_records"`
	Successful   int        `json:"successful_imports"`
	Failed       int        `json:"failed_imports"`
	ErrorDetails string     `json:"error_details,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS" (seconds are dropped).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// Before reports whether t is strictly earlier than u.
func (t TimeOfDay) Before(u TimeOfDay) bool { return t.Minutes() < u.Minutes() }

// On places t on the civil date d in loc.
func (t TimeOfDay) On(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DateOf truncates t to its civil date at UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}

// Weekday maps t to 0=Monday .. 6=Sunday.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
