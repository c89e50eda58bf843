package attendance

import (
	"fmt"
	"strconv"
	"time"
)

// ReportKind selects the shape of an assembled table.
type ReportKind string

const (
	KindGeneral ReportKind = "general"
	KindStudent ReportKind = "student"
	KindCourse  ReportKind = "course"
)

// ParseReportKind maps a query value to a kind; empty means general.
func ParseReportKind(s string) (ReportKind, error) {
	switch ReportKind(s) {
	case "", KindGeneral:
		return KindGeneral, nil
	case KindStudent, KindCourse:
		return ReportKind(s), nil
	}
	return "", NewValidationError(fmt.Errorf("unknown report type %q", s),
		FieldError{Field: "type", Error: "must be one of [general student course]"})
}

var (
	generalHeader = []string{"Student ID", "Name", "Email", "Status", "Remarks", "Recorded At"}
	studentHeader = []string{"Course", "Total Sessions", "Present", "Absent", "Late", "Excused", "Attendance Rate"}
	courseHeader  = []string{"Date", "Time", "Total", "Present", "Absent", "Late", "Excused", "Attendance Rate"}
	summaryHeader = []string{"Name", "Student ID", "Total", "Present", "Absent", "Late", "Excused", "Attendance Rate"}
)

// Table is a flat report ready for tabular export.
type Table struct {
	Kind     ReportKind `json:"kind"`
	Preamble [][]string `json:"preamble,omitempty"`
	Header   []string   `json:"header"`
	Rows     [][]string `json:"rows"`
	Sections []Section  `json:"sections,omitempty"`
}

// Section is a trailing block of a table, such as a summary.
type Section struct {
	Title  string     `json:"title"`
	Header []string   `json:"header,omitempty"`
	Rows   [][]string `json:"rows"`
}

// Assemble dispatches on kind. data must be []Record for general,
// StudentReportData for student and CourseReportData for course.
func Assemble(kind ReportKind, data any) (Table, error) {
	switch kind {
	case KindGeneral:
		if recs, ok := data.([]Record); ok {
			return AssembleGeneral(recs), nil
		}
	case KindStudent:
		if rep, ok := data.(StudentReportData); ok {
			return AssembleStudent(rep), nil
		}
	case KindCourse:
		if rep, ok := data.(CourseReportData); ok {
			return AssembleCourse(rep), nil
		}
	default:
		return Table{}, fmt.Errorf("unknown report type %q", kind)
	}
	return Table{}, fmt.Errorf("%s report: unexpected data %T", kind, data)
}

// AssembleGeneral lists one row per record. Records must carry their Student.
func AssembleGeneral(records []Record) Table {
	t := Table{Kind: KindGeneral, Header: generalHeader, Rows: [][]string{}}
	for _, r := range records {
		var st Student
		if r.Student != nil {
			st = *r.Student
		}
		t.Rows = append(t.Rows, []string{
			st.StudentID,
			st.FullName(),
			st.Email,
			r.Status.Label(),
			r.Remarks,
			formatTimestamp(r.RecordedAt),
		})
	}
	return t
}

// AssembleStudent lists one row per course followed by summary totals.
func AssembleStudent(rep StudentReportData) Table {
	t := Table{
		Kind:     KindStudent,
		Preamble: [][]string{
			{"Attendance Report for:", rep.Student.FullName()},
			{"Student ID:", rep.Student.StudentID},
			{"Email:", rep.Student.Email},
		},
		Header: studentHeader,
		Rows:   [][]string{},
	}
	for _, c := range rep.Courses {
		t.Rows = append(t.Rows, []string{
			c.Course.Code,
			itoa(c.TotalSessions),
			itoa(c.Present),
			itoa(c.Absent),
			itoa(c.Late),
			itoa(c.Excused),
			formatRate(c.AttendanceRate),
		})
	}
	t.Sections = []Section{{
		Title: "Summary",
		Rows: [][]string{
			{"Total Sessions", itoa(rep.TotalSessions)},
			{"Total Present", itoa(rep.TotalPresent)},
			{"Total Absent", itoa(rep.TotalAbsent)},
			{"Total Late", itoa(rep.TotalLate)},
			{"Total Excused", itoa(rep.TotalExcused)},
		},
	}}
	return t
}

// AssembleCourse lists one row per session followed by the per-student summary.
func AssembleCourse(rep CourseReportData) Table {
	t := Table{
		Kind:     KindCourse,
		Preamble: [][]string{{"Attendance Report for:", rep.Course.Code, "-", rep.Course.Name}},
		Header:   courseHeader,
		Rows:     [][]string{},
	}
	if rep.Range.From != nil || rep.Range.To != nil {
		t.Preamble = append(t.Preamble, []string{"Date Range:", formatOptDate(rep.Range.From), "to", formatOptDate(rep.Range.To)})
	}
	for _, b := range rep.Sessions {
		t.Rows = append(t.Rows, []string{
			formatDate(b.Session.Date),
			b.Session.TimeRange(),
			itoa(b.Tally.Total),
			itoa(b.Tally.Present),
			itoa(b.Tally.Absent),
			itoa(b.Tally.Late),
			itoa(b.Tally.Excused),
			formatRate(b.AttendanceRate),
		})
	}
	summary := Section{Title: "Student Summary", Header: summaryHeader, Rows: [][]string{}}
	for _, s := range rep.Students {
		summary.Rows = append(summary.Rows, []string{
			s.Student.FullName(),
			s.Student.StudentID,
			itoa(s.Tally.Total),
			itoa(s.Tally.Present),
			itoa(s.Tally.Absent),
			itoa(s.Tally.Late),
			itoa(s.Tally.Excused),
			formatRate(s.AttendanceRate),
		})
	}
	t.Sections = []Section{summary}
	return t
}

func itoa(n int) string { return strconv.Itoa(n) }

func formatRate(r float64) string { return strconv.FormatFloat(r, 'f', 1, 64) + "%" }

func formatDate(d time.Time) string { return d.Format(time.DateOnly) }

func formatOptDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return formatDate(*d)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateTime)
}
