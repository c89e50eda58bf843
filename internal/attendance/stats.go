package attendance

import (
	"math"
	"sort"
	"time"
)

// Round1 rounds x half away from zero to one decimal place.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// percent returns part/whole*100 rounded to one decimal, or 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return Round1(float64(part) / float64(whole) * 100)
}

// Tally counts records by status.
type Tally struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
}

func (t *Tally) add(s Status) {
	t.Total++
	switch s {
	case StatusPresent:
		t.Present++
	case StatusAbsent:
		t.Absent++
	case StatusLate:
		t.Late++
	case StatusExcused:
		t.Excused++
	}
}

// AttendedRate counts late as attending: (present+late)/total.
func (t Tally) AttendedRate() float64 {
	return percent(t.Present+t.Late, t.Total)
}

// Stats summarises the records of one session.
type Stats struct {
	Tally
	PresentPct float64 `json:"present_pct"`
	AbsentPct  float64 `json:"absent_pct"`
	LatePct    float64 `json:"late_pct"`
	ExcusedPct float64 `json:"excused_pct"`
}

// SessionStats counts records per status. Every percentage is 0 for an empty set.
func SessionStats(records []Record) Stats {
	var t Tally
	for _, r := range records {
		t.add(r.Status)
	}
	return Stats{
		Tally:      t,
		PresentPct: percent(t.Present, t.Total),
		AbsentPct:  percent(t.Absent, t.Total),
		LatePct:    percent(t.Late, t.Total),
		ExcusedPct: percent(t.Excused, t.Total),
	}
}

// CourseSummary is the course-wide analytics block.
type CourseSummary struct {
	TotalSessions        int     `json:"total_sessions"`
	AverageAttendance    float64 `json:"average_attendance"`
	EnrolledCount        int     `json:"enrolled_count"`
	EnrollmentPercentage float64 `json:"enrollment_percentage"`
}

// CourseAnalytics computes the course summary from every session of the course
// and every record held against those sessions.
func CourseAnalytics(course Course, enrolled, totalSessions int, records []Record) CourseSummary {
	out := CourseSummary{
		TotalSessions:        totalSessions,
		EnrolledCount:        enrolled,
		EnrollmentPercentage: percent(enrolled, course.Capacity),
	}
	if totalSessions == 0 {
		return out
	}
	present := 0
	for _, r := range records {
		if r.Status == StatusPresent {
			present++
		}
	}
	out.AverageAttendance = percent(present, len(records))
	return out
}

// StudentCourseSummary is one student's standing in one course.
type StudentCourseSummary struct {
	TotalSessions  int     `json:"total_sessions"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	Excused        int     `json:"excused"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// StudentCourseAnalytics counts the student's records in a course. The rate is
// present over every session held for the course, so late does not count and
// missing records lower the rate.
func StudentCourseAnalytics(totalCourseSessions int, records []Record) StudentCourseSummary {
	if totalCourseSessions == 0 {
		return StudentCourseSummary{}
	}
	var t Tally
	for _, r := range records {
		t.add(r.Status)
	}
	return StudentCourseSummary{
		TotalSessions:  totalCourseSessions,
		Present:        t.Present,
		Absent:         t.Absent,
		Late:           t.Late,
		Excused:        t.Excused,
		AttendanceRate: percent(t.Present, totalCourseSessions),
	}
}

// SessionMark is one line of a student's per-course history.
type SessionMark struct {
	Date    time.Time `json:"date"`
	Time    string    `json:"time"`
	Status  Status    `json:"status"`
	Remarks string    `json:"remarks,omitempty"`
}

// CourseTally is a student's record counts for one course.
type CourseTally struct {
	Course         Course        `json:"course"`
	TotalSessions  int           `json:"total_sessions"` // the student's records in the course, not every session held
	Present        int           `json:"present"`
	Absent         int           `json:"absent"`
	Late           int           `json:"late"`
	Excused        int           `json:"excused"`
	AttendanceRate float64       `json:"attendance_rate"`
	Sessions       []SessionMark `json:"sessions"`
}

// StudentReportData is the per-course breakdown for a single student.
type StudentReportData struct {
	Student       Student       `json:"student"`
	Courses       []CourseTally `json:"courses"`
	TotalSessions int           `json:"total_sessions"`
	TotalPresent  int           `json:"total_present"`
	TotalAbsent   int           `json:"total_absent"`
	TotalLate     int           `json:"total_late"`
	TotalExcused  int           `json:"total_excused"`
}

// StudentReport groups a student's records by course. Records must carry their
// Session. Courses missing from the map are reported by id only.
func StudentReport(student Student, courses map[string]Course, records []Record) StudentReportData {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sessionDate(sorted[i]).After(sessionDate(sorted[j]))
	})

	index := map[string]int{}
	var tallies []CourseTally
	for _, r := range sorted {
		if r.Session == nil {
			continue
		}
		cid := r.Session.CourseID
		i, ok := index[cid]
		if !ok {
			c, found := courses[cid]
			if !found {
				c = Course{ID: cid, Code: r.Session.CourseCode}
			}
			tallies = append(tallies, CourseTally{Course: c})
			i = len(tallies) - 1
			index[cid] = i
		}
		ct := &tallies[i]
		ct.TotalSessions++
		switch r.Status {
		case StatusPresent:
			ct.Present++
		case StatusAbsent:
			ct.Absent++
		case StatusLate:
			ct.Late++
		case StatusExcused:
			ct.Excused++
		}
		ct.Sessions = append(ct.Sessions, SessionMark{
			Date:    r.Session.Date,
			Time:    r.Session.TimeRange(),
			Status:  r.Status,
			Remarks: r.Remarks,
		})
	}

	out := StudentReportData{Student: student, Courses: append([]CourseTally{}, tallies...)}
	for i := range out.Courses {
		ct := &out.Courses[i]
		ct.AttendanceRate = percent(ct.Present+ct.Late, ct.TotalSessions)
		out.TotalSessions += ct.TotalSessions
		out.TotalPresent += ct.Present
		out.TotalAbsent += ct.Absent
		out.TotalLate += ct.Late
		out.TotalExcused += ct.Excused
	}
	sort.SliceStable(out.Courses, func(i, j int) bool {
		return out.Courses[i].Course.Code < out.Courses[j].Course.Code
	})
	return out
}

func sessionDate(r Record) time.Time {
	if r.Session == nil {
		return time.Time{}
	}
	return r.Session.Date
}

// StudentMark is one student's line inside a session block.
type StudentMark struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Remarks   string `json:"remarks,omitempty"`
}

// SessionBlock is the per-session part of a course report.
type SessionBlock struct {
	Session        Session       `json:"session"`
	Tally          Tally         `json:"tally"`
	AttendanceRate float64       `json:"attendance_rate"`
	Students       []StudentMark `json:"students"`
}

// StudentSummary is one student's totals across the reported sessions.
type StudentSummary struct {
	Student        Student `json:"student"`
	Tally          Tally   `json:"tally"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// CourseReportData is the session-by-session report for a course.
type CourseReportData struct {
	Course   Course           `json:"course"`
	Range    DateRange        `json:"range"`
	Sessions []SessionBlock   `json:"sessions"`
	Students []StudentSummary `json:"students_summary"`
}

// CourseReport builds one block per session inside r and a per-student summary
// sorted by surname. Records must carry their Student.
func CourseReport(course Course, sessions []Session, records []Record, r DateRange) CourseReportData {
	bySession := map[string][]Record{}
	for _, rec := range records {
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
	}

	selected := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if r.Contains(s.Date) {
			selected = append(selected, s)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if !selected[i].Date.Equal(selected[j].Date) {
			return selected[i].Date.Before(selected[j].Date)
		}
		return startMinutes(selected[i]) < startMinutes(selected[j])
	})

	out := CourseReportData{Course: course, Range: r, Sessions: []SessionBlock{}, Students: []StudentSummary{}}
	summaries := map[string]*StudentSummary{}
	for _, s := range selected {
		recs := bySession[s.ID]
		sort.SliceStable(recs, func(i, j int) bool { return lastName(recs[i]) < lastName(recs[j]) })

		block := SessionBlock{Session: s, Students: []StudentMark{}}
		for _, rec := range recs {
			block.Tally.add(rec.Status)
			st := Student{ID: rec.StudentID}
			if rec.Student != nil {
				st = *rec.Student
			}
			block.Students = append(block.Students, StudentMark{
				StudentID: st.StudentID,
				Name:      st.FullName(),
				Status:    rec.Status,
				Remarks:   rec.Remarks,
			})
			sum, ok := summaries[rec.StudentID]
			if !ok {
				sum = &StudentSummary{Student: st}
				summaries[rec.StudentID] = sum
			}
			sum.Tally.add(rec.Status)
		}
		block.AttendanceRate = block.Tally.AttendedRate()
		out.Sessions = append(out.Sessions, block)
	}

	for _, sum := range summaries {
		sum.AttendanceRate = sum.Tally.AttendedRate()
		out.Students = append(out.Students, *sum)
	}
	sort.SliceStable(out.Students, func(i, j int) bool {
		a, b := out.Students[i].Student, out.Students[j].Student
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.StudentID < b.StudentID
	})
	return out
}

func startMinutes(s Session) int {
	if s.StartTime == nil {
		return -1
	}
	return s.StartTime.Minutes()
}

func lastName(r Record) string {
	if r.Student == nil {
		return ""
	}
	return r.Student.LastName
}

// Trend is the stats of one session in a trend series.
type Trend struct {
	Date    time.Time `json:"date"`
	Session Session   `json:"session"`
	Stats   Stats     `json:"stats"`
}

// AttendanceTrends returns per-session stats for sessions dated on or after since,
// oldest first.
func AttendanceTrends(sessions []Session, records []Record, since time.Time) []Trend {
	bySession := map[string][]Record{}
	for _, rec := range records {
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
	}
	since = DateOf(since)
	var out []Trend
	for _, s := range sessions {
		if DateOf(s.Date).Before(since) {
			continue
		}
		out = append(out, Trend{Date: s.Date, Session: s, Stats: SessionStats(bySession[s.ID])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
