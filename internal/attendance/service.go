package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"uniattend/internal/metrics"
)

// Store is the persistence collaborator. Lookups return an error wrapping
// ErrNotFound for absent rows; unique violations wrap ErrConflict.
type Store interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	// GetOrCreateStudent looks up by StudentID and inserts s when absent.
	GetOrCreateStudent(ctx context.Context, s Student) (Student, bool, error)

	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	Enroll(ctx context.Context, courseID, studentID string) error
	EnrolledStudents(ctx context.Context, courseID string) ([]Student, error)
	CoursesForStudent(ctx context.Context, studentID string) ([]Course, error)

	GetSession(ctx context.Context, id string) (Session, error)
	SessionsForCourse(ctx context.Context, courseID string, r DateRange) ([]Session, error)
	// CreateSession returns created=false when (course, date, start time) already exists.
	CreateSession(ctx context.Context, s Session) (Session, bool, error)
	CreateTemplate(ctx context.Context, t Template) (Template, error)

	// Attendance returns matching records with Student and Session joined,
	// ordered by session date then student surname.
	Attendance(ctx context.Context, f RecordFilter) ([]Record, error)
	UpsertAttendance(ctx context.Context, sessionID, studentID string, f RecordFields) (Record, error)

	CreateImportLog(ctx context.Context, l ImportLog) (ImportLog, error)
	ImportLogs(ctx context.Context, courseID string) ([]ImportLog, error)
}

// Service coordinates the stores with the pure attendance rules.
type Service struct {
	store Store
	gate  *Gate
	now   func() time.Time
}

// NewService creates a service backed by a store. Session dates and times are
// interpreted in loc.
func NewService(store Store, loc *time.Location) *Service {
	return &Service{store: store, gate: NewGate(loc), now: time.Now}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Gate exposes the check-in gate used by the service.
func (s *Service) Gate() *Gate { return s.gate }

// ---------- Courses & students ----------

// CreateCourse stores a course, applying defaults for unset numbers.
func (s *Service) CreateCourse(ctx context.Context, c Course) (Course, error) {
	c.Code = strings.TrimSpace(c.Code)
	if c.Code == "" {
		return Course{}, NewValidationError(errors.New("course code required"), FieldError{Field: "code", Error: "this field is required"})
	}
	if c.Capacity == 0 {
		c.Capacity = 50
	}
	if c.Capacity < 0 {
		return Course{}, NewValidationError(errors.New("capacity must be positive"), FieldError{Field: "capacity", Error: "must be at least 1"})
	}
	if c.Credits == 0 {
		c.Credits = 3
	}
	if c.Semester == 0 {
		c.Semester = 1
	}
	return s.store.CreateCourse(ctx, c)
}

// Course returns a course by id.
func (s *Service) Course(ctx context.Context, id string) (Course, error) {
	return s.store.GetCourse(ctx, id)
}

// CreateStudent stores a student.
func (s *Service) CreateStudent(ctx context.Context, st Student) (Student, error) {
	if st.Status == "" {
		st.Status = StudentActive
	}
	if st.Semester == 0 {
		st.Semester = 1
	}
	if err := checkStruct(st); err != nil {
		return Student{}, err
	}
	return s.store.CreateStudent(ctx, st)
}

// Enroll adds a student to a course. Capacity is not enforced.
func (s *Service) Enroll(ctx context.Context, courseID, studentID string) error {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return err
	}
	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return err
	}
	return s.store.Enroll(ctx, courseID, studentID)
}

// ---------- Sessions ----------

// Session returns a session by id.
func (s *Service) Session(ctx context.Context, id string) (Session, error) {
	return s.store.GetSession(ctx, id)
}

// CreateSession stores one session created directly by an instructor.
func (s *Service) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if _, err := s.store.GetCourse(ctx, sess.CourseID); err != nil {
		return Session{}, err
	}
	if sess.Date.IsZero() {
		return Session{}, NewValidationError(errors.New("session date required"), FieldError{Field: "date", Error: "this field is required"})
	}
	if sess.StartTime != nil && sess.EndTime != nil && !sess.StartTime.Before(*sess.EndTime) {
		return Session{}, NewValidationError(errors.New("end time must be after start time"), FieldError{Field: "end_time", Error: "must be after start_time"})
	}
	applySessionDefaults(&sess)
	created, ok, err := s.store.CreateSession(ctx, sess)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, fmt.Errorf("session on %s at %s: %w", formatDate(sess.Date), startLabel(sess), ErrConflict)
	}
	metrics.SessionsCreated.WithLabelValues("direct").Inc()
	return created, nil
}

func applySessionDefaults(sess *Session) {
	sess.Date = DateOf(sess.Date)
	if sess.DurationMinutes == 0 {
		sess.DurationMinutes = 60
		if sess.StartTime != nil && sess.EndTime != nil {
			sess.DurationMinutes = sess.EndTime.Minutes() - sess.StartTime.Minutes()
		}
	}
	if sess.LateCutoffMinutes == 0 {
		sess.LateCutoffMinutes = 15
	}
	sess.CheckinCode = strings.TrimSpace(sess.CheckinCode)
}

func startLabel(sess Session) string {
	if sess.StartTime == nil {
		return "no start time"
	}
	return sess.StartTime.String()
}

// Expansion is the outcome of materialising a recurring template.
type Expansion struct {
	Template Template  `json:"template"`
	Dates    []string  `json:"dates"`
	Created  int       `json:"created"`
	Skipped  int       `json:"skipped"`
	Sessions []Session `json:"sessions"`
}

// ExpandTemplate validates and stores t, then creates one session per generated
// date. Dates that already hold a session at the same start time are skipped.
func (s *Service) ExpandTemplate(ctx context.Context, courseID string, t Template) (Expansion, error) {
	t.CourseID = courseID
	t.Active = true
	if err := t.Validate(); err != nil {
		return Expansion{}, err
	}
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return Expansion{}, err
	}
	saved, err := s.store.CreateTemplate(ctx, t)
	if err != nil {
		return Expansion{}, err
	}

	out := Expansion{Template: saved, Dates: []string{}, Sessions: []Session{}}
	start, end := saved.StartTime, saved.EndTime
	for _, d := range Expand(saved) {
		out.Dates = append(out.Dates, formatDate(d))
		sess := Session{
			CourseID:    courseID,
			Date:        d,
			StartTime:   &start,
			EndTime:     &end,
			Notes:       saved.Notes,
			IsRecurring: true,
		}
		applySessionDefaults(&sess)
		created, ok, err := s.store.CreateSession(ctx, sess)
		if err != nil {
			return out, fmt.Errorf("create session %s: %w", formatDate(d), err)
		}
		if !ok {
			out.Skipped++
			continue
		}
		out.Created++
		out.Sessions = append(out.Sessions, created)
	}
	metrics.SessionsCreated.WithLabelValues("recurring").Add(float64(out.Created))
	return out, nil
}

// ---------- Marking ----------

// upsert writes a record, retrying once when the store reports a conflicting
// concurrent write.
func (s *Service) upsert(ctx context.Context, sessionID, studentID string, f RecordFields) (Record, error) {
	rec, err := s.store.UpsertAttendance(ctx, sessionID, studentID, f)
	if errors.Is(err, ErrConflict) {
		metrics.UpsertRetries.Inc()
		rec, err = s.store.UpsertAttendance(ctx, sessionID, studentID, f)
	}
	if err != nil {
		return Record{}, fmt.Errorf("upsert attendance: %w", err)
	}
	return rec, nil
}

// CheckinResult is the outcome of a self check-in.
type CheckinResult struct {
	Decision Decision `json:"decision"`
	Record   *Record  `json:"record,omitempty"`
}

// CheckIn runs the gate for the student (empty id when the requester has no
// student profile) and, when accepted, records them present. A rejection is a
// normal result, not an error.
func (s *Service) CheckIn(ctx context.Context, studentID, sessionID, code string) (CheckinResult, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return CheckinResult{}, err
	}
	req := CheckinRequest{Session: sess, Code: code, Now: s.now()}
	if studentID != "" {
		if _, err := s.store.GetStudent(ctx, studentID); err == nil {
			req.IsStudent = true
		} else if !errors.Is(err, ErrNotFound) {
			return CheckinResult{}, err
		}
	}
	if req.IsStudent {
		if req.Enrolled, err = s.store.IsEnrolled(ctx, sess.CourseID, studentID); err != nil {
			return CheckinResult{}, err
		}
	}

	d := s.gate.Evaluate(req)
	metrics.CheckinDecisions.WithLabelValues(string(d.Outcome), string(d.Reason)).Inc()
	if !d.Accepted() {
		return CheckinResult{Decision: d}, nil
	}

	at := d.At
	rec, err := s.upsert(ctx, sess.ID, studentID, RecordFields{Status: StatusPresent, CheckinTime: &at})
	if err != nil {
		return CheckinResult{}, err
	}
	return CheckinResult{Decision: d, Record: &rec}, nil
}

// Mark sets any status for a student directly. This is the privileged path and
// skips the check-in gate.
func (s *Service) Mark(ctx context.Context, sessionID, studentID string, status Status, remarks *string) (Record, error) {
	if !status.Valid() {
		return Record{}, NewValidationError(fmt.Errorf("invalid status %q", status), FieldError{Field: "status", Error: "must be one of [present absent late excused]"})
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return Record{}, err
	}
	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return Record{}, err
	}
	return s.writeMark(ctx, sessionID, MarkEntry{StudentID: studentID, Status: status, Remarks: remarks})
}

func (s *Service) writeMark(ctx context.Context, sessionID string, e MarkEntry) (Record, error) {
	rec, err := s.upsert(ctx, sessionID, e.StudentID, RecordFields{Status: e.Status, Remarks: e.Remarks})
	if err != nil {
		return Record{}, err
	}
	metrics.Marks.WithLabelValues(string(e.Status)).Inc()
	return rec, nil
}

// MarkEntry is one line of a bulk manual marking.
type MarkEntry struct {
	StudentID string  `json:"student_id"`
	Status    Status  `json:"status"`
	Remarks   *string `json:"remarks"`
}

// MarkBulk applies several marks to one session. Statuses, the session and
// every student are checked before anything is written.
func (s *Service) MarkBulk(ctx context.Context, sessionID string, entries []MarkEntry) ([]Record, error) {
	var fields []FieldError
	for i, e := range entries {
		if !e.Status.Valid() {
			fields = append(fields, FieldError{Field: fmt.Sprintf("marks[%d].status", i), Error: "must be one of [present absent late excused]"})
		}
	}
	if len(fields) > 0 {
		return nil, NewValidationError(errors.New("invalid marks"), fields...)
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, err := s.store.GetStudent(ctx, e.StudentID); err != nil {
			return nil, err
		}
	}
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		rec, err := s.writeMark(ctx, sessionID, e)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// OpenSession is one of a student's sessions for today.
type OpenSession struct {
	Session   Session `json:"session"`
	IsOpen    bool    `json:"is_open"`
	CheckedIn bool    `json:"checked_in"`
}

// OpenSessions lists today's sessions across the student's courses, ordered by
// start time, with whether check-in is open and already done. CheckedIn means
// a present record exists; a late or excused mark from an instructor does not count.
func (s *Service) OpenSessions(ctx context.Context, studentID string) ([]OpenSession, error) {
	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	now := s.now().In(s.gate.loc)
	today := DateOf(now)
	courses, err := s.store.CoursesForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	out := []OpenSession{}
	for _, c := range courses {
		sessions, err := s.store.SessionsForCourse(ctx, c.ID, DateRange{From: &today, To: &today})
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			recs, err := s.store.Attendance(ctx, RecordFilter{SessionID: sess.ID, StudentID: studentID, Status: StatusPresent})
			if err != nil {
				return nil, err
			}
			out = append(out, OpenSession{Session: sess, IsOpen: s.gate.Open(sess, now), CheckedIn: len(recs) > 0})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return startMinutes(out[i].Session) < startMinutes(out[j].Session)
	})
	return out, nil
}

// ---------- Statistics & reports ----------

// SessionStats loads the records of a session and summarises them.
func (s *Service) SessionStats(ctx context.Context, sessionID string) (Stats, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return Stats{}, err
	}
	recs, err := s.store.Attendance(ctx, RecordFilter{SessionID: sessionID})
	if err != nil {
		return Stats{}, err
	}
	return SessionStats(recs), nil
}

// StudentAnalytics pairs a student with their course standing.
type StudentAnalytics struct {
	Student   Student              `json:"student"`
	Analytics StudentCourseSummary `json:"analytics"`
}

// CourseAnalyticsResult is everything shown on a course analytics page.
type CourseAnalyticsResult struct {
	Course   Course             `json:"course"`
	Summary  CourseSummary      `json:"summary"`
	Trends   []Trend            `json:"trends"`
	Students []StudentAnalytics `json:"students"`
}

// CourseAnalytics computes the course summary, the trend over the last
// trendDays days and each enrolled student's standing.
func (s *Service) CourseAnalytics(ctx context.Context, courseID string, trendDays int) (CourseAnalyticsResult, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return CourseAnalyticsResult{}, err
	}
	students, err := s.store.EnrolledStudents(ctx, courseID)
	if err != nil {
		return CourseAnalyticsResult{}, err
	}
	sessions, err := s.store.SessionsForCourse(ctx, courseID, DateRange{})
	if err != nil {
		return CourseAnalyticsResult{}, err
	}
	records, err := s.store.Attendance(ctx, RecordFilter{CourseID: courseID})
	if err != nil {
		return CourseAnalyticsResult{}, err
	}

	if trendDays <= 0 {
		trendDays = 30
	}
	since := DateOf(s.now().In(s.gate.loc)).AddDate(0, 0, -trendDays)

	byStudent := map[string][]Record{}
	for _, r := range records {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}
	out := CourseAnalyticsResult{
		Course:   course,
		Summary:  CourseAnalytics(course, len(students), len(sessions), records),
		Trends:   AttendanceTrends(sessions, records, since),
		Students: make([]StudentAnalytics, 0, len(students)),
	}
	for _, st := range students {
		out.Students = append(out.Students, StudentAnalytics{
			Student:   st,
			Analytics: StudentCourseAnalytics(len(sessions), byStudent[st.ID]),
		})
	}
	return out, nil
}

// StudentCourseAnalytics returns one student's standing in one course.
func (s *Service) StudentCourseAnalytics(ctx context.Context, studentID, courseID string) (StudentCourseSummary, error) {
	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return StudentCourseSummary{}, err
	}
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return StudentCourseSummary{}, err
	}
	sessions, err := s.store.SessionsForCourse(ctx, courseID, DateRange{})
	if err != nil {
		return StudentCourseSummary{}, err
	}
	records, err := s.store.Attendance(ctx, RecordFilter{CourseID: courseID, StudentID: studentID})
	if err != nil {
		return StudentCourseSummary{}, err
	}
	return StudentCourseAnalytics(len(sessions), records), nil
}

// StudentReport builds the per-course report of a student.
func (s *Service) StudentReport(ctx context.Context, studentID string) (StudentReportData, error) {
	st, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return StudentReportData{}, err
	}
	records, err := s.store.Attendance(ctx, RecordFilter{StudentID: studentID})
	if err != nil {
		return StudentReportData{}, err
	}
	courses := map[string]Course{}
	for _, r := range records {
		if r.Session == nil {
			continue
		}
		if _, ok := courses[r.Session.CourseID]; ok {
			continue
		}
		c, err := s.store.GetCourse(ctx, r.Session.CourseID)
		if err != nil {
			return StudentReportData{}, err
		}
		courses[c.ID] = c
	}
	return StudentReport(st, courses, records), nil
}

// CourseReport builds the session-by-session report of a course within r.
func (s *Service) CourseReport(ctx context.Context, courseID string, r DateRange) (CourseReportData, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return CourseReportData{}, err
	}
	sessions, err := s.store.SessionsForCourse(ctx, courseID, r)
	if err != nil {
		return CourseReportData{}, err
	}
	records, err := s.store.Attendance(ctx, RecordFilter{CourseID: courseID, Range: r})
	if err != nil {
		return CourseReportData{}, err
	}
	return CourseReport(course, sessions, records, r), nil
}

// Records returns the records matching f for the general report.
func (s *Service) Records(ctx context.Context, f RecordFilter) ([]Record, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, NewValidationError(fmt.Errorf("invalid status %q", f.Status), FieldError{Field: "status", Error: "must be one of [present absent late excused]"})
	}
	return s.store.Attendance(ctx, f)
}

// ---------- Bulk import ----------

// ImportStudents upserts each row by student id and enrolls it in the course.
// Bad rows are skipped and reported; processing never stops early.
func (s *Service) ImportStudents(ctx context.Context, courseID, uploadedBy, fileName string, rows []ImportRow) (ImportResult, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Errors: []RowError{}}
	for i, row := range rows {
		line := row.Line
		if line == 0 {
			line = i + 1
		}
		if msg := rowProblem(row); msg != "" {
			res.Errors = append(res.Errors, RowError{Row: line, Message: msg})
			metrics.ImportRows.WithLabelValues("failed").Inc()
			continue
		}
		if err := s.importRow(ctx, courseID, row); err != nil {
			res.Errors = append(res.Errors, RowError{Row: line, Message: err.Error()})
			metrics.ImportRows.WithLabelValues("failed").Inc()
			continue
		}
		res.Successful++
		metrics.ImportRows.WithLabelValues("imported").Inc()
	}

	details := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		details = append(details, e.Error())
	}
	done := s.now().UTC()
	logEntry, err := s.store.CreateImportLog(ctx, ImportLog{
		CourseID:     courseID,
		UploadedBy:   uploadedBy,
		FileName:     fileName,
		Status:       "completed",
		TotalRecords: res.Successful + len(res.Errors),
		Successful:   res.Successful,
		Failed:       len(res.Errors),
		ErrorDetails: strings.Join(details, "\n"),
		CompletedAt:  &done,
	})
	if err != nil {
		return res, fmt.Errorf("write import log: %w", err)
	}
	res.Log = &logEntry
	return res, nil
}

func (s *Service) importRow(ctx context.Context, courseID string, row ImportRow) error {
	st, _, err := s.store.GetOrCreateStudent(ctx, Student{
		StudentID:  row.StudentID,
		FirstName:  row.FirstName,
		LastName:   row.LastName,
		Email:      row.Email,
		Phone:      row.Phone,
		Department: row.Department,
		Major:      row.Major,
		Status:     StudentActive,
		Semester:   1,
	})
	if err != nil {
		return err
	}
	enrolled, err := s.store.IsEnrolled(ctx, courseID, st.ID)
	if err != nil {
		return err
	}
	if enrolled {
		return nil
	}
	return s.store.Enroll(ctx, courseID, st.ID)
}

// ImportLogs lists past imports for a course, newest first.
func (s *Service) ImportLogs(ctx context.Context, courseID string) ([]ImportLog, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return s.store.ImportLogs(ctx, courseID)
}
