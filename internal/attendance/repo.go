package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

type scanner interface {
	Scan(dest ...any) error
}

// mapErr translates driver errors into the package's sentinel errors.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// validID rejects ids that Postgres would refuse to cast to uuid.
func validID(id, what string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return nil
}

// ---------- Courses ----------

const courseColumns = `id, code, name, description, capacity, credits, semester, created_at`

func scanCourse(row scanner) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Capacity, &c.Credits, &c.Semester, &c.CreatedAt)
	return c, err
}

// CreateCourse inserts a course.
func (r *Repository) CreateCourse(ctx context.Context, c Course) (Course, error) {
	c.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (id, code, name, description, capacity, credits, semester)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, c.ID, c.Code, c.Name, c.Description, c.Capacity, c.Credits, c.Semester)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return Course{}, mapErr(err, "course "+c.Code)
	}
	return c, nil
}

// GetCourse returns a course by id.
func (r *Repository) GetCourse(ctx context.Context, id string) (Course, error) {
	if err := validID(id, "course"); err != nil {
		return Course{}, err
	}
	c, err := scanCourse(r.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if err != nil {
		return Course{}, mapErr(err, "course "+id)
	}
	return c, nil
}

// CoursesForStudent returns the courses a student is enrolled in.
func (r *Repository) CoursesForStudent(ctx context.Context, studentID string) ([]Course, error) {
	if err := validID(studentID, "student"); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.code, c.name, c.description, c.capacity, c.credits, c.semester, c.created_at
		FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		WHERE e.student_id = $1
		ORDER BY c.code
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ---------- Students ----------

const studentColumns = `id, student_id, first_name, last_name, email, phone, department, major, status, semester, created_at`

func scanStudent(row scanner) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.StudentID, &s.FirstName, &s.LastName, &s.Email, &s.Phone,
		&s.Department, &s.Major, &s.Status, &s.Semester, &s.CreatedAt)
	return s, err
}

// CreateStudent inserts a student.
func (r *Repository) CreateStudent(ctx context.Context, s Student) (Student, error) {
	s.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, student_id, first_name, last_name, email, phone, department, major, status, semester)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, s.ID, s.StudentID, s.FirstName, s.LastName, s.Email, s.Phone, s.Department, s.Major, s.Status, s.Semester)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Student{}, mapErr(err, "student "+s.StudentID)
	}
	return s, nil
}

// GetStudent returns a student by id.
func (r *Repository) GetStudent(ctx context.Context, id string) (Student, error) {
	if err := validID(id, "student"); err != nil {
		return Student{}, err
	}
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if err != nil {
		return Student{}, mapErr(err, "student "+id)
	}
	return s, nil
}

// GetOrCreateStudent returns the student with s.StudentID, inserting s when absent.
// Existing students keep their stored details.
func (r *Repository) GetOrCreateStudent(ctx context.Context, s Student) (Student, bool, error) {
	s.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, student_id, first_name, last_name, email, phone, department, major, status, semester)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (student_id) DO NOTHING
		RETURNING created_at
	`, s.ID, s.StudentID, s.FirstName, s.LastName, s.Email, s.Phone, s.Department, s.Major, s.Status, s.Semester)
	err := row.Scan(&s.CreatedAt)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Student{}, false, mapErr(err, "student "+s.StudentID)
	}
	existing, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = $1`, s.StudentID))
	if err != nil {
		return Student{}, false, mapErr(err, "student "+s.StudentID)
	}
	return existing, false, nil
}

// ---------- Enrollment ----------

// IsEnrolled reports whether the student belongs to the course.
func (r *Repository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)
	`, courseID, studentID).Scan(&ok)
	return ok, err
}

// Enroll adds the pair; enrolling twice is a no-op.
func (r *Repository) Enroll(ctx context.Context, courseID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, courseID, studentID)
	return mapErr(err, "enrollment")
}

// EnrolledStudents lists a course's students by surname.
func (r *Repository) EnrolledStudents(ctx context.Context, courseID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_id, s.first_name, s.last_name, s.email, s.phone, s.department, s.major, s.status, s.semester, s.created_at
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.course_id = $1
		ORDER BY s.last_name, s.first_name
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ---------- Sessions ----------

const sessionColumns = `se.id, se.course_id, c.code, se.date, se.start_time, se.end_time,
	se.duration_minutes, se.late_cutoff_minutes, se.checkin_code, se.notes, se.is_recurring, se.created_at`

func scanSession(row scanner) (Session, error) {
	var (
		s          Session
		start, end sql.NullString
		code       sql.NullString
	)
	if err := row.Scan(&s.ID, &s.CourseID, &s.CourseCode, &s.Date, &start, &end,
		&s.DurationMinutes, &s.LateCutoffMinutes, &code, &s.Notes, &s.IsRecurring, &s.CreatedAt); err != nil {
		return Session{}, err
	}
	s.Date = DateOf(s.Date)
	s.CheckinCode = code.String
	var err error
	if s.StartTime, err = parseOptTime(start); err != nil {
		return Session{}, err
	}
	if s.EndTime, err = parseOptTime(end); err != nil {
		return Session{}, err
	}
	return s, nil
}

func parseOptTime(ns sql.NullString) (*TimeOfDay, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func timeArg(t *TimeOfDay) any {
	if t == nil {
		return nil
	}
	return t.String()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetSession returns a session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	if err := validID(id, "session"); err != nil {
		return Session{}, err
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions se JOIN courses c ON c.id = se.course_id
		WHERE se.id = $1
	`, id))
	if err != nil {
		return Session{}, mapErr(err, "session "+id)
	}
	return s, nil
}

// SessionsForCourse lists a course's sessions inside r, oldest first.
func (r *Repository) SessionsForCourse(ctx context.Context, courseID string, rng DateRange) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions se JOIN courses c ON c.id = se.course_id`
	args := []any{courseID}
	clauses := []string{"se.course_id = $1"}
	if rng.From != nil {
		args = append(args, DateOf(*rng.From))
		clauses = append(clauses, "se.date >= $"+itoa(len(args)))
	}
	if rng.To != nil {
		args = append(args, DateOf(*rng.To))
		clauses = append(clauses, "se.date <= $"+itoa(len(args)))
	}
	query += " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY se.date, se.start_time"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CreateSession inserts a session unless one already exists for the same
// course, date and start time.
func (r *Repository) CreateSession(ctx context.Context, s Session) (Session, bool, error) {
	s.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, course_id, date, start_time, end_time, duration_minutes,
			late_cutoff_minutes, checkin_code, notes, is_recurring)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (course_id, date, start_time) DO NOTHING
		RETURNING created_at
	`, s.ID, s.CourseID, DateOf(s.Date), timeArg(s.StartTime), timeArg(s.EndTime), s.DurationMinutes,
		s.LateCutoffMinutes, nullIfEmpty(s.CheckinCode), s.Notes, s.IsRecurring)
	if err := row.Scan(&s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, mapErr(err, "session")
	}
	return s, true, nil
}

// CreateTemplate stores a recurring template.
func (r *Repository) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	t.ID = uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO recurring_templates (id, course_id, start_date, end_date, start_time, end_time,
			frequency, day_of_week, notes, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, t.ID, t.CourseID, DateOf(t.StartDate), DateOf(t.EndDate), t.StartTime.String(), t.EndTime.String(),
		string(t.Frequency), t.DayOfWeek, t.Notes, t.Active)
	if err := row.Scan(&t.CreatedAt); err != nil {
		return Template{}, mapErr(err, "template")
	}
	return t, nil
}

// ---------- Attendance ----------

const recordColumns = `a.id, a.session_id, a.student_id, a.status, a.remarks, a.checkin_time, a.recorded_at, a.updated_at`

func scanRecordRow(row scanner, withJoins bool) (Record, error) {
	var (
		rec     Record
		checkin sql.NullTime
	)
	dest := []any{&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.Remarks, &checkin, &rec.RecordedAt, &rec.UpdatedAt}
	var (
		st         Student
		se         Session
		start, end sql.NullString
		code       sql.NullString
	)
	if withJoins {
		dest = append(dest,
			&st.ID, &st.StudentID, &st.FirstName, &st.LastName, &st.Email, &st.Phone,
			&st.Department, &st.Major, &st.Status, &st.Semester, &st.CreatedAt,
			&se.ID, &se.CourseID, &se.CourseCode, &se.Date, &start, &end,
			&se.DurationMinutes, &se.LateCutoffMinutes, &code, &se.Notes, &se.IsRecurring, &se.CreatedAt)
	}
	if err := row.Scan(dest...); err != nil {
		return Record{}, err
	}
	if checkin.Valid {
		t := checkin.Time
		rec.CheckinTime = &t
	}
	if !withJoins {
		return rec, nil
	}
	se.Date = DateOf(se.Date)
	se.CheckinCode = code.String
	var err error
	if se.StartTime, err = parseOptTime(start); err != nil {
		return Record{}, err
	}
	if se.EndTime, err = parseOptTime(end); err != nil {
		return Record{}, err
	}
	rec.Student = &st
	rec.Session = &se
	return rec, nil
}

// Attendance returns records matching f with student and session joined.
func (r *Repository) Attendance(ctx context.Context, f RecordFilter) ([]Record, error) {
	for _, id := range []string{f.SessionID, f.StudentID, f.CourseID} {
		if id != "" && validID(id, "filter") != nil {
			return []Record{}, nil
		}
	}
	query := `SELECT ` + recordColumns + `,
		st.id, st.student_id, st.first_name, st.last_name, st.email, st.phone, st.department, st.major, st.status, st.semester, st.created_at,
		` + sessionColumns + `
		FROM attendance_records a
		JOIN students st ON st.id = a.student_id
		JOIN sessions se ON se.id = a.session_id
		JOIN courses c ON c.id = se.course_id`
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, clause+" $"+itoa(len(args)))
	}
	if f.SessionID != "" {
		add("a.session_id =", f.SessionID)
	}
	if f.StudentID != "" {
		add("a.student_id =", f.StudentID)
	}
	if f.CourseID != "" {
		add("se.course_id =", f.CourseID)
	}
	if f.Range.From != nil {
		add("se.date >=", DateOf(*f.Range.From))
	}
	if f.Range.To != nil {
		add("se.date <=", DateOf(*f.Range.To))
	}
	if f.Status != "" {
		add("a.status =", string(f.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY se.date, se.start_time, st.last_name, st.first_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Record{}
	for rows.Next() {
		rec, err := scanRecordRow(rows, true)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// UpsertAttendance creates or updates the single record for (session, student).
// Nil remarks or check-in time keep the stored values.
func (r *Repository) UpsertAttendance(ctx context.Context, sessionID, studentID string, f RecordFields) (Record, error) {
	var remarks any
	if f.Remarks != nil {
		remarks = *f.Remarks
	}
	var checkin any
	if f.CheckinTime != nil {
		checkin = f.CheckinTime.UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records AS a (id, session_id, student_id, status, remarks, checkin_time)
		VALUES ($1, $2, $3, $4, COALESCE($5::text, ''), $6::timestamptz)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			remarks = COALESCE($5::text, a.remarks),
			checkin_time = COALESCE($6::timestamptz, a.checkin_time),
			updated_at = NOW()
		RETURNING `+recordColumns,
		uuid.NewString(), sessionID, studentID, string(f.Status), remarks, checkin)
	rec, err := scanRecordRow(row, false)
	if err != nil {
		return Record{}, mapErr(err, "attendance")
	}
	return rec, nil
}

// ---------- Import logs ----------

// CreateImportLog stores the outcome of a bulk import.
func (r *Repository) CreateImportLog(ctx context.Context, l ImportLog) (ImportLog, error) {
	l.ID = uuid.NewString()
	var uploadedBy any
	if l.UploadedBy != "" {
		uploadedBy = l.UploadedBy
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO import_logs (id, course_id, uploaded_by, file_name, status, total_records,
			successful_imports, failed_imports, error_details, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, l.ID, l.CourseID, uploadedBy, l.FileName, l.Status, l.TotalRecords,
		l.Successful, l.Failed, l.ErrorDetails, l.CompletedAt)
	if err := row.Scan(&l.CreatedAt); err != nil {
		return ImportLog{}, mapErr(err, "import log")
	}
	return l, nil
}

// ImportLogs lists a course's imports, newest first.
func (r *Repository) ImportLogs(ctx context.Context, courseID string) ([]ImportLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, COALESCE(uploaded_by, ''), file_name, status, total_records,
			successful_imports, failed_imports, error_details, created_at, completed_at
		FROM import_logs
		WHERE course_id = $1
		ORDER BY created_at DESC
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []ImportLog{}
	for rows.Next() {
		var (
			l    ImportLog
			done sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.CourseID, &l.UploadedBy, &l.FileName, &l.Status, &l.TotalRecords,
			&l.Successful, &l.Failed, &l.ErrorDetails, &l.CreatedAt, &done); err != nil {
			return nil, err
		}
		if done.Valid {
			t := done.Time
			l.CompletedAt = &t
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// ---------- Check-in events ----------

// InsertCheckinEvent writes an audit event. Replaying the same event id is a no-op.
func (r *Repository) InsertCheckinEvent(ctx context.Context, evt CheckinEvent) (CheckinEvent, bool, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if evt.Status == "" {
		evt.Status = "recorded"
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO checkin_events (id, record_id, session_id, student_id, occurred_at, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`, evt.ID, evt.RecordID, evt.SessionID, evt.StudentID, evt.OccurredAt, evt.Status)
	if err := row.Scan(&evt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evt, false, nil
		}
		return CheckinEvent{}, false, mapErr(err, "checkin event")
	}
	return evt, true, nil
}

// ListCheckinEvents returns audit events with basic filters, newest first.
func (r *Repository) ListCheckinEvents(ctx context.Context, sessionID, studentID string, limit, offset int) ([]CheckinEvent, error) {
	for _, id := range []string{sessionID, studentID} {
		if id != "" && validID(id, "filter") != nil {
			return []CheckinEvent{}, nil
		}
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, record_id, session_id, student_id, occurred_at, status, created_at FROM checkin_events`
	args := []any{}
	clauses := []string{}
	if sessionID != "" {
		clauses = append(clauses, "session_id = $"+itoa(len(args)+1))
		args = append(args, sessionID)
	}
	if studentID != "" {
		clauses = append(clauses, "student_id = $"+itoa(len(args)+1))
		args = append(args, studentID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []CheckinEvent{}
	for rows.Next() {
		var evt CheckinEvent
		if err := rows.Scan(&evt.ID, &evt.RecordID, &evt.SessionID, &evt.StudentID, &evt.OccurredAt, &evt.Status, &evt.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}
