package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store for development and tests. It enforces
// the same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu          sync.RWMutex
	courses     map[string]Course
	students    map[string]Student
	enrollments map[[2]string]bool
	sessions    map[string]Session
	templates   map[string]Template
	records     map[[2]string]Record
	importLogs  []ImportLog
	events      map[string]CheckinEvent
	now         func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:     map[string]Course{},
		students:    map[string]Student{},
		enrollments: map[[2]string]bool{},
		sessions:    map[string]Session{},
		templates:   map[string]Template{},
		records:     map[[2]string]Record{},
		events:      map[string]CheckinEvent{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateCourse(_ context.Context, c Course) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.courses {
		if other.Code == c.Code {
			return Course{}, fmt.Errorf("course %s: %w", c.Code, ErrConflict)
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = m.now()
	m.courses[c.ID] = c
	return c, nil
}

func (m *MemoryStore) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *MemoryStore) CreateStudent(_ context.Context, s Student) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertStudent(s)
}

func (m *MemoryStore) insertStudent(s Student) (Student, error) {
	for _, other := range m.students {
		if other.StudentID == s.StudentID || other.Email == s.Email {
			return Student{}, fmt.Errorf("student %s: %w", s.StudentID, ErrConflict)
		}
	}
	s.ID = uuid.NewString()
	s.CreatedAt = m.now()
	m.students[s.ID] = s
	return s, nil
}

func (m *MemoryStore) GetStudent(_ context.Context, id string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return Student{}, fmt.Errorf("student %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *MemoryStore) GetOrCreateStudent(_ context.Context, s Student) (Student, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.students {
		if other.StudentID == s.StudentID {
			return other, false, nil
		}
	}
	created, err := m.insertStudent(s)
	if err != nil {
		return Student{}, false, err
	}
	return created, true, nil
}

func (m *MemoryStore) IsEnrolled(_ context.Context, courseID, studentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrollments[[2]string{courseID, studentID}], nil
}

func (m *MemoryStore) Enroll(_ context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[[2]string{courseID, studentID}] = true
	return nil
}

func (m *MemoryStore) EnrolledStudents(_ context.Context, courseID string) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Student
	for key := range m.enrollments {
		if key[0] == courseID {
			out = append(out, m.students[key[1]])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (m *MemoryStore) CoursesForStudent(_ context.Context, studentID string) ([]Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Course
	for key := range m.enrollments {
		if key[1] == studentID {
			out = append(out, m.courses[key[0]])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *MemoryStore) SessionsForCourse(_ context.Context, courseID string, r DateRange) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.CourseID == courseID && r.Contains(s.Date) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return startMinutes(out[i]) < startMinutes(out[j])
	})
	return out, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s Session) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.sessions {
		if other.CourseID == s.CourseID && other.Date.Equal(s.Date) && sameStart(other, s) {
			return Session{}, false, nil
		}
	}
	s.ID = uuid.NewString()
	s.CourseCode = m.courses[s.CourseID].Code
	s.CreatedAt = m.now()
	m.sessions[s.ID] = s
	return s, true, nil
}

// sameStart mirrors SQL UNIQUE semantics: a NULL start never collides.
func sameStart(a, b Session) bool {
	if a.StartTime == nil || b.StartTime == nil {
		return false
	}
	return *a.StartTime == *b.StartTime
}

func (m *MemoryStore) CreateTemplate(_ context.Context, t Template) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.NewString()
	t.CreatedAt = m.now()
	m.templates[t.ID] = t
	return t, nil
}

func (m *MemoryStore) Attendance(_ context.Context, f RecordFilter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Record{}
	for _, rec := range m.records {
		sess := m.sessions[rec.SessionID]
		switch {
		case f.SessionID != "" && rec.SessionID != f.SessionID,
			f.StudentID != "" && rec.StudentID != f.StudentID,
			f.CourseID != "" && sess.CourseID != f.CourseID,
			f.Status != "" && rec.Status != f.Status,
			!f.Range.Contains(sess.Date):
			continue
		}
		st := m.students[rec.StudentID]
		rec.Student = &st
		rec.Session = &sess
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Session.Date.Equal(b.Session.Date) {
			return a.Session.Date.Before(b.Session.Date)
		}
		if sa, sb := startMinutes(*a.Session), startMinutes(*b.Session); sa != sb {
			return sa < sb
		}
		if a.Student.LastName != b.Student.LastName {
			return a.Student.LastName < b.Student.LastName
		}
		return a.Student.FirstName < b.Student.FirstName
	})
	return out, nil
}

func (m *MemoryStore) UpsertAttendance(_ context.Context, sessionID, studentID string, f RecordFields) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{sessionID, studentID}
	now := m.now()
	rec, ok := m.records[key]
	if !ok {
		rec = Record{ID: uuid.NewString(), SessionID: sessionID, StudentID: studentID, RecordedAt: now}
	}
	rec.Status = f.Status
	if f.Remarks != nil {
		rec.Remarks = *f.Remarks
	}
	if f.CheckinTime != nil {
		t := f.CheckinTime.UTC()
		rec.CheckinTime = &t
	}
	rec.UpdatedAt = now
	m.records[key] = rec
	return rec, nil
}

func (m *MemoryStore) CreateImportLog(_ context.Context, l ImportLog) (ImportLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.NewString()
	l.CreatedAt = m.now()
	m.importLogs = append(m.importLogs, l)
	return l, nil
}

func (m *MemoryStore) ImportLogs(_ context.Context, courseID string) ([]ImportLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []ImportLog{}
	for i := len(m.importLogs) - 1; i >= 0; i-- {
		if m.importLogs[i].CourseID == courseID {
			out = append(out, m.importLogs[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertCheckinEvent(_ context.Context, evt CheckinEvent) (CheckinEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if existing, ok := m.events[evt.ID]; ok {
		return existing, false, nil
	}
	if evt.Status == "" {
		evt.Status = "recorded"
	}
	evt.CreatedAt = m.now()
	m.events[evt.ID] = evt
	return evt, true, nil
}

func (m *MemoryStore) ListCheckinEvents(_ context.Context, sessionID, studentID string, limit, offset int) ([]CheckinEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	out := []CheckinEvent{}
	for _, evt := range m.events {
		if (sessionID == "" || evt.SessionID == sessionID) && (studentID == "" || evt.StudentID == studentID) {
			out = append(out, evt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if offset >= len(out) {
		return []CheckinEvent{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
