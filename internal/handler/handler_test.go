package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniattend/internal/attendance"
	"uniattend/internal/auth"
	"uniattend/internal/httpmiddleware"
	"uniattend/internal/queue"
)

const (
	testKey    = "handler-test-key"
	testIssuer = "uniattend-test"
)

type testEnv struct {
	router  *gin.Engine
	store   *attendance.MemoryStore
	q       *queue.InMemory
	course  attendance.Course
	student attendance.Student
	other   attendance.Student
	session attendance.Session
	later   attendance.Session
}

func newTestEnv(t *testing.T, bootstrap bool) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

	mem := attendance.NewMemoryStore()
	svc := attendance.NewService(mem, time.UTC)
	svc.SetClock(func() time.Time { return now })

	course, err := svc.CreateCourse(ctx, attendance.Course{Code: "CS101", Name: "Intro", Capacity: 10})
	require.NoError(t, err)
	student, err := svc.CreateStudent(ctx, attendance.Student{StudentID: "S1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@uni.edu"})
	require.NoError(t, err)
	other, err := svc.CreateStudent(ctx, attendance.Student{StudentID: "S2", FirstName: "Alan", LastName: "Turing", Email: "alan@uni.edu"})
	require.NoError(t, err)
	require.NoError(t, svc.Enroll(ctx, course.ID, student.ID))

	start, end := attendance.TimeOfDay{Hour: 9}, attendance.TimeOfDay{Hour: 10}
	session, err := svc.CreateSession(ctx, attendance.Session{
		CourseID: course.ID, Date: now, StartTime: &start, EndTime: &end, CheckinCode: "ABC123",
	})
	require.NoError(t, err)
	later, err := svc.CreateSession(ctx, attendance.Session{
		CourseID: course.ID, Date: now.AddDate(0, 0, 1), StartTime: &start, EndTime: &end,
	})
	require.NoError(t, err)

	q := queue.NewInMemory(16)
	h := New(svc, mem, q, Options{
		Issuer:        testIssuer,
		SigningKey:    testKey,
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		AuthBootstrap: bootstrap,
	}, nil)
	h.now = func() time.Time { return now }

	r := gin.New()
	h.Register(r, httpmiddleware.NewSimpleTokenBucket(1000, 1000))
	return testEnv{router: r, store: mem, q: q, course: course, student: student, other: other, session: session, later: later}
}

func token(t *testing.T, role auth.Role, studentID string) string {
	t.Helper()
	pair, err := auth.Issue(auth.Identity{Subject: "u-" + string(role) + studentID, Role: role, StudentID: studentID},
		testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	return pair.AccessToken
}

func (e testEnv) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, false)
	w := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestIssueToken(t *testing.T) {
	body := map[string]string{"subject": "prof", "role": "instructor"}

	disabled := newTestEnv(t, false)
	assert.Equal(t, http.StatusNotFound, disabled.do(t, http.MethodPost, "/v1/auth/token", "", body).Code)

	e := newTestEnv(t, true)
	w := e.do(t, http.MethodPost, "/v1/auth/token", "", body)
	require.Equal(t, http.StatusCreated, w.Code)
	pair := decode(t, w)
	assert.NotEmpty(t, pair["access_token"])

	w = e.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{"subject": "x", "role": "student"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "student tokens need a student id")

	w = e.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": pair["refresh_token"]})
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": pair["access_token"]})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateCourse(t *testing.T) {
	e := newTestEnv(t, false)
	tests := []struct {
		name   string
		tok    string
		body   any
		status int
	}{
		{"no token", "", map[string]any{"code": "MA1", "name": "Maths"}, http.StatusUnauthorized},
		{"student", token(t, auth.RoleStudent, e.student.ID), map[string]any{"code": "MA1", "name": "Maths"}, http.StatusForbidden},
		{"instructor", token(t, auth.RoleInstructor, ""), map[string]any{"code": "MA1", "name": "Maths"}, http.StatusForbidden},
		{"missing name", token(t, auth.RoleAdmin, ""), map[string]any{"code": "MA1"}, http.StatusBadRequest},
		{"admin", token(t, auth.RoleAdmin, ""), map[string]any{"code": "MA1", "name": "Maths"}, http.StatusCreated},
		{"duplicate code", token(t, auth.RoleAdmin, ""), map[string]any{"code": "CS101", "name": "Again"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/v1/courses", tt.tok, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestCheckIn(t *testing.T) {
	e := newTestEnv(t, false)
	path := "/v1/sessions/" + e.session.ID + "/checkin"

	tests := []struct {
		name   string
		path   string
		tok    string
		code   string
		status int
		reason attendance.Reason
	}{
		{"staff has no student profile", path, token(t, auth.RoleInstructor, ""), "ABC123", http.StatusForbidden, attendance.NotAStudent},
		{"not enrolled", path, token(t, auth.RoleStudent, e.other.ID), "ABC123", http.StatusForbidden, attendance.NotEnrolled},
		{"outside window", "/v1/sessions/" + e.later.ID + "/checkin", token(t, auth.RoleStudent, e.student.ID), "", http.StatusConflict, attendance.OutsideWindow},
		{"wrong code", path, token(t, auth.RoleStudent, e.student.ID), "nope", http.StatusUnprocessableEntity, attendance.BadCode},
		{"unknown session", "/v1/sessions/missing/checkin", token(t, auth.RoleStudent, e.student.ID), "", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, tt.path, tt.tok, map[string]string{"code": tt.code})
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.reason != "" {
				assert.Equal(t, string(tt.reason), decode(t, w)["reason"])
			}
		})
	}

	tok := token(t, auth.RoleStudent, e.student.ID)
	for i := 0; i < 2; i++ {
		w := e.do(t, http.MethodPost, path, tok, map[string]string{"code": " ABC123 "})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.NotEmpty(t, decode(t, w)["event_id"])
	}

	recs, err := e.store.Attendance(context.Background(), attendance.RecordFilter{SessionID: e.session.ID})
	require.NoError(t, err)
	require.Len(t, recs, 1, "repeat check-ins keep one record")
	assert.Equal(t, attendance.StatusPresent, recs[0].Status)
}

func TestMarkAndExport(t *testing.T) {
	e := newTestEnv(t, false)
	instructor := token(t, auth.RoleInstructor, "")
	path := "/v1/sessions/" + e.session.ID + "/attendance"

	w := e.do(t, http.MethodPut, path, token(t, auth.RoleStudent, e.student.ID),
		map[string]any{"student_id": e.student.ID, "status": "present"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPut, path, instructor, map[string]any{"student_id": e.student.ID, "status": "sleeping"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPut, path, instructor, map[string]any{
		"marks": []map[string]any{
			{"student_id": e.student.ID, "status": "late", "remarks": "bus"},
			{"student_id": e.other.ID, "status": "absent"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/v1/sessions/"+e.session.ID+"/stats", instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 2, stats["total"])
	assert.EqualValues(t, 50, stats["late_pct"])

	w = e.do(t, http.MethodGet, "/v1/sessions/"+e.session.ID+"/export", instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="general_CS101_20240304_20240304.csv"`)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student ID,Name,Email,Status,Remarks,Recorded At", lines[0])
}

func TestStudentReportAccess(t *testing.T) {
	e := newTestEnv(t, false)
	path := "/v1/students/" + e.student.ID + "/report"

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, path, token(t, auth.RoleStudent, e.student.ID), nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, path, token(t, auth.RoleStudent, e.other.ID), nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, path, token(t, auth.RoleInstructor, ""), nil).Code)

	w := e.do(t, http.MethodGet, path+"?export=csv", token(t, auth.RoleInstructor, ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "student_S1_20240304.csv")
}

func TestAttendanceReportRejectsBadDates(t *testing.T) {
	e := newTestEnv(t, false)
	w := e.do(t, http.MethodGet, "/v1/reports/attendance?from=yesterday", token(t, auth.RoleAdmin, ""), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "from")
}

func TestAttendanceReportTypes(t *testing.T) {
	e := newTestEnv(t, false)
	admin := token(t, auth.RoleAdmin, "")

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantFile string
	}{
		{name: "course csv", query: "?type=course&course=" + e.course.ID + "&export=csv", wantCode: http.StatusOK, wantFile: "course_CS101_20240304.csv"},
		{name: "student csv", query: "?type=student&student=" + e.student.ID + "&export=csv", wantCode: http.StatusOK, wantFile: "student_S1_20240304.csv"},
		{name: "general json", query: "", wantCode: http.StatusOK},
		{name: "unknown type", query: "?type=pdf", wantCode: http.StatusBadRequest},
		{name: "course without id", query: "?type=course", wantCode: http.StatusBadRequest},
		{name: "student without id", query: "?type=student", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/v1/reports/attendance"+tt.query, admin, nil)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantFile != "" {
				assert.Contains(t, w.Header().Get("Content-Disposition"), tt.wantFile)
			}
		})
	}
}

func TestExpandTemplateDayOfWeek(t *testing.T) {
	e := newTestEnv(t, false)
	instructor := token(t, auth.RoleInstructor, "")
	path := "/v1/courses/" + e.course.ID + "/templates"
	body := func(freq string) map[string]any {
		return map[string]any{
			"start_date": "2024-04-01", "end_date": "2024-04-03",
			"start_time": "14:00", "end_time": "15:00", "frequency": freq,
		}
	}

	w := e.do(t, http.MethodPost, path, instructor, body("daily"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dates, ok := decode(t, w)["dates"].([]any)
	require.True(t, ok)
	assert.Len(t, dates, 3)

	w = e.do(t, http.MethodPost, path, instructor, body("weekly"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "day_of_week")
}

func TestMySessions(t *testing.T) {
	e := newTestEnv(t, false)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/v1/me/sessions", token(t, auth.RoleInstructor, ""), nil).Code)

	w := e.do(t, http.MethodGet, "/v1/me/sessions", token(t, auth.RoleStudent, e.student.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions, ok := decode(t, w)["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 1)
}

func TestImportStudents(t *testing.T) {
	e := newTestEnv(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "roster.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("student_id,first_name,last_name,email\nS9,Grace,Hopper,grace@uni.edu\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/courses/"+e.course.ID+"/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, auth.RoleInstructor, ""))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	students, err := e.store.EnrolledStudents(context.Background(), e.course.ID)
	require.NoError(t, err)
	assert.Len(t, students, 2)
}
