package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"uniattend/internal/attendance"
	"uniattend/internal/auth"
)

// ---------- Courses ----------

type courseRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity" binding:"gte=0"`
	Credits     int    `json:"credits" binding:"gte=0"`
	Semester    int    `json:"semester" binding:"gte=0"`
}

func (h *Handler) CreateCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	course, err := h.svc.CreateCourse(c.Request.Context(), attendance.Course{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.Capacity,
		Credits:     req.Credits,
		Semester:    req.Semester,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (h *Handler) GetCourse(c *gin.Context) {
	course, err := h.svc.Course(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) Enroll(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Enroll(c.Request.Context(), c.Param("id"), req.StudentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"course_id": c.Param("id"), "student_id": req.StudentID})
}

func (h *Handler) CourseAnalytics(c *gin.Context) {
	res, err := h.svc.CourseAnalytics(c.Request.Context(), c.Param("id"), queryInt(c, "days", h.opts.TrendDays))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// StudentCourseAnalytics is visible to staff and to the student themself.
func (h *Handler) StudentCourseAnalytics(c *gin.Context) {
	studentID := c.Param("studentId")
	if !auth.CanViewStudent(claims(c), studentID) {
		forbidden(c)
		return
	}
	res, err := h.svc.StudentCourseAnalytics(c.Request.Context(), studentID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CourseReport(c *gin.Context) {
	rng, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rep, err := h.svc.CourseReport(c.Request.Context(), c.Param("id"), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	if wantsCSV(c) {
		h.writeTable(c, attendance.KindCourse, rep, rep.Course.Code)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ---------- Sessions ----------

type templateRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	Frequency string `json:"frequency" binding:"required"`
	DayOfWeek *int   `json:"day_of_week"` // weekly and biweekly only
	Notes     string `json:"notes"`
}

func (r templateRequest) template() (attendance.Template, error) {
	var (
		t      attendance.Template
		fields []attendance.FieldError
		err    error
	)
	if t.StartDate, err = attendance.ParseDate(r.StartDate); err != nil {
		fields = append(fields, attendance.FieldError{Field: "start_date", Error: "must be a date (YYYY-MM-DD)"})
	}
	if t.EndDate, err = attendance.ParseDate(r.EndDate); err != nil {
		fields = append(fields, attendance.FieldError{Field: "end_date", Error: "must be a date (YYYY-MM-DD)"})
	}
	if t.StartTime, err = attendance.ParseTimeOfDay(r.StartTime); err != nil {
		fields = append(fields, attendance.FieldError{Field: "start_time", Error: "must be a time (HH:MM)"})
	}
	if t.EndTime, err = attendance.ParseTimeOfDay(r.EndTime); err != nil {
		fields = append(fields, attendance.FieldError{Field: "end_time", Error: "must be a time (HH:MM)"})
	}
	t.Frequency = attendance.Frequency(strings.ToLower(r.Frequency))
	switch {
	case r.DayOfWeek != nil:
		t.DayOfWeek = *r.DayOfWeek
	case t.Frequency == attendance.Weekly || t.Frequency == attendance.Biweekly:
		fields = append(fields, attendance.FieldError{Field: "day_of_week", Error: "this field is required"})
	}
	if len(fields) > 0 {
		return t, attendance.NewValidationError(errors.New("invalid template"), fields...)
	}
	t.Notes = r.Notes
	return t, nil
}

func (h *Handler) ExpandTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := req.template()
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.svc.ExpandTemplate(c.Request.Context(), c.Param("id"), t)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type sessionRequest struct {
	Date              string `json:"date" binding:"required"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	DurationMinutes   int    `json:"duration_minutes" binding:"gte=0"`
	LateCutoffMinutes int    `json:"late_cutoff_minutes" binding:"gte=0"`
	CheckinCode       string `json:"checkin_code"`
	Notes             string `json:"notes"`
}

func (r sessionRequest) session(courseID string) (attendance.Session, error) {
	s := attendance.Session{
		CourseID:          courseID,
		DurationMinutes:   r.DurationMinutes,
		LateCutoffMinutes: r.LateCutoffMinutes,
		CheckinCode:       r.CheckinCode,
		Notes:             r.Notes,
	}
	var fields []attendance.FieldError
	d, err := attendance.ParseDate(r.Date)
	if err != nil {
		fields = append(fields, attendance.FieldError{Field: "date", Error: "must be a date (YYYY-MM-DD)"})
	}
	s.Date = d
	for _, p := range []struct {
		name string
		val  string
		dst  **attendance.TimeOfDay
	}{{"start_time", r.StartTime, &s.StartTime}, {"end_time", r.EndTime, &s.EndTime}} {
		if p.val == "" {
			continue
		}
		t, err := attendance.ParseTimeOfDay(p.val)
		if err != nil {
			fields = append(fields, attendance.FieldError{Field: p.name, Error: "must be a time (HH:MM)"})
			continue
		}
		*p.dst = &t
	}
	if len(fields) > 0 {
		return s, attendance.NewValidationError(errors.New("invalid session"), fields...)
	}
	return s, nil
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := req.session(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	created, err := h.svc.CreateSession(c.Request.Context(), sess)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ---------- Import ----------

// ImportStudents accepts a multipart CSV upload in the "file" field.
func (h *Handler) ImportStudents(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only CSV files are supported"})
		return
	}

	rows, err := attendance.ParseImportCSV(file)
	if err != nil {
		var verr *attendance.ValidationError
		if errors.As(err, &verr) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.ImportStudents(c.Request.Context(), c.Param("id"), claims(c).Subject, header.Filename, rows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ImportLogs(c *gin.Context) {
	logs, err := h.svc.ImportLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imports": logs})
}
