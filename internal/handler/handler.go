package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"uniattend/internal/attendance"
	"uniattend/internal/auth"
	"uniattend/internal/export"
	"uniattend/internal/httpmiddleware"
	"uniattend/internal/queue"
)

// Options carries the settings handlers need from config.
type Options struct {
	Issuer        string
	SigningKey    string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AuthBootstrap bool
	TrendDays     int
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	svc    *attendance.Service
	events attendance.EventStore
	q      queue.Queue
	opts   Options
	checks map[string]HealthCheck
	now    func() time.Time
}

func New(svc *attendance.Service, events attendance.EventStore, q queue.Queue, opts Options, checks map[string]HealthCheck) *Handler {
	if opts.TrendDays <= 0 {
		opts.TrendDays = 30
	}
	return &Handler{svc: svc, events: events, q: q, opts: opts, checks: checks, now: time.Now}
}

// Register mounts every route on r. Authenticated routes are rate limited per
// token subject.
func (h *Handler) Register(r gin.IRouter, limiter httpmiddleware.Limiter) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/token", h.IssueToken)
	v1.POST("/auth/refresh", h.RefreshToken)

	api := v1.Group("", auth.Bearer(h.opts.SigningKey, h.opts.Issuer), httpmiddleware.RateLimit(limiter))
	{
		api.POST("/courses", auth.Require(auth.ActionManageCourses), h.CreateCourse)
		api.GET("/courses/:id", h.GetCourse)
		api.POST("/courses/:id/students", auth.Require(auth.ActionManageStudents), h.Enroll)
		api.GET("/courses/:id/students/:studentId/analytics", h.StudentCourseAnalytics)
		api.GET("/courses/:id/analytics", auth.Require(auth.ActionViewReports), h.CourseAnalytics)
		api.GET("/courses/:id/report", auth.Require(auth.ActionViewReports), h.CourseReport)
		api.POST("/courses/:id/templates", auth.Require(auth.ActionManageSessions), h.ExpandTemplate)
		api.POST("/courses/:id/sessions", auth.Require(auth.ActionManageSessions), h.CreateSession)
		api.POST("/courses/:id/import", auth.Require(auth.ActionImport), h.ImportStudents)
		api.GET("/courses/:id/import-logs", auth.Require(auth.ActionImport), h.ImportLogs)

		api.POST("/students", auth.Require(auth.ActionManageStudents), h.CreateStudent)
		api.GET("/students/:id/report", h.StudentReport)

		api.GET("/sessions/:id/stats", auth.Require(auth.ActionViewReports), h.SessionStats)
		api.GET("/sessions/:id/export", auth.Require(auth.ActionViewReports), h.SessionExport)
		api.GET("/sessions/:id/events", auth.Require(auth.ActionViewReports), h.CheckinEvents)
		api.PUT("/sessions/:id/attendance", auth.Require(auth.ActionMarkAttendance), h.Mark)
		api.POST("/sessions/:id/checkin", h.CheckIn)

		api.GET("/me/sessions", h.MySessions)
		api.GET("/reports/attendance", auth.Require(auth.ActionViewReports), h.AttendanceReport)
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Tokens ----------

type tokenRequest struct {
	Subject   string    `json:"subject" binding:"required"`
	Role      auth.Role `json:"role" binding:"required"`
	StudentID string    `json:"student_id"`
}

// IssueToken mints tokens for any identity. It only exists when bootstrap is
// enabled, which is meant for development and first-time setup.
func (h *Handler) IssueToken(c *gin.Context) {
	if !h.opts.AuthBootstrap {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be one of student, instructor, admin"})
		return
	}
	if req.Role == auth.RoleStudent && req.StudentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student_id is required for student tokens"})
		return
	}
	id := auth.Identity{Subject: req.Subject, Role: req.Role, StudentID: req.StudentID}
	tokens, err := auth.Issue(id, h.opts.Issuer, h.opts.SigningKey, h.opts.AccessTTL, h.opts.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, tokens)
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := auth.Refresh(req.RefreshToken, h.opts.Issuer, h.opts.SigningKey, h.opts.AccessTTL, h.opts.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// ---------- helpers ----------

// respondError maps domain errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	var verr *attendance.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func claims(c *gin.Context) auth.Claims {
	cl, _ := auth.ClaimsFrom(c)
	return cl
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}

func wantsCSV(c *gin.Context) bool {
	return c.Query("export") == "csv"
}

// writeTable assembles data as a report of the given kind and streams it as a
// CSV attachment.
func (h *Handler) writeTable(c *gin.Context, kind attendance.ReportKind, data any, subject string) {
	t, err := attendance.Assemble(kind, data)
	if err != nil {
		respondError(c, err)
		return
	}
	name := export.Filename(t.Kind, subject, h.now())
	c.Header("Content-Type", export.ContentType)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, t); err != nil {
		log.Printf("write %s: %v", name, err)
	}
}

// dateRange reads the optional from/to query parameters.
func dateRange(c *gin.Context) (attendance.DateRange, error) {
	var r attendance.DateRange
	var fields []attendance.FieldError
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &r.From}, {"to", &r.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		d, err := attendance.ParseDate(v)
		if err != nil {
			fields = append(fields, attendance.FieldError{Field: p.name, Error: "must be a date (YYYY-MM-DD)"})
			continue
		}
		*p.dst = &d
	}
	if len(fields) > 0 {
		return r, attendance.NewValidationError(errors.New("invalid date range"), fields...)
	}
	return r, nil
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
