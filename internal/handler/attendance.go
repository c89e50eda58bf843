package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"uniattend/internal/attendance"
	"uniattend/internal/audit"
	"uniattend/internal/auth"
)

// ---------- Students ----------

func (h *Handler) CreateStudent(c *gin.Context) {
	var st attendance.Student
	if err := c.ShouldBindJSON(&st); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.svc.CreateStudent(c.Request.Context(), st)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) StudentReport(c *gin.Context) {
	studentID := c.Param("id")
	if !auth.CanViewStudent(claims(c), studentID) {
		forbidden(c)
		return
	}
	rep, err := h.svc.StudentReport(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	if wantsCSV(c) {
		h.writeTable(c, attendance.KindStudent, rep, rep.Student.StudentID)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ---------- Sessions ----------

func (h *Handler) SessionStats(c *gin.Context) {
	stats, err := h.svc.SessionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SessionExport downloads the general report for one session.
func (h *Handler) SessionExport(c *gin.Context) {
	sess, err := h.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	recs, err := h.svc.Records(c.Request.Context(), attendance.RecordFilter{SessionID: sess.ID})
	if err != nil {
		respondError(c, err)
		return
	}
	h.writeTable(c, attendance.KindGeneral, recs, sess.CourseCode+"_"+sess.Date.Format("20060102"))
}

func (h *Handler) CheckinEvents(c *gin.Context) {
	events, err := h.events.ListCheckinEvents(c.Request.Context(), c.Param("id"), c.Query("student_id"),
		queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type markRequest struct {
	StudentID string                 `json:"student_id"`
	Status    attendance.Status      `json:"status"`
	Remarks   *string                `json:"remarks"`
	Marks     []attendance.MarkEntry `json:"marks"`
}

// Mark sets statuses directly, either one student or a "marks" list.
func (h *Handler) Mark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries := req.Marks
	if len(entries) == 0 {
		if req.StudentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id or marks required"})
			return
		}
		entries = []attendance.MarkEntry{{StudentID: req.StudentID, Status: req.Status, Remarks: req.Remarks}}
	}
	recs, err := h.svc.MarkBulk(c.Request.Context(), c.Param("id"), entries)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

// CheckIn lets a student mark themself present. Rejections are answered
// with the reason code; they are not server errors.
func (h *Handler) CheckIn(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	ctx := c.Request.Context()
	res, err := h.svc.CheckIn(ctx, claims(c).StudentID, c.Param("id"), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	if !res.Decision.Accepted() {
		c.JSON(rejectionStatus(res.Decision.Reason), gin.H{
			"error":    res.Decision.Reason.Message(),
			"reason":   res.Decision.Reason,
			"decision": res.Decision,
		})
		return
	}

	body := gin.H{"decision": res.Decision, "record": res.Record}
	if h.q != nil {
		evt, err := audit.Publish(ctx, h.q, *res.Record)
		if err != nil {
			log.Printf("queue publish failed: %v", err)
		} else {
			body["event_id"] = evt.ID
		}
	}
	c.JSON(http.StatusOK, body)
}

func rejectionStatus(r attendance.Reason) int {
	switch r {
	case attendance.NotAStudent, attendance.NotEnrolled:
		return http.StatusForbidden
	case attendance.OutsideWindow:
		return http.StatusConflict
	case attendance.BadCode:
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

// MySessions lists today's sessions for the calling student.
func (h *Handler) MySessions(c *gin.Context) {
	studentID := claims(c).StudentID
	if studentID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": attendance.NotAStudent.Message()})
		return
	}
	sessions, err := h.svc.OpenSessions(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ---------- Reports ----------

// AttendanceReport serves every report shape. type selects general (the
// default, filtered records), student or course; the latter two need the
// matching student or course parameter.
func (h *Handler) AttendanceReport(c *gin.Context) {
	kind, err := attendance.ParseReportKind(strings.ToLower(c.Query("type")))
	if err != nil {
		respondError(c, err)
		return
	}
	rng, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()

	var (
		data    any
		subject string
	)
	switch kind {
	case attendance.KindStudent:
		studentID := c.Query("student")
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student is required for a student report"})
			return
		}
		rep, err := h.svc.StudentReport(ctx, studentID)
		if err != nil {
			respondError(c, err)
			return
		}
		data, subject = rep, rep.Student.StudentID
	case attendance.KindCourse:
		courseID := c.Query("course")
		if courseID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "course is required for a course report"})
			return
		}
		rep, err := h.svc.CourseReport(ctx, courseID, rng)
		if err != nil {
			respondError(c, err)
			return
		}
		data, subject = rep, rep.Course.Code
	default:
		recs, err := h.svc.Records(ctx, attendance.RecordFilter{
			CourseID:  c.Query("course"),
			StudentID: c.Query("student"),
			Range:     rng,
			Status:    attendance.Status(strings.ToLower(c.Query("status"))),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		if !wantsCSV(c) {
			c.JSON(http.StatusOK, gin.H{"records": recs, "stats": attendance.SessionStats(recs)})
			return
		}
		data = recs
	}

	if wantsCSV(c) {
		h.writeTable(c, kind, data, subject)
		return
	}
	c.JSON(http.StatusOK, data)
}
