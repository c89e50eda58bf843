package attendance

import (
	"strings"
	"time"
)

// Outcome is the terminal state of a check-in attempt.
type Outcome string

const (
	Accepted Outcome = "accepted"
	Rejected Outcome = "rejected"
)

// Reason explains a rejected check-in.
type Reason string

const (
	NotAStudent   Reason = "not_a_student"
	NotEnrolled   Reason = "not_enrolled"
	OutsideWindow Reason = "outside_window"
	BadCode       Reason = "bad_code"
)

// Message is the user-facing text for a rejection reason.
func (r Reason) Message() string {
	switch r {
	case NotAStudent:
		return "only students can check in"
	case NotEnrolled:
		return "you are not enrolled in this course"
	case OutsideWindow:
		return "check-in is not open at this time"
	case BadCode:
		return "invalid or missing check-in code"
	}
	return string(r)
}

// Decision is the result of evaluating a check-in attempt.
type Decision struct {
	Outcome Outcome   `json:"outcome"`
	Reason  Reason    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// Accepted reports whether the attempt may be recorded.
func (d Decision) Accepted() bool { return d.Outcome == Accepted }

// CheckinRequest carries everything the gate needs; the caller resolves
// student identity and enrollment beforehand.
type CheckinRequest struct {
	IsStudent bool
	Enrolled  bool
	Session   Session
	Code      string
	Now       time.Time
}

// Gate decides whether a student may self-record presence.
type Gate struct {
	loc *time.Location
}

// NewGate builds a gate that interprets session dates and times in loc.
func NewGate(loc *time.Location) *Gate {
	if loc == nil {
		loc = time.UTC
	}
	return &Gate{loc: loc}
}

// Evaluate applies the checks in order; the first failure decides.
func (g *Gate) Evaluate(req CheckinRequest) Decision {
	reject := func(r Reason) Decision { return Decision{Outcome: Rejected, Reason: r, At: req.Now} }

	if !req.IsStudent {
		return reject(NotAStudent)
	}
	if !req.Enrolled {
		return reject(NotEnrolled)
	}
	if !g.Open(req.Session, req.Now) {
		return reject(OutsideWindow)
	}
	if code := req.Session.CheckinCode; code != "" {
		if strings.TrimSpace(req.Code) != code {
			return reject(BadCode)
		}
	}
	return Decision{Outcome: Accepted, At: req.Now}
}

// Open reports whether now lies in [start, end] on the session date. A session
// missing either bound is always open.
func (g *Gate) Open(s Session, now time.Time) bool {
	if s.StartTime == nil || s.EndTime == nil {
		return true
	}
	start := s.StartTime.On(s.Date, g.loc)
	end := s.EndTime.On(s.Date, g.loc)
	return !now.Before(start) && !now.After(end)
}
