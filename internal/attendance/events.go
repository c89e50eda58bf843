package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckinEvent is the audit row kept for every accepted check-in.
type CheckinEvent struct {
	ID         string    `json:"id"`
	RecordID   string    `json:"record_id"`
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewCheckinEvent describes the check-in that produced rec. The id is fixed
// here so that redelivered messages insert at most once.
func NewCheckinEvent(rec Record) CheckinEvent {
	at := rec.UpdatedAt
	if rec.CheckinTime != nil {
		at = *rec.CheckinTime
	}
	return CheckinEvent{
		ID:         uuid.NewString(),
		RecordID:   rec.ID,
		SessionID:  rec.SessionID,
		StudentID:  rec.StudentID,
		OccurredAt: at.UTC(),
		Status:     "recorded",
	}
}

// EventStore persists the check-in audit trail.
type EventStore interface {
	// InsertCheckinEvent returns inserted=false when the event id already exists.
	InsertCheckinEvent(ctx context.Context, evt CheckinEvent) (CheckinEvent, bool, error)
	ListCheckinEvents(ctx context.Context, sessionID, studentID string, limit, offset int) ([]CheckinEvent, error)
}

var (
	_ EventStore = (*Repository)(nil)
	_ EventStore = (*MemoryStore)(nil)
)
