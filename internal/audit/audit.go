// Package audit turns check-in messages from the queue into the persistent
// check-in event trail.
package audit

import (
	"context"
	"fmt"
	"log"

	"uniattend/internal/attendance"
	"uniattend/internal/metrics"
	"uniattend/internal/queue"
)

// Publish enqueues the audit event for an accepted check-in.
func Publish(ctx context.Context, q queue.Queue, rec attendance.Record) (attendance.CheckinEvent, error) {
	evt := attendance.NewCheckinEvent(rec)
	msg, err := queue.NewMessage(queue.TypeCheckin, evt)
	if err != nil {
		return evt, err
	}
	return evt, q.Publish(ctx, msg)
}

// Handle stores a single message. Messages of other types are ignored.
func Handle(ctx context.Context, store attendance.EventStore, msg queue.Message) error {
	if msg.Type != queue.TypeCheckin {
		metrics.CheckinEventsProcessed.WithLabelValues("skipped").Inc()
		return nil
	}
	var evt attendance.CheckinEvent
	if err := msg.Decode(&evt); err != nil {
		metrics.CheckinEventsProcessed.WithLabelValues("malformed").Inc()
		return fmt.Errorf("decode checkin event: %w", err)
	}
	_, inserted, err := store.InsertCheckinEvent(ctx, evt)
	if err != nil {
		metrics.CheckinEventsProcessed.WithLabelValues("failed").Inc()
		return fmt.Errorf("store checkin event %s: %w", evt.ID, err)
	}
	if !inserted {
		metrics.CheckinEventsProcessed.WithLabelValues("duplicate").Inc()
		return nil
	}
	metrics.CheckinEventsProcessed.WithLabelValues("stored").Inc()
	return nil
}

// Run consumes q until ctx is done. Failures are logged and do not stop the loop.
func Run(ctx context.Context, q queue.Queue, store attendance.EventStore) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	for msg := range messages {
		if err := Handle(ctx, store, msg); err != nil {
			log.Printf("audit: %v", err)
		}
	}
	return nil
}
