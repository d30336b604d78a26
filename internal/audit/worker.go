package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// JournalStore persists consumed events.
type JournalStore interface {
	InsertAuditEvent(ctx context.Context, ev Event) (int64, error)
	CountAuditEvents(ctx context.Context) (int64, error)
}

// JournalWorker drains the audit queue into the journal table. It is
// the out-of-process consumer paired with AMQPSink.
type JournalWorker struct {
	journal JournalStore
}

func NewJournalWorker(journal JournalStore) *JournalWorker {
	return &JournalWorker{journal: journal}
}

// HandleEvent persists one consumed event. An error leaves the message
// unacked so the broker redelivers it.
func (w *JournalWorker) HandleEvent(ctx context.Context, ev Event) error {
	id, err := w.journal.InsertAuditEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("persist audit event: %w", err)
	}
	slog.InfoContext(ctx, "journaled audit event",
		"journal_id", id,
		"action", ev.Action,
		"entity_type", ev.EntityType,
		"entity_id", ev.EntityID,
		"dorm_id", ev.DormID)
	return nil
}

// StartupCheck logs the journal size so operators can spot a consumer
// that restarted against the wrong database.
func (w *JournalWorker) StartupCheck(ctx context.Context) error {
	n, err := w.journal.CountAuditEvents(ctx)
	if err != nil {
		return fmt.Errorf("count journaled events: %w", err)
	}
	slog.InfoContext(ctx, "audit journal ready", "journaled_events", n)
	return nil
}
