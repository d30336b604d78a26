package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"dormy/internal/audit"
)

// InsertAuditEvent appends one consumed event to the journal.
func (r *Repository) InsertAuditEvent(ctx context.Context, ev audit.Event) (int64, error) {
	metadata := "{}"
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = string(raw)
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_events (dorm_id, actor_id, action, entity_type, entity_id, metadata, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.DormID, ev.ActorID, ev.Action, ev.EntityType, ev.EntityID, metadata, encodeTime(ev.OccurredAt))
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("audit event id: %w", err)
	}
	return id, nil
}

func (r *Repository) CountAuditEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// RecentAuditEvents returns the newest journal rows for a dorm, newest
// first.
func (r *Repository) RecentAuditEvents(ctx context.Context, dormID int64, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT dorm_id, actor_id, action, entity_type, entity_id, metadata, occurred_at
		FROM audit_events
		WHERE dorm_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, dormID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev       audit.Event
			metadata string
			occurred string
		)
		if err := rows.Scan(&ev.DormID, &ev.ActorID, &ev.Action, &ev.EntityType, &ev.EntityID, &metadata, &occurred); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		ev.OccurredAt, err = decodeTime(occurred)
		if err != nil {
			return nil, fmt.Errorf("decode audit timestamp: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
