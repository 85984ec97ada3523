package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "facegate-worker-go/internal/db"
	"facegate-worker-go/internal/models"
)

// AccessEventStore is the audit log of access decisions
type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

func (s *AccessEventStore) RecordEvent(ctx context.Context, ev models.DetectionEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  id, ts_ms, stream_id, camera_address, location, room_id, identity_id,
  display_name, department, decision, reason, message, evidence_path
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			ev.ID, ev.Timestamp.UTC().UnixMilli(), ev.StreamID, ev.CameraAddress, ev.Location,
			ev.RoomID, ev.IdentityID, ev.DisplayName, ev.Department,
			string(ev.Decision), ev.Reason, ev.Message, ev.EvidencePath,
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

// RecentEvents returns up to limit events, newest first
func (s *AccessEventStore) RecentEvents(ctx context.Context, limit int) ([]models.DetectionEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, ts_ms, stream_id, camera_address, location, room_id, identity_id,
       display_name, department, decision, reason, message, evidence_path
FROM access_events
ORDER BY ts_ms DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentEvents query: %w", err)
	}
	defer rows.Close()

	var out []models.DetectionEvent
	for rows.Next() {
		var ev models.DetectionEvent
		var tsMs int64
		var decision string
		if err := rows.Scan(
			&ev.ID, &tsMs, &ev.StreamID, &ev.CameraAddress, &ev.Location, &ev.RoomID, &ev.IdentityID,
			&ev.DisplayName, &ev.Department, &decision, &ev.Reason, &ev.Message, &ev.EvidencePath,
		); err != nil {
			return nil, fmt.Errorf("RecentEvents scan: %w", err)
		}
		ev.Timestamp = time.UnixMilli(tsMs)
		ev.Decision = models.Decision(decision)
		out = append(out, ev)
	}
	return out, rows.Err()
}
