package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "facegate-worker-go/internal/db"
	"facegate-worker-go/internal/directory"
	"facegate-worker-go/internal/models"
)

// DirectoryStore serves the directory from SQLite. Reads go straight to the
// pool; writes go through the single writer.
type DirectoryStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDirectoryStore(db *sql.DB, writer *dbpkg.Worker) *DirectoryStore {
	return &DirectoryStore{db: db, writer: writer}
}

func (s *DirectoryStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, display_name, department, embedding
FROM identities
ORDER BY position, id;
`)
	if err != nil {
		return nil, fmt.Errorf("ListIdentities query: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var id models.Identity
		var blob []byte
		if err := rows.Scan(&id.ID, &id.DisplayName, &id.Department, &blob); err != nil {
			return nil, fmt.Errorf("ListIdentities scan: %w", err)
		}
		if id.Embedding, err = decodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("identity %s: %w", id.ID, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *DirectoryStore) RoomBoundTo(ctx context.Context, cameraAddress string) (string, bool, error) {
	var roomID sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT room_id FROM cameras WHERE address = ?;
`, cameraAddress).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("RoomBoundTo: %w", err)
	}
	if !roomID.Valid || roomID.String == "" {
		return "", false, nil
	}
	return roomID.String, true, nil
}

func (s *DirectoryStore) RulesFor(ctx context.Context, roomID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT department FROM access_rules WHERE room_id = ?;
`, roomID)
	if err != nil {
		return nil, fmt.Errorf("RulesFor query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var dept string
		if err := rows.Scan(&dept); err != nil {
			return nil, fmt.Errorf("RulesFor scan: %w", err)
		}
		out[dept] = struct{}{}
	}
	return out, rows.Err()
}

func (s *DirectoryStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM rooms ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("ListRooms query: %w", err)
	}
	defer rows.Close()

	var out []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("ListRooms scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DirectoryStore) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, room_id FROM cameras ORDER BY address;`)
	if err != nil {
		return nil, fmt.Errorf("ListCameras query: %w", err)
	}
	defer rows.Close()

	var out []models.Camera
	for rows.Next() {
		var c models.Camera
		var roomID sql.NullString
		if err := rows.Scan(&c.Address, &roomID); err != nil {
			return nil, fmt.Errorf("ListCameras scan: %w", err)
		}
		if roomID.Valid && roomID.String != "" {
			id := roomID.String
			c.RoomID = &id
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceAll swaps the whole directory in one transaction. Identity order
// is preserved as gallery order.
func (s *DirectoryStore) ReplaceAll(ctx context.Context, snap directory.Snapshot) error {
	now := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM access_rules;`,
			`DELETE FROM cameras;`,
			`DELETE FROM identities;`,
			`DELETE FROM rooms;`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("ReplaceAll clear: %w", err)
			}
		}

		for _, r := range snap.Rooms {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO rooms(id, name) VALUES (?, ?);
`, r.ID, r.Name); err != nil {
				return fmt.Errorf("ReplaceAll room %s: %w", r.ID, err)
			}
		}

		for i, id := range snap.Identities {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO identities(id, display_name, department, embedding, position, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, id.ID, id.DisplayName, id.Department, encodeEmbedding(id.Embedding), i, now); err != nil {
				return fmt.Errorf("ReplaceAll identity %s: %w", id.ID, err)
			}
		}

		for _, c := range snap.Cameras {
			var roomID any
			if c.RoomID != nil {
				roomID = *c.RoomID
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO cameras(address, room_id) VALUES (?, ?)
ON CONFLICT(address) DO UPDATE SET room_id = excluded.room_id;
`, c.Address, roomID); err != nil {
				return fmt.Errorf("ReplaceAll camera %s: %w", c.Address, err)
			}
		}

		for _, rule := range snap.Rules {
			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO access_rules(department, room_id) VALUES (?, ?);
`, rule.Department, rule.RoomID); err != nil {
				return fmt.Errorf("ReplaceAll rule %s/%s: %w", rule.Department, rule.RoomID, err)
			}
		}
		return nil
	})
}
