package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tmxfleet/alert-relay/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alert_events (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			acknowledged_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_alert_events_device_id ON alert_events(device_id);
		CREATE INDEX IF NOT EXISTS idx_alert_events_created_at ON alert_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_alert_events_acknowledged ON alert_events(acknowledged);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Insert(ctx context.Context, ev *models.AlertEvent) error {
	var metadata []byte
	if ev.Metadata != nil {
		var err error
		metadata, err = json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("error marshaling metadata for %s: %w", ev.ID, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_events
			(id, device_id, event_type, severity, title, message, metadata, created_at, acknowledged, acknowledged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.DeviceID, ev.EventType, string(ev.Severity), ev.Title, ev.Message,
		nullableString(metadata), ev.CreatedAt, ev.Acknowledged, ev.AcknowledgedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.AlertEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, event_type, severity, title, message, metadata, created_at, acknowledged, acknowledged_at
		FROM alert_events WHERE id = ?`, id)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying event %s: %w", id, err)
	}
	return ev, nil
}

func (s *SQLiteDB) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM alert_events WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking existence of %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteDB) List(ctx context.Context, opts Filter) ([]models.AlertEvent, error) {
	query := `
		SELECT id, device_id, event_type, severity, title, message, metadata, created_at, acknowledged, acknowledged_at
		FROM alert_events WHERE 1=1`
	var args []any

	if len(opts.DeviceIDs) > 0 {
		query += fmt.Sprintf(" AND device_id IN (%s)", placeholders(len(opts.DeviceIDs)))
		for _, id := range opts.DeviceIDs {
			args = append(args, id)
		}
	}
	if opts.MinSeverity != nil {
		allowed := models.SeveritiesAtLeast(*opts.MinSeverity)
		query += fmt.Sprintf(" AND severity IN (%s)", placeholders(len(allowed)))
		for _, sev := range allowed {
			args = append(args, string(sev))
		}
	}
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, *opts.Since)
	}
	if opts.Unacknowledged {
		query += " AND acknowledged = 0"
	}

	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing events: %w", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (s *SQLiteDB) MarkAcknowledged(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_events SET acknowledged = 1, acknowledged_at = ? WHERE id = ?`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("error acknowledging event %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.AlertEvent, error) {
	var (
		ev       models.AlertEvent
		severity string
		message  sql.NullString
		metadata sql.NullString
		ackedAt  sql.NullTime
	)

	err := row.Scan(&ev.ID, &ev.DeviceID, &ev.EventType, &severity, &ev.Title,
		&message, &metadata, &ev.CreatedAt, &ev.Acknowledged, &ackedAt)
	if err != nil {
		return nil, err
	}

	ev.Severity = models.Severity(severity)
	ev.Message = message.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("error unmarshaling metadata for %s: %w", ev.ID, err)
		}
	}
	if ackedAt.Valid {
		t := ackedAt.Time
		ev.AcknowledgedAt = &t
	}
	return &ev, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
