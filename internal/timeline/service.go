package timeline

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &TimelineService{db: db}, nil
}

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// AddEvent records evt, filling EventID and Timestamp when empty.
func (s *TimelineService) AddEvent(evt *TimelineEvent) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Kind == "" {
		evt.Kind = KindInfo
	}
	res, err := s.db.Exec(`
	INSERT INTO timeline (event_id, timestamp, kind, message, source, conn_id)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		evt.EventID,
		evt.Timestamp.UTC(),
		evt.Kind,
		evt.Message,
		evt.Source,
		evt.ConnID,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		evt.ID = id
	}
	return nil
}

type FilterArgs struct {
	Kind   string
	Since  *time.Time
	Limit  int
	Offset int
}

// GetEvents returns matching events, newest first.
func (s *TimelineService) GetEvents(filter FilterArgs) ([]TimelineEvent, error) {
	query := `SELECT id, event_id, timestamp, kind, message, source, conn_id FROM timeline WHERE 1=1`
	args := []interface{}{}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []TimelineEvent
	for rows.Next() {
		var e TimelineEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.Timestamp, &e.Kind, &e.Message, &e.Source, &e.ConnID); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recent returns the last limit events in chronological order.
func (s *TimelineService) Recent(limit int) ([]TimelineEvent, error) {
	events, err := s.GetEvents(FilterArgs{Limit: limit})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Prune deletes events older than before and reports how many were removed.
func (s *TimelineService) Prune(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM timeline WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetSetting returns a setting value by key.
func (s *TimelineService) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetSetting persists a setting value.
func (s *TimelineService) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}
