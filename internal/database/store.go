package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// Store persists sessions and their messages in SQLite. All writes funnel
// through a single goroutine; SQLite allows concurrent reads under WAL but
// serializing writes avoids busy errors under load.
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens (or creates) the database at path and applies the schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			op.result <- op.operation(s.db)
		case <-s.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("session store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-s.shutdown:
		return fmt.Errorf("session store is shutting down")
	}
}

// Save upserts the session row and inserts any messages not yet stored, in
// one transaction. The message sequence is append-only: existing rows are
// never rewritten.
func (s *Store) Save(ctx context.Context, session *types.Session) error {
	return s.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		query := `
			INSERT INTO sessions (id, student_id, volunteer_id, type, sub_topic, whiteboard_url, created_at, ended_at, volunteer_joined_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				student_id = excluded.student_id,
				volunteer_id = excluded.volunteer_id,
				whiteboard_url = excluded.whiteboard_url,
				ended_at = excluded.ended_at,
				volunteer_joined_at = excluded.volunteer_joined_at
		`
		_, err = tx.ExecContext(ctx, query,
			session.ID,
			session.StudentID,
			nullString(session.VolunteerID),
			session.Type,
			session.SubTopic,
			session.WhiteboardURL,
			session.CreatedAt,
			nullTime(session.EndedAt),
			nullTime(session.VolunteerJoinedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}

		for _, message := range session.Messages {
			_, err = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO messages (id, session_id, author_id, contents, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, message.ID, session.ID, message.AuthorID, message.Contents, message.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session save: %w", err)
		}
		return nil
	})
}

// Find loads a session and its full message history.
func (s *Store) Find(ctx context.Context, sessionID string) (*types.Session, error) {
	query := `
		SELECT id, student_id, volunteer_id, type, sub_topic, whiteboard_url, created_at, ended_at, volunteer_joined_at
		FROM sessions
		WHERE id = ?
	`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		return nil, err
	}

	if err := s.loadMessages(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// FindCurrent returns the latest un-ended session where the user holds the
// given role's participant slot.
func (s *Store) FindCurrent(ctx context.Context, userID, role string) (*types.Session, error) {
	column := "student_id"
	if role == types.RoleVolunteer {
		column = "volunteer_id"
	}

	query := fmt.Sprintf(`
		SELECT id, student_id, volunteer_id, type, sub_topic, whiteboard_url, created_at, ended_at, volunteer_joined_at
		FROM sessions
		WHERE ended_at IS NULL AND %s = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, column)

	session, err := scanSession(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, err
	}

	if err := s.loadMessages(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) loadMessages(ctx context.Context, session *types.Session) error {
	// rowid order is insertion order; timestamps can tie within a burst.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author_id, contents, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY rowid ASC
	`, session.ID)
	if err != nil {
		return fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var message types.Message
		if err := rows.Scan(&message.ID, &message.AuthorID, &message.Contents, &message.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan message row: %w", err)
		}
		session.Messages = append(session.Messages, message)
	}
	return rows.Err()
}

// HealthCheck validates database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.QueryContext(ctx, "SELECT COUNT(*) FROM sessions LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the write loop and the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var volunteerID sql.NullString
	var endedAt, volunteerJoinedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.StudentID,
		&volunteerID,
		&session.Type,
		&session.SubTopic,
		&session.WhiteboardURL,
		&session.CreatedAt,
		&endedAt,
		&volunteerJoinedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if volunteerID.Valid {
		session.VolunteerID = volunteerID.String
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	if volunteerJoinedAt.Valid {
		session.VolunteerJoinedAt = &volunteerJoinedAt.Time
	}
	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
