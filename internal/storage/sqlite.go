package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aina-notebook/internal/model"
	"aina-notebook/pkg/logger"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps history in a single-file database, one row per presentation.
type SQLiteStore struct {
	path     string
	db       *sql.DB
	mu       sync.Mutex
	seq      uint64
	notifier *notifier
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{
		path:     path,
		notifier: newNotifier(),
	}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: failed to create database directory: %v", ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", s.path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("%w: failed to open database: %v", ErrStorageInit, err)
	}
	// one writer keeps sequence numbers and rows in step
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: failed to ping database: %v", ErrStorageInit, err)
	}

	createTable := `
	CREATE TABLE IF NOT EXISTS presentations (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		style TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return fmt.Errorf("%w: failed to create presentations table: %v", ErrStorageInit, err)
	}

	s.db = db
	logger.Infof("SQLite storage initialized at %s", s.path)
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, p *model.Presentation) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO presentations (id, topic, style, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Topic, p.Style.Name, string(payload), time.Now().UTC(), time.Now().UTC())
	if err != nil {
		s.mu.Unlock()
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrPresentationExists
		}
		return fmt.Errorf("failed to insert presentation: %w", err)
	}
	return s.changed(ctx)
}

func (s *SQLiteStore) Update(ctx context.Context, p *model.Presentation) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	s.mu.Lock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE presentations SET topic = ?, style = ?, payload = ?, updated_at = ? WHERE id = ?`,
		p.Topic, p.Style.Name, string(payload), time.Now().UTC(), p.ID)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to update presentation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.mu.Unlock()
		return ErrPresentationNotFound
	}
	return s.changed(ctx)
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM presentations`); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to clear presentations: %w", err)
	}
	return s.changed(ctx)
}

// changed publishes the new history; it is entered with s.mu held and releases it.
func (s *SQLiteStore) changed(ctx context.Context) error {
	s.seq++
	seq := s.seq
	list, err := s.List(ctx)
	s.mu.Unlock()

	if err != nil {
		logger.Errorf("Failed to list presentations after change: %v", err)
		return nil
	}
	s.notifier.publish(seq, list)
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Presentation, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM presentations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPresentationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presentation: %w", err)
	}
	return decodePresentation([]byte(payload))
}

func (s *SQLiteStore) List(ctx context.Context) ([]*model.Presentation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM presentations ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list presentations: %w", err)
	}
	defer rows.Close()

	var list []*model.Presentation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		p, err := decodePresentation([]byte(payload))
		if err != nil {
			logger.Errorf("Skipping unreadable presentation row: %v", err)
			continue
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if list == nil {
		list = []*model.Presentation{}
	}
	return list, nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, fn Listener) (func(), error) {
	s.mu.Lock()
	seq := s.seq
	list, err := s.List(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return s.notifier.subscribe(ctx, seq, list, fn), nil
}

func (s *SQLiteStore) Close() error {
	s.notifier.reset()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func decodePresentation(data []byte) (*model.Presentation, error) {
	var p model.Presentation
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return &p, nil
}
