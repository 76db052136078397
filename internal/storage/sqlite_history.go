package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shhac/wirebench/internal/domain"
)

const historyDBFile = "history.db"

// SQLiteHistory implements HistoryStore on an SQLite database.
type SQLiteHistory struct {
	db         *sql.DB
	maxEntries int
	logger     *slog.Logger
}

// DefaultHistoryPath returns the history database location under basePath.
func DefaultHistoryPath(basePath string) string {
	return filepath.Join(basePath, historyDBFile)
}

// OpenSQLiteHistory opens (creating if needed) the history database at
// path. maxEntries below one uses the default cap.
func OpenSQLiteHistory(path string, maxEntries int, logger *slog.Logger) (*SQLiteHistory, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxEntries < 1 {
		maxEntries = DefaultMaxHistory
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to history database: %w", err)
	}

	h := &SQLiteHistory{db: db, maxEntries: maxEntries, logger: logger}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("opened history database", slog.String("path", path))
	return h, nil
}

func (h *SQLiteHistory) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp INTEGER NOT NULL,
		tab_id TEXT NOT NULL,
		protocol TEXT NOT NULL,
		method TEXT NOT NULL,
		target TEXT NOT NULL,
		request TEXT,
		response TEXT,
		status_code TEXT,
		duration_ns INTEGER NOT NULL,
		size INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		metadata TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_history_tab ON history(tab_id);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize history schema: %w", err)
	}
	return nil
}

// AddHistoryEntry inserts entry and trims the table to the cap.
func (h *SQLiteHistory) AddHistoryEntry(entry domain.HistoryEntry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	ctx := context.Background()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history (
			id, timestamp, tab_id, protocol, method, target, request, response,
			status_code, duration_ns, size, status, error, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UnixNano(),
		entry.TabID,
		entry.Protocol,
		entry.Method,
		entry.Target,
		entry.Request,
		entry.Response,
		entry.StatusCode,
		int64(entry.Duration),
		entry.Size,
		entry.Status,
		entry.Error,
		string(meta),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM history WHERE seq NOT IN (
			SELECT seq FROM history ORDER BY timestamp DESC, seq DESC LIMIT ?
		)`, h.maxEntries)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history entry: %w", err)
	}

	h.logger.Debug("saved history entry",
		slog.String("id", entry.ID),
		slog.String("protocol", entry.Protocol),
		slog.String("method", entry.Method))
	return nil
}

// GetHistory returns up to limit entries, newest first. A limit below
// one returns everything kept.
func (h *SQLiteHistory) GetHistory(limit int) ([]domain.HistoryEntry, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := h.db.Query(`
		SELECT id, timestamp, tab_id, protocol, method, target, request, response,
			status_code, duration_ns, size, status, error, metadata
		FROM history
		ORDER BY timestamp DESC, seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			e                                domain.HistoryEntry
			ts, duration                     int64
			request, response, code, errText sql.NullString
			meta                             string
		)
		if err := rows.Scan(&e.ID, &ts, &e.TabID, &e.Protocol, &e.Method, &e.Target,
			&request, &response, &code, &duration, &e.Size, &e.Status, &errText, &meta); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		e.Duration = time.Duration(duration)
		e.Request = request.String
		e.Response = response.String
		e.StatusCode = code.String
		e.Error = errText.String
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata of %s: %w", e.ID, err)
		}
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	h.logger.Debug("loaded history", slog.Int("count", len(history)))
	return history, nil
}

// ClearHistory removes every entry.
func (h *SQLiteHistory) ClearHistory() error {
	if _, err := h.db.Exec(`DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	h.logger.Debug("cleared history")
	return nil
}

// Close closes the database.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
