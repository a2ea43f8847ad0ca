// Package archive persists decided plans and their execution results to SQLite
// so the operator keeps an audit trail across restarts.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rooney011/CodeWeaver/internal/remediation"
	_ "modernc.org/sqlite"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Entry is one archived decision.
type Entry struct {
	EventID    string                       `json:"event_id"`
	Plan       remediation.Plan             `json:"plan"`
	Result     *remediation.ExecutionResult `json:"result,omitempty"`
	RecordedAt time.Time                    `json:"recorded_at"`
}

// Archive stores terminal plans in a SQLite database.
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the archive database at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	a := &Archive{db: db, now: time.Now}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		event_id       TEXT PRIMARY KEY,
		plan_id        TEXT NOT NULL,
		action         TEXT NOT NULL,
		status         TEXT NOT NULL,
		decided_by     TEXT NOT NULL DEFAULT '',
		result_status  TEXT NOT NULL DEFAULT '',
		backup_path    TEXT NOT NULL DEFAULT '',
		plan_json      TEXT NOT NULL,
		result_json    TEXT,
		recorded_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_plan_id ON decisions(plan_id);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("init archive schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (a *Archive) Ping() error {
	return a.db.Ping()
}

// Close closes the database.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Record archives a terminal plan with its execution result, if any.
func (a *Archive) Record(ctx context.Context, plan remediation.Plan, result *remediation.ExecutionResult) (Entry, error) {
	if !plan.Status.Terminal() {
		return Entry{}, fmt.Errorf("archive plan %s: status %s is not terminal", plan.ID, plan.Status)
	}

	now := a.now().UTC()
	entry := Entry{
		EventID:    ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Plan:       plan,
		Result:     result,
		RecordedAt: now,
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return Entry{}, fmt.Errorf("encode plan %s: %w", plan.ID, err)
	}
	var resultJSON sql.NullString
	var resultStatus, backupPath string
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return Entry{}, fmt.Errorf("encode result for %s: %w", plan.ID, err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
		resultStatus = string(result.Status)
		backupPath = result.BackupPath
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO decisions (
			event_id, plan_id, action, status, decided_by,
			result_status, backup_path, plan_json, result_json, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EventID, plan.ID, string(plan.Action.Type), string(plan.Status), plan.DecidedBy,
		resultStatus, backupPath, string(planJSON), resultJSON, now.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("archive plan %s: %w", plan.ID, err)
	}
	return entry, nil
}

// List returns the most recent entries, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT event_id, plan_json, result_json, recorded_at
		FROM decisions
		ORDER BY event_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			planJSON   string
			resultJSON sql.NullString
			recordedAt int64
		)
		if err := rows.Scan(&e.EventID, &planJSON, &resultJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		if err := json.Unmarshal([]byte(planJSON), &e.Plan); err != nil {
			return nil, fmt.Errorf("decode archived plan %s: %w", e.EventID, err)
		}
		if resultJSON.Valid {
			var r remediation.ExecutionResult
			if err := json.Unmarshal([]byte(resultJSON.String), &r); err != nil {
				return nil, fmt.Errorf("decode archived result %s: %w", e.EventID, err)
			}
			e.Result = &r
		}
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
