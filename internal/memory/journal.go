package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// TurnRecord is one journaled turn: the input sent to the model, its
// raw reply, and every command call the reply produced.
type TurnRecord struct {
	ID           string
	SessionID    string
	Conversation string
	Turn         int
	Input        string
	RawResponse  string
	UserMessage  string
	Errors       []string
	ReturnFlag   bool
	CreatedAt    time.Time
	Calls        []CallRecord
}

// CallRecord is one executed command within a turn.
type CallRecord struct {
	ID         string
	Index      int
	Command    string
	Parameters map[string]any
	Success    bool
	Message    string
	ErrorKind  string
	StartedAt  time.Time
	Duration   time.Duration
}

// CommandStat aggregates calls per command name.
type CommandStat struct {
	Command     string
	Calls       int
	Failures    int
	AvgDuration time.Duration
}

// Journal records turns and command calls in SQLite.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j, err := NewJournal(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// NewJournal creates a journal on an open database, creating the
// schema if needed.
func NewJournal(db *sql.DB) (*Journal, error) {
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		conversation TEXT NOT NULL,
		turn INTEGER NOT NULL,
		input TEXT NOT NULL,
		raw_response TEXT NOT NULL,
		user_message TEXT NOT NULL,
		errors TEXT,
		return_flag INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, turn);

	CREATE TABLE IF NOT EXISTS command_calls (
		id TEXT PRIMARY KEY,
		turn_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		command TEXT NOT NULL,
		parameters TEXT NOT NULL,
		success INTEGER NOT NULL,
		message TEXT NOT NULL,
		error_kind TEXT,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (turn_id) REFERENCES turns(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_command_calls_turn ON command_calls(turn_id, idx);
	CREATE INDEX IF NOT EXISTS idx_command_calls_command ON command_calls(command);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordTurn writes a turn and its calls in one transaction. Missing
// IDs and timestamps are filled in on rec.
func (j *Journal) RecordTurn(ctx context.Context, rec *TurnRecord) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate turn id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	errs, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, conversation, turn, input, raw_response, user_message, errors, return_flag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.Conversation, rec.Turn, rec.Input, rec.RawResponse,
		rec.UserMessage, string(errs), boolInt(rec.ReturnFlag), formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	for i := range rec.Calls {
		c := &rec.Calls[i]
		if c.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("generate call id: %w", err)
			}
			c.ID = id.String()
		}
		if c.StartedAt.IsZero() {
			c.StartedAt = rec.CreatedAt
		}
		params, err := json.Marshal(c.Parameters)
		if err != nil {
			return fmt.Errorf("encode parameters for %s: %w", c.Command, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO command_calls (id, turn_id, idx, command, parameters, success, message, error_kind, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, rec.ID, c.Index, c.Command, string(params), boolInt(c.Success), c.Message,
			c.ErrorKind, formatTime(c.StartedAt), c.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert call %d: %w", c.Index, err)
		}
	}

	return tx.Commit()
}

// RecentTurns returns up to limit of the latest turns for a session,
// oldest first, with their calls.
func (j *Journal) RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, conversation, turn, input, raw_response, user_message, errors, return_flag, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY turn DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}

	var turns []TurnRecord
	for rows.Next() {
		var (
			t       TurnRecord
			errs    sql.NullString
			ret     int
			created string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Conversation, &t.Turn, &t.Input,
			&t.RawResponse, &t.UserMessage, &errs, &ret, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if errs.Valid && errs.String != "" {
			_ = json.Unmarshal([]byte(errs.String), &t.Errors)
		}
		t.ReturnFlag = ret != 0
		t.CreatedAt = parseTime(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Calls are loaded after the turn cursor is closed so a
	// single-connection pool does not deadlock.
	for i := range turns {
		calls, err := j.calls(ctx, turns[i].ID)
		if err != nil {
			return nil, err
		}
		turns[i].Calls = calls
	}

	for l, r := 0, len(turns)-1; l < r; l, r = l+1, r-1 {
		turns[l], turns[r] = turns[r], turns[l]
	}
	return turns, nil
}

func (j *Journal) calls(ctx context.Context, turnID string) ([]CallRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, idx, command, parameters, success, message, error_kind, started_at, duration_ms
		FROM command_calls
		WHERE turn_id = ?
		ORDER BY idx ASC
	`, turnID)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []CallRecord
	for rows.Next() {
		var (
			c       CallRecord
			params  string
			success int
			kind    sql.NullString
			started string
			ms      int64
		)
		if err := rows.Scan(&c.ID, &c.Index, &c.Command, &params, &success,
			&c.Message, &kind, &started, &ms); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		_ = json.Unmarshal([]byte(params), &c.Parameters)
		c.Success = success != 0
		c.ErrorKind = kind.String
		c.StartedAt = parseTime(started)
		c.Duration = time.Duration(ms) * time.Millisecond
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// CommandStats returns call counts, failures and mean latency per
// command, ordered by command name.
func (j *Journal) CommandStats(ctx context.Context) ([]CommandStat, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT command, COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0), COALESCE(AVG(duration_ms), 0)
		FROM command_calls
		GROUP BY command
		ORDER BY command
	`)
	if err != nil {
		return nil, fmt.Errorf("query command stats: %w", err)
	}
	defer rows.Close()

	var stats []CommandStat
	for rows.Next() {
		var (
			s   CommandStat
			avg float64
		)
		if err := rows.Scan(&s.Command, &s.Calls, &s.Failures, &avg); err != nil {
			return nil, fmt.Errorf("scan command stat: %w", err)
		}
		s.AvgDuration = time.Duration(avg * float64(time.Millisecond))
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
