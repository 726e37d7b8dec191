package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wallofshame/gitranker/internal/toxicity"
	"github.com/wallofshame/gitranker/internal/types"
)

// SQLiteStore persists the same datasets as FileStore in a single SQLite
// database. Records are stored as JSON blobs keyed by lowercased username;
// the relational layer buys durable single-file storage and upserts, not
// queryability.
type SQLiteStore struct {
	db       *sql.DB
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// NewSQLiteStore opens (or creates) wallofshame.db under dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "wallofshame.db")
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // sqlite writer; the pipeline is single-process anyway
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &SQLiteStore{
		db:       db,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := store.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("SQLite store initialized", "path", dbPath)
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			username TEXT PRIMARY KEY,
			record TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS judge_state (
			username TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS judge_results (
			username TEXT PRIMARY KEY,
			result TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS raw_data (
			username TEXT NOT NULL,
			kind TEXT NOT NULL, -- 'commits', 'readmes', 'worst_commit'
			payload TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (username, kind)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_profiles_updated ON profiles(updated_at DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) initPreparedStatements() error {
	statements := map[string]string{
		"upsert_profile": `INSERT INTO profiles (username, record, updated_at)
			VALUES (?, ?, ?) ON CONFLICT(username) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at`,

		"get_profile": `SELECT record FROM profiles WHERE username = ?`,

		"delete_profile": `DELETE FROM profiles WHERE username = ?`,

		"upsert_judge_state": `INSERT INTO judge_state (username, state, updated_at)
			VALUES (?, ?, ?) ON CONFLICT(username) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at`,

		"upsert_judge_result": `INSERT INTO judge_results (username, result, updated_at)
			VALUES (?, ?, ?) ON CONFLICT(username) DO UPDATE SET
			result = excluded.result,
			updated_at = excluded.updated_at`,

		"upsert_raw": `INSERT INTO raw_data (username, kind, payload, updated_at)
			VALUES (?, ?, ?, ?) ON CONFLICT(username, kind) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,

		"get_raw": `SELECT payload FROM raw_data WHERE username = ? AND kind = ?`,
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for name, query := range statements {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		s.prepared[name] = stmt
	}
	return nil
}

func (s *SQLiteStore) stmt(name string) (*sql.Stmt, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stmt, exists := s.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return stmt, nil
}

func (s *SQLiteStore) Profiles() (map[string]types.UserRecord, error) {
	rows, err := s.db.Query(`SELECT username, record FROM profiles`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := map[string]types.UserRecord{}
	for rows.Next() {
		var username, record string
		if err := rows.Scan(&username, &record); err != nil {
			return nil, err
		}
		var rec types.UserRecord
		if err := json.Unmarshal([]byte(record), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode profile %s: %w", username, err)
		}
		profiles[username] = rec
	}
	return profiles, rows.Err()
}

func (s *SQLiteStore) Profile(username string) (types.UserRecord, bool, error) {
	stmt, err := s.stmt("get_profile")
	if err != nil {
		return types.UserRecord{}, false, err
	}

	var record string
	err = stmt.QueryRow(strings.ToLower(username)).Scan(&record)
	if err == sql.ErrNoRows {
		return types.UserRecord{}, false, nil
	}
	if err != nil {
		return types.UserRecord{}, false, err
	}

	var rec types.UserRecord
	if err := json.Unmarshal([]byte(record), &rec); err != nil {
		return types.UserRecord{}, false, fmt.Errorf("failed to decode profile: %w", err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) SaveProfile(username string, rec types.UserRecord) error {
	stmt, err := s.stmt("upsert_profile")
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(strings.ToLower(username), string(data), time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteProfile(username string) error {
	stmt, err := s.stmt("delete_profile")
	if err != nil {
		return err
	}
	_, err = stmt.Exec(strings.ToLower(username))
	return err
}

func (s *SQLiteStore) JudgeState() (map[string]*types.JudgeUserState, error) {
	rows, err := s.db.Query(`SELECT username, state FROM judge_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query judge state: %w", err)
	}
	defer rows.Close()

	state := map[string]*types.JudgeUserState{}
	for rows.Next() {
		var username, raw string
		if err := rows.Scan(&username, &raw); err != nil {
			return nil, err
		}
		var st types.JudgeUserState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("failed to decode judge state %s: %w", username, err)
		}
		state[username] = &st
	}
	return state, rows.Err()
}

func (s *SQLiteStore) SaveJudgeState(state map[string]*types.JudgeUserState) error {
	stmt, err := s.stmt("upsert_judge_state")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for username, st := range state {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(strings.ToLower(username), string(data), now); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) JudgeResults() (map[string]types.JudgeResult, error) {
	rows, err := s.db.Query(`SELECT username, result FROM judge_results`)
	if err != nil {
		return nil, fmt.Errorf("failed to query judge results: %w", err)
	}
	defer rows.Close()

	results := map[string]types.JudgeResult{}
	for rows.Next() {
		var username, raw string
		if err := rows.Scan(&username, &raw); err != nil {
			return nil, err
		}
		var res types.JudgeResult
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("failed to decode judge result %s: %w", username, err)
		}
		results[username] = res
	}
	return results, rows.Err()
}

func (s *SQLiteStore) SaveJudgeResults(results map[string]types.JudgeResult) error {
	stmt, err := s.stmt("upsert_judge_result")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for username, res := range results {
		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(strings.ToLower(username), string(data), now); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) saveRaw(username, kind string, value interface{}) error {
	stmt, err := s.stmt("upsert_raw")
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(strings.ToLower(username), kind, string(data), time.Now().UTC())
	return err
}

func (s *SQLiteStore) loadRaw(username, kind string, target interface{}) error {
	stmt, err := s.stmt("get_raw")
	if err != nil {
		return err
	}
	var payload string
	err = stmt.QueryRow(strings.ToLower(username), kind).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), target)
}

func (s *SQLiteStore) SaveRawData(username string, commits []string, readmes map[string]string, worst *toxicity.WorstItem) error {
	if commits == nil {
		commits = []string{}
	}
	if err := s.saveRaw(username, "commits", commits); err != nil {
		return err
	}
	if readmes == nil {
		readmes = map[string]string{}
	}
	if err := s.saveRaw(username, "readmes", readmes); err != nil {
		return err
	}
	if worst != nil {
		if err := s.saveRaw(username, "worst_commit", worst); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) RawCommits(username string) ([]string, error) {
	var commits []string
	if err := s.loadRaw(username, "commits", &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func (s *SQLiteStore) RawReadmes(username string) (map[string]string, error) {
	readmes := map[string]string{}
	if err := s.loadRaw(username, "readmes", &readmes); err != nil {
		return nil, err
	}
	return readmes, nil
}

// Close closes prepared statements and the underlying connection.
func (s *SQLiteStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for name, stmt := range s.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	s.prepared = make(map[string]*sql.Stmt)

	return s.db.Close()
}
