// Package store persists the pipeline's three datasets — scraped profiles,
// judge pipeline state, and judge results — plus per-user raw artifacts.
// Two backends implement the same interface: flat JSON files (the default)
// and SQLite. Neither takes locks; the design assumes a single process owns
// the data at a time.
package store

import (
	"fmt"

	"github.com/wallofshame/gitranker/internal/toxicity"
	"github.com/wallofshame/gitranker/internal/types"
)

// Store is the pluggable persistence interface. Usernames are lowercased by
// implementations so lookups are case-insensitive.
type Store interface {
	// Profiles returns all scraped user records keyed by lowercased username.
	Profiles() (map[string]types.UserRecord, error)
	// Profile returns one record, reporting whether it exists.
	Profile(username string) (types.UserRecord, bool, error)
	// SaveProfile overwrites a user's record wholesale.
	SaveProfile(username string, rec types.UserRecord) error
	// DeleteProfile removes a user from the cache.
	DeleteProfile(username string) error

	// JudgeState returns the full per-user pipeline state map.
	JudgeState() (map[string]*types.JudgeUserState, error)
	// SaveJudgeState persists the full state map. Called after every unit of
	// work so a crash mid-pipeline loses at most one user's progress.
	SaveJudgeState(state map[string]*types.JudgeUserState) error

	// JudgeResults returns the parsed verdict per username.
	JudgeResults() (map[string]types.JudgeResult, error)
	// SaveJudgeResults persists the verdict map.
	SaveJudgeResults(results map[string]types.JudgeResult) error

	// SaveRawData writes per-user commit/README/worst-commit artifacts,
	// independent of the aggregate profile data.
	SaveRawData(username string, commits []string, readmes map[string]string, worst *toxicity.WorstItem) error
	// RawCommits loads a user's saved commit messages.
	RawCommits(username string) ([]string, error)
	// RawReadmes loads a user's saved README map (repo name -> content).
	RawReadmes(username string) (map[string]string, error)

	Close() error
}

// Open selects a backend by name: "file" (default) or "sqlite". The SQLite
// backend keeps raw artifacts in the database as well, so rawDir is unused
// there.
func Open(backend, dataDir, rawDir string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dataDir, rawDir)
	case "sqlite":
		return NewSQLiteStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
