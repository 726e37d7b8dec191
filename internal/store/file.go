package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wallofshame/gitranker/internal/toxicity"
	"github.com/wallofshame/gitranker/internal/types"
)

// FileStore keeps each dataset in one flat JSON file under dataDir, with raw
// per-user artifacts under rawDir/<username>/. Every write is a full
// read-modify-write of the file, which is fine at wall-of-shame scale.
type FileStore struct {
	profilesPath string
	statePath    string
	resultsPath  string
	rawDir       string
}

// NewFileStore creates the file-backed store, ensuring both directories exist.
func NewFileStore(dataDir, rawDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raw data directory: %w", err)
	}

	return &FileStore{
		profilesPath: filepath.Join(dataDir, "precomputed.json"),
		statePath:    filepath.Join(dataDir, "judge_state.json"),
		resultsPath:  filepath.Join(dataDir, "judge_results.json"),
		rawDir:       rawDir,
	}, nil
}

func readJSONFile(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // absent file means empty dataset
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func writeJSONFile(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *FileStore) Profiles() (map[string]types.UserRecord, error) {
	profiles := map[string]types.UserRecord{}
	if err := readJSONFile(s.profilesPath, &profiles); err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	return profiles, nil
}

func (s *FileStore) Profile(username string) (types.UserRecord, bool, error) {
	profiles, err := s.Profiles()
	if err != nil {
		return types.UserRecord{}, false, err
	}
	rec, ok := profiles[strings.ToLower(username)]
	return rec, ok, nil
}

func (s *FileStore) SaveProfile(username string, rec types.UserRecord) error {
	profiles, err := s.Profiles()
	if err != nil {
		return err
	}
	profiles[strings.ToLower(username)] = rec
	return writeJSONFile(s.profilesPath, profiles)
}

func (s *FileStore) DeleteProfile(username string) error {
	profiles, err := s.Profiles()
	if err != nil {
		return err
	}
	delete(profiles, strings.ToLower(username))
	return writeJSONFile(s.profilesPath, profiles)
}

func (s *FileStore) JudgeState() (map[string]*types.JudgeUserState, error) {
	state := map[string]*types.JudgeUserState{}
	if err := readJSONFile(s.statePath, &state); err != nil {
		return nil, fmt.Errorf("failed to load judge state: %w", err)
	}
	return state, nil
}

func (s *FileStore) SaveJudgeState(state map[string]*types.JudgeUserState) error {
	return writeJSONFile(s.statePath, state)
}

func (s *FileStore) JudgeResults() (map[string]types.JudgeResult, error) {
	results := map[string]types.JudgeResult{}
	if err := readJSONFile(s.resultsPath, &results); err != nil {
		return nil, fmt.Errorf("failed to load judge results: %w", err)
	}
	return results, nil
}

func (s *FileStore) SaveJudgeResults(results map[string]types.JudgeResult) error {
	return writeJSONFile(s.resultsPath, results)
}

func (s *FileStore) userDir(username string) string {
	return filepath.Join(s.rawDir, strings.ToLower(username))
}

func (s *FileStore) SaveRawData(username string, commits []string, readmes map[string]string, worst *toxicity.WorstItem) error {
	dir := s.userDir(username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create user directory: %w", err)
	}

	if commits == nil {
		commits = []string{}
	}
	if err := writeJSONFile(filepath.Join(dir, "commits.json"), commits); err != nil {
		return err
	}

	if readmes == nil {
		readmes = map[string]string{}
	}
	if err := writeJSONFile(filepath.Join(dir, "readmes.json"), readmes); err != nil {
		return err
	}

	if worst != nil {
		if err := writeJSONFile(filepath.Join(dir, "worst_commit.json"), worst); err != nil {
			return err
		}
	}

	return nil
}

func (s *FileStore) RawCommits(username string) ([]string, error) {
	var commits []string
	if err := readJSONFile(filepath.Join(s.userDir(username), "commits.json"), &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func (s *FileStore) RawReadmes(username string) (map[string]string, error) {
	readmes := map[string]string{}
	if err := readJSONFile(filepath.Join(s.userDir(username), "readmes.json"), &readmes); err != nil {
		return nil, err
	}
	return readmes, nil
}

func (s *FileStore) Close() error {
	return nil
}
