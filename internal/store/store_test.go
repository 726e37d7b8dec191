package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallofshame/gitranker/internal/toxicity"
	"github.com/wallofshame/gitranker/internal/types"
)

func testBackends(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()
	fileStore, err := NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "raw"))
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestProfileRoundTrip(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			rec := types.UserRecord{
				Stars:           42,
				CommitsLastYear: 100,
				EmojiScore:      7,
				TopRepos:        []string{"alice/cool-repo"},
				Name:            "Alice",
				ScrapedAt:       "2025-01-01T00:00:00Z",
			}
			require.NoError(t, s.SaveProfile("Alice", rec))

			// Lookups are case-insensitive.
			got, ok, err := s.Profile("ALICE")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, rec, got)

			profiles, err := s.Profiles()
			require.NoError(t, err)
			require.Len(t, profiles, 1)
			_, keyed := profiles["alice"]
			assert.True(t, keyed, "profiles must be keyed by lowercased username")

			require.NoError(t, s.DeleteProfile("alice"))
			_, ok, err = s.Profile("alice")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestProfileMissing(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Profile("nobody")
			require.NoError(t, err)
			assert.False(t, ok)

			profiles, err := s.Profiles()
			require.NoError(t, err)
			assert.Empty(t, profiles)
		})
	}
}

func TestJudgeStateRoundTrip(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			state := map[string]*types.JudgeUserState{
				"bob": {
					ForkName:      "judge/cool-repo",
					RepoName:      "bob/cool-repo",
					PRNumber:      3,
					DefaultBranch: "main",
				},
			}
			require.NoError(t, s.SaveJudgeState(state))

			got, err := s.JudgeState()
			require.NoError(t, err)
			require.Contains(t, got, "bob")
			assert.Equal(t, 3, got["bob"].PRNumber)
			assert.Equal(t, "pr_open", got["bob"].Phase())
		})
	}
}

func TestJudgeResultsRoundTrip(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			results := map[string]types.JudgeResult{
				"carol": {QualityGrade: "C-", Verdict: "Mediocre at best.", CodeRabbitBadge: "Novel Writer"},
			}
			require.NoError(t, s.SaveJudgeResults(results))

			got, err := s.JudgeResults()
			require.NoError(t, err)
			assert.Equal(t, results, got)
		})
	}
}

func TestRawDataRoundTrip(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			commits := []string{"fix stuff", "wtf is this"}
			readmes := map[string]string{"cool-repo": "# Cool\n"}
			worst := &toxicity.WorstItem{
				Message: "wtf is this",
				Axis:    "obscene",
				Score:   0.9,
			}
			require.NoError(t, s.SaveRawData("Dave", commits, readmes, worst))

			gotCommits, err := s.RawCommits("dave")
			require.NoError(t, err)
			assert.Equal(t, commits, gotCommits)

			gotReadmes, err := s.RawReadmes("DAVE")
			require.NoError(t, err)
			assert.Equal(t, readmes, gotReadmes)
		})
	}
}

func TestRawDataNilSlices(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveRawData("empty", nil, nil, nil))

			commits, err := s.RawCommits("empty")
			require.NoError(t, err)
			assert.Empty(t, commits)

			readmes, err := s.RawReadmes("empty")
			require.NoError(t, err)
			assert.Empty(t, readmes)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("cassandra", t.TempDir(), t.TempDir())
	assert.Error(t, err)
}
