package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallofshame/gitranker/internal/store"
	"github.com/wallofshame/gitranker/internal/types"
)

func result(grade string) types.JudgeResult {
	return types.JudgeResult{QualityGrade: grade, Verdict: "v", CodeRabbitBadge: "b"}
}

func TestCurveGrades(t *testing.T) {
	results := map[string]types.JudgeResult{
		"worst":   result("F"),
		"middle":  result("C"),
		"best":    result("B"),
		"waiting": result("Pending"),
	}

	curved := CurveGrades(results)

	// Three graded users land at percentiles 0, 50, 100.
	assert.Equal(t, "F", curved["worst"].QualityGrade)
	assert.Equal(t, "C", curved["middle"].QualityGrade)
	assert.Equal(t, "A", curved["best"].QualityGrade)
	// Placeholders pass through untouched.
	assert.Equal(t, "Pending", curved["waiting"].QualityGrade)
	// Other fields survive the re-grade.
	assert.Equal(t, "v", curved["best"].Verdict)
}

func TestCurveGradesSingleUser(t *testing.T) {
	curved := CurveGrades(map[string]types.JudgeResult{"only": result("A+")})
	assert.Equal(t, "F", curved["only"].QualityGrade)
}

func TestCurveGradesAllPending(t *testing.T) {
	results := map[string]types.JudgeResult{"a": result("Pending"), "b": result("Error")}
	curved := CurveGrades(results)
	assert.Equal(t, results, curved)
}

func TestParseRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usernames.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"# hackathon roster",
		"alice",
		"judge: torvalds",
		"org:admin",
		"",
		"ALICE",
		"bob",
	}, "\n")), 0o644))

	roster, err := ParseRoster(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "torvalds", "admin", "bob"}, roster.Usernames)
	assert.Equal(t, "participant", roster.Role("alice"))
	assert.Equal(t, "judge", roster.Role("Torvalds"))
	assert.Equal(t, "organizer", roster.Role("admin"))
	assert.Equal(t, "participant", roster.Role("unlisted"))
}

func TestParseRosterMissingFile(t *testing.T) {
	roster, err := ParseRoster(filepath.Join(t.TempDir(), "nope.txt"))
	require.NoError(t, err)
	assert.Empty(t, roster.Usernames)
	assert.Equal(t, "participant", roster.Role("anyone"))
}

func TestSusPercentiles(t *testing.T) {
	percentiles := SusPercentiles(map[string]types.UserRecord{
		"calm":   {EmojiScore: 0},
		"middle": {EmojiScore: 5},
		"sus":    {EmojiScore: 40},
	})

	assert.Equal(t, 0, percentiles["calm"])
	assert.Equal(t, 50, percentiles["middle"])
	assert.Equal(t, 100, percentiles["sus"])
}

func TestSusPercentilesSingleUser(t *testing.T) {
	percentiles := SusPercentiles(map[string]types.UserRecord{"solo": {EmojiScore: 9}})
	assert.Equal(t, 0, percentiles["solo"])
}

func TestComputeBadges(t *testing.T) {
	badgeRow := strings.Repeat("![build](https://img.shields.io/x) ", 5)

	tests := []struct {
		name    string
		readmes map[string]string
		topRepo string
		want    []string
	}{
		{
			name:    "no readmes at all",
			readmes: map[string]string{},
			topRepo: "repo",
			want:    []string{"Empty README Enthusiast"},
		},
		{
			name:    "short readme",
			readmes: map[string]string{"repo": "# hi"},
			topRepo: "repo",
			want:    []string{"Empty README Enthusiast", "No Tests, No Problem"},
		},
		{
			name:    "novel with tests mentioned",
			readmes: map[string]string{"repo": "run the tests with make test\n" + strings.Repeat("words ", 1000)},
			topRepo: "repo",
			want:    []string{"Novel Writer"},
		},
		{
			name:    "badge hoarder",
			readmes: map[string]string{"repo": badgeRow + "a project with ci and test coverage"},
			topRepo: "repo",
			want:    []string{"Badges Hoarder"},
		},
		{
			name:    "falls back to longest readme",
			readmes: map[string]string{"other": "this longer readme mentions testing in its build section ok"},
			topRepo: "repo",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeBadges(tt.readmes, tt.topRepo))
		})
	}
}

func TestCleanVerdict(t *testing.T) {
	assert.Equal(t, "Pending review...", CleanVerdict(""))
	assert.Equal(t, "CodeRabbit was rate-limited. Awaiting judgment...",
		CleanVerdict("<!-- x -->Rate Limit Exceeded"))
	assert.Equal(t, "Spaghetti.", CleanVerdict("<!-- meta\nnote -->Spaghetti.<!-- end -->"))
	assert.Equal(t, "Pending review...", CleanVerdict("<!-- only a comment -->"))
}

func newExportStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "raw"))
	require.NoError(t, err)
	return st
}

func TestExporterRun(t *testing.T) {
	st := newExportStore(t)
	require.NoError(t, st.SaveProfile("alice", types.UserRecord{
		Stars:          42,
		EmojiScore:     3,
		TopRepos:       []string{"cool-repo"},
		Name:           "Alice",
		WorstCommitMsg: "wtf",
	}))
	require.NoError(t, st.SaveProfile("bob", types.UserRecord{EmojiScore: 9}))
	require.NoError(t, st.SaveRawData("alice", nil, map[string]string{"cool-repo": "short"}, nil))
	require.NoError(t, st.SaveJudgeResults(map[string]types.JudgeResult{
		"alice": {QualityGrade: "B", Verdict: "Decent.", CodeRabbitBadge: "Adequate"},
	}))

	dir := t.TempDir()
	usernamesPath := filepath.Join(dir, "usernames.txt")
	require.NoError(t, os.WriteFile(usernamesPath, []byte("judge:alice\nbob\n"), 0o644))
	outputPath := filepath.Join(dir, "public", "data.json")

	e := NewExporter(st, usernamesPath, outputPath)
	require.NoError(t, e.Run())

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	var entries []Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)

	alice, bob := entries[0], entries[1]
	require.Equal(t, "alice", alice.Username)

	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "judge", alice.Role)
	assert.Equal(t, "https://github.com/alice.png", alice.AvatarURL)
	require.NotNil(t, alice.TopRepo)
	assert.Equal(t, "cool-repo", alice.TopRepo.Name)
	// Single graded user curves to the bottom of the bell.
	assert.Equal(t, "F", alice.QualityGrade)
	assert.Equal(t, "Decent.", alice.Verdict)
	require.NotNil(t, alice.CodeRabbitBadge)
	assert.Equal(t, "Adequate", *alice.CodeRabbitBadge)
	assert.Equal(t, 0, alice.SusScorePercentile)
	assert.Contains(t, alice.Badges, "Empty README Enthusiast")

	assert.Equal(t, "bob", bob.Username)
	assert.Equal(t, "bob", bob.Name, "missing display name falls back to username")
	assert.Equal(t, "participant", bob.Role)
	assert.Nil(t, bob.TopRepo)
	assert.Equal(t, "Pending", bob.QualityGrade)
	assert.Nil(t, bob.CodeRabbitBadge)
	assert.Equal(t, 100, bob.SusScorePercentile)
}

func TestExporterJudgeStateFallback(t *testing.T) {
	st := newExportStore(t)
	require.NoError(t, st.SaveProfile("alice", types.UserRecord{TopRepos: []string{"r"}}))
	require.NoError(t, st.SaveJudgeState(map[string]*types.JudgeUserState{
		"alice": {
			ResponseParsed: true,
			Result:         &types.JudgeResult{QualityGrade: "C", Verdict: "Meh.", CodeRabbitBadge: "Fine"},
		},
	}))

	e := NewExporter(st, filepath.Join(t.TempDir(), "none.txt"), filepath.Join(t.TempDir(), "data.json"))
	entries, err := e.Build()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// Curved single grade; the verdict proves state fallback was used.
	assert.Equal(t, "Meh.", entries[0].Verdict)
	assert.Equal(t, "F", entries[0].QualityGrade)
}
