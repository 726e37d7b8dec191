// Package export merges scraped profiles with judge results into the static
// JSON array the frontend renders: bell-curved grades, role assignments,
// emoji-density percentiles, README-derived badges, and cleaned verdicts.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/wallofshame/gitranker/internal/store"
	"github.com/wallofshame/gitranker/internal/types"
)

// GradeOrder maps letter grades to numeric rank for sorting. Placeholders
// like "Pending" and "Error" are deliberately absent.
var GradeOrder = map[string]int{
	"A+": 13, "A": 12, "A-": 11,
	"B+": 10, "B": 9, "B-": 8,
	"C+": 7, "C": 6, "C-": 5,
	"D+": 4, "D": 3, "D-": 2,
	"F+": 1, "F": 0, "F-": -1,
}

type curveThreshold struct {
	cutoff float64
	grade  string
}

// curveThresholds is the bell curve: a user at percentile p (0 = worst,
// 100 = best) gets the first grade whose cutoff is >= p, so the median lands
// around C/C+.
var curveThresholds = []curveThreshold{
	{3, "F"},
	{8, "D-"},
	{15, "D"},
	{23, "D+"},
	{35, "C-"},
	{50, "C"},
	{65, "C+"},
	{77, "B-"},
	{88, "B"},
	{95, "B+"},
	{99, "A-"},
	{100, "A"},
}

// CurveGrades redistributes letter grades along the bell curve while
// preserving the bot's relative ranking. Placeholder grades pass through
// unchanged; a single graded user lands at percentile 0.
func CurveGrades(results map[string]types.JudgeResult) map[string]types.JudgeResult {
	type rankedUser struct {
		username string
		numeric  int
	}

	var graded []rankedUser
	for username, result := range results {
		if numeric, ok := GradeOrder[result.QualityGrade]; ok {
			graded = append(graded, rankedUser{username, numeric})
		}
	}
	if len(graded) == 0 {
		return results
	}

	// Worst first; equal grades tie-break by username so the curve is stable
	// across runs.
	sort.Slice(graded, func(i, j int) bool {
		if graded[i].numeric != graded[j].numeric {
			return graded[i].numeric < graded[j].numeric
		}
		return graded[i].username < graded[j].username
	})

	curved := make(map[string]types.JudgeResult, len(results))
	for username, result := range results {
		curved[username] = result
	}

	n := len(graded)
	for rank, user := range graded {
		percentile := float64(rank) / float64(max(n-1, 1)) * 100

		newGrade := "A+"
		for _, t := range curveThresholds {
			if percentile <= t.cutoff {
				newGrade = t.grade
				break
			}
		}

		result := curved[user.username]
		result.QualityGrade = newGrade
		curved[user.username] = result
	}
	return curved
}

// Roster is the parsed usernames file: scrape order plus role assignments.
type Roster struct {
	// Usernames in file order, prefix-stripped and deduplicated
	// case-insensitively.
	Usernames []string
	// Roles maps lowercased username to "judge", "organizer", or
	// "participant".
	Roles map[string]string
}

// Role returns the user's role, defaulting to participant.
func (r *Roster) Role(username string) string {
	if role, ok := r.Roles[strings.ToLower(username)]; ok {
		return role
	}
	return "participant"
}

// ParseRoster reads the usernames file. Lines are one username each, with
// optional "judge:" or "org:" role prefixes; blank lines and #-comments are
// skipped. A missing file yields an empty roster.
func ParseRoster(path string) (*Roster, error) {
	roster := &Roster{Roles: map[string]string{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return roster, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read usernames file: %w", err)
	}

	seen := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		role := "participant"
		username := line
		switch {
		case strings.HasPrefix(line, "judge:"):
			role = "judge"
			username = strings.TrimSpace(strings.TrimPrefix(line, "judge:"))
		case strings.HasPrefix(line, "org:"):
			role = "organizer"
			username = strings.TrimSpace(strings.TrimPrefix(line, "org:"))
		}
		if username == "" {
			continue
		}

		lower := strings.ToLower(username)
		if !seen[lower] {
			seen[lower] = true
			roster.Usernames = append(roster.Usernames, username)
		}
		if role != "participant" {
			roster.Roles[lower] = role
		} else if _, ok := roster.Roles[lower]; !ok {
			roster.Roles[lower] = "participant"
		}
	}
	return roster, nil
}

// SusPercentiles ranks users by emoji score and assigns each the percentage
// of users with a strictly lower rank (0 = least sus, 100 = most).
func SusPercentiles(profiles map[string]types.UserRecord) map[string]int {
	type scored struct {
		username string
		score    int
	}

	users := make([]scored, 0, len(profiles))
	for username, rec := range profiles {
		users = append(users, scored{username, rec.EmojiScore})
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].score != users[j].score {
			return users[i].score < users[j].score
		}
		return users[i].username < users[j].username
	})

	n := len(users)
	percentiles := make(map[string]int, n)
	for rank, user := range users {
		percentiles[user.username] = rank * 100 / max(n-1, 1)
	}
	return percentiles
}

var badgeImgRe = regexp.MustCompile(`!\[.*?\]\(`)

// ComputeBadges derives heuristic badges from a user's README map, focusing
// on the top repo's README and falling back to the longest one available.
func ComputeBadges(readmes map[string]string, topRepo string) []string {
	var badges []string

	topReadme := readmes[topRepo]
	if topReadme == "" && len(readmes) == 0 {
		return []string{"Empty README Enthusiast"}
	}

	readme := topReadme
	if readme == "" {
		for _, text := range readmes {
			if len(text) > len(readme) {
				readme = text
			}
		}
	}

	if len(readme) < 50 {
		badges = append(badges, "Empty README Enthusiast")
	}
	if len(readme) > 5000 {
		badges = append(badges, "Novel Writer")
	}
	if len(badgeImgRe.FindAllString(readme, -1)) >= 5 {
		badges = append(badges, "Badges Hoarder")
	}

	lower := strings.ToLower(readme)
	if !strings.Contains(lower, "test") && !strings.Contains(lower, "ci") {
		badges = append(badges, "No Tests, No Problem")
	}
	return badges
}

var htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)

// CleanVerdict strips HTML comments and rate-limit noise from bot verdicts.
func CleanVerdict(verdict string) string {
	if verdict == "" {
		return "Pending review..."
	}
	if strings.Contains(verdict, "Rate Limit Exceeded") {
		return "CodeRabbit was rate-limited. Awaiting judgment..."
	}
	cleaned := strings.TrimSpace(htmlCommentRe.ReplaceAllString(verdict, ""))
	if cleaned == "" {
		return "Pending review..."
	}
	return cleaned
}

// TopRepo is the nested repo object in an exported entry.
type TopRepo struct {
	Name        string  `json:"name"`
	Stars       int     `json:"stars"`
	Language    *string `json:"language"`
	Description *string `json:"description"`
}

// Entry is one user's row in the exported data.json array.
type Entry struct {
	Username            string   `json:"username"`
	Name                string   `json:"name"`
	Bio                 string   `json:"bio"`
	Role                string   `json:"role"`
	AvatarURL           string   `json:"avatar_url"`
	Stars               int      `json:"stars"`
	CommitsLastYear     int      `json:"commits_last_year"`
	Followers           int      `json:"followers"`
	TopRepo             *TopRepo `json:"top_repo"`
	QualityGrade        string   `json:"quality_grade"`
	Verdict             string   `json:"verdict"`
	CodeRabbitBadge     *string  `json:"coderabbit_badge"`
	SusScorePercentile  int      `json:"sus_score_percentile"`
	WorstCommitMsg      string   `json:"worst_commit_msg"`
	WorstCommitToxicity float64  `json:"worst_commit_toxicity"`
	Badges              []string `json:"badges"`
	EmojiScore          int      `json:"emoji_score"`
}

// Exporter assembles the final data.json from the store.
type Exporter struct {
	store         store.Store
	usernamesPath string
	outputPath    string
}

// NewExporter wires an exporter over the store. usernamesPath supplies roles
// and may point at a missing file.
func NewExporter(st store.Store, usernamesPath, outputPath string) *Exporter {
	return &Exporter{
		store:         st,
		usernamesPath: usernamesPath,
		outputPath:    outputPath,
	}
}

// judgeResults loads the persisted results map, falling back to extracting
// parsed results straight out of judge state when the export phase never ran.
func (e *Exporter) judgeResults() (map[string]types.JudgeResult, error) {
	results, err := e.store.JudgeResults()
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	state, err := e.store.JudgeState()
	if err != nil {
		return nil, err
	}
	for username, st := range state {
		if st != nil && st.Result != nil {
			results[username] = *st.Result
		}
	}
	if len(results) > 0 {
		slog.Info("Loaded judge results from pipeline state fallback", "count", len(results))
	}
	return results, nil
}

// Build assembles the export entries, sorted by username.
func (e *Exporter) Build() ([]Entry, error) {
	profiles, err := e.store.Profiles()
	if err != nil {
		return nil, err
	}

	rawResults, err := e.judgeResults()
	if err != nil {
		return nil, err
	}
	results := CurveGrades(rawResults)

	roster, err := ParseRoster(e.usernamesPath)
	if err != nil {
		return nil, err
	}
	percentiles := SusPercentiles(profiles)

	usernames := make([]string, 0, len(profiles))
	for username := range profiles {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	entries := make([]Entry, 0, len(usernames))
	for _, username := range usernames {
		rec := profiles[username]

		topRepoName := ""
		if len(rec.TopRepos) > 0 {
			topRepoName = rec.TopRepos[0]
		}

		readmes, err := e.store.RawReadmes(username)
		if err != nil {
			slog.Warn("Failed to load readmes for badges", "username", username, "error", err)
			readmes = map[string]string{}
		}

		result, ok := results[username]
		if !ok {
			result = types.JudgeResult{QualityGrade: "Pending"}
		}

		entry := Entry{
			Username:            username,
			Name:                rec.Name,
			Bio:                 rec.Bio,
			Role:                roster.Role(username),
			AvatarURL:           fmt.Sprintf("https://github.com/%s.png", username),
			Stars:               rec.Stars,
			CommitsLastYear:     rec.CommitsLastYear,
			Followers:           rec.Followers,
			QualityGrade:        result.QualityGrade,
			Verdict:             CleanVerdict(result.Verdict),
			SusScorePercentile:  percentiles[username],
			WorstCommitMsg:      rec.WorstCommitMsg,
			WorstCommitToxicity: rec.WorstCommitToxicity,
			Badges:              ComputeBadges(readmes, topRepoName),
			EmojiScore:          rec.EmojiScore,
		}
		if entry.Name == "" {
			entry.Name = username
		}
		if topRepoName != "" {
			entry.TopRepo = &TopRepo{Name: topRepoName, Stars: rec.Stars}
		}
		if result.QualityGrade != "Pending" && result.CodeRabbitBadge != "" {
			badge := result.CodeRabbitBadge
			entry.CodeRabbitBadge = &badge
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

// Run builds the entries and writes them to the output path.
func (e *Exporter) Run() error {
	entries, err := e.Build()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(e.outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	graded := 0
	for _, entry := range entries {
		if entry.QualityGrade != "Pending" && entry.QualityGrade != "Error" {
			graded++
		}
	}
	slog.Info("Export complete", "path", e.outputPath,
		"users", len(entries), "graded", graded, "pending", len(entries)-graded)
	return nil
}
