package types

import "github.com/wallofshame/gitranker/internal/toxicity"

// UserRecord is the aggregate produced by one successful scrape, keyed by
// lowercased username in the profile store. It is overwritten wholesale on
// re-scrape and deleted only by an explicit cache delete.
type UserRecord struct {
	Stars           int      `json:"stars"`
	CommitsLastYear int      `json:"commits_last_year"`
	EmojiScore      int      `json:"emoji_score"`
	TopRepos        []string `json:"top_repos"`
	Bio             string   `json:"bio"`
	Name            string   `json:"name"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	Followers       int      `json:"followers"`

	// Toxicity axis averages over the user's recent commit messages,
	// flattened into the record.
	toxicity.Scores

	WorstCommitMsg      string  `json:"worst_commit_msg,omitempty"`
	WorstCommitToxicity float64 `json:"worst_commit_toxicity,omitempty"`

	// ToxicityDetail is filled in by the deferred analysis endpoint; nil
	// until that runs.
	ToxicityDetail *toxicity.Scores `json:"toxicity_detail,omitempty"`

	ScrapedAt string `json:"scraped_at"`
}

// JudgeResult is the parsed review-bot verdict for one user. Grades run
// F- to A+ plus the "Pending"/"Error" placeholders.
type JudgeResult struct {
	QualityGrade    string `json:"quality_grade"`
	Verdict         string `json:"verdict"`
	CodeRabbitBadge string `json:"coderabbit_badge"`
}

// PendingResult is the placeholder recorded when polling times out.
func PendingResult() JudgeResult {
	return JudgeResult{
		QualityGrade:    "Pending",
		Verdict:         "Pending review…",
		CodeRabbitBadge: "Unknown",
	}
}

// JudgeUserState is one user's position in the judge pipeline. Phases
// execute in order — a PR cannot exist before a fork, a comment before a PR,
// polling before a comment — and each phase writes only its own fields,
// persisting immediately so a crash loses at most one unit of work.
type JudgeUserState struct {
	ForkName       string       `json:"fork_name,omitempty"`
	RepoName       string       `json:"repo_name,omitempty"`
	PRNumber       int          `json:"pr_number,omitempty"`
	DefaultBranch  string       `json:"default_branch,omitempty"`
	CommentPosted  bool         `json:"comment_posted,omitempty"`
	CommentTime    string       `json:"comment_time,omitempty"`
	ResponseParsed bool         `json:"response_parsed,omitempty"`
	Result         *JudgeResult `json:"result,omitempty"`
	RawResponse    string       `json:"raw_response,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// Phase names the furthest phase a user's state has reached.
func (s *JudgeUserState) Phase() string {
	switch {
	case s == nil:
		return "unforked"
	case s.ResponseParsed:
		return "responded"
	case s.CommentPosted:
		return "commented"
	case s.PRNumber != 0:
		return "pr_open"
	case s.ForkName != "":
		return "forked"
	default:
		return "unforked"
	}
}
