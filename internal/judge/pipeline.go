// Package judge drives the AI code review pipeline: fork each user's top
// repository, open a PR diffing the whole codebase against a baseline branch,
// post a judging prompt for the review bot, poll for its verdict, and parse
// grades out of the response. Every phase is idempotent and persists state
// after each unit of work, so the pipeline can be re-run after a crash
// without repeating completed steps.
package judge

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/github"
	"github.com/wallofshame/gitranker/internal/store"
	"github.com/wallofshame/gitranker/internal/types"
)

// GitHub is the REST surface the pipeline needs. *github.RESTClient satisfies
// it; tests substitute a recording fake.
type GitHub interface {
	AuthenticatedUser(ctx context.Context) (string, error)
	GetRepo(ctx context.Context, fullName string) (*github.Repo, error)
	CreateFork(ctx context.Context, owner, repo string) (*github.Repo, error)
	OldestCommitSHA(ctx context.Context, fullName, branch string) (string, error)
	EnsureRef(ctx context.Context, fullName, branch, sha string) error
	ListOpenPRs(ctx context.Context, fullName, head, base string) ([]github.PullRequest, error)
	CreatePR(ctx context.Context, fullName, title, head, base, body string) (int, error)
	CreateComment(ctx context.Context, fullName string, number int, body string) error
	ListCommentsSince(ctx context.Context, fullName string, number int, since time.Time) ([]github.Comment, error)
}

// Reporter generates the aggregate cross-repository report. Nil disables
// phase five.
type Reporter interface {
	GenerateReport(ctx context.Context, prompt string) ([]byte, error)
}

// Options tune the pipeline's branch naming and polling cadence.
type Options struct {
	OrphanBranch string
	PollInterval time.Duration
	PollTimeout  time.Duration
	// ReportPath is where the aggregate report JSON lands; empty skips
	// writing it.
	ReportPath string
}

// Pipeline executes the judge phases over all scraped users.
type Pipeline struct {
	gh       GitHub
	store    store.Store
	reporter Reporter
	opts     Options

	// Write operations are paced to one per second so a batch of forks does
	// not trip secondary rate limits.
	limiter *rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline wires the pipeline. reporter may be nil.
func NewPipeline(gh GitHub, st store.Store, reporter Reporter, opts Options) *Pipeline {
	if opts.OrphanBranch == "" {
		opts.OrphanBranch = "wall-of-shame-baseline"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Minute
	}
	return &Pipeline{
		gh:       gh,
		store:    st,
		reporter: reporter,
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		now:      time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Run executes the named phase ("fork", "pr", "comment", "poll", "report") or
// all of them in order ("all"), then exports merged results.
func (p *Pipeline) Run(ctx context.Context, phase string) error {
	type phaseFn struct {
		name string
		fn   func(context.Context) error
	}
	all := []phaseFn{
		{"fork", p.PhaseFork},
		{"pr", p.PhasePR},
		{"comment", p.PhaseComment},
		{"poll", p.PhasePoll},
		{"report", p.PhaseReport},
	}

	var selected []phaseFn
	if phase == "" || phase == "all" {
		selected = all
	} else {
		for _, ph := range all {
			if ph.name == phase {
				selected = []phaseFn{ph}
			}
		}
		if selected == nil {
			return errors.NewValidationError("unknown phase: " + phase)
		}
	}

	for _, ph := range selected {
		slog.Info("Running judge phase", "phase", ph.name)
		if err := ph.fn(ctx); err != nil {
			return err
		}
	}

	return p.ExportResults()
}

// usernames returns the scraped usernames in stable order.
func (p *Pipeline) usernames() ([]string, map[string]types.UserRecord, error) {
	profiles, err := p.store.Profiles()
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, profiles, nil
}

func (p *Pipeline) userState(state map[string]*types.JudgeUserState, username string) *types.JudgeUserState {
	if st, ok := state[username]; ok && st != nil {
		return st
	}
	st := &types.JudgeUserState{}
	state[username] = st
	return st
}

// PhaseFork forks every user's top repository into the judging account. Users
// whose state already records a fork are skipped, so re-runs make no API
// calls for completed work.
func (p *Pipeline) PhaseFork(ctx context.Context) error {
	names, profiles, err := p.usernames()
	if err != nil {
		return err
	}
	state, err := p.store.JudgeState()
	if err != nil {
		return err
	}

	authUser, err := p.gh.AuthenticatedUser(ctx)
	if err != nil {
		return err
	}

	for _, username := range names {
		st := p.userState(state, username)
		if st.ForkName != "" {
			continue
		}

		rec := profiles[username]
		if len(rec.TopRepos) == 0 {
			slog.Info("No repos to fork", "username", username)
			continue
		}
		repoName := rec.TopRepos[0]

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		forkName, err := p.forkRepo(ctx, username, repoName, authUser)
		if err != nil {
			if errors.IsNotFound(err) {
				// Repo deleted or private since the scrape — terminal for
				// this user, not for the batch.
				slog.Warn("Top repo not found, skipping user", "username", username, "repo", repoName)
				st.Error = "fork_failed"
			} else {
				slog.Error("Fork failed", "username", username, "repo", repoName, "error", err)
			}
		} else {
			st.ForkName = forkName
			st.RepoName = repoName
			slog.Info("Forked", "username", username, "fork", forkName)
		}

		if err := p.store.SaveJudgeState(state); err != nil {
			return err
		}
	}
	return nil
}

// forkRepo reuses an existing fork when the judging account already has one
// with the same name.
func (p *Pipeline) forkRepo(ctx context.Context, owner, repo, authUser string) (string, error) {
	existing, err := p.gh.GetRepo(ctx, authUser+"/"+repo)
	if err == nil && existing.Fork {
		return existing.FullName, nil
	}

	fork, err := p.gh.CreateFork(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	return fork.FullName, nil
}

// PhasePR anchors the baseline branch at each fork's root commit and opens
// the review PR from the default branch into it. Forks that are still being
// created asynchronously are skipped and picked up on the next run.
func (p *Pipeline) PhasePR(ctx context.Context) error {
	names, _, err := p.usernames()
	if err != nil {
		return err
	}
	state, err := p.store.JudgeState()
	if err != nil {
		return err
	}

	for _, username := range names {
		st := p.userState(state, username)
		if st.ForkName == "" || st.PRNumber != 0 {
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		fork, err := p.gh.GetRepo(ctx, st.ForkName)
		if err != nil {
			slog.Warn("Fork not ready yet", "username", username, "fork", st.ForkName, "error", err)
			continue
		}

		prNum, err := p.openReviewPR(ctx, st.ForkName, fork.DefaultBranch)
		if err != nil {
			slog.Error("PR creation failed", "username", username, "fork", st.ForkName, "error", err)
			continue
		}

		st.PRNumber = prNum
		st.DefaultBranch = fork.DefaultBranch
		slog.Info("PR ready", "username", username, "fork", st.ForkName, "pr", prNum)

		if err := p.store.SaveJudgeState(state); err != nil {
			return err
		}
	}
	return nil
}

// openReviewPR creates (or finds) the full-codebase review PR on a fork.
func (p *Pipeline) openReviewPR(ctx context.Context, forkName, defaultBranch string) (int, error) {
	sha, err := p.gh.OldestCommitSHA(ctx, forkName, defaultBranch)
	if err != nil {
		return 0, err
	}
	if err := p.gh.EnsureRef(ctx, forkName, p.opts.OrphanBranch, sha); err != nil {
		return 0, err
	}

	owner := forkName[:strings.Index(forkName, "/")]
	prs, err := p.gh.ListOpenPRs(ctx, forkName, owner+":"+defaultBranch, p.opts.OrphanBranch)
	if err == nil && len(prs) > 0 {
		return prs[0].Number, nil
	}

	return p.gh.CreatePR(ctx, forkName, PRTitle, defaultBranch, p.opts.OrphanBranch, PRBody)
}

// PhaseComment posts the review trigger followed by the judging prompt on
// every PR that has not been commented yet.
func (p *Pipeline) PhaseComment(ctx context.Context) error {
	names, _, err := p.usernames()
	if err != nil {
		return err
	}
	state, err := p.store.JudgeState()
	if err != nil {
		return err
	}

	for _, username := range names {
		st := p.userState(state, username)
		if st.PRNumber == 0 || st.CommentPosted {
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		if err := p.gh.CreateComment(ctx, st.ForkName, st.PRNumber, ReviewTrigger); err != nil {
			slog.Error("Trigger comment failed", "username", username, "error", err)
			continue
		}
		// Let the trigger land before the prompt so the bot reads them in
		// order.
		if err := p.sleep(ctx, 2*time.Second); err != nil {
			return err
		}
		if err := p.gh.CreateComment(ctx, st.ForkName, st.PRNumber, JudgePrompt); err != nil {
			slog.Error("Judge comment failed", "username", username, "error", err)
			continue
		}

		st.CommentPosted = true
		st.CommentTime = p.now().UTC().Format(time.RFC3339)
		slog.Info("Judging comment posted", "username", username, "pr", st.PRNumber)

		if err := p.store.SaveJudgeState(state); err != nil {
			return err
		}
	}
	return nil
}

// PhasePoll waits for the bot's substantive response on each commented PR,
// parsing verdicts as they arrive. Users still unanswered when the timeout
// elapses get the Pending placeholder; a later poll run can still pick up
// their real verdict because response_parsed stays false.
func (p *Pipeline) PhasePoll(ctx context.Context) error {
	names, _, err := p.usernames()
	if err != nil {
		return err
	}
	state, err := p.store.JudgeState()
	if err != nil {
		return err
	}

	var pending []string
	for _, username := range names {
		st := p.userState(state, username)
		if st.CommentPosted && !st.ResponseParsed {
			pending = append(pending, username)
		}
	}
	if len(pending) == 0 {
		slog.Info("No pending responses to poll")
		return nil
	}

	slog.Info("Polling for responses", "pending", len(pending))
	start := p.now()

	for len(pending) > 0 && p.now().Sub(start) < p.opts.PollTimeout {
		var stillPending []string
		for _, username := range pending {
			st := state[username]

			found, err := p.pollUser(ctx, st)
			if err != nil {
				slog.Warn("Poll failed", "username", username, "error", err)
				stillPending = append(stillPending, username)
				continue
			}
			if !found {
				stillPending = append(stillPending, username)
				continue
			}

			slog.Info("Verdict received", "username", username,
				"grade", st.Result.QualityGrade, "badge", st.Result.CodeRabbitBadge)
			if err := p.store.SaveJudgeState(state); err != nil {
				return err
			}
		}

		pending = stillPending
		if len(pending) > 0 {
			slog.Info("Still waiting", "pending", len(pending),
				"elapsed", p.now().Sub(start).Round(time.Second))
			if err := p.sleep(ctx, p.opts.PollInterval); err != nil {
				return err
			}
		}
	}

	if len(pending) > 0 {
		slog.Warn("Polling timed out", "users", pending)
		for _, username := range pending {
			result := types.PendingResult()
			state[username].Result = &result
		}
		if err := p.store.SaveJudgeState(state); err != nil {
			return err
		}
	}
	return nil
}

// pollUser checks one PR for a substantive bot response and parses it.
func (p *Pipeline) pollUser(ctx context.Context, st *types.JudgeUserState) (bool, error) {
	since, err := time.Parse(time.RFC3339, st.CommentTime)
	if err != nil {
		since = time.Time{}
	}

	comments, err := p.gh.ListCommentsSince(ctx, st.ForkName, st.PRNumber, since)
	if err != nil {
		return false, err
	}

	for _, comment := range comments {
		if !IsSubstantiveResponse(comment.User.Login, comment.Body) {
			continue
		}
		result := ParseResponse(comment.Body)
		st.ResponseParsed = true
		st.Result = &result
		st.RawResponse = comment.Body
		return true, nil
	}
	return false, nil
}

// reportPrompt asks for one aggregate markdown table over every reviewed
// repository.
const reportPrompt = "You are Linus Torvalds compiling the ultimate Wall of Shame.\n\n" +
	"For each repository in this report, analyze CodeRabbit's review findings " +
	"and provide:\n" +
	"1. A Code Quality Grade (F- to A+)\n" +
	"2. A savage one-liner roast referencing real code issues\n" +
	"3. A humorous badge they deserve\n\n" +
	"Format each entry as a markdown table row:\n" +
	"| Repository | Grade | Verdict | Badge |\n\n" +
	"Be brutally honest. No emojis.\n\n" +
	"<include_bot_comments>"

// PhaseReport asks the review bot's reports API for one aggregate report over
// all judged forks. Missing credentials or API failures are logged, never
// fatal — the per-user verdicts are the product, the report is a bonus.
func (p *Pipeline) PhaseReport(ctx context.Context) error {
	if p.reporter == nil {
		slog.Info("Report generation disabled, skipping")
		return nil
	}

	report, err := p.reporter.GenerateReport(ctx, reportPrompt)
	if err != nil {
		slog.Warn("Aggregate report failed", "error", err)
		return nil
	}

	if p.opts.ReportPath != "" {
		if err := os.WriteFile(p.opts.ReportPath, report, 0o644); err != nil {
			slog.Warn("Failed to write aggregate report", "path", p.opts.ReportPath, "error", err)
			return nil
		}
		slog.Info("Aggregate report saved", "path", p.opts.ReportPath, "bytes", len(report))
	} else {
		slog.Info("Aggregate report generated", "bytes", len(report))
	}
	return nil
}

// ExportResults merges judge state into the persisted results map: every
// scraped user gets either their parsed verdict or the Pending placeholder.
func (p *Pipeline) ExportResults() error {
	names, _, err := p.usernames()
	if err != nil {
		return err
	}
	state, err := p.store.JudgeState()
	if err != nil {
		return err
	}

	results := make(map[string]types.JudgeResult, len(names))
	graded := 0
	for _, username := range names {
		if st := state[username]; st != nil && st.Result != nil {
			results[username] = *st.Result
		} else {
			results[username] = types.PendingResult()
		}
		if g := results[username].QualityGrade; g != "Pending" && g != "Error" {
			graded++
		}
	}

	if err := p.store.SaveJudgeResults(results); err != nil {
		return err
	}
	slog.Info("Judge results exported", "graded", graded, "total", len(results))
	return nil
}
