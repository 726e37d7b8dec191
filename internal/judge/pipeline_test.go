package judge

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/github"
	"github.com/wallofshame/gitranker/internal/store"
	"github.com/wallofshame/gitranker/internal/types"
)

// fakeGitHub records every API call so tests can assert both behavior and
// the absence of redundant calls on re-runs.
type fakeGitHub struct {
	authUser  string
	repos     map[string]*github.Repo
	forkErr   error
	oldestSHA string
	openPRs   []github.PullRequest
	prNumber  int
	comments  []github.Comment

	forkCalls    int
	refCalls     int
	prCalls      int
	commentCalls int
	pollCalls    int
	commentBodys []string
}

func (f *fakeGitHub) AuthenticatedUser(context.Context) (string, error) {
	return f.authUser, nil
}

func (f *fakeGitHub) GetRepo(_ context.Context, fullName string) (*github.Repo, error) {
	if repo, ok := f.repos[fullName]; ok {
		return repo, nil
	}
	return nil, errors.NewNotFoundError("resource")
}

func (f *fakeGitHub) CreateFork(_ context.Context, owner, repo string) (*github.Repo, error) {
	f.forkCalls++
	if f.forkErr != nil {
		return nil, f.forkErr
	}
	fork := &github.Repo{
		Name:          repo,
		FullName:      f.authUser + "/" + repo,
		Fork:          true,
		DefaultBranch: "main",
	}
	if f.repos == nil {
		f.repos = map[string]*github.Repo{}
	}
	f.repos[fork.FullName] = fork
	return fork, nil
}

func (f *fakeGitHub) OldestCommitSHA(context.Context, string, string) (string, error) {
	return f.oldestSHA, nil
}

func (f *fakeGitHub) EnsureRef(context.Context, string, string, string) error {
	f.refCalls++
	return nil
}

func (f *fakeGitHub) ListOpenPRs(context.Context, string, string, string) ([]github.PullRequest, error) {
	return f.openPRs, nil
}

func (f *fakeGitHub) CreatePR(context.Context, string, string, string, string, string) (int, error) {
	f.prCalls++
	return f.prNumber, nil
}

func (f *fakeGitHub) CreateComment(_ context.Context, _ string, _ int, body string) error {
	f.commentCalls++
	f.commentBodys = append(f.commentBodys, body)
	return nil
}

func (f *fakeGitHub) ListCommentsSince(context.Context, string, int, time.Time) ([]github.Comment, error) {
	f.pollCalls++
	return f.comments, nil
}

func newTestPipeline(t *testing.T, gh GitHub, opts Options) (*Pipeline, store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "raw"))
	require.NoError(t, err)

	p := NewPipeline(gh, st, nil, opts)
	p.limiter = rate.NewLimiter(rate.Inf, 0)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p, st
}

func botComment(body string) github.Comment {
	var c github.Comment
	c.Body = body
	c.User.Login = "coderabbitai[bot]"
	return c
}

func seedProfile(t *testing.T, st store.Store, username string, repos ...string) {
	t.Helper()
	require.NoError(t, st.SaveProfile(username, types.UserRecord{TopRepos: repos}))
}

func TestForkPRCommentFlow(t *testing.T) {
	gh := &fakeGitHub{
		authUser:  "judgebot",
		oldestSHA: "abc123",
		prNumber:  7,
	}
	p, st := newTestPipeline(t, gh, Options{})
	seedProfile(t, st, "alice", "cool-repo")

	ctx := context.Background()
	require.NoError(t, p.PhaseFork(ctx))
	require.NoError(t, p.PhasePR(ctx))
	require.NoError(t, p.PhaseComment(ctx))

	state, err := st.JudgeState()
	require.NoError(t, err)
	require.Contains(t, state, "alice")
	alice := state["alice"]

	assert.Equal(t, "judgebot/cool-repo", alice.ForkName)
	assert.Equal(t, "cool-repo", alice.RepoName)
	assert.Equal(t, 7, alice.PRNumber)
	assert.Equal(t, "main", alice.DefaultBranch)
	assert.True(t, alice.CommentPosted)
	assert.NotEmpty(t, alice.CommentTime)
	assert.Equal(t, "commented", alice.Phase())

	assert.Equal(t, 1, gh.forkCalls)
	assert.Equal(t, 1, gh.refCalls)
	assert.Equal(t, 1, gh.prCalls)
	require.Equal(t, 2, gh.commentCalls)
	assert.Equal(t, ReviewTrigger, gh.commentBodys[0])
	assert.Equal(t, JudgePrompt, gh.commentBodys[1])
}

func TestPhasesAreIdempotent(t *testing.T) {
	gh := &fakeGitHub{
		authUser:  "judgebot",
		oldestSHA: "abc123",
		prNumber:  7,
	}
	p, st := newTestPipeline(t, gh, Options{})
	seedProfile(t, st, "alice", "cool-repo")

	ctx := context.Background()
	require.NoError(t, p.PhaseFork(ctx))
	require.NoError(t, p.PhasePR(ctx))
	require.NoError(t, p.PhaseComment(ctx))

	// A second run finds everything done and issues no write calls.
	require.NoError(t, p.PhaseFork(ctx))
	require.NoError(t, p.PhasePR(ctx))
	require.NoError(t, p.PhaseComment(ctx))

	assert.Equal(t, 1, gh.forkCalls)
	assert.Equal(t, 1, gh.refCalls)
	assert.Equal(t, 1, gh.prCalls)
	assert.Equal(t, 2, gh.commentCalls)
}

func TestPhaseForkReusesExistingFork(t *testing.T) {
	gh := &fakeGitHub{
		authUser: "judgebot",
		repos: map[string]*github.Repo{
			"judgebot/cool-repo": {FullName: "judgebot/cool-repo", Fork: true, DefaultBranch: "main"},
		},
	}
	p, st := newTestPipeline(t, gh, Options{})
	seedProfile(t, st, "alice", "cool-repo")

	require.NoError(t, p.PhaseFork(context.Background()))

	state, err := st.JudgeState()
	require.NoError(t, err)
	assert.Equal(t, "judgebot/cool-repo", state["alice"].ForkName)
	assert.Zero(t, gh.forkCalls)
}

func TestPhaseForkRecordsTerminalFailure(t *testing.T) {
	gh := &fakeGitHub{
		authUser: "judgebot",
		forkErr:  errors.NewNotFoundError("repo"),
	}
	p, st := newTestPipeline(t, gh, Options{})
	seedProfile(t, st, "alice", "deleted-repo")

	require.NoError(t, p.PhaseFork(context.Background()))

	state, err := st.JudgeState()
	require.NoError(t, err)
	assert.Equal(t, "fork_failed", state["alice"].Error)
	assert.Empty(t, state["alice"].ForkName)
}

func TestPhasePollParsesVerdict(t *testing.T) {
	verdictBody := "Preamble.\n```json\n" +
		`{"grade": "F", "verdict": "A README that lies about features the code never had.", "badge": "Fiction Writer"}` +
		"\n```\n" + strings.Repeat("padding so the comment passes the length gate ", 5)

	gh := &fakeGitHub{
		authUser: "judgebot",
		comments: []github.Comment{
			botComment("Review triggered"),
			botComment(verdictBody),
		},
	}
	p, st := newTestPipeline(t, gh, Options{})
	seedProfile(t, st, "alice", "cool-repo")
	require.NoError(t, st.SaveJudgeState(map[string]*types.JudgeUserState{
		"alice": {
			ForkName:      "judgebot/cool-repo",
			PRNumber:      7,
			CommentPosted: true,
			CommentTime:   "2025-06-01T12:00:00Z",
		},
	}))

	require.NoError(t, p.PhasePoll(context.Background()))

	state, err := st.JudgeState()
	require.NoError(t, err)
	alice := state["alice"]
	assert.True(t, alice.ResponseParsed)
	assert.Equal(t, "responded", alice.Phase())
	require.NotNil(t, alice.Result)
	assert.Equal(t, "F", alice.Result.QualityGrade)
	assert.Equal(t, "Fiction Writer", alice.Result.CodeRabbitBadge)
	assert.Equal(t, verdictBody, alice.RawResponse)
}

func TestPhasePollTimeoutLeavesPending(t *testing.T) {
	gh := &fakeGitHub{authUser: "judgebot"}
	p, st := newTestPipeline(t, gh, Options{PollTimeout: time.Nanosecond, PollInterval: time.Nanosecond})
	seedProfile(t, st, "alice", "cool-repo")
	require.NoError(t, st.SaveJudgeState(map[string]*types.JudgeUserState{
		"alice": {
			ForkName:      "judgebot/cool-repo",
			PRNumber:      7,
			CommentPosted: true,
			CommentTime:   "2025-06-01T12:00:00Z",
		},
	}))

	require.NoError(t, p.PhasePoll(context.Background()))

	state, err := st.JudgeState()
	require.NoError(t, err)
	alice := state["alice"]
	// Timed out: placeholder result, but response_parsed stays false so a
	// later poll can still find the real verdict.
	assert.False(t, alice.ResponseParsed)
	require.NotNil(t, alice.Result)
	assert.Equal(t, "Pending", alice.Result.QualityGrade)
}

func TestExportResults(t *testing.T) {
	gh := &fakeGitHub{authUser: "judgebot"}
	p, st := newTestPipeline(t, gh, Options{})
	seedProfile(t, st, "alice", "cool-repo")
	seedProfile(t, st, "bob", "other-repo")
	require.NoError(t, st.SaveJudgeState(map[string]*types.JudgeUserState{
		"alice": {
			ResponseParsed: true,
			Result:         &types.JudgeResult{QualityGrade: "C", Verdict: "Fine.", CodeRabbitBadge: "Adequate"},
		},
	}))

	require.NoError(t, p.ExportResults())

	results, err := st.JudgeResults()
	require.NoError(t, err)
	assert.Equal(t, "C", results["alice"].QualityGrade)
	assert.Equal(t, types.PendingResult(), results["bob"])
}

func TestRunUnknownPhase(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeGitHub{authUser: "judgebot"}, Options{})
	assert.Error(t, p.Run(context.Background(), "yolo"))
}
