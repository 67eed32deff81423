// Package ingest pulls a repository's default branch tree and its pull requests
// into a project snapshot, driving the project through PENDING -> ACTIVE | FAILED.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
	"github-repo-sync/internal/safego"
	"github-repo-sync/internal/telemetry"
	"github-repo-sync/internal/tree"
)

const (
	defaultPRConcurrency = 4
	defaultRunTimeout    = 10 * time.Minute
	// Bound on the final status write of a failed run.
	failureSaveTimeout = 10 * time.Second
)

// ProjectStore loads and saves projects.
type ProjectStore interface {
	LoadProject(ctx context.Context, id string) (*model.Project, error)
	SaveProject(ctx context.Context, p *model.Project) error
}

// Remote is the subset of the GitHub client a run needs.
type Remote interface {
	GetRef(ctx context.Context, token, owner, name, branch string) (string, error)
	GetDefaultBranch(ctx context.Context, token, owner, name string) (string, error)
	GetTreeRecursive(ctx context.Context, token, owner, name, sha string) ([]model.TreeEntry, error)
	ListPullRequests(ctx context.Context, token, owner, name string) ([]model.PullRequest, error)
	GetPullRequestBundle(ctx context.Context, token, owner, name string, number int) (*model.PullRequestBundle, error)
}

// Credentials supplies access tokens and disconnects users whose token was rejected.
type Credentials interface {
	EnsureValidToken(ctx context.Context, userID string) (string, error)
	DisconnectOnAuthFailure(ctx context.Context, userID string, err error) bool
}

// CachePurger drops every cached file of a project.
type CachePurger interface {
	Purge(ctx context.Context, projectID string) (int64, error)
}

// Options tunes a Pipeline.
type Options struct {
	// PRConcurrency bounds parallel pull request bundle fetches within one run.
	PRConcurrency int
	// RunTimeout bounds a whole background run.
	RunTimeout time.Duration
}

// Pipeline runs ingestion for projects. At most one run per project is in flight.
type Pipeline struct {
	projects      ProjectStore
	remote        Remote
	creds         Credentials
	cache         CachePurger
	transformer   *tree.Transformer
	logger        *slog.Logger
	prConcurrency int
	runTimeout    time.Duration
	now           func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPipeline creates a Pipeline. Call Close to stop background runs.
func NewPipeline(projects ProjectStore, remote Remote, creds Credentials, cache CachePurger, transformer *tree.Transformer, logger *slog.Logger, opts Options) *Pipeline {
	if opts.PRConcurrency < 1 {
		opts.PRConcurrency = defaultPRConcurrency
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		projects:      projects,
		remote:        remote,
		creds:         creds,
		cache:         cache,
		transformer:   transformer,
		logger:        logger,
		prConcurrency: opts.PRConcurrency,
		runTimeout:    opts.RunTimeout,
		now:           time.Now,
		inFlight:      make(map[string]struct{}),
		baseCtx:       ctx,
		cancel:        cancel,
	}
}

// Submit claims projectID, runs prepare synchronously and then starts a
// background run. It fails with ErrSyncInProgress, without calling prepare,
// when a run for projectID is already in flight. If prepare fails the claim
// is released and no run starts.
func (p *Pipeline) Submit(ctx context.Context, projectID, userID string, prepare func(ctx context.Context) error) error {
	if p.baseCtx.Err() != nil {
		return errors.New("ingestion pipeline is shut down")
	}
	if !p.acquire(projectID) {
		return &custom_errors.ErrSyncInProgress{ProjectID: projectID}
	}
	if prepare != nil {
		if err := prepare(ctx); err != nil {
			p.release(projectID)
			return err
		}
	}

	p.wg.Add(1)
	safego.Go(p.logger, func() {
		defer p.wg.Done()
		defer p.release(projectID)

		runCtx, cancel := context.WithTimeout(p.baseCtx, p.runTimeout)
		defer cancel()
		_ = p.Run(runCtx, projectID, userID)
	})
	return nil
}

// IsRunning reports whether a run for projectID is in flight.
func (p *Pipeline) IsRunning(projectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[projectID]
	return ok
}

// Close cancels in-flight runs and waits for them to record their outcome.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) acquire(projectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[projectID]; ok {
		return false
	}
	p.inFlight[projectID] = struct{}{}
	return true
}

func (p *Pipeline) release(projectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, projectID)
}

// Run performs one ingestion run synchronously. The returned error is the
// run's failure cause; it has already been recorded on the project.
func (p *Pipeline) Run(ctx context.Context, projectID, userID string) error {
	start := time.Now()
	logger := p.logger.With("project_id", projectID, "user_id", userID)

	project, err := p.projects.LoadProject(ctx, projectID)
	if err != nil {
		logger.Warn("Aborting ingestion, project could not be loaded", "error", err)
		telemetry.IngestionRunsTotal.WithLabelValues(telemetry.OutcomeAborted).Inc()
		return err
	}
	if project.UserID != userID {
		err := &custom_errors.AuthorizationError{UserID: userID, Resource: "project", ID: projectID}
		logger.Warn("Aborting ingestion, project belongs to another user")
		telemetry.IngestionRunsTotal.WithLabelValues(telemetry.OutcomeAborted).Inc()
		return err
	}
	logger = logger.With("owner", project.Owner, "repo", project.Name)
	logger.Info("Starting ingestion", "branch", project.DefaultBranch)

	snapshot, err := p.buildSnapshot(ctx, logger, project)
	if err != nil {
		p.fail(ctx, logger, project, err)
		telemetry.IngestionDuration.Observe(time.Since(start).Seconds())
		return err
	}

	// The project may have been deleted while the run was in flight.
	current, err := p.projects.LoadProject(ctx, projectID)
	if err != nil {
		logger.Warn("Discarding snapshot, project could not be reloaded", "error", err)
		telemetry.IngestionRunsTotal.WithLabelValues(telemetry.OutcomeAborted).Inc()
		return err
	}
	current.DefaultBranch = snapshot.Branch
	current.MarkActive(snapshot, p.now())
	if err := p.projects.SaveProject(ctx, current); err != nil {
		p.fail(ctx, logger, current, fmt.Errorf("save snapshot: %w", err))
		telemetry.IngestionDuration.Observe(time.Since(start).Seconds())
		return err
	}

	if _, err := p.cache.Purge(ctx, projectID); err != nil {
		logger.Error("Failed to purge cached files after ingestion", "error", err)
	}

	telemetry.IngestionRunsTotal.WithLabelValues(telemetry.OutcomeSuccess).Inc()
	telemetry.IngestionDuration.Observe(time.Since(start).Seconds())
	logger.Info("Ingestion finished",
		"sha", snapshot.CommitSHA,
		"branch", snapshot.Branch,
		"pull_requests", len(snapshot.PullRequests),
		"duration", time.Since(start).String(),
	)
	return nil
}

// buildSnapshot resolves the branch, fetches and transforms the tree and collects pull requests.
func (p *Pipeline) buildSnapshot(ctx context.Context, logger *slog.Logger, project *model.Project) (*model.Snapshot, error) {
	token, err := p.creds.EnsureValidToken(ctx, project.UserID)
	if err != nil {
		return nil, err
	}

	sha, branch, err := p.resolveRef(ctx, logger, token, project)
	if err != nil {
		return nil, err
	}
	logger.Info("Resolved branch", "branch", branch, "sha", sha)

	entries, err := p.remote.GetTreeRecursive(ctx, token, project.Owner, project.Name, sha)
	if err != nil {
		return nil, err
	}
	root, err := p.transformer.Transform(entries)
	if err != nil {
		return nil, err
	}
	logger.Info("Transformed tree", "entries", len(entries))

	pulls, err := p.remote.ListPullRequests(ctx, token, project.Owner, project.Name)
	if err != nil {
		return nil, err
	}
	snapshots, err := p.fetchPullRequests(ctx, logger, token, project, pulls)
	if err != nil {
		return nil, err
	}

	return &model.Snapshot{
		CommitSHA:    sha,
		Branch:       branch,
		Main:         root,
		PullRequests: snapshots,
	}, nil
}

// resolveRef returns the commit SHA of the project's branch. When that branch
// does not exist it retries once with the repository's current default branch.
func (p *Pipeline) resolveRef(ctx context.Context, logger *slog.Logger, token string, project *model.Project) (string, string, error) {
	branch := project.DefaultBranch
	if branch == "" {
		def, err := p.remote.GetDefaultBranch(ctx, token, project.Owner, project.Name)
		if err != nil {
			return "", "", err
		}
		branch = def
	}

	sha, err := p.remote.GetRef(ctx, token, project.Owner, project.Name, branch)
	if err == nil {
		return sha, branch, nil
	}
	if !custom_errors.IsNotFound(err) {
		return "", "", err
	}

	def, derr := p.remote.GetDefaultBranch(ctx, token, project.Owner, project.Name)
	if derr != nil {
		return "", "", derr
	}
	if def == "" || def == branch {
		return "", "", fmt.Errorf("branch %q not found: %w", branch, err)
	}

	logger.Warn("Branch not found, falling back to default branch", "branch", branch, "default_branch", def)
	sha, err = p.remote.GetRef(ctx, token, project.Owner, project.Name, def)
	if err != nil {
		return "", "", fmt.Errorf("default branch %q: %w", def, err)
	}
	return sha, def, nil
}

// fetchPullRequests fetches every bundle with bounded concurrency. A failed
// bundle drops only its own pull request; order follows the listing. A token
// rejected by the remote fails the run.
func (p *Pipeline) fetchPullRequests(ctx context.Context, logger *slog.Logger, token string, project *model.Project, pulls []model.PullRequest) ([]model.PullRequestSnapshot, error) {
	slots := make([]*model.PullRequestSnapshot, len(pulls))
	var authErr error
	var authOnce sync.Once

	var g errgroup.Group
	g.SetLimit(p.prConcurrency)
	for i := range pulls {
		i := i
		g.Go(func() error {
			pr := pulls[i]
			bundle, err := p.remote.GetPullRequestBundle(ctx, token, project.Owner, project.Name, pr.Number)
			if err != nil {
				logger.Warn("Skipping pull request", "number", pr.Number, "error", err)
				telemetry.IngestionPullRequestsSkipped.Inc()
				if custom_errors.IsRemoteAuth(err) {
					authOnce.Do(func() { authErr = err })
				}
				return nil
			}
			slots[i] = &model.PullRequestSnapshot{
				Number:    pr.Number,
				Title:     pr.Title,
				State:     pr.State,
				Author:    pr.Author,
				CreatedAt: pr.CreatedAt,
				UpdatedAt: pr.UpdatedAt,
				Content:   *bundle,
			}
			return nil
		})
	}
	_ = g.Wait()

	if authErr != nil {
		return nil, authErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.PullRequestSnapshot, 0, len(pulls))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

// fail records cause on the project. It runs detached from ctx so a timed-out
// run can still write its FAILED status.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, project *model.Project, cause error) {
	logger.Error("Ingestion failed", "error", cause)
	telemetry.IngestionRunsTotal.WithLabelValues(telemetry.OutcomeFailure).Inc()

	p.creds.DisconnectOnAuthFailure(ctx, project.UserID, cause)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureSaveTimeout)
	defer cancel()

	current, err := p.projects.LoadProject(saveCtx, project.ID)
	if err != nil {
		logger.Warn("Could not record failure, project could not be reloaded", "error", err)
		return
	}
	current.MarkFailed(cause, p.now())
	if err := p.projects.SaveProject(saveCtx, current); err != nil {
		logger.Error("Failed to record ingestion failure", "error", err)
	}
}
