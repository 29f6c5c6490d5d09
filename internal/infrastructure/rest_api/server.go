package rest_api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/davarch/devboard/internal/application"
	"github.com/davarch/devboard/internal/domain"
	"go.uber.org/zap"
)

// Services is one consistent set of use cases built from a single configuration.
type Services struct {
	Issues      IssueViewer
	Pipelines   PipelineReader
	Deployments DeploymentReader
	Workspace   WorkspaceReader
}

// Server routes requests to the current Services. Swap installs a new set atomically, so
// in-flight requests finish against the set they started with.
type Server struct {
	log *zap.Logger

	mu  sync.RWMutex
	svc Services
}

func NewServer(log *zap.Logger, svc Services) *Server {
	return &Server{log: log, svc: svc}
}

func (s *Server) Swap(svc Services) {
	s.mu.Lock()
	s.svc = svc
	s.mu.Unlock()
	s.log.Info("config reloaded")
}

func (s *Server) current() Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.svc
}

func (s *Server) View(ctx context.Context, name string) (domain.IssueResult, error) {
	return s.current().Issues.View(ctx, name)
}

func (s *Server) Dashboard(ctx context.Context) (domain.PipelineDashboard, error) {
	return s.current().Pipelines.Dashboard(ctx)
}

func (s *Server) History(ctx context.Context, repository string) ([]domain.PipelineRun, error) {
	return s.current().Pipelines.History(ctx, repository)
}

func (s *Server) Repositories() []domain.RepositoryLink {
	return s.current().Pipelines.Repositories()
}

func (s *Server) Deployments(ctx context.Context) (domain.DeploymentReport, error) {
	return s.current().Deployments.Deployments(ctx)
}

// workspaceView delegates to the current WorkspaceReader.
type workspaceView struct{ s *Server }

func (v workspaceView) Repositories(ctx context.Context, workspace string) ([]domain.WorkspaceRepository, error) {
	return v.s.current().Workspace.Repositories(ctx, workspace)
}

func (v workspaceView) Commits(ctx context.Context, repository string, limit int) ([]domain.Commit, error) {
	return v.s.current().Workspace.Commits(ctx, repository, limit)
}

func (v workspaceView) CheckCredentials(ctx context.Context) (domain.Account, error) {
	return v.s.current().Workspace.CheckCredentials(ctx)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /issues/{view}", NewIssuesHandler(s.log, s, ""))
	mux.Handle("GET /in-progress", NewIssuesHandler(s.log, s, application.ViewInProgress))
	mux.Handle("GET /open-issues-by-due", NewIssuesHandler(s.log, s, application.ViewOpenByDue))

	mux.Handle("GET /pipelines", NewDashboardHandler(s.log, s))
	mux.Handle("GET /pipelines/{workspace}/{slug}", NewHistoryHandler(s.log, s))
	mux.Handle("GET /repos", NewReposHandler(s.log, s))
	mux.Handle("GET /deployments", NewDeploymentsHandler(s.log, s))

	mux.Handle("GET /bitbucket-repos", NewWorkspaceReposHandler(s.log, workspaceView{s}))
	mux.Handle("GET /bitbucket-commits", NewCommitsHandler(s.log, workspaceView{s}))
	mux.Handle("GET /bitbucket-test", NewCredentialsHandler(s.log, workspaceView{s}))

	mux.Handle("GET /healthz", NewHealthHandler(s.log))

	return withLogging(s.log, mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
