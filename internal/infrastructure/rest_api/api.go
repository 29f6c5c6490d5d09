package rest_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/davarch/devboard/internal/application"
	"github.com/davarch/devboard/internal/domain"
	"go.uber.org/zap"
)

const (
	codeNotFound    = "NOT_FOUND"
	codeBadRequest  = "BAD_REQUEST"
	codeUpstream    = "UPSTREAM_FAILED"
	codeInternal    = "INTERNAL"
	partialWarning  = "some sources failed; results are incomplete"
	contentTypeJSON = "application/json"
)

type IssueViewer interface {
	View(ctx context.Context, name string) (domain.IssueResult, error)
}

type PipelineReader interface {
	Dashboard(ctx context.Context) (domain.PipelineDashboard, error)
	History(ctx context.Context, repository string) ([]domain.PipelineRun, error)
	Repositories() []domain.RepositoryLink
}

type DeploymentReader interface {
	Deployments(ctx context.Context) (domain.DeploymentReport, error)
}

type WorkspaceReader interface {
	Repositories(ctx context.Context, workspace string) ([]domain.WorkspaceRepository, error)
	Commits(ctx context.Context, repository string, limit int) ([]domain.Commit, error)
	CheckCredentials(ctx context.Context) (domain.Account, error)
}

type ErrorResponse struct {
	Error         ErrorDetail            `json:"error"`
	FailedSources []domain.SourceFailure `json:"failed_sources,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type IssuesResponse struct {
	View string `json:"view"`
	domain.IssueResult
	Warning string `json:"warning,omitempty"`
}

type DashboardResponse struct {
	domain.PipelineDashboard
	Warning string `json:"warning,omitempty"`
}

type HistoryResponse struct {
	Repository string               `json:"repository"`
	Runs       []domain.PipelineRun `json:"runs"`
}

type DeploymentsResponse struct {
	domain.DeploymentReport
	Warning string `json:"warning,omitempty"`
}

type CommitsResponse struct {
	Repository string          `json:"repository"`
	Commits    []domain.Commit `json:"commits"`
}

type CredentialsResponse struct {
	OK bool `json:"ok"`
	domain.Account
}

func writeJSON(log *zap.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encoding problem", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(log *zap.Logger, w http.ResponseWriter, err error, failed []domain.SourceFailure) {
	resp := ErrorResponse{FailedSources: failed}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		resp.Error = ErrorDetail{Code: codeBadRequest, Message: err.Error()}
	case errors.Is(err, domain.ErrUnknownView), errors.Is(err, domain.ErrUnknownRepository):
		status = http.StatusNotFound
		resp.Error = ErrorDetail{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrAllSourcesFailed),
		errors.Is(err, domain.ErrAuthentication),
		errors.Is(err, domain.ErrRejected),
		errors.Is(err, domain.ErrTransientFetch),
		errors.Is(err, domain.ErrMalformedResponse),
		errors.Is(err, context.DeadlineExceeded):
		status = http.StatusBadGateway
		resp.Error = ErrorDetail{Code: codeUpstream, Message: err.Error()}
		if len(failed) == 0 {
			resp.FailedSources = []domain.SourceFailure{domain.NewSourceFailure("", err)}
		}
	default:
		resp.Error = ErrorDetail{Code: codeInternal, Message: "internal error"}
	}

	log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(log, w, status, resp)
}

func warning(failed []domain.SourceFailure) string {
	if len(failed) == 0 {
		return ""
	}
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Source
	}
	return fmt.Sprintf("%s: %s", partialWarning, strings.Join(names, ", "))
}

// NewIssuesHandler serves a named view. A fixed view name turns it into an alias route.
func NewIssuesHandler(log *zap.Logger, v IssueViewer, fixedView string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := fixedView
		if name == "" {
			name = r.PathValue("view")
		}

		res, err := v.View(r.Context(), name)
		if err != nil {
			writeError(log, w, err, res.Failed)
			return
		}

		writeJSON(log, w, http.StatusOK, IssuesResponse{View: name, IssueResult: res, Warning: warning(res.Failed)})
	}
}

func NewDashboardHandler(log *zap.Logger, p PipelineReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dash, err := p.Dashboard(r.Context())
		if err != nil {
			writeError(log, w, err, dash.Failed)
			return
		}

		writeJSON(log, w, http.StatusOK, DashboardResponse{PipelineDashboard: dash, Warning: warning(dash.Failed)})
	}
}

func NewHistoryHandler(log *zap.Logger, p PipelineReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo := r.PathValue("workspace") + "/" + r.PathValue("slug")

		runs, err := p.History(r.Context(), repo)
		if err != nil {
			writeError(log, w, err, nil)
			return
		}

		writeJSON(log, w, http.StatusOK, HistoryResponse{Repository: repo, Runs: runs})
	}
}

func NewReposHandler(log *zap.Logger, p PipelineReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(log, w, http.StatusOK, p.Repositories())
	}
}

func NewDeploymentsHandler(log *zap.Logger, d DeploymentReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := d.Deployments(r.Context())
		if err != nil {
			writeError(log, w, err, rep.Failed)
			return
		}

		writeJSON(log, w, http.StatusOK, DeploymentsResponse{DeploymentReport: rep, Warning: warning(rep.Failed)})
	}
}

// NewWorkspaceReposHandler lists any workspace's repositories: GET ?workspace=<ws>.
func NewWorkspaceReposHandler(log *zap.Logger, ws WorkspaceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repos, err := ws.Repositories(r.Context(), r.URL.Query().Get("workspace"))
		if err != nil {
			writeError(log, w, err, nil)
			return
		}

		writeJSON(log, w, http.StatusOK, repos)
	}
}

// NewCommitsHandler serves recent commits: GET ?workspace=<ws>&repo=<slug>&limit=<n>.
func NewCommitsHandler(log *zap.Logger, ws WorkspaceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		repo := q.Get("workspace") + "/" + q.Get("repo")

		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(log, w, fmt.Errorf("%w: limit %q", domain.ErrInvalidInput, raw), nil)
				return
			}
			limit = n
		}

		commits, err := ws.Commits(r.Context(), repo, limit)
		if err != nil {
			writeError(log, w, err, nil)
			return
		}

		writeJSON(log, w, http.StatusOK, CommitsResponse{Repository: repo, Commits: commits})
	}
}

func NewCredentialsHandler(log *zap.Logger, ws WorkspaceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := ws.CheckCredentials(r.Context())
		if err != nil {
			writeError(log, w, err, nil)
			return
		}

		writeJSON(log, w, http.StatusOK, CredentialsResponse{OK: true, Account: acc})
	}
}

func NewHealthHandler(log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(log, w, http.StatusOK, map[string]any{"status": "ok", "views": application.ViewNames()})
	}
}
