package bitbucket_http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/devboard/internal/domain"
	"github.com/davarch/devboard/internal/infrastructure/httpclient"
	"go.uber.org/zap"
)

const (
	MaxPageSize     = 100
	defaultPageSize = 10
	DefaultBaseURL  = "https://api.bitbucket.org/2.0"
	DefaultWebURL   = "https://bitbucket.org"
)

type Options struct {
	BaseURL  string
	WebURL   string
	Email    string
	Token    string
	Timeout  time.Duration
	PageSize int
	Retry    httpclient.RetryPolicy
}

type Client struct {
	log      *zap.Logger
	baseURL  string
	webURL   string
	email    string
	token    string
	hc       *http.Client
	pageSize int
	retry    httpclient.RetryPolicy
}

func New(log *zap.Logger, opt Options) *Client {
	base := opt.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	web := opt.WebURL
	if web == "" {
		web = DefaultWebURL
	}

	pageSize := opt.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return &Client{
		log:      log,
		baseURL:  strings.TrimRight(base, "/"),
		webURL:   strings.TrimRight(web, "/"),
		email:    opt.Email,
		token:    opt.Token,
		hc:       httpclient.New(opt.Timeout),
		pageSize: pageSize,
		retry:    opt.Retry,
	}
}

type pageDTO struct {
	Values []json.RawMessage `json:"values"`
	Next   string            `json:"next"`
}

type hrefDTO struct {
	Href string `json:"href"`
}

type linksDTO struct {
	HTML *hrefDTO `json:"html"`
	Self *hrefDTO `json:"self"`
}

type pipelineDTO struct {
	UUID        string  `json:"uuid"`
	BuildNumber int     `json:"build_number"`
	CreatedOn   string  `json:"created_on"`
	CompletedOn *string `json:"completed_on"`
	State       struct {
		Name   string `json:"name"`
		Type   string `json:"type"`
		Result *struct {
			Name string `json:"name"`
		} `json:"result"`
	} `json:"state"`
	Target struct {
		Type    string `json:"type"`
		RefType string `json:"ref_type"`
		RefName string `json:"ref_name"`
		Commit  *struct {
			Hash  string   `json:"hash"`
			Links linksDTO `json:"links"`
		} `json:"commit"`
	} `json:"target"`
	Links linksDTO `json:"links"`
}

// ListRuns follows next links until the history is exhausted or the query bound is met.
// Runs are returned in source order. Malformed entries are skipped with a warning.
func (c *Client) ListRuns(ctx context.Context, repository string, q domain.RunQuery) ([]domain.PipelineRun, error) {
	params := url.Values{}
	params.Set("sort", "-created_on")
	params.Set("pagelen", strconv.Itoa(c.pageSize))
	if q.Selector != "" {
		params.Set("target.selector.pattern", q.Selector)
	}

	first := fmt.Sprintf("%s/repositories/%s/pipelines/?%s", c.baseURL, repository, params.Encode())
	log := c.log.With(zap.String("repository", repository), zap.String("selector", q.Selector))

	var out []domain.PipelineRun
	err := c.eachPage(ctx, "bitbucket "+repository, first, func(raw json.RawMessage) bool {
		run, err := c.toRun(repository, raw)
		if err != nil {
			log.Warn("skipping pipeline run", zap.Error(err))
			return true
		}

		if !q.Since.IsZero() && run.CreatedOn.Before(q.Since) {
			return false
		}

		out = append(out, run)
		return q.MaxRuns <= 0 || len(out) < q.MaxRuns
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// eachPage walks a paginated collection from first, handing every value to fn until fn
// returns false or the next links run out.
func (c *Client) eachPage(ctx context.Context, source, first string, fn func(json.RawMessage) bool) error {
	for next := first; next != ""; {
		var page pageDTO
		if err := c.getJSON(ctx, source, next, &page); err != nil {
			return err
		}

		for _, raw := range page.Values {
			if !fn(raw) {
				return nil
			}
		}

		next = page.Next
	}
	return nil
}

// getJSON decodes one GET response into out, retrying transient failures.
func (c *Client) getJSON(ctx context.Context, source, u string, out any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(c.email, c.token)

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if err := httpclient.CheckResponse(ctx, source, resp); err != nil {
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: %w: %v", source, domain.ErrMalformedResponse, err))
		}
		return nil
	}

	return httpclient.Retry(ctx, c.retry, op)
}

func (c *Client) toRun(repository string, raw json.RawMessage) (domain.PipelineRun, error) {
	var p pipelineDTO
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if p.UUID == "" {
		return domain.PipelineRun{}, fmt.Errorf("%w: pipeline without uuid", domain.ErrMalformedResponse)
	}

	created, err := parseTime(p.CreatedOn)
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("%w: pipeline %s: created_on: %v", domain.ErrMalformedResponse, p.UUID, err)
	}

	var completed *time.Time
	if p.CompletedOn != nil && *p.CompletedOn != "" {
		t, err := parseTime(*p.CompletedOn)
		if err != nil {
			return domain.PipelineRun{}, fmt.Errorf("%w: pipeline %s: completed_on: %v", domain.ErrMalformedResponse, p.UUID, err)
		}
		completed = &t
	}

	resultName := p.State.Name
	if p.State.Result != nil && p.State.Result.Name != "" {
		resultName = p.State.Result.Name
	}
	if resultName == "" {
		resultName = p.State.Type
	}
	result := mapResult(resultName)

	if completed == nil && result.IsTerminal() && result != domain.ResultOther {
		return domain.PipelineRun{}, fmt.Errorf("%w: pipeline %s: %s without completed_on", domain.ErrMalformedResponse, p.UUID, result)
	}

	run := domain.PipelineRun{
		UUID:        p.UUID,
		BuildNumber: p.BuildNumber,
		Repository:  repository,
		Ref:         p.Target.RefName,
		RefKind:     mapRefKind(p.Target.RefType),
		Result:      result,
		StateName:   p.State.Name,
		CreatedOn:   created,
		CompletedAt: completed,
	}

	if p.Target.Commit != nil {
		run.CommitHash = p.Target.Commit.Hash
		run.CommitLink = href(p.Target.Commit.Links)
		if run.CommitLink == "" && run.CommitHash != "" {
			run.CommitLink = fmt.Sprintf("%s/%s/commits/%s", c.webURL, repository, run.CommitHash)
		}
	}

	run.PipelineLink = href(p.Links)
	if run.PipelineLink == "" && p.BuildNumber > 0 {
		run.PipelineLink = fmt.Sprintf("%s/%s/pipelines/results/%d", c.webURL, repository, p.BuildNumber)
	}

	return run, nil
}

func href(l linksDTO) string {
	if l.HTML != nil && l.HTML.Href != "" {
		return l.HTML.Href
	}
	if l.Self != nil {
		return l.Self.Href
	}
	return ""
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func mapRefKind(s string) domain.RefKind {
	switch strings.ToLower(s) {
	case "branch", "named_branch":
		return domain.RefBranch
	case "tag", "annotated_tag":
		return domain.RefTag
	default:
		return domain.RefOther
	}
}

func mapResult(s string) domain.RunResult {
	switch strings.ToUpper(s) {
	case "SUCCESSFUL", "SUCCESS":
		return domain.ResultSuccessful
	case "COMPLETED":
		return domain.ResultCompleted
	case "FAILED":
		return domain.ResultFailed
	case "ERROR":
		return domain.ResultError
	case "FAILED_WITH_ERRORS":
		return domain.ResultFailedWithErrors
	case "STOPPED":
		return domain.ResultStopped
	case "CANCELLED", "CANCELED":
		return domain.ResultCancelled
	case "EXPIRED":
		return domain.ResultExpired
	case "IN_PROGRESS", "RUNNING", "BUILDING":
		return domain.ResultInProgress
	case "PENDING", "PAUSED", "HALTED":
		return domain.ResultPending
	default:
		return domain.ResultOther
	}
}
