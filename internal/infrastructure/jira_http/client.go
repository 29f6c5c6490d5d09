package jira_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/devboard/internal/domain"
	"github.com/davarch/devboard/internal/infrastructure/httpclient"
	"go.uber.org/zap"
)

const (
	MaxPageSize      = 100
	defaultPageSize  = 50
	defaultMaxIssues = 1000
)

var searchFields = []string{"summary", "status", "assignee", "priority", "duedate", "updated", "project"}

type Options struct {
	Timeout   time.Duration
	PageSize  int
	MaxIssues int
	Retry     httpclient.RetryPolicy
}

type Client struct {
	log       *zap.Logger
	inst      domain.InstanceConfig
	baseURL   string
	hc        *http.Client
	pageSize  int
	maxIssues int
	retry     httpclient.RetryPolicy
}

func New(log *zap.Logger, inst domain.InstanceConfig, opt Options) *Client {
	pageSize := opt.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	maxIssues := opt.MaxIssues
	if maxIssues <= 0 {
		maxIssues = defaultMaxIssues
	}

	return &Client{
		log:       log.With(zap.String("instance", inst.Name)),
		inst:      inst,
		baseURL:   strings.TrimRight(inst.BaseURL, "/"),
		hc:        httpclient.New(opt.Timeout),
		pageSize:  pageSize,
		maxIssues: maxIssues,
		retry:     opt.Retry,
	}
}

func (c *Client) Instance() domain.InstanceConfig { return c.inst }

type searchRequest struct {
	JQL           string   `json:"jql"`
	MaxResults    int      `json:"maxResults"`
	Fields        []string `json:"fields"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type searchResponse struct {
	Issues        []json.RawMessage `json:"issues"`
	NextPageToken string            `json:"nextPageToken"`
	IsLast        bool              `json:"isLast"`
}

// Search pages through the search endpoint until the source reports no further results
// or the issue cap is reached. Pages are concatenated in the order received.
func (c *Client) Search(ctx context.Context, q domain.IssueQuery) ([]domain.RawIssue, error) {
	jql := BuildJQL(q, c.inst.AssigneeAllowList)
	c.log.Debug("jira search", zap.String("jql", jql))

	var (
		all   []domain.RawIssue
		token string
	)

	for {
		page, err := c.page(ctx, jql, token)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Issues...)

		if page.IsLast || page.NextPageToken == "" || len(page.Issues) == 0 {
			break
		}
		if len(all) >= c.maxIssues {
			c.log.Warn("jira result truncated", zap.Int("cap", c.maxIssues))
			break
		}
		token = page.NextPageToken
	}

	if len(all) > c.maxIssues {
		all = all[:c.maxIssues]
	}

	c.log.Debug("jira issues fetched", zap.Int("count", len(all)))
	return all, nil
}

func (c *Client) page(ctx context.Context, jql, token string) (searchResponse, error) {
	var out searchResponse

	body, err := json.Marshal(searchRequest{
		JQL:           jql,
		MaxResults:    c.pageSize,
		Fields:        searchFields,
		NextPageToken: token,
	})
	if err != nil {
		return out, fmt.Errorf("marshal jira request: %w", err)
	}

	source := "jira " + c.inst.Name

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/api/3/search/jql", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(c.inst.AccountEmail, c.inst.APIToken)

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if err := httpclient.CheckResponse(ctx, source, resp); err != nil {
			return err
		}

		out = searchResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: %w: %v", source, domain.ErrMalformedResponse, err))
		}
		return nil
	}

	if err := httpclient.Retry(ctx, c.retry, op); err != nil {
		return searchResponse{}, err
	}
	return out, nil
}

// BuildJQL renders q as JQL. A non-empty allow-list becomes an OR-clause over assignee emails.
func BuildJQL(q domain.IssueQuery, allowList []string) string {
	var clauses []string

	if len(q.Statuses) > 0 {
		clauses = append(clauses, inClause("status", "in", q.Statuses))
	}
	if len(q.StatusCategories) > 0 {
		clauses = append(clauses, inClause("statusCategory", "in", q.StatusCategories))
	}
	if len(q.ExcludeStatusCategories) > 0 {
		clauses = append(clauses, inClause("statusCategory", "not in", q.ExcludeStatusCategories))
	}
	if len(q.Priorities) > 0 {
		clauses = append(clauses, inClause("priority", "in", q.Priorities))
	}
	if len(q.Assignees) > 0 {
		clauses = append(clauses, orClause("assignee", q.Assignees))
	}
	if len(allowList) > 0 {
		clauses = append(clauses, orClause("assignee", allowList))
	}
	if q.DueBefore != nil {
		clauses = append(clauses, fmt.Sprintf("duedate <= %q", q.DueBefore.String()))
	}

	jql := strings.Join(clauses, " AND ")
	if q.OrderBy != "" {
		if jql != "" {
			jql += " "
		}
		jql += "ORDER BY " + q.OrderBy
	}
	return jql
}

func inClause(field, op string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("%s %s (%s)", field, op, strings.Join(quoted, ", "))
}

func orClause(field string, values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%s = %q", field, v)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
