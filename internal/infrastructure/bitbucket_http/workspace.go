package bitbucket_http

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/davarch/devboard/internal/domain"
	"go.uber.org/zap"
)

const repositoryPageSize = 50

type repositoryDTO struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	FullName  string `json:"full_name"`
	IsPrivate bool   `json:"is_private"`
	Workspace *struct {
		Slug string `json:"slug"`
	} `json:"workspace"`
	Links linksDTO `json:"links"`
}

type accountDTO struct {
	Username    string `json:"username"`
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
}

// ListRepositories walks every page of a workspace's repository listing.
func (c *Client) ListRepositories(ctx context.Context, workspace string) ([]domain.WorkspaceRepository, error) {
	first := fmt.Sprintf("%s/repositories/%s?pagelen=%d", c.baseURL, url.PathEscape(workspace), repositoryPageSize)

	out := []domain.WorkspaceRepository{}
	err := c.eachPage(ctx, "bitbucket workspace "+workspace, first, func(raw json.RawMessage) bool {
		var r repositoryDTO
		if err := json.Unmarshal(raw, &r); err != nil || r.Slug == "" {
			c.log.Warn("skipping repository", zap.String("workspace", workspace), zap.Error(err))
			return true
		}

		ws := workspace
		if r.Workspace != nil && r.Workspace.Slug != "" {
			ws = r.Workspace.Slug
		}
		link := href(r.Links)
		if link == "" {
			link = fmt.Sprintf("%s/%s/%s", c.webURL, ws, r.Slug)
		}

		out = append(out, domain.WorkspaceRepository{
			Workspace: ws,
			Slug:      r.Slug,
			Name:      cmp.Or(r.Name, r.Slug),
			Private:   r.IsPrivate,
			Link:      link,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListCommits returns the newest commits of a repository, at most limit or one page.
func (c *Client) ListCommits(ctx context.Context, repository string, limit int) ([]domain.Commit, error) {
	if limit <= 0 {
		limit = c.pageSize
	}
	params := url.Values{}
	params.Set("pagelen", strconv.Itoa(c.pageLen(limit)))
	first := fmt.Sprintf("%s/repositories/%s/commits?%s", c.baseURL, repository, params.Encode())

	out := []domain.Commit{}
	err := c.eachPage(ctx, "bitbucket "+repository, first, func(raw json.RawMessage) bool {
		var d commitDTO
		if err := json.Unmarshal(raw, &d); err != nil || d.Hash == "" {
			c.log.Warn("skipping commit", zap.String("repository", repository), zap.Error(err))
			return true
		}
		out = append(out, c.toCommit(repository, d))
		return len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentUser resolves the account the client authenticates as.
func (c *Client) CurrentUser(ctx context.Context) (domain.Account, error) {
	var a accountDTO
	if err := c.getJSON(ctx, "bitbucket user", c.baseURL+"/user", &a); err != nil {
		return domain.Account{}, err
	}
	return domain.Account{Username: cmp.Or(a.Username, a.Nickname), DisplayName: a.DisplayName}, nil
}
