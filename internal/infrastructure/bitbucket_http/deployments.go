package bitbucket_http

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/davarch/devboard/internal/domain"
	"go.uber.org/zap"
)

type commitRefDTO struct {
	Hash  string   `json:"hash"`
	Links linksDTO `json:"links"`
}

type releaseDTO struct {
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	CreatedOn string        `json:"created_on"`
	Commit    *commitRefDTO `json:"commit"`
}

type deploymentDTO struct {
	UUID           string `json:"uuid"`
	LastUpdateTime string `json:"last_update_time"`
	Environment    struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
	} `json:"environment"`
	State struct {
		Name   string `json:"name"`
		Status *struct {
			Name string `json:"name"`
		} `json:"status"`
		StartedOn   string `json:"started_on"`
		CompletedOn string `json:"completed_on"`
	} `json:"state"`
	Release    *releaseDTO `json:"release"`
	Deployable *releaseDTO `json:"deployable"`
}

type environmentDTO struct {
	UUID            string `json:"uuid"`
	Name            string `json:"name"`
	EnvironmentType struct {
		Name string `json:"name"`
	} `json:"environment_type"`
}

type commitDTO struct {
	Hash    string `json:"hash"`
	Date    string `json:"date"`
	Message string `json:"message"`
	Author  struct {
		Raw  string `json:"raw"`
		User *struct {
			DisplayName string `json:"display_name"`
		} `json:"user"`
	} `json:"author"`
	Links linksDTO `json:"links"`
}

// ListDeployments reads up to limit deployment records of a repository. Environments referenced
// only by uuid are resolved through the repository's environment list, fetched at most once.
func (c *Client) ListDeployments(ctx context.Context, repository string, limit int) ([]domain.Deployment, error) {
	params := url.Values{}
	params.Set("pagelen", strconv.Itoa(c.pageLen(limit)))
	first := fmt.Sprintf("%s/repositories/%s/deployments/?%s", c.baseURL, repository, params.Encode())
	source := "bitbucket " + repository
	log := c.log.With(zap.String("repository", repository))

	var dtos []deploymentDTO
	err := c.eachPage(ctx, source, first, func(raw json.RawMessage) bool {
		var d deploymentDTO
		if err := json.Unmarshal(raw, &d); err != nil {
			log.Warn("skipping deployment", zap.Error(err))
			return true
		}
		dtos = append(dtos, d)
		return limit <= 0 || len(dtos) < limit
	})
	if err != nil {
		return nil, err
	}

	var names map[string]string
	out := make([]domain.Deployment, 0, len(dtos))
	for _, d := range dtos {
		env := d.Environment.Name
		if env == "" && d.Environment.UUID != "" {
			if names == nil {
				if names, err = c.environmentNames(ctx, repository); err != nil {
					return nil, err
				}
			}
			env = names[d.Environment.UUID]
		}
		if env == "" {
			log.Warn("skipping deployment without environment", zap.String("uuid", d.UUID))
			continue
		}
		out = append(out, c.toDeployment(repository, env, d))
	}
	return out, nil
}

func (c *Client) environmentNames(ctx context.Context, repository string) (map[string]string, error) {
	first := fmt.Sprintf("%s/repositories/%s/environments/?pagelen=%d", c.baseURL, repository, MaxPageSize)

	names := make(map[string]string)
	err := c.eachPage(ctx, "bitbucket "+repository, first, func(raw json.RawMessage) bool {
		var e environmentDTO
		if json.Unmarshal(raw, &e) == nil && e.UUID != "" {
			names[e.UUID] = cmp.Or(e.Name, e.EnvironmentType.Name)
		}
		return true
	})
	return names, err
}

func (c *Client) toDeployment(repository, env string, d deploymentDTO) domain.Deployment {
	out := domain.Deployment{
		Repository:  repository,
		Environment: env,
		Origin:      domain.OriginDeployment,
	}

	status := d.State.Name
	if d.State.Status != nil && d.State.Status.Name != "" {
		status = d.State.Status.Name
	}
	out.Result = mapResult(status)

	stamps := []string{d.LastUpdateTime, d.State.CompletedOn, d.State.StartedOn}
	for _, rel := range []*releaseDTO{d.Release, d.Deployable} {
		if rel == nil {
			continue
		}
		out.Name = cmp.Or(out.Name, rel.Name)
		out.Link = cmp.Or(out.Link, rel.URL)
		if rel.Commit != nil {
			out.Commit = cmp.Or(out.Commit, rel.Commit.Hash)
		}
		stamps = append(stamps, rel.CreatedOn)
	}
	for _, s := range stamps {
		if t, err := parseTime(s); err == nil {
			out.UpdatedAt = t
			break
		}
	}

	if out.Link == "" {
		out.Link = fmt.Sprintf("%s/%s/deployments", c.webURL, repository)
	}
	return out
}

// CommitDetail reads one commit and the first tag pointing at it. A failed tag lookup only
// leaves Tag empty.
func (c *Client) CommitDetail(ctx context.Context, repository, hash string) (domain.Commit, error) {
	source := "bitbucket " + repository

	var dto commitDTO
	u := fmt.Sprintf("%s/repositories/%s/commit/%s", c.baseURL, repository, url.PathEscape(hash))
	if err := c.getJSON(ctx, source, u, &dto); err != nil {
		return domain.Commit{}, err
	}
	out := c.toCommit(repository, dto)

	params := url.Values{}
	params.Set("q", fmt.Sprintf("target.hash=%q", hash))
	params.Set("pagelen", "1")

	var tags struct {
		Values []struct {
			Name string `json:"name"`
		} `json:"values"`
	}
	u = fmt.Sprintf("%s/repositories/%s/refs/tags?%s", c.baseURL, repository, params.Encode())
	if err := c.getJSON(ctx, source, u, &tags); err != nil {
		c.log.Debug("tag lookup failed", zap.String("repository", repository), zap.String("commit", hash), zap.Error(err))
	} else if len(tags.Values) > 0 {
		out.Tag = tags.Values[0].Name
	}

	return out, nil
}

func (c *Client) toCommit(repository string, d commitDTO) domain.Commit {
	msg, _, _ := strings.Cut(strings.TrimSpace(d.Message), "\n")

	out := domain.Commit{
		Hash:    d.Hash,
		Message: strings.TrimSpace(msg),
		Author:  d.Author.Raw,
		Link:    href(d.Links),
	}
	if out.Author == "" && d.Author.User != nil {
		out.Author = d.Author.User.DisplayName
	}
	if t, err := parseTime(d.Date); err == nil {
		out.Date = t
	}
	if out.Link == "" && d.Hash != "" {
		out.Link = fmt.Sprintf("%s/%s/commits/%s", c.webURL, repository, d.Hash)
	}
	return out
}

// pageLen sizes a request for at most limit values.
func (c *Client) pageLen(limit int) int {
	if limit > 0 && limit < MaxPageSize {
		return limit
	}
	if limit >= MaxPageSize {
		return MaxPageSize
	}
	return c.pageSize
}
