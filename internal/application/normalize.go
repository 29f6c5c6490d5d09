package application

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/davarch/devboard/internal/domain"
)

const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

type issuePayload struct {
	Key    string `json:"key"`
	Fields *struct {
		Summary  string  `json:"summary"`
		Updated  string  `json:"updated"`
		DueDate  *string `json:"duedate"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority"`
		Assignee *struct {
			DisplayName string            `json:"displayName"`
			AvatarURLs  map[string]string `json:"avatarUrls"`
		} `json:"assignee"`
		Status *struct {
			StatusCategory *struct {
				Key string `json:"key"`
			} `json:"statusCategory"`
		} `json:"status"`
		Project *struct {
			Key string `json:"key"`
		} `json:"project"`
	} `json:"fields"`
}

// NormalizeIssue validates one raw payload and maps it to the canonical record.
// Missing key, fields or updated timestamp are malformed; optional fields become absent.
func NormalizeIssue(inst domain.InstanceConfig, raw domain.RawIssue) (domain.IssueRecord, error) {
	var p issuePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.IssueRecord{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if p.Key == "" {
		return domain.IssueRecord{}, fmt.Errorf("%w: issue without key", domain.ErrMalformedResponse)
	}
	if p.Fields == nil {
		return domain.IssueRecord{}, fmt.Errorf("%w: issue %s: no fields", domain.ErrMalformedResponse, p.Key)
	}

	updated, err := parseJiraTime(p.Fields.Updated)
	if err != nil {
		return domain.IssueRecord{}, fmt.Errorf("%w: issue %s: updated: %v", domain.ErrMalformedResponse, p.Key, err)
	}

	rec := domain.IssueRecord{
		Instance: inst.Name,
		Key:      p.Key,
		Title:    p.Fields.Summary,
		Link:     inst.BrowseURL(p.Key),
		Priority: domain.PriorityNone,
		Updated:  updated,
	}

	if p.Fields.DueDate != nil {
		if d, err := domain.ParseDate(*p.Fields.DueDate); err == nil {
			rec.DueDate = &d
		}
	}
	if p.Fields.Priority != nil {
		rec.Priority = mapPriority(p.Fields.Priority.Name)
	}
	if a := p.Fields.Assignee; a != nil {
		rec.Assignee = a.DisplayName
		rec.AvatarURL = a.AvatarURLs["32x32"]
	}
	if s := p.Fields.Status; s != nil && s.StatusCategory != nil {
		rec.Status = domain.StatusCategory(s.StatusCategory.Key)
	}
	if p.Fields.Project != nil {
		rec.Project = p.Fields.Project.Key
	}

	return rec, nil
}

func parseJiraTime(s string) (time.Time, error) {
	if t, err := time.Parse(jiraTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func mapPriority(name string) domain.Priority {
	switch strings.ToLower(name) {
	case "highest", "high", "critical", "blocker":
		return domain.PriorityHigh
	case "medium":
		return domain.PriorityMedium
	case "low", "lowest", "trivial", "minor":
		return domain.PriorityLow
	default:
		return domain.PriorityNone
	}
}
