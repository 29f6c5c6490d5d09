package application

import (
	"fmt"
	"slices"

	"github.com/davarch/devboard/internal/domain"
)

type View struct {
	Name  string
	Query domain.IssueQuery
	Order IssueOrder
	// Exclude drops records whose status category is listed, after normalization.
	Exclude []domain.StatusCategory
}

const (
	ViewInProgress     = "in-progress"
	ViewOpenByDue      = "open-by-due"
	ViewBacklog        = "backlog"
	ViewManagerMeeting = "manager-meeting"
)

var views = []View{
	{
		Name:  ViewInProgress,
		Query: domain.IssueQuery{Statuses: []string{"In Progress"}, OrderBy: "updated DESC"},
		Order: OrderUpdatedDesc,
	},
	{
		Name:    ViewOpenByDue,
		Query:   domain.IssueQuery{ExcludeStatusCategories: []string{"Done"}, OrderBy: "duedate ASC"},
		Order:   OrderDueDateAsc,
		Exclude: []domain.StatusCategory{domain.CategoryDone},
	},
	{
		Name:    ViewBacklog,
		Query:   domain.IssueQuery{StatusCategories: []string{"To Do"}, OrderBy: "updated DESC"},
		Order:   OrderUpdatedDesc,
		Exclude: []domain.StatusCategory{domain.CategoryDone, domain.CategoryInProgress},
	},
	{
		Name: ViewManagerMeeting,
		Query: domain.IssueQuery{
			ExcludeStatusCategories: []string{"Done"},
			Priorities:              []string{"Highest", "High"},
			OrderBy:                 "updated DESC",
		},
		Order:   OrderUpdatedDesc,
		Exclude: []domain.StatusCategory{domain.CategoryDone},
	},
}

func LookupView(name string) (View, error) {
	for _, v := range views {
		if v.Name == name {
			return v, nil
		}
	}
	return View{}, fmt.Errorf("%w: %q", domain.ErrUnknownView, name)
}

func ViewNames() []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Name
	}
	return out
}

func (v View) keep(rec domain.IssueRecord) bool {
	return !slices.Contains(v.Exclude, rec.Status)
}
