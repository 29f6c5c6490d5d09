package domain

import (
	"encoding/json"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
	PriorityNone   Priority = "None"
)

type StatusCategory string

const (
	CategoryToDo       StatusCategory = "new"
	CategoryInProgress StatusCategory = "indeterminate"
	CategoryDone       StatusCategory = "done"
	CategoryUnknown    StatusCategory = ""
)

// Date is a calendar date without time of day. It marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

const DateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type IssueRecord struct {
	Instance  string         `json:"instance"`
	Key       string         `json:"ticket"`
	Project   string         `json:"project,omitempty"`
	Title     string         `json:"title"`
	Link      string         `json:"link"`
	Assignee  string         `json:"assignee,omitempty"`
	AvatarURL string         `json:"avatarUrl,omitempty"`
	Priority  Priority       `json:"priority"`
	DueDate   *Date          `json:"dueDate"`
	Updated   time.Time      `json:"updated"`
	Status    StatusCategory `json:"-"`
}

// IssueQuery is the structured filter handed to an issue search source.
// Empty fields add no clause.
type IssueQuery struct {
	Statuses                []string
	StatusCategories        []string
	ExcludeStatusCategories []string
	Priorities              []string
	Assignees               []string
	DueBefore               *Date
	OrderBy                 string
}

// RawIssue is one undecoded issue payload as returned by a search source.
type RawIssue = json.RawMessage

type RefKind string

const (
	RefBranch RefKind = "branch"
	RefTag    RefKind = "tag"
	RefOther  RefKind = ""
)

type RunResult string

const (
	ResultSuccessful       RunResult = "SUCCESSFUL"
	ResultCompleted        RunResult = "COMPLETED"
	ResultFailed           RunResult = "FAILED"
	ResultError            RunResult = "ERROR"
	ResultFailedWithErrors RunResult = "FAILED_WITH_ERRORS"
	ResultStopped          RunResult = "STOPPED"
	ResultCancelled        RunResult = "CANCELLED"
	ResultExpired          RunResult = "EXPIRED"
	ResultInProgress       RunResult = "IN_PROGRESS"
	ResultPending          RunResult = "PENDING"
	ResultOther            RunResult = "OTHER"
)

func (r RunResult) IsSuccess() bool {
	return r == ResultSuccessful || r == ResultCompleted
}

func (r RunResult) IsTerminal() bool {
	switch r {
	case ResultInProgress, ResultPending:
		return false
	}
	return true
}

type PipelineRun struct {
	UUID         string     `json:"uuid"`
	BuildNumber  int        `json:"build_number,omitempty"`
	Repository   string     `json:"repository"`
	Ref          string     `json:"ref_name"`
	RefKind      RefKind    `json:"ref_kind,omitempty"`
	Result       RunResult  `json:"result"`
	StateName    string     `json:"state_name,omitempty"`
	CommitHash   string     `json:"commit"`
	CommitLink   string     `json:"commit_link,omitempty"`
	PipelineLink string     `json:"pipeline_link,omitempty"`
	CreatedOn    time.Time  `json:"created_on"`
	CompletedAt  *time.Time `json:"completed_on"`
}

// RunQuery bounds one pipeline history fetch. Zero values mean unbounded.
type RunQuery struct {
	Selector string
	MaxRuns  int
	Since    time.Time
}

type MatchMode string

const (
	MatchGlob   MatchMode = "glob"
	MatchExact  MatchMode = "exact"
	MatchPrefix MatchMode = "prefix"
	MatchRegex  MatchMode = "regex"
)

type EnvironmentPattern struct {
	Category string
	Pattern  string
	Mode     MatchMode
	// RefKind restricts the pattern to branches or tags; empty matches both.
	RefKind  RefKind
	Selector string
}

type RepositoryConfig struct {
	FullName     string
	Environments []EnvironmentPattern
}

type CategoryRuns struct {
	Runs             []PipelineRun `json:"runs"`
	LatestSuccessful *PipelineRun  `json:"latest_successful,omitempty"`
}

type PipelineDashboard struct {
	Repositories map[string]map[string]CategoryRuns `json:"repositories"`
	// Order lists repositories in configuration order.
	Order      []string        `json:"order"`
	Categories []string        `json:"categories"`
	Failed     []SourceFailure `json:"failed_sources,omitempty"`
	Sources    int             `json:"sources"`
}

type IssueResult struct {
	Issues  []IssueRecord   `json:"issues"`
	Failed  []SourceFailure `json:"failed_sources,omitempty"`
	Sources int             `json:"sources"`
}

func (r IssueResult) Partial() bool { return len(r.Failed) > 0 && len(r.Failed) < r.Sources }

func (d PipelineDashboard) Partial() bool { return len(d.Failed) > 0 && len(d.Failed) < d.Sources }

type RepositoryLink struct {
	Workspace string `json:"workspace"`
	Slug      string `json:"slug"`
	Full      string `json:"full"`
	Link      string `json:"link"`
}

type SnapshotEntry struct {
	Repository string    `json:"repository"`
	Category   string    `json:"category"`
	Ref        string    `json:"ref"`
	Result     RunResult `json:"result"`
	Commit     string    `json:"commit"`
	URL        string    `json:"url"`
}

type Snapshot struct {
	Entries   []SnapshotEntry `json:"entries"`
	Retrieved int64           `json:"retrieved"`
}

// Deployment is the latest release of a repository into one environment. Origin is
// "pipeline" when it was derived from pipeline history rather than a deployment record.
type Deployment struct {
	Repository  string    `json:"repository"`
	Environment string    `json:"environment"`
	Name        string    `json:"name,omitempty"`
	Result      RunResult `json:"result"`
	Commit      string    `json:"commit"`
	Message     string    `json:"message,omitempty"`
	Tag         string    `json:"tag,omitempty"`
	UpdatedAt   time.Time `json:"update_time"`
	Link        string    `json:"link,omitempty"`
	Origin      string    `json:"origin"`
}

const (
	OriginDeployment = "deployment"
	OriginPipeline   = "pipeline"
)

type DeploymentReport struct {
	Deployments []Deployment    `json:"deployments"`
	Failed      []SourceFailure `json:"failed_sources,omitempty"`
	Sources     int             `json:"sources"`
}

func (r DeploymentReport) Partial() bool { return len(r.Failed) > 0 && len(r.Failed) < r.Sources }

type Commit struct {
	Hash    string    `json:"hash"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Link    string    `json:"link,omitempty"`
	Tag     string    `json:"tag,omitempty"`
}

type WorkspaceRepository struct {
	Workspace string `json:"workspace"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Private   bool   `json:"is_private"`
	Link      string `json:"link"`
}

type Account struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}
