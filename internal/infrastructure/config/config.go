package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/davarch/devboard/internal/domain"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Instance struct {
	Name      string   `yaml:"name"`
	BaseURL   string   `yaml:"base_url"`
	Email     string   `yaml:"email"`
	APIToken  string   `yaml:"api_token"`
	Assignees []string `yaml:"assignees,omitempty"`
}

type Environment struct {
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`
	Match    string `yaml:"match,omitempty"`
	RefKind  string `yaml:"ref_kind,omitempty"`
	Selector string `yaml:"selector,omitempty"`
}

type Repository struct {
	FullName     string        `yaml:"full_name"`
	Enabled      bool          `yaml:"enabled"`
	Environments []Environment `yaml:"environments,omitempty"`
}

// UnmarshalYAML treats a repository without an explicit enabled flag as enabled.
func (r *Repository) UnmarshalYAML(n *yaml.Node) error {
	type plain Repository
	p := plain{Enabled: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*r = Repository(p)
	return nil
}

type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	HTTP struct {
		Address      string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
		ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"60s"`
	} `yaml:"http"`

	Jira struct {
		Timeout   time.Duration `yaml:"timeout" env:"JIRA_TIMEOUT" env-default:"15s"`
		PageSize  int           `yaml:"page_size" env:"JIRA_PAGE_SIZE" env-default:"50"`
		MaxIssues int           `yaml:"max_issues" env:"JIRA_MAX_ISSUES" env-default:"1000"`
		Instances []Instance    `yaml:"instances"`
	} `yaml:"jira"`

	Bitbucket struct {
		BaseURL         string        `yaml:"base_url" env:"BITBUCKET_BASE_URL" env-default:"https://api.bitbucket.org/2.0"`
		WebURL          string        `yaml:"web_url" env:"BITBUCKET_WEB_URL" env-default:"https://bitbucket.org"`
		Email           string        `yaml:"email" env:"BITBUCKET_EMAIL"`
		Token           string        `yaml:"token" env:"BITBUCKET_API_TOKEN"`
		Timeout         time.Duration `yaml:"timeout" env:"BITBUCKET_TIMEOUT" env-default:"15s"`
		PageSize        int           `yaml:"page_size" env:"BITBUCKET_PAGE_SIZE" env-default:"50"`
		MaxRuns         int           `yaml:"max_runs" env:"BITBUCKET_MAX_RUNS" env-default:"100"`
		MaxDeployments  int           `yaml:"max_deployments" env:"BITBUCKET_MAX_DEPLOYMENTS" env-default:"20"`
		Lookback        time.Duration `yaml:"lookback" env:"BITBUCKET_LOOKBACK"`
		UnionCategories bool          `yaml:"union_categories" env:"BITBUCKET_UNION_CATEGORIES"`
		Environments    []Environment `yaml:"environments"`
		Repositories    []Repository  `yaml:"repositories"`
	} `yaml:"bitbucket"`

	Fetch struct {
		Timeout        time.Duration `yaml:"timeout" env:"FETCH_TIMEOUT" env-default:"20s"`
		Concurrency    int           `yaml:"concurrency" env:"FETCH_CONCURRENCY" env-default:"8"`
		Retries        uint64        `yaml:"retries" env:"FETCH_RETRIES" env-default:"3"`
		InitialBackoff time.Duration `yaml:"initial_backoff" env:"FETCH_INITIAL_BACKOFF" env-default:"300ms"`
		MaxBackoff     time.Duration `yaml:"max_backoff" env:"FETCH_MAX_BACKOFF" env-default:"2s"`
	} `yaml:"fetch"`

	Watch struct {
		Interval     time.Duration `yaml:"interval" env:"WATCH_INTERVAL" env-default:"30s"`
		PauseFile    string        `yaml:"pause_file" env:"WATCH_PAUSE_FILE" env-default:"~/.cache/devboard_paused"`
		SnapshotPath string        `yaml:"snapshot_path" env:"WATCH_SNAPSHOT_PATH" env-default:"~/.cache/devboard_status.json"`
		Notify       bool          `yaml:"notify" env:"WATCH_NOTIFY"`
	} `yaml:"watch"`
}

// DefaultEnvironments applies to repositories that declare no table of their own.
var DefaultEnvironments = []Environment{
	{Category: "production", Pattern: "main", Match: "exact", RefKind: "branch"},
	{Category: "production", Pattern: "master", Match: "exact", RefKind: "branch"},
	{Category: "staging", Pattern: "staging", Match: "exact", RefKind: "branch"},
	{Category: "release", Pattern: "release/**", RefKind: "branch"},
	{Category: "tag", Pattern: "v*", RefKind: "tag"},
}

// Load reads an optional .env file, the YAML file at path, then the environment.
// A missing file is not an error; an unreadable or invalid one is.
func Load(path string) (Config, error) {
	var c Config
	c.Watch.Notify = true

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("%w: .env: %v", domain.ErrConfiguration, err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return c, fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, path, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return c, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
	}

	if err := cleanenv.ReadEnv(&c); err != nil {
		return c, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	applyInstanceEnv(&c)
	applyBitbucketEnv(&c)

	c.Watch.PauseFile = expandHome(c.Watch.PauseFile)
	c.Watch.SnapshotPath = expandHome(c.Watch.SnapshotPath)

	return c, nil
}

// applyInstanceEnv honours JIRA_INSTANCES=a,b with A_JIRA_* variables, or the
// single JIRA_BASE_URL/JIRA_EMAIL/JIRA_API_TOKEN triple as instance "default".
func applyInstanceEnv(c *Config) {
	if names := splitList(os.Getenv("JIRA_INSTANCES")); len(names) > 0 {
		insts := make([]Instance, 0, len(names))
		for _, name := range names {
			pfx := strings.ToUpper(name) + "_JIRA_"
			insts = append(insts, Instance{
				Name:      name,
				BaseURL:   os.Getenv(pfx + "BASE_URL"),
				Email:     os.Getenv(pfx + "EMAIL"),
				APIToken:  os.Getenv(pfx + "API_TOKEN"),
				Assignees: splitList(os.Getenv(pfx + "ASSIGNEES")),
			})
		}
		c.Jira.Instances = insts
		return
	}

	if base := os.Getenv("JIRA_BASE_URL"); base != "" {
		c.Jira.Instances = []Instance{{
			Name:      "default",
			BaseURL:   base,
			Email:     os.Getenv("JIRA_EMAIL"),
			APIToken:  os.Getenv("JIRA_API_TOKEN"),
			Assignees: splitList(os.Getenv("JIRA_ASSIGNEES")),
		}}
	}
}

func applyBitbucketEnv(c *Config) {
	if repos := splitList(os.Getenv("BITBUCKET_REPOS")); len(repos) > 0 {
		c.Bitbucket.Repositories = make([]Repository, 0, len(repos))
		for _, r := range repos {
			c.Bitbucket.Repositories = append(c.Bitbucket.Repositories, Repository{FullName: r, Enabled: true})
		}
	}

	if c.Bitbucket.Email == "" {
		c.Bitbucket.Email = os.Getenv("JIRA_EMAIL")
	}
	if c.Bitbucket.Token == "" {
		c.Bitbucket.Token = os.Getenv("JIRA_API_TOKEN")
	}
}

func (c Config) Validate() error {
	var errs []error

	if len(c.Jira.Instances) == 0 && len(c.Bitbucket.Repositories) == 0 {
		errs = append(errs, errors.New("no jira instances and no bitbucket repositories configured"))
	}
	if _, err := c.InstanceRegistry(); err != nil {
		errs = append(errs, err)
	}
	if c.Jira.PageSize > 100 {
		errs = append(errs, fmt.Errorf("jira.page_size %d exceeds 100", c.Jira.PageSize))
	}
	if c.Bitbucket.PageSize > 100 {
		errs = append(errs, fmt.Errorf("bitbucket.page_size %d exceeds 100", c.Bitbucket.PageSize))
	}

	seen := map[string]struct{}{}
	for _, r := range c.Bitbucket.Repositories {
		ws, slug, ok := strings.Cut(r.FullName, "/")
		if !ok || ws == "" || slug == "" || strings.Contains(slug, "/") {
			errs = append(errs, fmt.Errorf("repository %q: expected workspace/slug", r.FullName))
		}
		if _, dup := seen[r.FullName]; dup {
			errs = append(errs, fmt.Errorf("repository %q listed twice", r.FullName))
		}
		seen[r.FullName] = struct{}{}
	}
	if len(c.EnabledRepositories()) > 0 && c.Bitbucket.Token == "" {
		errs = append(errs, errors.New("bitbucket token is required (BITBUCKET_API_TOKEN or JIRA_API_TOKEN)"))
	}

	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, errors.New("watch.interval must be positive"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
}

func (c Config) InstanceRegistry() (*domain.InstanceRegistry, error) {
	insts := make([]domain.InstanceConfig, 0, len(c.Jira.Instances))
	for _, in := range c.Jira.Instances {
		insts = append(insts, domain.InstanceConfig{
			Name:              in.Name,
			BaseURL:           in.BaseURL,
			AccountEmail:      in.Email,
			APIToken:          in.APIToken,
			AssigneeAllowList: in.Assignees,
		})
	}
	return domain.NewInstanceRegistry(insts...)
}

func (c Config) EnabledRepositories() []Repository {
	var out []Repository
	for _, r := range c.Bitbucket.Repositories {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// RepositoryConfigs converts enabled repositories into classifier tables, falling back to
// bitbucket.environments and then to DefaultEnvironments.
func (c Config) RepositoryConfigs() []domain.RepositoryConfig {
	fallback := c.Bitbucket.Environments
	if len(fallback) == 0 {
		fallback = DefaultEnvironments
	}

	enabled := c.EnabledRepositories()
	out := make([]domain.RepositoryConfig, 0, len(enabled))
	for _, r := range enabled {
		envs := r.Environments
		if len(envs) == 0 {
			envs = fallback
		}
		table := make([]domain.EnvironmentPattern, 0, len(envs))
		for _, e := range envs {
			table = append(table, domain.EnvironmentPattern{
				Category: e.Category,
				Pattern:  e.Pattern,
				Mode:     domain.MatchMode(e.Match),
				RefKind:  domain.RefKind(e.RefKind),
				Selector: e.Selector,
			})
		}
		out = append(out, domain.RepositoryConfig{FullName: r.FullName, Environments: table})
	}
	return out
}

// SetRepositoryEnabled rewrites the enabled flag of one repository listed in the YAML file at path.
// Only that node of the file's document tree changes; environment and .env values are never read.
// It reports whether the file changed.
func SetRepositoryEnabled(path, fullName string, enabled bool) (bool, error) {
	if path == "" {
		return false, errors.New("empty config path")
	}

	unlock, err := lockFile(path)
	if err != nil {
		return false, err
	}
	defer unlock()

	b, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return false, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}

	repos := repositoriesNode(&doc)
	idx := -1
	if repos != nil {
		for i, item := range repos.Content {
			if repositoryName(item) == fullName {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return false, fmt.Errorf("%w: %q is not listed in %s", domain.ErrUnknownRepository, fullName, path)
	}

	item := repos.Content[idx]
	if flag := mappingValue(item, "enabled"); flag != nil {
		var cur bool
		if err := flag.Decode(&cur); err != nil {
			return false, fmt.Errorf("%w: %s: enabled: %v", domain.ErrConfiguration, fullName, err)
		}
		if cur == enabled {
			return false, nil
		}
		flag.Tag, flag.Style, flag.Value = "!!bool", 0, strconv.FormatBool(enabled)
	} else {
		if enabled {
			return false, nil
		}
		item.Content = append(item.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "enabled"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "false"},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return false, err
	}
	if err := enc.Close(); err != nil {
		return false, err
	}

	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

func repositoriesNode(doc *yaml.Node) *yaml.Node {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	repos := mappingValue(mappingValue(doc.Content[0], "bitbucket"), "repositories")
	if repos == nil || repos.Kind != yaml.SequenceNode {
		return nil
	}
	return repos
}

func repositoryName(item *yaml.Node) string {
	if n := mappingValue(item, "full_name"); n != nil {
		return n.Value
	}
	return ""
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func lockFile(path string) (func(), error) {
	lf, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			_ = lf.Close()
			return nil, err
		}
	}

	return func() {
		if runtime.GOOS != "windows" {
			_ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
		}
		_ = lf.Close()
	}, nil
}

// writeAtomic replaces path through a synced temp file, keeping the original permissions.
func writeAtomic(path string, b []byte) error {
	perm := os.FileMode(0o600)
	if st, err := os.Stat(path); err == nil {
		perm = st.Mode().Perm()
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
