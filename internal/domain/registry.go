package domain

import (
	"fmt"
	"strings"
)

type InstanceConfig struct {
	Name         string
	BaseURL      string
	AccountEmail string
	APIToken     string
	// AssigneeAllowList restricts queries to these emails; empty disables filtering.
	AssigneeAllowList []string
}

func (c InstanceConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: instance name is empty", ErrConfiguration)
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: instance %q: base_url is empty", ErrConfiguration, c.Name)
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return fmt.Errorf("%w: instance %q: api token is empty", ErrConfiguration, c.Name)
	}
	return nil
}

// BrowseURL is the human link to an issue on this instance.
func (c InstanceConfig) BrowseURL(key string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/browse/" + key
}

// InstanceRegistry is an immutable, validated set of issue-tracker instances.
type InstanceRegistry struct {
	instances []InstanceConfig
}

func NewInstanceRegistry(instances ...InstanceConfig) (*InstanceRegistry, error) {
	seen := make(map[string]struct{}, len(instances))
	out := make([]InstanceConfig, 0, len(instances))

	for _, in := range instances {
		if err := in.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[in.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate instance name %q", ErrConfiguration, in.Name)
		}
		seen[in.Name] = struct{}{}

		in.AssigneeAllowList = append([]string(nil), in.AssigneeAllowList...)
		out = append(out, in)
	}

	return &InstanceRegistry{instances: out}, nil
}

func (r *InstanceRegistry) All() []InstanceConfig {
	out := make([]InstanceConfig, len(r.instances))
	copy(out, r.instances)
	return out
}

func (r *InstanceRegistry) Get(name string) (InstanceConfig, bool) {
	for _, in := range r.instances {
		if in.Name == name {
			return in, true
		}
	}
	return InstanceConfig{}, false
}

func (r *InstanceRegistry) Len() int { return len(r.instances) }
