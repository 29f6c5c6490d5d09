package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceRegistry_Validates(t *testing.T) {
	_, err := NewInstanceRegistry(InstanceConfig{Name: "a", BaseURL: "https://a.example", APIToken: ""})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewInstanceRegistry(
		InstanceConfig{Name: "a", BaseURL: "https://a.example", APIToken: "t"},
		InstanceConfig{Name: "a", BaseURL: "https://b.example", APIToken: "t"},
	)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestInstanceRegistry_IsImmutable(t *testing.T) {
	allow := []string{"x@example.com"}
	r, err := NewInstanceRegistry(InstanceConfig{Name: "a", BaseURL: "https://a.example/", APIToken: "t", AssigneeAllowList: allow})
	require.NoError(t, err)

	allow[0] = "changed"
	all := r.All()
	all[0].Name = "mutated"

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"x@example.com"}, got.AssigneeAllowList)
	assert.Equal(t, "https://a.example/browse/ABC-1", got.BrowseURL("ABC-1"))
	assert.Equal(t, 1, r.Len())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "authentication", KindOf(fmt.Errorf("jira: %w", ErrAuthentication)))
	assert.Equal(t, "transient", KindOf(fmt.Errorf("x: %w", ErrTransientFetch)))
	assert.Equal(t, "unknown", KindOf(errors.New("boom")))
	assert.Equal(t, "", KindOf(nil))
}

func TestRunResult(t *testing.T) {
	assert.True(t, ResultSuccessful.IsSuccess())
	assert.True(t, ResultCompleted.IsSuccess())
	assert.False(t, ResultFailed.IsSuccess())
	assert.False(t, ResultInProgress.IsTerminal())
	assert.True(t, ResultStopped.IsTerminal())
}
