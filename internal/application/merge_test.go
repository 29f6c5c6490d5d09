package application

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/davarch/devboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var instA = domain.InstanceConfig{Name: "a", BaseURL: "https://a.atlassian.net/", APIToken: "t"}
var instB = domain.InstanceConfig{Name: "b", BaseURL: "https://b.atlassian.net", APIToken: "t"}

type rawOpt func(fields map[string]any)

func due(d string) rawOpt {
	return func(f map[string]any) { f["duedate"] = d }
}

func updated(ts string) rawOpt {
	return func(f map[string]any) { f["updated"] = ts }
}

func category(key string) rawOpt {
	return func(f map[string]any) { f["status"] = map[string]any{"statusCategory": map[string]any{"key": key}} }
}

func rawIssue(t *testing.T, key string, opts ...rawOpt) domain.RawIssue {
	t.Helper()
	fields := map[string]any{
		"summary": "Issue " + key,
		"updated": "2025-01-01T10:00:00.000+0000",
	}
	for _, o := range opts {
		o(fields)
	}
	b, err := json.Marshal(map[string]any{"key": key, "fields": fields})
	require.NoError(t, err)
	return b
}

func dueStrings(recs []domain.IssueRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		if r.DueDate == nil {
			out[i] = "absent"
			continue
		}
		out[i] = r.DueDate.String()
	}
	return out
}

func TestNormalizeIssue_MapsFields(t *testing.T) {
	raw := []byte(`{"key":"OPS-7","fields":{
		"summary":"Rotate keys","updated":"2025-02-01T14:30:00.000+0000","duedate":"2025-03-01",
		"priority":{"name":"Highest"},
		"assignee":{"displayName":"Alice","avatarUrls":{"32x32":"https://avatar/32"}},
		"status":{"statusCategory":{"key":"indeterminate"}},
		"project":{"key":"OPS"}}}`)

	rec, err := NormalizeIssue(instA, raw)
	require.NoError(t, err)

	assert.Equal(t, "a", rec.Instance)
	assert.Equal(t, "OPS-7", rec.Key)
	assert.Equal(t, "OPS", rec.Project)
	assert.Equal(t, "Rotate keys", rec.Title)
	assert.Equal(t, "https://a.atlassian.net/browse/OPS-7", rec.Link)
	assert.Equal(t, "Alice", rec.Assignee)
	assert.Equal(t, "https://avatar/32", rec.AvatarURL)
	assert.Equal(t, domain.PriorityHigh, rec.Priority)
	require.NotNil(t, rec.DueDate)
	assert.Equal(t, "2025-03-01", rec.DueDate.String())
	assert.Equal(t, domain.CategoryInProgress, rec.Status)
	assert.Equal(t, 14, rec.Updated.UTC().Hour())
}

func TestNormalizeIssue_OptionalFieldsBecomeAbsent(t *testing.T) {
	rec, err := NormalizeIssue(instA, []byte(`{"key":"X-1","fields":{"summary":"s","updated":"2025-01-01T10:00:00Z","duedate":null,"priority":null,"assignee":null}}`))
	require.NoError(t, err)
	assert.Nil(t, rec.DueDate)
	assert.Equal(t, domain.PriorityNone, rec.Priority)
	assert.Empty(t, rec.Assignee)
}

func TestNormalizeIssue_Malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"no key":     `{"fields":{"updated":"2025-01-01T10:00:00Z"}}`,
		"no fields":  `{"key":"X-1"}`,
		"bad update": `{"key":"X-1","fields":{"updated":"yesterday"}}`,
		"not json":   `[`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizeIssue(instA, []byte(raw))
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestMergeIssues_ConcatenatesAndDedupesWithinInstance(t *testing.T) {
	a := IssueBatch{Instance: instA, Raw: []domain.RawIssue{rawIssue(t, "K-1"), rawIssue(t, "K-2"), rawIssue(t, "K-2")}}
	b := IssueBatch{Instance: instB, Raw: []domain.RawIssue{rawIssue(t, "K-1"), rawIssue(t, "K-3"), []byte(`{}`)}}

	recs, skipped := MergeIssues([]IssueBatch{a, b})

	require.Len(t, recs, 4)
	assert.Len(t, skipped, 1)
	assert.Equal(t, []string{"a", "a", "b", "b"}, []string{recs[0].Instance, recs[1].Instance, recs[2].Instance, recs[3].Instance})
	assert.Equal(t, "K-1", recs[2].Key, "same key on another instance is kept")
}

func TestSortIssues_DueDateOrdering(t *testing.T) {
	recs, _ := MergeIssues([]IssueBatch{{Instance: instA, Raw: []domain.RawIssue{
		rawIssue(t, "K-1", due("2025-01-10")),
		rawIssue(t, "K-2"),
		rawIssue(t, "K-3", due("2025-01-05")),
	}}})

	SortIssues(recs, OrderDueDateAsc)
	assert.Equal(t, []string{"2025-01-05", "2025-01-10", "absent"}, dueStrings(recs))
}

func TestSortIssues_DueDateTieBreaksByKey(t *testing.T) {
	recs, _ := MergeIssues([]IssueBatch{{Instance: instA, Raw: []domain.RawIssue{
		rawIssue(t, "K-9", due("2025-01-10")),
		rawIssue(t, "K-4"),
		rawIssue(t, "K-1", due("2025-01-10")),
		rawIssue(t, "K-2"),
	}}})

	SortIssues(recs, OrderDueDateAsc)
	keys := []string{recs[0].Key, recs[1].Key, recs[2].Key, recs[3].Key}
	assert.Equal(t, []string{"K-1", "K-9", "K-2", "K-4"}, keys)
}

func TestSortIssues_UpdatedDescending(t *testing.T) {
	recs, _ := MergeIssues([]IssueBatch{{Instance: instA, Raw: []domain.RawIssue{
		rawIssue(t, "K-1", updated("2025-01-01T10:00:00.000+0000")),
		rawIssue(t, "K-2", updated("2025-01-03T10:00:00.000+0000")),
		rawIssue(t, "K-3", updated("2025-01-02T10:00:00.000+0000")),
	}}})

	SortIssues(recs, OrderUpdatedDesc)
	assert.Equal(t, []string{"K-2", "K-3", "K-1"}, []string{recs[0].Key, recs[1].Key, recs[2].Key})
}

func TestSortIssues_Idempotent(t *testing.T) {
	var raw []domain.RawIssue
	for i := 0; i < 20; i++ {
		opts := []rawOpt{updated(fmt.Sprintf("2025-01-%02dT10:00:00.000+0000", 1+i%5))}
		if i%3 != 0 {
			opts = append(opts, due(fmt.Sprintf("2025-02-%02d", 1+i%4)))
		}
		raw = append(raw, rawIssue(t, fmt.Sprintf("K-%d", i), opts...))
	}

	for _, order := range []IssueOrder{OrderDueDateAsc, OrderUpdatedDesc} {
		recs, _ := MergeIssues([]IssueBatch{{Instance: instA, Raw: raw}})
		SortIssues(recs, order)
		once := append([]domain.IssueRecord(nil), recs...)
		SortIssues(recs, order)
		assert.Equal(t, once, recs)
	}
}

func TestLookupView(t *testing.T) {
	v, err := LookupView(ViewOpenByDue)
	require.NoError(t, err)
	assert.Equal(t, OrderDueDateAsc, v.Order)

	_, err = LookupView("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownView)
	assert.Equal(t, []string{ViewInProgress, ViewOpenByDue, ViewBacklog, ViewManagerMeeting}, ViewNames())
}
