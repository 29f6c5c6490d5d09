package application

import (
	"cmp"
	"slices"

	"github.com/davarch/devboard/internal/domain"
)

type IssueOrder int

const (
	OrderUpdatedDesc IssueOrder = iota
	OrderDueDateAsc
)

type IssueBatch struct {
	Instance domain.InstanceConfig
	Raw      []domain.RawIssue
}

// NormalizeBatch maps one instance's payloads, dropping repeated keys after the first.
// Malformed payloads are reported in skipped and left out.
func NormalizeBatch(b IssueBatch) (records []domain.IssueRecord, skipped []error) {
	seen := make(map[string]struct{}, len(b.Raw))
	records = make([]domain.IssueRecord, 0, len(b.Raw))

	for _, raw := range b.Raw {
		rec, err := NormalizeIssue(b.Instance, raw)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if _, dup := seen[rec.Key]; dup {
			continue
		}
		seen[rec.Key] = struct{}{}
		records = append(records, rec)
	}

	return records, skipped
}

// MergeIssues concatenates every batch in the given order. Keys are not de-duplicated
// across instances.
func MergeIssues(batches []IssueBatch) (records []domain.IssueRecord, skipped []error) {
	records = make([]domain.IssueRecord, 0)
	for _, b := range batches {
		recs, bad := NormalizeBatch(b)
		records = append(records, recs...)
		skipped = append(skipped, bad...)
	}
	return records, skipped
}

func SortIssues(records []domain.IssueRecord, order IssueOrder) {
	switch order {
	case OrderDueDateAsc:
		slices.SortStableFunc(records, compareDue)
	default:
		slices.SortStableFunc(records, compareUpdated)
	}
}

// compareDue puts dated records first, earliest due first, then orders by key.
func compareDue(a, b domain.IssueRecord) int {
	switch {
	case a.DueDate != nil && b.DueDate == nil:
		return -1
	case a.DueDate == nil && b.DueDate != nil:
		return 1
	case a.DueDate != nil && b.DueDate != nil:
		if c := a.DueDate.Compare(b.DueDate.Time); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return cmp.Compare(a.Instance, b.Instance)
}

func compareUpdated(a, b domain.IssueRecord) int {
	return b.Updated.Compare(a.Updated)
}
