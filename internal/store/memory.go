package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"vrpgoal/internal/report"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu      sync.Mutex
	reports map[string]report.Report
}

func NewMemory() *Memory {
	return &Memory{reports: map[string]report.Report{}}
}

func (m *Memory) SaveReport(_ context.Context, r report.Report) error {
	if r.ID == "" {
		return fmt.Errorf("report has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return nil
}

func (m *Memory) GetReport(_ context.Context, id string) (report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return report.Report{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) ListReports(_ context.Context, cursor string, limit int) ([]Summary, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	all := make([]Summary, 0, len(m.reports))
	for _, r := range m.reports {
		all = append(all, summarize(r))
	}
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	start := 0
	if cursor != "" {
		t, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		start = len(all)
		for i, s := range all {
			if before(s, t, id) {
				start = i
				break
			}
		}
	}
	out := []Summary{}
	for i := start; i < len(all) && len(out) < limit; i++ {
		out = append(out, all[i])
	}
	next := ""
	if len(out) == limit && start+limit < len(all) {
		next = encodeCursor(out[len(out)-1])
	}
	return out, next, nil
}

func (m *Memory) DeleteReport(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	delete(m.reports, id)
	return nil
}

func (m *Memory) Close() error { return nil }
