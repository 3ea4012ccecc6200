package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpgoal/internal/buildinfo"
	"vrpgoal/internal/config"
	"vrpgoal/internal/report"
)

func sampleReport(id string, at time.Time, unassigned ...string) report.Report {
	if unassigned == nil {
		unassigned = []string{}
	}
	return report.Report{
		ID:         id,
		CreatedAt:  at,
		Build:      buildinfo.Info{Version: "test"},
		Fitness:    42.5,
		Breakdown:  map[string]float64{"preferences": 30, "transport": 12.5},
		Unassigned: unassigned,
		Routes:     []report.Route{{Vehicle: "van-1", Stops: []report.Stop{{Job: "a", Arrival: 60, Departure: 120}}}},
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	_, err := s.GetReport(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveReport(ctx, sampleReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute), "x")))
	}
	// same timestamp as r4, ordered by id
	require.NoError(t, s.SaveReport(ctx, sampleReport("r5", base.Add(4*time.Minute))))

	got, err := s.GetReport(ctx, "r2")
	require.NoError(t, err)
	want := sampleReport("r2", base.Add(2*time.Minute), "x")
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("stored report mismatch (-want +got):\n%s", diff)
	}

	var ids []string
	cursor := ""
	pages := 0
	for {
		items, next, err := s.ListReports(ctx, cursor, 2)
		require.NoError(t, err)
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		pages++
		if next == "" {
			break
		}
		cursor = next
		require.Less(t, pages, 10)
	}
	assert.Equal(t, []string{"r5", "r4", "r3", "r2", "r1", "r0"}, ids)
	assert.Equal(t, 3, pages)

	items, _, err := s.ListReports(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].Unassigned)
	assert.Equal(t, "test", items[0].Version)

	require.NoError(t, s.DeleteReport(ctx, "r3"))
	require.ErrorIs(t, s.DeleteReport(ctx, "r3"), ErrNotFound)
	_, err = s.GetReport(ctx, "r3")
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.ListReports(ctx, "%%%", 10)
	require.ErrorIs(t, err, ErrBadCursor)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryRejectsEmptyID(t *testing.T) {
	err := NewMemory().SaveReport(context.Background(), report.Report{})
	require.Error(t, err)
}

func TestCursorRoundTrip(t *testing.T) {
	s := Summary{ID: "abc", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)}
	ts, id, err := decodeCursor(encodeCursor(s))
	require.NoError(t, err)
	assert.True(t, ts.Equal(s.CreatedAt))
	assert.Equal(t, "abc", id)

	_, _, err = decodeCursor("bm8tc2VwYXJhdG9y") // "no-separator"
	require.ErrorIs(t, err, ErrBadCursor)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 100, clampLimit(0))
	assert.Equal(t, 100, clampLimit(-3))
	assert.Equal(t, 100, clampLimit(10000))
	assert.Equal(t, 7, clampLimit(7))
}

func TestOpenWithoutDatabaseUsesMemory(t *testing.T) {
	s, err := Open(context.Background(), config.Store{}, logr.Discard())
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*Memory)
	assert.True(t, ok)
}

func TestMigrateURL(t *testing.T) {
	got, err := migrateURL("postgres://u:p@db:5432/vrp?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://u:p@db:5432/vrp?sslmode=disable", got)

	_, err = migrateURL("host=db user=u")
	require.Error(t, err)
}
