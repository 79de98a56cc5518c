package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/rizexist/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestJournalRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	runID, err := st.BeginRun(ctx, "sync", started)
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if runID == "" {
		t.Fatalf("expected run id")
	}

	day := model.DayResult{
		Date: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Updates: []model.AttributeUpdate{
			{Attribute: "rize_focus", Metric: model.MetricFocusTime, Raw: 3661, Value: 61},
			{Attribute: "rize_break", Metric: model.MetricBreakTime, Raw: 60, Value: 1, Err: errors.New("rejected")},
		},
		Succeeded: 1,
		Failed:    1,
	}
	recorded := started.Add(time.Second)
	if err := st.RecordDay(ctx, runID, day, recorded); err != nil {
		t.Fatalf("record day: %v", err)
	}
	if err := st.FinishRun(ctx, runID, started.Add(2*time.Second), false); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := st.ListRuns(ctx, model.HistoryConfig{})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.ID != runID || run.Mode != "sync" || run.OK {
		t.Fatalf("unexpected run: %+v", run)
	}
	if !run.StartedAt.Equal(started) || !run.FinishedAt.Equal(started.Add(2*time.Second)) {
		t.Fatalf("unexpected run times: %+v", run)
	}

	days, err := st.ListDays(ctx, []string{runID})
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 1 || days[0].Date != "2024-03-10" || days[0].Succeeded != 1 || days[0].Failed != 1 {
		t.Fatalf("unexpected days: %+v", days)
	}
	if !days[0].StartedAt.Equal(recorded) {
		t.Fatalf("expected day recorded at %s, got %s", recorded, days[0].StartedAt)
	}

	updates, err := st.ListUpdates(ctx, runID, "2024-03-10")
	if err != nil {
		t.Fatalf("list updates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].Attribute != "rize_break" || updates[0].Error != "rejected" {
		t.Fatalf("unexpected first update: %+v", updates[0])
	}
	if updates[1].Attribute != "rize_focus" || updates[1].Value != 61 || updates[1].Error != "" {
		t.Fatalf("unexpected second update: %+v", updates[1])
	}
}

func TestListRunsAppliesLimitAndSince(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 4; i++ {
		id, err := st.BeginRun(ctx, "sync", base.AddDate(0, 0, i))
		if err != nil {
			t.Fatalf("begin run: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := st.ListRuns(ctx, model.HistoryConfig{Limit: 2})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[3] || runs[1].ID != ids[2] {
		t.Fatalf("unexpected limited runs: %+v", runs)
	}
	if !runs[0].FinishedAt.IsZero() {
		t.Fatalf("expected unfinished run, got %+v", runs[0])
	}

	since := base.AddDate(0, 0, 1)
	runs, err = st.ListRuns(ctx, model.HistoryConfig{Since: &since})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs since %s, got %d", since, len(runs))
	}
}

func TestListDaysWithoutRuns(t *testing.T) {
	st := openTestStore(t)
	days, err := st.ListDays(context.Background(), nil)
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 0 {
		t.Fatalf("expected no days, got %d", len(days))
	}
}
