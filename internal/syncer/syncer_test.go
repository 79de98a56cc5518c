package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/rizexist/internal/clock"
	"github.com/verte-zerg/rizexist/internal/model"
)

type fakeSource struct {
	values map[string]map[string]int64
	fail   map[string]error
	calls  []string
}

func (f *fakeSource) DailyMetrics(_ context.Context, date time.Time) (model.DailyMetrics, error) {
	key := date.Format(model.DateLayout)
	f.calls = append(f.calls, key)
	if err := f.fail[key]; err != nil {
		return model.DailyMetrics{}, err
	}
	return model.DailyMetrics{Date: date, Values: f.values[key]}, nil
}

type update struct {
	name  string
	date  string
	value int64
}

type fakeStore struct {
	owned      []model.Attribute
	ownedErr   error
	created    []string
	createErr  map[string]error
	acquired   []string
	acquireErr map[string]error
	released   []string
	releaseErr map[string]error
	updates    []update
	updateErr  map[string]error
}

func (f *fakeStore) OwnedAttributes(context.Context) ([]model.Attribute, error) {
	return f.owned, f.ownedErr
}

func (f *fakeStore) CreateAttribute(_ context.Context, spec model.AttributeSpec) error {
	f.created = append(f.created, spec.Name)
	return f.createErr[spec.Name]
}

func (f *fakeStore) AcquireAttribute(_ context.Context, name string) error {
	f.acquired = append(f.acquired, name)
	return f.acquireErr[name]
}

func (f *fakeStore) ReleaseAttribute(_ context.Context, name string) error {
	f.released = append(f.released, name)
	return f.releaseErr[name]
}

func (f *fakeStore) UpdateAttribute(_ context.Context, name string, date time.Time, value int64) error {
	f.updates = append(f.updates, update{name: name, date: date.Format(model.DateLayout), value: value})
	return f.updateErr[name]
}

type fakeRecorder struct {
	modes    []string
	days     []model.DayResult
	recorded []time.Time
	finished []bool
}

func (f *fakeRecorder) BeginRun(_ context.Context, mode string, _ time.Time) (string, error) {
	f.modes = append(f.modes, mode)
	return "run-1", nil
}

func (f *fakeRecorder) RecordDay(_ context.Context, _ string, day model.DayResult, recordedAt time.Time) error {
	f.days = append(f.days, day)
	f.recorded = append(f.recorded, recordedAt)
	return nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, _ string, _ time.Time, ok bool) error {
	f.finished = append(f.finished, ok)
	return nil
}

var now = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSyncer(src MetricsSource, dst AttributeStore, opts ...Option) *Syncer {
	base := []Option{
		WithClock(clock.Fixed(now)),
		WithLocation(time.UTC),
		WithLogger(quietLogger()),
	}
	return New(src, dst, append(base, opts...)...)
}

func TestConvertFloorsDurations(t *testing.T) {
	duration := model.AttributeSpec{ValueType: model.ValueDuration}
	count := model.AttributeSpec{ValueType: model.ValueInteger}
	assert.Equal(t, int64(0), Convert(duration, 59))
	assert.Equal(t, int64(1), Convert(duration, 60))
	assert.Equal(t, int64(1), Convert(duration, 119))
	assert.Equal(t, int64(61), Convert(duration, 3661))
	assert.Equal(t, int64(-2), Convert(duration, -61))
	assert.Equal(t, int64(119), Convert(count, 119))
}

func TestPlanDates(t *testing.T) {
	s := newSyncer(&fakeSource{}, &fakeStore{})

	dates := s.PlanDates(nil, true)
	require.Len(t, dates, 2)
	assert.Equal(t, "2024-03-09", dates[0].Format(model.DateLayout))
	assert.Equal(t, "2024-03-10", dates[1].Format(model.DateLayout))

	dates = s.PlanDates(nil, false)
	require.Len(t, dates, 1)
	assert.Equal(t, "2024-03-10", dates[0].Format(model.DateLayout))

	explicit := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	dates = s.PlanDates(&explicit, true)
	require.Len(t, dates, 1)
	assert.Equal(t, "2023-12-31", dates[0].Format(model.DateLayout))
}

func TestSyncDateConvertsAndUpserts(t *testing.T) {
	src := &fakeSource{values: map[string]map[string]int64{
		"2024-03-10": {
			model.MetricFocusTime:       3661,
			model.MetricTrackedTime:     7259,
			model.MetricBreakTime:       3598,
			model.MetricMeetingTime:     1800,
			model.MetricFocusSessions:   3,
			model.MetricBreakSessions:   2,
			model.MetricMeetingSessions: 1,
		},
	}}
	dst := &fakeStore{}
	s := newSyncer(src, dst)

	day := s.SyncDate(context.Background(), now)
	require.True(t, day.OK())
	assert.Equal(t, 7, day.Succeeded)

	got := map[string]int64{}
	for _, u := range dst.updates {
		assert.Equal(t, "2024-03-10", u.date)
		got[u.name] = u.value
	}
	assert.Equal(t, map[string]int64{
		"rize_focus":            61,
		"rize_tracked":          120,
		"rize_break":            59,
		"rize_meetings":         30,
		"rize_focus_sessions":   3,
		"rize_break_sessions":   2,
		"rize_meeting_sessions": 1,
	}, got)
}

func TestSyncDateTalliesFailures(t *testing.T) {
	src := &fakeSource{values: map[string]map[string]int64{"2024-03-10": {}}}
	dst := &fakeStore{updateErr: map[string]error{"rize_break": errors.New("boom")}}
	s := newSyncer(src, dst)

	day := s.SyncDate(context.Background(), now)
	assert.False(t, day.OK())
	assert.Equal(t, 1, day.Failed)
	assert.Equal(t, 6, day.Succeeded)
	assert.Len(t, dst.updates, 7)
}

func TestDryRunDoesNotWrite(t *testing.T) {
	src := &fakeSource{values: map[string]map[string]int64{"2024-03-10": {model.MetricFocusTime: 600}}}
	dst := &fakeStore{}
	rec := &fakeRecorder{}
	s := newSyncer(src, dst, WithDryRun(true), WithRecorder(rec))

	results, ok := s.Run(context.Background(), []time.Time{now})
	require.True(t, ok)
	assert.Empty(t, dst.updates)
	assert.Empty(t, rec.modes)
	assert.Equal(t, int64(10), results[0].Updates[0].Value)
}

func TestRunContinuesPastFailedDay(t *testing.T) {
	src := &fakeSource{
		values: map[string]map[string]int64{"2024-03-10": {model.MetricFocusTime: 120}},
		fail:   map[string]error{"2024-03-09": errors.New("rize down")},
	}
	dst := &fakeStore{}
	rec := &fakeRecorder{}
	s := newSyncer(src, dst, WithRecorder(rec))

	results, ok := s.Run(context.Background(), s.PlanDates(nil, true))
	assert.False(t, ok)
	require.Len(t, results, 2)
	assert.Error(t, results[0].FetchErr)
	assert.True(t, results[1].OK())
	assert.Equal(t, []string{"2024-03-09", "2024-03-10"}, src.calls)
	assert.Len(t, dst.updates, 7)
	assert.Equal(t, []string{ModeSync}, rec.modes)
	assert.Len(t, rec.days, 2)
	assert.Equal(t, []time.Time{now, now}, rec.recorded)
	assert.Equal(t, []bool{false}, rec.finished)
}

func TestSetupSkipsOwnedAttributes(t *testing.T) {
	dst := &fakeStore{owned: []model.Attribute{{Name: "rize_focus"}, {Name: "rize_tracked"}}}
	catalog := Catalog("productivity")[:3]
	s := newSyncer(&fakeSource{}, dst, WithCatalog(catalog))

	res := s.Setup(context.Background())
	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, []string{"rize_break"}, dst.created)
	assert.Equal(t, []string{"rize_break"}, dst.acquired)
}

func TestSetupAcquiresWhenCreateFails(t *testing.T) {
	dst := &fakeStore{
		createErr:  map[string]error{"rize_focus": errors.New("exists")},
		acquireErr: map[string]error{"rize_tracked": errors.New("nope")},
	}
	catalog := Catalog("productivity")[:2]
	s := newSyncer(&fakeSource{}, dst, WithCatalog(catalog))

	res := s.Setup(context.Background())
	assert.False(t, res.OK())
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"rize_focus", "rize_tracked"}, dst.acquired)
}

func TestSetupWithUnlistableOwnershipCreatesAll(t *testing.T) {
	dst := &fakeStore{ownedErr: errors.New("401")}
	s := newSyncer(&fakeSource{}, dst)

	res := s.Setup(context.Background())
	assert.True(t, res.OK())
	assert.Len(t, dst.created, len(Catalog("productivity")))
}

func TestMigrateReleasesOnlyOwnedSupersededNames(t *testing.T) {
	dst := &fakeStore{owned: []model.Attribute{{Name: "rize_focus_time"}, {Name: "rize_focus"}}}
	s := newSyncer(&fakeSource{}, dst)

	res := s.Migrate(context.Background())
	assert.True(t, res.OK())
	assert.Equal(t, []string{"rize_focus_time"}, dst.released)
	assert.Equal(t, 1, res.Skipped)
}

func TestMigrateWithoutOwnershipReleasesAll(t *testing.T) {
	dst := &fakeStore{
		ownedErr:   errors.New("down"),
		releaseErr: map[string]error{"rize_tracked_time": errors.New("not owned")},
	}
	s := newSyncer(&fakeSource{}, dst)

	res := s.Migrate(context.Background())
	assert.False(t, res.OK())
	assert.Equal(t, SupersededAttributes(), dst.released)
	assert.Equal(t, 1, res.Failed)
}
