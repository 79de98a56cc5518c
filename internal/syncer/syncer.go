// Package syncer drives attribute provisioning and the Rize to Exist sync.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/verte-zerg/rizexist/internal/clock"
	"github.com/verte-zerg/rizexist/internal/model"
)

// Run modes recorded in the journal.
const (
	ModeSync    = "sync"
	ModeSetup   = "setup"
	ModeMigrate = "migrate"
)

// MetricsSource yields one day's metric set.
type MetricsSource interface {
	DailyMetrics(ctx context.Context, date time.Time) (model.DailyMetrics, error)
}

// AttributeStore is the destination attribute API.
type AttributeStore interface {
	OwnedAttributes(ctx context.Context) ([]model.Attribute, error)
	CreateAttribute(ctx context.Context, spec model.AttributeSpec) error
	AcquireAttribute(ctx context.Context, name string) error
	ReleaseAttribute(ctx context.Context, name string) error
	UpdateAttribute(ctx context.Context, name string, date time.Time, value int64) error
}

// Recorder journals runs. Failures are logged and never fail a run.
type Recorder interface {
	BeginRun(ctx context.Context, mode string, startedAt time.Time) (string, error)
	RecordDay(ctx context.Context, runID string, day model.DayResult, recordedAt time.Time) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, ok bool) error
}

// Observer receives run outcomes, e.g. for metrics.
type Observer interface {
	ObserveDay(day model.DayResult)
	ObserveRun(mode string, ok bool, finishedAt time.Time)
}

// Result tallies a provisioning run.
type Result struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// OK reports whether nothing failed.
func (r Result) OK() bool {
	return r.Failed == 0
}

// Syncer coordinates a MetricsSource and an AttributeStore.
type Syncer struct {
	source     MetricsSource
	dest       AttributeStore
	catalog    []model.AttributeSpec
	superseded []string
	clock      clock.Clock
	loc        *time.Location
	logger     *slog.Logger
	recorder   Recorder
	observer   Observer
	dryRun     bool
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithCatalog replaces the attribute catalog.
func WithCatalog(catalog []model.AttributeSpec) Option {
	return func(s *Syncer) { s.catalog = catalog }
}

// WithSuperseded replaces the list of names released by Migrate.
func WithSuperseded(names []string) Option {
	return func(s *Syncer) { s.superseded = names }
}

// WithClock sets the clock used to plan dates.
func WithClock(clk clock.Clock) Option {
	return func(s *Syncer) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLocation sets the timezone calendar dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Syncer) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder journals runs.
func WithRecorder(r Recorder) Option {
	return func(s *Syncer) { s.recorder = r }
}

// WithObserver reports outcomes.
func WithObserver(o Observer) Option {
	return func(s *Syncer) { s.observer = o }
}

// WithDryRun computes values without writing them.
func WithDryRun(dryRun bool) Option {
	return func(s *Syncer) { s.dryRun = dryRun }
}

// New builds a Syncer.
func New(source MetricsSource, dest AttributeStore, opts ...Option) *Syncer {
	s := &Syncer{
		source:     source,
		dest:       dest,
		catalog:    Catalog("productivity"),
		superseded: SupersededAttributes(),
		clock:      clock.System{},
		loc:        time.Local,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlanDates returns the dates a sync run covers: the explicit date alone, or
// yesterday then today when backfilling, or today only.
func (s *Syncer) PlanDates(explicit *time.Time, backfill bool) []time.Time {
	if explicit != nil {
		d := explicit.In(s.loc)
		return []time.Time{time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)}
	}
	today := clock.Today(s.clock, s.loc)
	if !backfill {
		return []time.Time{today}
	}
	return []time.Time{today.AddDate(0, 0, -1), today}
}

// Run syncs every date in order, continuing past failed dates.
func (s *Syncer) Run(ctx context.Context, dates []time.Time) ([]model.DayResult, bool) {
	runID := s.beginRun(ctx, ModeSync)
	results := make([]model.DayResult, 0, len(dates))
	ok := true
	for _, date := range dates {
		day := s.SyncDate(ctx, date)
		results = append(results, day)
		if !day.OK() {
			ok = false
		}
		if s.recorder != nil && runID != "" {
			if err := s.recorder.RecordDay(ctx, runID, day, s.clock.Now()); err != nil {
				s.logger.Warn("failed to journal day", "date", date.Format(model.DateLayout), "err", err)
			}
		}
		if s.observer != nil {
			s.observer.ObserveDay(day)
		}
	}
	s.finishRun(ctx, runID, ModeSync, ok)
	return results, ok
}

// SyncDate fetches one day's metrics and upserts every catalog attribute.
func (s *Syncer) SyncDate(ctx context.Context, date time.Time) model.DayResult {
	day := model.DayResult{Date: date, DryRun: s.dryRun}
	dateStr := date.Format(model.DateLayout)
	s.logger.Info("syncing", "date", dateStr)

	metrics, err := s.source.DailyMetrics(ctx, date)
	if err != nil {
		s.logger.Error("failed to fetch rize data", "date", dateStr, "err", err)
		day.FetchErr = err
		return day
	}

	for _, spec := range s.catalog {
		raw, present := metrics.Values[spec.Metric]
		update := model.AttributeUpdate{
			Attribute: spec.Name,
			Metric:    spec.Metric,
			Raw:       raw,
			Value:     Convert(spec, raw),
		}
		if !present {
			s.logger.Debug("metric missing, writing zero", "metric", spec.Metric)
		}
		if !s.dryRun {
			update.Err = s.dest.UpdateAttribute(ctx, spec.Name, date, update.Value)
		}
		if update.Err != nil {
			day.Failed++
			s.logger.Error("failed to update attribute", "date", dateStr, "attribute", spec.Name, "err", update.Err)
		} else {
			day.Succeeded++
			s.logger.Debug("attribute updated", "date", dateStr, "attribute", spec.Name, "value", update.Value, "dry_run", s.dryRun)
		}
		day.Updates = append(day.Updates, update)
	}
	s.logger.Info("sync finished", "date", dateStr, "succeeded", day.Succeeded, "failed", day.Failed)
	return day
}

// Setup creates and acquires every catalog attribute not already owned.
func (s *Syncer) Setup(ctx context.Context) Result {
	runID := s.beginRun(ctx, ModeSetup)
	owned := s.ownedNames(ctx)

	var res Result
	for _, spec := range s.catalog {
		if owned[spec.Name] {
			s.logger.Info("already own attribute", "attribute", spec.Name)
			res.Skipped++
			continue
		}
		if err := s.dest.CreateAttribute(ctx, spec); err != nil {
			s.logger.Warn("could not create attribute, attempting to acquire existing", "attribute", spec.Name, "err", err)
		} else {
			s.logger.Info("created attribute", "attribute", spec.Name)
		}
		if err := s.dest.AcquireAttribute(ctx, spec.Name); err != nil {
			s.logger.Error("could not acquire attribute", "attribute", spec.Name, "err", err)
			res.Failed++
			continue
		}
		s.logger.Info("acquired attribute", "attribute", spec.Name)
		res.Succeeded++
	}
	s.finishRun(ctx, runID, ModeSetup, res.OK())
	return res
}

// Migrate releases superseded attribute names. When ownership cannot be
// listed every superseded name is released.
func (s *Syncer) Migrate(ctx context.Context) Result {
	runID := s.beginRun(ctx, ModeMigrate)
	attrs, err := s.dest.OwnedAttributes(ctx)
	var owned map[string]bool
	if err != nil {
		s.logger.Warn("could not fetch owned attributes", "err", err)
	} else {
		owned = namesOf(attrs)
	}

	var res Result
	for _, name := range s.superseded {
		if owned != nil && !owned[name] {
			s.logger.Info("not owned, nothing to release", "attribute", name)
			res.Skipped++
			continue
		}
		if err := s.dest.ReleaseAttribute(ctx, name); err != nil {
			s.logger.Error("could not release attribute", "attribute", name, "err", err)
			res.Failed++
			continue
		}
		s.logger.Info("released attribute", "attribute", name)
		res.Succeeded++
	}
	s.finishRun(ctx, runID, ModeMigrate, res.OK())
	return res
}

func (s *Syncer) ownedNames(ctx context.Context) map[string]bool {
	attrs, err := s.dest.OwnedAttributes(ctx)
	if err != nil {
		s.logger.Warn("could not fetch owned attributes", "err", err)
		return map[string]bool{}
	}
	return namesOf(attrs)
}

func namesOf(attrs []model.Attribute) map[string]bool {
	names := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		names[a.Name] = true
	}
	return names
}

func (s *Syncer) beginRun(ctx context.Context, mode string) string {
	if s.recorder == nil || s.dryRun {
		return ""
	}
	id, err := s.recorder.BeginRun(ctx, mode, s.clock.Now())
	if err != nil {
		s.logger.Warn("failed to journal run", "mode", mode, "err", err)
		return ""
	}
	return id
}

func (s *Syncer) finishRun(ctx context.Context, runID, mode string, ok bool) {
	finishedAt := s.clock.Now()
	if s.recorder != nil && runID != "" {
		if err := s.recorder.FinishRun(ctx, runID, finishedAt, ok); err != nil {
			s.logger.Warn("failed to journal run", "mode", mode, "err", err)
		}
	}
	if s.observer != nil {
		s.observer.ObserveRun(mode, ok, finishedAt)
	}
}
