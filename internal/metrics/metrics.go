// Package metrics exposes sync outcomes as Prometheus metrics.
package metrics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/verte-zerg/rizexist/internal/model"
)

const namespace = "rizexist"

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Recorder collects sync outcomes into its own registry.
type Recorder struct {
	registry *prometheus.Registry

	AttributeUpdates *prometheus.CounterVec
	Days             *prometheus.CounterVec
	Runs             *prometheus.CounterVec
	TokenRefreshes   *prometheus.CounterVec
	LastSuccess      *prometheus.GaugeVec
	AttributeValue   *prometheus.GaugeVec
}

// New builds a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		AttributeUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribute_updates_total",
				Help:      "Attribute value writes by attribute and result",
			},
			[]string{"attribute", "result"},
		),
		Days: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "days_total",
				Help:      "Synced dates by result",
			},
			[]string{"result"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Runs by mode and result",
			},
			[]string{"mode", "result"},
		),
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Exist access token refresh attempts by result",
			},
			[]string{"result"},
		),
		LastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last fully successful run per mode",
			},
			[]string{"mode"},
		),
		AttributeValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "attribute_value",
				Help:      "Last value written per attribute",
			},
			[]string{"attribute"},
		),
	}
}

// Registry returns the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveDay counts one date's outcome. Dry runs only set values.
func (r *Recorder) ObserveDay(day model.DayResult) {
	r.Days.WithLabelValues(result(day.OK())).Inc()
	for _, u := range day.Updates {
		if !day.DryRun {
			r.AttributeUpdates.WithLabelValues(u.Attribute, result(u.Err == nil)).Inc()
		}
		if u.Err == nil {
			r.AttributeValue.WithLabelValues(u.Attribute).Set(float64(u.Value))
		}
	}
}

// ObserveRun counts a finished run.
func (r *Recorder) ObserveRun(mode string, ok bool, finishedAt time.Time) {
	r.Runs.WithLabelValues(mode, result(ok)).Inc()
	if ok {
		r.LastSuccess.WithLabelValues(mode).Set(float64(finishedAt.Unix()))
	}
}

// ObserveRefresh counts a token refresh attempt.
func (r *Recorder) ObserveRefresh(ok bool) {
	r.TokenRefreshes.WithLabelValues(result(ok)).Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Restore seeds r from a textfile written by an earlier run, so counters
// keep accumulating and the last-success gauges survive a failed run.
// A missing file is not an error. Families r does not own are ignored.
func (r *Recorder) Restore(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open metrics textfile: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close of a read-only file.
			_ = cerr
		}
	}()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return fmt.Errorf("failed to parse metrics textfile: %w", err)
	}

	counters := map[string]struct {
		vec    *prometheus.CounterVec
		labels []string
	}{
		"attribute_updates_total": {r.AttributeUpdates, []string{"attribute", "result"}},
		"days_total":              {r.Days, []string{"result"}},
		"runs_total":              {r.Runs, []string{"mode", "result"}},
		"token_refreshes_total":   {r.TokenRefreshes, []string{"result"}},
	}
	gauges := map[string]struct {
		vec    *prometheus.GaugeVec
		labels []string
	}{
		"last_success_timestamp_seconds": {r.LastSuccess, []string{"mode"}},
		"attribute_value":                {r.AttributeValue, []string{"attribute"}},
	}

	for name, c := range counters {
		family, ok := families[prometheus.BuildFQName(namespace, "", name)]
		if !ok || family.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range family.GetMetric() {
			if v := m.GetCounter().GetValue(); v > 0 {
				c.vec.WithLabelValues(labelValues(m, c.labels)...).Add(v)
			}
		}
	}
	for name, g := range gauges {
		family, ok := families[prometheus.BuildFQName(namespace, "", name)]
		if !ok || family.GetType() != dto.MetricType_GAUGE {
			continue
		}
		for _, m := range family.GetMetric() {
			g.vec.WithLabelValues(labelValues(m, g.labels)...).Set(m.GetGauge().GetValue())
		}
	}
	return nil
}

func labelValues(m *dto.Metric, names []string) []string {
	byName := make(map[string]string, len(m.GetLabel()))
	for _, pair := range m.GetLabel() {
		byName[pair.GetName()] = pair.GetValue()
	}
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = byName[name]
	}
	return values
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultFailure
}
