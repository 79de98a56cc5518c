package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/rizexist/internal/clock"
	"github.com/verte-zerg/rizexist/internal/config"
	"github.com/verte-zerg/rizexist/internal/model"
	"github.com/verte-zerg/rizexist/internal/report"
	"github.com/verte-zerg/rizexist/internal/syncer"
)

var commentedKey = regexp.MustCompile(`(?m)^# ([a-z-]+ = )`)

func TestDefaultConfigTemplateParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load commented template: %v", err)
	}
	if cfg.Rize.Endpoint != nil || cfg.Sync.Timeout != nil {
		t.Fatalf("expected commented template to set nothing: %+v", cfg)
	}

	uncommented := commentedKey.ReplaceAllString(defaultConfigTemplate(), "$1")
	if err := os.WriteFile(path, []byte(uncommented), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err = config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load uncommented template: %v", err)
	}
	if cfg.Rize.Endpoint == nil || *cfg.Rize.Endpoint != config.DefaultRizeEndpoint {
		t.Fatalf("unexpected endpoint: %v", cfg.Rize.Endpoint)
	}
	if cfg.Sync.Timeout == nil || *cfg.Sync.Timeout != config.DefaultTimeout {
		t.Fatalf("unexpected timeout: %v", cfg.Sync.Timeout)
	}
	if cfg.Sync.Timezone == nil || *cfg.Sync.Timezone != "Europe/Berlin" {
		t.Fatalf("unexpected timezone: %v", cfg.Sync.Timezone)
	}
	if cfg.Exist.Group == nil || *cfg.Exist.Group != config.DefaultGroup {
		t.Fatalf("unexpected group: %v", cfg.Exist.Group)
	}
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got, err := parseDate(" 2024-03-10 ", loc)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if !got.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, loc)) {
		t.Fatalf("unexpected date: %s", got)
	}
	if _, err := parseDate("10/03/2024", loc); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestRootCmdRegistersFlagsAndSubcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"setup", "migrate", "date", "no-backfill", "dry-run"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag --%s", name)
		}
	}
	for _, name := range []string{"env-file", "config", "verbose"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("missing persistent flag --%s", name)
		}
	}
	for _, name := range []string{"config", "attributes", "history"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("missing subcommand %s: %v", name, err)
		}
	}
}

type stubSource struct {
	fail map[string]error
}

func (s stubSource) DailyMetrics(_ context.Context, date time.Time) (model.DailyMetrics, error) {
	if err := s.fail[date.Format(model.DateLayout)]; err != nil {
		return model.DailyMetrics{}, err
	}
	return model.DailyMetrics{Date: date, Values: map[string]int64{model.MetricFocusTime: 3600}}, nil
}

type stubAttributes struct {
	owned      []model.Attribute
	calls      []string
	acquireErr error
}

func (s *stubAttributes) OwnedAttributes(context.Context) ([]model.Attribute, error) {
	s.calls = append(s.calls, "owned")
	return s.owned, nil
}

func (s *stubAttributes) CreateAttribute(_ context.Context, spec model.AttributeSpec) error {
	s.calls = append(s.calls, "create "+spec.Name)
	return nil
}

func (s *stubAttributes) AcquireAttribute(_ context.Context, name string) error {
	s.calls = append(s.calls, "acquire "+name)
	return s.acquireErr
}

func (s *stubAttributes) ReleaseAttribute(_ context.Context, name string) error {
	s.calls = append(s.calls, "release "+name)
	return nil
}

func (s *stubAttributes) UpdateAttribute(_ context.Context, name string, date time.Time, _ int64) error {
	s.calls = append(s.calls, "update "+name+" "+date.Format(model.DateLayout))
	return nil
}

var testCatalog = []model.AttributeSpec{
	{Name: "rize_focus", Label: "Focus", ValueType: model.ValueDuration, Metric: model.MetricFocusTime},
}

func newTestSyncer(src syncer.MetricsSource, dst syncer.AttributeStore) *syncer.Syncer {
	return syncer.New(src, dst,
		syncer.WithCatalog(testCatalog),
		syncer.WithSuperseded([]string{"rize_old"}),
		syncer.WithClock(clock.Fixed(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))),
		syncer.WithLocation(time.UTC),
		syncer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestExecuteSyncSucceeds(t *testing.T) {
	dst := &stubAttributes{}
	var out bytes.Buffer
	err := execute(context.Background(), newTestSyncer(stubSource{}, dst), report.NewPrinter(&out, false), runPlan{backfill: true})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	want := []string{"update rize_focus 2024-03-09", "update rize_focus 2024-03-10"}
	if !reflect.DeepEqual(dst.calls, want) {
		t.Fatalf("unexpected calls: %v", dst.calls)
	}
}

func TestExecuteFailedDayFailsRun(t *testing.T) {
	src := stubSource{fail: map[string]error{"2024-03-09": errors.New("rize unavailable")}}
	dst := &stubAttributes{}
	var out bytes.Buffer
	s := newTestSyncer(src, dst)
	plan := runPlan{backfill: true}

	ok, err := runMode(context.Background(), s, report.NewPrinter(&out, false), plan)
	if err != nil || ok {
		t.Fatalf("expected failed run without error, got ok=%v err=%v", ok, err)
	}
	if want := []string{"update rize_focus 2024-03-10"}; !reflect.DeepEqual(dst.calls, want) {
		t.Fatalf("expected later date to still sync, got %v", dst.calls)
	}
	if !strings.Contains(out.String(), "rize unavailable") {
		t.Fatalf("expected fetch error in output:\n%s", out.String())
	}

	out.Reset()
	if err := execute(context.Background(), s, report.NewPrinter(&out, false), plan); !errors.Is(err, errRunFailed) {
		t.Fatalf("expected errRunFailed, got %v", err)
	}
}

func TestExecuteFailedAcquireFailsSetup(t *testing.T) {
	dst := &stubAttributes{acquireErr: errors.New("forbidden")}
	var out bytes.Buffer
	s := newTestSyncer(stubSource{}, dst)

	ok, err := runMode(context.Background(), s, report.NewPrinter(&out, false), runPlan{setup: true})
	if err != nil || ok {
		t.Fatalf("expected failed setup without error, got ok=%v err=%v", ok, err)
	}
	if !strings.Contains(out.String(), "setup: 0 done, 1 failed, 0 skipped") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	if err := execute(context.Background(), s, report.NewPrinter(&out, false), runPlan{setup: true}); !errors.Is(err, errRunFailed) {
		t.Fatalf("expected errRunFailed, got %v", err)
	}
}

func TestExecuteMigrateRunsBeforeSetup(t *testing.T) {
	dst := &stubAttributes{
		owned:      []model.Attribute{{Name: "rize_old"}},
		acquireErr: errors.New("forbidden"),
	}
	var out bytes.Buffer
	s := newTestSyncer(stubSource{}, dst)

	err := execute(context.Background(), s, report.NewPrinter(&out, false), runPlan{migrate: true, setup: true})
	if !errors.Is(err, errRunFailed) {
		t.Fatalf("expected errRunFailed, got %v", err)
	}
	want := []string{"owned", "release rize_old", "owned", "create rize_focus", "acquire rize_focus"}
	if !reflect.DeepEqual(dst.calls, want) {
		t.Fatalf("unexpected call order: %v", dst.calls)
	}
	for _, call := range dst.calls {
		if strings.HasPrefix(call, "update ") {
			t.Fatalf("provisioning must not sync, got %v", dst.calls)
		}
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "migrate:") || !strings.HasPrefix(lines[1], "setup:") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestHistoryConfigUsesConfiguredTimezone(t *testing.T) {
	historySince = "2024-03-10"
	historyLimit = 5
	t.Cleanup(func() {
		historySince = ""
		historyLimit = defaultHistoryLimit
	})
	zone := "Asia/Tokyo"
	fileCfg := config.FileConfig{}
	fileCfg.Sync.Timezone = &zone

	cfg, err := historyConfig(fileCfg, func(string) string { return "" })
	if err != nil {
		t.Fatalf("history config: %v", err)
	}
	tokyo, err := time.LoadLocation(zone)
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	if cfg.Limit != 5 || cfg.Since == nil || !cfg.Since.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, tokyo)) {
		t.Fatalf("unexpected history config: %+v", cfg)
	}

	cfg, err = historyConfig(fileCfg, func(key string) string {
		if key == config.EnvTimezone {
			return "UTC"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("history config: %v", err)
	}
	if !cfg.Since.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected env timezone to win, got %s", cfg.Since)
	}

	historySince = "03/10/2024"
	if _, err := historyConfig(fileCfg, func(string) string { return "" }); err == nil {
		t.Fatalf("expected error for malformed --since")
	}
}
