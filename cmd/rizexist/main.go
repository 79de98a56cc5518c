// Package main provides the CLI entrypoint for rizexist.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/rizexist/internal/config"
	"github.com/verte-zerg/rizexist/internal/exist"
	"github.com/verte-zerg/rizexist/internal/historyui"
	"github.com/verte-zerg/rizexist/internal/metrics"
	"github.com/verte-zerg/rizexist/internal/model"
	"github.com/verte-zerg/rizexist/internal/report"
	"github.com/verte-zerg/rizexist/internal/rize"
	"github.com/verte-zerg/rizexist/internal/store"
	"github.com/verte-zerg/rizexist/internal/syncer"
)

const (
	defaultEnvFile      = ".env"
	defaultHistoryLimit = 20
)

var (
	envFile    string
	configPath string
	verbose    bool

	runSetup   bool
	runMigrate bool
	syncDate   string
	noBackfill bool
	dryRun     bool

	historyPlain bool
	historyLimit int
	historySince string
)

var errRunFailed = errors.New("run finished with failures")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rizexist",
		Short:         "Sync Rize time tracking into Exist custom attributes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runRootCmd,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file with API credentials")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config path (default: $XDG_CONFIG_HOME/rizexist/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.Flags().BoolVar(&runSetup, "setup", false, "create and acquire the Exist attributes")
	rootCmd.Flags().BoolVar(&runMigrate, "migrate", false, "release superseded Exist attributes")
	rootCmd.Flags().StringVar(&syncDate, "date", "", "sync a single date (YYYY-MM-DD)")
	rootCmd.Flags().BoolVar(&noBackfill, "no-backfill", false, "sync today only instead of yesterday and today")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute values without writing to Exist")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newAttributesCmd())
	rootCmd.AddCommand(newHistoryCmd())

	return rootCmd
}

func runRootCmd(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	loc := settings.Location()

	plan := runPlan{migrate: runMigrate, setup: runSetup, backfill: settings.Backfill}
	if syncDate != "" {
		parsed, err := parseDate(syncDate, loc)
		if err != nil {
			return err
		}
		plan.explicit = &parsed
	}
	if cmd.Flags().Changed("no-backfill") {
		plan.backfill = !noBackfill
	}

	recorder := metrics.New()
	if err := recorder.Restore(settings.MetricsFile); err != nil {
		logger.Warn("previous metrics not restored", "path", settings.MetricsFile, "err", err)
	}
	httpClient := &http.Client{Timeout: settings.Timeout}
	existClient := newExistClient(settings, httpClient, logger, recorder)
	rizeClient := rize.NewClient(settings.RizeAPIKey,
		rize.WithEndpoint(settings.RizeEndpoint),
		rize.WithHTTPClient(httpClient),
		rize.WithLogger(logger),
	)

	opts := []syncer.Option{
		syncer.WithCatalog(syncer.Catalog(settings.Group)),
		syncer.WithLocation(loc),
		syncer.WithLogger(logger),
		syncer.WithObserver(recorder),
		syncer.WithDryRun(dryRun),
	}
	if settings.JournalEnabled && !dryRun {
		st, err := store.Open(settings.JournalPath)
		if err != nil {
			logger.Warn("journal disabled for this run", "path", settings.JournalPath, "err", err)
		} else {
			defer func() {
				if cerr := st.Close(); cerr != nil {
					logger.Warn("failed to close journal", "err", cerr)
				}
			}()
			opts = append(opts, syncer.WithRecorder(st))
		}
	}
	s := syncer.New(rizeClient, existClient, opts...)

	printer := report.NewPrinter(cmd.OutOrStdout(), false)
	err = execute(cmd.Context(), s, printer, plan)
	writeMetrics(logger, recorder, settings.MetricsFile)
	return err
}

// runPlan is what the root command was asked to do.
type runPlan struct {
	migrate  bool
	setup    bool
	explicit *time.Time
	backfill bool
}

// execute runs plan and maps a run with failures to errRunFailed.
func execute(ctx context.Context, s *syncer.Syncer, printer *report.Printer, plan runPlan) error {
	ok, err := runMode(ctx, s, printer, plan)
	if err != nil {
		return err
	}
	if !ok {
		return errRunFailed
	}
	return nil
}

// runMode runs migrate then setup when either is requested, otherwise a sync.
func runMode(ctx context.Context, s *syncer.Syncer, printer *report.Printer, plan runPlan) (bool, error) {
	if plan.migrate || plan.setup {
		ok := true
		if plan.migrate {
			res := s.Migrate(ctx)
			if err := printer.Tally(syncer.ModeMigrate, res.Succeeded, res.Failed, res.Skipped); err != nil {
				return false, err
			}
			ok = ok && res.OK()
		}
		if plan.setup {
			res := s.Setup(ctx)
			if err := printer.Tally(syncer.ModeSetup, res.Succeeded, res.Failed, res.Skipped); err != nil {
				return false, err
			}
			ok = ok && res.OK()
		}
		return ok, nil
	}

	results, ok := s.Run(ctx, s.PlanDates(plan.explicit, plan.backfill))
	if err := printer.Days(results); err != nil {
		return false, err
	}
	return ok, nil
}

func newExistClient(settings config.Settings, httpClient *http.Client, logger *slog.Logger, recorder *metrics.Recorder) *exist.Client {
	opts := []exist.Option{
		exist.WithBaseURL(settings.ExistBaseURL),
		exist.WithTokenURL(settings.ExistTokenURL),
		exist.WithHTTPClient(httpClient),
		exist.WithLogger(logger),
		exist.WithTokenSaver(config.EnvFileTokenSaver{Path: settings.EnvFile}),
	}
	if recorder != nil {
		opts = append(opts, exist.WithRefreshHook(recorder.ObserveRefresh))
	}
	return exist.NewClient(settings.Credentials(), opts...)
}

func writeMetrics(logger *slog.Logger, recorder *metrics.Recorder, path string) {
	if path == "" {
		return
	}
	if err := recorder.WriteTextfile(path); err != nil {
		logger.Warn("metrics not written", "path", path, "err", err)
		return
	}
	logger.Debug("metrics written", "path", path)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := resolveConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newAttributesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attributes",
		Short: "List Exist attributes owned by this client",
		Args:  cobra.NoArgs,
		RunE:  runAttributesCmd,
	}
}

func runAttributesCmd(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	client := newExistClient(settings, &http.Client{Timeout: settings.Timeout}, logger, nil)
	attrs, err := client.OwnedAttributes(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list attributes: %w", err)
	}
	return report.NewPrinter(cmd.OutOrStdout(), false).Attributes(attrs)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the sync journal",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().BoolVar(&historyPlain, "plain", false, "print a plain table instead of the interactive view")
	cmd.Flags().IntVar(&historyLimit, "limit", defaultHistoryLimit, "show the last N runs (0 for all)")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLimit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	fileCfg, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := historyConfig(fileCfg, os.Getenv)
	if err != nil {
		return err
	}

	st, err := store.Open(config.JournalPath(fileCfg))
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close journal: %v\n", cerr)
		}
	}()

	out := cmd.OutOrStdout()
	if !historyPlain && report.IsTerminal(out) {
		program := tea.NewProgram(historyui.NewModel(st, cfg), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run history TUI: %w", err)
		}
		return nil
	}

	ctx := cmd.Context()
	runs, err := st.ListRuns(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	days, err := st.ListDays(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to list days: %w", err)
	}
	return report.NewPrinter(out, false).History(runs, days)
}

// loadSettings applies the env file, then the TOML config, then defaults.
func loadSettings() (config.Settings, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Settings{}, err
	}
	fileCfg, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	settings, err := config.Resolve(fileCfg, os.Getenv)
	if err != nil {
		return config.Settings{}, err
	}
	settings.EnvFile = envFile
	return settings, nil
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// historyConfig reads --since in the zone sync dates are computed in.
func historyConfig(fileCfg config.FileConfig, getenv func(string) string) (model.HistoryConfig, error) {
	cfg := model.HistoryConfig{Limit: historyLimit}
	if historySince == "" {
		return cfg, nil
	}
	loc := config.LoadLocation(config.Timezone(fileCfg, getenv))
	since, err := parseDate(historySince, loc)
	if err != nil {
		return cfg, fmt.Errorf("invalid --since value: %w", err)
	}
	cfg.Since = &since
	return cfg, nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	parsed, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return parsed, nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# rizexist configuration
# Uncomment a value to enable it. CLI flags override config values.
# API keys and tokens stay in the .env file.

[rize]
# endpoint = %q

[exist]
# base-url = %q
# token-url = %q
# group = %q

[sync]
# timezone = "Europe/Berlin"   # IANA name for calendar dates (default: local time)
# timeout = %q                 # HTTP timeout per request
# backfill = true              # Sync yesterday before today

[journal]
# enabled = true
# path = %q

[metrics]
# textfile = "/var/lib/node_exporter/textfile_collector/rizexist.prom"
`,
		config.DefaultRizeEndpoint,
		config.DefaultExistBaseURL,
		config.DefaultExistTokenURL,
		config.DefaultGroup,
		config.DefaultTimeout.String(),
		config.DefaultJournalPath(),
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
