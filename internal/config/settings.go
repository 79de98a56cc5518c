package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/verte-zerg/rizexist/internal/model"
)

// Defaults for settings not provided by the config file.
const (
	DefaultRizeEndpoint  = "https://api.rize.io/api/v1/graphql"
	DefaultExistBaseURL  = "https://exist.io/api/2"
	DefaultExistTokenURL = "https://exist.io/oauth2/access_token"
	DefaultGroup         = "productivity"
	DefaultTimeout       = 30 * time.Second
)

// Environment variable names.
const (
	EnvRizeAPIKey        = "RIZE_API_KEY"
	EnvExistAccessToken  = "EXIST_ACCESS_TOKEN"
	EnvExistRefreshToken = "EXIST_REFRESH_TOKEN"
	EnvExistClientID     = "EXIST_CLIENT_ID"
	EnvExistClientSecret = "EXIST_CLIENT_SECRET"
	EnvTimezone          = "RIZEXIST_TIMEZONE"
	EnvMetricsTextfile   = "RIZEXIST_METRICS_TEXTFILE"
)

const envNameTag = "env"

// Settings is the resolved runtime configuration.
type Settings struct {
	RizeAPIKey   string `env:"RIZE_API_KEY" validate:"required"`
	RizeEndpoint string `env:"rize.endpoint" validate:"required,url"`

	ExistAccessToken  string `env:"EXIST_ACCESS_TOKEN" validate:"required"`
	ExistRefreshToken string `env:"EXIST_REFRESH_TOKEN"`
	ExistClientID     string `env:"EXIST_CLIENT_ID"`
	ExistClientSecret string `env:"EXIST_CLIENT_SECRET"`
	ExistBaseURL      string `env:"exist.base-url" validate:"required,url"`
	ExistTokenURL     string `env:"exist.token-url" validate:"required,url"`
	Group             string `env:"exist.group" validate:"required"`

	Timezone string        `env:"sync.timezone" validate:"omitempty,timezone"`
	Timeout  time.Duration `env:"sync.timeout" validate:"gt=0"`
	Backfill bool          `env:"sync.backfill"`

	JournalEnabled bool   `env:"journal.enabled"`
	JournalPath    string `env:"journal.path" validate:"required_if=JournalEnabled true"`
	MetricsFile    string `env:"metrics.textfile"`

	EnvFile string `env:"-"`
}

// Credentials returns the Exist credential set.
func (s Settings) Credentials() model.Credentials {
	return model.Credentials{
		AccessToken:  s.ExistAccessToken,
		RefreshToken: s.ExistRefreshToken,
		ClientID:     s.ExistClientID,
		ClientSecret: s.ExistClientSecret,
	}
}

// Location returns the configured timezone, or local time when unset.
func (s Settings) Location() *time.Location {
	return LoadLocation(s.Timezone)
}

// LoadLocation resolves an IANA zone name, falling back to local time.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// Timezone returns the zone calendar dates are computed in:
// RIZEXIST_TIMEZONE, then sync.timezone, then empty for local time.
func Timezone(file FileConfig, getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvTimezone)); v != "" {
		return v
	}
	return stringOr(file.Sync.Timezone, "")
}

// LoadEnvFile loads variables from a dotenv file without overriding the
// process environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Resolve merges the config file, the environment and defaults, then validates the result.
func Resolve(file FileConfig, getenv func(string) string) (Settings, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	s := Settings{
		RizeAPIKey:        strings.TrimSpace(getenv(EnvRizeAPIKey)),
		RizeEndpoint:      stringOr(file.Rize.Endpoint, DefaultRizeEndpoint),
		ExistAccessToken:  strings.TrimSpace(getenv(EnvExistAccessToken)),
		ExistRefreshToken: strings.TrimSpace(getenv(EnvExistRefreshToken)),
		ExistClientID:     strings.TrimSpace(getenv(EnvExistClientID)),
		ExistClientSecret: strings.TrimSpace(getenv(EnvExistClientSecret)),
		ExistBaseURL:      strings.TrimRight(stringOr(file.Exist.BaseURL, DefaultExistBaseURL), "/"),
		ExistTokenURL:     stringOr(file.Exist.TokenURL, DefaultExistTokenURL),
		Group:             stringOr(file.Exist.Group, DefaultGroup),
		Timezone:          Timezone(file, getenv),
		Timeout:           DefaultTimeout,
		Backfill:          true,
		JournalEnabled:    true,
		JournalPath:       JournalPath(file),
		MetricsFile:       stringOr(file.Metrics.Textfile, ""),
	}
	if file.Sync.Timeout != nil {
		s.Timeout = *file.Sync.Timeout
	}
	if file.Sync.Backfill != nil {
		s.Backfill = *file.Sync.Backfill
	}
	if file.Journal.Enabled != nil {
		s.JournalEnabled = *file.Journal.Enabled
	}
	if v := strings.TrimSpace(getenv(EnvMetricsTextfile)); v != "" {
		s.MetricsFile = v
	}
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks settings and reports every missing or invalid value at once.
func Validate(s Settings) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get(envNameTag)
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate settings: %w", err)
	}
	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			missing = append(missing, fe.Field())
		default:
			invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	}
	var lines []string
	if len(missing) > 0 {
		lines = append(lines, "missing required environment variables: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		lines = append(lines, fmt.Sprintf("invalid settings: %s", strings.Join(invalid, ", ")))
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

// JournalPath returns the configured journal location or the XDG default.
func JournalPath(file FileConfig) string {
	return stringOr(file.Journal.Path, DefaultJournalPath())
}

func stringOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	if v := strings.TrimSpace(*value); v != "" {
		return v
	}
	return fallback
}
