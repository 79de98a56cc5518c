// Package model defines shared data structures.
package model

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used on both APIs and the CLI.
const DateLayout = "2006-01-02"

// Metric keys produced by the Rize reader.
const (
	MetricFocusTime       = "focus_time"
	MetricTrackedTime     = "tracked_time"
	MetricBreakTime       = "break_time"
	MetricMeetingTime     = "meeting_time"
	MetricFocusSessions   = "focus_sessions"
	MetricBreakSessions   = "break_sessions"
	MetricMeetingSessions = "meeting_sessions"
)

// Session types reported by Rize.
const (
	SessionFocus   = "focus"
	SessionBreak   = "break"
	SessionMeeting = "meeting"
)

// ValueType is an Exist attribute value type name.
type ValueType string

// Value types understood by Exist.
const (
	ValueInteger    ValueType = "integer"
	ValueFloat      ValueType = "float"
	ValueString     ValueType = "string"
	ValueDuration   ValueType = "duration"
	ValuePercentage ValueType = "percentage"
	ValueBoolean    ValueType = "boolean"
	ValueScale      ValueType = "scale"
	ValueTime       ValueType = "time"
)

var valueTypeCodes = map[ValueType]int{
	ValueInteger:    0,
	ValueFloat:      1,
	ValueString:     2,
	ValueDuration:   3,
	ValuePercentage: 4,
	ValueBoolean:    5,
	ValueScale:      6,
	ValueTime:       7,
}

// Code returns the numeric Exist code. Unknown names map to duration.
func (v ValueType) Code() int {
	if code, ok := valueTypeCodes[ValueType(strings.ToLower(string(v)))]; ok {
		return code
	}
	return valueTypeCodes[ValueDuration]
}

// AttributeSpec describes a custom attribute fed by one daily metric.
type AttributeSpec struct {
	Name      string
	Label     string
	ValueType ValueType
	Group     string
	Metric    string
}

// Attribute is an attribute as reported by Exist.
type Attribute struct {
	Name      string
	Label     string
	Group     string
	ValueType int
	Manual    bool
	Active    bool
}

// DailyMetrics holds one day's metric values, seconds for durations and plain counts otherwise.
type DailyMetrics struct {
	Date   time.Time
	Values map[string]int64
}

// Session is a timestamped activity interval. A zero End means still running.
type Session struct {
	Type  string
	Start time.Time
	End   time.Time
}

// Category is a per-category time breakdown entry.
type Category struct {
	Name      string
	Key       string
	TimeSpent int64
	Focus     bool
}

// Summary holds the aggregate times Rize reports for a day, in seconds.
type Summary struct {
	FocusTime   int64
	TrackedTime int64
	BreakTime   int64
	MeetingTime int64
}

// Credentials holds the Exist OAuth token pair and client credentials.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// CanRefresh reports whether a token refresh can be attempted.
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != "" && c.ClientID != "" && c.ClientSecret != ""
}

// AttributeUpdate is the outcome of writing one attribute value.
type AttributeUpdate struct {
	Attribute string
	Metric    string
	Raw       int64
	Value     int64
	Err       error
}

// DayResult is the outcome of syncing one date.
type DayResult struct {
	Date      time.Time
	FetchErr  error
	Updates   []AttributeUpdate
	Succeeded int
	Failed    int
	DryRun    bool
}

// OK reports whether the date synced without any failure.
func (r DayResult) OK() bool {
	return r.FetchErr == nil && r.Failed == 0
}

// RunEntry is a journaled sync run.
type RunEntry struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	OK         bool
}

// DayEntry is a journaled per-date outcome.
type DayEntry struct {
	RunID     string
	Date      string
	StartedAt time.Time
	Succeeded int
	Failed    int
	Error     string
}

// UpdateEntry is a journaled attribute write.
type UpdateEntry struct {
	RunID     string
	Date      string
	Attribute string
	Value     int64
	Error     string
}

// HistoryConfig filters the journal listing.
type HistoryConfig struct {
	Since *time.Time
	Limit int
}
