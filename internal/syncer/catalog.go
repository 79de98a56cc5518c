package syncer

import "github.com/verte-zerg/rizexist/internal/model"

// Catalog returns the attributes written on every sync, all in group.
func Catalog(group string) []model.AttributeSpec {
	return []model.AttributeSpec{
		{Name: "rize_focus", Label: "Rize Focus", ValueType: model.ValueDuration, Group: group, Metric: model.MetricFocusTime},
		{Name: "rize_tracked", Label: "Rize Tracked", ValueType: model.ValueDuration, Group: group, Metric: model.MetricTrackedTime},
		{Name: "rize_break", Label: "Rize Break", ValueType: model.ValueDuration, Group: group, Metric: model.MetricBreakTime},
		{Name: "rize_meetings", Label: "Rize Meetings", ValueType: model.ValueDuration, Group: group, Metric: model.MetricMeetingTime},
		{Name: "rize_focus_sessions", Label: "Rize Focus Sessions", ValueType: model.ValueInteger, Group: group, Metric: model.MetricFocusSessions},
		{Name: "rize_break_sessions", Label: "Rize Break Sessions", ValueType: model.ValueInteger, Group: group, Metric: model.MetricBreakSessions},
		{Name: "rize_meeting_sessions", Label: "Rize Meeting Sessions", ValueType: model.ValueInteger, Group: group, Metric: model.MetricMeetingSessions},
	}
}

// SupersededAttributes lists attribute names replaced by the catalog.
func SupersededAttributes() []string {
	return []string{"rize_focus_time", "rize_tracked_time"}
}

// Convert turns a raw metric into the value Exist expects for the attribute.
// Durations are stored in whole minutes.
func Convert(spec model.AttributeSpec, raw int64) int64 {
	if spec.ValueType == model.ValueDuration {
		return floorDiv(raw, 60)
	}
	return raw
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
