package rize

import (
	"time"

	"github.com/verte-zerg/rizexist/internal/model"
)

// DayData is the raw per-day payload returned by Rize.
type DayData struct {
	Summary    model.Summary
	Categories []model.Category
	Sessions   []model.Session
}

// Derive turns a raw day payload into metric values as of now.
//
// Tracked and focus time come from category sums, falling back to the
// aggregate summary when Rize returns no categories. Sessions that have not
// started by now are ignored, and running sessions are clipped to now.
func Derive(data DayData, now time.Time) map[string]int64 {
	tracked, focus := data.Summary.TrackedTime, data.Summary.FocusTime
	if len(data.Categories) > 0 {
		tracked, focus = 0, 0
		for _, c := range data.Categories {
			tracked += c.TimeSpent
			if c.Focus {
				focus += c.TimeSpent
			}
		}
	}

	values := map[string]int64{
		model.MetricTrackedTime:     tracked,
		model.MetricFocusTime:       focus,
		model.MetricBreakTime:       tracked - focus,
		model.MetricMeetingTime:     MeetingSeconds(data.Sessions, now),
		model.MetricFocusSessions:   0,
		model.MetricBreakSessions:   0,
		model.MetricMeetingSessions: 0,
	}
	for sessionType, n := range CountSessions(data.Sessions, now) {
		values[sessionType+"_sessions"] = n
	}
	return values
}

// MeetingSeconds sums the elapsed part of every meeting session started before now.
func MeetingSeconds(sessions []model.Session, now time.Time) int64 {
	var total time.Duration
	for _, s := range sessions {
		if s.Type != model.SessionMeeting || !s.Start.Before(now) {
			continue
		}
		end := s.End
		if end.IsZero() || end.After(now) {
			end = now
		}
		if end.After(s.Start) {
			total += end.Sub(s.Start)
		}
	}
	return int64(total / time.Second)
}

// CountSessions counts sessions per type, skipping those not yet started.
func CountSessions(sessions []model.Session, now time.Time) map[string]int64 {
	counts := map[string]int64{}
	for _, s := range sessions {
		if s.Type == "" || !s.Start.Before(now) {
			continue
		}
		counts[s.Type]++
	}
	return counts
}
