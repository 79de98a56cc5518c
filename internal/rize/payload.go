package rize

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/verte-zerg/rizexist/internal/model"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   dayPayload `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type dayPayload struct {
	Summaries  summaryPayload    `json:"summaries"`
	Categories []categoryPayload `json:"categories"`
	Sessions   []sessionPayload  `json:"sessions"`
}

type summaryFields struct {
	FocusTime   float64 `json:"focusTime"`
	TrackedTime float64 `json:"trackedTime"`
	BreakTime   float64 `json:"breakTime"`
	MeetingTime float64 `json:"meetingTime"`
}

// summaryPayload accepts either a single bucket object or a list of buckets.
type summaryPayload struct {
	summaryFields
}

func (s *summaryPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '[' {
		return json.Unmarshal(data, &s.summaryFields)
	}
	var buckets []summaryFields
	if err := json.Unmarshal(data, &buckets); err != nil {
		return err
	}
	for _, b := range buckets {
		s.FocusTime += b.FocusTime
		s.TrackedTime += b.TrackedTime
		s.BreakTime += b.BreakTime
		s.MeetingTime += b.MeetingTime
	}
	return nil
}

type categoryPayload struct {
	Name      string  `json:"name"`
	Key       string  `json:"key"`
	TimeSpent float64 `json:"timeSpent"`
	Focus     bool    `json:"focus"`
}

type sessionPayload struct {
	Type      string     `json:"type"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

func (p dayPayload) toDayData() DayData {
	data := DayData{
		Summary: model.Summary{
			FocusTime:   int64(p.Summaries.FocusTime),
			TrackedTime: int64(p.Summaries.TrackedTime),
			BreakTime:   int64(p.Summaries.BreakTime),
			MeetingTime: int64(p.Summaries.MeetingTime),
		},
		Categories: make([]model.Category, 0, len(p.Categories)),
		Sessions:   make([]model.Session, 0, len(p.Sessions)),
	}
	for _, c := range p.Categories {
		data.Categories = append(data.Categories, model.Category{
			Name:      c.Name,
			Key:       c.Key,
			TimeSpent: int64(c.TimeSpent),
			Focus:     c.Focus,
		})
	}
	for _, s := range p.Sessions {
		session := model.Session{Type: strings.ToLower(strings.TrimSpace(s.Type)), Start: s.StartTime}
		if s.EndTime != nil {
			session.End = *s.EndTime
		}
		data.Sessions = append(data.Sessions, session)
	}
	return data
}
