package rize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/rizexist/internal/clock"
	"github.com/verte-zerg/rizexist/internal/model"
)

func TestDailyMetricsQueriesDayAndDerives(t *testing.T) {
	var got graphQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{
			"summaries":{"focusTime":100,"trackedTime":200,"breakTime":0,"meetingTime":0},
			"categories":[
				{"name":"Code","key":"code","timeSpent":3661,"focus":true},
				{"name":"Email","key":"email","timeSpent":600,"focus":false}
			],
			"sessions":[
				{"type":"Meeting","startTime":"2024-03-10T13:00:00Z","endTime":"2024-03-10T13:45:00Z"},
				{"type":"meeting","startTime":"2024-03-10T14:40:00Z","endTime":null},
				{"type":"focus","startTime":"2024-03-10T16:00:00Z","endTime":"2024-03-10T17:00:00Z"}
			]
		}}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient("secret",
		WithEndpoint(server.URL),
		WithHTTPClient(server.Client()),
		WithClock(clock.Fixed(testNow)),
	)
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	metrics, err := client.DailyMetrics(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-10", got.Variables["startDate"])
	assert.Equal(t, "2024-03-10", got.Variables["endDate"])
	assert.Equal(t, "2024-03-10T00:00:00Z", got.Variables["startTime"])
	assert.Equal(t, "2024-03-11T00:00:00Z", got.Variables["endTime"])

	assert.Equal(t, int64(4261), metrics.Values[model.MetricTrackedTime])
	assert.Equal(t, int64(3661), metrics.Values[model.MetricFocusTime])
	assert.Equal(t, int64(600), metrics.Values[model.MetricBreakTime])
	assert.Equal(t, int64((45+20)*60), metrics.Values[model.MetricMeetingTime])
	assert.Equal(t, int64(2), metrics.Values[model.MetricMeetingSessions])
	assert.Equal(t, int64(0), metrics.Values[model.MetricFocusSessions])
}

func TestDailyMetricsErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"invalid token"}]}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient("bad", WithEndpoint(server.URL), WithHTTPClient(server.Client()))
	_, err := client.DailyMetrics(context.Background(), testNow)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestDailyMetricsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient("key", WithEndpoint(server.URL), WithHTTPClient(server.Client()))
	_, err := client.DailyMetrics(context.Background(), testNow)
	require.ErrorIs(t, err, ErrUpstream)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
}

func TestSummaryPayloadAcceptsBucketList(t *testing.T) {
	var payload dayPayload
	require.NoError(t, json.Unmarshal([]byte(`{"summaries":[{"focusTime":60,"trackedTime":120},{"focusTime":30,"trackedTime":30}]}`), &payload))
	data := payload.toDayData()
	assert.Equal(t, int64(90), data.Summary.FocusTime)
	assert.Equal(t, int64(150), data.Summary.TrackedTime)
}
