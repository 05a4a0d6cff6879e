package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisan-sarthi/backend/internal/assistant"
	"github.com/kisan-sarthi/backend/internal/weather"
)

type stubAsker struct {
	reply string
	err   error
}

func (s stubAsker) Ask(_ context.Context, question string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply + ": " + question, nil
}

type stubWeather struct {
	cur *weather.Current
	err error
}

func (s stubWeather) Current(_ context.Context, lat, lon float64) (*weather.Current, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, weather.ErrInvalidCoordinates
	}
	return s.cur, s.err
}

func TestChat(t *testing.T) {
	s := newTestServer(t, func(d *Dependencies) { d.Assistant = stubAsker{reply: "answer"} })

	rec := s.doJSON(t, http.MethodPost, "/api/assistant/chat", `{"message":"when to sow wheat"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "answer: when to sow wheat", extractString(t, rec.Body.Bytes(), "reply"))
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		asker  Asker
		status int
	}{
		{"not wired", nil, http.StatusServiceUnavailable},
		{"not configured", stubAsker{err: assistant.ErrNotConfigured}, http.StatusServiceUnavailable},
		{"empty question", stubAsker{err: assistant.ErrEmptyQuestion}, http.StatusBadRequest},
		{"upstream", stubAsker{err: errors.New("quota exceeded")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(d *Dependencies) { d.Assistant = tt.asker })
			rec := s.doJSON(t, http.MethodPost, "/api/assistant/chat", `{"message":"hi"}`, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestWeather(t *testing.T) {
	cur := &weather.Current{TemperatureC: 31.5, RelativeHumidity: 40, IsDay: true, Timezone: "Asia/Kolkata"}
	s := newTestServer(t, func(d *Dependencies) { d.Weather = stubWeather{cur: cur} })

	rec := s.doJSON(t, http.MethodGet, "/api/weather?lat=18.52&lon=73.85", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"temperatureC":31.5`)
	assert.Contains(t, rec.Body.String(), `"timezone":"Asia/Kolkata"`)

	rec = s.doJSON(t, http.MethodGet, "/api/weather?lat=abc&lon=73.85", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "lat", decodeAPIError(t, rec).Field)

	rec = s.doJSON(t, http.MethodGet, "/api/weather?lat=95&lon=73.85", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeatherUpstreamFailure(t *testing.T) {
	s := newTestServer(t, func(d *Dependencies) { d.Weather = stubWeather{err: errors.New("timeout")} })

	rec := s.doJSON(t, http.MethodGet, "/api/weather?lat=18.52&lon=73.85", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_ERROR", decodeAPIError(t, rec).Code)
}

func TestWeatherNotWired(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(t, http.MethodGet, "/api/weather?lat=1&lon=1", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
