// handlers_assistant.go - Chat assistant and weather handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// AssistantHandlerImpl implements the AssistantHandler interface
type AssistantHandlerImpl struct {
	assistant Asker
	weather   WeatherSource
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(assistant Asker, weather WeatherSource) AssistantHandler {
	return &AssistantHandlerImpl{assistant: assistant, weather: weather}
}

type chatRequest struct {
	Message string `json:"message"`
}

// HandleChat answers one question
func (h *AssistantHandlerImpl) HandleChat(c echo.Context) error {
	if h.assistant == nil {
		return NewServiceUnavailableError("assistant is not configured")
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	reply, err := h.assistant.Ask(c.Request().Context(), req.Message)
	if err != nil {
		if apiErr := translate(err); apiErr != nil {
			return apiErr
		}
		return NewUpstreamError("assistant request failed", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"reply": reply})
}

// HandleWeather returns current conditions: GET /api/weather?lat=18.52&lon=73.85
func (h *AssistantHandlerImpl) HandleWeather(c echo.Context) error {
	if h.weather == nil {
		return NewServiceUnavailableError("weather is not configured")
	}
	lat, err := strconv.ParseFloat(c.QueryParam("lat"), 64)
	if err != nil {
		return NewValidationError("lat", "must be a number")
	}
	lon, err := strconv.ParseFloat(c.QueryParam("lon"), 64)
	if err != nil {
		return NewValidationError("lon", "must be a number")
	}
	cur, err := h.weather.Current(c.Request().Context(), lat, lon)
	if err != nil {
		if apiErr := translate(err); apiErr != nil {
			return apiErr
		}
		return NewUpstreamError("weather request failed", err)
	}
	return c.JSON(http.StatusOK, cur)
}
