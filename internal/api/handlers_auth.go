// handlers_auth.go - Phone/OTP sign-in handlers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kisan-sarthi/backend/internal/auth"
)

// OTPObserver is told the result of every OTP operation
type OTPObserver interface {
	ObserveOTP(op, result string)
}

// AuthHandlerImpl implements the AuthHandler interface
type AuthHandlerImpl struct {
	svc      AuthService
	observer OTPObserver
}

// NewAuthHandler creates a new auth handler. observer may be nil.
func NewAuthHandler(svc AuthService, observer OTPObserver) AuthHandler {
	return &AuthHandlerImpl{svc: svc, observer: observer}
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

type verifyOTPRequest struct {
	RequestID string `json:"requestId"`
	Code      string `json:"code"`
}

func (h *AuthHandlerImpl) observe(op string, err error) {
	if h.observer == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if apiErr := translate(err); apiErr != nil {
			result = strings.ToLower(apiErr.Code)
		}
	}
	h.observer.ObserveOTP(op, result)
}

// HandleSendOTP sends a one-time code to a phone number
func (h *AuthHandlerImpl) HandleSendOTP(c echo.Context) error {
	var req sendOTPRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if strings.TrimSpace(req.Phone) == "" {
		return NewValidationError("phone", "is required")
	}

	requestID, err := h.svc.SendOTP(c.Request().Context(), req.Phone)
	h.observe("send", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"requestId": requestID})
}

// HandleVerifyOTP exchanges a code for a session
func (h *AuthHandlerImpl) HandleVerifyOTP(c echo.Context) error {
	var req verifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.RequestID == "" {
		return NewValidationError("requestId", "is required")
	}
	if strings.TrimSpace(req.Code) == "" {
		return NewValidationError("code", "is required")
	}

	sess, err := h.svc.VerifyOTP(c.Request().Context(), req.RequestID, strings.TrimSpace(req.Code))
	h.observe("verify", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleSession returns the session of the bearer token
func (h *AuthHandlerImpl) HandleSession(c echo.Context) error {
	token, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		return NewUnauthorizedError("missing bearer token")
	}
	sess, err := h.svc.CurrentSession(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleLogout revokes the bearer token
func (h *AuthHandlerImpl) HandleLogout(c echo.Context) error {
	token, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	if err := h.svc.Logout(c.Request().Context(), token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
