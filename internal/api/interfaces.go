// interfaces.go - Handler and collaborator interfaces
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/kisan-sarthi/backend/internal/models"
	"github.com/kisan-sarthi/backend/internal/weather"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// AuthHandler handles phone/OTP sign-in
type AuthHandler interface {
	HandleSendOTP(c echo.Context) error
	HandleVerifyOTP(c echo.Context) error
	HandleSession(c echo.Context) error
	HandleLogout(c echo.Context) error
}

// ListingHandler handles listing fetch, lookup and creation
type ListingHandler interface {
	HandleListListings(c echo.Context) error
	HandleGetListing(c echo.Context) error
	HandleCreateListing(c echo.Context) error
}

// MediaHandler handles listing media blobs
type MediaHandler interface {
	HandleUploadMedia(c echo.Context) error
	HandleGetMedia(c echo.Context) error
}

// WizardHandler handles server-side listing wizards
type WizardHandler interface {
	HandleGetSchema(c echo.Context) error
	HandleCreateWizard(c echo.Context) error
	HandleGetWizard(c echo.Context) error
	HandleSetFields(c echo.Context) error
	HandleNextStep(c echo.Context) error
	HandlePreviousStep(c echo.Context) error
	HandleSelectFiles(c echo.Context) error
	HandleSubmit(c echo.Context) error
	HandleDeleteWizard(c echo.Context) error
}

// AssistantHandler handles the chat assistant and weather widgets
type AssistantHandler interface {
	HandleChat(c echo.Context) error
	HandleWeather(c echo.Context) error
}

// ListingStore is the listing repository as seen by the handlers
type ListingStore interface {
	Create(ctx context.Context, kind models.CollectionKind, fields map[string]any) (*models.Listing, error)
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	List(ctx context.Context, kind models.CollectionKind, limit, offset int) ([]models.Listing, error)
	ListByAttribute(ctx context.Context, kind models.CollectionKind, attribute, value string, limit, offset int) ([]models.Listing, error)
}

// AuthService is the OTP sign-in service
type AuthService interface {
	SendOTP(ctx context.Context, phone string) (string, error)
	VerifyOTP(ctx context.Context, requestID, code string) (*models.Session, error)
	CurrentSession(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context, token string) error
}

// Asker answers free-text questions
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// WeatherSource reads current conditions
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Current, error)
}

// Pinger reports database reachability
type Pinger interface {
	PingContext(ctx context.Context) error
}
