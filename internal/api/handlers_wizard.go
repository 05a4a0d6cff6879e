// handlers_wizard.go - Server-side listing wizard handlers
package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kisan-sarthi/backend/internal/auth"
	"github.com/kisan-sarthi/backend/internal/models"
	"github.com/kisan-sarthi/backend/internal/wizard"
)

// WizardHandlerImpl implements the WizardHandler interface
type WizardHandlerImpl struct {
	wizards *wizard.Manager
}

// NewWizardHandler creates a new wizard handler
func NewWizardHandler(wizards *wizard.Manager) WizardHandler {
	return &WizardHandlerImpl{wizards: wizards}
}

type createWizardRequest struct {
	Kind string `json:"kind"`
}

type setFieldsRequest struct {
	Fields map[string]any `json:"fields"`
}

type schemaResponse struct {
	Kind     models.CollectionKind `json:"kind"`
	Steps    []wizard.Step         `json:"steps"`
	Required []string              `json:"required"`
	Defaults map[string]any        `json:"defaults"`
}

// HandleGetSchema describes the steps of a listing kind
func (h *WizardHandlerImpl) HandleGetSchema(c echo.Context) error {
	kind, err := models.ParseCollectionKind(c.Param("kind"))
	if err != nil {
		return NewValidationError("kind", err.Error())
	}
	s, err := wizard.SchemaFor(kind)
	if err != nil {
		return NewValidationError("kind", err.Error())
	}
	return c.JSON(http.StatusOK, schemaResponse{
		Kind:     s.Kind,
		Steps:    s.Steps,
		Required: s.Required,
		Defaults: s.Defaults,
	})
}

// HandleCreateWizard opens a wizard owned by the caller
func (h *WizardHandlerImpl) HandleCreateWizard(c echo.Context) error {
	var req createWizardRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	kind, err := models.ParseCollectionKind(req.Kind)
	if err != nil {
		return NewValidationError("kind", err.Error())
	}
	p, _ := auth.PrincipalFrom(c)
	v, err := h.wizards.Create(kind, p.ID)
	if err != nil {
		return NewInternalError("failed to create wizard", err)
	}
	return c.JSON(http.StatusCreated, v)
}

// owned returns the wizard of :id if the caller owns it. Wizards of other
// users are reported as not found.
func (h *WizardHandlerImpl) owned(c echo.Context) (*wizard.Wizard, string, error) {
	id := c.Param("id")
	v, err := h.wizards.Get(id)
	if err != nil {
		return nil, id, err
	}
	if p, _ := auth.PrincipalFrom(c); v.OwnerID != p.ID {
		return nil, id, wizard.ErrNotFound
	}
	w, err := h.wizards.Wizard(id)
	return w, id, err
}

func (h *WizardHandlerImpl) view(c echo.Context, status int, id string) error {
	v, err := h.wizards.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(status, v)
}

// HandleGetWizard returns the wizard view
func (h *WizardHandlerImpl) HandleGetWizard(c echo.Context) error {
	_, id, err := h.owned(c)
	if err != nil {
		return err
	}
	return h.view(c, http.StatusOK, id)
}

// HandleSetFields merges field values into the form
func (h *WizardHandlerImpl) HandleSetFields(c echo.Context) error {
	w, id, err := h.owned(c)
	if err != nil {
		return err
	}
	var req setFieldsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := w.SetFields(req.Fields); err != nil {
		return err
	}
	return h.view(c, http.StatusOK, id)
}

// HandleNextStep advances one step
func (h *WizardHandlerImpl) HandleNextStep(c echo.Context) error {
	w, id, err := h.owned(c)
	if err != nil {
		return err
	}
	w.Next()
	return h.view(c, http.StatusOK, id)
}

// HandlePreviousStep goes back one step
func (h *WizardHandlerImpl) HandlePreviousStep(c echo.Context) error {
	w, id, err := h.owned(c)
	if err != nil {
		return err
	}
	w.Previous()
	return h.view(c, http.StatusOK, id)
}

// HandleSelectFiles replaces the file selection with the multipart "files"
// parts. Content is buffered because the submission outlives the request.
func (h *WizardHandlerImpl) HandleSelectFiles(c echo.Context) error {
	w, id, err := h.owned(c)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return NewValidationError("files", "at least one file is required")
	}

	files := make([]wizard.File, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return NewInternalError("failed to open uploaded file", err)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return NewBadRequestError("failed to read uploaded file", err)
		}
		contentType := fh.Header.Get(echo.HeaderContentType)
		if contentType == echo.MIMEOctetStream {
			contentType = ""
		}
		files = append(files, wizard.BytesFile(fh.Filename, contentType, data))
	}

	if err := w.SelectFiles(files); err != nil {
		return err
	}
	return h.view(c, http.StatusOK, id)
}

// HandleSubmit starts the submission in the background
func (h *WizardHandlerImpl) HandleSubmit(c echo.Context) error {
	_, id, err := h.owned(c)
	if err != nil {
		return err
	}
	v, err := h.wizards.StartSubmit(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, v)
}

// HandleDeleteWizard discards the wizard and its previews
func (h *WizardHandlerImpl) HandleDeleteWizard(c echo.Context) error {
	_, id, err := h.owned(c)
	if err != nil {
		return err
	}
	if err := h.wizards.Remove(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
