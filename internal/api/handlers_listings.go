// handlers_listings.go - Listing feed, lookup and creation handlers
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kisan-sarthi/backend/internal/auth"
	"github.com/kisan-sarthi/backend/internal/models"
	"github.com/kisan-sarthi/backend/internal/storage"
	"github.com/kisan-sarthi/backend/internal/wizard"
)

// MIMEMsgpack is the content type of msgpack responses
const MIMEMsgpack = "application/msgpack"

// PageObserver is told about every served feed page
type PageObserver interface {
	ObservePage(kind models.CollectionKind, items int)
}

// MediaResolver maps a media URL to the stored blob it names
type MediaResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// ListingHandlerImpl implements the ListingHandler interface
type ListingHandlerImpl struct {
	listings    ListingStore
	media       MediaResolver
	pageSize    int
	maxPageSize int
	observer    PageObserver
}

// NewListingHandler creates a new listing handler. observer may be nil;
// with a nil media resolver created listings carry no media.
func NewListingHandler(listings ListingStore, media MediaResolver, pageSize, maxPageSize int, observer PageObserver) ListingHandler {
	if pageSize <= 0 {
		pageSize = 5
	}
	if maxPageSize < pageSize {
		maxPageSize = pageSize
	}
	return &ListingHandlerImpl{
		listings:    listings,
		media:       media,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
		observer:    observer,
	}
}

type createListingRequest struct {
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields"`
	Media  []string       `json:"media"`
}

// HandleListListings returns one page of a feed:
// GET /api/listings?kind=land&limit=5&offset=10[&attribute=city&value=Pune]
func (h *ListingHandlerImpl) HandleListListings(c echo.Context) error {
	kind, err := models.ParseCollectionKind(c.QueryParam("kind"))
	if err != nil {
		return NewValidationError("kind", err.Error())
	}
	limit, err := intParam(c, "limit", h.pageSize)
	if err != nil || limit <= 0 || limit > h.maxPageSize {
		return NewValidationError("limit", "must be between 1 and "+strconv.Itoa(h.maxPageSize))
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil || offset < 0 {
		return NewValidationError("offset", "must be a non-negative integer")
	}

	ctx := c.Request().Context()
	var items []models.Listing
	if attr := c.QueryParam("attribute"); attr != "" {
		items, err = h.listings.ListByAttribute(ctx, kind, attr, c.QueryParam("value"), limit, offset)
	} else {
		items, err = h.listings.List(ctx, kind, limit, offset)
	}
	if err != nil {
		if apiErr := translate(err); apiErr != nil {
			return apiErr
		}
		return NewInternalError("failed to list listings", err)
	}
	if h.observer != nil {
		h.observer.ObservePage(kind, len(items))
	}

	return respond(c, http.StatusOK, models.ListingPage{
		Kind:   kind,
		Items:  items,
		Limit:  limit,
		Offset: offset,
	})
}

// HandleGetListing returns one listing
func (h *ListingHandlerImpl) HandleGetListing(c echo.Context) error {
	id := c.Param("id")
	l, err := h.listings.GetByID(c.Request().Context(), id)
	if err != nil {
		if apiErr := translate(err); apiErr != nil && apiErr.Status == http.StatusNotFound {
			return NewNotFoundError("listing", id)
		}
		return NewInternalError("failed to get listing", err)
	}
	return respond(c, http.StatusOK, l)
}

// HandleCreateListing creates a listing owned by the caller. Fields are
// checked with the same rules the wizard applies before submitting. Media
// must be URLs of blobs uploaded to this server; the owner comes from the
// session, never from the body.
func (h *ListingHandlerImpl) HandleCreateListing(c echo.Context) error {
	var req createListingRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	kind, err := models.ParseCollectionKind(req.Kind)
	if err != nil {
		return NewValidationError("kind", err.Error())
	}
	schema, err := wizard.SchemaFor(kind)
	if err != nil {
		return NewValidationError("kind", err.Error())
	}
	if req.Fields == nil {
		req.Fields = map[string]any{}
	}
	for name := range req.Fields {
		if !schema.HasField(name) {
			return NewValidationError(name, "unknown field")
		}
	}
	media, err := h.resolveMedia(c.Request().Context(), req.Media)
	if err != nil {
		return err
	}
	for name, v := range schema.Defaults {
		if _, ok := req.Fields[name]; !ok {
			req.Fields[name] = v
		}
	}
	if err := schema.Validate(req.Fields); err != nil {
		return err
	}
	fields, err := schema.Normalize(req.Fields)
	if err != nil {
		return err
	}

	fields["media"] = media
	if p, ok := auth.PrincipalFrom(c); ok {
		fields["userId"] = p.ID
	}

	l, err := h.listings.Create(c.Request().Context(), kind, fields)
	if err != nil {
		if apiErr := translate(err); apiErr != nil {
			return apiErr
		}
		return NewInternalError("failed to create listing", err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *ListingHandlerImpl) resolveMedia(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return []string{}, nil
	}
	if h.media == nil {
		return nil, NewValidationError("media", "media uploads are not available")
	}
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		_, err := h.media.Resolve(ctx, u)
		switch {
		case errors.Is(err, storage.ErrForeignMedia):
			return nil, NewValidationError("media", "must be a URL returned by POST /api/media")
		case errors.Is(err, storage.ErrFileNotFound):
			return nil, NewValidationError("media", "no uploaded file at "+u)
		case err != nil:
			return nil, NewInternalError("failed to look up media", err)
		}
		out = append(out, u)
	}
	return out, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// respond writes v as msgpack when the client asks for it and as JSON
// otherwise. Msgpack uses the json field names.
func respond(c echo.Context, status int, v any) error {
	if !strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEMsgpack) {
		return c.JSON(status, v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(status, MIMEMsgpack, buf.Bytes())
}
