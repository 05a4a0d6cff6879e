package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kisan-sarthi/backend/internal/models"
)

const mimeMsgpack = "application/msgpack"

// ListingFetcher loads feed pages of one kind. It implements feed.Fetcher.
type ListingFetcher struct {
	client    *Client
	kind      models.CollectionKind
	attribute string
	value     string
}

// Listings returns a fetcher for the feed of kind.
func (c *Client) Listings(kind models.CollectionKind) *ListingFetcher {
	return &ListingFetcher{client: c, kind: kind}
}

// Where narrows the feed to listings whose attribute equals value.
func (f *ListingFetcher) Where(attribute, value string) *ListingFetcher {
	cp := *f
	cp.attribute, cp.value = attribute, value
	return &cp
}

// Fetch requests one page as msgpack.
func (f *ListingFetcher) Fetch(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	q := url.Values{}
	q.Set("kind", string(f.kind))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if f.attribute != "" {
		q.Set("attribute", f.attribute)
		q.Set("value", f.value)
	}

	req, err := f.client.newRequest(ctx, http.MethodGet, "/api/listings?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", mimeMsgpack)
	body, err := f.client.do(req)
	if err != nil {
		return nil, err
	}

	var page models.ListingPage
	dec := msgpack.NewDecoder(bytes.NewReader(body))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}
	return page.Items, nil
}

// Creator creates listing records. It implements wizard.RecordCreator.
type Creator struct {
	client *Client
}

// Creator returns the record creator of c.
func (c *Client) Creator() *Creator {
	return &Creator{client: c}
}

// Create posts an assembled field map as a new listing. The media URLs
// travel beside the fields; the server sets the owner from the token.
func (cr *Creator) Create(ctx context.Context, kind models.CollectionKind, fields map[string]any) (*models.Listing, error) {
	body := map[string]any{"kind": kind}
	rest := make(map[string]any, len(fields))
	for name, v := range fields {
		switch name {
		case "media":
			body["media"] = v
		case "userId":
		default:
			rest[name] = v
		}
	}
	body["fields"] = rest

	var l models.Listing
	err := cr.client.doJSON(ctx, http.MethodPost, "/api/listings", body, &l)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
