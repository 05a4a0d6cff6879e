package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kisan-sarthi/backend/internal/models"
)

// ErrNotFound is returned when no listing has the requested id.
var ErrNotFound = errors.New("listing not found")

// ErrUnknownAttribute is returned for a lookup attribute outside the whitelist.
var ErrUnknownAttribute = errors.New("unknown lookup attribute")

// attributeColumns maps lookup attributes to columns.
var attributeColumns = map[string]string{
	"city":    "city",
	"state":   "state",
	"pincode": "pincode",
	"ownerId": "owner_id",
	"status":  "status",
}

const listingColumns = `id, kind, owner_id, title, description, price, quantity, unit,
	city, state, pincode, status, media, attributes, created_at`

// ListingRepository persists listings.
type ListingRepository struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

// NewListingRepository wraps db. The dialect is taken from the driver name.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	d := Postgres
	if db.DriverName() == string(DuckDB) {
		d = DuckDB
	}
	return &ListingRepository{db: db, dialect: d, now: time.Now}
}

// Migrate creates the listings table and its indexes.
func (r *ListingRepository) Migrate(ctx context.Context) error {
	real, ts := "DOUBLE PRECISION", "TIMESTAMPTZ"
	if r.dialect == DuckDB {
		real, ts = "DOUBLE", "TIMESTAMP"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS listings (
			id          VARCHAR PRIMARY KEY,
			kind        VARCHAR NOT NULL,
			owner_id    VARCHAR NOT NULL DEFAULT '',
			title       VARCHAR NOT NULL,
			description VARCHAR NOT NULL DEFAULT '',
			price       %[1]s NOT NULL DEFAULT 0,
			quantity    %[1]s NOT NULL DEFAULT 0,
			unit        VARCHAR NOT NULL DEFAULT '',
			city        VARCHAR NOT NULL DEFAULT '',
			state       VARCHAR NOT NULL DEFAULT '',
			pincode     VARCHAR NOT NULL DEFAULT '',
			status      VARCHAR NOT NULL DEFAULT '',
			media       TEXT NOT NULL DEFAULT '[]',
			attributes  TEXT NOT NULL DEFAULT '{}',
			created_at  %[2]s NOT NULL
		)`, real, ts),
		`CREATE INDEX IF NOT EXISTS listings_kind_created ON listings (kind, created_at)`,
		`CREATE INDEX IF NOT EXISTS listings_owner ON listings (owner_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate listings: %w", err)
		}
	}
	return nil
}

// Create stores a listing assembled from a wizard field map.
func (r *ListingRepository) Create(ctx context.Context, kind models.CollectionKind, fields map[string]any) (*models.Listing, error) {
	l, err := models.ListingFromFields(kind, fields)
	if err != nil {
		return nil, err
	}
	if l.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	l.ID = uuid.NewString()
	l.CreatedAt = r.now().UTC().Truncate(time.Microsecond)
	if l.Status == "" && kind == models.KindProduct {
		l.Status = models.StatusAvailable
	}

	// JSON columns are encoded here so every driver receives plain strings.
	media, err := l.Media.Value()
	if err != nil {
		return nil, fmt.Errorf("encode media: %w", err)
	}
	attrs, err := l.Attributes.Value()
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	query := r.db.Rebind(`INSERT INTO listings (` + listingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		l.ID, string(l.Kind), l.OwnerID, l.Title, l.Description, l.Price, l.Quantity, l.Unit,
		l.City, l.State, l.Pincode, l.Status, media, attrs, l.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	return l, nil
}

// GetByID returns one listing.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	query := r.db.Rebind(`SELECT ` + listingColumns + ` FROM listings WHERE id = ?`)
	if err := r.db.GetContext(ctx, &l, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}

// List returns one page of listings of kind, newest first. Ties on created_at
// are broken by id so pages stay stable for a fixed data set.
func (r *ListingRepository) List(ctx context.Context, kind models.CollectionKind, limit, offset int) ([]models.Listing, error) {
	list := []models.Listing{}
	query := r.db.Rebind(`SELECT ` + listingColumns + ` FROM listings
		WHERE kind = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &list, query, string(kind), limit, offset); err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return list, nil
}

// ListByAttribute is List filtered on one whitelisted attribute.
func (r *ListingRepository) ListByAttribute(ctx context.Context, kind models.CollectionKind, attribute, value string, limit, offset int) ([]models.Listing, error) {
	column, ok := attributeColumns[attribute]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, attribute)
	}
	list := []models.Listing{}
	query := r.db.Rebind(`SELECT ` + listingColumns + ` FROM listings
		WHERE kind = ? AND ` + column + ` = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &list, query, string(kind), value, limit, offset); err != nil {
		return nil, fmt.Errorf("list listings by %s: %w", attribute, err)
	}
	return list, nil
}

// Delete removes a listing.
func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM listings WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of listings of kind.
func (r *ListingRepository) Count(ctx context.Context, kind models.CollectionKind) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM listings WHERE kind = ?`), string(kind)); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}
