package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingFromFields_Product(t *testing.T) {
	l, err := ListingFromFields(KindProduct, map[string]any{
		"title":        " Basmati rice ",
		"sellingPrice": 120,
		"quantity":     "50",
		"quantityUnit": UnitKilogram,
		"description":  "Fresh harvest",
		"status":       StatusAvailable,
		"negotiable":   true,
		"userId":       "user-1",
		"media":        []string{"/api/media/a"},
	})
	require.NoError(t, err)

	assert.Equal(t, KindProduct, l.Kind)
	assert.Equal(t, "Basmati rice", l.Title)
	assert.Equal(t, 120.0, l.Price)
	assert.Equal(t, 50.0, l.Quantity)
	assert.Equal(t, "kg", l.Unit)
	assert.Equal(t, "user-1", l.OwnerID)
	assert.Equal(t, StringList{"/api/media/a"}, l.Media)
	assert.Equal(t, true, l.Attributes["negotiable"])
}

func TestListingFromFields_Land(t *testing.T) {
	l, err := ListingFromFields(KindLand, map[string]any{
		"title":        "Two acre plot",
		"rentPerMonth": "8000",
		"area":         2.5,
		"areaUnit":     "acre",
		"pincode":      "411001",
		"soilType":     "Black Soil",
		"media":        []any{"/api/media/x", "/api/media/y"},
	})
	require.NoError(t, err)

	assert.Equal(t, 8000.0, l.Price)
	assert.Equal(t, 2.5, l.Quantity)
	assert.Equal(t, "acre", l.Unit)
	assert.Equal(t, "411001", l.Pincode)
	assert.Equal(t, "Black Soil", l.Attributes["soilType"])
	assert.Len(t, l.Media, 2)

	// sellingPrice is not a land column, so it is kept as an attribute
	l, err = ListingFromFields(KindLand, map[string]any{"sellingPrice": "1"})
	require.NoError(t, err)
	assert.Equal(t, "1", l.Attributes["sellingPrice"])
}

func TestListingFromFields_RejectsBadNumbers(t *testing.T) {
	_, err := ListingFromFields(KindProduct, map[string]any{"sellingPrice": "cheap"})
	assert.Error(t, err)

	_, err = ListingFromFields(KindProduct, map[string]any{"media": []any{1}})
	assert.Error(t, err)
}

func TestStringListScan(t *testing.T) {
	var s StringList
	require.NoError(t, s.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, StringList{"a", "b"}, s)

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, StringList{}, s)

	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestAttributesScan(t *testing.T) {
	var a Attributes
	require.NoError(t, a.Scan(`{"water":true}`))
	assert.Equal(t, true, a["water"])
	assert.Error(t, a.Scan(42))
}

func TestParseCollectionKind(t *testing.T) {
	k, err := ParseCollectionKind(" Land ")
	require.NoError(t, err)
	assert.Equal(t, KindLand, k)

	_, err = ParseCollectionKind("order")
	assert.Error(t, err)
}
