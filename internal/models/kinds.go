package models

import (
	"fmt"
	"strings"
)

// CollectionKind names the listing collection a record is created in.
type CollectionKind string

const (
	KindProduct CollectionKind = "product"
	KindLand    CollectionKind = "land"
)

// ParseCollectionKind accepts "product" or "land" in any case.
func ParseCollectionKind(s string) (CollectionKind, error) {
	switch CollectionKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindProduct:
		return KindProduct, nil
	case KindLand:
		return KindLand, nil
	default:
		return "", fmt.Errorf("unknown collection kind %q", s)
	}
}

// Availability statuses of a product listing.
const (
	StatusAvailable  = "available"
	StatusSold       = "sold"
	StatusProcessing = "processing"
)

// Quantity units of a product listing.
const (
	UnitKilogram = "kg"
	UnitLitres   = "ltr"
)

// AreaUnit is a selectable unit for land area.
type AreaUnit struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AreaUnits lists the land area units in display order.
var AreaUnits = []AreaUnit{
	{Name: "Square Feet", Value: "squarefeet"},
	{Name: "Square Meter", Value: "squaremeter"},
	{Name: "Acre", Value: "acre"},
	{Name: "Hectare", Value: "hectare"},
	{Name: "Bigha", Value: "bigha"},
	{Name: "Biswa", Value: "biswa"},
	{Name: "Kanal", Value: "kanal"},
	{Name: "Marla", Value: "marla"},
	{Name: "Guntha", Value: "guntha"},
	{Name: "Vigha", Value: "vigha"},
	{Name: "Ground", Value: "ground"},
	{Name: "Ankanam", Value: "ankanam"},
	{Name: "Cent", Value: "cent"},
	{Name: "Katha (Cottah)", Value: "katha_cottah"},
	{Name: "Dhur", Value: "dhur"},
}

// SoilTypes lists the soil classifications offered for land listings.
var SoilTypes = []string{
	"Alluvial Soil",
	"Black Soil",
	"Red Soil",
	"Laterite Soil",
	"Mountain Soil",
	"Desert Soil",
	"Peat Soil",
	"Saline and Alkaline Soil",
	"Marshy Soil",
	"Forest Soil",
}
