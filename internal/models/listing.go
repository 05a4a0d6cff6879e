package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Listing is a created product or land record.
type Listing struct {
	ID          string         `db:"id" json:"id"`
	Kind        CollectionKind `db:"kind" json:"kind"`
	OwnerID     string         `db:"owner_id" json:"ownerId"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Price       float64        `db:"price" json:"price"`
	Quantity    float64        `db:"quantity" json:"quantity"`
	Unit        string         `db:"unit" json:"unit"`
	City        string         `db:"city" json:"city"`
	State       string         `db:"state" json:"state"`
	Pincode     string         `db:"pincode" json:"pincode"`
	Status      string         `db:"status" json:"status"`
	Media       StringList     `db:"media" json:"media"`
	Attributes  Attributes     `db:"attributes" json:"attributes"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// priceField and quantityField name the form fields that land in the typed
// price/quantity/unit columns for each collection.
var (
	priceField    = map[CollectionKind]string{KindProduct: "sellingPrice", KindLand: "rentPerMonth"}
	quantityField = map[CollectionKind]string{KindProduct: "quantity", KindLand: "area"}
	unitField     = map[CollectionKind]string{KindProduct: "quantityUnit", KindLand: "areaUnit"}
)

// ListingFromFields maps an assembled wizard field map onto a Listing.
// Fields without a dedicated column are kept in Attributes.
func ListingFromFields(kind CollectionKind, fields map[string]any) (*Listing, error) {
	l := &Listing{Kind: kind, Attributes: Attributes{}}
	for name, value := range fields {
		var err error
		switch name {
		case "title":
			l.Title = stringValue(value)
		case "description":
			l.Description = stringValue(value)
		case "status":
			l.Status = stringValue(value)
		case "city":
			l.City = stringValue(value)
		case "state":
			l.State = stringValue(value)
		case "pincode":
			l.Pincode = stringValue(value)
		case "userId", "ownerId":
			l.OwnerID = stringValue(value)
		case "media":
			l.Media, err = stringListValue(value)
		case priceField[kind]:
			l.Price, err = floatValue(value)
		case quantityField[kind]:
			l.Quantity, err = floatValue(value)
		case unitField[kind]:
			l.Unit = stringValue(value)
		default:
			l.Attributes[name] = value
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
	}
	if l.Media == nil {
		l.Media = StringList{}
	}
	return l, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprint(t)
	}
}

func floatValue(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func stringListValue(v any) (StringList, error) {
	switch t := v.(type) {
	case nil:
		return StringList{}, nil
	case []string:
		return StringList(t), nil
	case StringList:
		return t, nil
	case []any:
		out := make(StringList, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("media entry is %T, want string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("media is %T, want a list of strings", v)
	}
}

// StringList is stored as a JSON array in a text column.
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	return string(b), err
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(src any) error {
	data, err := textBytes(src)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = StringList{}
		return nil
	}
	return json.Unmarshal(data, (*[]string)(s))
}

// Attributes holds listing fields without a dedicated column, stored as a JSON object.
type Attributes map[string]any

// Value implements driver.Valuer.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(a))
	return string(b), err
}

// Scan implements sql.Scanner.
func (a *Attributes) Scan(src any) error {
	data, err := textBytes(src)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*a = Attributes{}
		return nil
	}
	return json.Unmarshal(data, (*map[string]any)(a))
}

func textBytes(src any) ([]byte, error) {
	switch t := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", src)
	}
}

// ListingPage is one page of a listing feed as served over HTTP.
type ListingPage struct {
	Kind   CollectionKind `json:"kind"`
	Items  []Listing      `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
