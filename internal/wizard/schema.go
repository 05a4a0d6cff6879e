package wizard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kisan-sarthi/backend/internal/models"
)

// Step is one page of the wizard.
type Step struct {
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
}

// FieldType controls how a submitted value is normalized.
type FieldType int

const (
	TypeText FieldType = iota
	TypeNumber
	TypeBool
)

// Schema describes the steps and field rules of one listing kind.
type Schema struct {
	Kind     models.CollectionKind
	Steps    []Step
	Required []string
	Types    map[string]FieldType
	Checks   map[string]func(string) error
	Defaults map[string]any
}

var pincodeRe = regexp.MustCompile(`^\d{6}$`)

func checkPincode(v string) error {
	if !pincodeRe.MatchString(v) {
		return fmt.Errorf("must be exactly 6 digits")
	}
	return nil
}

var productSchema = &Schema{
	Kind: models.KindProduct,
	Steps: []Step{
		{Title: "Basic Details", Fields: []string{"title", "sellingPrice", "quantity", "description"}},
		{Title: "Product Specifications", Fields: []string{"quantityUnit", "negotiable", "status"}},
		{Title: "Images & Preview"},
	},
	Required: []string{"title", "sellingPrice", "quantity", "description"},
	Types: map[string]FieldType{
		"sellingPrice": TypeNumber,
		"quantity":     TypeNumber,
		"negotiable":   TypeBool,
	},
	Defaults: map[string]any{
		"negotiable":   false,
		"quantityUnit": models.UnitKilogram,
		"status":       models.StatusAvailable,
	},
}

var landSchema = &Schema{
	Kind: models.KindLand,
	Steps: []Step{
		{Title: "Basic Information", Fields: []string{"title", "area", "areaUnit", "numberOfOpenings"}},
		{Title: "Location & Terms", Fields: []string{"state", "city", "pincode", "durationInMonths", "rentPerMonth"}},
		{Title: "Owner & Soil", Fields: []string{"ownerName", "address", "soilType", "phone"}},
		{Title: "Amenities", Fields: []string{"electricity", "water", "organic", "fullOwnership"}},
		{Title: "Images"},
	},
	Required: []string{"title", "area", "rentPerMonth", "pincode"},
	Types: map[string]FieldType{
		"area":             TypeNumber,
		"numberOfOpenings": TypeNumber,
		"durationInMonths": TypeNumber,
		"rentPerMonth":     TypeNumber,
		"electricity":      TypeBool,
		"water":            TypeBool,
		"organic":          TypeBool,
		"fullOwnership":    TypeBool,
	},
	Checks: map[string]func(string) error{
		"pincode": checkPincode,
	},
	Defaults: map[string]any{
		"areaUnit":      models.AreaUnits[0].Value,
		"soilType":      models.SoilTypes[0],
		"electricity":   false,
		"water":         true,
		"organic":       false,
		"fullOwnership": true,
	},
}

// SchemaFor returns the schema of a listing kind.
func SchemaFor(kind models.CollectionKind) (*Schema, error) {
	switch kind {
	case models.KindProduct:
		return productSchema, nil
	case models.KindLand:
		return landSchema, nil
	}
	return nil, fmt.Errorf("no wizard for kind %q", kind)
}

// StepCount is N, the number of steps.
func (s *Schema) StepCount() int { return len(s.Steps) }

// HasField reports whether name belongs to one of the steps.
func (s *Schema) HasField(name string) bool {
	for _, st := range s.Steps {
		for _, f := range st.Fields {
			if f == name {
				return true
			}
		}
	}
	return false
}

// Validate checks required fields and per-field rules against raw values.
func (s *Schema) Validate(fields map[string]any) error {
	for _, name := range s.Required {
		if isEmpty(fields[name]) {
			return &ValidationError{Field: name, Reason: "is required"}
		}
	}
	for name, check := range s.Checks {
		v, ok := fields[name]
		if !ok || isEmpty(v) {
			continue
		}
		if err := check(textOf(v)); err != nil {
			return &ValidationError{Field: name, Reason: err.Error()}
		}
	}
	return nil
}

// Normalize converts raw values to their field types. The input is not
// modified.
func (s *Schema) Normalize(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		switch s.Types[name] {
		case TypeNumber:
			if isEmpty(v) {
				continue
			}
			n, err := toNumber(v)
			if err != nil {
				return nil, &ValidationError{Field: name, Reason: "must be a number"}
			}
			out[name] = n
		case TypeBool:
			b, err := toBool(v)
			if err != nil {
				return nil, &ValidationError{Field: name, Reason: "must be true or false"}
			}
			out[name] = b
		default:
			if str, ok := v.(string); ok {
				v = strings.TrimSpace(str)
			}
			out[name] = v
		}
	}
	return out, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// toNumber keeps whole numbers as int64, which is how prices, quantities and
// durations are entered.
func toNumber(v any) (any, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t == float64(int64(t)) {
			return int64(t), nil
		}
		return t, nil
	}
	s := textOf(v)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case nil:
		return false, nil
	}
	return strconv.ParseBool(textOf(v))
}
