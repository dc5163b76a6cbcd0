// Package mapper transforms a normalized lead into the downstream
// customer's wire format under the permissive attribute policy described
// in §4.E: invalid optional attributes are dropped, invalid required
// attributes fail the whole mapping.
package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"lead-gateway/internal/config"
)

// Error reports that mapping failed because a required field or attribute
// could not be validated.
type Error struct {
	Reasons []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mapping failed: %s", strings.Join(e.Reasons, "; "))
}

// Mapper holds the configured attribute rules and static product identity.
type Mapper struct {
	attributes  map[string]config.AttributeDefinition
	productName string
}

// New builds a Mapper from the gateway's configuration.
func New(cfg config.Config) *Mapper {
	return &Mapper{
		attributes:  cfg.AttributeMapping,
		productName: cfg.CustomerProductName,
	}
}

// Map produces the downstream payload from a normalized lead. It returns
// the customer payload, the list of optional attribute keys omitted for
// failing their type check, or an error when a core or required attribute
// is missing/invalid.
func (m *Mapper) Map(normalized map[string]any) (customerPayload map[string]any, omitted []string, err error) {
	phone, ok := normalized["phone"].(string)
	if !ok || strings.TrimSpace(phone) == "" {
		return nil, nil, &Error{Reasons: []string{"missing required field: phone"}}
	}
	if strings.TrimSpace(m.productName) == "" {
		return nil, nil, &Error{Reasons: []string{"missing required configuration: product name"}}
	}

	customerPayload = map[string]any{
		"phone": phone,
		"product": map[string]any{
			"name": m.productName,
		},
	}
	omitted = []string{}

	for key, value := range normalized {
		if key == "phone" || key == "product" {
			continue
		}
		def, hasRules := m.attributes[key]
		if !hasRules {
			customerPayload[key] = value
			continue
		}
		validated, ok := validateAttribute(value, def)
		if ok {
			customerPayload[key] = validated
			continue
		}
		if def.Required {
			return nil, nil, &Error{Reasons: []string{fmt.Sprintf("required attribute %q is invalid", key)}}
		}
		omitted = append(omitted, key)
	}

	return customerPayload, omitted, nil
}

func validateAttribute(value any, def config.AttributeDefinition) (any, bool) {
	if value == nil {
		return nil, false
	}
	switch def.Type {
	case "text":
		return validateText(value)
	case "dropdown":
		return validateDropdown(value, def.Options)
	case "range":
		return validateRange(value, def.Min, def.Max)
	default:
		return nil, false
	}
}

func validateText(value any) (any, bool) {
	s, ok := value.(string)
	if !ok {
		return nil, false
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false
	}
	return trimmed, true
}

func validateDropdown(value any, options []string) (any, bool) {
	s, ok := value.(string)
	if !ok {
		return nil, false
	}
	for _, opt := range options {
		if s == opt {
			return s, true
		}
	}
	return nil, false
}

func validateRange(value any, min, max *float64) (any, bool) {
	n, ok := asFloat(value)
	if !ok {
		return nil, false
	}
	if min != nil && n < *min {
		return nil, false
	}
	if max != nil && n > *max {
		return nil, false
	}
	return n, true
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
