// Package validator applies the gateway's business rules to a raw lead
// payload (§4.C). Validation is stateless and pure: the same input always
// produces the same pass/reject outcome.
package validator

import (
	"regexp"
	"strings"

	"lead-gateway/internal/config"
)

// Validator holds the compiled rule set assembled from configuration.
type Validator struct {
	zipcodeField    string
	zipcodePattern  *regexp.Regexp
	homeownerPath   []string
	requiredFields  []string
	zipcodeCode     string
	homeownerCode   string
	missingCode     string
}

// New compiles a Validator from the gateway's configuration.
func New(cfg config.Config) (*Validator, error) {
	pattern, err := regexp.Compile(cfg.ZipcodePattern)
	if err != nil {
		return nil, err
	}
	return &Validator{
		zipcodeField:   cfg.ZipcodeField,
		zipcodePattern: pattern,
		homeownerPath:  strings.Split(cfg.HomeownerFieldPath, "."),
		requiredFields: cfg.RequiredFields,
		zipcodeCode:    cfg.RejectionZipcodeInvalid,
		homeownerCode:  cfg.RejectionNotHomeowner,
		missingCode:    cfg.RejectionMissingField,
	}, nil
}

// Validate runs the fixed-order rule chain from §4.C and returns whether
// the lead passes, plus the rejection code for the first rule that failed.
func (v *Validator) Validate(raw map[string]any) (ok bool, code string) {
	if !v.validateZipcode(raw) {
		return false, v.zipcodeCode
	}
	if !v.validateHomeowner(raw) {
		return false, v.homeownerCode
	}
	if !v.validateRequiredFields(raw) {
		return false, v.missingCode
	}
	return true, ""
}

func (v *Validator) validateZipcode(raw map[string]any) bool {
	value, ok := raw[v.zipcodeField]
	if !ok {
		return false
	}
	str, ok := value.(string)
	if !ok {
		return false
	}
	return v.zipcodePattern.MatchString(str)
}

func (v *Validator) validateHomeowner(raw map[string]any) bool {
	value, ok := getNested(raw, v.homeownerPath)
	if !ok {
		return false
	}
	b, ok := value.(bool)
	return ok && b
}

func (v *Validator) validateRequiredFields(raw map[string]any) bool {
	for _, field := range v.requiredFields {
		value, ok := raw[field]
		if !ok || value == nil {
			return false
		}
		if str, isStr := value.(string); isStr && strings.TrimSpace(str) == "" {
			return false
		}
	}
	return true
}

// getNested walks a dotted path through nested maps, returning false if any
// segment is missing or not itself a map.
func getNested(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, segment := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
