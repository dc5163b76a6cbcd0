package mapper

import (
	"sort"
	"testing"

	"lead-gateway/internal/config"
)

func testMapper() *Mapper {
	max18 := 18.0
	max65 := 65.0
	return New(config.Config{
		CustomerProductName: "Solar Basic",
		AttributeMapping: map[string]config.AttributeDefinition{
			"comment":      {Type: "text", Required: false},
			"heating_type": {Type: "dropdown", Required: false, Options: []string{"gas", "oil", "electric"}},
			"roof_angle":   {Type: "range", Required: false, Min: &max18, Max: &max65},
			"contact_time": {Type: "dropdown", Required: true, Options: []string{"morning", "evening"}},
		},
	})
}

func TestMap_HappyPath(t *testing.T) {
	m := testMapper()
	input := map[string]any{
		"phone":        "491234567",
		"comment":      "please call after 5pm",
		"heating_type": "gas",
		"roof_angle":   float64(30),
		"contact_time": "evening",
		"passthrough":  "unrecognised but kept",
	}
	out, omitted, err := m.Map(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(omitted) != 0 {
		t.Fatalf("expected no omissions, got %v", omitted)
	}
	if out["phone"] != "491234567" {
		t.Fatalf("phone mismatch: %v", out["phone"])
	}
	product, ok := out["product"].(map[string]any)
	if !ok || product["name"] != "Solar Basic" {
		t.Fatalf("product mismatch: %#v", out["product"])
	}
	if out["comment"] != "please call after 5pm" {
		t.Fatalf("comment mismatch: %v", out["comment"])
	}
	if out["heating_type"] != "gas" {
		t.Fatalf("heating_type mismatch: %v", out["heating_type"])
	}
	if out["roof_angle"] != float64(30) {
		t.Fatalf("roof_angle mismatch: %v", out["roof_angle"])
	}
	if out["passthrough"] != "unrecognised but kept" {
		t.Fatalf("passthrough not preserved: %v", out["passthrough"])
	}
}

func TestMap_MissingPhoneFails(t *testing.T) {
	m := testMapper()
	_, _, err := m.Map(map[string]any{"contact_time": "morning"})
	if err == nil {
		t.Fatal("expected error for missing phone")
	}
}

func TestMap_MissingProductNameFails(t *testing.T) {
	m := New(config.Config{CustomerProductName: ""})
	_, _, err := m.Map(map[string]any{"phone": "1"})
	if err == nil {
		t.Fatal("expected error for missing product name")
	}
}

func TestMap_OptionalAttributeOmittedOnFailure(t *testing.T) {
	m := testMapper()
	input := map[string]any{
		"phone":        "491234567",
		"comment":      "   ",
		"heating_type": "solar panel", // not in options
		"roof_angle":   float64(90),   // out of range
		"contact_time": "morning",
	}
	out, omitted, err := m.Map(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Strings(omitted)
	want := []string{"comment", "heating_type", "roof_angle"}
	if len(omitted) != len(want) {
		t.Fatalf("omitted mismatch: got %v want %v", omitted, want)
	}
	for i, k := range want {
		if omitted[i] != k {
			t.Fatalf("omitted mismatch: got %v want %v", omitted, want)
		}
	}
	if _, present := out["comment"]; present {
		t.Fatalf("comment should have been omitted from payload")
	}
	if _, present := out["heating_type"]; present {
		t.Fatalf("heating_type should have been omitted from payload")
	}
	if _, present := out["roof_angle"]; present {
		t.Fatalf("roof_angle should have been omitted from payload")
	}
}

func TestMap_RequiredAttributeFailureFailsMapping(t *testing.T) {
	m := testMapper()
	input := map[string]any{
		"phone":        "491234567",
		"contact_time": "afternoon", // not a valid option, and required
	}
	_, _, err := m.Map(input)
	if err == nil {
		t.Fatal("expected error when required attribute is invalid")
	}
}

func TestMap_RangeAcceptsNumericStrings(t *testing.T) {
	m := testMapper()
	input := map[string]any{
		"phone":        "491234567",
		"roof_angle":   "45",
		"contact_time": "morning",
	}
	out, omitted, err := m.Map(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(omitted) != 0 {
		t.Fatalf("expected no omissions, got %v", omitted)
	}
	if out["roof_angle"] != float64(45) {
		t.Fatalf("roof_angle mismatch: %v", out["roof_angle"])
	}
}

func TestMap_UnconfiguredAttributePassesThroughUnchanged(t *testing.T) {
	m := testMapper()
	input := map[string]any{
		"phone":        "491234567",
		"contact_time": "morning",
		"extra_flag":   true,
		"extra_count":  float64(7),
	}
	out, _, err := m.Map(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["extra_flag"] != true || out["extra_count"] != float64(7) {
		t.Fatalf("unconfigured attributes not preserved: %#v", out)
	}
}
