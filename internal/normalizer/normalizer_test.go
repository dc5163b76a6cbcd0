package normalizer

import (
	"reflect"
	"testing"

	"lead-gateway/internal/config"
)

func testNormalizer() *Normalizer {
	return New(config.Config{
		NormalizeEmailFields: []string{"email"},
		NormalizePhoneFields: []string{"phone"},
	})
}

func TestNormalize_WhitespaceAndCase(t *testing.T) {
	n := testNormalizer()
	doc := map[string]any{
		"email": "  A@B.COM  ",
		"phone": "+49 (123) 456-789 ext. 2",
		"name":  "  Jane   Doe  ",
	}
	got := n.Normalize(doc).(map[string]any)
	if got["email"] != "a@b.com" {
		t.Fatalf("email: got %v", got["email"])
	}
	if got["phone"] != "491234567892" {
		t.Fatalf("phone: got %v", got["phone"])
	}
	if got["name"] != "Jane Doe" {
		t.Fatalf("name: got %v", got["name"])
	}
}

func TestNormalize_NonStringLeavesPassThrough(t *testing.T) {
	n := testNormalizer()
	doc := map[string]any{
		"count":  float64(3),
		"active": true,
		"ghost":  nil,
	}
	got := n.Normalize(doc).(map[string]any)
	if got["count"] != float64(3) || got["active"] != true || got["ghost"] != nil {
		t.Fatalf("non-string leaves mutated: %#v", got)
	}
}

func TestNormalize_NestedAndLists(t *testing.T) {
	n := testNormalizer()
	doc := map[string]any{
		"house": map[string]any{
			"is_owner": true,
			"notes":    "  fine  ",
		},
		"tags": []any{"  a  ", "  b "},
	}
	got := n.Normalize(doc).(map[string]any)
	house := got["house"].(map[string]any)
	if house["notes"] != "fine" {
		t.Fatalf("nested string not trimmed: %v", house["notes"])
	}
	tags := got["tags"].([]any)
	if tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("list strings not trimmed: %#v", tags)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := testNormalizer()
	docs := []map[string]any{
		{"email": "  Mixed@Case.Com ", "phone": "+1 (555) 000-1111"},
		{"a": map[string]any{"b": map[string]any{"c": "  x   y  "}}},
		{"list": []any{"  p ", map[string]any{"email": " Q@R.com "}}},
		{"n": float64(42), "b": false, "z": nil},
		{},
	}
	for _, d := range docs {
		once := n.Normalize(d)
		twice := n.Normalize(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("normalize not idempotent for %#v:\n once=%#v\n twice=%#v", d, once, twice)
		}
	}
}
