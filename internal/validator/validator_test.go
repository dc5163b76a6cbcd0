package validator

import (
	"fmt"
	"testing"

	"lead-gateway/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		ZipcodeField:            "zipcode",
		ZipcodePattern:          `^66\d{3}$`,
		HomeownerFieldPath:      "house.is_owner",
		RequiredFields:          []string{"email", "phone"},
		RejectionZipcodeInvalid: "ZIPCODE_INVALID",
		RejectionNotHomeowner:   "NOT_HOMEOWNER",
		RejectionMissingField:   "MISSING_REQUIRED_FIELD",
	}
}

func happyPayload() map[string]any {
	return map[string]any{
		"email":   "a@b.com",
		"phone":   "+49 123 456",
		"zipcode": "66123",
		"house":   map[string]any{"is_owner": true},
	}
}

func TestValidate_HappyPath(t *testing.T) {
	v, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, code := v.Validate(happyPayload())
	if !ok || code != "" {
		t.Fatalf("expected pass, got ok=%v code=%q", ok, code)
	}
}

func TestValidate_ZipcodeRejection(t *testing.T) {
	v, _ := New(testConfig())
	payload := happyPayload()
	payload["zipcode"] = "12345"
	ok, code := v.Validate(payload)
	if ok || code != "ZIPCODE_INVALID" {
		t.Fatalf("expected ZIPCODE_INVALID, got ok=%v code=%q", ok, code)
	}
}

func TestValidate_ZipcodeConsistency(t *testing.T) {
	v, _ := New(testConfig())
	for i := 0; i < 1000; i++ {
		zip := fmt.Sprintf("66%03d", i)
		payload := happyPayload()
		payload["zipcode"] = zip
		ok, _ := v.Validate(payload)
		if !ok {
			t.Fatalf("zipcode %q should match pattern", zip)
		}
	}
	badCases := []any{"12345", "661234", "6612", "A6123", nil, 66123}
	for _, bad := range badCases {
		payload := happyPayload()
		payload["zipcode"] = bad
		ok, code := v.Validate(payload)
		if ok || code != "ZIPCODE_INVALID" {
			t.Fatalf("zipcode %v should be rejected with ZIPCODE_INVALID, got ok=%v code=%q", bad, ok, code)
		}
	}
}

func TestValidate_OwnershipRejection(t *testing.T) {
	v, _ := New(testConfig())
	cases := []any{false, "true", 1, nil}
	for _, bad := range cases {
		payload := happyPayload()
		payload["house"] = map[string]any{"is_owner": bad}
		ok, code := v.Validate(payload)
		if ok || code != "NOT_HOMEOWNER" {
			t.Fatalf("is_owner=%v should reject with NOT_HOMEOWNER, got ok=%v code=%q", bad, ok, code)
		}
	}

	payload := happyPayload()
	delete(payload, "house")
	ok, code := v.Validate(payload)
	if ok || code != "NOT_HOMEOWNER" {
		t.Fatalf("missing house should reject with NOT_HOMEOWNER, got ok=%v code=%q", ok, code)
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	v, _ := New(testConfig())
	payload := happyPayload()
	delete(payload, "email")
	ok, code := v.Validate(payload)
	if ok || code != "MISSING_REQUIRED_FIELD" {
		t.Fatalf("missing email should reject with MISSING_REQUIRED_FIELD, got ok=%v code=%q", ok, code)
	}
}

func TestValidate_OrderOfRules(t *testing.T) {
	// Both zipcode and homeowner fail: zipcode must win since it is rule 1.
	v, _ := New(testConfig())
	payload := happyPayload()
	payload["zipcode"] = "bad"
	payload["house"] = map[string]any{"is_owner": false}
	ok, code := v.Validate(payload)
	if ok || code != "ZIPCODE_INVALID" {
		t.Fatalf("expected ZIPCODE_INVALID to win over NOT_HOMEOWNER, got ok=%v code=%q", ok, code)
	}
}
