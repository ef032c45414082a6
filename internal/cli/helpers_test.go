package cli

import (
	"testing"
)

func TestParseVariantSpec(t *testing.T) {
	variants, err := parseVariantSpec("control:50,treatment:50", "")
	if err != nil {
		t.Fatalf("parseVariantSpec: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(variants))
	}
	if !variants[0].IsControl {
		t.Error("first variant should default to control")
	}
	if variants[1].IsControl {
		t.Error("second variant marked control")
	}
	if variants[0].ID != "control" || variants[0].Allocation != 50 {
		t.Errorf("unexpected first variant: %+v", variants[0])
	}
}

func TestParseVariantSpec_ExplicitControl(t *testing.T) {
	variants, err := parseVariantSpec("a:30, b:30, c:40", "b")
	if err != nil {
		t.Fatalf("parseVariantSpec: %v", err)
	}
	for _, v := range variants {
		if v.IsControl != (v.Name == "b") {
			t.Errorf("variant %s control=%t", v.Name, v.IsControl)
		}
	}
	if variants[2].Allocation != 40 {
		t.Errorf("allocation %f, want 40", variants[2].Allocation)
	}
}

func TestParseVariantSpec_Errors(t *testing.T) {
	cases := []struct {
		spec    string
		control string
	}{
		{"control:100", ""},            // single variant
		{"control:50,treatment", ""},   // missing allocation
		{":50,treatment:50", ""},       // missing name
		{"control:abc,treatment:50", ""}, // non-numeric allocation
		{"control:50,treatment:50", "other"}, // control not in list
	}
	for _, tc := range cases {
		if _, err := parseVariantSpec(tc.spec, tc.control); err == nil {
			t.Errorf("parseVariantSpec(%q, %q) accepted invalid input", tc.spec, tc.control)
		}
	}
}

func TestContextFlags(t *testing.T) {
	f := contextFlags{
		platform: "ios",
		version:  "2.1.0",
		sessions: 5,
		segments: "buyer, returning",
	}
	c := f.context()
	if c.Platform != "ios" || c.AppVersion != "2.1.0" || c.SessionCount != 5 {
		t.Errorf("unexpected context: %+v", c)
	}
	if len(c.Segments) != 2 || c.Segments[0] != "buyer" || c.Segments[1] != "returning" {
		t.Errorf("segments not split and trimmed: %v", c.Segments)
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(0); got != "0%" {
		t.Errorf("formatPercent(0) = %q", got)
	}
	if got := formatPercent(0.1234); got != "12.34%" {
		t.Errorf("formatPercent(0.1234) = %q", got)
	}
}
