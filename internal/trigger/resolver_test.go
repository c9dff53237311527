package trigger

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Dragon Queen", "dragon queen"},
		{"  spaced   out  ", "spaced out"},
		{"semi;colons, punct!", "semicolons punct"},
		{"ＳＤＸＬ", "sdxl"}, // fullwidth folds to ascii
		{"mixed_CASE-123", "mixedcase123"},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve_BuiltinAliases(t *testing.T) {
	r := NewResolver(nil)
	tests := []struct {
		raw  string
		want string
	}{
		{"1girl", "girl"},
		{"1boy", "boy"},
		{"SDXL", "stable diffusion xl"},
		{"sd15", "stable diffusion 1.5"},
		{"sd21", "stable diffusion 2.1"},
		{"hires", "high resolution"},
		{"lowres", "low resolution"},
		{"nsfw", "mature"},
	}
	for _, tt := range tests {
		res := r.Resolve([]string{tt.raw})
		if len(res.Canonical) != 1 || res.Canonical[0] != tt.want {
			t.Errorf("Resolve(%q) canonical = %v, want [%q]", tt.raw, res.Canonical, tt.want)
		}
	}
}

func TestResolve_AliasOverrides(t *testing.T) {
	r := NewResolver(map[string]string{"1girl": "woman", "Mecha!": "robot"})

	res := r.Resolve([]string{"1girl"})
	if res.Canonical[0] != "woman" {
		t.Errorf("override should win: got %q", res.Canonical[0])
	}

	res = r.Resolve([]string{"mecha"})
	if res.Canonical[0] != "robot" {
		t.Errorf("override keys should be normalized: got %q", res.Canonical[0])
	}
}

func TestResolve_Confidence(t *testing.T) {
	r := NewResolver(nil)

	// "1girl" and "girl" both canonicalize to "girl" and reinforce it.
	res := r.Resolve([]string{"1girl", "girl"})
	if len(res.Canonical) != 1 {
		t.Fatalf("expected one canonical trigger, got %v", res.Canonical)
	}
	if got := res.Confidence["girl"]; got != 0.4 {
		t.Errorf("confidence = %f, want 0.4", got)
	}
	if len(res.Sources["girl"]) != 2 {
		t.Errorf("expected 2 sources, got %v", res.Sources["girl"])
	}
	if res.Aliases["1girl"] != "girl" {
		t.Errorf("alias map missing rewrite: %v", res.Aliases)
	}
}

func TestResolve_ConfidenceCapped(t *testing.T) {
	r := NewResolver(nil)
	candidates := make([]string, 8)
	for i := range candidates {
		candidates[i] = "dragon"
	}
	res := r.Resolve(candidates)
	if got := res.Confidence["dragon"]; got != 1.0 {
		t.Errorf("confidence = %f, want capped at 1.0", got)
	}
}

func TestResolve_RejectsShortAndEmpty(t *testing.T) {
	r := NewResolver(nil)
	res := r.Resolve([]string{"", " ", "a", "!", "ok"})
	if len(res.Canonical) != 1 || res.Canonical[0] != "ok" {
		t.Errorf("expected only %q to survive, got %v", "ok", res.Canonical)
	}
}

func TestResolve_FirstSeenOrder(t *testing.T) {
	r := NewResolver(nil)
	res := r.Resolve([]string{"zebra", "apple", "zebra"})
	if len(res.Canonical) != 2 || res.Canonical[0] != "zebra" || res.Canonical[1] != "apple" {
		t.Errorf("expected first-seen order, got %v", res.Canonical)
	}
}

func TestResolveQuery(t *testing.T) {
	r := NewResolver(nil)

	res := r.ResolveQuery("Dragon Queen")
	if res.Normalized != "dragon queen" {
		t.Errorf("normalized = %q, want %q", res.Normalized, "dragon queen")
	}
	// Full phrase plus each sub-token becomes a candidate.
	want := map[string]bool{"dragon queen": true, "dragon": true, "queen": true}
	for _, c := range res.Canonical {
		if !want[c] {
			t.Errorf("unexpected canonical %q", c)
		}
	}
	if len(res.Canonical) != 3 {
		t.Errorf("expected 3 candidates, got %v", res.Canonical)
	}
}

func TestResolveQuery_SingleToken(t *testing.T) {
	r := NewResolver(nil)
	res := r.ResolveQuery("dragon")
	if len(res.Canonical) != 1 {
		t.Errorf("single token must not duplicate itself: %v", res.Canonical)
	}
}

func TestResolveQuery_Empty(t *testing.T) {
	r := NewResolver(nil)
	for _, q := range []string{"", "   ", "!!!"} {
		res := r.ResolveQuery(q)
		if res.Normalized != "" {
			t.Errorf("ResolveQuery(%q).Normalized = %q, want empty", q, res.Normalized)
		}
		if len(res.Canonical) != 0 {
			t.Errorf("ResolveQuery(%q) canonical = %v, want none", q, res.Canonical)
		}
	}
}
