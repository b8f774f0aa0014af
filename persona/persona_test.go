package persona

import (
	"strings"
	"testing"
)

func TestDefaultRegistryParses(t *testing.T) {
	r := Default()
	if r.DefaultCharacter() == "" {
		t.Fatalf("no default character")
	}
	if !r.Has(r.DefaultCharacter()) {
		t.Errorf("default character %q is not registered", r.DefaultCharacter())
	}
}

func TestBuildDeterministic(t *testing.T) {
	r := Default()
	a := r.Build("anna", "ru")
	b := r.Build("anna", "ru")
	if a != b {
		t.Errorf("Build is not deterministic for a fixed pair")
	}
}

func TestBuildSectionsInOrder(t *testing.T) {
	r := Default()
	p := r.Build("anna", "ru")

	character := strings.Index(p, "Анна")
	clause := strings.Index(p, "только на русском")
	rules := strings.Index(p, "Rules:")
	examples := strings.Index(p, "Tone examples:")
	if character < 0 || clause < 0 || rules < 0 || examples < 0 {
		t.Fatalf("missing prompt section in:\n%s", p)
	}
	if !(character < clause && clause < rules && rules < examples) {
		t.Errorf("sections out of order: %d %d %d %d", character, clause, rules, examples)
	}
	if !strings.Contains(p, "поцелуй") || !strings.Contains(p, "обними") {
		t.Errorf("tone examples missing kiss/hold exchanges")
	}
}

func TestBuildFallsBackForUnknownPairs(t *testing.T) {
	r := Default()

	// mira has no english prompt; the english generic template is used.
	p := r.Build("mira", "en")
	if !strings.Contains(p, "Мира") {
		t.Errorf("generic template should carry the display name: %s", p)
	}
	if !strings.Contains(p, "Always answer in English only") {
		t.Errorf("language clause missing: %s", p)
	}

	// Entirely unknown character still builds a usable prompt.
	p = r.Build("nobody", "ru")
	if !strings.Contains(p, "nobody") {
		t.Errorf("unknown character should fall back to its id: %s", p)
	}
}

func TestBuildUnknownLanguageClause(t *testing.T) {
	p := Default().Build("anna", "de")
	if !strings.Contains(p, "Always answer in de only") {
		t.Errorf("generic language clause not rendered: %s", p)
	}
}

func TestPlaceholder(t *testing.T) {
	r := Default()
	if got := r.Placeholder("anna", "ru"); !strings.Contains(got, "растерялась") {
		t.Errorf("unexpected anna/ru placeholder: %q", got)
	}
	// mira has no english placeholder; generic english one is used.
	if got := r.Placeholder("mira", "en"); !strings.Contains(got, "listening") {
		t.Errorf("unexpected fallback placeholder: %q", got)
	}
	if got := r.Placeholder("nobody", "ru"); got == "" {
		t.Errorf("placeholder must never be empty")
	}
}
