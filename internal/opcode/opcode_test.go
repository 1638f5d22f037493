package opcode

import (
	"encoding/json"
	"testing"
)

func TestRegistryLookupKnownOpcodes(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{
		"midi_note", "adsr", "oscili", "vco", "ftgen", "cpsmidi", "midictrl",
		"k_mul", "a_mul", "k_to_a", "moogladder", "mix2", "outs",
		"const_k", "const_i", "const_a",
	} {
		spec, ok := r.Lookup(name)
		if !ok {
			t.Fatalf("missing builtin opcode %q", name)
		}
		if spec.Name != name {
			t.Fatalf("lookup %q returned spec named %q", name, spec.Name)
		}
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Fatalf("unexpected lookup hit for unknown opcode")
	}
}

func TestOnlyOutsIsASink(t *testing.T) {
	r := NewRegistry()
	for _, spec := range r.List("") {
		if spec.IsSink() != (spec.Name == "outs") {
			t.Fatalf("opcode %q: unexpected sink classification", spec.Name)
		}
	}
}

func TestListSortsByCategoryThenName(t *testing.T) {
	r := NewRegistry()
	all := r.List("")
	if len(all) == 0 {
		t.Fatalf("expected builtins in the registry")
	}
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.Category > cur.Category ||
			(prev.Category == cur.Category && prev.Name > cur.Name) {
			t.Fatalf("list out of order at %d: %s/%s before %s/%s",
				i, prev.Category, prev.Name, cur.Category, cur.Name)
		}
	}

	oscillators := r.List("oscillator")
	for _, spec := range oscillators {
		if spec.Category != "oscillator" {
			t.Fatalf("category filter leaked %q", spec.Name)
		}
	}
	if len(oscillators) != 2 {
		t.Fatalf("expected oscili and vco, got %d oscillators", len(oscillators))
	}
}

func TestCategoriesCountsEveryOpcode(t *testing.T) {
	r := NewRegistry()
	total := 0
	for _, n := range r.Categories() {
		total += n
	}
	if total != len(r.List("")) {
		t.Fatalf("category counts (%d) disagree with the full list (%d)", total, len(r.List("")))
	}
}

func TestNumberTextDropsIntegralFraction(t *testing.T) {
	if got := Number(440).NumberText(); got != "440" {
		t.Fatalf("expected 440, got %q", got)
	}
	if got := Number(0.5).NumberText(); got != "0.5" {
		t.Fatalf("expected 0.5, got %q", got)
	}
}

func TestLiteralJSONRoundTrip(t *testing.T) {
	cases := []struct {
		raw  string
		want Literal
	}{
		{"440", Number(440)},
		{"0.25", Number(0.25)},
		{`"sine"`, Text("sine")},
		{"true", Flag(true)},
	}
	for _, tc := range cases {
		var got Literal
		if err := json.Unmarshal([]byte(tc.raw), &got); err != nil {
			t.Fatalf("unmarshal %s failed: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("unmarshal %s: expected %+v, got %+v", tc.raw, tc.want, got)
		}
	}
	var bad Literal
	if err := json.Unmarshal([]byte(`[1]`), &bad); err == nil {
		t.Fatalf("expected an error for an array literal")
	}
}
