package catalog

import "testing"

func TestEveryBlockBelongsToACategory(t *testing.T) {
	known := map[string]bool{}
	for _, c := range Categories() {
		known[c.ID] = true
	}
	seen := map[string]bool{}
	for _, b := range Blocks() {
		if !known[b.Category] {
			t.Errorf("block %q has unknown category %q", b.ID, b.Category)
		}
		if seen[b.ID] {
			t.Errorf("duplicate block id %q", b.ID)
		}
		seen[b.ID] = true
	}
}

func TestLookupAndName(t *testing.T) {
	b, ok := Lookup("wheat")
	if !ok || b.Name != "Wheat" || b.Category != "crops" {
		t.Fatalf("unexpected wheat entry: %+v ok=%v", b, ok)
	}
	if _, ok := Lookup("not_a_block"); ok {
		t.Fatalf("expected unknown id to miss")
	}
	if got := Name("not_a_block"); got != "not_a_block" {
		t.Fatalf("expected fallback to raw id, got %q", got)
	}
}

func TestByCategory(t *testing.T) {
	crops := ByCategory("crops")
	if len(crops) == 0 {
		t.Fatalf("expected crops")
	}
	for _, b := range crops {
		if b.Category != "crops" {
			t.Fatalf("unexpected category %q", b.Category)
		}
	}
	if len(ByCategory("missing")) != 0 {
		t.Fatalf("expected no blocks for unknown category")
	}
}
