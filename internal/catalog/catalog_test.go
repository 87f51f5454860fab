package catalog

import "testing"

func testDescriptors() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID:              "sonnet-4",
			Provider:        "anthropic",
			CostPer1KMicros: 3_000_000,
			RateLimitRPM:    60,
			QualityScore:    0.9,
			CapabilityTags:  []string{"Code", "general"},
			PriorityRank:    2,
		},
		{
			ID:              "gpt-4o-mini",
			Provider:        "openai",
			CostPer1KMicros: 150_000,
			RateLimitRPM:    200,
			QualityScore:    0.7,
			CapabilityTags:  []string{"general", "writing"},
			PriorityRank:    1,
		},
	}
}

func TestReplaceAndLookup(t *testing.T) {
	c := New()
	if errReplace := c.Replace(testDescriptors()); errReplace != nil {
		t.Fatalf("replace: %v", errReplace)
	}

	d, ok := c.Get("sonnet-4")
	if !ok {
		t.Fatalf("expected sonnet-4 in catalog")
	}
	if !d.HasTag("code") {
		t.Fatalf("expected lowercased code tag, got %v", d.CapabilityTags)
	}

	general := c.ByTag("general")
	if len(general) != 2 {
		t.Fatalf("expected 2 general models, got %d", len(general))
	}
	if general[0].ID != "gpt-4o-mini" {
		t.Fatalf("expected priority ordering, got %s first", general[0].ID)
	}
}

func TestReplaceRejectsDuplicates(t *testing.T) {
	c := New()
	if errReplace := c.Replace(testDescriptors()); errReplace != nil {
		t.Fatalf("replace: %v", errReplace)
	}

	bad := testDescriptors()
	bad[1].ID = bad[0].ID
	if errReplace := c.Replace(bad); errReplace == nil {
		t.Fatalf("expected duplicate id error")
	}

	// Failed reload must leave the previous snapshot intact.
	if c.Len() != 2 {
		t.Fatalf("expected old snapshot to survive, got %d models", c.Len())
	}
}

func TestReplaceSwapsWholeTable(t *testing.T) {
	c := New()
	if errReplace := c.Replace(testDescriptors()); errReplace != nil {
		t.Fatalf("replace: %v", errReplace)
	}

	next := []ModelDescriptor{{
		ID:             "haiku-3",
		Provider:       "anthropic",
		QualityScore:   0.5,
		CapabilityTags: []string{"general"},
	}}
	if errReplace := c.Replace(next); errReplace != nil {
		t.Fatalf("replace: %v", errReplace)
	}

	if _, ok := c.Get("sonnet-4"); ok {
		t.Fatalf("old descriptor survived the swap")
	}
	if _, ok := c.Get("haiku-3"); !ok {
		t.Fatalf("new descriptor missing after swap")
	}
}
