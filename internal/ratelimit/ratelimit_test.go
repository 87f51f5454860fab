package ratelimit

import (
	"testing"
	"time"
)

func TestAdmitRefusesBeyondLimit(t *testing.T) {
	r := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.SetLimit("model-a", 3)

	for i := 0; i < 3; i++ {
		if !r.Admit("model-a") {
			t.Fatalf("call %d refused inside the limit", i)
		}
	}
	if r.Admit("model-a") {
		t.Fatalf("expected refusal past the limit")
	}
}

func TestWindowSlides(t *testing.T) {
	r := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.SetLimit("model-a", 1)
	if !r.Admit("model-a") {
		t.Fatalf("first call refused")
	}
	if r.Admit("model-a") {
		t.Fatalf("second call admitted inside window")
	}

	now = now.Add(61 * time.Second)
	if !r.Admit("model-a") {
		t.Fatalf("call refused after window cleared")
	}
}

func TestModelsAreIndependent(t *testing.T) {
	r := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.SetLimit("model-a", 1)
	r.SetLimit("model-b", 1)

	if !r.Admit("model-a") {
		t.Fatalf("model-a first call refused")
	}
	if r.Admit("model-a") {
		t.Fatalf("model-a should be saturated")
	}
	// Saturation on model-a must not affect model-b.
	if !r.Admit("model-b") {
		t.Fatalf("model-b refused while idle")
	}
}

func TestUnknownAndUnlimitedModels(t *testing.T) {
	r := NewRegistry()
	if !r.Admit("never-registered") {
		t.Fatalf("unknown model refused")
	}

	r.SetLimit("free-model", 0)
	for i := 0; i < 100; i++ {
		if !r.Admit("free-model") {
			t.Fatalf("unlimited model refused on call %d", i)
		}
	}
}
