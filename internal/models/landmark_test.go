package models

import (
	"testing"
)

// TestCanonicalOrder verifies the fixed channel assignment
func TestCanonicalOrder(t *testing.T) {
	if len(LandmarkNames) != NumLandmarks {
		t.Fatalf("expected %d landmark names, got %d", NumLandmarks, len(LandmarkNames))
	}

	// Spot-check anchor positions in the canonical order
	checks := map[LandmarkName]int{
		Nasion:    0,
		Sella:     1,
		PointA:    5,
		PointB:    6,
		Gonion:    10,
		Menton:    12,
		Pronasale: 18,
	}
	for name, want := range checks {
		if got := name.ChannelIndex(); got != want {
			t.Errorf("%s: expected channel %d, got %d", name, want, got)
		}
	}

	if LandmarkName("XX").ChannelIndex() != -1 {
		t.Errorf("unknown name must map to channel -1")
	}

	seen := make(map[LandmarkName]bool, NumLandmarks)
	for _, name := range LandmarkNames {
		if seen[name] {
			t.Errorf("duplicate landmark name %q", name)
		}
		seen[name] = true
	}
}

// TestClip verifies coordinate clamping and idempotence
func TestClip(t *testing.T) {
	testCases := []struct {
		name         string
		x, y         float64
		wantX, wantY float64
	}{
		{"in bounds", 10.5, 20.5, 10.5, 20.5},
		{"negative", -3, -1, 0, 0},
		{"beyond max", 200, 150, 99, 79},
		{"on edge", 99, 79, 99, 79},
	}

	for _, tc := range testCases {
		p := LandmarkPoint{Name: Nasion, X: tc.x, Y: tc.y}
		got := p.Clip(100, 80)
		if got.X != tc.wantX || got.Y != tc.wantY {
			t.Errorf("%s: got (%v, %v), want (%v, %v)",
				tc.name, got.X, got.Y, tc.wantX, tc.wantY)
		}
		// Clipping is idempotent
		if again := got.Clip(100, 80); again != got {
			t.Errorf("%s: clip not idempotent", tc.name)
		}
	}
}

// TestLandmarkSet verifies set construction and point accounting
func TestLandmarkSet(t *testing.T) {
	set := NewLandmarkSet()
	if set.ValidCount() != 0 {
		t.Errorf("a fresh set has no valid points, got %d", set.ValidCount())
	}

	points := set.Points()
	if len(points) != NumLandmarks {
		t.Fatalf("expected %d points, got %d", NumLandmarks, len(points))
	}
	for i, p := range points {
		if p.Name != LandmarkNames[i] {
			t.Errorf("point %d: expected name %q, got %q", i, LandmarkNames[i], p.Name)
		}
	}

	if err := set.SetPoint(LandmarkPoint{Name: Sella, X: 5, Y: 6, Valid: true}); err != nil {
		t.Fatalf("SetPoint failed: %v", err)
	}
	if set.ValidCount() != 1 {
		t.Errorf("expected 1 valid point, got %d", set.ValidCount())
	}

	p, err := set.Point(Sella)
	if err != nil {
		t.Fatalf("Point failed: %v", err)
	}
	if p.X != 5 || p.Y != 6 {
		t.Errorf("unexpected point %+v", p)
	}

	if err := set.SetPoint(LandmarkPoint{Name: "XX"}); err == nil {
		t.Errorf("an unknown name must be rejected")
	}
	if _, err := set.Point("XX"); err == nil {
		t.Errorf("an unknown name must be rejected")
	}

	// Mutating the returned copy does not touch the set
	points = set.Points()
	points[1].X = 999
	p, _ = set.Point(Sella)
	if p.X != 5 {
		t.Errorf("Points must return a copy")
	}
}

// TestClipAll verifies whole-set clamping
func TestClipAll(t *testing.T) {
	set := NewLandmarkSet()
	set.SetPoint(LandmarkPoint{Name: Nasion, X: -5, Y: 500, Valid: true})
	set.ClipAll(128, 128)

	p, _ := set.Point(Nasion)
	if p.X != 0 || p.Y != 127 {
		t.Errorf("expected (0, 127), got (%v, %v)", p.X, p.Y)
	}
}
