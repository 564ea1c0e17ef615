package visualization

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/heatmap"
)

// TestRenderResponseMap verifies intensity stretching and the flat-map case
func TestRenderResponseMap(t *testing.T) {
	m := heatmap.EncodeGaussian(8, 8, 16, 16, 2.0)
	img := RenderResponseMap(m)

	bounds := img.Bounds()
	if bounds.Dx() != 16 || bounds.Dy() != 16 {
		t.Fatalf("expected 16x16 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	// Peak cell maps to white after stretching
	peak := color.Gray16Model.Convert(img.At(8, 8)).(color.Gray16)
	if peak.Y != 65535 {
		t.Errorf("peak cell should render white, got %d", peak.Y)
	}
	corner := color.Gray16Model.Convert(img.At(0, 0)).(color.Gray16)
	if corner.Y >= peak.Y {
		t.Errorf("corner should be darker than the peak, got %d", corner.Y)
	}

	// A flat map renders black everywhere
	flat := RenderResponseMap(heatmap.NewResponseMap(16, 16))
	v := color.Gray16Model.Convert(flat.At(5, 5)).(color.Gray16)
	if v.Y != 0 {
		t.Errorf("flat map should render black, got %d", v.Y)
	}
}

// TestRenderOverlay verifies marker placement and coloring
func TestRenderOverlay(t *testing.T) {
	im := &models.Image{
		Data:   make([]float64, 32*32),
		Width:  32,
		Height: 32,
	}

	set := models.NewLandmarkSet()
	set.SetPoint(models.LandmarkPoint{Name: models.Nasion, X: 10, Y: 10, Confidence: 0.9, Valid: true})
	set.SetPoint(models.LandmarkPoint{Name: models.Sella, X: 20, Y: 20, Confidence: 0, Valid: false})

	img := RenderOverlay(im, set)

	r, g, _, _ := img.At(10, 10).RGBA()
	if g == 0 || r != 0 {
		t.Errorf("valid landmark should be marked green, got r=%d g=%d", r, g)
	}
	r, g, _, _ = img.At(20, 20).RGBA()
	if r == 0 || g != 0 {
		t.Errorf("invalid landmark should be marked red, got r=%d g=%d", r, g)
	}
}

// TestSaveStack verifies the on-disk layout of rendered intermediaries
func TestSaveStack(t *testing.T) {
	dir := t.TempDir()
	v := NewViewer(dir)

	stack := heatmap.NewStack(8, 8)
	if err := v.SaveStack("case001", stack); err != nil {
		t.Fatalf("SaveStack failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "case001", "response_maps"))
	if err != nil {
		t.Fatalf("response map directory missing: %v", err)
	}
	if len(entries) != models.NumLandmarks {
		t.Errorf("expected %d rendered maps, got %d", models.NumLandmarks, len(entries))
	}
	if entries[0].Name() != "00_N.png" {
		t.Errorf("unexpected first file name %q", entries[0].Name())
	}
}

// TestSaveOverlay verifies overlay output creation
func TestSaveOverlay(t *testing.T) {
	dir := t.TempDir()
	v := NewViewer(dir)

	im := &models.Image{Data: make([]float64, 16*16), Width: 16, Height: 16}
	if err := v.SaveOverlay("case002", im, models.NewLandmarkSet()); err != nil {
		t.Fatalf("SaveOverlay failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "case002", "landmarks.png")); err != nil {
		t.Errorf("overlay file missing: %v", err)
	}
}
