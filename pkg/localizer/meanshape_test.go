package localizer

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/config"
	"cephalyzer/pkg/heatmap"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Image.Width = 128
	cfg.Image.Height = 128
	cfg.Image.HeatmapDownscale = 1
	cfg.Localizer.MeanShapePath = ""
	cfg.Localizer.JitterSigma = 0
	return cfg
}

func testImage(w, h int) *models.Image {
	return &models.Image{
		Data:   make([]float64, w*h),
		Width:  w,
		Height: h,
	}
}

// TestMeanShapePredict verifies that the backend produces exactly 19 maps of
// the contracted resolution, each with a usable peak.
func TestMeanShapePredict(t *testing.T) {
	ms, err := NewMeanShape(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewMeanShape failed: %v", err)
	}
	defer ms.Close()

	stack, err := ms.Predict(testImage(128, 128))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if err := stack.Validate(128, 128); err != nil {
		t.Fatalf("invalid stack: %v", err)
	}

	ex := heatmap.NewExtractor(2, 1e-6, 1)
	set, err := ex.ExtractAll(stack)
	if err != nil {
		t.Fatalf("ExtractAll failed: %v", err)
	}
	if got := set.ValidCount(); got != models.NumLandmarks {
		t.Errorf("expected %d valid points, got %d", models.NumLandmarks, got)
	}
}

// TestMeanShapeShapeContract verifies that any other resolution is rejected
// with an InputShapeError, not silently resized.
func TestMeanShapeShapeContract(t *testing.T) {
	ms, err := NewMeanShape(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewMeanShape failed: %v", err)
	}

	_, err = ms.Predict(testImage(256, 128))
	if err == nil {
		t.Fatalf("expected a shape error")
	}
	var shapeErr *InputShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected *InputShapeError, got %T: %v", err, err)
	}
	if shapeErr.GotWidth != 256 || shapeErr.WantWidth != 128 {
		t.Errorf("unexpected error detail: %+v", shapeErr)
	}
}

// TestMeanShapeDeterminism verifies that repeated predictions with jitter
// enabled are identical, since the jitter is seeded.
func TestMeanShapeDeterminism(t *testing.T) {
	cfg := testConfig()
	cfg.Localizer.JitterSigma = 1.5

	ms, err := NewMeanShape(cfg, nil)
	if err != nil {
		t.Fatalf("NewMeanShape failed: %v", err)
	}

	img := testImage(128, 128)
	a, err := ms.Predict(img)
	if err != nil {
		t.Fatalf("first Predict failed: %v", err)
	}
	b, err := ms.Predict(img)
	if err != nil {
		t.Fatalf("second Predict failed: %v", err)
	}

	for c := range a {
		for i := range a[c].Data {
			if a[c].Data[i] != b[c].Data[i] {
				t.Fatalf("channel %d differs between runs at index %d", c, i)
			}
		}
	}
}

// TestMeanShapeAnchorAlignment verifies the Frankfort-horizontal alignment:
// supplying Or and Po anchors moves those two peaks onto the anchors.
func TestMeanShapeAnchorAlignment(t *testing.T) {
	anchors := map[models.LandmarkName][2]float64{
		models.Orbitale: {70, 40},
		models.Porion:   {30, 44},
	}
	ms, err := NewMeanShape(testConfig(), anchors)
	if err != nil {
		t.Fatalf("NewMeanShape failed: %v", err)
	}

	stack, err := ms.Predict(testImage(128, 128))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	ex := heatmap.NewExtractor(2, 1e-6, 1)
	set, err := ex.ExtractAll(stack)
	if err != nil {
		t.Fatalf("ExtractAll failed: %v", err)
	}

	for name, want := range anchors {
		p, err := set.Point(name)
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		if math.Abs(p.X-want[0]) > 1.0 || math.Abs(p.Y-want[1]) > 1.0 {
			t.Errorf("%s: expected near (%.0f, %.0f), got (%.2f, %.2f)",
				name, want[0], want[1], p.X, p.Y)
		}
	}
}

// TestLoadMeanShapeFile verifies JSON loading and the missing-landmark check.
func TestLoadMeanShapeFile(t *testing.T) {
	dir := t.TempDir()

	// Valid file: reuse the default shape serialized by hand
	path := filepath.Join(dir, "shape.json")
	content := `{"landmarks": {`
	first := true
	for name, pos := range defaultMeanShape() {
		if !first {
			content += ","
		}
		first = false
		content += `"` + string(name) + `": [` +
			strconv.FormatFloat(pos[0], 'f', -1, 64) + `, ` +
			strconv.FormatFloat(pos[1], 'f', -1, 64) + `]`
	}
	content += `}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test shape: %v", err)
	}

	norm, err := loadMeanShape(path)
	if err != nil {
		t.Fatalf("loadMeanShape failed: %v", err)
	}
	if len(norm) != models.NumLandmarks {
		t.Errorf("expected %d landmarks, got %d", models.NumLandmarks, len(norm))
	}

	// Incomplete file is rejected
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"landmarks": {"N": [0.5, 0.5]}}`), 0644); err != nil {
		t.Fatalf("failed to write bad shape: %v", err)
	}
	if _, err := loadMeanShape(bad); err == nil {
		t.Errorf("incomplete mean shape should be rejected")
	}

	// Missing file falls back to the default shape
	norm, err = loadMeanShape(filepath.Join(dir, "nope.json"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if len(norm) != models.NumLandmarks {
		t.Errorf("default fallback incomplete: %d landmarks", len(norm))
	}
}
