// Package localizer provides the landmark localization network contract:
// a normalized single-channel image goes in, 19 response maps come out.
// Concrete backends (ONNX inference, mean-shape heuristic) are selected by
// configuration and hidden behind one interface.
package localizer

import (
	"fmt"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/config"
	"cephalyzer/pkg/heatmap"
)

// InputShapeError reports an image whose resolution does not match the
// network's fixed input contract. The image is rejected, never silently
// resized; resizing is a preprocessing responsibility.
type InputShapeError struct {
	WantWidth, WantHeight int
	GotWidth, GotHeight   int
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("input shape mismatch: expected %dx%d, got %dx%d",
		e.WantWidth, e.WantHeight, e.GotWidth, e.GotHeight)
}

// Localizer maps a normalized image to one response map per landmark.
// Implementations are read-only after construction and safe for concurrent
// Predict calls.
type Localizer interface {
	// Predict produces the 19-channel response stack for the image. It
	// returns *InputShapeError when the image resolution violates the
	// input contract.
	Predict(img *models.Image) (heatmap.Stack, error)

	// MapSize returns the response-map resolution.
	MapSize() (width, height int)

	// Close releases backend resources.
	Close() error
}

// New constructs the backend selected by the configuration.
func New(cfg *config.Config) (Localizer, error) {
	switch cfg.Localizer.Backend {
	case "onnx":
		return NewONNX(cfg)
	case "meanshape":
		return NewMeanShape(cfg, nil)
	default:
		return nil, fmt.Errorf("unknown localizer backend %q", cfg.Localizer.Backend)
	}
}

// checkShape validates the input contract shared by all backends.
func checkShape(img *models.Image, wantW, wantH int) error {
	if img.Width != wantW || img.Height != wantH {
		return &InputShapeError{
			WantWidth: wantW, WantHeight: wantH,
			GotWidth: img.Width, GotHeight: img.Height,
		}
	}
	if len(img.Data) != img.Width*img.Height {
		return fmt.Errorf("image buffer length %d does not match %dx%d",
			len(img.Data), img.Width, img.Height)
	}
	return nil
}

// mapDims derives the response-map resolution from the configured input
// resolution and downscale factor.
func mapDims(cfg *config.Config) (int, int) {
	d := cfg.Image.HeatmapDownscale
	if d < 1 {
		d = 1
	}
	return cfg.Image.Width / d, cfg.Image.Height / d
}
