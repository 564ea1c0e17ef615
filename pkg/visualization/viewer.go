// Package visualization renders pipeline intermediaries: per-landmark
// response maps as grayscale images and located landmarks as overlay
// markers on the input radiograph.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/heatmap"
)

// Viewer renders intermediary results for one case into a directory tree.
type Viewer struct {
	// outputDir is the root directory for rendered images
	outputDir string
}

// NewViewer creates a viewer writing under the given directory.
func NewViewer(outputDir string) *Viewer {
	return &Viewer{outputDir: outputDir}
}

// RenderResponseMap converts a single response map to a grayscale image,
// stretching intensities so the peak maps to white. A flat map renders black.
func RenderResponseMap(m *heatmap.ResponseMap) image.Image {
	peak := 0.0
	for _, v := range m.Data {
		if v > peak {
			peak = v
		}
	}

	img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	if peak <= 0 {
		return img
	}

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			v := m.At(x, y) / peak
			if v < 0 {
				v = 0
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535.0)})
		}
	}
	return img
}

// RenderOverlay draws landmark markers over the radiograph. Valid points get
// a green cross, invalid ones a red one.
func RenderOverlay(im *models.Image, set *models.LandmarkSet) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))

	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			v := im.At(x, y)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			g := uint8(v * 255.0)
			img.Set(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}

	if set == nil {
		return img
	}

	valid := color.RGBA{G: 255, A: 255}
	invalid := color.RGBA{R: 255, A: 255}
	for _, p := range set.Points() {
		c := valid
		if !p.Valid {
			c = invalid
		}
		drawCross(img, int(p.X+0.5), int(p.Y+0.5), 4, c)
	}
	return img
}

// drawCross draws a centered cross marker, clipped to the image bounds.
func drawCross(img *image.RGBA, cx, cy, arm int, c color.RGBA) {
	bounds := img.Bounds()
	for d := -arm; d <= arm; d++ {
		if x := cx + d; x >= bounds.Min.X && x < bounds.Max.X &&
			cy >= bounds.Min.Y && cy < bounds.Max.Y {
			img.Set(x, cy, c)
		}
		if y := cy + d; y >= bounds.Min.Y && y < bounds.Max.Y &&
			cx >= bounds.Min.X && cx < bounds.Max.X {
			img.Set(cx, y, c)
		}
	}
}

// SaveImage writes an image as PNG, creating parent directories as needed.
func (v *Viewer) SaveImage(img image.Image, relPath string) error {
	path := filepath.Join(v.outputDir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveStack renders every channel of a response-map stack for one case,
// naming the files by landmark.
func (v *Viewer) SaveStack(caseID string, stack heatmap.Stack) error {
	for i, m := range stack {
		name := string(models.LandmarkNames[i])
		relPath := filepath.Join(caseID, "response_maps",
			fmt.Sprintf("%02d_%s.png", i, name))
		if err := v.SaveImage(RenderResponseMap(m), relPath); err != nil {
			return fmt.Errorf("failed to save response map %s: %w", name, err)
		}
	}
	return nil
}

// SaveOverlay renders and saves the landmark overlay for one case.
func (v *Viewer) SaveOverlay(caseID string, im *models.Image, set *models.LandmarkSet) error {
	relPath := filepath.Join(caseID, "landmarks.png")
	return v.SaveImage(RenderOverlay(im, set), relPath)
}
