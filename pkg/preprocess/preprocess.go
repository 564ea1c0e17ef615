// Package preprocess turns radiograph files into normalized single-channel
// images at the fixed network input resolution.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nfnt/resize"

	"cephalyzer/internal/models"
)

// LoadImage reads a JPEG or PNG radiograph, converts it to grayscale and
// normalizes intensities to [0, 1]. The caller attaches calibration
// separately; the returned image has no scale factor set.
func LoadImage(path string) (*models.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return FromImage(img), nil
}

// FromImage converts a decoded image to the normalized float representation.
func FromImage(img image.Image) *models.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	data := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			// Convert 16-bit grayscale to float64 (0-1 range)
			data[y*width+x] = float64(g.Y) / 65535.0
		}
	}

	return &models.Image{Data: data, Width: width, Height: height}
}

// ToGray16 converts the normalized float representation back to a 16-bit
// grayscale image.
func ToGray16(im *models.Image) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			v := im.At(x, y)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535.0)})
		}
	}
	return img
}

// Resize scales the image to the given resolution with Lanczos resampling.
// A no-op when the image already has the requested dimensions.
func Resize(im *models.Image, width, height int) *models.Image {
	if im.Width == width && im.Height == height {
		return im
	}
	scaled := resize.Resize(uint(width), uint(height), ToGray16(im), resize.Lanczos3)
	out := FromImage(scaled)
	out.MMPerPixel = im.MMPerPixel
	if im.MMPerPixel > 0 && width != im.Width {
		// Rescale the calibration with the geometry
		out.MMPerPixel = im.MMPerPixel * float64(im.Width) / float64(width)
	}
	return out
}

// ListCases returns the image files in a directory sorted by the numeric
// part of their filenames, so that case 2 precedes case 10. Each entry's ID
// is the filename without extension.
func ListCases(dir string) ([]CaseFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var cases []CaseFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		cases = append(cases, CaseFile{
			ID:   id,
			Path: filepath.Join(dir, entry.Name()),
		})
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("no radiograph images found in %s", dir)
	}

	sort.Slice(cases, func(i, j int) bool {
		ni := extractNumber(cases[i].ID)
		nj := extractNumber(cases[j].ID)
		if ni != nj {
			return ni < nj
		}
		return cases[i].ID < cases[j].ID
	})

	return cases, nil
}

// CaseFile names one radiograph on disk.
type CaseFile struct {
	ID   string
	Path string
}

// extractNumber extracts the numeric part from a case identifier
func extractNumber(id string) int {
	numStr := ""
	for _, c := range id {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}
