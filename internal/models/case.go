package models

// Image is a single-channel radiograph normalized for inference.
type Image struct {
	// Data holds the pixel intensities in row-major order, normalized to
	// the [0, 1] range.
	Data []float64

	// Width and Height are the image dimensions in pixels.
	Width, Height int

	// MMPerPixel is the pixel-to-physical-unit scale factor. A value of 0
	// means no calibration is available; physical-unit measurements cannot
	// be computed for such an image.
	MMPerPixel float64
}

// At returns the intensity at (x, y). Callers must keep x and y in bounds.
func (im *Image) At(x, y int) float64 {
	return im.Data[y*im.Width+x]
}

// Calibrated reports whether a physical scale factor is available.
func (im *Image) Calibrated() bool {
	return im.MMPerPixel > 0
}

// ClassLabel is the skeletal relationship category of a case.
type ClassLabel int

// The three skeletal classes. The declaration order is also the fixed
// priority order used to break probability ties deterministically.
const (
	ClassI ClassLabel = iota
	ClassII
	ClassIII
)

// NumClasses is the number of skeletal classes.
const NumClasses = 3

// String returns the clinical label.
func (c ClassLabel) String() string {
	switch c {
	case ClassI:
		return "Class I"
	case ClassII:
		return "Class II"
	case ClassIII:
		return "Class III"
	default:
		return "unknown"
	}
}

// CaseRecord groups everything known about one patient case as it moves
// through the pipeline. Ingestion creates it; pipeline stages annotate it.
// A record is never mutated concurrently by more than one stage.
type CaseRecord struct {
	// ID identifies the case in reports and interchange files.
	ID string

	// Image is the normalized input radiograph.
	Image *Image

	// GroundTruth is the reference landmark annotation, when available.
	GroundTruth *LandmarkSet

	// Predicted is the landmark set produced by the localization stage.
	Predicted *LandmarkSet

	// TrueLabel and PredictedLabel hold the skeletal classification.
	// They are only meaningful when the corresponding Has flag is set.
	TrueLabel         ClassLabel
	HasTrueLabel      bool
	PredictedLabel    ClassLabel
	HasPredictedLabel bool
}
