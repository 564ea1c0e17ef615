package models

import (
	"fmt"
)

// LandmarkName identifies one of the 19 cephalometric landmarks annotated on
// a lateral cephalometric radiograph.
type LandmarkName string

// The 19 landmark identifiers. The declaration order here is not significant;
// LandmarkNames below defines the canonical ordering.
const (
	Nasion        LandmarkName = "N"
	Sella         LandmarkName = "S"
	Articulare    LandmarkName = "Ar"
	Orbitale      LandmarkName = "Or"
	Porion        LandmarkName = "Po"
	PointA        LandmarkName = "A"
	PointB        LandmarkName = "B"
	UpperIncisor  LandmarkName = "U1"
	LabraleSup    LandmarkName = "Ls"
	SoftPogonion  LandmarkName = "Pog'"
	Gonion        LandmarkName = "Go"
	Pogonion      LandmarkName = "Pog"
	Menton        LandmarkName = "Me"
	AnteriorNasal LandmarkName = "ANS"
	PosteriorNasal LandmarkName = "PNS"
	Gnathion      LandmarkName = "Gn"
	LowerIncisor  LandmarkName = "L1"
	LabraleInf    LandmarkName = "Li"
	Pronasale     LandmarkName = "Pn"
)

// LandmarkNames is the canonical landmark ordering. It defines the heatmap
// channel index of each landmark and must be identical across every component
// that produces or consumes per-landmark data.
var LandmarkNames = []LandmarkName{
	Nasion, Sella, Articulare, Orbitale, Porion,
	PointA, PointB, UpperIncisor, LabraleSup, SoftPogonion,
	Gonion, Pogonion, Menton, AnteriorNasal, PosteriorNasal,
	Gnathion, LowerIncisor, LabraleInf, Pronasale,
}

// NumLandmarks is the fixed size of a complete landmark set.
const NumLandmarks = 19

var landmarkIndex = func() map[LandmarkName]int {
	m := make(map[LandmarkName]int, NumLandmarks)
	for i, name := range LandmarkNames {
		m[name] = i
	}
	return m
}()

// ChannelIndex returns the heatmap channel index of the landmark, or -1 if
// the name is not one of the 19 known landmarks.
func (n LandmarkName) ChannelIndex() int {
	if i, ok := landmarkIndex[n]; ok {
		return i
	}
	return -1
}

// LandmarkPoint is a single located landmark in image pixel space.
type LandmarkPoint struct {
	// Name identifies the landmark.
	Name LandmarkName

	// X and Y are the coordinates in image pixel space. After clipping they
	// lie within [0, width) x [0, height).
	X, Y float64

	// Confidence is the detection confidence in [0, 1]. A confidence of 0
	// signals that the landmark was not reliably detected.
	Confidence float64

	// Valid reports whether the point may be used for downstream
	// measurement. Ground-truth annotations mark absent or out-of-frame
	// landmarks invalid; predictions mark degenerate detections invalid.
	Valid bool
}

// Clip clamps the point coordinates into [0, width) x [0, height).
// Clipping a coordinate already in range is a no-op.
func (p LandmarkPoint) Clip(width, height int) LandmarkPoint {
	if p.X < 0 {
		p.X = 0
	} else if p.X > float64(width-1) {
		p.X = float64(width - 1)
	}
	if p.Y < 0 {
		p.Y = 0
	} else if p.Y > float64(height-1) {
		p.Y = float64(height - 1)
	}
	return p
}

// LandmarkSet holds exactly one point per landmark, in canonical order.
type LandmarkSet struct {
	points [NumLandmarks]LandmarkPoint
}

// NewLandmarkSet returns a set with every point named, zero-positioned and
// marked invalid.
func NewLandmarkSet() *LandmarkSet {
	s := &LandmarkSet{}
	for i, name := range LandmarkNames {
		s.points[i] = LandmarkPoint{Name: name}
	}
	return s
}

// Point returns the point for the given landmark name.
func (s *LandmarkSet) Point(name LandmarkName) (LandmarkPoint, error) {
	i := name.ChannelIndex()
	if i < 0 {
		return LandmarkPoint{}, fmt.Errorf("unknown landmark name %q", name)
	}
	return s.points[i], nil
}

// SetPoint stores the point under its own name.
func (s *LandmarkSet) SetPoint(p LandmarkPoint) error {
	i := p.Name.ChannelIndex()
	if i < 0 {
		return fmt.Errorf("unknown landmark name %q", p.Name)
	}
	s.points[i] = p
	return nil
}

// Points returns all 19 points in canonical order. The returned slice is a
// copy; mutating it does not affect the set.
func (s *LandmarkSet) Points() []LandmarkPoint {
	out := make([]LandmarkPoint, NumLandmarks)
	copy(out, s.points[:])
	return out
}

// ClipAll clamps every point into the image bounds.
func (s *LandmarkSet) ClipAll(width, height int) {
	for i := range s.points {
		s.points[i] = s.points[i].Clip(width, height)
	}
}

// ValidCount returns the number of points marked valid.
func (s *LandmarkSet) ValidCount() int {
	n := 0
	for i := range s.points {
		if s.points[i].Valid {
			n++
		}
	}
	return n
}
