package interchange

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/clinical"
)

// keypointVisibility values follow the COCO convention: 0 means the
// landmark is absent, 2 that it is annotated and visible.
const (
	visibilityAbsent  = 0
	visibilityVisible = 2
)

// KeypointCase is one case in the COCO-style keypoint layout: a flat
// [x, y, v] triplet per landmark, in canonical landmark order.
type KeypointCase struct {
	CaseID    string    `json:"case_id"`
	Keypoints []float64 `json:"keypoints"`
}

// WriteKeypointsJSON writes the given cases as a COCO-style keypoint array
// in sorted case order.
func WriteKeypointsJSON(w io.Writer, cases map[string]*models.LandmarkSet) error {
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]KeypointCase, 0, len(ids))
	for _, id := range ids {
		kc := KeypointCase{
			CaseID:    id,
			Keypoints: make([]float64, 0, 3*models.NumLandmarks),
		}
		for _, p := range cases[id].Points() {
			v := float64(visibilityAbsent)
			if p.Valid {
				v = visibilityVisible
			}
			kc.Keypoints = append(kc.Keypoints, p.X, p.Y, v)
		}
		out = append(out, kc)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// ReadKeypointsJSON parses a COCO-style keypoint array. Triplets with
// visibility 0 leave the landmark invalid.
func ReadKeypointsJSON(r io.Reader) (map[string]*models.LandmarkSet, error) {
	var in []KeypointCase
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to parse keypoint JSON: %w", err)
	}

	cases := make(map[string]*models.LandmarkSet, len(in))
	for _, kc := range in {
		if len(kc.Keypoints) != 3*models.NumLandmarks {
			return nil, fmt.Errorf("case %s: expected %d keypoint values, got %d",
				kc.CaseID, 3*models.NumLandmarks, len(kc.Keypoints))
		}
		set := models.NewLandmarkSet()
		for i, name := range models.LandmarkNames {
			x, y, v := kc.Keypoints[3*i], kc.Keypoints[3*i+1], kc.Keypoints[3*i+2]
			if v == visibilityAbsent {
				continue
			}
			point := models.LandmarkPoint{Name: name, X: x, Y: y, Confidence: 1, Valid: true}
			if err := set.SetPoint(point); err != nil {
				return nil, fmt.Errorf("case %s: %w", kc.CaseID, err)
			}
		}
		cases[kc.CaseID] = set
	}
	return cases, nil
}

// MetricRecord is the report form of one clinical metric. An undetermined
// metric keeps a null value instead of a misleading zero.
type MetricRecord struct {
	Name   string          `json:"name"`
	Value  *float64        `json:"value"`
	Unit   clinical.Unit   `json:"unit"`
	Status clinical.Status `json:"status,omitempty"`
}

// ClassRecord is the report form of a skeletal classification.
type ClassRecord struct {
	Label         string    `json:"label"`
	Probabilities []float64 `json:"probabilities"`
}

// CaseReport is the per-case analysis output.
type CaseReport struct {
	CaseID         string         `json:"case_id"`
	Metrics        []MetricRecord `json:"metrics"`
	Classification *ClassRecord   `json:"classification,omitempty"`
}

// NewCaseReport assembles the report for one case. Metrics appear in the
// fixed report order; classification is omitted when it was not produced.
func NewCaseReport(caseID string, metrics map[string]clinical.Metric,
	probs [models.NumClasses]float64, label models.ClassLabel, classified bool) *CaseReport {

	report := &CaseReport{CaseID: caseID}
	for _, name := range clinical.MetricNames {
		m, ok := metrics[name]
		if !ok {
			continue
		}
		record := MetricRecord{Name: m.Name, Unit: m.Unit, Status: m.Status}
		if !m.Undetermined {
			v := m.Value
			record.Value = &v
		}
		report.Metrics = append(report.Metrics, record)
	}

	if classified {
		report.Classification = &ClassRecord{
			Label:         label.String(),
			Probabilities: probs[:],
		}
	}
	return report
}

// WriteCaseReports writes per-case reports as a JSON array.
func WriteCaseReports(w io.Writer, reports []*CaseReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}
