// Package interchange reads and writes the on-disk formats for landmark
// annotations and analysis results: long-form CSV records, COCO-style
// keypoint JSON, and per-case metric and classification reports.
package interchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"cephalyzer/internal/models"
)

// Annotation couples a landmark set with its dataset split assignment.
type Annotation struct {
	Set   *models.LandmarkSet
	Split string
}

// csvHeader is the long-form landmark record layout: one row per case and
// landmark. Absent landmarks have empty coordinate fields.
var csvHeader = []string{"case_id", "landmark", "x", "y", "split"}

// ReadLandmarkCSV parses long-form landmark records. Every case gets a
// complete landmark set; landmarks missing from the file or with empty
// coordinates stay invalid. Unknown landmark names are an error, not a skip.
func ReadLandmarkCSV(r io.Reader) (map[string]*Annotation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, want := range csvHeader {
		if header[i] != want {
			return nil, fmt.Errorf("unexpected CSV column %d: got %q, want %q",
				i, header[i], want)
		}
	}

	cases := make(map[string]*Annotation)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		caseID := record[0]
		name := models.LandmarkName(record[1])
		if name.ChannelIndex() < 0 {
			return nil, fmt.Errorf("line %d: unknown landmark %q", line, record[1])
		}

		ann, ok := cases[caseID]
		if !ok {
			ann = &Annotation{Set: models.NewLandmarkSet(), Split: record[4]}
			cases[caseID] = ann
		}

		// Empty coordinates mark an absent landmark; the point stays
		// invalid in the set.
		if record[2] == "" || record[3] == "" {
			continue
		}

		x, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad x coordinate %q", line, record[2])
		}
		y, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad y coordinate %q", line, record[3])
		}

		point := models.LandmarkPoint{Name: name, X: x, Y: y, Confidence: 1, Valid: true}
		if err := ann.Set.SetPoint(point); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("no landmark records found")
	}
	return cases, nil
}

// WriteLandmarkCSV writes long-form landmark records for the given cases in
// sorted case order, all 19 landmarks per case in canonical order.
func WriteLandmarkCSV(w io.Writer, cases map[string]*Annotation) error {
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, id := range ids {
		ann := cases[id]
		for _, p := range ann.Set.Points() {
			record := []string{id, string(p.Name), "", "", ann.Split}
			if p.Valid {
				record[2] = strconv.FormatFloat(p.X, 'f', -1, 64)
				record[3] = strconv.FormatFloat(p.Y, 'f', -1, 64)
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
