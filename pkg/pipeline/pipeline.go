// Package pipeline wires the processing stages into a per-case analysis run:
// localization, sub-pixel extraction, clinical measurement and skeletal
// classification, with optional batch evaluation against reference
// annotations.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/classifier"
	"cephalyzer/pkg/clinical"
	"cephalyzer/pkg/config"
	"cephalyzer/pkg/evaluation"
	"cephalyzer/pkg/heatmap"
	"cephalyzer/pkg/localizer"
	"cephalyzer/pkg/visualization"
)

// Analyzer runs the full cephalometric analysis for one case at a time.
// Construction binds the configured backends; the analyzer itself is safe
// for concurrent Run calls (the localizer serializes access internally).
type Analyzer struct {
	// cfg stores the analysis configuration
	cfg *config.Config

	// loc produces the 19-channel response stack for an input radiograph
	loc localizer.Localizer

	// extractor converts response maps to sub-pixel coordinates
	extractor *heatmap.Extractor

	// calculator computes the clinical metric catalog
	calculator *clinical.Calculator

	// cls maps metric features to skeletal class probabilities
	cls classifier.Classifier

	// viewer renders intermediary results, nil when disabled
	viewer *visualization.Viewer
}

// NewAnalyzer creates an analyzer with the backends selected by the
// configuration.
func NewAnalyzer(cfg *config.Config) (*Analyzer, error) {
	loc, err := localizer.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create localizer: %w", err)
	}

	cls, err := classifier.New(cfg)
	if err != nil {
		loc.Close()
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	a := &Analyzer{
		cfg: cfg,
		loc: loc,
		extractor: heatmap.NewExtractor(cfg.Heatmap.ExtractRadius,
			cfg.Heatmap.MinActivation, cfg.Image.HeatmapDownscale),
		calculator: clinical.NewCalculator(cfg.Clinical.NormalRanges),
		cls:        cls,
	}
	if cfg.Pipeline.SaveIntermediaryResults {
		a.viewer = visualization.NewViewer(cfg.Pipeline.IntermediaryDir)
	}
	return a, nil
}

// Close releases the localization backend.
func (a *Analyzer) Close() error {
	return a.loc.Close()
}

// CaseResult holds the complete per-case outcome. Err is set when the
// localization stage failed and nothing else is meaningful; ClassifierErr
// reports a classification-only failure that leaves landmarks and metrics
// intact.
type CaseResult struct {
	// ID identifies the case
	ID string

	// Landmarks is the predicted landmark set in image pixel space
	Landmarks *models.LandmarkSet

	// Metrics is the computed clinical metric catalog
	Metrics map[string]clinical.Metric

	// Probabilities and Label hold the skeletal classification, valid
	// only when Classified is set
	Probabilities [models.NumClasses]float64
	Label         models.ClassLabel
	Classified    bool

	// Err reports a failed case; ClassifierErr a failed classification
	Err           error
	ClassifierErr error
}

// Run analyzes a single case: localize, extract, measure, classify. The
// record's Predicted fields are filled in on success.
func (a *Analyzer) Run(rec *models.CaseRecord) (*CaseResult, error) {
	if rec.Image == nil {
		return nil, fmt.Errorf("case %s has no image", rec.ID)
	}

	stack, err := a.loc.Predict(rec.Image)
	if err != nil {
		return nil, fmt.Errorf("localization failed for case %s: %w", rec.ID, err)
	}

	mapW, mapH := a.loc.MapSize()
	if err := stack.Validate(mapW, mapH); err != nil {
		return nil, fmt.Errorf("invalid response stack for case %s: %w", rec.ID, err)
	}

	set, err := a.extractor.ExtractAll(stack)
	if err != nil {
		return nil, fmt.Errorf("coordinate extraction failed for case %s: %w", rec.ID, err)
	}
	set.ClipAll(rec.Image.Width, rec.Image.Height)
	rec.Predicted = set

	if a.viewer != nil {
		if err := a.viewer.SaveStack(rec.ID, stack); err != nil {
			fmt.Printf("Warning: failed to save response maps for case %s: %v\n", rec.ID, err)
		}
		if err := a.viewer.SaveOverlay(rec.ID, rec.Image, set); err != nil {
			fmt.Printf("Warning: failed to save landmark overlay for case %s: %v\n", rec.ID, err)
		}
	}

	scale := rec.Image.MMPerPixel
	if scale == 0 {
		scale = a.cfg.MMPerPixel()
	}

	result := &CaseResult{
		ID:        rec.ID,
		Landmarks: set,
		Metrics:   a.calculator.Compute(set, scale),
	}

	features := classifier.Features(result.Metrics, a.cfg.Classifier.ImputeSentinel)
	probs, err := a.cls.Probabilities(features)
	if err != nil {
		// Classification failure does not invalidate the landmark and
		// metric results
		result.ClassifierErr = err
		return result, nil
	}
	result.Probabilities = probs
	result.Label = classifier.Argmax(probs)
	result.Classified = true

	rec.PredictedLabel = result.Label
	rec.HasPredictedLabel = true

	return result, nil
}

// BatchResult aggregates a batch run: one result per input case in input
// order, plus the localization accuracy report over every case that carried
// a reference annotation.
type BatchResult struct {
	// Results holds the per-case outcomes in input order. A failed case
	// has its Err field set; it is reported, never silently skipped.
	Results []*CaseResult

	// Evaluation is the accuracy report, nil when no case had a
	// reference annotation
	Evaluation *evaluation.Report

	// EvaluatedCases counts the cases that entered the evaluation;
	// UncalibratedCases counts annotated cases left out because no
	// physical scale was available to convert their errors
	EvaluatedCases    int
	UncalibratedCases int
}

// RunBatch processes cases concurrently with the configured number of
// workers. Cancelling the context stops the batch between cases; cases
// already in flight finish normally.
func (a *Analyzer) RunBatch(ctx context.Context, cases []*models.CaseRecord) (*BatchResult, error) {
	workers := a.cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(cases) {
		workers = len(cases)
	}

	results := make([]*CaseResult, len(cases))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				rec := cases[idx]
				res, err := a.Run(rec)
				if err != nil {
					res = &CaseResult{ID: rec.ID, Err: err}
				}
				results[idx] = res
			}
		}()
	}

	// Feed jobs until done or cancelled
	cancelled := false
feed:
	for idx := range cases {
		// Checked separately first: a ready worker must not win the
		// select against an already-cancelled context.
		select {
		case <-ctx.Done():
			cancelled = true
			break feed
		default:
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break feed
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled {
		// Cases never fed get an explicit cancellation result
		for idx, res := range results {
			if res == nil {
				results[idx] = &CaseResult{ID: cases[idx].ID, Err: ctx.Err()}
			}
		}
	}

	batch := &BatchResult{Results: results}
	if err := a.evaluate(cases, batch); err != nil {
		return nil, err
	}

	if cancelled {
		return batch, ctx.Err()
	}
	return batch, nil
}

// evaluate accumulates localization accuracy over the annotated cases.
func (a *Analyzer) evaluate(cases []*models.CaseRecord, batch *BatchResult) error {
	acc := evaluation.NewAccumulator(a.cfg.Evaluation.SDRThresholdsMM,
		a.cfg.Evaluation.PCKRatios)

	for i, rec := range cases {
		res := batch.Results[i]
		if res == nil || res.Err != nil || rec.GroundTruth == nil {
			continue
		}
		scale := rec.Image.MMPerPixel
		if scale == 0 {
			scale = a.cfg.MMPerPixel()
		}
		if scale <= 0 {
			batch.UncalibratedCases++
			continue
		}
		diag := evaluation.DiagonalPX(rec.Image.Width, rec.Image.Height)
		if err := acc.Add(res.Landmarks, rec.GroundTruth, scale, diag); err != nil {
			return fmt.Errorf("evaluation failed for case %s: %w", rec.ID, err)
		}
		batch.EvaluatedCases++
	}

	if batch.EvaluatedCases > 0 {
		batch.Evaluation = acc.Report()
	}
	return nil
}
