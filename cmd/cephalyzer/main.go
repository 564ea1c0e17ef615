package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"cephalyzer/internal/models"
	"cephalyzer/pkg/config"
	"cephalyzer/pkg/interchange"
	"cephalyzer/pkg/pipeline"
	"cephalyzer/pkg/preprocess"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing lateral cephalogram images")
	configPath := flag.String("config", "cephalyzer.yaml", "Configuration file path")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	annotationsPath := flag.String("annotations", "", "Reference landmark CSV for evaluation")
	outputPath := flag.String("output", "results.json", "Per-case analysis report output (JSON)")
	landmarksOut := flag.String("landmarks-out", "", "Predicted landmark CSV output (optional)")
	keypointsOut := flag.String("keypoints-out", "", "Predicted keypoints JSON output (optional)")
	resizeInput := flag.Bool("resize", false, "Rescale inputs to the network resolution instead of rejecting them")
	workers := flag.Int("workers", 0, "Concurrent case workers (0 = use configuration)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save response maps and landmark overlays")
	intermediaryDir := flag.String("intermediary-dir", "", "Directory for intermediary results (overrides configuration)")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config file: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *saveIntermediary {
		cfg.Pipeline.SaveIntermediaryResults = true
	}
	if *intermediaryDir != "" {
		cfg.Pipeline.IntermediaryDir = *intermediaryDir
	}

	fmt.Println("================================")
	fmt.Println("CEPHALYZER - CEPHALOMETRIC LANDMARK LOCALIZATION AND SKELETAL CLASSIFICATION")
	fmt.Println("================================")

	cases, err := loadCases(cfg, *inputDir, *annotationsPath, *resizeInput)
	if err != nil {
		log.Fatalf("Failed to load cases: %v", err)
	}
	fmt.Printf("Loaded %d cases from %s\n", len(cases), *inputDir)

	analyzer, err := pipeline.NewAnalyzer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer analyzer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Processing with %d workers...\n", cfg.Pipeline.Workers)
	startTime := time.Now()
	batch, err := analyzer.RunBatch(ctx, cases)
	if err != nil {
		if batch == nil {
			log.Fatalf("Batch processing failed: %v", err)
		}
		fmt.Printf("Batch interrupted: %v\n", err)
	}
	fmt.Printf("Processed %d cases in %.2f seconds\n\n",
		len(batch.Results), time.Since(startTime).Seconds())

	printSummary(batch)

	if err := writeOutputs(batch, *outputPath, *landmarksOut, *keypointsOut); err != nil {
		log.Fatalf("Failed to write outputs: %v", err)
	}
	fmt.Printf("\nAnalysis report saved to: %s\n", *outputPath)
}

// loadCases reads and normalizes the input radiographs and attaches reference
// annotations when available.
func loadCases(cfg *config.Config, inputDir, annotationsPath string, resizeInput bool) ([]*models.CaseRecord, error) {
	files, err := preprocess.ListCases(inputDir)
	if err != nil {
		return nil, err
	}

	var annotations map[string]*interchange.Annotation
	if annotationsPath != "" {
		f, err := os.Open(annotationsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open annotations: %w", err)
		}
		annotations, err = interchange.ReadLandmarkCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read annotations: %w", err)
		}
		fmt.Printf("Loaded reference annotations for %d cases\n", len(annotations))
	}

	cases := make([]*models.CaseRecord, 0, len(files))
	for _, file := range files {
		im, err := preprocess.LoadImage(file.Path)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", file.ID, err)
		}
		im.MMPerPixel = cfg.MMPerPixel()

		rec := &models.CaseRecord{ID: file.ID, Image: im}
		if ann, ok := annotations[file.ID]; ok {
			rec.GroundTruth = ann.Set
		}

		if resizeInput && (im.Width != cfg.Image.Width || im.Height != cfg.Image.Height) {
			sx := float64(cfg.Image.Width) / float64(im.Width)
			sy := float64(cfg.Image.Height) / float64(im.Height)
			rec.Image = preprocess.Resize(im, cfg.Image.Width, cfg.Image.Height)
			if rec.GroundTruth != nil {
				rec.GroundTruth = scaleLandmarks(rec.GroundTruth, sx, sy)
			}
		}

		cases = append(cases, rec)
	}
	return cases, nil
}

// scaleLandmarks maps an annotation into the resized coordinate space.
func scaleLandmarks(set *models.LandmarkSet, sx, sy float64) *models.LandmarkSet {
	scaled := models.NewLandmarkSet()
	for _, p := range set.Points() {
		p.X *= sx
		p.Y *= sy
		scaled.SetPoint(p)
	}
	return scaled
}

// printSummary reports per-case outcomes, the classification tally and the
// evaluation statistics.
func printSummary(batch *pipeline.BatchResult) {
	classCounts := make(map[models.ClassLabel]int)
	failed := 0
	for _, res := range batch.Results {
		if res.Err != nil {
			failed++
			fmt.Printf("  %s: FAILED (%v)\n", res.ID, res.Err)
			continue
		}
		if res.ClassifierErr != nil {
			fmt.Printf("  %s: landmarks located, classification failed (%v)\n",
				res.ID, res.ClassifierErr)
			continue
		}
		classCounts[res.Label]++
		fmt.Printf("  %s: %s (%.0f%% confidence), %d/%d landmarks detected\n",
			res.ID, res.Label, res.Probabilities[res.Label]*100,
			res.Landmarks.ValidCount(), models.NumLandmarks)
	}

	fmt.Println("\nClassification summary:")
	for _, label := range []models.ClassLabel{models.ClassI, models.ClassII, models.ClassIII} {
		fmt.Printf("  %s: %d cases\n", label, classCounts[label])
	}
	if failed > 0 {
		fmt.Printf("  Failed: %d cases\n", failed)
	}

	if batch.Evaluation == nil {
		return
	}

	fmt.Printf("\nLocalization accuracy over %d annotated cases:\n", batch.EvaluatedCases)
	fmt.Println("=======================================")
	fmt.Printf("Mean Radial Error (MRE): %.3f mm\n", batch.Evaluation.MRE)

	thresholds := make([]float64, 0, len(batch.Evaluation.SDR))
	for t := range batch.Evaluation.SDR {
		thresholds = append(thresholds, t)
	}
	sort.Float64s(thresholds)
	for _, t := range thresholds {
		fmt.Printf("SDR @ %.1f mm: %.2f%%\n", t, batch.Evaluation.SDR[t])
	}

	ratios := make([]float64, 0, len(batch.Evaluation.PCK))
	for r := range batch.Evaluation.PCK {
		ratios = append(ratios, r)
	}
	sort.Float64s(ratios)
	for _, r := range ratios {
		fmt.Printf("PCK @ %.2f: %.2f%%\n", r, batch.Evaluation.PCK[r])
	}

	fmt.Printf("Valid instances: %d, excluded: %d\n",
		batch.Evaluation.ValidCount, batch.Evaluation.ExcludedCount)
	if batch.UncalibratedCases > 0 {
		fmt.Printf("Skipped %d annotated cases without calibration\n", batch.UncalibratedCases)
	}
}

// writeOutputs saves the analysis report plus the optional landmark formats.
func writeOutputs(batch *pipeline.BatchResult, outputPath, landmarksOut, keypointsOut string) error {
	reports := make([]*interchange.CaseReport, 0, len(batch.Results))
	predicted := make(map[string]*models.LandmarkSet)
	for _, res := range batch.Results {
		if res.Err != nil {
			continue
		}
		reports = append(reports,
			interchange.NewCaseReport(res.ID, res.Metrics, res.Probabilities, res.Label, res.Classified))
		predicted[res.ID] = res.Landmarks
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := interchange.WriteCaseReports(out, reports); err != nil {
		return err
	}

	if landmarksOut != "" {
		annotations := make(map[string]*interchange.Annotation, len(predicted))
		for id, set := range predicted {
			annotations[id] = &interchange.Annotation{Set: set}
		}
		f, err := os.Create(landmarksOut)
		if err != nil {
			return err
		}
		err = interchange.WriteLandmarkCSV(f, annotations)
		f.Close()
		if err != nil {
			return err
		}
		fmt.Printf("Predicted landmarks saved to: %s\n", landmarksOut)
	}

	if keypointsOut != "" {
		f, err := os.Create(keypointsOut)
		if err != nil {
			return err
		}
		err = interchange.WriteKeypointsJSON(f, predicted)
		f.Close()
		if err != nil {
			return err
		}
		fmt.Printf("Predicted keypoints saved to: %s\n", keypointsOut)
	}

	return nil
}
