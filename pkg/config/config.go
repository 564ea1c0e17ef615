// Package config provides configuration loading and management for cephalyzer.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Image parameters
	Image struct {
		// Width and Height define the fixed network input resolution.
		// Images of any other resolution are rejected, not resized.
		Width  int `yaml:"width"`
		Height int `yaml:"height"`

		// HeatmapDownscale is the integer factor between the input
		// resolution and the response-map resolution (1 = same size)
		HeatmapDownscale int `yaml:"heatmapDownscale"`
	} `yaml:"image"`

	// Calibration parameters for the pixel-to-millimeter scale
	Calibration struct {
		// Mode selects the scale source: "ruler", "dpi" or "none"
		Mode string `yaml:"mode"`

		// RulerLengthMM and RulerLengthPX describe a calibration ruler
		// visible on the radiograph (used when Mode is "ruler")
		RulerLengthMM float64 `yaml:"rulerLengthMM"`
		RulerLengthPX float64 `yaml:"rulerLengthPX"`

		// DPI is the scanner resolution (used when Mode is "dpi")
		DPI float64 `yaml:"dpi"`
	} `yaml:"calibration"`

	// Heatmap parameters for target encoding and coordinate extraction
	Heatmap struct {
		// Sigma is the Gaussian spread of encoded target blobs in
		// response-map pixels
		Sigma float64 `yaml:"sigma"`

		// WingEpsilon and WingWidth shape the robust localization loss
		WingEpsilon float64 `yaml:"wingEpsilon"`
		WingWidth   float64 `yaml:"wingWidth"`

		// WingWeight and MSEWeight combine the robust and pointwise
		// loss terms
		WingWeight float64 `yaml:"wingWeight"`
		MSEWeight  float64 `yaml:"mseWeight"`

		// ExtractRadius is the half-width of the sub-pixel centroid
		// window around the peak cell
		ExtractRadius int `yaml:"extractRadius"`

		// MinActivation is the peak value below which a response map is
		// treated as degenerate
		MinActivation float64 `yaml:"minActivation"`
	} `yaml:"heatmap"`

	// Localizer parameters selecting and configuring the network backend
	Localizer struct {
		// Backend selects the localization backend: "onnx" or "meanshape"
		Backend string `yaml:"backend"`

		// ModelPath is the ONNX model file (used when Backend is "onnx")
		ModelPath string `yaml:"modelPath"`

		// MeanShapePath is a JSON file of normalized mean-shape landmark
		// positions (used when Backend is "meanshape")
		MeanShapePath string `yaml:"meanShapePath"`

		// JitterSigma is the spread of the deterministic perturbation
		// applied by the meanshape backend, in pixels (0 disables it)
		JitterSigma float64 `yaml:"jitterSigma"`

		// Seed makes the meanshape jitter reproducible
		Seed int64 `yaml:"seed"`
	} `yaml:"localizer"`

	// Evaluation parameters
	Evaluation struct {
		// SDRThresholdsMM lists the success detection rate thresholds
		// in millimeters
		SDRThresholdsMM []float64 `yaml:"sdrThresholdsMM"`

		// PCKRatios lists the normalized PCK ratios
		PCKRatios []float64 `yaml:"pckRatios"`
	} `yaml:"evaluation"`

	// Classifier parameters
	Classifier struct {
		// Backend selects the classifier: "rules", "mlp" or "blend"
		Backend string `yaml:"backend"`

		// ANBLow and ANBHigh bound the Class I range of the ANB angle
		ANBLow  float64 `yaml:"anbLow"`
		ANBHigh float64 `yaml:"anbHigh"`

		// RuleWeight and ModelWeight blend the rule-based and model
		// probabilities (used when Backend is "blend")
		RuleWeight  float64 `yaml:"ruleWeight"`
		ModelWeight float64 `yaml:"modelWeight"`

		// ImputeSentinel replaces undetermined metric values in the
		// feature vector; the companion validity mask marks them
		ImputeSentinel float64 `yaml:"imputeSentinel"`

		// WeightsPath is a JSON file of MLP weights (used when Backend
		// is "mlp" or "blend")
		WeightsPath string `yaml:"weightsPath"`
	} `yaml:"classifier"`

	// Clinical parameters
	Clinical struct {
		// NormalRanges maps metric names to [low, high] normal ranges
		NormalRanges map[string][2]float64 `yaml:"normalRanges"`
	} `yaml:"clinical"`

	// Pipeline parameters
	Pipeline struct {
		// Workers specifies how many cases are processed concurrently
		Workers int `yaml:"workers"`

		// SaveIntermediaryResults determines whether response maps and
		// landmark overlays are written out during processing
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are saved
		IntermediaryDir string `yaml:"intermediaryDir"`
	} `yaml:"pipeline"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default image parameters
	cfg.Image.Width = 512
	cfg.Image.Height = 512
	cfg.Image.HeatmapDownscale = 1

	// Set default calibration parameters
	cfg.Calibration.Mode = "ruler"
	cfg.Calibration.RulerLengthMM = 10.0
	cfg.Calibration.RulerLengthPX = 100.0
	cfg.Calibration.DPI = 300.0

	// Set default heatmap parameters
	cfg.Heatmap.Sigma = 3.0
	cfg.Heatmap.WingEpsilon = 2.0
	cfg.Heatmap.WingWidth = 10.0
	cfg.Heatmap.WingWeight = 1.0
	cfg.Heatmap.MSEWeight = 0.5
	cfg.Heatmap.ExtractRadius = 2
	cfg.Heatmap.MinActivation = 1e-6

	// Set default localizer parameters
	cfg.Localizer.Backend = "meanshape"
	cfg.Localizer.ModelPath = "models/cephnet.onnx"
	cfg.Localizer.MeanShapePath = "data/mean_shape.json"
	cfg.Localizer.JitterSigma = 0.0
	cfg.Localizer.Seed = 42

	// Set default evaluation parameters
	cfg.Evaluation.SDRThresholdsMM = []float64{2.0, 2.5, 3.0, 4.0}
	cfg.Evaluation.PCKRatios = []float64{0.05, 0.1}

	// Set default classifier parameters
	cfg.Classifier.Backend = "rules"
	cfg.Classifier.ANBLow = 0.0
	cfg.Classifier.ANBHigh = 4.0
	cfg.Classifier.RuleWeight = 0.6
	cfg.Classifier.ModelWeight = 0.4
	cfg.Classifier.ImputeSentinel = -999.0
	cfg.Classifier.WeightsPath = "models/classifier_weights.json"

	// Set default clinical normal ranges
	cfg.Clinical.NormalRanges = map[string][2]float64{
		"SNA": {80, 84},
		"SNB": {78, 82},
		"ANB": {0, 4},
		"FMA": {25, 30},
	}

	// Set default pipeline parameters
	cfg.Pipeline.Workers = runtime.NumCPU()
	cfg.Pipeline.SaveIntermediaryResults = false
	cfg.Pipeline.IntermediaryDir = "intermediary_results"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// MMPerPixel derives the pixel-to-millimeter scale factor from the
// calibration settings. It returns 0 when no calibration is available.
func (c *Config) MMPerPixel() float64 {
	switch c.Calibration.Mode {
	case "ruler":
		if c.Calibration.RulerLengthPX > 0 {
			return c.Calibration.RulerLengthMM / c.Calibration.RulerLengthPX
		}
	case "dpi":
		if c.Calibration.DPI > 0 {
			return 25.4 / c.Calibration.DPI
		}
	}
	return 0
}
