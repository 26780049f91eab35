package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"eeg-stress-api/internal/features"
)

// ModelMetadata contains information about the loaded model
type ModelMetadata struct {
	Version       string    `json:"version"`
	TrainedAt     time.Time `json:"trained_at"`
	Classes       []string  `json:"classes"`
	Features      []string  `json:"features,omitempty"`
	InputName     string    `json:"input_name,omitempty"`
	OutputName    string    `json:"output_name,omitempty"`
	InputShape    []int64   `json:"input_shape"`
	OutputShape   []int64   `json:"output_shape"`
	Accuracy      float64   `json:"accuracy,omitempty"`
	ValidationAcc float64   `json:"validation_accuracy,omitempty"`
}

func defaultMetadata() *ModelMetadata {
	return &ModelMetadata{
		Version:     "unknown",
		Classes:     []string{"low", "high"},
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, features.InputDim},
		OutputShape: []int64{1, 2},
	}
}

// InputWidth is the last dimension of the input shape.
func (md *ModelMetadata) InputWidth() int {
	if len(md.InputShape) == 0 {
		return 0
	}
	return int(md.InputShape[len(md.InputShape)-1])
}

// OutputWidth is the number of scores the model emits.
func (md *ModelMetadata) OutputWidth() int {
	if len(md.OutputShape) == 0 {
		return 0
	}
	return int(md.OutputShape[len(md.OutputShape)-1])
}

// fillDefaults completes a partially written metadata file.
func (md *ModelMetadata) fillDefaults() {
	def := defaultMetadata()
	if md.Version == "" {
		md.Version = def.Version
	}
	if len(md.Classes) == 0 {
		md.Classes = def.Classes
	}
	if md.InputName == "" {
		md.InputName = def.InputName
	}
	if md.OutputName == "" {
		md.OutputName = def.OutputName
	}
	if len(md.InputShape) == 0 {
		md.InputShape = def.InputShape
	}
	if len(md.OutputShape) == 0 {
		md.OutputShape = []int64{1, int64(len(md.Classes))}
	}
}

func (md *ModelMetadata) validate() error {
	if w := md.InputWidth(); w != features.InputDim {
		return fmt.Errorf("model expects %d input features, pipeline produces %d", w, features.InputDim)
	}
	if w := md.OutputWidth(); w != len(md.Classes) {
		return fmt.Errorf("model emits %d scores for %d classes", w, len(md.Classes))
	}
	if len(md.Classes) < 2 {
		return fmt.Errorf("model must have at least two classes, got %d", len(md.Classes))
	}
	return nil
}

// loadModelMetadata reads model_metadata.json next to the model, falling back
// to the newest model_metadata_*.json.
func loadModelMetadata(modelPath string) (*ModelMetadata, error) {
	dir := filepath.Dir(modelPath)
	primary := filepath.Join(dir, "model_metadata.json")

	if md, err := decodeMetadata(primary); err == nil {
		return md, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	pattern := filepath.Join(dir, "model_metadata_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return nil, os.ErrNotExist
	}
	sort.Strings(matches)
	return decodeMetadata(matches[len(matches)-1])
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	md.fillDefaults()
	return &md, nil
}
