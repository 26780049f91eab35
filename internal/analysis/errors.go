package analysis

import (
	"errors"
	"fmt"
)

var (
	ErrNoFile           = errors.New("analysis: no file uploaded")
	ErrInvalidExtension = errors.New("analysis: file is not an EDF recording")
	ErrModelNotReady    = errors.New("analysis: model not loaded")
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageStore     Stage = "store"
	StageDecode    Stage = "decode"
	StageFilter    Stage = "filter"
	StageFeatures  Stage = "features"
	StageInference Stage = "inference"
)

// ProcessingError reports which stage of the pipeline failed.
type ProcessingError struct {
	Stage Stage
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("error processing EEG file (%s): %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func stageError(stage Stage, err error) error {
	return &ProcessingError{Stage: stage, Err: err}
}
