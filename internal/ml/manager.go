package ml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle stage of the model handle.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Loader turns a model file into a Classifier.
type Loader interface {
	Load(path string, md *ModelMetadata) (Classifier, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string, md *ModelMetadata) (Classifier, error)

func (f LoaderFunc) Load(path string, md *ModelMetadata) (Classifier, error) { return f(path, md) }

// LoaderFor picks a loader from the model file extension.
func LoaderFor(path, onnxLibrary string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return ONNXLoader{LibraryPath: onnxLibrary}, nil
	case ".json":
		return LinearLoader{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, filepath.Ext(path))
	}
}

// Manager owns the classifier and its load state. Requests only ever see a
// fully loaded classifier or ErrNotLoaded.
type Manager struct {
	path    string
	loader  Loader
	metrics MetricsInterface

	mu         sync.RWMutex
	state      State
	classifier Classifier
	metadata   *ModelMetadata
	loadedAt   time.Time
	lastErr    error
}

// ModelInfo describes the manager for status endpoints.
type ModelInfo struct {
	State     string         `json:"state"`
	Path      string         `json:"path"`
	LoadedAt  *time.Time     `json:"loaded_at,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	Metadata  *ModelMetadata `json:"metadata,omitempty"`
}

func NewManager(path string, loader Loader, metrics MetricsInterface) *Manager {
	return &Manager{
		path:    path,
		loader:  loader,
		metrics: metrics,
	}
}

// NewManagerFor picks the loader from the model file's extension. An
// unsupported extension is logged and the manager is built without a loader,
// so every Load fails with ErrUnsupportedModel and the service stays up.
func NewManagerFor(path, onnxLibrary string, metrics MetricsInterface) *Manager {
	loader, err := LoaderFor(path, onnxLibrary)
	if err != nil {
		log.Warn().Err(err).Str("model_path", path).Msg("no loader for model file, analyses will be rejected")
	}
	return NewManager(path, loader, metrics)
}

// Load brings the model into memory. It returns nil when the model is already
// loaded and ErrLoadInProgress, without waiting, when another load is running.
// A failed load leaves the manager unloaded so it can be retried.
func (m *Manager) Load() error {
	m.mu.Lock()
	switch m.state {
	case StateLoaded:
		m.mu.Unlock()
		return nil
	case StateLoading:
		m.mu.Unlock()
		return ErrLoadInProgress
	}
	m.setStateLocked(StateLoading)
	m.mu.Unlock()

	start := time.Now()
	classifier, md, err := m.load()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.lastErr = err
		m.setStateLocked(StateUnloaded)
		if m.metrics != nil {
			m.metrics.MLModelLoadsInc("failure")
		}
		return fmt.Errorf("load model %s: %w", m.path, err)
	}

	m.classifier = classifier
	m.metadata = md
	m.loadedAt = time.Now()
	m.lastErr = nil
	m.setStateLocked(StateLoaded)

	if m.metrics != nil {
		m.metrics.MLModelLoadsInc("success")
		if info, statErr := os.Stat(m.path); statErr == nil {
			m.metrics.MLModelAgeSet(time.Since(info.ModTime()).Seconds())
		}
	}

	log.Info().
		Str("model_path", m.path).
		Str("version", md.Version).
		Strs("classes", md.Classes).
		Dur("took", time.Since(start)).
		Msg("model loaded")
	return nil
}

func (m *Manager) load() (Classifier, *ModelMetadata, error) {
	if m.loader == nil {
		return nil, nil, fmt.Errorf("%w: no loader for %q", ErrUnsupportedModel, filepath.Ext(m.path))
	}

	md, err := loadModelMetadata(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("metadata: %w", err)
		}
		log.Debug().Str("model_path", m.path).Msg("no model metadata found, using defaults")
		md = defaultMetadata()
	}
	if err := md.validate(); err != nil {
		return nil, nil, err
	}

	classifier, err := m.loader.Load(m.path, md)
	if err != nil {
		return nil, nil, err
	}
	return classifier, md, nil
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	if m.metrics != nil {
		m.metrics.MLModelStateSet(float64(s))
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready reports whether requests can be served.
func (m *Manager) Ready() bool {
	return m.State() == StateLoaded
}

// Classifier returns the loaded classifier or ErrNotLoaded.
func (m *Manager) Classifier() (Classifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateLoaded {
		return nil, ErrNotLoaded
	}
	return m.classifier, nil
}

// Metadata returns the loaded model's metadata, or nil.
func (m *Manager) Metadata() *ModelMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata
}

func (m *Manager) Info() ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := ModelInfo{
		State:    m.state.String(),
		Path:     m.path,
		Metadata: m.metadata,
	}
	if m.state == StateLoaded {
		at := m.loadedAt
		info.LoadedAt = &at
	}
	if m.lastErr != nil {
		info.LastError = m.lastErr.Error()
	}
	return info
}

// Predict runs the classifier and decides the class.
func (m *Manager) Predict(ctx context.Context, features []float32) (Prediction, error) {
	classifier, err := m.Classifier()
	if err != nil {
		return Prediction{}, err
	}

	start := time.Now()
	scores, err := classifier.Predict(ctx, features)
	if m.metrics != nil {
		m.metrics.MLLatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		if m.metrics != nil {
			m.metrics.MLFailuresInc()
		}
		return Prediction{}, err
	}

	pred, err := Decide(scores)
	if err != nil {
		if m.metrics != nil {
			m.metrics.MLFailuresInc()
		}
		return Prediction{}, err
	}

	if m.metrics != nil {
		m.metrics.MLPredictionsInc()
		m.metrics.MLPredictionScoresObserve(pred.Confidence / 100)
	}
	return pred, nil
}

// Close unloads the model.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.classifier == nil {
		return nil
	}
	err := m.classifier.Close()
	m.classifier = nil
	m.metadata = nil
	m.setStateLocked(StateUnloaded)
	return err
}
