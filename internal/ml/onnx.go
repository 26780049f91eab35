package ml

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

var ortEnv struct {
	mu    sync.Mutex
	users int
}

// acquireRuntime initialises the shared onnxruntime environment on first use.
func acquireRuntime(libraryPath string) error {
	ortEnv.mu.Lock()
	defer ortEnv.mu.Unlock()

	if ortEnv.users == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		log.Debug().Str("library", libraryPath).Msg("onnxruntime environment initialized")
	}
	ortEnv.users++
	return nil
}

func releaseRuntime() {
	ortEnv.mu.Lock()
	defer ortEnv.mu.Unlock()

	if ortEnv.users == 0 {
		return
	}
	ortEnv.users--
	if ortEnv.users == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Warn().Err(err).Msg("failed to destroy ONNX environment")
		}
	}
}

// ONNXLoader opens ONNX graphs with onnxruntime. LibraryPath points at the
// onnxruntime shared library; empty uses the platform default.
type ONNXLoader struct {
	LibraryPath string
}

// Load creates a session bound to fixed input and output tensors shaped by md.
func (l ONNXLoader) Load(path string, md *ModelMetadata) (Classifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if err := acquireRuntime(l.LibraryPath); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		releaseRuntime()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		releaseRuntime()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseRuntime()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxClassifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// onnxClassifier runs one session. The bound tensors are shared between
// calls, so Predict holds mu for the whole copy-run-read cycle.
type onnxClassifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	closed       bool
}

func (c *onnxClassifier) Predict(ctx context.Context, features []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrNotLoaded
	}

	input := c.inputTensor.GetData()
	if len(features) != len(input) {
		return nil, fmt.Errorf("ml: got %d features, model input holds %d", len(features), len(input))
	}
	copy(input, features)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := c.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (c *onnxClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	if err := c.session.Destroy(); err != nil {
		firstErr = err
	}
	if err := c.inputTensor.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.outputTensor.Destroy(); err != nil && firstErr == nil {
		firstErr = err
	}
	releaseRuntime()
	return firstErr
}
