package model

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/brensch/snekql/executor/convert"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// ErrRuntimeUnavailable wraps failures to load the onnxruntime shared library.
var ErrRuntimeUnavailable = errors.New("onnx runtime unavailable")

// OnnxOptions tunes the ONNX runtime session.
type OnnxOptions struct {
	// LibraryPath points at libonnxruntime. Empty falls back to
	// ORT_SHARED_LIBRARY_PATH, then to a copy in the working directory.
	LibraryPath string
	CUDA        bool
	Logger      *slog.Logger
}

// OnnxPredictor evaluates an exported network with inputs named "input"
// [1,16] and outputs named "q" [1,4]. It only predicts; training stays on
// the gonum network.
type OnnxPredictor struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

func NewOnnxPredictor(modelPath string, opts OnnxOptions) (*OnnxPredictor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx model: %w", err)
	}

	setLibraryPath(opts.LibraryPath)
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntimeUnavailable, ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if opts.CUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			logger.Warn("cuda options unavailable", "error", err)
		} else {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				logger.Warn("failed to append cuda provider", "error", err)
			} else {
				logger.Info("cuda provider enabled")
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"q"}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &OnnxPredictor{session: session}, nil
}

func setLibraryPath(explicit string) {
	if explicit != "" {
		ort.SetSharedLibraryPath(explicit)
		return
	}
	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
		return
	}
	if runtime.GOOS != "linux" {
		return
	}
	cwd, _ := os.Getwd()
	for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
		abs := filepath.Join(cwd, name)
		if _, err := os.Stat(abs); err == nil {
			ort.SetSharedLibraryPath(abs)
			return
		}
	}
}

func (p *OnnxPredictor) Close() error {
	return p.session.Destroy()
}

func (p *OnnxPredictor) Predict(state convert.Features) (QValues, error) {
	var q QValues

	input, err := ort.NewTensor(ort.NewShape(1, NumInputs), state.Float32())
	if err != nil {
		return q, fmt.Errorf("input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, NumOutputs))
	if err != nil {
		return q, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	p.mu.Lock()
	err = p.session.Run([]ort.Value{input}, []ort.Value{output})
	p.mu.Unlock()
	if err != nil {
		return q, fmt.Errorf("onnx run: %w", err)
	}

	for i, v := range output.GetData() {
		if i >= NumOutputs {
			break
		}
		q[i] = float64(v)
	}
	return q, nil
}
