// Package providers - Inference sessions.
package providers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

var environment sync.Mutex

// Session wraps a dynamic ONNX Runtime session with named inputs and outputs.
type Session struct {
	Session *ort.DynamicAdvancedSession
	Inputs  []string
	Outputs []string
}

// Run executes the session. Outputs are allocated by ONNX Runtime and must be destroyed by the
// caller with DestroyValues.
//
// Arguments:
//   - inputs: One value per input name, in order.
//
// Returns:
//   - []ort.Value: One value per output name, in order.
//   - error: An error if the inputs do not match or the run fails.
func (s *Session) Run(inputs []ort.Value) ([]ort.Value, error) {
	if len(inputs) != len(s.Inputs) {
		return nil, errors.Errorf("session expects %d inputs, got %d", len(s.Inputs), len(inputs))
	}

	outputs := make([]ort.Value, len(s.Outputs))
	if err := s.Session.Run(inputs, outputs); err != nil {
		DestroyValues(outputs)
		return nil, errors.Wrap(err, "run session")
	}
	return outputs, nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return errors.Wrap(err, "destroy ORT session")
		}
	}
	return nil
}

// DestroyValues releases every non-nil value.
func DestroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

// NewSessionArgs represents the arguments for creating a new session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The input names of the model.
	Inputs []string
	// The output names of the model.
	Outputs []string
	// The optimization settings.
	Optimization OptimizationConfig
	// Optional override of the shared library path.
	LibraryPath string
}

// InitializeEnvironment loads the ONNX Runtime shared library once per process.
//
// Arguments:
//   - libPath: The shared library path, empty to use the platform default.
//
// Returns:
//   - error: An error if the library is missing or fails to load.
func InitializeEnvironment(libPath string) error {
	environment.Lock()
	defer environment.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libPath == "" {
		var err error
		libPath, err = GetSharedLibPath()
		if err != nil {
			return err
		}
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize ORT environment")
	}

	log.Info().Str("library", libPath).Msg("onnxruntime initialized")
	return nil
}

// NewSession creates a dynamic ONNX Runtime session.
//
// Order of operations:
//  1. Environment setup: loads the native runtime once per process.
//  2. Session options: graph optimization, threading and the execution provider.
//  3. Session creation: loads the model and binds the input and output names.
//
// Tensors are bound per Run call, so the proposal dimension may change between images.
//
// Arguments:
//   - provider: The provider for the session.
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session.
//   - error: An error if the session creation fails.
func NewSession(provider ExecutionProvider, args NewSessionArgs) (*Session, error) {
	if err := InitializeEnvironment(args.LibraryPath); err != nil {
		return nil, err
	}

	options, err := OptimizedSessionOptions(args.Optimization, provider)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(args.ModelPath, args.Inputs, args.Outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "create ORT session for %s", args.ModelPath)
	}

	log.Debug().
		Str("model", args.ModelPath).
		Str("backend", string(provider.Backend())).
		Strs("inputs", args.Inputs).
		Strs("outputs", args.Outputs).
		Msg("session created")

	return &Session{
		Session: session,
		Inputs:  args.Inputs,
		Outputs: args.Outputs,
	}, nil
}
