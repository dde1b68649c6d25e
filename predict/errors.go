package predict

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrModelUnavailable is returned when the requested model was not loaded at
// startup.
var ErrModelUnavailable = errors.New("model not loaded")

// PredictionError wraps a failure inside a loaded model.
type PredictionError struct {
	Model string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("%s prediction: %v", e.Model, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// UnavailableError names the model that is not loaded. It matches
// ErrModelUnavailable under errors.Is.
type UnavailableError struct {
	Model string
}

func (e *UnavailableError) Error() string {
	return e.Model + " " + ErrModelUnavailable.Error()
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}
