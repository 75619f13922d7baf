package utils

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRejectedByState is returned when a request is made while the machine is in a state that
	// cannot accept it. The caller may retry later; nothing was changed.
	ErrRejectedByState = errors.New("request rejected by current state")

	// ErrCalibrationInsufficient is returned when too few point correspondences were found to fit
	// the camera to laser transform.
	ErrCalibrationInsufficient = errors.New("insufficient point correspondences")

	// ErrDetectionTimeout is returned when nothing was detected within the retry budget.
	ErrDetectionTimeout = errors.New("detection timed out")

	// ErrOutOfBounds is returned when a laser coordinate leaves the renderable [0,1]x[0,1] area.
	ErrOutOfBounds = errors.New("laser coordinate out of bounds")

	// ErrServiceUnavailable is returned when a collaborator could not be reached in time.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// NewRejectedByStateError is used when an operation is attempted from a state that does not allow it.
func NewRejectedByStateError(op, state string) error {
	return errors.Wrapf(ErrRejectedByState, "%s not allowed in state %q", op, state)
}

// NewNotCalibratedError is used when an operation requires a completed calibration.
func NewNotCalibratedError(op string) error {
	return errors.Wrapf(ErrRejectedByState, "%s requires calibration", op)
}

// NewCalibrationInsufficientError is used when fewer than the required correspondences exist.
func NewCalibrationInsufficientError(found, required int) error {
	return errors.Wrapf(ErrCalibrationInsufficient, "found %d, need at least %d", found, required)
}

// NewDetectionTimeoutError is used when a detection was not found after the given number of attempts.
func NewDetectionTimeoutError(what string, attempts int) error {
	return errors.Wrapf(ErrDetectionTimeout, "no %s detected after %d attempts", what, attempts)
}

// NewOutOfBoundsError is used when a laser coordinate falls outside of the renderable area.
func NewOutOfBoundsError(x, y float64) error {
	return errors.Wrapf(ErrOutOfBounds, "(%.4f, %.4f)", x, y)
}

// NewServiceUnavailableError is used when a call to a collaborator failed or timed out. The
// returned error matches both ErrServiceUnavailable and the underlying cause.
func NewServiceUnavailableError(service, method string, err error) error {
	return &serviceUnavailableError{service: service, method: method, err: err}
}

type serviceUnavailableError struct {
	service string
	method  string
	err     error
}

func (e *serviceUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrServiceUnavailable, e.service, e.method, e.err)
}

func (e *serviceUnavailableError) Unwrap() error {
	return e.err
}

func (e *serviceUnavailableError) Is(target error) bool {
	return target == ErrServiceUnavailable
}
