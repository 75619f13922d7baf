package utils

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestTaxonomy(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		sentinel error
		errStr   string
	}{
		{"rejected", NewRejectedByStateError("calibrate", "aim_laser"), ErrRejectedByState, `calibrate not allowed in state "aim_laser"`},
		{"not calibrated", NewNotCalibratedError("start_runner_cutter"), ErrRejectedByState, "start_runner_cutter requires calibration"},
		{"insufficient", NewCalibrationInsufficientError(2, 3), ErrCalibrationInsufficient, "found 2, need at least 3"},
		{"detection", NewDetectionTimeoutError("laser", 3), ErrDetectionTimeout, "no laser detected after 3 attempts"},
		{"bounds", NewOutOfBoundsError(1.25, -0.5), ErrOutOfBounds, "(1.2500, -0.5000)"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, errors.Is(tc.err, tc.sentinel), test.ShouldBeTrue)
			test.That(t, tc.err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}

func TestServiceUnavailableError(t *testing.T) {
	err := NewServiceUnavailableError("camera", "get_frame", context.DeadlineExceeded)
	test.That(t, errors.Is(err, ErrServiceUnavailable), test.ShouldBeTrue)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrDetectionTimeout), test.ShouldBeFalse)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera get_frame")

	wrapped := errors.Wrap(err, "calibrating")
	test.That(t, errors.Is(wrapped, ErrServiceUnavailable), test.ShouldBeTrue)
}
