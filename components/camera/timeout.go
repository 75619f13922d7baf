package camera

import (
	"context"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/runnercutter/utils"
)

// WithTimeout wraps a camera so that every call is bounded by timeout. Failed calls are reported
// as utils.ErrServiceUnavailable unless the caller's own context was cancelled.
func WithTimeout(cam Camera, timeout time.Duration) Camera {
	return &timeoutCamera{cam: cam, timeout: timeout}
}

type timeoutCamera struct {
	cam     Camera
	timeout time.Duration
}

func (tc *timeoutCamera) wrap(ctx context.Context, method string, err error) error {
	if err == nil || ctx.Err() != nil {
		return err
	}
	return utils.NewServiceUnavailableError(SubtypeName, method, err)
}

func (tc *timeoutCamera) GetFrame(ctx context.Context) (Frame, error) {
	callCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()
	frame, err := tc.cam.GetFrame(callCtx)
	return frame, tc.wrap(ctx, "get_frame", err)
}

func (tc *timeoutCamera) GetRunnerDetection(ctx context.Context) ([]RunnerDetection, error) {
	callCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()
	detections, err := tc.cam.GetRunnerDetection(callCtx)
	return detections, tc.wrap(ctx, "get_runner_detection", err)
}

func (tc *timeoutCamera) GetLaserDetection(ctx context.Context) ([]LaserDetection, error) {
	callCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()
	detections, err := tc.cam.GetLaserDetection(callCtx)
	return detections, tc.wrap(ctx, "get_laser_detection", err)
}

func (tc *timeoutCamera) GetPositions(ctx context.Context, normalizedPixels []r2.Point) ([]r3.Vector, error) {
	callCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()
	positions, err := tc.cam.GetPositions(callCtx, normalizedPixels)
	return positions, tc.wrap(ctx, "get_positions", err)
}

func (tc *timeoutCamera) SetExposure(ctx context.Context, exposureUs float64) error {
	callCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()
	return tc.wrap(ctx, "set_exposure", tc.cam.SetExposure(callCtx, exposureUs))
}

func (tc *timeoutCamera) AutoExposure(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()
	return tc.wrap(ctx, "auto_exposure", tc.cam.AutoExposure(callCtx))
}
