package inject

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/runnercutter/components/camera"
)

// Camera is an injected camera.
type Camera struct {
	camera.Camera
	GetFrameFunc           func(ctx context.Context) (camera.Frame, error)
	GetRunnerDetectionFunc func(ctx context.Context) ([]camera.RunnerDetection, error)
	GetLaserDetectionFunc  func(ctx context.Context) ([]camera.LaserDetection, error)
	GetPositionsFunc       func(ctx context.Context, normalizedPixels []r2.Point) ([]r3.Vector, error)
	SetExposureFunc        func(ctx context.Context, exposureUs float64) error
	AutoExposureFunc       func(ctx context.Context) error
}

var errNoCamera = errors.New("no injected function or underlying camera")

// GetFrame calls the injected GetFrame or the real version.
func (c *Camera) GetFrame(ctx context.Context) (camera.Frame, error) {
	if c.GetFrameFunc == nil {
		if c.Camera == nil {
			return camera.Frame{}, errNoCamera
		}
		return c.Camera.GetFrame(ctx)
	}
	return c.GetFrameFunc(ctx)
}

// GetRunnerDetection calls the injected GetRunnerDetection or the real version.
func (c *Camera) GetRunnerDetection(ctx context.Context) ([]camera.RunnerDetection, error) {
	if c.GetRunnerDetectionFunc == nil {
		if c.Camera == nil {
			return nil, errNoCamera
		}
		return c.Camera.GetRunnerDetection(ctx)
	}
	return c.GetRunnerDetectionFunc(ctx)
}

// GetLaserDetection calls the injected GetLaserDetection or the real version.
func (c *Camera) GetLaserDetection(ctx context.Context) ([]camera.LaserDetection, error) {
	if c.GetLaserDetectionFunc == nil {
		if c.Camera == nil {
			return nil, errNoCamera
		}
		return c.Camera.GetLaserDetection(ctx)
	}
	return c.GetLaserDetectionFunc(ctx)
}

// GetPositions calls the injected GetPositions or the real version.
func (c *Camera) GetPositions(ctx context.Context, normalizedPixels []r2.Point) ([]r3.Vector, error) {
	if c.GetPositionsFunc == nil {
		if c.Camera == nil {
			return nil, errNoCamera
		}
		return c.Camera.GetPositions(ctx, normalizedPixels)
	}
	return c.GetPositionsFunc(ctx, normalizedPixels)
}

// SetExposure calls the injected SetExposure or the real version. Without either it is a no-op.
func (c *Camera) SetExposure(ctx context.Context, exposureUs float64) error {
	if c.SetExposureFunc == nil {
		if c.Camera == nil {
			return nil
		}
		return c.Camera.SetExposure(ctx, exposureUs)
	}
	return c.SetExposureFunc(ctx, exposureUs)
}

// AutoExposure calls the injected AutoExposure or the real version. Without either it is a no-op.
func (c *Camera) AutoExposure(ctx context.Context) error {
	if c.AutoExposureFunc == nil {
		if c.Camera == nil {
			return nil
		}
		return c.Camera.AutoExposure(ctx)
	}
	return c.AutoExposureFunc(ctx)
}
