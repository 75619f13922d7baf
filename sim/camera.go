package sim

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/runnercutter/components/camera"
)

type simCamera struct {
	scene *Scene
}

func (c *simCamera) GetFrame(ctx context.Context) (camera.Frame, error) {
	return c.scene.frame(), ctx.Err()
}

func (c *simCamera) GetRunnerDetection(ctx context.Context) ([]camera.RunnerDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.scene.runnerDetections(), nil
}

func (c *simCamera) GetLaserDetection(ctx context.Context) ([]camera.LaserDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.scene.laserDetections(), nil
}

func (c *simCamera) GetPositions(ctx context.Context, normalizedPixels []r2.Point) ([]r3.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.scene.positions(normalizedPixels), nil
}

func (c *simCamera) SetExposure(ctx context.Context, exposureUs float64) error {
	c.scene.mu.Lock()
	defer c.scene.mu.Unlock()
	c.scene.exposureUs = exposureUs
	c.scene.autoExposure = false
	return nil
}

func (c *simCamera) AutoExposure(ctx context.Context) error {
	c.scene.mu.Lock()
	defer c.scene.mu.Unlock()
	c.scene.autoExposure = true
	return nil
}
