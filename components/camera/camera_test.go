package camera_test

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/runnercutter/components/camera"
	"go.viam.com/runnercutter/logging"
	"go.viam.com/runnercutter/testutils/inject"
	"go.viam.com/runnercutter/utils"
)

func TestDetectLaserFirstAttempt(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	calls := 0
	cam := &inject.Camera{
		GetLaserDetectionFunc: func(ctx context.Context) ([]camera.LaserDetection, error) {
			calls++
			return []camera.LaserDetection{
				{Pixel: r2.Point{X: 10, Y: 20}, Position: r3.Vector{X: 0.1, Y: 0.2, Z: 0.5}},
				{Pixel: r2.Point{X: 30, Y: 40}},
			}, nil
		},
	}
	det, err := camera.DetectLaser(context.Background(), cam, 3, time.Millisecond, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 1)
	test.That(t, det.Pixel, test.ShouldResemble, r2.Point{X: 10, Y: 20})
	test.That(t, logs.FilterMessage("found more than 1 laser, using the first").Len(), test.ShouldEqual, 1)
}

func TestDetectLaserRetries(t *testing.T) {
	logger := logging.NewTestLogger(t)
	calls := 0
	cam := &inject.Camera{
		GetLaserDetectionFunc: func(ctx context.Context) ([]camera.LaserDetection, error) {
			calls++
			if calls < 3 {
				return nil, nil
			}
			return []camera.LaserDetection{{Pixel: r2.Point{X: 1, Y: 2}}}, nil
		},
	}
	det, err := camera.DetectLaser(context.Background(), cam, 3, time.Millisecond, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 3)
	test.That(t, det.Pixel, test.ShouldResemble, r2.Point{X: 1, Y: 2})

	calls = -10
	_, err = camera.DetectLaser(context.Background(), cam, 3, time.Millisecond, logger)
	test.That(t, errors.Is(err, utils.ErrDetectionTimeout), test.ShouldBeTrue)
	test.That(t, calls, test.ShouldEqual, -7)
}

func TestDetectLaserCancelled(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cam := &inject.Camera{
		GetLaserDetectionFunc: func(ctx context.Context) ([]camera.LaserDetection, error) {
			cancel()
			return nil, nil
		},
	}
	_, err := camera.DetectLaser(ctx, cam, 3, time.Hour, logger)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestWithTimeout(t *testing.T) {
	cam := &inject.Camera{
		GetFrameFunc: func(ctx context.Context) (camera.Frame, error) {
			<-ctx.Done()
			return camera.Frame{}, ctx.Err()
		},
		GetPositionsFunc: func(ctx context.Context, pixels []r2.Point) ([]r3.Vector, error) {
			return []r3.Vector{camera.InvalidPosition}, nil
		},
	}
	wrapped := camera.WithTimeout(cam, 10*time.Millisecond)

	_, err := wrapped.GetFrame(context.Background())
	test.That(t, errors.Is(err, utils.ErrServiceUnavailable), test.ShouldBeTrue)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)

	positions, err := wrapped.GetPositions(context.Background(), []r2.Point{{X: 0.5, Y: 0.5}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, positions, test.ShouldResemble, []r3.Vector{camera.InvalidPosition})

	// a cancelled caller is not reported as an unavailable service.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = wrapped.GetFrame(ctx)
	test.That(t, errors.Is(err, utils.ErrServiceUnavailable), test.ShouldBeFalse)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestPixelHelpers(t *testing.T) {
	frame := camera.Frame{Width: 640, Height: 480}
	test.That(t, frame.Size(), test.ShouldResemble, image.Point{X: 640, Y: 480})
	test.That(t, camera.NormalizePixel(image.Point{X: 320, Y: 120}, frame), test.ShouldResemble, r2.Point{X: 0.5, Y: 0.25})
	test.That(t, camera.NormalizePixel(image.Point{X: 320, Y: 120}, camera.Frame{}), test.ShouldResemble, r2.Point{X: -1, Y: -1})
	test.That(t, camera.DenormalizePixel(r2.Point{X: 0.5, Y: 0.25}, frame), test.ShouldResemble, r2.Point{X: 320, Y: 120})

	test.That(t, camera.IsValidPosition(r3.Vector{X: -0.1, Y: -0.2, Z: 0.5}), test.ShouldBeTrue)
	test.That(t, camera.IsValidPosition(camera.InvalidPosition), test.ShouldBeFalse)
}
