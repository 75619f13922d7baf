package runnercutter

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.uber.org/atomic"
	"go.viam.com/test"

	"go.viam.com/runnercutter/components/camera"
	"go.viam.com/runnercutter/utils"
)

func TestCorrectedLaserCoord(t *testing.T) {
	frame := camera.Frame{Width: 1000, Height: 500}
	current := r2.Point{X: 0.5, Y: 0.5}
	target := r2.Point{X: 500, Y: 250}

	// dot right of and below the target: move left, and up in laser Y
	next := correctedLaserCoord(current, target, r2.Point{X: 600, Y: 300}, frame)
	test.That(t, next.X, test.ShouldAlmostEqual, 0.4)
	test.That(t, next.Y, test.ShouldAlmostEqual, 0.6)

	next = correctedLaserCoord(current, target, r2.Point{X: 450, Y: 200}, frame)
	test.That(t, next.X, test.ShouldAlmostEqual, 0.55)
	test.That(t, next.Y, test.ShouldAlmostEqual, 0.4)

	test.That(t, correctedLaserCoord(current, target, target, frame), test.ShouldResemble, current)
}

// offsetDetections reports the laser dot a fixed pixel offset away from the target.
func offsetDetections(target, offset r2.Point, count *atomic.Int32) func(ctx context.Context) ([]camera.LaserDetection, error) {
	return func(ctx context.Context) ([]camera.LaserDetection, error) {
		count.Inc()
		return []camera.LaserDetection{{Pixel: target.Add(offset), Position: camera.InvalidPosition}}, nil
	}
}

func TestAimFailures(t *testing.T) {
	conf := testConfig()
	conf.AimMaxIterations = 3
	conf.Timing.DetectionAttempts = 2
	sc := newSimCutter(t, conf)
	calibrate(t, sc)

	ctx := context.Background()
	target := r2.Point{X: 640, Y: 360}
	position, err := sc.scene.Camera().GetPositions(ctx, []r2.Point{{X: 0.5, Y: 0.5}})
	test.That(t, err, test.ShouldBeNil)

	checkLaserOff := func(t *testing.T) {
		t.Helper()
		test.That(t, sc.lsr.Playing(), test.ShouldBeFalse)
		_, auto := sc.scene.Exposure()
		test.That(t, auto, test.ShouldBeTrue)
	}

	t.Run("does not converge", func(t *testing.T) {
		var count atomic.Int32
		sc.cam.GetLaserDetectionFunc = offsetDetections(target, r2.Point{X: 50}, &count)
		defer func() { sc.cam.GetLaserDetectionFunc = nil }()

		_, err := sc.aim(ctx, position[0], target)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "did not converge")
		test.That(t, count.Load(), test.ShouldEqual, int32(3))
		checkLaserOff(t)
	})

	t.Run("correction leaves bounds", func(t *testing.T) {
		var count atomic.Int32
		sc.cam.GetLaserDetectionFunc = offsetDetections(target, r2.Point{X: 1000}, &count)
		defer func() { sc.cam.GetLaserDetectionFunc = nil }()

		_, err := sc.aim(ctx, position[0], target)
		test.That(t, errors.Is(err, utils.ErrOutOfBounds), test.ShouldBeTrue)
		test.That(t, count.Load(), test.ShouldEqual, int32(1))
		checkLaserOff(t)
	})

	t.Run("laser not detected", func(t *testing.T) {
		var count atomic.Int32
		sc.cam.GetLaserDetectionFunc = func(ctx context.Context) ([]camera.LaserDetection, error) {
			count.Inc()
			return nil, nil
		}
		defer func() { sc.cam.GetLaserDetectionFunc = nil }()

		_, err := sc.aim(ctx, position[0], target)
		test.That(t, errors.Is(err, utils.ErrDetectionTimeout), test.ShouldBeTrue)
		test.That(t, count.Load(), test.ShouldEqual, int32(2))
		checkLaserOff(t)
	})

	t.Run("target out of bounds", func(t *testing.T) {
		before := len(sc.lsr.Calls())
		// far left of the frame, beyond where the projector can reach
		_, err := sc.aim(ctx, r3.Vector{X: -0.4, Y: 0, Z: 0.5}, r2.Point{X: 10, Y: 360})
		test.That(t, errors.Is(err, utils.ErrOutOfBounds), test.ShouldBeTrue)
		test.That(t, sc.lsr.Calls(), test.ShouldHaveLength, before)
	})

	t.Run("manual target out of bounds", func(t *testing.T) {
		var lookups atomic.Int32
		sc.cam.GetPositionsFunc = func(ctx context.Context, normalizedPixels []r2.Point) ([]r3.Vector, error) {
			lookups.Inc()
			return sc.scene.Camera().GetPositions(ctx, normalizedPixels)
		}
		defer func() { sc.cam.GetPositionsFunc = nil }()
		before := len(sc.lsr.Calls())

		// the far left edge maps beyond where the projector can reach
		test.That(t, sc.ManualTargetAimLaser(ctx, r2.Point{X: 0.02, Y: 0.5}), test.ShouldBeNil)
		waitForStatus(t, sc, func(tb testing.TB, st Status) {
			test.That(tb, lookups.Load(), test.ShouldEqual, int32(1))
			test.That(tb, st.State, test.ShouldEqual, StateIdle)
		})
		test.That(t, sc.lsr.Calls()[before:], test.ShouldNotContain, "play")
		test.That(t, sc.lsr.Playing(), test.ShouldBeFalse)
	})

	t.Run("camera unavailable", func(t *testing.T) {
		sc.cam.SetExposureFunc = func(ctx context.Context, exposureUs float64) error {
			return errors.New("no route to camera")
		}
		defer func() { sc.cam.SetExposureFunc = nil }()

		_, err := sc.aim(ctx, position[0], target)
		test.That(t, errors.Is(err, utils.ErrServiceUnavailable), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "no route to camera")
		checkLaserOff(t)
	})
}

func TestBurn(t *testing.T) {
	sc := newSimCutter(t, testConfig())
	coord := r2.Point{X: 0.3, Y: 0.7}

	test.That(t, sc.burn(context.Background(), coord), test.ShouldBeNil)
	test.That(t, sc.lsr.Calls(), test.ShouldResemble, []string{"set_points", "set_color", "play", "stop"})
	test.That(t, sc.lsr.Points(), test.ShouldResemble, []r2.Point{coord})
	test.That(t, sc.lsr.Color(), test.ShouldResemble, DefaultBurnLaserColor)
	test.That(t, sc.scene.Playing(), test.ShouldBeFalse)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sc.burn(ctx, coord)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, sc.scene.Playing(), test.ShouldBeFalse)
}
