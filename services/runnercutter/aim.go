package runnercutter

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/runnercutter/components/camera"
	"go.viam.com/runnercutter/components/laser"
	"go.viam.com/runnercutter/utils"
)

// aim points the laser at a camera point and visually servos it onto targetPixel. It returns the
// laser coordinate that lands within the configured threshold of the target. The laser is stopped
// and auto exposure restored on every exit path.
func (s *cutter) aim(ctx context.Context, targetPosition r3.Vector, targetPixel r2.Point) (coord r2.Point, err error) {
	initial := s.engine.CameraPointToLaserCoord(targetPosition)
	if !laser.InBounds(initial) {
		return r2.Point{}, utils.NewOutOfBoundsError(initial.X, initial.Y)
	}

	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		err = multierr.Combine(err, s.lsr.Stop(cleanupCtx), s.cam.AutoExposure(cleanupCtx))
	}()
	if err := s.cam.SetExposure(ctx, s.conf.LaserDetectionExposureUs); err != nil {
		return r2.Point{}, err
	}
	if err := s.lsr.SetPoints(ctx, []r2.Point{initial}); err != nil {
		return r2.Point{}, err
	}
	if err := s.lsr.SetColor(ctx, *s.conf.TrackingLaserColor); err != nil {
		return r2.Point{}, err
	}
	if err := s.lsr.Play(ctx); err != nil {
		return r2.Point{}, err
	}
	return s.correctLaser(ctx, targetPixel, initial)
}

func (s *cutter) correctLaser(ctx context.Context, targetPixel, initial r2.Point) (r2.Point, error) {
	frame := s.engine.FrameSize()
	current := initial
	for iteration := 0; iteration < s.conf.AimMaxIterations; iteration++ {
		if err := s.lsr.SetPoints(ctx, []r2.Point{current}); err != nil {
			return r2.Point{}, err
		}
		// galvo settle and frame capture
		if !goutils.SelectContextOrWait(ctx, s.conf.Timing.AimSettle) {
			return r2.Point{}, ctx.Err()
		}
		detection, err := camera.DetectLaser(ctx, s.cam, s.conf.Timing.DetectionAttempts, s.conf.Timing.DetectionBackoff, s.logger)
		if err != nil {
			return r2.Point{}, err
		}

		dist := detection.Pixel.Sub(targetPixel).Norm()
		s.logger.Debugw("aiming laser", "target_pixel", targetPixel, "laser_pixel", detection.Pixel, "dist", dist)
		if dist <= s.conf.AimThresholdPx {
			return current, nil
		}

		// the dot's observed position is a free correspondence
		if camera.IsValidPosition(detection.Position) {
			if err := s.engine.AddPointCorrespondence(ctx, current, detection.Position, true); err != nil {
				if ctx.Err() != nil {
					return r2.Point{}, ctx.Err()
				}
				s.logger.Warnw("failed to refine calibration while aiming", "error", err)
			}
		}

		next := correctedLaserCoord(current, targetPixel, detection.Pixel, frame)
		s.logger.Debugw("correcting laser", "dist", dist, "current", current, "next", next)
		if !laser.InBounds(next) {
			return r2.Point{}, utils.NewOutOfBoundsError(next.X, next.Y)
		}
		current = next
	}
	return r2.Point{}, errors.Errorf("laser did not converge on target after %d corrections", s.conf.AimMaxIterations)
}

// correctedLaserCoord steps the laser coordinate by the pixel error scaled to the frame. The laser
// Y axis is flipped relative to camera image Y.
func correctedLaserCoord(current, targetPixel, laserPixel r2.Point, frame camera.Frame) r2.Point {
	correction := targetPixel.Sub(laserPixel)
	return r2.Point{
		X: current.X + correction.X/float64(frame.Width),
		Y: current.Y - correction.Y/float64(frame.Height),
	}
}

// burn holds the laser at coord in the burn color for the configured dwell. The laser is stopped on
// every exit path.
func (s *cutter) burn(ctx context.Context, coord r2.Point) (err error) {
	defer func() {
		err = multierr.Combine(err, s.lsr.Stop(context.WithoutCancel(ctx)))
	}()
	if err := s.lsr.SetPoints(ctx, []r2.Point{coord}); err != nil {
		return err
	}
	if err := s.lsr.SetColor(ctx, *s.conf.BurnLaserColor); err != nil {
		return err
	}
	if err := s.lsr.Play(ctx); err != nil {
		return err
	}
	if !goutils.SelectContextOrWait(ctx, s.conf.BurnTime) {
		return ctx.Err()
	}
	return nil
}
