package runnercutter

import (
	"context"
	"image"
	"slices"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/runnercutter/components/camera"
	"go.viam.com/runnercutter/components/laser"
	"go.viam.com/runnercutter/tracker"
)

func (s *cutter) onEnterIdle(ctx context.Context) *request {
	cleanupCtx := context.WithoutCancel(ctx)
	if err := multierr.Combine(s.lsr.Stop(cleanupCtx), s.lsr.ClearPoints(cleanupCtx)); err != nil {
		s.logger.Warnw("failed to turn off laser", "error", err)
	}
	s.tracker.Clear()
	s.mu.Lock()
	s.detected = nil
	s.sessionID = ""
	s.mu.Unlock()
	s.publish()
	return nil
}

func (s *cutter) onEnterCalibration(ctx context.Context) *request {
	if err := s.engine.Calibrate(ctx); err != nil {
		if ctx.Err() == nil {
			s.logger.Warnw("calibration failed", "error", err)
		}
	} else {
		s.logger.Infow("calibration complete", "correspondences", s.engine.NumCorrespondences(),
			"reprojection_error", s.engine.ReprojectionError())
	}
	return &request{trigger: triggerCalibrationComplete}
}

func (s *cutter) onEnterAddCalibrationPoints(ctx context.Context, normalizedPixels []r2.Point) *request {
	done := &request{trigger: triggerAddCalibrationPointsComplete}

	positions, err := s.cam.GetPositions(ctx, normalizedPixels)
	if err != nil {
		s.logger.Warnw("failed to get positions", "error", err)
		return done
	}
	laserCoords := make([]r2.Point, 0, len(positions))
	for _, position := range positions {
		if !camera.IsValidPosition(position) {
			continue
		}
		laserCoords = append(laserCoords, s.engine.CameraPointToLaserCoord(position))
	}
	added, err := s.engine.AddCalibrationPoints(ctx, laserCoords, true)
	if err != nil && ctx.Err() == nil {
		s.logger.Warnw("failed to add calibration points", "error", err)
	}
	s.logger.Infow("added calibration points", "requested", len(normalizedPixels), "added", added,
		"reprojection_error", s.engine.ReprojectionError())
	return done
}

func (s *cutter) onEnterManualTargetAimLaser(ctx context.Context, normalizedPixel r2.Point) *request {
	done := &request{trigger: triggerManualTargetAimLaserComplete}

	positions, err := s.cam.GetPositions(ctx, []r2.Point{normalizedPixel})
	if err != nil {
		s.logger.Warnw("failed to get position", "error", err)
		return done
	}
	if len(positions) == 0 || !camera.IsValidPosition(positions[0]) {
		s.logger.Infow("no valid position at pixel", "normalized_pixel", normalizedPixel)
		return done
	}
	targetPixel := camera.DenormalizePixel(normalizedPixel, s.engine.FrameSize())
	if _, err := s.aim(ctx, positions[0], targetPixel); err != nil {
		if ctx.Err() == nil {
			s.logger.Infow("Failed to aim laser.", "error", err)
		}
	} else {
		s.logger.Info("Aim laser successful.")
	}
	return done
}

func (s *cutter) onEnterAcquireTarget(ctx context.Context, via trigger) *request {
	if via == triggerRunRunnerCutter {
		sessionID := uuid.NewString()
		s.mu.Lock()
		s.sessionID = sessionID
		s.mu.Unlock()
		s.logger.Infow("started runner cutter session", "session_id", sessionID)
	}
	retry := func() *request {
		if !goutils.SelectContextOrWait(ctx, s.conf.Timing.AcquireRetryInterval) {
			return nil
		}
		return &request{trigger: triggerNoTargetFound}
	}

	if err := s.detectRunners(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warnw("failed to detect runners", "error", err)
		return retry()
	}

	target, ok := s.selectTarget()
	if !ok {
		s.logger.Debug("No target found.")
		return retry()
	}
	if *s.conf.EnableAiming {
		return &request{trigger: triggerTargetAcquired, target: target}
	}
	return &request{
		trigger:    triggerTargetAcquired,
		target:     target,
		laserCoord: s.engine.CameraPointToLaserCoord(target.Position),
	}
}

// detectRunners refreshes the tracker from the detector. Tracks seen last cycle but missing now
// lose their pixel and position; the tracker demotes them if they were pending.
func (s *cutter) detectRunners(ctx context.Context) error {
	detections, err := s.cam.GetRunnerDetection(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := append([]int(nil), s.detected...)
	s.mu.Unlock()

	detected := make([]int, 0, len(detections))
	for _, det := range detections {
		if slices.Contains(detected, det.TrackID) {
			continue
		}
		pixel := image.Point{X: int(det.Pixel.X), Y: int(det.Pixel.Y)}
		s.tracker.Upsert(det.TrackID, pixel, det.Position)
		detected = append(detected, det.TrackID)
	}
	s.logger.Debugw("detected tracks", "count", len(detected), "ids", detected)

	for _, id := range prev {
		if slices.Contains(detected, id) {
			continue
		}
		s.logger.Infof("Track %d was detected in the previous frame but is no longer detected.", id)
		s.tracker.MarkMissing(id)
	}
	for _, track := range s.tracker.ListByState(tracker.Active) {
		if slices.Contains(detected, track.ID) {
			continue
		}
		if !slices.Contains(prev, track.ID) {
			// already missing last cycle
			track, _ = s.tracker.MarkMissing(track.ID)
		}
		if limit := s.conf.ActiveTrackMissLimit; limit > 0 && track.MissedCycles >= limit {
			s.logger.Infof("Active track %d missing for %d cycles. Marking as failed.", track.ID, track.MissedCycles)
			s.tracker.Transition(track.ID, tracker.Failed)
		}
	}

	s.mu.Lock()
	s.detected = detected
	s.mu.Unlock()
	return nil
}

// selectTarget prefers the active track, then the earliest pending track within laser bounds.
// Pending tracks out of bounds are failed along the way.
func (s *cutter) selectTarget() (tracker.Track, bool) {
	if active := s.tracker.ListByState(tracker.Active); len(active) > 0 {
		target := active[0]
		if !target.Visible() {
			s.logger.Debugf("Active track %d is not visible, waiting for it to reappear.", target.ID)
			return tracker.Track{}, false
		}
		s.logger.Debugf("Active track with ID %d already exists. Setting it as target.", target.ID)
		return target, true
	}
	for {
		track, ok := s.tracker.ClaimNextPending()
		if !ok {
			return tracker.Track{}, false
		}
		coord := s.engine.CameraPointToLaserCoord(track.Position)
		if !laser.InBounds(coord) {
			s.logger.Infof("Track %d is out of laser bounds. Marking as failed.", track.ID)
			s.tracker.Transition(track.ID, tracker.Failed)
			continue
		}
		s.logger.Infof("Setting track %d as target.", track.ID)
		return track, true
	}
}

func (s *cutter) onEnterAimLaser(ctx context.Context, target tracker.Track) *request {
	s.logger.Infof("Attempting to aim laser at target track %d...", target.ID)
	targetPixel := r2.Point{X: float64(target.Pixel.X), Y: float64(target.Pixel.Y)}
	coord, err := s.aim(ctx, target.Position, targetPixel)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Infow("Failed to aim laser at track. Marking track as failed.", "id", target.ID, "error", err)
		s.tracker.Transition(target.ID, tracker.Failed)
		return &request{trigger: triggerAimFailed}
	}
	s.logger.Infof("Aim at track %d successful.", target.ID)
	return &request{trigger: triggerAimSuccessful, target: target, laserCoord: coord}
}

func (s *cutter) onEnterBurnTarget(ctx context.Context, target tracker.Track, laserCoord r2.Point) *request {
	s.logger.Infof("Burning track %d...", target.ID)
	err := s.burn(ctx, laserCoord)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		s.logger.Warnw("burn failed. Marking track as failed.", "id", target.ID, "error", err)
		s.tracker.Transition(target.ID, tracker.Failed)
		return &request{trigger: triggerBurnComplete}
	}
	s.logger.Infof("Burn complete on track %d. Marking track as completed.", target.ID)
	s.tracker.Transition(target.ID, tracker.Completed)
	return &request{trigger: triggerBurnComplete}
}
