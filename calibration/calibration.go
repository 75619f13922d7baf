// Package calibration maintains the projective transform from 3D camera points to 2D laser
// coordinates. Correspondences are collected by sweeping the laser over a grid and locating the
// dot with the camera, then the transform is fit with a linear seed followed by a nonlinear
// refinement that runs off the caller's goroutine.
package calibration

import (
	"context"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/runnercutter/components/camera"
	"go.viam.com/runnercutter/components/laser"
	"go.viam.com/runnercutter/logging"
	"go.viam.com/runnercutter/utils"
)

// MinCorrespondences is the fewest correspondences a transform can be fit from.
const MinCorrespondences = 3

// RefineMethod selects the nonlinear refinement used after the linear seed.
type RefineMethod string

const (
	// RefineLevenbergMarquardt minimizes the squared reprojection residuals with a trust region
	// least squares iteration.
	RefineLevenbergMarquardt RefineMethod = "lm"
	// RefineBundleAdjustment minimizes the mean squared reprojection error with L-BFGS.
	RefineBundleAdjustment RefineMethod = "lbfgs"
)

// Valid reports whether the method is known. The empty method defaults to Levenberg-Marquardt.
func (m RefineMethod) Valid() bool {
	switch m {
	case "", RefineLevenbergMarquardt, RefineBundleAdjustment:
		return true
	}
	return false
}

// Options configures how correspondences are collected and refined.
type Options struct {
	TrackingColor     laser.Color
	GridWidth         int
	GridHeight        int
	SettleDelay       time.Duration
	DetectionAttempts int
	DetectionBackoff  time.Duration
	ExposureUs        float64
	RefineMethod      RefineMethod
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		TrackingColor:     laser.Color{R: 0.15},
		GridWidth:         5,
		GridHeight:        5,
		SettleDelay:       100 * time.Millisecond,
		DetectionAttempts: 3,
		DetectionBackoff:  200 * time.Millisecond,
		ExposureUs:        1.0,
		RefineMethod:      RefineLevenbergMarquardt,
	}
}

// Correspondence is a laser coordinate matched with the camera point the dot was observed at.
type Correspondence struct {
	LaserCoord  r2.Point  `json:"laser_coord"`
	CameraPoint r3.Vector `json:"camera_point"`
}

// Engine owns the correspondence set and the fitted transform.
type Engine struct {
	cam    camera.Camera
	lsr    laser.Laser
	opts   Options
	logger logging.Logger

	isCalibrated atomic.Bool

	mu           sync.RWMutex
	frame        camera.Frame
	laserCoords  []r2.Point
	cameraPoints []r3.Vector
	// params is the row-major 4x3 transform; nil until a fit has been made.
	params            []float64
	reprojectionError float64
	// generation advances on every reset so that in-flight solves can detect they are stale.
	generation uint64
}

// New returns an uncalibrated engine.
func New(cam camera.Camera, lsr laser.Laser, opts Options, logger logging.Logger) *Engine {
	if opts.DetectionAttempts < 1 {
		opts.DetectionAttempts = 1
	}
	if opts.RefineMethod == "" {
		opts.RefineMethod = RefineLevenbergMarquardt
	}
	return &Engine{
		cam:    cam,
		lsr:    lsr,
		opts:   opts,
		logger: logger,
	}
}

// Reset drops all correspondences and the transform, and marks the engine uncalibrated.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.laserCoords = nil
	e.cameraPoints = nil
	e.params = nil
	e.reprojectionError = 0
	e.generation++
	e.isCalibrated.Store(false)
}

// IsCalibrated reports whether Calibrate last succeeded.
func (e *Engine) IsCalibrated() bool {
	return e.isCalibrated.Load()
}

// FrameSize returns the camera frame size captured by the last calibration.
func (e *Engine) FrameSize() camera.Frame {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frame
}

// Correspondences returns a copy of the correspondence set in insertion order.
func (e *Engine) Correspondences() []Correspondence {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ret := make([]Correspondence, len(e.laserCoords))
	for i := range e.laserCoords {
		ret[i] = Correspondence{LaserCoord: e.laserCoords[i], CameraPoint: e.cameraPoints[i]}
	}
	return ret
}

// NumCorrespondences returns the size of the correspondence set.
func (e *Engine) NumCorrespondences() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.laserCoords)
}

// Transform returns a copy of the 4x3 camera to laser transform. It is all zeros before the
// first fit.
func (e *Engine) Transform() *mat.Dense {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.params == nil {
		return mat.NewDense(transformRows, transformCols, nil)
	}
	return mat.NewDense(transformRows, transformCols, append([]float64(nil), e.params...))
}

// ReprojectionError returns the mean distance between measured and predicted laser coordinates
// as of the last fit.
func (e *Engine) ReprojectionError() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reprojectionError
}

// CameraPointToLaserCoord maps a camera point to a laser coordinate as [p, 1]·T, divided by the
// third component.
func (e *Engine) CameraPointToLaserCoord(position r3.Vector) r2.Point {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.params == nil {
		return r2.Point{}
	}
	return project(e.params, position)
}

// Calibrate discards the current calibration, sweeps the laser over the configured grid and fits
// a new transform from the correspondences found.
func (e *Engine) Calibrate(ctx context.Context) error {
	e.Reset()

	frame, err := e.cam.GetFrame(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get camera frame")
	}
	e.mu.Lock()
	e.frame = frame
	e.mu.Unlock()

	grid := laser.GridPoints(e.opts.GridWidth, e.opts.GridHeight)
	e.logger.Info("Get image correspondences")
	if _, err := e.AddCalibrationPoints(ctx, grid, false); err != nil {
		return err
	}

	found := e.NumCorrespondences()
	e.logger.Infof("%d out of %d point correspondences found.", found, len(grid))
	if found < MinCorrespondences {
		e.logger.Warn("Calibration failed: insufficient point correspondences found.")
		return utils.NewCalibrationInsufficientError(found, MinCorrespondences)
	}

	if err := e.fitLinear(); err != nil {
		return err
	}
	if err := e.refine(ctx); err != nil {
		return err
	}
	e.isCalibrated.Store(true)
	return nil
}

// AddCalibrationPoints aims the laser at each coordinate and records a correspondence wherever
// the dot is detected. It returns how many correspondences were added. The laser is stopped and
// camera auto exposure restored before returning, even on failure.
func (e *Engine) AddCalibrationPoints(ctx context.Context, laserCoords []r2.Point, refine bool) (int, error) {
	added, err := e.collect(ctx, laserCoords)
	if err != nil {
		return added, err
	}
	if refine {
		if err := e.refine(ctx); err != nil {
			return added, err
		}
	}
	return added, nil
}

func (e *Engine) collect(ctx context.Context, laserCoords []r2.Point) (added int, err error) {
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		err = multierr.Combine(err, e.lsr.Stop(cleanupCtx), e.cam.AutoExposure(cleanupCtx))
	}()

	if err := e.cam.SetExposure(ctx, e.opts.ExposureUs); err != nil {
		return 0, err
	}
	if err := e.lsr.SetColor(ctx, laser.Off); err != nil {
		return 0, err
	}
	if err := e.lsr.Play(ctx); err != nil {
		return 0, err
	}

	for _, coord := range laserCoords {
		if err := e.lsr.SetPoints(ctx, []r2.Point{coord}); err != nil {
			return added, err
		}
		if err := e.lsr.SetColor(ctx, e.opts.TrackingColor); err != nil {
			return added, err
		}
		// galvo settle and frame capture
		if !goutils.SelectContextOrWait(ctx, e.opts.SettleDelay) {
			return added, ctx.Err()
		}
		detection, err := camera.DetectLaser(ctx, e.cam, e.opts.DetectionAttempts, e.opts.DetectionBackoff, e.logger)
		switch {
		case err == nil:
			e.appendCorrespondence(coord, detection.Position)
			added++
			e.logger.Debugw("found point correspondence",
				"laser_coord", coord, "pixel", detection.Pixel, "position", detection.Position)
		case errors.Is(err, utils.ErrDetectionTimeout):
			e.logger.Infow("failed to find point", "laser_coord", coord, "total", e.NumCorrespondences())
		default:
			return added, err
		}
		// blanking is faster than stopping between points
		if err := e.lsr.SetColor(ctx, laser.Off); err != nil {
			return added, err
		}
	}
	return added, nil
}

// AddPointCorrespondence records a single correspondence, optionally refitting immediately.
func (e *Engine) AddPointCorrespondence(ctx context.Context, laserCoord r2.Point, cameraPoint r3.Vector, refine bool) error {
	e.appendCorrespondence(laserCoord, cameraPoint)
	if refine {
		return e.refine(ctx)
	}
	return nil
}

func (e *Engine) appendCorrespondence(laserCoord r2.Point, cameraPoint r3.Vector) {
	e.mu.Lock()
	e.laserCoords = append(e.laserCoords, laserCoord)
	e.cameraPoints = append(e.cameraPoints, cameraPoint)
	total := len(e.laserCoords)
	e.mu.Unlock()
	e.logger.Debugw("added point correspondence", "total", total)
}

type snapshot struct {
	laserCoords  []r2.Point
	cameraPoints []r3.Vector
	params       []float64
	generation   uint64
}

func (e *Engine) snapshot() snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot{
		laserCoords:  append([]r2.Point(nil), e.laserCoords...),
		cameraPoints: append([]r3.Vector(nil), e.cameraPoints...),
		params:       append([]float64(nil), e.params...),
		generation:   e.generation,
	}
}

// merge installs params if no reset happened since the snapshot was taken.
func (e *Engine) merge(snap snapshot, params []float64, method string) bool {
	reprojectionError := meanReprojectionError(params, snap.cameraPoints, snap.laserCoords)

	e.mu.Lock()
	if e.generation != snap.generation {
		e.mu.Unlock()
		e.logger.Debugw("discarding stale transform", "method", method)
		return false
	}
	e.params = params
	e.reprojectionError = reprojectionError
	e.mu.Unlock()

	e.logger.Infow("Updated camera to laser transform", "method", method,
		"correspondences", len(snap.laserCoords), "reprojection_error", reprojectionError)
	return true
}

func (e *Engine) fitLinear() error {
	snap := e.snapshot()
	params, err := linearLeastSquares(snap.cameraPoints, snap.laserCoords)
	if err != nil {
		return errors.Wrap(err, "linear least squares failed")
	}
	e.merge(snap, params, "linear least squares")
	return nil
}

type solveResult struct {
	params []float64
	err    error
}

// refine runs the configured nonlinear refinement on a separate goroutine and waits for it or
// for ctx. Refinement is skipped while there are too few correspondences.
func (e *Engine) refine(ctx context.Context) error {
	snap := e.snapshot()
	if len(snap.laserCoords) < MinCorrespondences {
		e.logger.Debugw("skipping refinement", "correspondences", len(snap.laserCoords))
		return nil
	}
	if len(snap.params) == 0 {
		seed, err := linearLeastSquares(snap.cameraPoints, snap.laserCoords)
		if err != nil {
			return errors.Wrap(err, "linear least squares failed")
		}
		snap.params = seed
	}

	method := e.opts.RefineMethod
	resultCh := make(chan solveResult, 1)
	goutils.PanicCapturingGoWithCallback(func() {
		var res solveResult
		switch method {
		case RefineBundleAdjustment:
			res.params, res.err = bundleAdjustment(snap.params, snap.cameraPoints, snap.laserCoords)
		default:
			res.params = levenbergMarquardt(snap.params, snap.cameraPoints, snap.laserCoords)
		}
		resultCh <- res
	}, func(err interface{}) {
		resultCh <- solveResult{err: errors.Errorf("solver panicked: %v", err)}
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return errors.Wrapf(res.err, "%s refinement failed", method)
		}
		e.merge(snap, res.params, string(method))
		return nil
	}
}

func meanReprojectionError(params []float64, cameraPoints []r3.Vector, laserCoords []r2.Point) float64 {
	mean, err := stats.Mean(reprojectionDistances(params, cameraPoints, laserCoords))
	if err != nil {
		return 0
	}
	return mean
}
