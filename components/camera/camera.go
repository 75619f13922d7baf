// Package camera defines the depth camera the runner cutter observes the scene through.
// The camera both detects runners and the laser dot, and resolves image pixels to
// 3D points in its optical frame.
package camera

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// SubtypeName is a constant that identifies the camera collaborator.
const SubtypeName = "camera"

var (
	// InvalidPixel is reported for a detection that is not visible in the current frame.
	InvalidPixel = image.Point{X: -1, Y: -1}
	// InvalidPosition is reported for a pixel that could not be resolved to a 3D point.
	InvalidPosition = r3.Vector{X: -1, Y: -1, Z: -1}
)

// Frame describes the color frame the camera is currently producing.
type Frame struct {
	Width  int
	Height int
}

// Size returns the frame dimensions as a point.
func (f Frame) Size() image.Point {
	return image.Point{X: f.Width, Y: f.Height}
}

// RunnerDetection is a single runner found by the detector. TrackID is assigned by the detector
// and is stable across frames.
type RunnerDetection struct {
	TrackID  int
	Pixel    r2.Point
	Position r3.Vector
}

// LaserDetection is a laser dot found in the current frame.
type LaserDetection struct {
	Pixel    r2.Point
	Position r3.Vector
}

// A Camera is the request/reply contract of the depth camera.
type Camera interface {
	// GetFrame returns the dimensions of the current color frame.
	GetFrame(ctx context.Context) (Frame, error)
	// GetRunnerDetection runs the runner detector on the latest frame.
	GetRunnerDetection(ctx context.Context) ([]RunnerDetection, error)
	// GetLaserDetection runs the laser detector on the latest frame. Zero or one result is
	// expected.
	GetLaserDetection(ctx context.Context) ([]LaserDetection, error)
	// GetPositions resolves normalized pixel coordinates to 3D positions. InvalidPosition is
	// returned in place of any pixel that cannot be resolved.
	GetPositions(ctx context.Context, normalizedPixels []r2.Point) ([]r3.Vector, error)
	// SetExposure fixes the exposure time.
	SetExposure(ctx context.Context, exposureUs float64) error
	// AutoExposure restores automatic exposure.
	AutoExposure(ctx context.Context) error
}

// IsValidPosition reports whether the position is a resolved point rather than the sentinel.
// The sentinel is recognized by all of its components being negative.
func IsValidPosition(p r3.Vector) bool {
	return !(p.X < 0 && p.Y < 0 && p.Z < 0)
}

// NormalizePixel maps a pixel into [0,1]x[0,1] frame coordinates. If the frame size is unknown,
// (-1, -1) is returned.
func NormalizePixel(pixel image.Point, frame Frame) r2.Point {
	ret := r2.Point{X: -1, Y: -1}
	if frame.Width > 0 {
		ret.X = float64(pixel.X) / float64(frame.Width)
	}
	if frame.Height > 0 {
		ret.Y = float64(pixel.Y) / float64(frame.Height)
	}
	return ret
}

// DenormalizePixel maps a normalized frame coordinate back to pixel units.
func DenormalizePixel(normalized r2.Point, frame Frame) r2.Point {
	return r2.Point{X: normalized.X * float64(frame.Width), Y: normalized.Y * float64(frame.Height)}
}
