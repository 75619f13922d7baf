// Package laser defines the steerable laser projector used to aim at and burn runners.
// Points are expressed in the normalized [0,1]x[0,1] command space of the projector.
package laser

import (
	"context"

	"github.com/golang/geo/r2"
)

// SubtypeName is a constant that identifies the laser collaborator.
const SubtypeName = "laser"

// Color is a laser color. All channels including intensity are in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	I float64 `json:"i"`
}

// Off is the color used to blank the laser without stopping playback.
var Off = Color{}

// IsOff reports whether the color emits nothing.
func (c Color) IsOff() bool {
	return c.R <= 0 && c.G <= 0 && c.B <= 0
}

// Valid reports whether every channel lies in [0,1].
func (c Color) Valid() bool {
	for _, v := range []float64{c.R, c.G, c.B, c.I} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// A Laser is the request/reply contract of the laser projector.
type Laser interface {
	SetColor(ctx context.Context, color Color) error
	SetPoints(ctx context.Context, points []r2.Point) error
	// Play enables output.
	Play(ctx context.Context) error
	// Stop disables output.
	Stop(ctx context.Context) error
	ClearPoints(ctx context.Context) error
}

// InBounds reports whether the coordinate lies within the renderable area.
func InBounds(coord r2.Point) bool {
	return coord.X >= 0 && coord.X <= 1 && coord.Y >= 0 && coord.Y <= 1
}

// GridPoints returns width*height coordinates evenly spanning [0,1]x[0,1], in column-major order.
func GridPoints(width, height int) []r2.Point {
	if width < 2 || height < 2 {
		return nil
	}
	xStep := 1.0 / float64(width-1)
	yStep := 1.0 / float64(height-1)
	points := make([]r2.Point, 0, width*height)
	for i := 0; i < width; i++ {
		for j := 0; j < height; j++ {
			points = append(points, r2.Point{X: float64(i) * xStep, Y: float64(j) * yStep})
		}
	}
	return points
}
