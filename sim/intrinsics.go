package sim

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrNoIntrinsics is when the simulated camera has unusable intrinsics parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not usable.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// Intrinsics holds the parameters necessary to do a perspective projection of the scene
// onto the simulated color frame.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for Intrinsics have valid inputs.
func (params *Intrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// scaled returns intrinsics for a frame of another resolution with the same field of view.
func (params Intrinsics) scaled(width, height int) Intrinsics {
	widthRatio := float64(width) / float64(params.Width)
	heightRatio := float64(height) / float64(params.Height)
	return Intrinsics{
		Width:  width,
		Height: height,
		Fx:     params.Fx * widthRatio,
		Fy:     params.Fy * heightRatio,
		Ppx:    params.Ppx * widthRatio,
		Ppy:    params.Ppy * heightRatio,
	}
}

// Ray returns the direction through a pixel, scaled so that its Z component is 1.
func (params Intrinsics) Ray(pixel r2.Point) r3.Vector {
	return r3.Vector{
		X: (pixel.X - params.Ppx) / params.Fx,
		Y: (pixel.Y - params.Ppy) / params.Fy,
		Z: 1,
	}
}

// PointToPixel projects a 3D point to a pixel in the image plane. Points at zero depth
// project to (-1, -1) so that bounds checks filter them out.
func (params Intrinsics) PointToPixel(p r3.Vector) r2.Point {
	if p.Z != 0 {
		return r2.Point{
			X: (p.X/p.Z)*params.Fx + params.Ppx,
			Y: (p.Y/p.Z)*params.Fy + params.Ppy,
		}
	}
	return r2.Point{X: -1, Y: -1}
}

// InFrame reports whether a pixel lies within the frame.
func (params Intrinsics) InFrame(pixel r2.Point) bool {
	return pixel.X >= 0 && pixel.X < float64(params.Width) && pixel.Y >= 0 && pixel.Y < float64(params.Height)
}
