package calibration

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/runnercutter/sim"
)

// syntheticCorrespondences returns non-coplanar camera points and their ground truth laser coords.
func syntheticCorrespondences(n int) ([]r3.Vector, []r2.Point) {
	cameraPoints := make([]r3.Vector, 0, n)
	laserCoords := make([]r2.Point, 0, n)
	for i := 0; i < n; i++ {
		col, row := i%5, i/5
		p := r3.Vector{
			X: -0.2 + 0.4*float64(col)/4,
			Y: -0.15 + 0.3*float64((row+2*col)%5)/4,
			Z: 0.45 + 0.02*float64((3*i+1)%5),
		}
		cameraPoints = append(cameraPoints, p)
		laserCoords = append(laserCoords, sim.LaserCoordOf(p))
	}
	return cameraPoints, laserCoords
}

func TestLinearLeastSquares(t *testing.T) {
	_, err := linearLeastSquares(nil, nil)
	test.That(t, err, test.ShouldNotBeNil)

	// an affine mapping is recovered exactly by the linear seed
	cameraPoints := []r3.Vector{
		{X: 0.1, Y: 0.2, Z: 0.5},
		{X: -0.1, Y: 0.1, Z: 0.52},
		{X: 0.05, Y: -0.2, Z: 0.47},
		{X: 0.2, Y: 0.15, Z: 0.55},
		{X: 0, Y: 0, Z: 0.5},
	}
	laserCoords := make([]r2.Point, len(cameraPoints))
	for i, p := range cameraPoints {
		laserCoords[i] = r2.Point{X: 0.5 + 2*p.X - p.Z, Y: 0.3 - 1.5*p.Y + 0.5*p.Z}
	}
	params, err := linearLeastSquares(cameraPoints, laserCoords)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params, test.ShouldHaveLength, 12)
	for i, p := range cameraPoints {
		predicted := project(params, p)
		test.That(t, predicted.X, test.ShouldAlmostEqual, laserCoords[i].X, 1e-9)
		test.That(t, predicted.Y, test.ShouldAlmostEqual, laserCoords[i].Y, 1e-9)
	}
}

func TestLevenbergMarquardtRoundTrip(t *testing.T) {
	for _, n := range []int{4, 9, 25} {
		cameraPoints, laserCoords := syntheticCorrespondences(n)
		seed, err := linearLeastSquares(cameraPoints, laserCoords)
		test.That(t, err, test.ShouldBeNil)

		params := levenbergMarquardt(seed, cameraPoints, laserCoords)
		test.That(t, meanReprojectionError(params, cameraPoints, laserCoords), test.ShouldBeLessThan, 1e-6)
		test.That(t, sumSquaredError(params, cameraPoints, laserCoords),
			test.ShouldBeLessThanOrEqualTo, sumSquaredError(seed, cameraPoints, laserCoords))
		for i, p := range cameraPoints {
			predicted := project(params, p)
			test.That(t, predicted.X, test.ShouldAlmostEqual, laserCoords[i].X, 1e-5)
			test.That(t, predicted.Y, test.ShouldAlmostEqual, laserCoords[i].Y, 1e-5)
		}
	}
}

func TestBundleAdjustment(t *testing.T) {
	cameraPoints, laserCoords := syntheticCorrespondences(25)
	seed, err := linearLeastSquares(cameraPoints, laserCoords)
	test.That(t, err, test.ShouldBeNil)

	params, err := bundleAdjustment(seed, cameraPoints, laserCoords)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params, test.ShouldHaveLength, 12)
	test.That(t, sumSquaredError(params, cameraPoints, laserCoords),
		test.ShouldBeLessThanOrEqualTo, sumSquaredError(seed, cameraPoints, laserCoords))
}

func TestProjectGuardsDenominator(t *testing.T) {
	params := make([]float64, 12)
	coord := project(params, r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, coord, test.ShouldResemble, r2.Point{})

	params = flatten(sim.CameraToLaser())
	p := r3.Vector{X: 0.05, Y: -0.02, Z: 0.5}
	coord = project(params, p)
	expected := sim.LaserCoordOf(p)
	test.That(t, coord.X, test.ShouldAlmostEqual, expected.X)
	test.That(t, coord.Y, test.ShouldAlmostEqual, expected.Y)
}
