package laser

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestInBounds(t *testing.T) {
	test.That(t, InBounds(r2.Point{X: 0, Y: 0}), test.ShouldBeTrue)
	test.That(t, InBounds(r2.Point{X: 1, Y: 1}), test.ShouldBeTrue)
	test.That(t, InBounds(r2.Point{X: 0.5, Y: 0.25}), test.ShouldBeTrue)
	test.That(t, InBounds(r2.Point{X: -0.001, Y: 0.5}), test.ShouldBeFalse)
	test.That(t, InBounds(r2.Point{X: 0.5, Y: 1.001}), test.ShouldBeFalse)
}

func TestGridPoints(t *testing.T) {
	points := GridPoints(5, 5)
	test.That(t, points, test.ShouldHaveLength, 25)
	test.That(t, points[0], test.ShouldResemble, r2.Point{X: 0, Y: 0})
	test.That(t, points[1], test.ShouldResemble, r2.Point{X: 0, Y: 0.25})
	test.That(t, points[5], test.ShouldResemble, r2.Point{X: 0.25, Y: 0})
	test.That(t, points[24], test.ShouldResemble, r2.Point{X: 1, Y: 1})
	for _, p := range points {
		test.That(t, InBounds(p), test.ShouldBeTrue)
	}

	test.That(t, GridPoints(3, 2), test.ShouldHaveLength, 6)
	test.That(t, GridPoints(1, 5), test.ShouldBeEmpty)
}

func TestColor(t *testing.T) {
	test.That(t, Off.IsOff(), test.ShouldBeTrue)
	test.That(t, Color{R: 0.15}.IsOff(), test.ShouldBeFalse)
	test.That(t, Color{B: 1}.Valid(), test.ShouldBeTrue)
	test.That(t, Color{B: 1.5}.Valid(), test.ShouldBeFalse)
	test.That(t, Color{I: -0.1}.Valid(), test.ShouldBeFalse)
}
