// Package sim implements a simulated runner cutter scene: a depth camera and a laser projector
// that observe the same non-planar ground surface. The laser steers through a known projective
// model, so the camera to laser transform that calibration should recover is available as
// ground truth. The scene lets the service run with no hardware attached.
package sim

import (
	"math"
	"math/rand"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/runnercutter/components/camera"
	"go.viam.com/runnercutter/components/laser"
	"go.viam.com/runnercutter/logging"
)

const (
	initialWidth  = 1280
	initialHeight = 720

	surfaceDepth     = 0.5
	surfaceAmplitude = 0.03
	surfaceFrequency = 8.0

	// projector gains and offset from the camera origin, in meters
	projectorGainX   = 0.8
	projectorGainY   = 1.4
	projectorOffsetX = 0.02
	projectorOffsetY = -0.01

	surfaceIterations = 50
)

var defaultIntrinsics = Intrinsics{
	Width:  initialWidth,
	Height: initialHeight,
	Fx:     900,
	Fy:     900,
	Ppx:    640,
	Ppy:    360,
}

// Runner is a simulated runner at a normalized pixel of the camera frame.
type Runner struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Config are the attributes of the simulated scene.
type Config struct {
	FrameWidth        int      `json:"frame_width,omitempty"`
	FrameHeight       int      `json:"frame_height,omitempty"`
	Runners           []Runner `json:"runners,omitempty"`
	DetectionMissRate float64  `json:"detection_miss_rate,omitempty"`
	Seed              int64    `json:"seed,omitempty"`
}

// Validate checks that the config attributes are valid for a simulated scene.
func (conf *Config) Validate(path string) error {
	if conf.FrameWidth < 0 || conf.FrameHeight < 0 {
		return errors.Errorf("%s: frame size cannot be negative, got (%d, %d)", path, conf.FrameWidth, conf.FrameHeight)
	}
	if conf.FrameWidth%2 != 0 {
		return errors.Errorf("%s: odd-number resolutions cannot be rendered, cannot use a width of %d", path, conf.FrameWidth)
	}
	if conf.FrameHeight%2 != 0 {
		return errors.Errorf("%s: odd-number resolutions cannot be rendered, cannot use a height of %d", path, conf.FrameHeight)
	}
	if conf.DetectionMissRate < 0 || conf.DetectionMissRate >= 1 {
		return errors.Errorf("%s: detection_miss_rate must be in [0,1), got %v", path, conf.DetectionMissRate)
	}
	seen := map[int]bool{}
	for i, r := range conf.Runners {
		if seen[r.ID] {
			return errors.Errorf("%s.runners.%d: duplicate runner id %d", path, i, r.ID)
		}
		seen[r.ID] = true
		if r.X < 0 || r.X > 1 || r.Y < 0 || r.Y > 1 {
			return errors.Errorf("%s.runners.%d: normalized pixel (%v, %v) is outside of the frame", path, i, r.X, r.Y)
		}
	}
	return nil
}

// Scene is the shared world state observed by the simulated camera and driven by the simulated
// laser. It is safe for concurrent use.
type Scene struct {
	intrinsics Intrinsics
	missRate   float64
	logger     logging.Logger

	mu           sync.Mutex
	rand         *rand.Rand
	runners      []Runner
	laserColor   laser.Color
	laserPoints  []r2.Point
	laserPlaying bool
	exposureUs   float64
	autoExposure bool
}

// NewScene returns a scene built from conf.
func NewScene(conf Config, logger logging.Logger) (*Scene, error) {
	if err := conf.Validate("sim"); err != nil {
		return nil, err
	}
	intrinsics := defaultIntrinsics
	if conf.FrameWidth > 0 && conf.FrameHeight > 0 {
		intrinsics = intrinsics.scaled(conf.FrameWidth, conf.FrameHeight)
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return &Scene{
		intrinsics:   intrinsics,
		missRate:     conf.DetectionMissRate,
		logger:       logger,
		rand:         rand.New(rand.NewSource(conf.Seed)), //nolint:gosec
		runners:      append([]Runner(nil), conf.Runners...),
		autoExposure: true,
	}, nil
}

// Intrinsics returns the simulated camera's intrinsics.
func (s *Scene) Intrinsics() Intrinsics {
	return s.intrinsics
}

// Camera returns the simulated depth camera.
func (s *Scene) Camera() camera.Camera {
	return &simCamera{scene: s}
}

// Laser returns the simulated laser projector.
func (s *Scene) Laser() laser.Laser {
	return &simLaser{scene: s}
}

// SetRunners replaces the runners in the scene.
func (s *Scene) SetRunners(runners []Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners = append([]Runner(nil), runners...)
}

// Playing reports whether the laser output is enabled.
func (s *Scene) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laserPlaying
}

// LaserColor returns the last color the laser was set to.
func (s *Scene) LaserColor() laser.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laserColor
}

// Exposure returns the fixed exposure and whether auto exposure is on.
func (s *Scene) Exposure() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposureUs, s.autoExposure
}

// CameraToLaser returns the ground truth transform that maps a homogeneous camera point
// [x, y, z, 1] to a homogeneous laser coordinate.
func CameraToLaser() *mat.Dense {
	return mat.NewDense(4, 3, []float64{
		projectorGainX, 0, 0,
		0, -projectorGainY, 0,
		0.5, 0.5, 1,
		-projectorGainX * projectorOffsetX, projectorGainY * projectorOffsetY, 0,
	})
}

// LaserCoordOf returns the laser coordinate that lands on a camera point.
func LaserCoordOf(p r3.Vector) r2.Point {
	return r2.Point{
		X: 0.5 + projectorGainX*(p.X-projectorOffsetX)/p.Z,
		Y: 0.5 - projectorGainY*(p.Y-projectorOffsetY)/p.Z,
	}
}

// surfaceZ is the ground depth below a point.
func surfaceZ(x, y float64) float64 {
	return surfaceDepth + surfaceAmplitude*math.Sin(surfaceFrequency*x)*math.Cos(surfaceFrequency*y)
}

// intersect finds where origin + t*dir meets the surface, with dir.Z == 1.
func intersect(origin, dir r3.Vector) r3.Vector {
	t := surfaceDepth
	for i := 0; i < surfaceIterations; i++ {
		t = surfaceZ(origin.X+t*dir.X, origin.Y+t*dir.Y)
	}
	return origin.Add(dir.Mul(t))
}

// pointAtPixel returns the surface point seen through a pixel.
func (s *Scene) pointAtPixel(pixel r2.Point) r3.Vector {
	return intersect(r3.Vector{}, s.intrinsics.Ray(pixel))
}

// dotAt returns the surface point lit by a laser coordinate.
func dotAt(coord r2.Point) r3.Vector {
	origin := r3.Vector{X: projectorOffsetX, Y: projectorOffsetY}
	dir := r3.Vector{
		X: (coord.X - 0.5) / projectorGainX,
		Y: -(coord.Y - 0.5) / projectorGainY,
		Z: 1,
	}
	return intersect(origin, dir)
}

// missed reports whether a detection should be randomly dropped. Must hold s.mu.
func (s *Scene) missed() bool {
	return s.missRate > 0 && s.rand.Float64() < s.missRate
}

func (s *Scene) frame() camera.Frame {
	return camera.Frame{Width: s.intrinsics.Width, Height: s.intrinsics.Height}
}

func (s *Scene) runnerDetections() []camera.RunnerDetection {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := s.frame()
	detections := make([]camera.RunnerDetection, 0, len(s.runners))
	for _, r := range s.runners {
		if s.missed() {
			continue
		}
		pixel := camera.DenormalizePixel(r2.Point{X: r.X, Y: r.Y}, frame)
		detections = append(detections, camera.RunnerDetection{
			TrackID:  r.ID,
			Pixel:    pixel,
			Position: s.pointAtPixel(pixel),
		})
	}
	return detections
}

func (s *Scene) laserDetections() []camera.LaserDetection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.laserPlaying || s.laserColor.IsOff() || s.missed() {
		return nil
	}
	var detections []camera.LaserDetection
	for _, coord := range s.laserPoints {
		if !laser.InBounds(coord) {
			continue
		}
		dot := dotAt(coord)
		pixel := s.intrinsics.PointToPixel(dot)
		if !s.intrinsics.InFrame(pixel) {
			continue
		}
		detections = append(detections, camera.LaserDetection{Pixel: pixel, Position: dot})
	}
	return detections
}

func (s *Scene) positions(normalizedPixels []r2.Point) []r3.Vector {
	frame := s.frame()
	positions := make([]r3.Vector, len(normalizedPixels))
	for i, normalized := range normalizedPixels {
		if normalized.X < 0 || normalized.X > 1 || normalized.Y < 0 || normalized.Y > 1 {
			positions[i] = camera.InvalidPosition
			continue
		}
		positions[i] = s.pointAtPixel(camera.DenormalizePixel(normalized, frame))
	}
	return positions
}
