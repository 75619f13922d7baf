// Package runnercutter implements the targeting state machine of the runner cutter. It calibrates
// the camera to laser transform, acquires runners from the detector, visually servos the laser
// onto each target and burns it.
//
// Control requests are queued and handled one at a time by a single dispatch goroutine. Every state
// handler runs with its own context, which Stop cancels so that an in-progress aim or burn unwinds
// and forces the laser off before the machine returns to idle.
package runnercutter

import (
	"context"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/runnercutter/calibration"
	"go.viam.com/runnercutter/components/camera"
	"go.viam.com/runnercutter/components/laser"
	"go.viam.com/runnercutter/logging"
	"go.viam.com/runnercutter/tracker"
	"go.viam.com/runnercutter/utils"
)

// A Service is the control surface of the runner cutter.
type Service interface {
	// Calibrate sweeps the calibration grid and fits a new camera to laser transform.
	Calibrate(ctx context.Context) error
	// AddCalibrationPoints collects more correspondences by aiming at the given normalized
	// camera pixels, then refits.
	AddCalibrationPoints(ctx context.Context, normalizedPixels []r2.Point) error
	// ManualTargetAimLaser runs the aim routine once at a normalized camera pixel.
	ManualTargetAimLaser(ctx context.Context, normalizedPixel r2.Point) error
	// StartRunnerCutter starts acquiring, aiming at and burning runners until stopped.
	StartRunnerCutter(ctx context.Context) error
	// Stop preempts whatever is running and returns to idle. It is always accepted.
	Stop(ctx context.Context) error
	// GetState returns a snapshot of the current status.
	GetState(ctx context.Context) (Status, error)
	// Subscribe returns a channel that receives a status on every state entry. Only the latest
	// status is kept for slow readers. The returned function unsubscribes and closes the channel.
	Subscribe() (<-chan Status, func())
	Close(ctx context.Context) error
}

// TrackStatus is the externally visible state of a track.
type TrackStatus struct {
	ID              int           `json:"id"`
	NormalizedPixel r2.Point      `json:"normalized_pixel"`
	State           tracker.State `json:"state"`
}

// Status is a snapshot of the state machine.
type Status struct {
	Calibrated        bool          `json:"calibrated"`
	State             State         `json:"state"`
	Tracks            []TrackStatus `json:"tracks"`
	SessionID         string        `json:"session_id,omitempty"`
	Correspondences   int           `json:"correspondences"`
	ReprojectionError float64       `json:"reprojection_error"`
}

type cutter struct {
	cam     camera.Camera
	lsr     laser.Laser
	conf    Config
	engine  *calibration.Engine
	tracker *tracker.Tracker
	table   map[trigger][]transition
	logger  logging.Logger

	workers utils.StoppableWorkers
	// wake is signaled whenever a request is queued.
	wake chan struct{}

	mu            sync.Mutex
	state         State
	queue         []request
	cancelHandler context.CancelFunc
	detected      []int
	sessionID     string
	// stops counts Stop calls. A request dequeued before the latest Stop is dropped.
	stops uint64
	// dequeued, when set, is called by the dispatch loop after taking a request off the queue.
	dequeued func(request)

	subMu       sync.Mutex
	subscribers map[int]chan Status
	nextSubID   int
}

// New returns a runner cutter in the idle state that drives the given camera and laser. Every call
// to either is bounded by the configured RPC timeout.
func New(cam camera.Camera, lsr laser.Laser, conf *Config, logger logging.Logger) (Service, error) {
	if cam == nil {
		return nil, errors.New("a camera is required")
	}
	if lsr == nil {
		return nil, errors.New("a laser is required")
	}
	if conf == nil {
		conf = &Config{}
	}
	if err := conf.Validate("runner_cutter"); err != nil {
		return nil, err
	}

	cam = camera.WithTimeout(cam, conf.Timing.RPCTimeout)
	lsr = laser.WithTimeout(lsr, conf.Timing.RPCTimeout)
	s := &cutter{
		cam:         cam,
		lsr:         lsr,
		conf:        *conf,
		engine:      calibration.New(cam, lsr, conf.calibrationOptions(), logger.Sublogger("calibration")),
		tracker:     tracker.New(nil, logger.Sublogger("tracker")),
		table:       transitionTable(*conf.EnableAiming),
		logger:      logger,
		wake:        make(chan struct{}, 1),
		state:       StateIdle,
		subscribers: map[int]chan Status{},
	}
	s.workers = utils.NewStoppableWorkers(s.dispatchLoop)
	return s, nil
}

// submit queues a request if the machine is idle and has nothing else pending.
func (s *cutter) submit(op string, req request, requiresCalibration bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle || len(s.queue) > 0 {
		return utils.NewRejectedByStateError(op, string(s.state))
	}
	if requiresCalibration && !s.engine.IsCalibrated() {
		return utils.NewNotCalibratedError(op)
	}
	s.enqueueLocked(req)
	return nil
}

func (s *cutter) Calibrate(ctx context.Context) error {
	return s.submit("calibrate", request{trigger: triggerRunCalibration}, false)
}

func (s *cutter) AddCalibrationPoints(ctx context.Context, normalizedPixels []r2.Point) error {
	return s.submit("add_calibration_points", request{
		trigger:          triggerRunAddCalibrationPoints,
		normalizedPixels: append([]r2.Point(nil), normalizedPixels...),
	}, true)
}

func (s *cutter) ManualTargetAimLaser(ctx context.Context, normalizedPixel r2.Point) error {
	return s.submit("manual_target_aim_laser", request{
		trigger:         triggerRunManualTargetAimLaser,
		normalizedPixel: normalizedPixel,
	}, true)
}

func (s *cutter) StartRunnerCutter(ctx context.Context) error {
	return s.submit("start_runner_cutter", request{trigger: triggerRunRunnerCutter}, true)
}

// Stop drops every pending request, queues stop ahead of anything else and cancels the handler
// currently running.
func (s *cutter) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.stops++
	s.enqueueLocked(request{trigger: triggerStop})
	if s.cancelHandler != nil {
		s.cancelHandler()
	}
	return nil
}

func (s *cutter) GetState(ctx context.Context) (Status, error) {
	return s.status(), nil
}

func (s *cutter) status() Status {
	s.mu.Lock()
	st := Status{
		Calibrated: s.engine.IsCalibrated(),
		State:      s.state,
		SessionID:  s.sessionID,
	}
	detected := append([]int(nil), s.detected...)
	s.mu.Unlock()

	frame := s.engine.FrameSize()
	st.Correspondences = s.engine.NumCorrespondences()
	st.ReprojectionError = s.engine.ReprojectionError()
	st.Tracks = make([]TrackStatus, 0, len(detected))
	for _, id := range detected {
		track, ok := s.tracker.Get(id)
		if !ok {
			continue
		}
		st.Tracks = append(st.Tracks, TrackStatus{
			ID:              track.ID,
			NormalizedPixel: camera.NormalizePixel(track.Pixel, frame),
			State:           track.State,
		})
	}
	return st
}

func (s *cutter) Subscribe() (<-chan Status, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Status, 1)
	s.subscribers[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
}

// publish sends the current status to every subscriber, replacing any status not yet read.
func (s *cutter) publish() {
	st := s.status()
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// Close stops the dispatch loop, turns the laser off and closes every subscription.
func (s *cutter) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.cancelHandler != nil {
		s.cancelHandler()
	}
	s.mu.Unlock()
	s.workers.Stop()

	err := multierr.Combine(s.lsr.Stop(ctx), s.lsr.ClearPoints(ctx))

	s.subMu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.subMu.Unlock()
	return err
}
