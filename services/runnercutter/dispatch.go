package runnercutter

import (
	"context"

	"github.com/golang/geo/r2"

	"go.viam.com/runnercutter/tracker"
)

// request is a queued transition along with the arguments of the state being entered.
type request struct {
	trigger trigger

	normalizedPixels []r2.Point
	normalizedPixel  r2.Point
	target           tracker.Track
	laserCoord       r2.Point

	// stops is the stop count seen when the request was dequeued.
	stops uint64
}

// enqueueLocked appends a request and wakes the dispatch loop. Must hold s.mu.
func (s *cutter) enqueueLocked(req request) {
	s.queue = append(s.queue, req)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *cutter) dispatchLoop(ctx context.Context) {
	for {
		req, ok := s.next(ctx)
		if !ok {
			return
		}
		s.process(ctx, req)
	}
}

// next blocks until a request is queued or ctx is done.
func (s *cutter) next(ctx context.Context) (request, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			req := s.queue[0]
			s.queue = s.queue[1:]
			req.stops = s.stops
			dequeued := s.dequeued
			s.mu.Unlock()
			if dequeued != nil {
				dequeued(req)
			}
			return req, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return request{}, false
		case <-s.wake:
		}
	}
}

// process applies a request if its guard holds in the current state, then runs the state's
// handler. The request the handler returns is queued unless the handler was preempted.
func (s *cutter) process(ctx context.Context, req request) {
	s.mu.Lock()
	if req.trigger != triggerStop && req.stops != s.stops {
		s.logger.Debugw("dropping request dequeued before stop", "trigger", req.trigger)
		s.mu.Unlock()
		return
	}
	edge, ok := resolve(s.table, s.state, req.trigger)
	if !ok {
		s.logger.Debugw("ignoring transition not allowed from current state", "trigger", req.trigger, "state", s.state)
		s.mu.Unlock()
		return
	}
	if edge.requiresCalibration && !s.engine.IsCalibrated() {
		s.logger.Infow("ignoring transition that requires calibration", "trigger", req.trigger)
		s.mu.Unlock()
		return
	}
	s.state = edge.to
	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelHandler = cancel
	s.mu.Unlock()

	s.logger.Infof("Entered state <%s>", edge.to)
	if edge.to != StateIdle {
		s.publish()
	}
	next := s.enter(handlerCtx, edge.to, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelHandler = nil
	if next == nil {
		return
	}
	if handlerCtx.Err() != nil {
		s.logger.Debugw("dropping transition from preempted state", "trigger", next.trigger, "state", edge.to)
		return
	}
	s.enqueueLocked(*next)
}

func (s *cutter) enter(ctx context.Context, state State, req request) *request {
	switch state {
	case StateIdle:
		return s.onEnterIdle(ctx)
	case StateCalibration:
		return s.onEnterCalibration(ctx)
	case StateAddCalibrationPoints:
		return s.onEnterAddCalibrationPoints(ctx, req.normalizedPixels)
	case StateManualTargetAimLaser:
		return s.onEnterManualTargetAimLaser(ctx, req.normalizedPixel)
	case StateAcquireTarget:
		return s.onEnterAcquireTarget(ctx, req.trigger)
	case StateAimLaser:
		return s.onEnterAimLaser(ctx, req.target)
	case StateBurnTarget:
		return s.onEnterBurnTarget(ctx, req.target, req.laserCoord)
	}
	return nil
}
