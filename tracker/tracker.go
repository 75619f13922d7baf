// Package tracker keeps the registry of candidate runners and their lifecycle state across
// detection cycles. Ids are assigned by the external detector.
package tracker

import (
	"image"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"

	"go.viam.com/runnercutter/components/camera"
	"go.viam.com/runnercutter/logging"
)

// Tracker is an in-memory registry of tracks keyed by detector id, iterated in insertion order.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	tracks map[int]*Track
	order  []int

	clock  clock.Clock
	logger logging.Logger
}

// New returns an empty tracker. A nil clock uses the wall clock.
func New(clk clock.Clock, logger logging.Logger) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		tracks: map[int]*Track{},
		clock:  clk,
		logger: logger,
	}
}

// Upsert creates a Pending track if id is unseen, otherwise refreshes its pixel and position.
// A Failed track that is seen again goes back to Pending.
func (tr *Tracker) Upsert(id int, pixel image.Point, position r3.Vector) Track {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	now := tr.clock.Now()
	track, ok := tr.tracks[id]
	if !ok {
		track = &Track{ID: id, State: Pending, FirstSeen: now}
		tr.tracks[id] = track
		tr.order = append(tr.order, id)
		tr.logger.Debugw("new track", "id", id)
	}
	track.Pixel = pixel
	track.Position = position
	track.LastSeen = now
	track.MissedCycles = 0
	if track.State == Failed {
		track.State = Pending
		tr.logger.Debugw("failed track detected again, marking pending", "id", id)
	}
	return *track
}

// MarkMissing records that the track was not seen in the latest detection cycle. Its pixel and
// position are reset to the sentinels and a Pending track becomes Failed. Active tracks keep
// their state so an in-progress target is retried across frames.
func (tr *Tracker) MarkMissing(id int) (Track, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	track, ok := tr.tracks[id]
	if !ok {
		return Track{}, false
	}
	track.Pixel = camera.InvalidPixel
	track.Position = camera.InvalidPosition
	track.MissedCycles++
	if track.State == Pending {
		track.State = Failed
	}
	return *track, true
}

// Get returns the track with the given id.
func (tr *Tracker) Get(id int) (Track, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	track, ok := tr.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *track, true
}

// ListByState returns the tracks in the given state in insertion order.
func (tr *Tracker) ListByState(state State) []Track {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	var ret []Track
	for _, id := range tr.order {
		if track := tr.tracks[id]; track.State == state {
			ret = append(ret, *track)
		}
	}
	return ret
}

// All returns every track in insertion order.
func (tr *Tracker) All() []Track {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	ret := make([]Track, 0, len(tr.order))
	for _, id := range tr.order {
		ret = append(ret, *tr.tracks[id])
	}
	return ret
}

// ClaimNextPending moves the earliest inserted Pending track to Active and returns it. Selection
// and the state change happen under one lock, so a track can only be claimed once.
func (tr *Tracker) ClaimNextPending() (Track, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for _, id := range tr.order {
		if track := tr.tracks[id]; track.State == Pending {
			track.State = Active
			return *track, true
		}
	}
	return Track{}, false
}

// Transition moves a track to a new state. It reports false without changing anything if the
// track does not exist or the edge is not allowed.
func (tr *Tracker) Transition(id int, state State) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	track, ok := tr.tracks[id]
	if !ok {
		return false
	}
	if !CanTransition(track.State, state) {
		tr.logger.Debugw("ignoring disallowed track transition", "id", id, "from", track.State, "to", state)
		return false
	}
	track.State = state
	return true
}

// Len returns the number of tracks.
func (tr *Tracker) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.order)
}

// Clear drops all tracks.
func (tr *Tracker) Clear() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.tracks = map[int]*Track{}
	tr.order = nil
}
