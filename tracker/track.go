package tracker

import (
	"fmt"
	"image"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/runnercutter/components/camera"
)

// State is the lifecycle state of a track.
type State int

const (
	// Pending tracks are waiting to be targeted.
	Pending State = iota
	// Active is the track currently being aimed at or burned.
	Active
	// Completed tracks have been burned.
	Completed
	// Failed tracks could not be targeted. They return to Pending once detected again.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Active:
		return "ACTIVE"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var allowedTransitions = map[State][]State{
	Pending: {Active, Failed},
	Active:  {Completed, Failed},
	Failed:  {Pending},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to State) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Track is a single candidate runner. Pixel and Position hold the sentinels
// camera.InvalidPixel and camera.InvalidPosition while it is not visible.
type Track struct {
	ID       int
	Pixel    image.Point
	Position r3.Vector
	State    State

	FirstSeen time.Time
	LastSeen  time.Time
	// MissedCycles counts consecutive detection cycles the track was not seen in.
	MissedCycles int
}

// Visible reports whether the track was seen in the latest detection cycle.
func (t Track) Visible() bool {
	return t.Pixel != camera.InvalidPixel && camera.IsValidPosition(t.Position)
}
