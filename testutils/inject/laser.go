package inject

import (
	"context"
	"sync"

	"github.com/golang/geo/r2"

	"go.viam.com/runnercutter/components/laser"
)

// Laser is an injected laser. Calls without an injected function fall through to the embedded
// laser, or are recorded and succeed when there is none.
type Laser struct {
	laser.Laser
	SetColorFunc    func(ctx context.Context, color laser.Color) error
	SetPointsFunc   func(ctx context.Context, points []r2.Point) error
	PlayFunc        func(ctx context.Context) error
	StopFunc        func(ctx context.Context) error
	ClearPointsFunc func(ctx context.Context) error

	mu      sync.Mutex
	calls   []string
	points  []r2.Point
	color   laser.Color
	playing bool
}

func (l *Laser) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns the names of every method invoked so far, in order.
func (l *Laser) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Playing reports whether the last of Play/Stop seen was Play.
func (l *Laser) Playing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playing
}

// Points returns the last points set.
func (l *Laser) Points() []r2.Point {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]r2.Point(nil), l.points...)
}

// Color returns the last color set.
func (l *Laser) Color() laser.Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

// SetColor calls the injected SetColor or the real version.
func (l *Laser) SetColor(ctx context.Context, color laser.Color) error {
	l.record("set_color")
	l.mu.Lock()
	l.color = color
	l.mu.Unlock()
	if l.SetColorFunc == nil {
		if l.Laser == nil {
			return nil
		}
		return l.Laser.SetColor(ctx, color)
	}
	return l.SetColorFunc(ctx, color)
}

// SetPoints calls the injected SetPoints or the real version.
func (l *Laser) SetPoints(ctx context.Context, points []r2.Point) error {
	l.record("set_points")
	l.mu.Lock()
	l.points = append([]r2.Point(nil), points...)
	l.mu.Unlock()
	if l.SetPointsFunc == nil {
		if l.Laser == nil {
			return nil
		}
		return l.Laser.SetPoints(ctx, points)
	}
	return l.SetPointsFunc(ctx, points)
}

// Play calls the injected Play or the real version.
func (l *Laser) Play(ctx context.Context) error {
	l.record("play")
	l.mu.Lock()
	l.playing = true
	l.mu.Unlock()
	if l.PlayFunc == nil {
		if l.Laser == nil {
			return nil
		}
		return l.Laser.Play(ctx)
	}
	return l.PlayFunc(ctx)
}

// Stop calls the injected Stop or the real version.
func (l *Laser) Stop(ctx context.Context) error {
	l.record("stop")
	l.mu.Lock()
	l.playing = false
	l.mu.Unlock()
	if l.StopFunc == nil {
		if l.Laser == nil {
			return nil
		}
		return l.Laser.Stop(ctx)
	}
	return l.StopFunc(ctx)
}

// ClearPoints calls the injected ClearPoints or the real version.
func (l *Laser) ClearPoints(ctx context.Context) error {
	l.record("clear_points")
	l.mu.Lock()
	l.points = nil
	l.mu.Unlock()
	if l.ClearPointsFunc == nil {
		if l.Laser == nil {
			return nil
		}
		return l.Laser.ClearPoints(ctx)
	}
	return l.ClearPointsFunc(ctx)
}
