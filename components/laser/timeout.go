package laser

import (
	"context"
	"time"

	"github.com/golang/geo/r2"

	"go.viam.com/runnercutter/utils"
)

// WithTimeout wraps a laser so that every call is bounded by timeout. Failed calls are reported
// as utils.ErrServiceUnavailable unless the caller's own context was cancelled.
func WithTimeout(l Laser, timeout time.Duration) Laser {
	return &timeoutLaser{laser: l, timeout: timeout}
}

type timeoutLaser struct {
	laser   Laser
	timeout time.Duration
}

func (tl *timeoutLaser) call(ctx context.Context, method string, f func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, tl.timeout)
	defer cancel()
	err := f(callCtx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	return utils.NewServiceUnavailableError(SubtypeName, method, err)
}

func (tl *timeoutLaser) SetColor(ctx context.Context, color Color) error {
	return tl.call(ctx, "set_color", func(ctx context.Context) error {
		return tl.laser.SetColor(ctx, color)
	})
}

func (tl *timeoutLaser) SetPoints(ctx context.Context, points []r2.Point) error {
	return tl.call(ctx, "set_points", func(ctx context.Context) error {
		return tl.laser.SetPoints(ctx, points)
	})
}

func (tl *timeoutLaser) Play(ctx context.Context) error {
	return tl.call(ctx, "play", tl.laser.Play)
}

func (tl *timeoutLaser) Stop(ctx context.Context) error {
	return tl.call(ctx, "stop", tl.laser.Stop)
}

func (tl *timeoutLaser) ClearPoints(ctx context.Context) error {
	return tl.call(ctx, "clear_points", tl.laser.ClearPoints)
}
