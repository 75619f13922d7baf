package laser_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/runnercutter/components/laser"
	"go.viam.com/runnercutter/testutils/inject"
	"go.viam.com/runnercutter/utils"
)

func TestWithTimeout(t *testing.T) {
	fake := &inject.Laser{
		PlayFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	wrapped := laser.WithTimeout(fake, 10*time.Millisecond)

	err := wrapped.Play(context.Background())
	test.That(t, errors.Is(err, utils.ErrServiceUnavailable), test.ShouldBeTrue)

	test.That(t, wrapped.SetPoints(context.Background(), []r2.Point{{X: 0.5, Y: 0.5}}), test.ShouldBeNil)
	test.That(t, wrapped.SetColor(context.Background(), laser.Color{R: 1}), test.ShouldBeNil)
	test.That(t, wrapped.Stop(context.Background()), test.ShouldBeNil)
	test.That(t, wrapped.ClearPoints(context.Background()), test.ShouldBeNil)
	test.That(t, fake.Calls(), test.ShouldResemble, []string{"play", "set_points", "set_color", "stop", "clear_points"})
	test.That(t, fake.Color(), test.ShouldResemble, laser.Color{R: 1})
	test.That(t, fake.Playing(), test.ShouldBeFalse)
}
