package sim

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/runnercutter/components/laser"
)

type simLaser struct {
	scene *Scene
}

func (l *simLaser) SetColor(ctx context.Context, color laser.Color) error {
	if !color.Valid() {
		return errors.Errorf("invalid laser color %+v", color)
	}
	l.scene.mu.Lock()
	defer l.scene.mu.Unlock()
	l.scene.laserColor = color
	return nil
}

func (l *simLaser) SetPoints(ctx context.Context, points []r2.Point) error {
	l.scene.mu.Lock()
	defer l.scene.mu.Unlock()
	l.scene.laserPoints = append([]r2.Point(nil), points...)
	return nil
}

func (l *simLaser) Play(ctx context.Context) error {
	l.scene.mu.Lock()
	defer l.scene.mu.Unlock()
	l.scene.laserPlaying = true
	return nil
}

func (l *simLaser) Stop(ctx context.Context) error {
	l.scene.mu.Lock()
	defer l.scene.mu.Unlock()
	l.scene.laserPlaying = false
	return nil
}

func (l *simLaser) ClearPoints(ctx context.Context) error {
	l.scene.mu.Lock()
	defer l.scene.mu.Unlock()
	l.scene.laserPoints = nil
	return nil
}
