package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/runnercutter/calibration"
	"go.viam.com/runnercutter/components/laser"
	"go.viam.com/runnercutter/logging"
	"go.viam.com/runnercutter/services/runnercutter"
	"go.viam.com/runnercutter/sim"
)

func TestFromReaderValidate(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	_, err := FromReader(ctx, "somepath", strings.NewReader(""), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader(ctx, "somepath", strings.NewReader(`{"runner_cutter": 1}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "runner_cutter")

	conf, err := FromReader(ctx, "somepath", strings.NewReader(`{}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, "somepath")
	test.That(t, conf.Web.Address, test.ShouldEqual, DefaultBindAddress)
	test.That(t, conf.RunnerCutter.BurnTime, test.ShouldEqual, runnercutter.DefaultBurnTime)
	test.That(t, *conf.RunnerCutter.EnableAiming, test.ShouldBeTrue)

	_, err = FromReader(ctx, "somepath", strings.NewReader(`{"runner_cutter": {"burn_time": "-1s"}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "burn_time")

	_, err = FromReader(ctx, "somepath", strings.NewReader(`{"runner_cutter": {"burn_time": "soon"}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader(ctx, "somepath", strings.NewReader(`{"sim": {"frame_width": 641, "frame_height": 480}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "sim")

	_, err = FromReader(ctx, "somepath", strings.NewReader(`{"log_file": {"max_size_mb": 10}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"path" is required`)

	conf, err = FromReader(ctx, "somepath", strings.NewReader(`{"log_file": {"path": "/tmp/rc.log", "max_backups": 2}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *conf.LogFile, test.ShouldResemble, logging.FileConfig{Path: "/tmp/rc.log", MaxBackups: 2})

	_, err = FromReader(ctx, "somepath", strings.NewReader(`{"web": {"address": "nope"}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "web")
}

func TestFromReaderAttributes(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	conf, err := FromReader(context.Background(), "somepath", strings.NewReader(`{
		"runner_cutter": {
			"tracking_laser_color": {"r": 0, "g": 0.3, "b": 0, "i": 0},
			"burn_time": "250ms",
			"enable_aiming": false,
			"calibration_grid": {"width": 3, "height": 4},
			"refine_method": "lbfgs",
			"timing": {"aim_settle": "10ms", "detection_attempts": 5},
			"laser_power": 11
		},
		"sim": {"runners": [{"id": 4, "x": 0.25, "y": 0.75}], "detection_miss_rate": 0.1},
		"web": {"address": "0.0.0.0:9090"}
	}`), logger)
	test.That(t, err, test.ShouldBeNil)

	rc := conf.RunnerCutter
	test.That(t, *rc.TrackingLaserColor, test.ShouldResemble, laser.Color{G: 0.3})
	test.That(t, *rc.BurnLaserColor, test.ShouldResemble, runnercutter.DefaultBurnLaserColor)
	test.That(t, rc.BurnTime, test.ShouldEqual, 250*time.Millisecond)
	test.That(t, *rc.EnableAiming, test.ShouldBeFalse)
	test.That(t, rc.CalibrationGrid, test.ShouldResemble, runnercutter.GridConfig{Width: 3, Height: 4})
	test.That(t, rc.RefineMethod, test.ShouldEqual, calibration.RefineBundleAdjustment)
	test.That(t, rc.Timing.AimSettle, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, rc.Timing.DetectionAttempts, test.ShouldEqual, 5)
	test.That(t, rc.Timing.RPCTimeout, test.ShouldEqual, runnercutter.DefaultRPCTimeout)

	test.That(t, conf.Sim.Runners, test.ShouldResemble, []sim.Runner{{ID: 4, X: 0.25, Y: 0.75}})
	test.That(t, conf.Sim.DetectionMissRate, test.ShouldEqual, 0.1)
	test.That(t, conf.Web.Address, test.ShouldEqual, "0.0.0.0:9090")

	unknown := logs.FilterMessage("ignoring unknown config attribute").All()
	test.That(t, unknown, test.ShouldHaveLength, 1)
	test.That(t, unknown[0].ContextMap()["attribute"], test.ShouldEqual, "runner_cutter.laser_power")
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	t.Setenv("RUNNER_CUTTER_ADDRESS", "127.0.0.1:7070")
	conf, err := Read(context.Background(), filepath.Join("..", "etc", "configs", "runnercutter.json"), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Web.Address, test.ShouldEqual, "127.0.0.1:7070")
	test.That(t, conf.RunnerCutter.Timing.AimSettle, test.ShouldEqual, 500*time.Millisecond)
	test.That(t, conf.Sim.Runners, test.ShouldHaveLength, 3)
	test.That(t, conf.Sim.Seed, test.ShouldEqual, int64(1))

	path := filepath.Join(t.TempDir(), "conf.json")
	raw := `{"runner_cutter": {"burn_time": "${BURN_TIME}"}}`
	test.That(t, os.WriteFile(path, []byte(raw), 0o600), test.ShouldBeNil)
	t.Setenv("BURN_TIME", "3s")
	conf, err = Read(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.RunnerCutter.BurnTime, test.ShouldEqual, 3*time.Second)
}
