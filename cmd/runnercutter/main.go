// Package main runs the runner cutter against a simulated camera and laser and serves its
// control API over HTTP.
package main

import (
	"context"
	"io"

	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/runnercutter/config"
	"go.viam.com/runnercutter/logging"
	"go.viam.com/runnercutter/services/runnercutter"
	"go.viam.com/runnercutter/sim"
	"go.viam.com/runnercutter/web"
)

var logger = logging.NewLogger("runnercutter")

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,required,usage=runner cutter config file"`
	Debug      bool   `flag:"debug"`
	WebProfile bool   `flag:"webprofile,usage=include profiler in http server"`
}

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := config.Read(ctx, argsParsed.ConfigFile, logger)
	if err != nil {
		return err
	}
	if cfg.LogFile != nil {
		var closer io.Closer
		logger, closer = logging.NewLoggerWithFile("runnercutter", *cfg.LogFile)
		defer func() {
			err = multierr.Combine(err, closer.Close())
		}()
	}
	if argsParsed.Debug || cfg.Debug {
		logger.SetLevel(logging.DEBUG)
	}

	scene, err := sim.NewScene(cfg.Sim, logger.Sublogger("sim"))
	if err != nil {
		return err
	}
	svc, err := runnercutter.New(scene.Camera(), scene.Laser(), &cfg.RunnerCutter, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, svc.Close(context.Background()))
	}()

	return web.RunWeb(ctx, svc, web.Options{Address: cfg.Web.Address, Pprof: argsParsed.WebProfile}, logger)
}
