// Package config defines the structures to configure the runner cutter and its collaborators.
package config

import (
	"net"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/runnercutter/logging"
	"go.viam.com/runnercutter/services/runnercutter"
	"go.viam.com/runnercutter/sim"
)

// DefaultBindAddress is the default address that will be listened on. This default may
// not be used in some situations.
const DefaultBindAddress = "localhost:8080"

// A Config describes the configuration of the whole process.
type Config struct {
	ConfigFilePath string              `json:"-"`
	RunnerCutter   runnercutter.Config `json:"runner_cutter"`
	Sim            sim.Config          `json:"sim"`
	Web            WebConfig           `json:"web"`
	LogFile        *logging.FileConfig `json:"log_file,omitempty"`
	Debug          bool                `json:"debug,omitempty"`
}

// WebConfig describes the HTTP control surface.
type WebConfig struct {
	// Address is the address to listen on, host:port.
	Address string `json:"address,omitempty"`
}

// Validate ensures the address is usable, defaulting it if unset.
func (conf *WebConfig) Validate(path string) error {
	if conf.Address == "" {
		conf.Address = DefaultBindAddress
	}
	if _, _, err := net.SplitHostPort(conf.Address); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrapf(err, "invalid address %q", conf.Address))
	}
	return nil
}

// Ensure ensures all parts of the config are valid and fills in defaults.
func (c *Config) Ensure() error {
	if err := c.RunnerCutter.Validate("runner_cutter"); err != nil {
		return err
	}
	if err := c.Sim.Validate("sim"); err != nil {
		return err
	}
	if c.LogFile != nil {
		if c.LogFile.Path == "" {
			return utils.NewConfigValidationFieldRequiredError("log_file", "path")
		}
		if c.LogFile.MaxSizeMB < 0 || c.LogFile.MaxBackups < 0 {
			return utils.NewConfigValidationError("log_file", errors.New("max_size_mb and max_backups cannot be negative"))
		}
	}
	return c.Web.Validate("web")
}
