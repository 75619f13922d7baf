package runnercutter

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/runnercutter/calibration"
	"go.viam.com/runnercutter/components/laser"
)

// Defaults used for any unset Config field.
var (
	DefaultTrackingLaserColor = laser.Color{R: 0.15}
	DefaultBurnLaserColor     = laser.Color{B: 1}
)

// Default values and timings.
const (
	DefaultBurnTime                 = 5 * time.Second
	DefaultGridSize                 = 5
	DefaultAimMaxIterations         = 20
	DefaultAimThresholdPx           = 2.5
	DefaultLaserDetectionExposureUs = 1.0

	DefaultCalibrationSettle    = 100 * time.Millisecond
	DefaultAimSettle            = 500 * time.Millisecond
	DefaultDetectionBackoff     = 200 * time.Millisecond
	DefaultDetectionAttempts    = 3
	DefaultRPCTimeout           = 2 * time.Second
	DefaultAcquireRetryInterval = 100 * time.Millisecond
)

// GridConfig is the size of the laser coordinate grid swept during calibration.
type GridConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TimingConfig holds the delays and retry budgets used when talking to the collaborators.
type TimingConfig struct {
	CalibrationSettle    time.Duration `json:"calibration_settle,omitempty"`
	AimSettle            time.Duration `json:"aim_settle,omitempty"`
	DetectionBackoff     time.Duration `json:"detection_backoff,omitempty"`
	DetectionAttempts    int           `json:"detection_attempts,omitempty"`
	RPCTimeout           time.Duration `json:"rpc_timeout,omitempty"`
	AcquireRetryInterval time.Duration `json:"acquire_retry_interval,omitempty"`
}

// Config describes how to target and burn runners.
type Config struct {
	TrackingLaserColor       *laser.Color             `json:"tracking_laser_color,omitempty"`
	BurnLaserColor           *laser.Color             `json:"burn_laser_color,omitempty"`
	BurnTime                 time.Duration            `json:"burn_time,omitempty"`
	EnableAiming             *bool                    `json:"enable_aiming,omitempty"`
	CalibrationGrid          GridConfig               `json:"calibration_grid"`
	AimMaxIterations         int                      `json:"aim_max_iterations,omitempty"`
	AimThresholdPx           float64                  `json:"aim_threshold_px,omitempty"`
	LaserDetectionExposureUs float64                  `json:"laser_detection_exposure_us,omitempty"`
	ActiveTrackMissLimit     int                      `json:"active_track_miss_limit,omitempty"`
	RefineMethod             calibration.RefineMethod `json:"refine_method,omitempty"`
	Timing                   TimingConfig             `json:"timing"`
}

// Validate ensures all parts of the config are valid and fills in defaults for anything unset.
func (conf *Config) Validate(path string) error {
	if conf.TrackingLaserColor == nil {
		c := DefaultTrackingLaserColor
		conf.TrackingLaserColor = &c
	}
	if !conf.TrackingLaserColor.Valid() {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("tracking_laser_color channels must be in [0,1], got %+v", *conf.TrackingLaserColor))
	}
	if conf.TrackingLaserColor.IsOff() {
		return goutils.NewConfigValidationError(path, errors.New("tracking_laser_color must be visible"))
	}
	if conf.BurnLaserColor == nil {
		c := DefaultBurnLaserColor
		conf.BurnLaserColor = &c
	}
	if !conf.BurnLaserColor.Valid() {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("burn_laser_color channels must be in [0,1], got %+v", *conf.BurnLaserColor))
	}
	if conf.EnableAiming == nil {
		enabled := true
		conf.EnableAiming = &enabled
	}

	if conf.BurnTime < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("burn_time cannot be negative, got %v", conf.BurnTime))
	}
	if conf.BurnTime == 0 {
		conf.BurnTime = DefaultBurnTime
	}

	if conf.CalibrationGrid.Width == 0 && conf.CalibrationGrid.Height == 0 {
		conf.CalibrationGrid = GridConfig{Width: DefaultGridSize, Height: DefaultGridSize}
	}
	if conf.CalibrationGrid.Width < 2 || conf.CalibrationGrid.Height < 2 {
		return goutils.NewConfigValidationError(path, errors.Errorf("calibration_grid must be at least 2x2, got %dx%d",
			conf.CalibrationGrid.Width, conf.CalibrationGrid.Height))
	}

	if conf.AimMaxIterations < 0 {
		return goutils.NewConfigValidationError(path, errors.New("aim_max_iterations cannot be negative"))
	}
	if conf.AimMaxIterations == 0 {
		conf.AimMaxIterations = DefaultAimMaxIterations
	}
	if conf.AimThresholdPx < 0 {
		return goutils.NewConfigValidationError(path, errors.New("aim_threshold_px cannot be negative"))
	}
	if conf.AimThresholdPx == 0 {
		conf.AimThresholdPx = DefaultAimThresholdPx
	}
	if conf.LaserDetectionExposureUs < 0 {
		return goutils.NewConfigValidationError(path, errors.New("laser_detection_exposure_us cannot be negative"))
	}
	if conf.LaserDetectionExposureUs == 0 {
		conf.LaserDetectionExposureUs = DefaultLaserDetectionExposureUs
	}
	if conf.ActiveTrackMissLimit < 0 {
		return goutils.NewConfigValidationError(path, errors.New("active_track_miss_limit cannot be negative"))
	}
	if !conf.RefineMethod.Valid() {
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown refine_method %q", conf.RefineMethod))
	}
	if conf.RefineMethod == "" {
		conf.RefineMethod = calibration.RefineLevenbergMarquardt
	}
	return conf.Timing.Validate(path + ".timing")
}

// Validate fills in default timings and rejects negative ones.
func (conf *TimingConfig) Validate(path string) error {
	for _, field := range []struct {
		name string
		val  *time.Duration
		def  time.Duration
	}{
		{"calibration_settle", &conf.CalibrationSettle, DefaultCalibrationSettle},
		{"aim_settle", &conf.AimSettle, DefaultAimSettle},
		{"detection_backoff", &conf.DetectionBackoff, DefaultDetectionBackoff},
		{"rpc_timeout", &conf.RPCTimeout, DefaultRPCTimeout},
		{"acquire_retry_interval", &conf.AcquireRetryInterval, DefaultAcquireRetryInterval},
	} {
		if *field.val < 0 {
			return goutils.NewConfigValidationError(path, errors.Errorf("%s cannot be negative, got %v", field.name, *field.val))
		}
		if *field.val == 0 {
			*field.val = field.def
		}
	}
	if conf.DetectionAttempts < 0 {
		return goutils.NewConfigValidationError(path, errors.New("detection_attempts cannot be negative"))
	}
	if conf.DetectionAttempts == 0 {
		conf.DetectionAttempts = DefaultDetectionAttempts
	}
	return nil
}

func (conf *Config) calibrationOptions() calibration.Options {
	return calibration.Options{
		TrackingColor:     *conf.TrackingLaserColor,
		GridWidth:         conf.CalibrationGrid.Width,
		GridHeight:        conf.CalibrationGrid.Height,
		SettleDelay:       conf.Timing.CalibrationSettle,
		DetectionAttempts: conf.Timing.DetectionAttempts,
		DetectionBackoff:  conf.Timing.DetectionBackoff,
		ExposureUs:        conf.LaserDetectionExposureUs,
		RefineMethod:      conf.RefineMethod,
	}
}
