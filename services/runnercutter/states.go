package runnercutter

// State is a state of the targeting state machine.
type State string

// The states of the targeting state machine.
const (
	StateIdle                 State = "idle"
	StateCalibration          State = "calibration"
	StateAddCalibrationPoints State = "add_calibration_points"
	StateManualTargetAimLaser State = "manual_target_aim_laser"
	StateAcquireTarget        State = "acquire_target"
	StateAimLaser             State = "aim_laser"
	StateBurnTarget           State = "burn_target"
	anyState                  State = "*"
)

type trigger string

const (
	triggerRunCalibration               trigger = "run_calibration"
	triggerCalibrationComplete          trigger = "calibration_complete"
	triggerRunAddCalibrationPoints      trigger = "run_add_calibration_points"
	triggerAddCalibrationPointsComplete trigger = "add_calibration_points_complete"
	triggerRunManualTargetAimLaser      trigger = "run_manual_target_aim_laser"
	triggerManualTargetAimLaserComplete trigger = "manual_target_aim_laser_complete"
	triggerRunRunnerCutter              trigger = "run_runner_cutter"
	triggerTargetAcquired               trigger = "target_acquired"
	triggerNoTargetFound                trigger = "no_target_found"
	triggerAimSuccessful                trigger = "aim_successful"
	triggerAimFailed                    trigger = "aim_failed"
	triggerBurnComplete                 trigger = "burn_complete"
	triggerStop                         trigger = "stop"
)

type transition struct {
	from State
	to   State
	// requiresCalibration is checked when the request is dequeued.
	requiresCalibration bool
}

// transitionTable returns the edges of the machine. aim_laser is only reachable when aiming is enabled.
func transitionTable(enableAiming bool) map[trigger][]transition {
	table := map[trigger][]transition{
		triggerRunCalibration:               {{from: StateIdle, to: StateCalibration}},
		triggerCalibrationComplete:          {{from: StateCalibration, to: StateIdle}},
		triggerRunAddCalibrationPoints:      {{from: StateIdle, to: StateAddCalibrationPoints, requiresCalibration: true}},
		triggerAddCalibrationPointsComplete: {{from: StateAddCalibrationPoints, to: StateIdle}},
		triggerRunManualTargetAimLaser:      {{from: StateIdle, to: StateManualTargetAimLaser, requiresCalibration: true}},
		triggerManualTargetAimLaserComplete: {{from: StateManualTargetAimLaser, to: StateIdle}},
		triggerRunRunnerCutter:              {{from: StateIdle, to: StateAcquireTarget, requiresCalibration: true}},
		triggerNoTargetFound:                {{from: StateAcquireTarget, to: StateAcquireTarget}},
		triggerBurnComplete:                 {{from: StateBurnTarget, to: StateAcquireTarget}},
		triggerStop:                         {{from: anyState, to: StateIdle}},
	}
	if enableAiming {
		table[triggerTargetAcquired] = []transition{{from: StateAcquireTarget, to: StateAimLaser}}
		table[triggerAimSuccessful] = []transition{{from: StateAimLaser, to: StateBurnTarget}}
		table[triggerAimFailed] = []transition{{from: StateAimLaser, to: StateAcquireTarget}}
	} else {
		table[triggerTargetAcquired] = []transition{{from: StateAcquireTarget, to: StateBurnTarget}}
	}
	return table
}

// resolve finds the edge for a trigger out of the current state.
func resolve(table map[trigger][]transition, current State, t trigger) (transition, bool) {
	for _, edge := range table[t] {
		if edge.from == anyState || edge.from == current {
			return edge, true
		}
	}
	return transition{}, false
}
