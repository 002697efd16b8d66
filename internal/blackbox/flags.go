package blackbox

import (
	"fmt"
	"strings"
)

// Bit names for the flightModeFlags slow field as logged by recent
// Betaflight releases.
var betaflightFlightModeNames = []string{
	"ARM", "ANGLE", "HORIZON", "MAG", "HEADFREE", "PASSTHRU", "FAILSAFE",
	"GPSRESCUE", "ANTIGRAVITY", "HEADADJ", "CAMSTAB", "BEEPERON", "LEDLOW",
	"CALIB", "OSD", "TELEMETRY", "SERVO1", "SERVO2", "SERVO3", "BLACKBOX",
	"AIRMODE", "3D", "FPVANGLEMIX", "BLACKBOXERASE", "CAMERA1", "CAMERA2",
	"CAMERA3", "FLIPOVERAFTERCRASH", "PREARM", "BEEPGPSCOUNT", "VTXPITMODE",
	"USER1",
}

// Bit names for the older baseflight/cleanflight flightModeFlags layout.
var legacyFlightModeNames = []string{
	"ANGLE", "HORIZON", "MAG", "BARO", "GPSHOME", "GPSHOLD", "HEADFREE",
	"AUTOTUNE", "PASSTHRU", "RANGEFINDER", "FAILSAFE",
}

var stateFlagNames = []string{
	"GPS_FIX_HOME", "GPS_FIX", "CALIBRATE_MAG", "SMALL_ANGLE", "FIXED_WING",
}

var failsafePhaseNames = []string{
	"IDLE", "RX_LOSS_DETECTED", "LANDING", "LANDED", "RX_LOSS_MONITORING",
	"RX_LOSS_RECOVERED", "GPS_RESCUE",
}

func unpackBits(flags uint32, names []string) []string {
	var out []string
	for i, name := range names {
		if flags&(1<<uint(i)) != 0 {
			out = append(out, name)
		}
	}
	remainder := flags &^ (1<<uint(len(names)) - 1)
	if remainder != 0 {
		out = append(out, fmt.Sprintf("0x%X", remainder))
	}
	return out
}

// FlightModeNames expands a flightModeFlags value into mode names, using the
// bit layout of the firmware that wrote the log.
func (c *SysConfig) FlightModeNames(flags uint32) []string {
	if c.FirmwareType == FirmwareTypeBetaflight {
		return unpackBits(flags, betaflightFlightModeNames)
	}
	return unpackBits(flags, legacyFlightModeNames)
}

// StateFlagNames expands a stateFlags value into state names.
func (c *SysConfig) StateFlagNames(flags uint32) []string {
	return unpackBits(flags, stateFlagNames)
}

// FailsafePhaseName names a failsafePhase value.
func (c *SysConfig) FailsafePhaseName(phase int) string {
	if phase >= 0 && phase < len(failsafePhaseNames) {
		return failsafePhaseNames[phase]
	}
	return fmt.Sprintf("PHASE_%d", phase)
}

// DescribeFlightMode renders a flightModeFlags value for display.
func (c *SysConfig) DescribeFlightMode(flags uint32) string {
	names := c.FlightModeNames(flags)
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}
