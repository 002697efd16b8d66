package blackbox

import (
	"strconv"
	"strings"
)

// Firmware families recognized in the "Firmware revision" header.
const (
	FirmwareTypeUnknown = iota
	FirmwareTypeBaseflight
	FirmwareTypeCleanflight
	FirmwareTypeBetaflight
	FirmwareTypeINAV
	FirmwareTypeRaceflight
)

// Header holds a single header line that no parser rule claimed.
type Header struct {
	Name  string
	Value string
}

// SysConfig is the typed system-configuration record populated from the log
// header. Values arrive already normalized: version-gated unit scaling is
// applied at ingestion so consumers never need to know which firmware wrote
// the log.
type SysConfig struct {
	FrameIntervalI      int
	FrameIntervalPNum   int
	FrameIntervalPDenom int
	DataVersion         int

	FirmwareType     int
	Firmware         float64
	FirmwarePatch    int
	FirmwareVersion  string
	FirmwareRevision string
	BoardInfo        string
	LogStartDatetime string
	CraftName        string

	PIDController int
	RCRate        int
	YawRate       int

	VbatScale              int
	VbatRef                int
	VbatMinCellVoltage     int
	VbatMaxCellVoltage     int
	VbatWarningCellVoltage int

	GyroScale float64
	Acc1G     int

	MinThrottle int
	MaxThrottle int
	MotorOutput [2]int

	CurrentMeterOffset int
	CurrentMeterScale  int

	Looptime          int
	GyroSyncDenom     int
	PIDProcessDenom   int
	ThrMid            int
	ThrExpo           int
	TPARate           int
	TPABreakpoint     int
	RatesType         int
	Rates             [3]int
	RCRates           [3]int
	RCExpo            [3]int
	RateLimits        [3]int
	HasRateLimits     bool
	RollPID           [4]int
	PitchPID          [4]int
	YawPID            [4]int
	AltPID            [3]int
	PosPID            [3]int
	PosRPID           [3]int
	NavRPID           [3]int
	LevelPID          [3]int
	MagPID            int
	DMin              [3]int
	DMinGain          int
	DMinAdvance       int
	DtermLpfHz        float64
	DtermLpf2Hz       float64
	DtermLpfDynHz     [2]float64
	GyroLpfHz         float64
	GyroLpf2Hz        float64
	GyroLpfDynHz      [2]float64
	GyroLpf           int
	GyroNotchHz       []float64
	GyroNotchCutoff   []float64
	DtermNotchHz      float64
	DtermNotchCutoff  float64
	YawLpfHz          float64
	DtermFilterType   int
	DtermFilter2Type  int
	GyroFilterType    int
	GyroFilter2Type   int
	ITermWindup       int
	PidAtMinThrottle  int
	AntiGravityGain   int
	AntiGravityMode   int
	AbsControlGain    int
	IntegratedYaw     int
	FFWeight          [3]int
	FFTransition      int
	PidSumLimit       int
	PidSumLimitYaw    int
	YawRateAccelLimit float64
	RateAccelLimit    float64
	DigitalIdleOffset int

	DeadbandRC  int
	DeadbandYaw int

	RCSmoothingType          int
	RCSmoothingCutoffs       [2]int
	RCSmoothingAutoFactor    int
	RCSmoothingRxAverage     int
	RCSmoothingDebugAxis     int
	RCSmoothingActiveCutoffs [2]int

	Features           int64
	DebugMode          int
	FieldsDisabledMask int64
	MotorPwmProtocol   int
	MotorPwmRate       int
	DshotBidir         int
	MotorPoles         int
	ServoPwmRate       int

	Unsynced int
	GyroCal  [3]int
	AccCal   [3]int
	MagCal   [3]int

	DeviceUID string

	// UnknownHeaders preserves every header line no rule above consumed.
	UnknownHeaders []Header
}

// defaultSysConfig seeds the configuration before the header is parsed, so a
// log that omits optional headers still decodes.
func defaultSysConfig() SysConfig {
	return SysConfig{
		FrameIntervalI:         32,
		FrameIntervalPNum:      1,
		FrameIntervalPDenom:    1,
		DataVersion:            1,
		PIDController:          0,
		RCRate:                 90,
		VbatScale:              110,
		VbatRef:                4095,
		VbatMinCellVoltage:     33,
		VbatMaxCellVoltage:     43,
		VbatWarningCellVoltage: 35,
		GyroScale:              0.0001,
		Acc1G:                  4096,
		MinThrottle:            1150,
		MaxThrottle:            1850,
		MotorOutput:            [2]int{1150, 1850},
		CurrentMeterOffset:     0,
		CurrentMeterScale:      400,
	}
}

// headerKeyAliases renames historical header keys onto their current
// spellings before dispatch.
var headerKeyAliases = map[string]string{
	"dterm_lowpass_hz":     "dterm_lpf_hz",
	"dterm_lowpass2_hz":    "dterm_lpf2_hz",
	"dterm_lowpass_dyn_hz": "dterm_lpf_dyn_hz",
	"dterm_lowpass_type":   "dterm_filter_type",
	"dterm_lowpass2_type":  "dterm_filter2_type",
	"gyro_lowpass_hz":      "gyro_lpf_hz",
	"gyro_lowpass2_hz":     "gyro_lpf2_hz",
	"gyro_lowpass_dyn_hz":  "gyro_lpf_dyn_hz",
	"gyro_lowpass_type":    "gyro_soft_type",
	"gyro_lowpass2_type":   "gyro_soft2_type",
	"gyro.scale":           "gyro_scale",
}

func normalizeHeaderKey(key string) string {
	if alias, ok := headerKeyAliases[key]; ok {
		return alias
	}
	return key
}

// parseVersion splits a dotted version string into numeric components,
// ignoring anything past the patch level.
func parseVersion(v string) (major, minor, patch int) {
	parts := strings.SplitN(strings.TrimSpace(v), ".", 4)
	read := func(i int) int {
		if i >= len(parts) {
			return 0
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0
		}
		return n
	}
	return read(0), read(1), read(2)
}

func versionAtLeast(version string, major, minor, patch int) bool {
	ma, mi, pa := parseVersion(version)
	if ma != major {
		return ma > major
	}
	if mi != minor {
		return mi > minor
	}
	return pa >= patch
}

// FirmwareAtLeast reports whether the log's firmware is at least the given
// Betaflight version, or at least the given Cleanflight version when the log
// was written by Cleanflight. Other firmware families never qualify.
func (c *SysConfig) FirmwareAtLeast(betaflight, cleanflight string) bool {
	switch c.FirmwareType {
	case FirmwareTypeBetaflight:
		ma, mi, pa := parseVersion(betaflight)
		return versionAtLeast(c.FirmwareVersion, ma, mi, pa)
	case FirmwareTypeCleanflight:
		ma, mi, pa := parseVersion(cleanflight)
		return versionAtLeast(c.FirmwareVersion, ma, mi, pa)
	default:
		return false
	}
}

// BetaflightAtLeast reports whether the log came from Betaflight of at least
// the given version.
func (c *SysConfig) BetaflightAtLeast(version string) bool {
	if c.FirmwareType != FirmwareTypeBetaflight {
		return false
	}
	ma, mi, pa := parseVersion(version)
	return versionAtLeast(c.FirmwareVersion, ma, mi, pa)
}

// FieldDisabled reports whether the given blackbox field group was disabled
// when the log was recorded.
func (c *SysConfig) FieldDisabled(group int) bool {
	return c.FieldsDisabledMask&(1<<uint(group)) != 0
}

// Field group bits of the fields_disabled_mask header.
const (
	FieldGroupPID = iota
	FieldGroupRCCommands
	FieldGroupSetpoint
	FieldGroupBattery
	FieldGroupMag
	FieldGroupAltitude
	FieldGroupRSSI
	FieldGroupGyro
	FieldGroupAcc
	FieldGroupDebug
	FieldGroupMotor
	FieldGroupGPS
)
