package blackbox

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrHeaderIncomplete is reported when a log's header does not declare
	// enough of the main frame schema to decode anything.
	ErrHeaderIncomplete = errors.New("log header is missing required frame definitions")
)

var firmwareRevisionPattern = regexp.MustCompile(`(Betaflight|Cleanflight|Raceflight|INAV)\s+(\d+)\.(\d+)(\.(\d+))?`)

// parseHeader consumes "H key:value" lines from the stream until the first
// byte that both starts a known frame type and is followed by content. On
// return the frame definitions and system configuration are populated and
// the cursor rests on the first frame marker.
func (p *Parser) parseHeader() error {
	for {
		c := p.stream.ReadChar()
		if c == bstreamEOFChar {
			break
		}
		if c == 'H' && p.stream.PeekChar() == ' ' {
			p.stream.ReadChar()
			p.parseHeaderLine(p.stream.ReadLine())
			continue
		}
		if _, known := p.frameTypes[byte(c)]; known && p.stream.PeekChar() != bstreamEOFChar {
			p.stream.UnreadChar()
			break
		}
		// Junk between header lines; skip a byte and keep looking.
	}

	if !p.frameDefs.I.Complete() {
		return fmt.Errorf("%w: no intraframe definition", ErrHeaderIncomplete)
	}
	if len(p.frameDefs.P.Predictor) == 0 || len(p.frameDefs.P.Encoding) == 0 {
		return fmt.Errorf("%w: no interframe definition", ErrHeaderIncomplete)
	}
	p.frameDefs.P.inheritFrom(&p.frameDefs.I)
	if !p.frameDefs.P.Complete() {
		return fmt.Errorf("%w: interframe definition does not span the main fields", ErrHeaderIncomplete)
	}
	return nil
}

// parseHeaderLine dispatches one "key:value" header line. The first colon
// terminates the key; later colons (datetimes, for instance) belong to the
// value. Unrecognized keys are kept, not rejected.
func (p *Parser) parseHeaderLine(line string) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return
	}
	key := normalizeHeaderKey(line[:colon])
	value := line[colon+1:]
	cfg := &p.sysConfig

	if strings.HasPrefix(key, "Field ") {
		if p.parseFieldDefinition(key, value) {
			return
		}
	}

	switch key {
	case "Firmware revision":
		cfg.FirmwareRevision = value
		if m := firmwareRevisionPattern.FindStringSubmatch(value); m != nil {
			switch m[1] {
			case "Betaflight":
				cfg.FirmwareType = FirmwareTypeBetaflight
			case "Cleanflight":
				cfg.FirmwareType = FirmwareTypeCleanflight
			case "Raceflight":
				cfg.FirmwareType = FirmwareTypeRaceflight
			case "INAV":
				cfg.FirmwareType = FirmwareTypeINAV
			}
			cfg.Firmware, _ = strconv.ParseFloat(m[2]+"."+m[3], 64)
			if m[5] != "" {
				cfg.FirmwarePatch, _ = strconv.Atoi(m[5])
			} else {
				cfg.FirmwarePatch = 0
			}
			cfg.FirmwareVersion = fmt.Sprintf("%s.%s.%d", m[2], m[3], cfg.FirmwarePatch)
		}
	case "Firmware type":
		if value == "Cleanflight" && cfg.FirmwareType == FirmwareTypeUnknown {
			cfg.FirmwareType = FirmwareTypeCleanflight
		}
	case "Log start datetime":
		cfg.LogStartDatetime = value
	case "Board information":
		cfg.BoardInfo = value
	case "Craft name":
		cfg.CraftName = value
	case "Data version":
		cfg.DataVersion = atoiDefault(value, cfg.DataVersion)
	case "I interval":
		cfg.FrameIntervalI = atoiDefault(value, cfg.FrameIntervalI)
		if cfg.FrameIntervalI < 1 {
			cfg.FrameIntervalI = 1
		}
	case "P interval":
		if slash := strings.Index(value, "/"); slash >= 0 {
			cfg.FrameIntervalPNum = atoiDefault(value[:slash], 1)
			cfg.FrameIntervalPDenom = atoiDefault(value[slash+1:], 1)
		} else {
			cfg.FrameIntervalPNum = 1
			cfg.FrameIntervalPDenom = atoiDefault(value, 1)
		}
		if cfg.FrameIntervalPNum < 1 {
			cfg.FrameIntervalPNum = 1
		}
		if cfg.FrameIntervalPDenom < 1 {
			cfg.FrameIntervalPDenom = 1
		}
	case "P denom", "P ratio":
		cfg.FrameIntervalPNum = 1
		cfg.FrameIntervalPDenom = atoiDefault(value, cfg.FrameIntervalPDenom)
	case "minthrottle":
		cfg.MinThrottle = atoiDefault(value, cfg.MinThrottle)
		cfg.MotorOutput[0] = cfg.MinThrottle
	case "maxthrottle":
		cfg.MaxThrottle = atoiDefault(value, cfg.MaxThrottle)
		cfg.MotorOutput[1] = cfg.MaxThrottle
	case "motorOutput":
		v := csvInts(value, 2)
		cfg.MotorOutput[0], cfg.MotorOutput[1] = v[0], v[1]
	case "gyro_scale":
		cfg.GyroScale = hexToFloat(value)
		switch cfg.FirmwareType {
		case FirmwareTypeBetaflight, FirmwareTypeCleanflight, FirmwareTypeINAV:
			cfg.GyroScale = cfg.GyroScale * (math.Pi / 180.0) * 0.000001
		}
	case "acc_1G":
		cfg.Acc1G = atoiDefault(value, cfg.Acc1G)
	case "vbatscale", "vbat_scale":
		cfg.VbatScale = atoiDefault(value, cfg.VbatScale)
	case "vbatref":
		cfg.VbatRef = atoiDefault(value, cfg.VbatRef)
	case "vbatcellvoltage":
		v := csvInts(value, 3)
		cfg.VbatMinCellVoltage, cfg.VbatWarningCellVoltage, cfg.VbatMaxCellVoltage = v[0], v[1], v[2]
	case "currentSensor", "currentMeter":
		v := csvInts(value, 2)
		cfg.CurrentMeterOffset, cfg.CurrentMeterScale = v[0], v[1]
	case "looptime":
		cfg.Looptime = atoiDefault(value, cfg.Looptime)
	case "gyro_sync_denom":
		cfg.GyroSyncDenom = atoiDefault(value, cfg.GyroSyncDenom)
	case "pid_process_denom":
		cfg.PIDProcessDenom = atoiDefault(value, cfg.PIDProcessDenom)
	case "Pid controller", "pidController":
		cfg.PIDController = atoiDefault(value, cfg.PIDController)
	case "rcRate":
		cfg.RCRate = atoiDefault(value, cfg.RCRate)
	case "yawRate":
		cfg.YawRate = atoiDefault(value, cfg.YawRate)
	case "thrMid":
		cfg.ThrMid = atoiDefault(value, cfg.ThrMid)
	case "thrExpo":
		cfg.ThrExpo = atoiDefault(value, cfg.ThrExpo)
	case "tpa_rate", "dynThrPID":
		cfg.TPARate = atoiDefault(value, cfg.TPARate)
	case "tpa_breakpoint":
		cfg.TPABreakpoint = atoiDefault(value, cfg.TPABreakpoint)
	case "rates_type":
		cfg.RatesType = atoiDefault(value, cfg.RatesType)
	case "rates":
		copy(cfg.Rates[:], csvInts(value, 3))
	case "rc_rates":
		copy(cfg.RCRates[:], csvInts(value, 3))
	case "rc_expo":
		copy(cfg.RCExpo[:], csvInts(value, 3))
	case "rate_limits":
		copy(cfg.RateLimits[:], csvInts(value, 3))
		cfg.HasRateLimits = true
	case "rollPID":
		copy(cfg.RollPID[:], csvInts(value, 4))
	case "pitchPID":
		copy(cfg.PitchPID[:], csvInts(value, 4))
	case "yawPID":
		copy(cfg.YawPID[:], csvInts(value, 4))
	case "altPID":
		copy(cfg.AltPID[:], csvInts(value, 3))
	case "posPID":
		copy(cfg.PosPID[:], csvInts(value, 3))
	case "posrPID":
		copy(cfg.PosRPID[:], csvInts(value, 3))
	case "navrPID":
		copy(cfg.NavRPID[:], csvInts(value, 3))
	case "levelPID":
		copy(cfg.LevelPID[:], csvInts(value, 3))
	case "magPID":
		cfg.MagPID = atoiDefault(value, cfg.MagPID)
	case "d_min":
		copy(cfg.DMin[:], csvInts(value, 3))
	case "d_min_gain", "d_max_gain":
		cfg.DMinGain = atoiDefault(value, cfg.DMinGain)
	case "d_min_advance", "d_max_advance":
		cfg.DMinAdvance = atoiDefault(value, cfg.DMinAdvance)
	case "ff_weight":
		copy(cfg.FFWeight[:], csvInts(value, 3))
	case "ff_transition", "feedforward_transition":
		cfg.FFTransition = atoiDefault(value, cfg.FFTransition)
	case "pidsum_limit", "pidSumLimit":
		cfg.PidSumLimit = atoiDefault(value, cfg.PidSumLimit)
	case "pidsum_limit_yaw", "pidSumLimitYaw":
		cfg.PidSumLimitYaw = atoiDefault(value, cfg.PidSumLimitYaw)
	case "iterm_windup":
		cfg.ITermWindup = atoiDefault(value, cfg.ITermWindup)
	case "pidAtMinThrottle":
		cfg.PidAtMinThrottle = atoiDefault(value, cfg.PidAtMinThrottle)
	case "anti_gravity_gain":
		cfg.AntiGravityGain = atoiDefault(value, cfg.AntiGravityGain)
	case "anti_gravity_mode":
		cfg.AntiGravityMode = atoiDefault(value, cfg.AntiGravityMode)
	case "abs_control_gain":
		cfg.AbsControlGain = atoiDefault(value, cfg.AbsControlGain)
	case "use_integrated_yaw":
		cfg.IntegratedYaw = atoiDefault(value, cfg.IntegratedYaw)
	case "yawRateAccelLimit", "yaw_rate_accel_limit":
		cfg.YawRateAccelLimit = p.scaledAccelLimit(value)
	case "rateAccelLimit", "rate_accel_limit":
		cfg.RateAccelLimit = p.scaledAccelLimit(value)
	case "dterm_lpf_hz":
		cfg.DtermLpfHz = p.scaledFilterHz(value)
	case "dterm_lpf2_hz":
		cfg.DtermLpf2Hz = p.scaledFilterHz(value)
	case "dterm_lpf_dyn_hz":
		v := csvFloats(value, 2)
		cfg.DtermLpfDynHz[0], cfg.DtermLpfDynHz[1] = v[0], v[1]
	case "gyro_lpf_hz":
		cfg.GyroLpfHz = p.scaledFilterHz(value)
	case "gyro_lpf2_hz":
		cfg.GyroLpf2Hz = p.scaledFilterHz(value)
	case "gyro_lpf_dyn_hz":
		v := csvFloats(value, 2)
		cfg.GyroLpfDynHz[0], cfg.GyroLpfDynHz[1] = v[0], v[1]
	case "gyro_lpf", "gyro_hardware_lpf":
		cfg.GyroLpf = atoiDefault(value, cfg.GyroLpf)
	case "yaw_lpf_hz":
		cfg.YawLpfHz = p.scaledFilterHz(value)
	case "dterm_notch_hz":
		cfg.DtermNotchHz = p.scaledFilterHz(value)
	case "dterm_notch_cutoff":
		cfg.DtermNotchCutoff = p.scaledFilterHz(value)
	case "gyro_notch_hz":
		cfg.GyroNotchHz = p.scaledFilterHzList(value)
	case "gyro_notch_cutoff":
		cfg.GyroNotchCutoff = p.scaledFilterHzList(value)
	case "dterm_filter_type":
		cfg.DtermFilterType = atoiDefault(value, cfg.DtermFilterType)
	case "dterm_filter2_type":
		cfg.DtermFilter2Type = atoiDefault(value, cfg.DtermFilter2Type)
	case "gyro_soft_type":
		cfg.GyroFilterType = atoiDefault(value, cfg.GyroFilterType)
	case "gyro_soft2_type":
		cfg.GyroFilter2Type = atoiDefault(value, cfg.GyroFilter2Type)
	case "digitalIdleOffset":
		cfg.DigitalIdleOffset = atoiDefault(value, cfg.DigitalIdleOffset)
	case "deadband":
		cfg.DeadbandRC = atoiDefault(value, cfg.DeadbandRC)
	case "yaw_deadband":
		cfg.DeadbandYaw = atoiDefault(value, cfg.DeadbandYaw)
	case "rc_smoothing_type", "rc_smoothing", "rc_smoothing_mode":
		cfg.RCSmoothingType = atoiDefault(value, cfg.RCSmoothingType)
	case "rc_smoothing_cutoffs":
		copy(cfg.RCSmoothingCutoffs[:], csvInts(value, 2))
	case "rc_smoothing_active_cutoffs", "rc_smoothing_active_cutoffs_ff_sp":
		copy(cfg.RCSmoothingActiveCutoffs[:], csvInts(value, 2))
	case "rc_smoothing_auto_factor":
		cfg.RCSmoothingAutoFactor = atoiDefault(value, cfg.RCSmoothingAutoFactor)
	case "rc_smoothing_rx_average":
		cfg.RCSmoothingRxAverage = atoiDefault(value, cfg.RCSmoothingRxAverage)
	case "rc_smoothing_debug_axis":
		cfg.RCSmoothingDebugAxis = atoiDefault(value, cfg.RCSmoothingDebugAxis)
	case "features":
		cfg.Features = atoi64Default(value, cfg.Features)
	case "debug_mode":
		cfg.DebugMode = atoiDefault(value, cfg.DebugMode)
	case "fields_disabled_mask":
		cfg.FieldsDisabledMask = atoi64Default(value, cfg.FieldsDisabledMask)
	case "motor_pwm_protocol", "fast_pwm_protocol":
		cfg.MotorPwmProtocol = atoiDefault(value, cfg.MotorPwmProtocol)
	case "motor_pwm_rate":
		cfg.MotorPwmRate = atoiDefault(value, cfg.MotorPwmRate)
	case "dshot_bidir":
		cfg.DshotBidir = atoiDefault(value, cfg.DshotBidir)
	case "motor_poles":
		cfg.MotorPoles = atoiDefault(value, cfg.MotorPoles)
	case "servo_pwm_rate":
		cfg.ServoPwmRate = atoiDefault(value, cfg.ServoPwmRate)
	case "unsynced_fast_pwm":
		cfg.Unsynced = atoiDefault(value, cfg.Unsynced)
	case "gyro.scale.cal", "gyrocal":
		copy(cfg.GyroCal[:], csvInts(value, 3))
	case "acccal":
		copy(cfg.AccCal[:], csvInts(value, 3))
	case "magcal":
		copy(cfg.MagCal[:], csvInts(value, 3))
	case "deviceUID":
		cfg.DeviceUID = value
	default:
		p.unknownHeader(key, value)
	}
}

// parseFieldDefinition handles the "Field <T> <sub>" family. It returns false
// when the key does not follow that shape so the caller can fall through to
// the scalar rules.
func (p *Parser) parseFieldDefinition(key, value string) bool {
	parts := strings.SplitN(key, " ", 3)
	if len(parts) != 3 || len(parts[1]) != 1 {
		return false
	}
	def := p.frameDefs.byMarker(parts[1][0])
	if def == nil {
		p.unknownHeader(key, value)
		return true
	}
	switch parts[2] {
	case "name":
		def.setNames(strings.Split(value, ","))
	case "signed":
		for i, v := range csvInts(value, 0) {
			if i < len(def.Signed) {
				def.Signed[i] = v != 0
			} else {
				def.Signed = append(def.Signed, v != 0)
			}
		}
	case "predictor":
		def.Predictor = csvInts(value, 0)
	case "encoding":
		def.Encoding = csvInts(value, 0)
	default:
		p.unknownHeader(key, value)
	}
	return true
}

func (p *Parser) unknownHeader(key, value string) {
	p.sysConfig.UnknownHeaders = append(p.sysConfig.UnknownHeaders, Header{Name: key, Value: value})
}

// scaledAccelLimit divides by 1000 on firmware that began logging the limit
// in millidegrees per second squared.
func (p *Parser) scaledAccelLimit(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	if p.sysConfig.FirmwareAtLeast("3.1.0", "2.0.0") {
		return v / 1000
	}
	return v
}

// scaledFilterHz divides by 100 on firmware that logged filter cutoffs in
// centihertz.
func (p *Parser) scaledFilterHz(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	if !p.sysConfig.FirmwareAtLeast("3.1.0", "2.0.0") {
		return v / 100
	}
	return v
}

func (p *Parser) scaledFilterHzList(value string) []float64 {
	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		out = append(out, p.scaledFilterHz(part))
	}
	return out
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func atoi64Default(s string, def int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return def
	}
	return n
}

// csvInts splits a comma-separated list into integers. Float elements are
// truncated, unparseable elements become zero, and the result is right-padded
// with zeros to at least n entries.
func csvInts(value string, n int) []int {
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if v, err := strconv.Atoi(part); err == nil {
			out = append(out, v)
		} else if f, err := strconv.ParseFloat(part, 64); err == nil {
			out = append(out, int(f))
		} else {
			out = append(out, 0)
		}
	}
	for len(out) < n {
		out = append(out, 0)
	}
	return out
}

// csvFloats is csvInts for fractional values.
func csvFloats(value string, n int) []float64 {
	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			f = 0
		}
		out = append(out, f)
	}
	for len(out) < n {
		out = append(out, 0)
	}
	return out
}

// hexToFloat reinterprets a hexadecimal string as the bit pattern of an
// IEEE-754 single-precision float.
func hexToFloat(s string) float64 {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	bits, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0
	}
	return float64(math.Float32frombits(uint32(bits)))
}
