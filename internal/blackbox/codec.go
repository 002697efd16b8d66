package blackbox

import (
	"errors"
	"fmt"

	"github.com/qdrk/bf-blackbox-parser/internal/bstream"
)

var (
	// ErrMissingPredictorInput is reported when a field's predictor refers
	// to another field that the schema never declared.
	ErrMissingPredictorInput = errors.New("predictor input field is not present")
)

// decodeFrameFields reconstructs one frame's field vector. Field order
// governs both which encoding consumes bytes next and the order predictors
// are applied in; group encodings consume their whole run of fields before
// prediction resumes at the field after the group.
func (p *Parser) decodeFrameFields(def *FrameDef, current, previous, previous2 []int32, skippedFrames int) error {
	var group [8]int32

	i := 0
	for i < def.Count {
		if def.Predictor[i] == PredictorInc {
			// Rebuilt purely from the skip count, no bytes on the wire.
			v := int32(skippedFrames + 1)
			if previous != nil {
				v += previous[i]
			}
			current[i] = v
			i++
			continue
		}

		var raw int32
		switch def.Encoding[i] {
		case EncodingSignedVB:
			raw = p.stream.ReadSignedVB()
		case EncodingUnsignedVB:
			raw = int32(p.stream.ReadUnsignedVB())
		case EncodingNeg14Bit:
			raw = -bstream.SignExtend14Bit(p.stream.ReadUnsignedVB())
		case EncodingNull:
			raw = 0
		case EncodingTag2_3S32:
			p.stream.ReadTag2_3S32(group[:3])
			if err := p.applyGroup(def, &i, group[:3], current, previous, previous2); err != nil {
				return err
			}
			continue
		case EncodingTag2_3SVariable:
			group = [8]int32{}
			p.stream.ReadTag2_3SVariable(group[:3])
			if err := p.applyGroup(def, &i, group[:3], current, previous, previous2); err != nil {
				return err
			}
			continue
		case EncodingTag8_4S16:
			if p.sysConfig.DataVersion < 2 {
				p.stream.ReadTag8_4S16V1(group[:4])
			} else {
				p.stream.ReadTag8_4S16V2(group[:4])
			}
			if err := p.applyGroup(def, &i, group[:4], current, previous, previous2); err != nil {
				return err
			}
			continue
		case EncodingTag8_8SVB:
			// Consecutive fields with this encoding share one bitmap.
			groupCount := 1
			for j := i + 1; j < i+8 && j < def.Count; j++ {
				if def.Encoding[j] != EncodingTag8_8SVB {
					break
				}
				groupCount++
			}
			p.stream.ReadTag8_8SVB(group[:8], groupCount)
			if err := p.applyGroup(def, &i, group[:groupCount], current, previous, previous2); err != nil {
				return err
			}
			continue
		default:
			return fmt.Errorf("unsupported field encoding %d for %q", def.Encoding[i], def.Name[i])
		}

		value, err := p.applyPrediction(i, def.Predictor[i], raw, current, previous, previous2)
		if err != nil {
			return err
		}
		current[i] = value
		i++
	}
	return nil
}

// applyGroup applies predictors to a run of fields decoded together,
// advancing the field cursor past the group.
func (p *Parser) applyGroup(def *FrameDef, i *int, raw []int32, current, previous, previous2 []int32) error {
	for _, v := range raw {
		if *i >= def.Count {
			break
		}
		value, err := p.applyPrediction(*i, def.Predictor[*i], v, current, previous, previous2)
		if err != nil {
			return err
		}
		current[*i] = value
		*i = *i + 1
	}
	return nil
}

// applyPrediction turns a raw decoded delta into the field's absolute value
// using historical context and configured constants.
func (p *Parser) applyPrediction(fieldIndex, predictor int, value int32, current, previous, previous2 []int32) (int32, error) {
	switch predictor {
	case PredictorZero:
	case PredictorPrevious:
		if previous == nil {
			break
		}
		value += previous[fieldIndex]
	case PredictorStraightLine:
		if previous == nil || previous2 == nil {
			break
		}
		value += 2*previous[fieldIndex] - previous2[fieldIndex]
	case PredictorAverage2:
		if previous == nil || previous2 == nil {
			break
		}
		// Truncating division, matching the encoder's arithmetic.
		value += (previous[fieldIndex] + previous2[fieldIndex]) / 2
	case PredictorMinthrottle:
		value += int32(p.sysConfig.MinThrottle)
	case PredictorMotor0:
		motor0 := p.frameDefs.I.FieldIndex("motor[0]")
		if motor0 < 0 {
			return 0, fmt.Errorf("%w: motor[0]", ErrMissingPredictorInput)
		}
		value += current[motor0]
	case PredictorInc:
		// Handled before decoding; reaching it here means the schema pairs
		// it with a byte-consuming encoding, which has no meaning.
		return 0, fmt.Errorf("increment predictor on encoded field %d", fieldIndex)
	case PredictorHomeCoord:
		// GPS home deltas; home tracking is not decoded, so the raw value
		// passes through.
	case Predictor1500:
		value += 1500
	case PredictorVbatRef:
		value += int32(p.sysConfig.VbatRef)
	case PredictorLastMainFrameTime:
		if previous != nil {
			value += previous[FieldIndexTime]
		}
	case PredictorMinMotor:
		value += int32(p.sysConfig.MotorOutput[0])
	default:
		return 0, fmt.Errorf("unsupported field predictor %d", predictor)
	}
	return value, nil
}
