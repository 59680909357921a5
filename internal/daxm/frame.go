package daxm

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Frame identifies one of the beamline reference frames.
type Frame string

const (
	// FrameAPS is the synchrotron laboratory frame.
	FrameAPS Frame = "APS"
	// FrameTSL is the EBSD indexing frame.
	FrameTSL Frame = "TSL"
	// FrameXHF is the sample surface frame.
	FrameXHF Frame = "XHF"
)

// Tilt angles between the frames, radians about the shared +x axis.
const (
	thetaXHFTSL = -math.Pi         // XHF <-> TSL
	thetaXHFAPS = -math.Pi / 4     // XHF <-> APS
	thetaAPSTSL = -3 * math.Pi / 4 // APS <-> TSL
)

// rotations[target][source] is the passive rotation taking components
// expressed in source to components expressed in target. Pairs are
// stored explicitly rather than composed so each matches the beamline
// calibration it was measured from.
var rotations = buildRotations()

func buildRotations() map[Frame]map[Frame]*mat.Dense {
	rXHF2TSL := rotX(thetaXHFTSL)
	rXHF2APS := rotX(thetaXHFAPS)
	rAPS2TSL := rotX(thetaAPSTSL)

	return map[Frame]map[Frame]*mat.Dense{
		FrameAPS: {
			FrameAPS: identity3(),
			FrameTSL: rAPS2TSL,
			FrameXHF: rXHF2APS,
		},
		FrameTSL: {
			FrameAPS: transposed(rAPS2TSL),
			FrameTSL: identity3(),
			FrameXHF: rXHF2TSL,
		},
		FrameXHF: {
			FrameAPS: transposed(rXHF2APS),
			FrameTSL: transposed(rXHF2TSL),
			FrameXHF: identity3(),
		},
	}
}

// rotX returns the passive rotation by theta about +x.
func rotX(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

func transposed(m *mat.Dense) *mat.Dense {
	var t mat.Dense
	t.CloneFrom(m.T())
	return &t
}

// Rotation returns a copy of the passive rotation mapping vector
// components expressed in source to components expressed in target.
// Both frames must be registered; otherwise ErrUnknownFrame.
func Rotation(target, source Frame) (*mat.Dense, error) {
	row, ok := rotations[target]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, target)
	}
	g, ok := row[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, source)
	}
	return mat.DenseCopyOf(g), nil
}

// Frames lists the registered reference frames in a stable order.
func Frames() []Frame {
	return []Frame{FrameAPS, FrameTSL, FrameXHF}
}

// ParseFrame maps a case-insensitive frame name to its Frame constant.
func ParseFrame(name string) (Frame, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case string(FrameAPS):
		return FrameAPS, nil
	case string(FrameTSL):
		return FrameTSL, nil
	case string(FrameXHF):
		return FrameXHF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFrame, name)
	}
}
