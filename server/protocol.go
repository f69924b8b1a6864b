package server

import (
	"encoding/json"
	"fmt"

	"localize-go/localize"
)

// PoseMsg is a JSON pose triple shared by telemetry and answers.
type PoseMsg struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// ControlMsg is the odometry part of a telemetry message.
type ControlMsg struct {
	Velocity float64 `json:"velocity"`
	YawRate  float64 `json:"yaw_rate"`
}

// Telemetry is one inbound cycle from an agent. Fix is supplied until the
// filter initializes (and may keep arriving; it is ignored afterwards).
// ObsX/ObsY are parallel sensor-local observation coordinates. GroundTruth
// is optional and only used for error tracking during evaluation drives.
type Telemetry struct {
	AgentID     int         `json:"agent_id"`
	TimestampMs int64       `json:"ts"`
	Fix         *PoseMsg    `json:"fix,omitempty"`
	Control     *ControlMsg `json:"control,omitempty"`
	ObsX        []float64   `json:"obs_x"`
	ObsY        []float64   `json:"obs_y"`
	GroundTruth *PoseMsg    `json:"ground_truth,omitempty"`
}

// PoseAnswer is the per-cycle reply: the best-estimate pose plus the best
// particle's diagnostic association trace.
type PoseAnswer struct {
	AgentID      int     `json:"agent_id"`
	TimestampMs  int64   `json:"ts"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Theta        float64 `json:"theta"`
	Flag         int     `json:"flag"`
	BestWeight   float64 `json:"best_weight"`
	Associations string  `json:"associations"`
	SenseX       string  `json:"sense_x"`
	SenseY       string  `json:"sense_y"`
}

// ParseTelemetry decodes and validates one telemetry message.
func ParseTelemetry(data []byte) (*Telemetry, error) {
	var t Telemetry
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("telemetry decode: %w", err)
	}
	if len(t.ObsX) != len(t.ObsY) {
		return nil, fmt.Errorf("observation length mismatch: %d x vs %d y", len(t.ObsX), len(t.ObsY))
	}
	if t.TimestampMs < 0 {
		return nil, fmt.Errorf("invalid timestamp: %d", t.TimestampMs)
	}
	return &t, nil
}

// Observations converts the parallel coordinate arrays into LandmarkObs with
// unset ids.
func (t *Telemetry) Observations() []localize.LandmarkObs {
	obs := make([]localize.LandmarkObs, len(t.ObsX))
	for i := range t.ObsX {
		obs[i] = localize.LandmarkObs{
			ID: localize.UnsetLandmarkID,
			X:  t.ObsX[i],
			Y:  t.ObsY[i],
		}
	}
	return obs
}

func (t *Telemetry) control() localize.Control {
	if t.Control == nil {
		return localize.Control{}
	}
	return localize.Control{Velocity: t.Control.Velocity, YawRate: t.Control.YawRate}
}

func (t *Telemetry) fix() *localize.Fix {
	if t.Fix == nil {
		return nil
	}
	return &localize.Fix{X: t.Fix.X, Y: t.Fix.Y, Theta: t.Fix.Theta}
}

func (t *Telemetry) groundTruth() *localize.Fix {
	if t.GroundTruth == nil {
		return nil
	}
	return &localize.Fix{X: t.GroundTruth.X, Y: t.GroundTruth.Y, Theta: t.GroundTruth.Theta}
}
