package server

import (
	"fmt"
	"log"
	"time"

	"localize-go/binlog"
)

// Replay drives the server from a recorded run log instead of a live
// connection, pacing cycles by their recorded timestamps. speed is a
// multiplier; 0 replays as fast as possible.
func (s *WsServer) Replay(path string, speed float64) error {
	parser := binlog.NewRunParser(path)
	if err := parser.Parse(); err != nil {
		return fmt.Errorf("parse run log: %w", err)
	}
	if len(parser.Map.Landmarks) != len(s.m.Landmarks) {
		log.Printf("WARNING: log map has %d landmarks, server map has %d",
			len(parser.Map.Landmarks), len(s.m.Landmarks))
	}

	log.Printf("Replaying %s (run %s, %d cycles) at %.1fx speed...",
		path, parser.RunID, len(parser.Cycles), speed)

	var firstTs int64
	startReal := time.Now()

	for i, c := range parser.Cycles {
		if i == 0 {
			firstTs = c.TimestampMs
			startReal = time.Now()
		} else if speed > 0 {
			targetDelay := time.Duration(float64(c.TimestampMs-firstTs) / speed * float64(time.Millisecond))
			elapsed := time.Since(startReal)
			if targetDelay > elapsed {
				time.Sleep(targetDelay - elapsed)
			}
		}

		if _, err := s.HandleTelemetry(TelemetryFromCycle(0, c)); err != nil {
			log.Printf("replay cycle %d failed: %v", i, err)
		}
	}
	log.Printf("Replay done. %d cycles processed.", len(parser.Cycles))
	return nil
}

// TelemetryFromCycle reconstructs the wire-level telemetry of a recorded cycle.
func TelemetryFromCycle(agentID int, c binlog.Cycle) *Telemetry {
	t := &Telemetry{
		AgentID:     agentID,
		TimestampMs: c.TimestampMs,
		Control:     &ControlMsg{Velocity: c.Control.Velocity, YawRate: c.Control.YawRate},
	}
	if c.Fix != nil {
		t.Fix = &PoseMsg{X: c.Fix.X, Y: c.Fix.Y, Theta: c.Fix.Theta}
	}
	if c.GroundTruth != nil {
		t.GroundTruth = &PoseMsg{X: c.GroundTruth.X, Y: c.GroundTruth.Y, Theta: c.GroundTruth.Theta}
	}
	for _, obs := range c.Observations {
		t.ObsX = append(t.ObsX, obs.X)
		t.ObsY = append(t.ObsY, obs.Y)
	}
	return t
}
