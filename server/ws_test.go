package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localize-go/localize"
)

func testServer(t *testing.T) *WsServer {
	t.Helper()
	m := localize.Map{Landmarks: []localize.Landmark{
		{ID: 1, X: 5, Y: 5}, {ID: 2, X: 10, Y: -5}, {ID: 3, X: 15, Y: 5},
	}}
	cfg := localize.DefaultPipelineConfig()
	cfg.Seed = 13
	return NewWsServer(m, cfg)
}

func obsFor(x, y float64, lms []localize.Landmark) ([]float64, []float64) {
	xs := make([]float64, len(lms))
	ys := make([]float64, len(lms))
	for i, lm := range lms {
		xs[i] = lm.X - x
		ys[i] = lm.Y - y
	}
	return xs, ys
}

func TestHandleTelemetry(t *testing.T) {
	t.Parallel()

	t.Run("waits for a fix", func(t *testing.T) {
		t.Parallel()
		s := testServer(t)
		ans, err := s.HandleTelemetry(&Telemetry{AgentID: 1, TimestampMs: 100})
		require.NoError(t, err)
		assert.Equal(t, -1, ans.Flag)
	})

	t.Run("initializes on the first fix and then estimates", func(t *testing.T) {
		t.Parallel()
		s := testServer(t)

		ans, err := s.HandleTelemetry(&Telemetry{
			AgentID:     1,
			TimestampMs: 0,
			Fix:         &PoseMsg{X: 0, Y: 0, Theta: 0},
			Control:     &ControlMsg{},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, ans.Flag)

		xs, ys := obsFor(0.2, 0, s.m.Landmarks)
		ans, err = s.HandleTelemetry(&Telemetry{
			AgentID:     1,
			TimestampMs: 100,
			Control:     &ControlMsg{Velocity: 2},
			ObsX:        xs,
			ObsY:        ys,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, ans.Flag)
		assert.Greater(t, ans.BestWeight, 0.0)
		assert.InDelta(t, 0.2, ans.X, 1.0)
		assert.NotEmpty(t, ans.Associations)
	})

	t.Run("agents get independent pipelines", func(t *testing.T) {
		t.Parallel()
		s := testServer(t)

		a1, err := s.HandleTelemetry(&Telemetry{
			AgentID: 1, TimestampMs: 0, Fix: &PoseMsg{X: 1, Y: 1},
		})
		require.NoError(t, err)
		a2, err := s.HandleTelemetry(&Telemetry{
			AgentID: 2, TimestampMs: 0, Fix: &PoseMsg{X: 12, Y: -3},
		})
		require.NoError(t, err)

		assert.InDelta(t, 1.0, a1.X, 1.5)
		assert.InDelta(t, 12.0, a2.X, 1.5)
		assert.Len(t, s.GetAgents(), 2)
	})
}
