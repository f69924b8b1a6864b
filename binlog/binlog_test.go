package binlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localize-go/localize"
)

func testLogMap() localize.Map {
	return localize.Map{Landmarks: []localize.Landmark{
		{ID: 1, X: 92.064, Y: -34.777},
		{ID: 2, X: 61.109, Y: -47.132},
	}}
}

func testCycles() []Cycle {
	return []Cycle{
		{
			TimestampMs: 0,
			Fix:         &localize.Fix{X: 6.27, Y: 1.95, Theta: 0},
			GroundTruth: &localize.Fix{X: 6.28, Y: 1.96, Theta: 0.001},
		},
		{
			TimestampMs: 100,
			Control:     localize.Control{Velocity: 5.0022, YawRate: 0.0012},
			Observations: []localize.LandmarkObs{
				{ID: localize.UnsetLandmarkID, X: 1.5, Y: 2.5},
				{ID: localize.UnsetLandmarkID, X: -3, Y: 0.25},
			},
		},
		{
			TimestampMs: 200,
			Control:     localize.Control{Velocity: 4.99, YawRate: -0.15},
			GroundTruth: &localize.Fix{X: 7.1, Y: 2.0, Theta: 0.01},
		},
	}
}

func TestRunLogRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.bin")
	rw, err := NewRunWriter(path, testLogMap())
	require.NoError(t, err)
	for _, c := range testCycles() {
		require.NoError(t, rw.WriteCycle(c))
	}
	require.NoError(t, rw.Close())

	p := NewRunParser(path)
	require.NoError(t, p.Parse())

	assert.Equal(t, rw.RunID(), p.RunID)
	assert.Empty(t, cmp.Diff(testLogMap(), p.Map))
	assert.Empty(t, cmp.Diff(testCycles(), p.Cycles))
}

func TestRunParserRejectsBadHeader(t *testing.T) {
	t.Parallel()

	t.Run("wrong magic", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.bin")
		require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))
		err := NewRunParser(path).Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "magic")
	})

	t.Run("short file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "short.bin")
		require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02}, 0o644))
		assert.Error(t, NewRunParser(path).Parse())
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, NewRunParser(filepath.Join(t.TempDir(), "nope.bin")).Parse())
	})
}

func TestRunParserToleratesTruncatedTail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "run.bin")
	rw, err := NewRunWriter(path, testLogMap())
	require.NoError(t, err)
	for _, c := range testCycles() {
		require.NoError(t, rw.WriteCycle(c))
	}
	require.NoError(t, rw.Close())

	// Chop off the middle of the final record, as if the process died mid-write.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trunc := filepath.Join(dir, "trunc.bin")
	require.NoError(t, os.WriteFile(trunc, data[:len(data)-10], 0o644))

	p := NewRunParser(trunc)
	require.NoError(t, p.Parse())
	assert.Len(t, p.Cycles, 2)
}

func TestWriteCycleConcurrent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.bin")
	rw, err := NewRunWriter(path, testLogMap())
	require.NoError(t, err)

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				_ = rw.WriteCycle(Cycle{TimestampMs: int64(g*1000 + i)})
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	require.NoError(t, rw.Close())

	p := NewRunParser(path)
	require.NoError(t, p.Parse())
	assert.Len(t, p.Cycles, 200)
}
