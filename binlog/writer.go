package binlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/google/uuid"

	"localize-go/localize"
)

const (
	RunMagic   = 0xB10CA55E
	RunVersion = 1

	globalHdrLen   = 28 // magic(4) version(2) reserved(2) uuid(16) landmarkCount(4)
	landmarkRecLen = 20 // id(4) x(8) y(8)
	cycleHdrLen    = 28 // ts(8) flags(2) obsCount(2) velocity(8) yawrate(8)

	flagHasFix = 0x1
	flagHasGT  = 0x2
)

// Cycle is one recorded telemetry cycle: the motion control, the raw
// sensor-local observations, and optionally the seeding fix and the
// ground-truth pose.
type Cycle struct {
	TimestampMs  int64
	Control      localize.Control
	Fix          *localize.Fix
	Observations []localize.LandmarkObs
	GroundTruth  *localize.Fix
}

// RunWriter records a localization run to a self-contained binary log:
// a global header with a fresh run id and the landmark map, then one record
// per cycle. Safe for use from multiple goroutines.
type RunWriter struct {
	mu    sync.Mutex
	w     io.Writer
	buf   []byte
	runID uuid.UUID
}

// NewRunWriter creates the log file and writes the global header and map.
func NewRunWriter(path string, m localize.Map) (*RunWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	rw := &RunWriter{
		w:     f,
		buf:   make([]byte, 64), // reused buffer for fixed-size records
		runID: uuid.New(),
	}

	if err := rw.writeGlobalHeader(m); err != nil {
		f.Close()
		return nil, err
	}
	return rw, nil
}

// RunID returns the id assigned to this run.
func (rw *RunWriter) RunID() uuid.UUID {
	return rw.runID
}

func (rw *RunWriter) writeGlobalHeader(m localize.Map) error {
	b := make([]byte, globalHdrLen)
	binary.LittleEndian.PutUint32(b[0:], RunMagic)
	binary.LittleEndian.PutUint16(b[4:], RunVersion)
	// reserved = 0
	copy(b[8:24], rw.runID[:])
	binary.LittleEndian.PutUint32(b[24:], uint32(len(m.Landmarks)))
	if _, err := rw.w.Write(b); err != nil {
		return err
	}

	for _, lm := range m.Landmarks {
		binary.LittleEndian.PutUint32(rw.buf[0:], uint32(lm.ID))
		binary.LittleEndian.PutUint64(rw.buf[4:], math.Float64bits(lm.X))
		binary.LittleEndian.PutUint64(rw.buf[12:], math.Float64bits(lm.Y))
		if _, err := rw.w.Write(rw.buf[:landmarkRecLen]); err != nil {
			return err
		}
	}
	return nil
}

// WriteCycle appends one cycle record.
func (rw *RunWriter) WriteCycle(c Cycle) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if len(c.Observations) > math.MaxUint16 {
		return fmt.Errorf("too many observations: %d", len(c.Observations))
	}

	var flags uint16
	if c.Fix != nil {
		flags |= flagHasFix
	}
	if c.GroundTruth != nil {
		flags |= flagHasGT
	}

	binary.LittleEndian.PutUint64(rw.buf[0:], uint64(c.TimestampMs))
	binary.LittleEndian.PutUint16(rw.buf[8:], flags)
	binary.LittleEndian.PutUint16(rw.buf[10:], uint16(len(c.Observations)))
	binary.LittleEndian.PutUint64(rw.buf[12:], math.Float64bits(c.Control.Velocity))
	binary.LittleEndian.PutUint64(rw.buf[20:], math.Float64bits(c.Control.YawRate))
	if _, err := rw.w.Write(rw.buf[:cycleHdrLen]); err != nil {
		return err
	}

	if c.Fix != nil {
		if err := rw.writePose(c.Fix.X, c.Fix.Y, c.Fix.Theta); err != nil {
			return err
		}
	}
	for _, obs := range c.Observations {
		binary.LittleEndian.PutUint64(rw.buf[0:], math.Float64bits(obs.X))
		binary.LittleEndian.PutUint64(rw.buf[8:], math.Float64bits(obs.Y))
		if _, err := rw.w.Write(rw.buf[:16]); err != nil {
			return err
		}
	}
	if c.GroundTruth != nil {
		if err := rw.writePose(c.GroundTruth.X, c.GroundTruth.Y, c.GroundTruth.Theta); err != nil {
			return err
		}
	}
	return nil
}

func (rw *RunWriter) writePose(x, y, theta float64) error {
	binary.LittleEndian.PutUint64(rw.buf[0:], math.Float64bits(x))
	binary.LittleEndian.PutUint64(rw.buf[8:], math.Float64bits(y))
	binary.LittleEndian.PutUint64(rw.buf[16:], math.Float64bits(theta))
	_, err := rw.w.Write(rw.buf[:24])
	return err
}

// Close flushes and closes the underlying file.
func (rw *RunWriter) Close() error {
	if c, ok := rw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
