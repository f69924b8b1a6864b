package binlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/google/uuid"

	"localize-go/localize"
)

// RunParser reads a run log written by RunWriter back into memory.
type RunParser struct {
	Path string

	RunID  uuid.UUID
	Map    localize.Map
	Cycles []Cycle
}

func NewRunParser(path string) *RunParser {
	return &RunParser{Path: path}
}

// Parse loads the whole log. A truncated final record is tolerated (the run
// may have been cut off mid-write); anything else malformed is an error.
func (p *RunParser) Parse() error {
	f, err := os.Open(p.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := make([]byte, globalHdrLen)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return fmt.Errorf("run header: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(hdr[0:4]); magic != RunMagic {
		return fmt.Errorf("invalid magic: 0x%x", magic)
	}
	if ver := binary.LittleEndian.Uint16(hdr[4:6]); ver != RunVersion {
		return fmt.Errorf("unsupported version: %d", ver)
	}
	copy(p.RunID[:], hdr[8:24])
	landmarkCount := int(binary.LittleEndian.Uint32(hdr[24:28]))

	lmBuf := make([]byte, landmarkRecLen)
	for i := 0; i < landmarkCount; i++ {
		if _, err := io.ReadFull(f, lmBuf); err != nil {
			return fmt.Errorf("landmark record %d: %w", i, err)
		}
		p.Map.Landmarks = append(p.Map.Landmarks, localize.Landmark{
			ID: int(binary.LittleEndian.Uint32(lmBuf[0:4])),
			X:  math.Float64frombits(binary.LittleEndian.Uint64(lmBuf[4:12])),
			Y:  math.Float64frombits(binary.LittleEndian.Uint64(lmBuf[12:20])),
		})
	}

	cycBuf := make([]byte, cycleHdrLen)
	poseBuf := make([]byte, 24)
	obsBuf := make([]byte, 16)
	for {
		if _, err := io.ReadFull(f, cycBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("cycle header: %w", err)
		}

		c := Cycle{
			TimestampMs: int64(binary.LittleEndian.Uint64(cycBuf[0:8])),
			Control: localize.Control{
				Velocity: math.Float64frombits(binary.LittleEndian.Uint64(cycBuf[12:20])),
				YawRate:  math.Float64frombits(binary.LittleEndian.Uint64(cycBuf[20:28])),
			},
		}
		flags := binary.LittleEndian.Uint16(cycBuf[8:10])
		obsCount := int(binary.LittleEndian.Uint16(cycBuf[10:12]))

		truncated := false
		if flags&flagHasFix != 0 {
			fix, err := readPose(f, poseBuf)
			if err != nil {
				truncated = true
			} else {
				c.Fix = fix
			}
		}
		if !truncated {
			for i := 0; i < obsCount; i++ {
				if _, err := io.ReadFull(f, obsBuf); err != nil {
					truncated = true
					break
				}
				c.Observations = append(c.Observations, localize.LandmarkObs{
					ID: localize.UnsetLandmarkID,
					X:  math.Float64frombits(binary.LittleEndian.Uint64(obsBuf[0:8])),
					Y:  math.Float64frombits(binary.LittleEndian.Uint64(obsBuf[8:16])),
				})
			}
		}
		if !truncated && flags&flagHasGT != 0 {
			gt, err := readPose(f, poseBuf)
			if err != nil {
				truncated = true
			} else {
				c.GroundTruth = gt
			}
		}
		if truncated {
			break
		}
		p.Cycles = append(p.Cycles, c)
	}
	return nil
}

func readPose(r io.Reader, buf []byte) (*localize.Fix, error) {
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return &localize.Fix{
		X:     math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8])),
		Y:     math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])),
		Theta: math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}
