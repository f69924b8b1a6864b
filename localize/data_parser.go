package localize

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadMap reads a landmark map file: one landmark per line, columns
// "x y id" separated by whitespace. Malformed lines are skipped.
func LoadMap(path string) (Map, error) {
	var m Map
	err := eachLine(path, func(fields []string) {
		if len(fields) < 3 {
			return
		}
		x, err1 := strconv.ParseFloat(fields[0], 64)
		y, err2 := strconv.ParseFloat(fields[1], 64)
		id, err3 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return
		}
		m.Landmarks = append(m.Landmarks, Landmark{ID: id, X: x, Y: y})
	})
	if err != nil {
		return Map{}, err
	}
	if len(m.Landmarks) == 0 {
		return Map{}, fmt.Errorf("no landmarks in %s", path)
	}
	return m, nil
}

// LoadControls reads a control file: one cycle per line, columns
// "velocity yawrate".
func LoadControls(path string) ([]Control, error) {
	var out []Control
	err := eachLine(path, func(fields []string) {
		if len(fields) < 2 {
			return
		}
		v, err1 := strconv.ParseFloat(fields[0], 64)
		yr, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return
		}
		out = append(out, Control{Velocity: v, YawRate: yr})
	})
	return out, err
}

// LoadGroundTruth reads a ground-truth pose file: one cycle per line,
// columns "x y theta".
func LoadGroundTruth(path string) ([]Fix, error) {
	var out []Fix
	err := eachLine(path, func(fields []string) {
		if len(fields) < 3 {
			return
		}
		x, err1 := strconv.ParseFloat(fields[0], 64)
		y, err2 := strconv.ParseFloat(fields[1], 64)
		t, err3 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return
		}
		out = append(out, Fix{X: x, Y: y, Theta: t})
	})
	return out, err
}

// LoadObservations reads the sensor-local observations for one cycle from
// dir/obs%06d.txt (steps are 1-based). Lines are "x y"; ids start unset.
func LoadObservations(dir string, step int) ([]LandmarkObs, error) {
	path := filepath.Join(dir, fmt.Sprintf("obs%06d.txt", step))
	var out []LandmarkObs
	err := eachLine(path, func(fields []string) {
		if len(fields) < 2 {
			return
		}
		x, err1 := strconv.ParseFloat(fields[0], 64)
		y, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return
		}
		out = append(out, LandmarkObs{ID: UnsetLandmarkID, X: x, Y: y})
	})
	return out, err
}

func eachLine(path string, fn func(fields []string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		fn(fields)
	}
	return sc.Err()
}
