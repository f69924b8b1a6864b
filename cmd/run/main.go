package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"localize-go/binlog"
	"localize-go/localize"
)

func main() {
	dataDir := flag.String("data", "data", "Data directory (map_data.txt, control_data.txt, gt_data.txt, observation/)")
	outPath := flag.String("out", "localized.csv", "Output CSV path")
	particles := flag.Int("particles", localize.DefaultNumParticles, "Particle count")
	sensorRange := flag.Float64("range", localize.DefaultSensorRange, "Sensor range in meters")
	deltaT := flag.Float64("dt", 0.1, "Time step seconds")
	seed := flag.Uint64("seed", 1, "Noise seed (0 = nondeterministic)")
	logPath := flag.String("log", "", "Optional output run log for later replay")
	refPath := flag.String("ref", "", "Optional reference CSV for RMSE")
	maxShift := flag.Int("max-shift", 50, "Max step shift for RMSE")
	flag.Parse()

	m, err := localize.LoadMap(filepath.Join(*dataDir, "map_data.txt"))
	if err != nil {
		fmt.Printf("load map failed: %v\n", err)
		os.Exit(1)
	}
	controls, err := localize.LoadControls(filepath.Join(*dataDir, "control_data.txt"))
	if err != nil {
		fmt.Printf("load controls failed: %v\n", err)
		os.Exit(1)
	}
	gt, err := localize.LoadGroundTruth(filepath.Join(*dataDir, "gt_data.txt"))
	if err != nil {
		fmt.Printf("load ground truth failed: %v\n", err)
		os.Exit(1)
	}
	if len(gt) == 0 {
		fmt.Println("ground truth file is empty")
		os.Exit(1)
	}
	steps := len(gt)
	if len(controls) < steps-1 {
		steps = len(controls) + 1
	}
	obsDir := filepath.Join(*dataDir, "observation")

	cfg := localize.DefaultPipelineConfig()
	cfg.NumParticles = *particles
	cfg.SensorRange = *sensorRange
	cfg.Seed = *seed

	pipeline, err := localize.NewLocalizerPipeline(m, cfg)
	if err != nil {
		fmt.Printf("pipeline init failed: %v\n", err)
		os.Exit(1)
	}

	var rw *binlog.RunWriter
	if *logPath != "" {
		rw, err = binlog.NewRunWriter(*logPath, m)
		if err != nil {
			fmt.Printf("create run log failed: %v\n", err)
			os.Exit(1)
		}
		defer rw.Close()
	}

	stepMs := int64(math.Round(*deltaT * 1000.0))
	rows := [][]string{{"step", "x", "y", "theta", "err_x", "err_y", "err_yaw"}}

	// Step 0: initialize from the first ground truth pose as a simulated fix.
	fix := localize.Fix{X: gt[0].X, Y: gt[0].Y, Theta: gt[0].Theta}
	if err := pipeline.InitFromFix(0, fix); err != nil {
		fmt.Printf("init failed: %v\n", err)
		os.Exit(1)
	}
	if rw != nil {
		rw.WriteCycle(binlog.Cycle{TimestampMs: 0, Fix: &fix, GroundTruth: &gt[0]})
	}

	for step := 1; step < steps; step++ {
		ctrl := controls[step-1]
		obs, err := localize.LoadObservations(obsDir, step)
		if err != nil {
			fmt.Printf("load observations for step %d failed: %v\n", step, err)
			os.Exit(1)
		}
		res, err := pipeline.Process(int64(step)*stepMs, ctrl, obs)
		if err != nil {
			fmt.Printf("step %d failed: %v\n", step, err)
			os.Exit(1)
		}
		if res.Flag < 0 {
			fmt.Printf("step %d: estimator reset (flag %d)\n", step, res.Flag)
			continue
		}
		pipeline.TrackError(gt[step])
		rows = append(rows, []string{
			strconv.Itoa(step),
			fmt.Sprintf("%.4f", res.X),
			fmt.Sprintf("%.4f", res.Y),
			fmt.Sprintf("%.4f", res.Theta),
			fmt.Sprintf("%.4f", absF(res.X-gt[step].X)),
			fmt.Sprintf("%.4f", absF(res.Y-gt[step].Y)),
			fmt.Sprintf("%.4f", localize.NormalizeAngle(res.Theta-gt[step].Theta)),
		})
		if rw != nil {
			g := gt[step]
			rw.WriteCycle(binlog.Cycle{
				TimestampMs:  int64(step) * stepMs,
				Control:      ctrl,
				Observations: obs,
				GroundTruth:  &g,
			})
		}
	}

	if err := writeCSV(*outPath, rows); err != nil {
		fmt.Printf("write csv failed: %v\n", err)
		os.Exit(1)
	}
	avg, n := pipeline.AvgError()
	fmt.Printf("Written %d rows to %s\n", len(rows)-1, *outPath)
	fmt.Printf("Mean abs error over %d steps: x %.4f m, y %.4f m, yaw %.4f rad\n", n, avg[0], avg[1], avg[2])
	fmt.Printf("Position RMSE: %.4f m\n", rmseFromRows(rows))

	if cloud := pipeline.CloudStats(); cloud.Cov != nil {
		fmt.Printf("Final cloud spread: var_x %.5f, var_y %.5f, var_theta %.5f\n",
			cloud.Cov.At(0, 0), cloud.Cov.At(1, 1), cloud.Cov.At(2, 2))
	}

	if *refPath != "" {
		rmse, shift, err := compareWithRef(*outPath, *refPath, *maxShift)
		if err != nil {
			fmt.Printf("rmse compare failed: %v\n", err)
		} else {
			fmt.Printf("ref shift %d steps, RMSE %.3f m\n", shift, rmse)
		}
	}
}

func rmseFromRows(rows [][]string) float64 {
	if len(rows) <= 1 {
		return 0
	}
	var sum float64
	var n int
	for _, row := range rows[1:] {
		ex, err1 := strconv.ParseFloat(row[4], 64)
		ey, err2 := strconv.ParseFloat(row[5], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		sum += ex*ex + ey*ey
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func compareWithRef(predPath, refPath string, maxShift int) (float64, int, error) {
	pred, err := readXY(predPath)
	if err != nil {
		return 0, 0, err
	}
	ref, err := readXY(refPath)
	if err != nil {
		return 0, 0, err
	}
	bestShift := 0
	bestRmse := math.MaxFloat64
	for shift := -maxShift; shift <= maxShift; shift++ {
		var n int
		var sum float64
		if shift >= 0 {
			n = min(len(pred)-shift, len(ref))
			if n <= 0 {
				continue
			}
			for i := 0; i < n; i++ {
				dx := pred[i+shift][0] - ref[i][0]
				dy := pred[i+shift][1] - ref[i][1]
				sum += dx*dx + dy*dy
			}
		} else {
			s := -shift
			n = min(len(ref)-s, len(pred))
			if n <= 0 {
				continue
			}
			for i := 0; i < n; i++ {
				dx := pred[i][0] - ref[i+s][0]
				dy := pred[i][1] - ref[i+s][1]
				sum += dx*dx + dy*dy
			}
		}
		rmse := math.Sqrt(sum / float64(n))
		if rmse < bestRmse {
			bestRmse = rmse
			bestShift = shift
		}
	}
	return bestRmse, bestShift, nil
}

func readXY(path string) ([][2]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) <= 1 {
		return nil, fmt.Errorf("no rows")
	}
	header := recs[0]
	idxX := indexOf(header, "x")
	idxY := indexOf(header, "y")
	if idxX < 0 || idxY < 0 {
		return nil, fmt.Errorf("columns not found")
	}
	out := make([][2]float64, 0, len(recs)-1)
	for _, row := range recs[1:] {
		if len(row) <= idxX || len(row) <= idxY {
			continue
		}
		x, _ := strconv.ParseFloat(row[idxX], 64)
		y, _ := strconv.ParseFloat(row[idxY], 64)
		out = append(out, [2]float64{x, y})
	}
	return out, nil
}

func indexOf(arr []string, key string) int {
	for i, v := range arr {
		if strings.EqualFold(v, key) {
			return i
		}
	}
	return -1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absF(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
