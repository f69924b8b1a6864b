package main

import (
	"flag"
	"fmt"
	"os"

	"localize-go/binlog"
	"localize-go/localize"
)

func main() {
	logPath := flag.String("log", "", "Input run log file")
	run := flag.Bool("run", false, "Also run the estimator over the log and report accuracy")
	particles := flag.Int("particles", localize.DefaultNumParticles, "Particle count for -run")
	seed := flag.Uint64("seed", 1, "Noise seed for -run")
	flag.Parse()

	if *logPath == "" {
		fmt.Println("--log required")
		os.Exit(1)
	}

	parser := binlog.NewRunParser(*logPath)
	if err := parser.Parse(); err != nil {
		fmt.Printf("parse run log failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run      %s\n", parser.RunID)
	fmt.Printf("Landmarks %d\n", len(parser.Map.Landmarks))
	fmt.Printf("Cycles   %d\n", len(parser.Cycles))
	if len(parser.Cycles) == 0 {
		return
	}

	first := parser.Cycles[0].TimestampMs
	last := parser.Cycles[len(parser.Cycles)-1].TimestampMs
	fmt.Printf("Span     %d ms (%d .. %d)\n", last-first, first, last)

	minObs, maxObs, totalObs := len(parser.Cycles[0].Observations), 0, 0
	fixes, gts := 0, 0
	for _, c := range parser.Cycles {
		n := len(c.Observations)
		if n < minObs {
			minObs = n
		}
		if n > maxObs {
			maxObs = n
		}
		totalObs += n
		if c.Fix != nil {
			fixes++
		}
		if c.GroundTruth != nil {
			gts++
		}
	}
	fmt.Printf("Obs/cycle min %d max %d avg %.1f\n",
		minObs, maxObs, float64(totalObs)/float64(len(parser.Cycles)))
	fmt.Printf("Fixes    %d, ground truth %d\n", fixes, gts)

	if !*run {
		return
	}

	cfg := localize.DefaultPipelineConfig()
	cfg.NumParticles = *particles
	cfg.Seed = *seed
	lp, err := localize.NewLocalizerPipeline(parser.Map, cfg)
	if err != nil {
		fmt.Printf("pipeline init failed: %v\n", err)
		os.Exit(1)
	}

	resets := 0
	for _, c := range parser.Cycles {
		if !lp.Initialized() {
			if c.Fix == nil {
				continue
			}
			if err := lp.InitFromFix(c.TimestampMs, *c.Fix); err != nil {
				fmt.Printf("init failed: %v\n", err)
				os.Exit(1)
			}
			continue
		}
		res, err := lp.Process(c.TimestampMs, c.Control, c.Observations)
		if err != nil {
			fmt.Printf("cycle at %d failed: %v\n", c.TimestampMs, err)
			os.Exit(1)
		}
		if res.Flag == -2 {
			resets++
		}
		if c.GroundTruth != nil && res.Flag > 0 {
			lp.TrackError(*c.GroundTruth)
		}
	}

	avg, n := lp.AvgError()
	fmt.Printf("Estimator: %d tracked cycles, %d resets\n", n, resets)
	if n > 0 {
		fmt.Printf("Mean abs error: x %.4f m, y %.4f m, yaw %.4f rad\n", avg[0], avg[1], avg[2])
	}
	if cloud := lp.CloudStats(); cloud.Cov != nil {
		fmt.Printf("Cloud mean (%.3f, %.3f, %.4f), var_x %.5f var_y %.5f\n",
			cloud.MeanX, cloud.MeanY, cloud.MeanTheta, cloud.Cov.At(0, 0), cloud.Cov.At(1, 1))
	}
}
