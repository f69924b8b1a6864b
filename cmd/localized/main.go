package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"localize-go/binlog"
	"localize-go/localize"
	"localize-go/publish"
	"localize-go/server"
	"localize-go/web"
)

func main() {
	port := flag.Int("port", server.DefaultPort, "Telemetry WebSocket port")
	httpPort := flag.Int("http", 0, "Visualization HTTP port (e.g. 8080). 0 to disable.")
	mapPath := flag.String("map", "data/map_data.txt", "Path to landmark map file")
	particles := flag.Int("particles", localize.DefaultNumParticles, "Particle count")
	sensorRange := flag.Float64("range", localize.DefaultSensorRange, "Sensor range in meters")
	seed := flag.Uint64("seed", 0, "Noise seed (0 = nondeterministic)")
	stdInit := flag.String("std-init", "", "Initial fix sigma override as x,y,theta (e.g. 0.3,0.3,0.01)")
	stdPos := flag.String("std-pos", "", "Process noise sigma override as x,y,theta")
	stdLm := flag.String("std-lm", "", "Landmark sigma override as x,y")
	replayPath := flag.String("replay", "", "Drive the server from a recorded run log instead of live telemetry")
	replaySpeed := flag.Float64("replay-speed", 1.0, "Replay speed multiplier (0 for max speed)")
	logPath := flag.String("log", "", "Path to output run log (optional; directory gets an auto name)")
	feedUDP := flag.String("feed-udp", "", "Downstream pose feed UDP address (optional)")
	feedTCP := flag.String("feed-tcp", "", "Downstream pose feed TCP address (optional)")
	feedHdr := flag.String("feed-hdr", "", "Header string prepended to feed lines")
	flag.Parse()

	m, err := localize.LoadMap(*mapPath)
	if err != nil {
		log.Fatalf("load map: %v", err)
	}
	log.Printf("Loaded %d landmarks from %s", len(m.Landmarks), *mapPath)

	cfg := localize.DefaultPipelineConfig()
	cfg.NumParticles = *particles
	cfg.SensorRange = *sensorRange
	cfg.Seed = *seed
	if *stdInit != "" {
		cfg.StdInit = parseSigma3(*stdInit)
	}
	if *stdPos != "" {
		cfg.StdPos = parseSigma3(*stdPos)
	}
	if *stdLm != "" {
		cfg.StdLandmark = parseSigma2(*stdLm)
	}

	wsSvr := server.NewWsServer(m, cfg)

	if *httpPort > 0 {
		webSvr := web.NewServer()
		go webSvr.Start(*httpPort, "", filepath.Dir(*mapPath))
		wsSvr.SetWebHub(webSvr.Hub)
	}

	if *feedUDP != "" || *feedTCP != "" {
		sender := publish.NewSender()
		sender.SetHeader(*feedHdr)
		if *feedUDP != "" {
			if err := sender.AddUDPTarget(*feedUDP, publish.FlagPose); err != nil {
				log.Fatalf("feed UDP target: %v", err)
			}
			log.Printf("Added pose feed UDP target: %s", *feedUDP)
		}
		if *feedTCP != "" {
			sender.AddTCPTarget(*feedTCP, publish.FlagPose)
			log.Printf("Added pose feed TCP target: %s", *feedTCP)
		}
		if err := sender.Start(); err != nil {
			log.Fatalf("start feed sender: %v", err)
		}
		defer sender.Stop()
		wsSvr.SetPublisher(sender)
	}

	if *logPath != "" {
		path := *logPath
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = fmt.Sprintf("%s/RUN_%s.bin", path, time.Now().Format("20060102150405"))
		}
		rw, err := binlog.NewRunWriter(path, m)
		if err != nil {
			log.Fatalf("create run log: %v", err)
		}
		defer rw.Close()
		wsSvr.SetRecorder(rw)
		log.Printf("Recording run %s to %s", rw.RunID(), path)
	}

	if *replayPath != "" {
		if err := wsSvr.Replay(*replayPath, *replaySpeed); err != nil {
			log.Fatalf("replay: %v", err)
		}
		return
	}

	go func() {
		if err := wsSvr.Start(*port); err != nil {
			log.Fatalf("telemetry server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	wsSvr.Stop()
}

func parseSigma3(s string) [3]float64 {
	v := parseSigmas(s, 3)
	return [3]float64{v[0], v[1], v[2]}
}

func parseSigma2(s string) [2]float64 {
	v := parseSigmas(s, 2)
	return [2]float64{v[0], v[1]}
}

func parseSigmas(s string, n int) []float64 {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		log.Fatalf("sigma override %q: want %d comma-separated values", s, n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			log.Fatalf("sigma override %q: %v", s, err)
		}
		out[i] = v
	}
	return out
}
