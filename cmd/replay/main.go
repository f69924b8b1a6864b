package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"localize-go/binlog"
	"localize-go/server"
)

func main() {
	logPath := flag.String("log", "", "Input run log file")
	destURL := flag.String("dest", "ws://127.0.0.1:4567/telemetry", "Destination WebSocket URL")
	agentID := flag.Int("agent", 1, "Agent ID stamped on replayed telemetry")
	speed := flag.Float64("speed", 1.0, "Replay speed multiplier (0 for max speed)")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("--log required")
	}

	parser := binlog.NewRunParser(*logPath)
	if err := parser.Parse(); err != nil {
		log.Fatalf("parse run log failed: %v", err)
	}
	log.Printf("Run %s: %d landmarks, %d cycles", parser.RunID, len(parser.Map.Landmarks), len(parser.Cycles))

	conn, _, err := websocket.DefaultDialer.Dial(*destURL, nil)
	if err != nil {
		log.Fatalf("dial %s failed: %v", *destURL, err)
	}
	defer conn.Close()

	// Drain answers so the peer's write buffer never fills.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Printf("Replaying %s to %s...", *logPath, *destURL)

	var firstTs int64 = -1
	var startReal time.Time
	count := 0

	for _, cyc := range parser.Cycles {
		if firstTs < 0 {
			firstTs = cyc.TimestampMs
			startReal = time.Now()
		} else if *speed > 0 {
			targetDelay := time.Duration(float64(cyc.TimestampMs-firstTs) / *speed * float64(time.Millisecond))
			elapsed := time.Since(startReal)
			if targetDelay > elapsed {
				time.Sleep(targetDelay - elapsed)
			}
		}

		tel := server.TelemetryFromCycle(*agentID, cyc)
		data, err := json.Marshal(tel)
		if err != nil {
			log.Fatalf("marshal cycle failed: %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Fatalf("write failed: %v", err)
		}
		count++
		if count%100 == 0 {
			fmt.Printf("\rSent %d cycles...", count)
		}
	}
	fmt.Printf("\nDone. Sent %d cycles.\n", count)
}
