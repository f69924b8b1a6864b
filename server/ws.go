package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"localize-go/binlog"
	"localize-go/localize"
	"localize-go/publish"
	"localize-go/web"
)

const DefaultPort = 4567

// WsServer ingests telemetry over WebSocket, drives one localization pipeline
// per agent, and answers each cycle with the best-estimate pose. Optional
// collaborators: a run recorder, a downstream pose publisher, and the
// visualization hub.
type WsServer struct {
	m   localize.Map
	cfg localize.PipelineConfig

	httpSrv  *http.Server
	upgrader websocket.Upgrader

	recorder  *binlog.RunWriter
	publisher *publish.Sender
	webHub    *web.Hub

	// AgentID -> pipeline and last answer
	pipelines  map[int]*localize.LocalizerPipeline
	agentState map[int]*PoseAnswer
	seq        uint16
	mu         sync.Mutex
}

func NewWsServer(m localize.Map, cfg localize.PipelineConfig) *WsServer {
	return &WsServer{
		m:   m,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pipelines:  make(map[int]*localize.LocalizerPipeline),
		agentState: make(map[int]*PoseAnswer),
	}
}

func (s *WsServer) SetRecorder(rw *binlog.RunWriter) {
	s.recorder = rw
}

func (s *WsServer) SetPublisher(snd *publish.Sender) {
	s.publisher = snd
}

func (s *WsServer) SetWebHub(h *web.Hub) {
	s.webHub = h
}

// GetAgents returns the last known answer for every agent.
func (s *WsServer) GetAgents() []*PoseAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()
	agents := make([]*PoseAnswer, 0, len(s.agentState))
	for _, a := range s.agentState {
		agents = append(agents, a)
	}
	return agents
}

// Start blocks serving the telemetry endpoint on /telemetry.
func (s *WsServer) Start(port int) error {
	if port == 0 {
		port = DefaultPort
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/telemetry", s.serveTelemetry)

	s.httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	log.Printf("Telemetry server listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *WsServer) Stop() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
}

func (s *WsServer) serveTelemetry(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("read error: %v", err)
			}
			return
		}

		t, err := ParseTelemetry(data)
		if err != nil {
			log.Printf("bad telemetry: %v", err)
			continue
		}

		ans, err := s.HandleTelemetry(t)
		if err != nil {
			log.Printf("cycle failed: %v", err)
			continue
		}
		if err := conn.WriteJSON(ans); err != nil {
			log.Printf("write error: %v", err)
			return
		}
	}
}

// HandleTelemetry runs one telemetry cycle through the agent's pipeline and
// fans the result out to the recorder, publisher and web hub.
func (s *WsServer) HandleTelemetry(t *Telemetry) (*PoseAnswer, error) {
	if s.recorder != nil {
		err := s.recorder.WriteCycle(binlog.Cycle{
			TimestampMs:  t.TimestampMs,
			Control:      t.control(),
			Fix:          t.fix(),
			Observations: t.Observations(),
			GroundTruth:  t.groundTruth(),
		})
		if err != nil {
			log.Printf("record cycle: %v", err)
		}
	}

	s.mu.Lock()
	lp, ok := s.pipelines[t.AgentID]
	s.mu.Unlock()
	if !ok {
		var err error
		lp, err = localize.NewLocalizerPipeline(s.m, s.cfg)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.pipelines[t.AgentID] = lp
		s.mu.Unlock()
	}

	if !lp.Initialized() {
		fix := t.fix()
		if fix == nil {
			return &PoseAnswer{AgentID: t.AgentID, TimestampMs: t.TimestampMs, Flag: -1}, nil
		}
		if err := lp.InitFromFix(t.TimestampMs, *fix); err != nil {
			return nil, err
		}
	}

	res, err := lp.Process(t.TimestampMs, t.control(), t.Observations())
	if err != nil {
		return nil, err
	}
	if gt := t.groundTruth(); gt != nil && res.Flag > 0 {
		lp.TrackError(*gt)
	}

	ans := &PoseAnswer{
		AgentID:      t.AgentID,
		TimestampMs:  res.TimestampMs,
		X:            res.X,
		Y:            res.Y,
		Theta:        res.Theta,
		Flag:         res.Flag,
		BestWeight:   res.BestWeight,
		Associations: res.Associations,
		SenseX:       res.SenseX,
		SenseY:       res.SenseY,
	}
	s.sendResult(ans)
	return ans, nil
}

func (s *WsServer) sendResult(ans *PoseAnswer) {
	s.mu.Lock()
	s.agentState[ans.AgentID] = ans
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	// Only publish valid poses downstream.
	if ans.Flag >= 1 && s.publisher != nil {
		msg := publish.FormatPose(ans.AgentID, ans.TimestampMs, seq, ans.X, ans.Y, ans.Theta)
		s.publisher.Send(msg, publish.FlagPose)
	}

	if s.webHub != nil {
		b, _ := json.Marshal(ans)
		s.webHub.Broadcast(b)
	}
}
