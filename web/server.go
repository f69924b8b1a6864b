package web

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
)

// Server hosts the visualization frontend: a WebSocket hub broadcasting pose
// updates plus static assets and the landmark map file.
type Server struct {
	Hub *Hub
}

func NewServer() *Server {
	return &Server{
		Hub: NewHub(),
	}
}

// Start blocks serving HTTP on the given port. distDir holds the frontend
// build (optional); dataDir holds the map file served to the frontend.
func (s *Server) Start(port int, distDir string, dataDir string) {
	go s.Hub.Run()

	mux := http.NewServeMux()

	// WebSocket pose stream
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.Hub, w, r)
	})

	// Map data for the frontend renderer
	if dataDir != "" {
		mux.HandleFunc("/map_data.txt", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(dataDir, "map_data.txt"))
		})
		obsDir := filepath.Join(dataDir, "observation")
		if _, err := os.Stat(obsDir); err == nil {
			mux.Handle("/observation/", http.StripPrefix("/observation/", http.FileServer(http.Dir(obsDir))))
		}
	}

	// Static frontend
	if distDir != "" {
		fs := http.FileServer(http.Dir(distDir))
		mux.Handle("/", fs)
	}

	addr := fmt.Sprintf(":%d", port)
	log.Printf("HTTP server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}
