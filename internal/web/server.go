// Package web provides the node's HTTP console: a status page and JSON,
// a command input and a live debug log over a websocket.
package web

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sweeney/nodekit/internal/status"
)

// CommandQueueSize bounds commands submitted but not yet drained by the
// controller.
const CommandQueueSize = 16

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN console, no origin policy
	},
}

// Server serves the console over HTTP. Handlers never touch node state
// directly: they read tracker snapshots and queue commands for the
// controller to drain.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	logs       *LogRing
	commands   chan string
}

// New creates a Server that reads state from tracker and lines from logs.
func New(addr string, tracker *status.Tracker, logs *LogRing) *Server {
	s := &Server{
		tracker:  tracker,
		logs:     logs,
		commands: make(chan string, CommandQueueSize),
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	return s
}

// Routes returns the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/logs", s.handleLogs)
	r.Get("/ws", s.handleWebSocket)
	r.Post("/command", s.handleCommand)
	return r
}

// Commands delivers submitted command lines in arrival order.
func (s *Server) Commands() <-chan string {
	return s.commands
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.logs.Lines())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LogsJSON{Lines: s.logs.Lines()})
}

// handleCommand accepts a form field "cmd" or a plain text body.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var line string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, CommandJSON{Error: err.Error()})
			return
		}
		line = r.PostForm.Get("cmd")
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, 512))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, CommandJSON{Error: err.Error()})
			return
		}
		line = string(body)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		writeJSON(w, http.StatusBadRequest, CommandJSON{Error: "empty command"})
		return
	}

	select {
	case s.commands <- line:
	default:
		writeJSON(w, http.StatusServiceUnavailable, CommandJSON{Command: line, Error: "command queue full"})
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandJSON{Accepted: true, Command: line})
}

// handleWebSocket streams the backlog then every new debug line as a text
// message until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	backlog, lines, cancel := s.logs.Subscribe()
	defer cancel()

	// Reader detects the close; incoming frames are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(line string) bool {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, []byte(line)) == nil
	}
	for _, line := range backlog {
		if !send(line) {
			return
		}
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case line := <-lines:
			if !send(line) {
				return
			}
		}
	}
}
