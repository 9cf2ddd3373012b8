// Package web serves the visualization over HTTP with live reload:
// connected pages re-render whenever the database file changes on
// disk.
package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/sqlitescope/internal/logging"
	"github.com/FocuswithJustin/sqlitescope/internal/model"
	"github.com/FocuswithJustin/sqlitescope/internal/pager"
	"github.com/FocuswithJustin/sqlitescope/internal/source"
	"github.com/FocuswithJustin/sqlitescope/internal/viz"
)

// pollInterval is how often the database file is checked for changes.
const pollInterval = time.Second

// Server serves the visualization of one database file.
type Server struct {
	Addr string
	Path string

	upgrader websocket.Upgrader
	hub      *hub
}

// hub maintains the active reload connections. Registration,
// unregistration and broadcasting all funnel through run's loop.
type hub struct {
	mu         sync.Mutex
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 8),
	}
}

// run handles client registration and broadcasting.
func (h *hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug("reload client connected", "clients", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if h.clients[conn] {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug("reload client disconnected", "clients", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// count returns the number of connected clients.
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Routes builds the HTTP handler: the rendered page on /, the raw
// model on /model.json and the reload channel on /ws. The hub loop is
// started on first use.
func (s *Server) Routes() http.Handler {
	if s.hub == nil {
		s.hub = newHub()
		go s.hub.run()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/model.json", s.handleModel)
	r.Get("/ws", s.handleWS)
	return r
}

// ListenAndServe blocks serving HTTP on s.Addr.
func (s *Server) ListenAndServe() error {
	handler := s.Routes()
	go s.watch()

	logging.Info("serving visualization", "path", s.Path, "addr", s.Addr)
	return http.ListenAndServe(s.Addr, handler)
}

// decode rebuilds the model from the file on disk.
func (s *Server) decode() (*model.Model, error) {
	src, err := source.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	pgr, err := pager.New(src)
	if err != nil {
		return nil, err
	}
	defer pgr.Close()
	return model.Build(pgr, s.Path)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	m, err := s.decode()
	if err != nil {
		logging.Error("decode failed", "path", s.Path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := viz.Render(&buf, m); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The standalone document gains a reload hook only when served.
	page := bytes.Replace(buf.Bytes(), []byte("</body>"),
		[]byte(reloadScript+"</body>"), 1)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.decode()
	if err != nil {
		logging.Error("decode failed", "path", s.Path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.register <- conn
	go s.readPump(conn)
}

// readPump drains the connection until it drops, then unregisters it.
// Clients never send anything meaningful; the loop only detects
// closes.
func (s *Server) readPump(conn *websocket.Conn) {
	defer func() { s.hub.unregister <- conn }()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// watch polls the database file and notifies connected clients when
// its size or modification time changes.
func (s *Server) watch() {
	var lastMod time.Time
	var lastSize int64
	if info, err := os.Stat(s.Path); err == nil {
		lastMod, lastSize = info.ModTime(), info.Size()
	}

	for range time.Tick(pollInterval) {
		info, err := os.Stat(s.Path)
		if err != nil {
			continue
		}
		if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
			continue
		}
		lastMod, lastSize = info.ModTime(), info.Size()
		logging.Info("database changed, reloading clients", "path", s.Path)
		s.broadcast()
	}
}

func (s *Server) broadcast() {
	select {
	case s.hub.broadcast <- []byte("reload"):
	default:
		logging.Warn("reload channel full, dropping notification")
	}
}

const reloadScript = `<script>
(function () {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onmessage = function () { location.reload(); };
})();
</script>
`
