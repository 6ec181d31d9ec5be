// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package api exposes session control over HTTP and pushes status
// frames to WebSocket subscribers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"relaytune/pkg/autotune"
	"relaytune/pkg/log"
	"relaytune/pkg/rules"
)

// Config configures the API server.
type Config struct {
	Address string
	Manager *autotune.Manager
	Logger  *log.Logger

	// AccessLog receives combined-format request lines. Defaults to
	// stdout.
	AccessLog io.Writer

	// BroadcastInterval is the WebSocket status push period.
	BroadcastInterval time.Duration
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// New creates a server. Start must be called to begin serving.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger("api")
	}
	if cfg.AccessLog == nil {
		cfg.AccessLog = os.Stdout
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = time.Second
	}
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		clients: make(map[*wsClient]struct{}),
		stop:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebsocket)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/activate", s.handleActivate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/deactivate", s.handleDeactivate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/result", s.handleResult).Methods(http.MethodGet)
	api.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
}

// Handler returns the request handler with access logging and panic
// recovery wrapped around the routes.
func (s *Server) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(s.cfg.AccessLog,
		handlers.RecoveryHandler()(s.router))
}

// Start begins serving and the WebSocket broadcast loop.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.cfg.Logger.ErrorFields("http server stopped", log.Fields{"error": err.Error()})
		}
	}()
	go s.broadcastLoop()
	s.cfg.Logger.InfoFields("api listening", log.Fields{"address": s.cfg.Address})
}

// Shutdown stops the broadcast loop and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[*wsClient]struct{})
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

type sessionView struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	State          string      `json:"state"`
	StateCode      int         `json:"state_code"`
	Reason         string      `json:"reason,omitempty"`
	Progress       float64     `json:"progress"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	Cycles         int         `json:"cycles"`
	Result         *resultView `json:"result,omitempty"`
}

type resultView struct {
	Ku             float64                    `json:"ku"`
	PuSeconds      float64                    `json:"pu_seconds"`
	Amplitude      float64                    `json:"amplitude"`
	Confidence     float64                    `json:"confidence"`
	Cycles         int                        `json:"cycles"`
	ElapsedSeconds float64                    `json:"elapsed_seconds"`
	Gains          map[rules.Rule]rules.Gains `json:"gains"`
}

func viewOf(st autotune.Status) sessionView {
	v := sessionView{
		ID:             st.ID,
		Name:           st.Name,
		State:          st.State.String(),
		StateCode:      int(st.State),
		Reason:         string(st.Reason),
		Progress:       st.Progress,
		ElapsedSeconds: st.Elapsed.Seconds(),
		Cycles:         st.Cycles,
	}
	if st.Result != nil {
		v.Result = &resultView{
			Ku:             st.Result.Ku,
			PuSeconds:      st.Result.Pu.Seconds(),
			Amplitude:      st.Result.Amplitude,
			Confidence:     st.Result.Confidence,
			Cycles:         st.Result.Cycles,
			ElapsedSeconds: st.Result.Elapsed.Seconds(),
			Gains:          st.Result.Gains,
		}
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.cfg.Manager.List()
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, viewOf(sess.Status()))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.cfg.Manager.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess.Status()))
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.cfg.Manager.Activate(id)
	switch {
	case err == nil:
	case errors.Is(err, autotune.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "unknown session")
		return
	case errors.Is(err, autotune.ErrActive):
		writeError(w, http.StatusConflict, "session already active")
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sess, _ := s.cfg.Manager.Get(id)
	writeJSON(w, http.StatusOK, viewOf(sess.Status()))
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.cfg.Manager.Deactivate(id); err != nil {
		if errors.Is(err, autotune.ErrUnknownSession) {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sess, _ := s.cfg.Manager.Get(id)
	writeJSON(w, http.StatusOK, viewOf(sess.Status()))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.cfg.Manager.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	st := sess.Status()
	if st.Result == nil {
		writeError(w, http.StatusNotFound, "no result available")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st).Result)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules.All()})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.WarnFields("websocket upgrade failed", log.Fields{
			"error": err.Error()})
		return
	}
	client := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.cfg.Logger.DebugFields("websocket client connected", log.Fields{"clients": n})

	// Send an immediate snapshot so subscribers need not wait a full
	// broadcast interval.
	client.writeJSON(s.statusFrame())

	s.wg.Add(1)
	go s.readPump(client)
}

// readPump discards inbound frames and unregisters on close.
func (s *Server) readPump(client *wsClient) {
	defer s.wg.Done()
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			break
		}
	}
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
	client.conn.Close()
}

type statusFrame struct {
	Type     string        `json:"type"`
	Sessions []sessionView `json:"sessions"`
}

func (s *Server) statusFrame() statusFrame {
	sessions := s.cfg.Manager.List()
	frame := statusFrame{Type: "status", Sessions: make([]sessionView, 0, len(sessions))}
	for _, sess := range sessions {
		frame.Sessions = append(frame.Sessions, viewOf(sess.Status()))
	}
	return frame
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			frame := s.statusFrame()
			s.mu.Lock()
			clients := make([]*wsClient, 0, len(s.clients))
			for c := range s.clients {
				clients = append(clients, c)
			}
			s.mu.Unlock()
			for _, c := range clients {
				if err := c.writeJSON(frame); err != nil {
					c.conn.Close()
				}
			}
		case <-s.stop:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
