// Package server exposes the engine to pages over a websocket and to
// operators over a small HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/engine"
	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr string
	// Metrics serves /metrics when set.
	Metrics prometheus.Gatherer
}

// Server owns the session hub and the HTTP surface.
type Server struct {
	cfg    Config
	eng    *engine.Engine
	store  *policy.Store
	export audit.Exporter
	log    *logging.Logger
	hub    *hub
}

var upgrader = websocket.Upgrader{
	// Pages connect from extension origins and the socket binds to
	// loopback in practice, so the origin check stays permissive.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New creates a server and attaches its hub to the engine as the
// directive sender.
func New(cfg Config, eng *engine.Engine, store *policy.Store, export audit.Exporter, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	s := &Server{
		cfg:    cfg,
		eng:    eng,
		store:  store,
		export: export,
		log:    log,
		hub:    newHub(),
	}
	eng.SetSender(s.hub)
	return s
}

// Handler returns the routed HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/ws/page", s.handlePage)
	r.Get("/api/policy", s.handlePolicy)
	r.Get("/api/export", s.handleExport)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Metrics, promhttp.HandlerOpts{}))
	}
	return r
}

// requestLogger emits one structured line per completed API request.
// The page socket logs its own session lifecycle instead.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/page" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", s.cfg.Addr)

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handlePage upgrades the connection and owns the session lifecycle.
// The first frame must be a hello; everything after flows through the
// read loop into the engine.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	var env model.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return
	}
	msg, err := model.Decode(env)
	if err != nil {
		s.log.Warn("bad handshake frame", "type", env.Type, "error", err)
		return
	}
	hello, ok := msg.(model.Hello)
	if !ok {
		s.log.Warn("handshake frame is not a hello", "type", env.Type)
		return
	}

	tabID := hello.TabID
	if tabID == "" {
		tabID = uuid.NewString()
	}

	sess := newSession(conn)
	s.hub.add(tabID, sess)
	defer func() {
		s.hub.remove(tabID, sess)
		// The request context is already gone when the socket closes.
		s.eng.TabClosed(context.Background(), tabID)
	}()

	if err := s.ack(sess, tabID); err != nil {
		return
	}
	s.log.Info("page session opened", "tab_id", tabID, "remote", r.RemoteAddr)
	s.readLoop(r.Context(), tabID, sess, conn)
	s.log.Info("page session closed", "tab_id", tabID)
}

func (s *Server) ack(sess *session, tabID string) error {
	ack := model.HelloAck{TabID: tabID}
	if snap := s.store.Current(); snap != nil {
		ack.ProfileID = snap.Active.ID
		ack.PolicyHash = snap.Hash
	}
	env, err := model.Marshal(model.TypeHelloAck, ack)
	if err != nil {
		return err
	}
	return sess.send(env)
}

// readLoop dispatches page frames to the engine. Handler errors are
// logged and the connection survives; only a read error ends the
// session. The registered tab id wins over whatever the page claims in
// a payload, so one tab cannot speak for another.
func (s *Server) readLoop(ctx context.Context, tabID string, sess *session, conn *websocket.Conn) {
	for {
		var env model.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("page socket error", "tab_id", tabID, "error", err)
			}
			return
		}

		msg, err := model.Decode(env)
		if err != nil {
			s.log.Warn("undecodable page frame", "tab_id", tabID, "type", env.Type, "error", err)
			continue
		}

		switch m := msg.(type) {
		case model.Hello:
			if err := s.ack(sess, tabID); err != nil {
				return
			}
		case model.Nav:
			m.TabID = tabID
			if err := s.eng.HandleNavigation(ctx, m); err != nil {
				s.log.Warn("navigation failed", "tab_id", tabID, "error", err)
			}
		case model.SignalReport:
			m.TabID = tabID
			if err := s.eng.HandleSignals(ctx, m); err != nil {
				s.log.Warn("signal report failed", "tab_id", tabID, "error", err)
			}
		case model.DecisionReport:
			m.TabID = tabID
			if err := s.eng.HandleDecision(ctx, m); err != nil {
				s.log.Warn("decision failed", "tab_id", tabID, "error", err)
			}
		case model.PINCheck:
			ok, err := s.eng.VerifyPIN(ctx, m.PIN)
			if err != nil {
				s.log.Warn("pin check failed", "tab_id", tabID, "error", err)
				ok = false
			}
			res, err := model.Marshal(model.TypePINResult, model.PINResult{TabID: tabID, OK: ok})
			if err == nil {
				if err := sess.send(res); err != nil {
					return
				}
			}
		case model.PromptCapture:
			m.TabID = tabID
			if err := s.eng.HandlePrompt(ctx, m); err != nil {
				s.log.Warn("prompt capture failed", "tab_id", tabID, "error", err)
			}
		default:
			s.log.Warn("unhandled page frame", "tab_id", tabID, "type", env.Type)
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"tabs":   s.hub.count(),
	}
	if snap := s.store.Current(); snap != nil {
		resp["policy_hash"] = snap.Hash
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePolicy returns the active document with the PIN redacted.
// Changes go through the file on disk, not this endpoint.
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "policy not loaded"})
		return
	}
	doc := *snap.Doc
	doc.AdminPIN = ""
	writeJSON(w, http.StatusOK, map[string]any{
		"hash":           snap.Hash,
		"pin_configured": snap.Doc.AdminPIN != "",
		"document":       doc,
	})
}

// handleExport streams decision log entries as JSON. Query parameters:
// kind (repeatable), from, to (RFC3339).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.export == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no decision log configured"})
		return
	}

	filter := audit.Filter{Kinds: r.URL.Query()["kind"]}
	if v := r.URL.Query().Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from: " + err.Error()})
			return
		}
		filter.From = ts
	}
	if v := r.URL.Query().Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to: " + err.Error()})
			return
		}
		filter.To = ts
	}

	entries, err := s.export.Export(filter)
	if err != nil {
		s.log.Error("export failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}
	data, err := audit.ExportJSON(entries)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode failed"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
