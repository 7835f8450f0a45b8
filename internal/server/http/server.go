package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/roverhub/internal/hub"
	"github.com/autopeer-io/roverhub/internal/hub/model"
	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/internal/pkg/metrics"
	mw "github.com/autopeer-io/roverhub/internal/pkg/middleware/http"
	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/options"
)

// Hub is the part of the hub the REST layer calls into.
type Hub interface {
	SendCommand(ctx context.Context, roverID int64, command string) (hub.DispatchResult, error)
	Connections(ctx context.Context) ([]hub.ConnectionInfo, error)
	Ready() bool
}

// Server serves the REST API, the socket upgrade path, probes and metrics.
type Server struct {
	server  *http.Server
	options *options.HttpOptions
	hub     Hub
	store   store.Store
	log     log.Logger
}

// NewServer builds the HTTP server. socketHandler is mounted on hubOpts.Path.
func NewServer(opts *options.HttpOptions, hubOpts *options.HubOptions, h Hub, st store.Store, socketHandler http.Handler) *Server {
	s := &Server{
		options: opts,
		hub:     h,
		store:   st,
		log:     log.WithName("http"),
	}

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(hubOpts.Path, socketHandler),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes(socketPath string, socketHandler http.Handler) http.Handler {
	r := mux.NewRouter()

	if socketHandler != nil {
		r.Handle(socketPath, socketHandler)
	}

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Readiness follows the hub event loop.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.hub.Ready() {
			http.Error(w, "hub not running", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	api := r.PathPrefix("/api").Subrouter()
	api.Use(mw.Observe, mw.Timeout(0))
	api.HandleFunc("/rovers", s.listRovers).Methods(http.MethodGet)
	api.HandleFunc("/rovers/{id:[0-9]+}", s.getRover).Methods(http.MethodGet)
	api.HandleFunc("/rovers/{id:[0-9]+}/sensor-data", s.listTelemetry).Methods(http.MethodGet)
	api.HandleFunc("/rovers/{id:[0-9]+}/command-logs", s.listCommands).Methods(http.MethodGet)
	api.HandleFunc("/rovers/{id:[0-9]+}/command", s.sendCommand).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	api.HandleFunc("/connections", s.connections).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	s.log.Info("Starting HTTP Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) listRovers(w http.ResponseWriter, r *http.Request) {
	rovers, err := s.store.ListRovers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rovers))
}

func (s *Server) getRover(w http.ResponseWriter, r *http.Request) {
	rover, err := s.store.GetRover(r.Context(), roverID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rover)
}

func (s *Server) listTelemetry(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	samples, err := s.store.ListTelemetry(r.Context(), roverID(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(samples))
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	cmds, err := s.store.ListCommands(r.Context(), roverID(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(cmds))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	rovers, err := s.store.ListRovers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Stats(rovers))
}

func (s *Server) connections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.hub.Connections(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(conns))
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandReply struct {
	Message   string `json:"message"`
	CommandID int64  `json:"commandId"`
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	id := roverID(r)
	if _, err := s.store.GetRover(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.hub.SendCommand(r.Context(), id, req.Command)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !res.Delivered {
		writeJSON(w, http.StatusServiceUnavailable, commandReply{
			Message:   model.ResponseRoverNotConnected,
			CommandID: res.CommandID,
		})
		return
	}
	writeJSON(w, http.StatusOK, commandReply{Message: "Command sent", CommandID: res.CommandID})
}

// fail maps store and hub errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "rover not found")
	case errors.Is(err, hub.ErrHubClosed):
		writeError(w, http.StatusServiceUnavailable, "hub is shutting down")
	default:
		s.log.Error(err, "Request failed", "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// roverID reads the {id} path variable; the route pattern guarantees digits.
func roverID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return store.DefaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}

// orEmpty keeps empty listings encoded as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
