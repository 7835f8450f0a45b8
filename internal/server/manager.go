package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/roverhub/internal/hub"
	"github.com/autopeer-io/roverhub/internal/hub/notifier"
	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/internal/hub/transport"
	"github.com/autopeer-io/roverhub/internal/server/http"
	"github.com/autopeer-io/roverhub/pkg/log"
)

// Server defines the common interface for all sub-servers (hub loop, mirror, http).
type Server interface {
	Start(ctx context.Context) error
}

// ServerFunc adapts a blocking run function to Server.
type ServerFunc func(ctx context.Context) error

func (f ServerFunc) Start(ctx context.Context) error { return f(ctx) }

// Manager manages the lifecycle of all sub-servers.
type Manager struct {
	servers []Server
	hub     *hub.Hub
	sockets *transport.Handler
	store   store.Store
}

// NewManager wires the hub, its optional mirror and the HTTP front door.
func NewManager(cfg *Config) *Manager {
	hubCfg := hub.Config{
		Store:        cfg.Store,
		EventBuffer:  cfg.HubOptions.EventBuffer,
		StoreTimeout: cfg.HubOptions.StoreTimeout,
	}

	var servers []Server

	// 1. Event mirror, only when at least one sink is configured.
	if len(cfg.Sinks) > 0 {
		fanout := notifier.NewFanout(cfg.Sinks, cfg.HubOptions.EventBuffer)
		hubCfg.Mirror = fanout
		servers = append(servers, fanout)
	}
	if cfg.Archive != nil {
		hubCfg.Archive = cfg.Archive
	}

	// 2. Hub event loop
	h := hub.New(hubCfg)
	servers = append(servers, ServerFunc(h.Run))

	// 3. HTTP server (REST, sockets, probes, metrics)
	sockets := transport.NewHandler(h, cfg.HubOptions)
	servers = append(servers, http.NewServer(cfg.HttpOptions, cfg.HubOptions, h, cfg.Store, sockets))

	return &Manager{
		servers: servers,
		hub:     h,
		sockets: sockets,
		store:   cfg.Store,
	}
}

// Hub returns the managed hub.
func (m *Manager) Hub() *hub.Hub {
	return m.hub
}

// Start launches all servers in parallel and waits for termination. The
// store is closed once every socket pump has exited.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "servers", len(m.servers))
	err := g.Wait()

	m.sockets.Wait()
	if cerr := m.store.Close(); cerr != nil {
		log.Error(cerr, "Failed to close store")
	}
	log.Info("All servers stopped")
	return err
}
