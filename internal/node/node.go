// Package node runs a replicad node: a replicator over the WebSocket hub,
// the orbiting demo entity, traffic recording and the HTTP surface.
package node

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/apistol78/traktor-sub009/internal/config"
	"github.com/apistol78/traktor-sub009/internal/errors"
	"github.com/apistol78/traktor-sub009/pkg/peers"
	"github.com/apistol78/traktor-sub009/pkg/recorder"
	"github.com/apistol78/traktor-sub009/pkg/replicator"
	"github.com/apistol78/traktor-sub009/pkg/state"
	"github.com/apistol78/traktor-sub009/pkg/transport/ws"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// Options carries dependencies that are not part of the configuration.
type Options struct {
	// Logger is the structured logger. Default: slog.Default()
	Logger *slog.Logger

	// Registry receives the node's metrics. Default: a new registry.
	Registry *prometheus.Registry

	// Sink stores recordings. Recording is off when nil.
	Sink recorder.Sink
}

// PeerInfo describes one connected peer in /peers.
type PeerInfo struct {
	Handle    peers.Handle `json:"handle"`
	Name      string       `json:"name"`
	LatencyMs float64      `json:"latencyMs"`
	SpreadMs  float64      `json:"spreadMs"`
	Position  *[3]float32  `json:"position,omitempty"`
	// Origin is where the peer's send rate is measured from.
	Origin    *[3]float32  `json:"origin,omitempty"`
}

// Node is one replicad process.
type Node struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	hub      *ws.Hub
	rep      *replicator.Replicator
	rec      *recorder.Recorder
	demo     orbit
	tick     time.Duration

	mu        sync.RWMutex
	view      []PeerInfo
	stats     replicator.Stats
	time      float64
	greetings map[string]int
}

// New builds a node from a validated configuration.
func New(cfg *config.Config, opts Options) (*Node, error) {
	tick, err := cfg.TickInterval()
	if err != nil {
		return nil, errors.New("R103").Wrap(err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	hubCfg := ws.DefaultConfig()
	hubCfg.Name = cfg.Name
	hubCfg.Primary = cfg.Primary
	hubCfg.Logger = logger.With("component", "ws")

	n := &Node{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		hub:      ws.NewHub(hubCfg),
		tick:     tick,
		demo: orbit{
			origin: vecmath.Point(float32(cfg.Demo.Origin[0]), float32(cfg.Demo.Origin[1]), float32(cfg.Demo.Origin[2])),
			radius: float32(cfg.Demo.Radius),
			speed:  float32(cfg.Demo.Speed),
		},
		greetings: make(map[string]int),
	}

	metrics := replicator.NewMetrics(
		replicator.WithRegistry(registry),
		replicator.WithConstLabels(prometheus.Labels{"node": cfg.Name}),
	)
	repOpts := []replicator.Option{
		replicator.WithConfig(cfg.ReplicatorConfig()),
		replicator.WithLogger(logger),
		replicator.WithMetrics(metrics),
		replicator.WithStateTemplate(DemoTemplate()),
		replicator.WithEventTypes(DemoEvents),
	}
	if opts.Sink != nil {
		n.rec = recorder.New(opts.Sink, recorder.WithLogger(logger.With("component", "recorder")))
		repOpts = append(repOpts, replicator.WithRecorder(n.rec))
	}

	n.rep, err = replicator.New(n.hub, repOpts...)
	if err != nil {
		return nil, err
	}
	n.rep.AddListener(replicator.ListenerFunc(n.onConnected))
	n.rep.AddEventListener("replicad.Greeting", replicator.ListenerFunc(n.onGreeting))
	return n, nil
}

func (n *Node) onConnected(r *replicator.Replicator, ev replicator.Notification) {
	switch ev.Kind {
	case replicator.KindConnected:
		if err := r.SendEvent(ev.Handle, &Greeting{Name: n.cfg.Name, Peer: int32(r.PeerCount())}); err != nil {
			n.logger.Warn("greeting failed", "peer", ev.Handle, "error", err)
		}
	case replicator.KindDisconnected:
		n.logger.Info("peer left", "peer", ev.Handle, "reason", ev.Payload)
	}
}

func (n *Node) onGreeting(_ *replicator.Replicator, ev replicator.Notification) {
	g := ev.Payload.(*Greeting)
	n.logger.Info("greeting received", "peer", ev.Handle, "name", g.Name, "peers", g.Peer)
	n.mu.Lock()
	n.greetings[g.Name]++
	n.mu.Unlock()
}

// Handler returns the node's HTTP routes.
func (n *Node) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/ws", n.hub)
	r.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/peers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, n.Peers())
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		n.mu.RLock()
		body := struct {
			Name  string           `json:"name"`
			Time  float64          `json:"time"`
			Stats replicator.Stats `json:"stats"`
		}{n.cfg.Name, n.time, n.stats}
		n.mu.RUnlock()
		writeJSON(w, body)
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Peers returns the connected peers as of the last tick.
func (n *Node) Peers() []PeerInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.view)
}

// Greetings returns how many greetings arrived from the named node.
func (n *Node) Greetings(name string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.greetings[name]
}

// Run listens on the configured address and serves until ctx ends.
func (n *Node) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.cfg.Listen)
	if err != nil {
		return errors.New("R200").Wrap(err)
	}
	return n.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln together with the tick loop, the peer
// dialers and the recording flusher. It returns when ctx ends or any of
// them fails.
func (n *Node) Serve(ctx context.Context, ln net.Listener) error {
	interval, err := n.cfg.FlushInterval()
	if err != nil {
		return errors.New("R103").Wrap(err)
	}
	srv := &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	n.logger.Info("node listening", "addr", ln.Addr().String(), "name", n.cfg.Name, "id", uuid.UUID(n.rep.ID()).String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !stderrors.Is(err, http.ErrServerClosed) {
			return errors.New("R200").Wrap(err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return n.tickLoop(ctx)
	})
	for _, url := range n.cfg.Peers {
		g.Go(func() error {
			n.keepDialing(ctx, url)
			return nil
		})
	}
	if n.rec != nil {
		g.Go(func() error {
			if err := n.rec.Run(ctx, interval); err != nil {
				return errors.New("R302").Wrap(err)
			}
			return nil
		})
	}
	return g.Wait()
}

// keepDialing connects to url and reconnects whenever the connection drops.
func (n *Node) keepDialing(ctx context.Context, url string) {
	for ctx.Err() == nil {
		h, err := n.hub.Dial(ctx, url)
		if err != nil {
			if ctx.Err() == nil {
				n.logger.Warn("dial failed", "url", url, "error", err)
			}
			return
		}
		n.logger.Info("dialed peer", "url", url, "peer", h)

		ticker := time.NewTicker(time.Second)
		for connected := true; connected; {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				connected = slices.Contains(n.hub.PeerHandles(), h)
			}
		}
		ticker.Stop()
	}
}

func (n *Node) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			n.rep.Close()
			return n.hub.Close()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if err := n.step(dt); err != nil {
				return err
			}
		}
	}
}

// step advances the demo entity and the replicator by dt seconds.
func (n *Node) step(dt float64) error {
	s := n.demo.at(n.rep.Time())
	if err := n.rep.SetState(s); err != nil {
		return err
	}
	n.rep.SetOrigin(s.Value(0).(state.BodyState).Position)

	if err := n.rep.Update(dt); err != nil {
		if stderrors.Is(err, replicator.ErrClosed) || stderrors.Is(err, peers.ErrClosed) {
			return err
		}
		n.logger.Warn("update failed", "error", err)
	}
	n.publish()
	return nil
}

// publish moves each ghost's origin to its extrapolated position and
// snapshots replicator state for the HTTP handlers.
func (n *Node) publish() {
	handles := n.rep.PeerHandles()
	view := make([]PeerInfo, 0, len(handles))
	for _, h := range handles {
		info := PeerInfo{
			Handle:    h,
			Name:      n.rep.PeerName(h),
			LatencyMs: n.rep.PeerLatency(h) * 1000,
			SpreadMs:  n.rep.PeerLatencySpread(h) * 1000,
		}
		if gs := n.rep.GhostState(h); gs != nil {
			if body, ok := gs.Value(0).(state.BodyState); ok {
				info.Position = &[3]float32{body.Position.X, body.Position.Y, body.Position.Z}
				if err := n.rep.SetGhostOrigin(h, body.Position); err != nil {
					n.logger.Debug("ghost origin not set", "peer", h, "error", err)
				} else {
					info.Origin = info.Position
				}
			}
		}
		view = append(view, info)
	}

	n.mu.Lock()
	n.view = view
	n.stats = n.rep.Stats()
	n.time = n.rep.Time()
	n.mu.Unlock()
}
