package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/interfect/spartic/router"
	"github.com/interfect/spartic/transport"
)

// Node ties a router to a transport and paces its outbound traffic.
//
// The router itself never initiates I/O; the node's drain loop ticks it so
// queued wire messages leave at a steady cadence. Everything else the node
// does is surface: the HTTP control API in handler.go drives the router on
// behalf of a local operator.
type Node struct {
	log       *slog.Logger
	cfg       *Config
	router    *router.Router
	transport transport.Transport
}

// New assembles a node from an already-constructed transport.
func New(log *slog.Logger, cfg *Config, tr transport.Transport) *Node {
	return &Node{
		log:       log,
		cfg:       cfg,
		router:    router.New(log, tr),
		transport: tr,
	}
}

// Router exposes the node's router, mainly for demos and tests.
func (n *Node) Router() *router.Router {
	return n.router
}

// Start runs the outbound drain loop until ctx is cancelled.
func (n *Node) Start(ctx context.Context) {
	go n.drainLoop(ctx)
	n.log.Info("node started",
		"publicKey", n.transport.PublicKey().String(),
		"drainInterval", time.Duration(n.cfg.DrainInterval))
}

// drainLoop flushes every session's queues once per tick. A fixed cadence
// decouples when blocks are produced from when they hit the wire, which is
// where constant-rate transmission slots in.
func (n *Node) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(n.cfg.DrainInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.router.SendAllSessionMessages()
		}
	}
}

// Close shuts the transport down.
func (n *Node) Close() error {
	return n.transport.Close()
}
