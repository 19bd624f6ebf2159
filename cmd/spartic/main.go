// Command spartic runs a Spartic node: a libp2p transport joined to the
// public DHT, the session router, and an HTTP control API.
//
// # Groups
//
// A group is agreed out-of-band: its integer ID and every member's public
// key. Each member creates the group through its own node's control API;
// the nodes then find each other over the DHT, exchange pairwise secrets,
// and start exchanging rounds.
//
// # Usage
//
//	go run ./cmd/spartic --datadir=/var/lib/spartic --api=127.0.0.1:8470
//
// The node's public key is printed at startup; hand it to the other group
// members.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/interfect/spartic/api/httpserver"
	"github.com/interfect/spartic/node"
	"github.com/interfect/spartic/transport/libp2ptransport"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file (flags override)")
		apiAddr     = flag.String("api", "", "HTTP control API listen address")
		metricsAddr = flag.String("metrics", "", "Metrics listen address (empty disables)")
		dataDir     = flag.String("datadir", "", "Identity keystore directory")
		listenAddrs = flag.String("listen", "", "Comma-separated libp2p listen multiaddrs")
		bootstrap   = flag.String("bootstrap", "", "Comma-separated extra bootstrap multiaddrs")
		enablePprof = flag.Bool("pprof", false, "Enable the pprof debug API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON instead of text")
	)
	flag.Parse()

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	log := slog.New(handler)

	cfg := node.DefaultConfig()
	if *configPath != "" {
		loaded, err := node.LoadConfig(*configPath)
		if err != nil {
			log.Error("could not load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *apiAddr != "" {
		cfg.APIAddr = *apiAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *listenAddrs != "" {
		cfg.ListenAddrs = strings.Split(*listenAddrs, ",")
	}
	if *bootstrap != "" {
		cfg.BootstrapPeers = append(cfg.BootstrapPeers, strings.Split(*bootstrap, ",")...)
	}
	if *enablePprof {
		cfg.EnablePprof = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := libp2ptransport.New(ctx, &libp2ptransport.Config{
		DataDir:        cfg.DataDir,
		ListenAddrs:    cfg.ListenAddrs,
		BootstrapPeers: cfg.BootstrapPeers,
		Log:            log,
	})
	if err != nil {
		log.Error("could not start transport", "err", err)
		os.Exit(1)
	}
	defer tr.Close()

	n := node.New(log, cfg, tr)

	srv, err := httpserver.New(&httpserver.Config{
		ListenAddr:               cfg.APIAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, n)
	if err != nil {
		log.Error("could not create API server", "err", err)
		os.Exit(1)
	}

	fmt.Printf("Spartic public key: %s\n", tr.PublicKey().String())
	for _, addr := range tr.Addrs() {
		fmt.Printf("Listening on: %s\n", addr)
	}
	fmt.Printf("Control API: http://%s\n", cfg.APIAddr)

	srv.RunInBackground()
	n.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	cancel()
	srv.Shutdown()
}
