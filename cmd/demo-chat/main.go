// Command demo-chat runs an anonymous chat room entirely in one process:
// several participants on an in-memory network take turns speaking while
// the rest contribute cover traffic, and every participant prints the
// round's recovered message. The point of the demo is that the recovered
// output is identical everywhere while no transcript of who-said-what
// exists anywhere.
//
//	go run ./cmd/demo-chat --parties=4 --rounds=8
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/interfect/spartic/crypto"
	"github.com/interfect/spartic/node"
	"github.com/interfect/spartic/protocol"
	"github.com/interfect/spartic/router"
	"github.com/interfect/spartic/transport"
)

const demoGroup protocol.GroupID = 1

func main() {
	var (
		parties = flag.Int("parties", 3, "Number of participants")
		rounds  = flag.Int("rounds", 6, "Number of chat rounds")
	)
	flag.Parse()

	if *parties < 2 {
		fmt.Println("Error: need at least 2 parties")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	net := transport.NewNetwork()
	nodes := make([]*node.Node, *parties)
	keys := make([]crypto.PublicKey, *parties)

	for i := range nodes {
		id, err := crypto.GenerateIdentity()
		if err != nil {
			fmt.Printf("Identity error: %v\n", err)
			os.Exit(1)
		}
		tr := net.NewTransport(id)
		defer tr.Close()
		keys[i] = tr.PublicKey()

		cfg := node.DefaultConfig()
		cfg.DrainInterval = node.Duration(10 * time.Millisecond)
		nodes[i] = node.New(log, cfg, tr)
		nodes[i].Start(ctx)
	}

	fmt.Printf("Starting a %d-party room\n", *parties)
	for i, k := range keys {
		fmt.Printf("  party %d: %s\n", i, k.String()[:16])
	}

	for i, n := range nodes {
		others := make([]crypto.PublicKey, 0, *parties-1)
		for j, k := range keys {
			if j != i {
				others = append(others, k)
			}
		}
		if _, err := n.Router().CreateSession(ctx, demoGroup, others); err != nil {
			fmt.Printf("Session error: %v\n", err)
			os.Exit(1)
		}
	}

	waitReady(nodes)
	fmt.Println("Key exchange complete; chatting.")

	for round := 0; round < *rounds; round++ {
		speaker := round % *parties
		line := fmt.Sprintf("round %d: someone says hello", round)

		for i, n := range nodes {
			payload := make([]byte, protocol.BlockSize)
			if i == speaker {
				copy(payload, line)
			}
			if err := n.Router().Participate(demoGroup, payload); err != nil {
				fmt.Printf("Participate error: %v\n", err)
				os.Exit(1)
			}
		}

		for i, n := range nodes {
			result := waitResult(n.Router())
			text := string(bytes.TrimRight(result, "\x00"))
			fmt.Printf("  party %d recovered: %q\n", i, text)
		}
	}

	fmt.Println("Done. Every party saw every message; none can prove who sent what.")
}

func waitReady(nodes []*node.Node) {
	for {
		ready := true
		for _, n := range nodes {
			if !n.Router().ReadyToParticipate(demoGroup) {
				ready = false
				break
			}
		}
		if ready {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitResult(r *router.Router) []byte {
	for {
		if result, ok := r.PopResult(demoGroup); ok {
			return result
		}
		time.Sleep(10 * time.Millisecond)
	}
}
