// waitui is the terminal rendition of the post-signup verification wait
// screen. It signs nothing up itself: point it at an existing session via
// ACCESS_TOKEN / REFRESH_TOKEN, or let it resume from the remembered email
// shared by other clients of the same OS user.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/huddleup/authsync/internal/client/authcache"
	"github.com/huddleup/authsync/internal/client/identity"
	"github.com/huddleup/authsync/internal/client/monitor"
	"github.com/huddleup/authsync/internal/client/signal"
	"github.com/huddleup/authsync/internal/client/verify"
	"github.com/huddleup/authsync/internal/config"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}
	cfg := config.Load()

	api := identity.NewClient(cfg.Client.APIBaseURL)
	if access := os.Getenv("ACCESS_TOKEN"); access != "" {
		api.SetTokens(access, os.Getenv("REFRESH_TOKEN"))
	}

	durable, err := signal.NewFileStore(cfg.Client.SignalDir)
	if err != nil {
		log.Fatalf("signal store: %v", err)
	}
	defer durable.Close()
	signals := signal.NewChannel(durable, signal.NewMemStore())

	cache := authcache.New()
	activity := monitor.NewActivity()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flow := verify.NewFlow(api, cache, signals, cfg.Client)

	// The poller can fire state changes before the program exists; guard
	// the handoff.
	var (
		programMu sync.Mutex
		program   *tea.Program
	)
	dest := flow.Mount(ctx, func(s verify.State) {
		programMu.Lock()
		p := program
		programMu.Unlock()
		if p != nil {
			p.Send(stateMsg(s))
		}
	})
	if dest != verify.DestNone {
		fmt.Println(destinationLine(dest))
		return
	}

	watchdog := monitor.New(api, cache, activity, signals, cfg.Client, func(ctx context.Context) error {
		return cache.Refresh(ctx, api)
	})
	watchdog.Start(ctx)
	defer watchdog.Stop()

	programMu.Lock()
	program = tea.NewProgram(newModel(ctx, flow, activity))
	p := program
	programMu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		_, err := p.Run()
		cancel()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("waitui: %v", err)
	}
}
