// Command arenad runs the arena server: game engines, the match registry,
// the scoring ledger, and the HTTP/WebSocket surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geniusarena/internal/api"
	"geniusarena/internal/broadcast"
	"geniusarena/internal/config"
	"geniusarena/internal/games"
	"geniusarena/internal/ledger"
	"geniusarena/internal/registry"
)

func main() {
	logger := log.New(os.Stdout, "[ARENA] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	store, err := ledger.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("open ledger at %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	bc := broadcast.New(log.New(os.Stdout, "[CAST] ", log.LstdFlags))
	tournaments := ledger.NewTournaments()
	reg := registry.New(cfg.MaxConcurrentMatches, store, bc, log.New(os.Stdout, "[MATCH] ", log.LstdFlags))
	reg.SetDefaultTurnBudget(cfg.DefaultTurnBudget)
	reg.SetWinnerReporter(tournaments)
	ws := broadcast.NewWSHandler(bc, reg.State, log.New(os.Stdout, "[WS] ", log.LstdFlags))
	server := api.NewServer(reg, store, tournaments, ws)

	httpServer := &http.Server{
		Addr:        cfg.Addr,
		Handler:     server.Routes(),
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s, %d game types, ceiling %d matches",
			cfg.Addr, len(games.List()), cfg.MaxConcurrentMatches)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := reg.Shutdown(ctx); err != nil {
		logger.Printf("abort running matches: %v", err)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
}
