// cmd/indengine runs the indicator and pattern engine: it refreshes every
// catalogued asset on a cron schedule (or on POST /refresh), writes
// snapshots and events to the configured stores and streams events to
// WebSocket clients and alert backends.
//
// Usage:
//
//	go run ./cmd/indengine --config=config/config.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cagdasatacanf-arch/Depo-Data/config"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/indengine"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to YAML config (missing file = env and defaults only)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[indengine] config: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.Service.LogLevel)
	log := logger.Init(cfg.Service.Name, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := indengine.New(ctx, cfg, log)
	if err != nil {
		log.Error("[indengine] init failed", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil {
		log.Error("[indengine] fatal", "error", err)
		os.Exit(1)
	}
}
