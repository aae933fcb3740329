// cmd/backtest replays one asset's stored price history from SQLite through
// the indicator series and the pattern detector, printing every event. It
// writes nothing.
//
// Usage:
//
//	go run ./cmd/backtest --asset=AAPL --speed=0 --from=2025-01-01
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/indicator"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/logger"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/marketdata/replay"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/pattern"
	sqlitestore "github.com/cagdasatacanf-arch/Depo-Data/internal/store/sqlite"
)

func main() {
	asset := flag.String("asset", "", "Asset symbol to replay (required)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 86400=one day per second)")
	fromStr := flag.String("from", "", "Replay points after this date, YYYY-MM-DD (empty=all)")
	dbPath := flag.String("db", "data/depo.db", "Path to SQLite database")
	bandWidth := flag.String("band-width", "2", "Bollinger band width")
	oversold := flag.String("rsi-oversold", "30", "RSI oversold threshold")
	overbought := flag.String("rsi-overbought", "70", "RSI overbought threshold")
	flag.Parse()

	log := logger.Init("depo-backtest", slog.LevelInfo)
	if *asset == "" {
		log.Error("[backtest] --asset is required")
		os.Exit(2)
	}

	var from time.Time
	if *fromStr != "" {
		t, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			log.Error("[backtest] bad --from", "error", err)
			os.Exit(2)
		}
		from = t
	}

	params := indicator.DefaultParams()
	th := pattern.DefaultThresholds()
	var err error
	if params.BandWidth, err = decimal.NewFromString(*bandWidth); err != nil {
		log.Error("[backtest] bad --band-width", "error", err)
		os.Exit(2)
	}
	if th.RSIOversold, err = decimal.NewFromString(*oversold); err != nil {
		log.Error("[backtest] bad --rsi-oversold", "error", err)
		os.Exit(2)
	}
	if th.RSIOverbought, err = decimal.NewFromString(*overbought); err != nil {
		log.Error("[backtest] bad --rsi-overbought", "error", err)
		os.Exit(2)
	}
	if err := th.Validate(); err != nil {
		log.Error("[backtest] thresholds", "error", err)
		os.Exit(2)
	}

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: *dbPath}, log)
	if err != nil {
		log.Error("[backtest] sqlite open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	series := indicator.NewEngine(params).NewSeries(*asset)
	detector := pattern.NewDetector(th, "backtest")

	pointCh := make(chan model.PricePoint, 1024)
	errCh := make(chan error, 1)
	go func() {
		_, err := replay.New(store, log).Run(ctx, *asset, from, *speed, pointCh)
		close(pointCh)
		errCh <- err
	}()

	processed, snapshots := 0, 0
	counts := map[model.PatternKind]int{}
	var prev *model.IndicatorSnapshot
	for p := range pointCh {
		processed++
		snap, ok, err := series.Push(p)
		if err != nil {
			log.Error("[backtest] rejected point", "index", processed-1, "error", err)
			stop()
			break
		}
		if !ok {
			continue
		}
		snapshots++

		events, err := detector.Detect(prev, snap)
		if err != nil {
			log.Error("[backtest] detect", "error", err)
			stop()
			break
		}
		for _, ev := range events {
			counts[ev.Kind]++
			fmt.Printf("  [%s] %-20s conf=%d %s\n", ev.DetectedAt.Format("2006-01-02"), ev.Kind.Title(), ev.Confidence, ev.Description)
		}
		prev = &snap
	}
	for range pointCh {
	}
	if err := <-errCh; err != nil && ctx.Err() == nil {
		log.Error("[backtest] replay error", "error", err)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Asset:             %-16s ║\n", *asset)
	fmt.Printf("║  Points processed:  %-16d ║\n", processed)
	fmt.Printf("║  Snapshots:         %-16d ║\n", snapshots)
	for _, kind := range model.PatternKinds() {
		fmt.Printf("║  %-18s %-16d ║\n", kind.Title()+":", counts[kind])
	}
	if err := series.Complete(); err != nil {
		fmt.Printf("║  Partial: %-26s ║\n", "some indicators undefined")
	}
	fmt.Println("╚══════════════════════════════════════╝")
}
