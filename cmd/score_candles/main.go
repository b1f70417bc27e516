package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/app"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/utils"
)

var (
	logLevel = flag.String("log-level", "INFO", "log level")
	scored   = flag.Bool("scored", true, "compute pattern scores")
	recent   = flag.Int("recent", 5, "published signals to list per side")
)

type report struct {
	file     string
	snapshot ports.Snapshot
	eval     app.Evaluation
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatalf("usage: score_candles [flags] file.csv...")
	}
	ctx := context.Background()
	appLogger := logger.New(logger.ParseLevel(*logLevel))

	reports := make([]report, flag.NArg())
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	for i, file := range flag.Args() {
		g.Go(func() error {
			market, candles, err := utils.ReadCandlesFromCSV(file)
			if err != nil {
				appLogger.Error(ctx, err, "Error loading candles", map[string]interface{}{"file": file})
				return fmt.Errorf("%s: %w", file, err)
			}

			engine := app.NewEngine(app.EngineConfig{
				Granularity:   market.Granularity,
				MaxCandles:    len(candles) + 1,
				ScoredSignals: *scored,
			})
			engine.Replace(market.Granularity, candles)
			eval := engine.Recompute(false)
			snapshot := engine.Snapshot(market, false, time.Now())

			appLogger.Info(ctx, "Scored candles", map[string]interface{}{
				"file":   file,
				"symbol": market.Symbol,
				"count":  engine.Len(),
			})

			mu.Lock()
			reports[i] = report{file: file, snapshot: snapshot, eval: eval}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Error scoring candles: %v", err)
	}

	for _, r := range reports {
		printReport(os.Stdout, r, *recent)
	}
}

func printReport(out io.Writer, r report, recent int) {
	s := r.snapshot
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "== %s (%s %s, %d candles)\n", r.file, s.Market.Symbol, s.Market.Granularity, len(s.Bars))
	if !r.eval.HasCandle {
		fmt.Fprintln(w, "no candles")
		return
	}
	ts := r.eval.Timestamp
	fmt.Fprintf(w, "latest\t%s\tclose %.2f\n", time.UnixMilli(ts).UTC().Format(time.DateTime), r.eval.Close)
	fmt.Fprintf(w, "moving averages\t5: %s\t10: %s\t20: %s\t200: %s\n",
		valueAt(s.MA5, ts), valueAt(s.MA10, ts), valueAt(s.MA20, ts), valueAt(s.MA200, ts))
	fmt.Fprintf(w, "rsi-14\t%s\n", valueAt(s.RSI, ts))

	m := r.eval.Momentum
	fmt.Fprintf(w, "momentum\t%.2f%%\tvolume ratio %.2f\tbuy %t sell %t strength %.2f\n",
		m.Momentum, m.VolumeRatio, m.Buy, m.Sell, m.Strength())
	fmt.Fprintf(w, "momentum crossings\tbuy %d\tsell %d\n", len(s.MomentumBuy), len(s.MomentumSell))
	fmt.Fprintf(w, "scored signals\tbuy %d\tsell %d\n", len(s.BuySignals), len(s.SellSignals))

	printSignals(w, "buy", s.BuySignals, recent)
	printSignals(w, "sell", s.SellSignals, recent)
	fmt.Fprintln(w)
}

func printSignals(w io.Writer, side string, signals map[int64]domain.SignalScoring, recent int) {
	keys := make([]int64, 0, len(signals))
	for ts := range signals {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	if len(keys) > recent {
		keys = keys[:recent]
	}
	for _, ts := range keys {
		sc := signals[ts]
		fmt.Fprintf(w, "  %s\t%s\ttotal %.1f\tengulfing %.1f/%.1f\tstar %.1f/%.1f\n",
			side, time.UnixMilli(ts).UTC().Format(time.DateTime), sc.TotalScore,
			sc.BullishEngulfing, sc.BearishEngulfing, sc.MorningStar, sc.EveningStar)
	}
}

func valueAt(series map[int64]float64, ts int64) string {
	v, ok := series[ts]
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}
