// Command vtsim runs a small demo simulation over the virtual-time runtime:
// a periodic producer/consumer pair advanced once, either for a fixed
// duration or, when -terminate-when is set, until that termination predicate
// fires (bounded by the same duration). Grounded on the
// teacher's cmd/simulator/main.go flag-driven wiring style, narrowed from a
// satellite-constellation scenario down to a demo actor graph since this
// runtime's domain has no scenario file to load.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/vtsim/actorsim"
	"github.com/signalsfoundry/vtsim/engine"
	"github.com/signalsfoundry/vtsim/internal/logging"
	"github.com/signalsfoundry/vtsim/internal/otelsim"
	"github.com/signalsfoundry/vtsim/internal/simconfig"
	"github.com/signalsfoundry/vtsim/stats"
	"github.com/signalsfoundry/vtsim/vtserver"
)

func main() {
	duration := flag.Int64("duration-ms", 10_000, "virtual milliseconds to simulate")
	interval := flag.Int64("interval-ms", 100, "producer send interval in virtual milliseconds")
	terminateWhen := flag.String("terminate-when", "", "predicate DSL expression; when set, runs in condition-checked mode instead of fixed-duration")
	configPath := flag.String("config", "", "path to an engine config file (yaml/json/toml), VTSIM_ env vars always override")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus /metrics on this address (e.g. :9090)")
	flag.Parse()

	ctx := context.Background()
	log := logging.NewFromEnv()

	cfg, err := simconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vtsim: load config: %v\n", err)
		os.Exit(1)
	}

	tracer, shutdownTracing, err := otelsim.Init(ctx, otelsim.ConfigFromEnv(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vtsim: init tracing: %v\n", err)
		os.Exit(1)
	}
	defer shutdownTracing(ctx)

	var prom *stats.PromMetrics
	if *metricsAddr != "" {
		prom, err = stats.NewPromMetrics(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vtsim: init metrics: %v\n", err)
			os.Exit(1)
		}
		go serveMetrics(*metricsAddr, log)
	}

	maxInterval := cfg.Quiescence.MaxInterval()
	eng := engine.New(
		engine.WithTrace(cfg.Trace.Enabled, cfg.Trace.Cap),
		engine.WithLogger(log),
		engine.WithTracer(tracer),
		engine.WithPromMetrics(prom),
		engine.WithCheckInterval(cfg.Engine.CheckIntervalMs),
		engine.WithQuiescencePatience(func(int64) time.Duration { return maxInterval }),
		engine.WithQuiescenceMinInterval(cfg.Quiescence.MinInterval()),
	)
	defer eng.Stop(ctx)

	var received int
	if err := eng.AddActor(ctx, "producer", actorsim.Definition{
		SendPattern: actorsim.Periodic(*interval, "tick"),
		Targets:     []string{"consumer"},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "vtsim: add producer: %v\n", err)
		os.Exit(1)
	}
	if err := eng.AddActor(ctx, "consumer", actorsim.Definition{
		Receive: countAndLog(&received, log),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "vtsim: add consumer: %v\n", err)
		os.Exit(1)
	}

	runOpts := engine.RunOptions{Duration: *duration}
	if *terminateWhen != "" {
		runOpts = engine.RunOptions{
			MaxDuration:   *duration,
			TerminateWhen: *terminateWhen,
			CheckInterval: cfg.Engine.CheckIntervalMs,
		}
	}

	fmt.Printf("Starting simulation: duration_ms=%d interval_ms=%d terminate_when=%q\n",
		*duration, *interval, *terminateWhen)

	wallStart := time.Now()
	if err := eng.Run(ctx, runOpts); err != nil {
		fmt.Fprintf(os.Stderr, "vtsim: run: %v\n", err)
		os.Exit(1)
	}
	wallElapsed := time.Since(wallStart)

	snap := eng.Stats()
	fmt.Printf("Simulation complete: actual_duration_ms=%d terminated_early=%v wall_clock=%s\n",
		eng.ActualDuration(), eng.TerminatedEarly(), wallElapsed)
	fmt.Printf("producer: sent=%d  consumer: received=%d  trace_entries=%d\n",
		snap.SentCount("producer"), snap.ReceivedCount("consumer"), len(eng.Trace()))
}

func countAndLog(counter *int, log logging.Logger) actorsim.ReceiveBehavior {
	return actorsim.FuncBehavior{Fn: func(ctx context.Context, msg any, state any) vtserver.CallbackResult {
		*counter++
		log.Debug(ctx, "consumer received message", logging.Any("message", msg), logging.Int("total", *counter))
		return vtserver.OK(state)
	}}
}

func serveMetrics(addr string, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info(context.Background(), "serving metrics", logging.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error(context.Background(), "metrics server stopped", logging.Any("error", err))
	}
}
