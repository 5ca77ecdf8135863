// ctdconvert runs the instrument-file pipeline over a directory: every
// recognized raw file becomes one convention-compliant dataset file in
// the output directory. Thin wrapper; all semantics live in internal/.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ctdkit/internal/config"
	"ctdkit/internal/infrastructure"
	"ctdkit/internal/metrics"
	"ctdkit/internal/pipeline"
)

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	inDir := flag.String("in", "", "input directory of raw instrument files (overrides config)")
	outDir := flag.String("out", "", "output directory for exported datasets (overrides config)")
	format := flag.String("format", "", "target format: cf-json or csv (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *inDir != "" {
		cfg.Paths.InputDir = *inDir
	}
	if *outDir != "" {
		cfg.Paths.OutputDir = *outDir
	}
	if *format != "" {
		cfg.Pipeline.TargetFormat = *format
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := pipeline.New(cfg.Pipeline, cfg.Paths.OutputDir, logger)
	if err != nil {
		logger.Error("runner init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	results, err := runner.ProcessDir(ctx, cfg.Paths.InputDir)
	if err != nil {
		logger.Error("batch aborted", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ok, failed := 0, 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	logger.Info("batch complete",
		slog.Int("processed", ok),
		slog.Int("failed", failed),
		slog.String("output_dir", cfg.Paths.OutputDir))
	logMetrics(logger)

	if ok == 0 && failed > 0 {
		os.Exit(1)
	}
}

// logMetrics dumps the batch counters so a single-shot run leaves its
// numbers in the log.
func logMetrics(logger *slog.Logger) {
	families, err := metrics.Registry.Gather()
	if err != nil {
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{slog.Float64("value", m.GetCounter().GetValue())}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, slog.String(lp.GetName(), lp.GetValue()))
			}
			logger.Debug(mf.GetName(), attrs...)
		}
	}
}
