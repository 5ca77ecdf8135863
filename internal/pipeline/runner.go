package pipeline

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"ctdkit/internal/config"
	"ctdkit/internal/errors"
	"ctdkit/internal/exporter"
	"ctdkit/internal/metrics"
	"ctdkit/internal/normalizer"
	"ctdkit/internal/qc"
	"ctdkit/internal/reader"
	"ctdkit/pkg/contracts/domain"
)

// Runner executes the per-file pipeline and the batch loop.
type Runner struct {
	cfg        config.PipelineConfig
	outputDir  string
	dispatcher *reader.Dispatcher
	normalizer *normalizer.Normalizer
	qcEngine   *qc.Engine
	exporter   *exporter.Exporter
	logger     *slog.Logger
}

// New builds a Runner from the pipeline configuration.
func New(cfg config.PipelineConfig, outputDir string, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HasDriftReference() {
		if _, _, _, _, err := cfg.DriftTimes(); err != nil {
			return nil, errors.Wrap(err, "Runner", "New", "parse drift reference timestamps")
		}
	}
	return &Runner{
		cfg:        cfg,
		outputDir:  outputDir,
		dispatcher: reader.NewDispatcher(logger),
		normalizer: normalizer.New(logger),
		qcEngine:   qc.New(logger),
		exporter:   exporter.New(logger),
		logger:     logger,
	}, nil
}

// Result is the outcome of one file's pipeline run.
type Result struct {
	SourcePath string
	OutputPath string
	Err        error
}

// ProcessFile runs one instrument file through the whole pipeline and
// writes the exported dataset. The context is checked between stages so
// a cancelled batch stops promptly.
func (r *Runner) ProcessFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := r.dispatcher.Read(path)
	if err != nil {
		metrics.FilesFailed.WithLabelValues(string(errors.StageReader)).Inc()
		return "", err
	}

	ds, _, err := r.normalizer.Normalize(raw)
	if err != nil {
		metrics.FilesFailed.WithLabelValues(string(errors.StageNormalizer)).Inc()
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	opts := qc.Options{
		GapFactor:   r.cfg.GapFactor,
		Interpolate: r.cfg.Interpolate,
	}
	if r.cfg.HasDriftReference() {
		instStart, instEnd, actStart, actEnd, _ := r.cfg.DriftTimes()
		opts.DriftReference = &qc.DriftReference{
			InstrumentStart: instStart,
			InstrumentEnd:   instEnd,
			ActualStart:     actStart,
			ActualEnd:       actEnd,
		}
	}
	if err := r.qcEngine.Validate(ds, opts); err != nil {
		metrics.FilesFailed.WithLabelValues(string(errors.StageQC)).Inc()
		return "", err
	}
	countFlags(ds)

	name, err := exporter.OutputName(path, r.cfg.TargetFormat)
	if err != nil {
		metrics.FilesFailed.WithLabelValues(string(errors.StageExporter)).Inc()
		return "", err
	}
	outPath := filepath.Join(r.outputDir, name)
	data, err := r.exporter.Export(ds, r.cfg.TargetFormat)
	if err != nil {
		metrics.FilesFailed.WithLabelValues(string(errors.StageExporter)).Inc()
		return "", err
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		metrics.FilesFailed.WithLabelValues(string(errors.StageExporter)).Inc()
		return "", errors.Wrap(err, "Runner", "ProcessFile", "create output directory")
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		metrics.FilesFailed.WithLabelValues(string(errors.StageExporter)).Inc()
		return "", errors.Wrap(err, "Runner", "ProcessFile", "write output file")
	}

	metrics.FilesProcessed.Inc()
	metrics.ExportBytes.WithLabelValues(r.cfg.TargetFormat).Add(float64(len(data)))
	r.logger.Info("pipeline complete",
		slog.String("source", path),
		slog.String("output", outPath))
	return outPath, nil
}

// ProcessDir runs the pipeline over every regular file in the input
// directory, in parallel up to the configured worker count. Per-file
// failures are collected, not fatal; the returned error is non-nil only
// when the directory walk itself fails or the context is cancelled.
func (r *Runner) ProcessDir(ctx context.Context, dir string) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "Runner", "ProcessDir", "read input directory")
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	var (
		mu      sync.Mutex
		results []Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			out, perr := r.ProcessFile(gctx, path)
			if perr != nil && stderrors.Is(perr, context.Canceled) {
				return perr
			}
			if perr != nil {
				r.logger.Error("file skipped",
					slog.String("path", path),
					slog.String("error", perr.Error()))
			}
			mu.Lock()
			results = append(results, Result{SourcePath: path, OutputPath: out, Err: perr})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SourcePath < results[j].SourcePath })
	return results, nil
}

func countFlags(ds *domain.CanonicalDataset) {
	for _, name := range ds.Variables() {
		series := ds.Series[name]
		for _, s := range series.Samples {
			metrics.SamplesFlagged.WithLabelValues(string(s.Flag)).Inc()
		}
		for range series.Discarded {
			metrics.SamplesFlagged.WithLabelValues(string(domain.FlagDuplicateDiscard)).Inc()
		}
	}
}
