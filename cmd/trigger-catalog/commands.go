package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/audit"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/config"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/detector"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/ledger"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/logging"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/metadata"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/metrics"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/pipeline"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/report"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/source"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/storage"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/summary"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/tables"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Fetch waveforms for a time range and append detected triggers to the ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Usage: "Range start (YYYY-MM-DD or RFC 3339)"},
			&cli.StringFlag{Name: "end", Usage: "Range end, exclusive"},
			&cli.StringFlag{Name: "granularity", Usage: "Chunk size: hour, day or month"},
			&cli.IntFlag{Name: "workers", Usage: "Number of concurrent chunks"},
			&cli.StringFlag{Name: "ledger", Usage: "Path to the trigger ledger CSV"},
			&cli.StringFlag{Name: "staging-dir", Usage: "Directory for extracted waveform files"},
		},
		Action: runAction,
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the last run summary and ledger coverage",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "recent", Value: 10, Usage: "Recent chunks to list from the catalog"},
		},
		Action: statusAction,
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print monthly trigger totals from the ledger",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Value: report.DefaultWidth, Usage: "Bar width of the busiest month"},
		},
		Action: reportAction,
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Convert the ledger to a Parquet file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "trigger_catalog.parquet", Usage: "Output file"},
			&cli.StringFlag{Name: "compression", Value: tables.DefaultParquetConfig().Compression, Usage: "snappy, zstd, gzip or none"},
		},
		Action: exportAction,
	}
}

// loadConfig applies defaults, the config file, the environment and then
// any flags set on c.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if c.IsSet("start") {
		cfg.Run.Start = c.String("start")
	}
	if c.IsSet("end") {
		cfg.Run.End = c.String("end")
	}
	if c.IsSet("granularity") {
		cfg.Run.Granularity = c.String("granularity")
	}
	if c.IsSet("workers") {
		cfg.Run.Workers = c.Int("workers")
	}
	if c.IsSet("ledger") {
		cfg.Ledger.Path = c.String("ledger")
	}
	if c.IsSet("staging-dir") {
		cfg.Run.StagingDir = c.String("staging-dir")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	return cfg, nil
}

func newAuditEmitter(cfg config.Config) audit.Emitter {
	return audit.NewEmitter(audit.Config{
		Enabled:  cfg.Audit.Enabled,
		Endpoint: cfg.Audit.Endpoint,
		Dir:      cfg.Audit.Dir,
	})
}

func producer() audit.ProducerInfo {
	return audit.ProducerInfo{Name: "trigger-catalog", Version: version, GitSHA: gitSHA}
}

func detectorConfig(c config.DetectorConfig) detector.Config {
	return detector.Config{
		Freq:         c.Freq,
		Corners:      c.Corners,
		ShortWindow:  c.ShortWindow,
		LongWindow:   c.LongWindow,
		OnThreshold:  c.OnThreshold,
		OffThreshold: c.OffThreshold,
	}
}

func runAction(c *cli.Context) error {
	log.Printf("[main] trigger-catalog %s (%s)", version, gitSHA)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	start, end, err := cfg.Window()
	if err != nil {
		return err
	}
	window, err := source.NewTimeWindow(start, end)
	if err != nil {
		return err
	}
	granularity, err := pipeline.ParseGranularity(cfg.Run.Granularity)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-ch:
			log.Printf("[shutdown] received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("trigger_catalog")
		go func() {
			log.Printf("[main] metrics listening on %s", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Printf("[main] metrics server stopped: %v", err)
			}
		}()
	}

	var src source.WaveformSource = source.NewFetcher(source.FetcherConfig{
		BaseURL:           cfg.Source.BaseURL,
		Timeout:           cfg.Source.Timeout,
		MaxAttempts:       cfg.Source.MaxAttempts,
		Backoff:           cfg.Source.Backoff,
		RetryStatuses:     cfg.Source.RetryStatuses,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
	})
	if cfg.Mirror.Enabled {
		store, err := storage.NewArchiveStore(storage.StorageConfig{
			Backend:  cfg.Mirror.Backend,
			LocalDir: cfg.Mirror.LocalDir,
			Bucket:   cfg.Mirror.Bucket,
			Endpoint: cfg.Mirror.Endpoint,
			Region:   cfg.Mirror.Region,
			Prefix:   cfg.Mirror.Prefix,
			Compress: cfg.Mirror.Compress,
		})
		if err != nil {
			return fmt.Errorf("create archive mirror: %w", err)
		}
		src = source.NewMirroredSource(src, store)
	}
	defer src.Close()

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}

	catalog, err := metadata.NewWriter(metadata.CatalogConfig{PostgresDSN: cfg.Catalog.PostgresDSN})
	if err != nil {
		return fmt.Errorf("connect catalog: %w", err)
	}
	defer catalog.Close()

	sums, err := summary.NewManager(summary.Config{Enabled: cfg.Summary.Enabled, Dir: cfg.Summary.Dir})
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Config{
		Network:     cfg.Station.Network,
		Station:     cfg.Station.Station,
		Channel:     cfg.Station.Channel,
		Format:      cfg.Station.Format,
		Granularity: granularity,
		Workers:     cfg.Run.Workers,
		StagingDir:  cfg.Run.StagingDir,
		Detector:    detectorConfig(cfg.Detector),
	}, src, l, catalog, sums)

	rep, err := p.Run(ctx, window)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("[main] shutdown complete")
			return nil
		}
		return err
	}

	t := rep.Totals
	log.Printf("[main] run %s complete: %d chunks, %d succeeded, %d skipped, %d failed, %d errored, %d rows, %d triggers",
		rep.RunID, t.Chunks, t.Succeeded, t.Skipped, t.Failed, t.Errored, t.Rows, t.Triggers)

	emitter := newAuditEmitter(cfg)
	defer emitter.Close()

	rec := audit.Record{
		Type:     audit.EventRunComplete,
		Network:  cfg.Station.Network,
		Station:  cfg.Station.Station,
		Channel:  cfg.Station.Channel,
		RunID:    rep.RunID,
		Start:    window.Start,
		End:      window.End,
		Producer: producer(),
	}
	if a, err := audit.ArtifactFromFile(l.Path(), int64(t.Rows)); err == nil {
		rec.Artifacts = map[string]audit.ArtifactInfo{audit.ArtifactLedger: a}
	}
	if err := emitter.Emit(ctx, rec); err != nil {
		log.Printf("[main] audit emit failed: %v", err)
	}
	return nil
}

func statusAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out := c.App.Writer

	sums, err := summary.NewManager(summary.Config{Enabled: cfg.Summary.Enabled, Dir: cfg.Summary.Dir})
	if err != nil {
		return err
	}
	s, err := sums.Load(c.Context)
	switch {
	case errors.Is(err, summary.ErrNoSummary):
		fmt.Fprintln(out, "no run summary found")
	case err != nil:
		return err
	default:
		t := s.Totals
		fmt.Fprintf(out, "last run %s (%s.%s.%s, %s)\n", s.RunID, s.Network, s.Station, s.Channel, s.Granularity)
		fmt.Fprintf(out, "  window   %s .. %s\n", s.WindowStart.Format(time.RFC3339), s.WindowEnd.Format(time.RFC3339))
		fmt.Fprintf(out, "  finished %s in %s\n", s.FinishedAt.Format(time.RFC3339), s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
		fmt.Fprintf(out, "  chunks   %d total, %d succeeded, %d skipped, %d failed, %d errored, %d pending\n",
			t.Chunks, t.Succeeded, t.Skipped, t.Failed, t.Errored, t.Pending)
		fmt.Fprintf(out, "  files    %d (%d failed), %d rows, %d triggers\n", t.Files, t.FilesFailed, t.Rows, t.Triggers)
		if s.FatalError != "" {
			fmt.Fprintf(out, "  fatal    %s\n", s.FatalError)
		}
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	days, err := l.ProcessedDays()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ledger %s: %d processed days\n", l.Path(), len(days))

	if cfg.Catalog.PostgresDSN == "" || c.Int("recent") <= 0 {
		return nil
	}
	pg, err := metadata.NewPostgresWriter(metadata.CatalogConfig{PostgresDSN: cfg.Catalog.PostgresDSN})
	if err != nil {
		return fmt.Errorf("connect catalog: %w", err)
	}
	defer pg.Close()

	recs, err := pg.RecentChunks(c.Context, cfg.Station.Network, cfg.Station.Station, cfg.Station.Channel, c.Int("recent"))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "recent chunks:")
	for _, r := range recs {
		fmt.Fprintf(out, "  %s  %-8s files=%d rows=%d triggers=%d attempts=%d %s\n",
			r.WindowStart.Format(time.RFC3339), r.Status, r.Files, r.Rows, r.Triggers, r.Attempts, r.Error)
	}
	return nil
}

func reportAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	rows, err := l.Rows()
	if err != nil {
		return err
	}
	return report.Render(c.App.Writer, report.MonthlyTotals(rows), c.Int("width"))
}

func exportAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	rows, err := l.Rows()
	if err != nil {
		return err
	}

	pcfg := tables.ParquetConfig{
		Network:     cfg.Station.Network,
		Channel:     cfg.Station.Channel,
		Compression: c.String("compression"),
	}
	out := c.String("out")
	checksum, err := tables.ExportFile(out, tables.FromLedger(rows, pcfg, time.Now().UTC()), pcfg.Compression)
	if err != nil {
		return err
	}
	log.Printf("[export] wrote %d rows to %s (%s)", len(rows), out, checksum)

	artifact, err := audit.ArtifactFromFile(out, int64(len(rows)))
	if err != nil {
		return err
	}
	emitter := newAuditEmitter(cfg)
	defer emitter.Close()
	return emitter.Emit(c.Context, audit.Record{
		Type:      audit.EventLedgerExport,
		Network:   cfg.Station.Network,
		Station:   cfg.Station.Station,
		Channel:   cfg.Station.Channel,
		Artifacts: map[string]audit.ArtifactInfo{audit.ArtifactParquet: artifact},
		Producer:  producer(),
	})
}
