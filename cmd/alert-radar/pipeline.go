package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hervehildenbrand/alert-radar/pkg/database"
	"github.com/hervehildenbrand/alert-radar/pkg/detector"
	"github.com/hervehildenbrand/alert-radar/pkg/fastlog"
	"github.com/hervehildenbrand/alert-radar/pkg/feed"
	"github.com/hervehildenbrand/alert-radar/pkg/models"
	"github.com/hervehildenbrand/alert-radar/pkg/output"
	"github.com/hervehildenbrand/alert-radar/pkg/publish"
	"github.com/hervehildenbrand/alert-radar/pkg/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNoInput = errors.New("no input: set --in or --feed-url")

func (a *app) runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	defer a.finish()

	events, err := a.readEvents(ctx)
	if err != nil {
		return err
	}

	threshold := a.cfg.Burst.Threshold
	if a.cfg.Burst.Autoscale {
		threshold = report.EffectiveThreshold(threshold, len(events))
	}
	bursts, err := a.detect(events, threshold)
	if err != nil {
		return err
	}

	if err := a.writeEvents(cmd.OutOrStdout(), events, ""); err != nil {
		return err
	}
	if err := a.writeBursts(cmd.OutOrStdout(), bursts, ""); err != nil {
		return err
	}

	db, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	if err := a.persist(ctx, db, events, bursts); err != nil {
		return err
	}

	return report.Write(cmd.OutOrStdout(), events, bursts, report.Options{
		Input:              a.sourceName(),
		Top:                a.cfg.Top,
		RequestedThreshold: a.cfg.Burst.Threshold,
		EffectiveThreshold: threshold,
		WindowSeconds:      a.cfg.Burst.WindowSeconds,
		Labels:             a.labeler(ctx, db),
	})
}

func (a *app) runParse(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	defer a.finish()

	events, err := a.readEvents(ctx)
	if err != nil {
		return err
	}
	if err := a.writeEvents(cmd.OutOrStdout(), events, "-"); err != nil {
		return err
	}

	db, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	return a.persist(ctx, db, events, nil)
}

func (a *app) runDetect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	defer a.finish()

	events, err := a.readEvents(ctx)
	if err != nil {
		return err
	}
	bursts, err := a.detect(events, a.cfg.Burst.Threshold)
	if err != nil {
		return err
	}
	if err := a.writeBursts(cmd.OutOrStdout(), bursts, "-"); err != nil {
		return err
	}

	db, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	return a.persist(ctx, db, nil, bursts)
}

func (a *app) sourceName() string {
	if a.cfg.Feed.URL != "" {
		return a.cfg.Feed.URL
	}
	return a.cfg.Input
}

// readEvents parses the configured source into events, in input order.
func (a *app) readEvents(ctx context.Context) ([]models.Event, error) {
	grammar := fastlog.NewGrammar(fastlog.GrammarOptions{
		RequirePriority:  a.cfg.Grammar.RequirePriority,
		RequireSignature: a.cfg.Grammar.RequireSignature,
	})
	norm := fastlog.NewNormalizer(grammar, a.cfg.Year, a.cfg.Location)

	var stream *fastlog.Stream
	switch {
	case a.cfg.Feed.URL != "":
		client := feed.NewClient(a.cfg.Feed.URL,
			feed.WithSubscribe(a.cfg.Feed.Subscribe),
			feed.WithIdleTimeout(a.cfg.Feed.IdleTimeout),
			feed.WithLogger(a.logger))
		lines, err := client.Collect(ctx)
		if err != nil {
			return nil, err
		}
		stream = fastlog.NewStream(lines, norm)
	case a.cfg.Input != "":
		r, err := fastlog.Open(a.cfg.Input)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		stream = fastlog.NewReaderStream(r, norm)
	default:
		return nil, errNoInput
	}

	events, err := fastlog.Collect(stream)
	a.metrics.RecordParse(stream.LinesRead(), len(events), stream.LinesSkipped())
	if err != nil {
		return nil, err
	}

	a.logger.Info("parsed alert log",
		zap.String("source", a.sourceName()),
		zap.Int("lines", stream.LinesRead()),
		zap.Int("events", len(events)),
		zap.Int("skipped", stream.LinesSkipped()))
	return events, nil
}

func (a *app) detect(events []models.Event, threshold int) ([]models.Burst, error) {
	bursts, err := detector.DetectBursts(events, threshold, a.cfg.Burst.WindowSeconds)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordBursts(len(bursts))
	a.logger.Info("burst detection finished",
		zap.Int("threshold", threshold),
		zap.Int("window_seconds", a.cfg.Burst.WindowSeconds),
		zap.Int("bursts", len(bursts)))
	return bursts, nil
}

// jsonlWriter opens the configured path, falling back to fallback when the
// path is empty. "-" writes to out; an empty result disables the output.
func (a *app) jsonlWriter(out io.Writer, path, fallback string) (*output.JSONLWriter, error) {
	if path == "" {
		path = fallback
	}
	naive := a.cfg.Location == nil
	switch path {
	case "":
		return nil, nil
	case "-":
		return output.NewJSONLWriter(out, naive, report.SeverityFromPriority), nil
	default:
		return output.CreateJSONL(path, naive, report.SeverityFromPriority)
	}
}

func (a *app) writeEvents(out io.Writer, events []models.Event, fallback string) error {
	w, err := a.jsonlWriter(out, a.cfg.Output.EventsJSONL, fallback)
	if err != nil || w == nil {
		return err
	}
	if err := w.WriteEvents(events); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (a *app) writeBursts(out io.Writer, bursts []models.Burst, fallback string) error {
	w, err := a.jsonlWriter(out, a.cfg.Output.FindingsJSONL, fallback)
	if err != nil || w == nil {
		return err
	}
	if err := w.WriteBursts(bursts); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// openDatabase returns nil when no database is configured.
func (a *app) openDatabase(ctx context.Context) (*sql.DB, error) {
	if a.cfg.Database.URL == "" {
		return nil, nil
	}
	db, err := database.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// persist stores the run in the database and publishes its findings to
// Redis, whichever are configured. Both share one run id.
func (a *app) persist(ctx context.Context, db *sql.DB, events []models.Event, bursts []models.Burst) error {
	runID := uuid.NewString()

	if db != nil {
		w := database.NewEventWriter(db, a.logger)
		runID = w.RunID()
		w.Start()
		for _, e := range events {
			if err := w.WriteEvent(e); err != nil {
				w.Stop()
				return err
			}
		}
		for _, b := range bursts {
			if err := w.WriteBurst(b); err != nil {
				w.Stop()
				return err
			}
		}
		if err := w.Stop(); err != nil {
			return err
		}
	}

	if a.cfg.Redis.URL != "" && len(bursts) > 0 {
		client, err := publish.Connect(ctx, a.cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		p := publish.NewPublisher(client, a.cfg.Redis.Channel, a.cfg.Redis.TTL, a.logger)
		if err := p.Publish(ctx, runID, bursts); err != nil {
			return err
		}
	}
	return nil
}

// labeler prefers the CSV file over the database table. Label sources are
// cosmetic, so failures only log a warning.
func (a *app) labeler(ctx context.Context, db *sql.DB) report.Labeler {
	switch {
	case a.cfg.Labels.File != "":
		r, err := database.NewFileResolver(a.cfg.Labels.File, a.logger)
		if err != nil {
			a.logger.Warn("failed to load address labels", zap.String("path", a.cfg.Labels.File), zap.Error(err))
			break
		}
		return r
	case a.cfg.Labels.Table != "" && db != nil:
		r := database.NewDatabaseResolver(db, a.cfg.Labels.Table)
		if err := r.Load(ctx); err != nil {
			a.logger.Warn("failed to load address labels", zap.String("table", a.cfg.Labels.Table), zap.Error(err))
			break
		}
		a.logger.Info("loaded address labels", zap.String("table", a.cfg.Labels.Table), zap.Int("count", r.Count()))
		return r
	}
	return database.NewNullResolver()
}

// finish writes the metrics textfile, if configured, and flushes the logger.
func (a *app) finish() {
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path, time.Now()); err != nil {
			a.logger.Warn("failed to write metrics", zap.Error(err))
		}
	}
	a.logger.Sync()
}
