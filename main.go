package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"tmengine/internal/adapters/cache"
	dbsqlite "tmengine/internal/adapters/db/sqlite"
	"tmengine/internal/adapters/mt/httpclient"
	"tmengine/internal/config"
	"tmengine/internal/ports"
	"tmengine/internal/usecase/exchange"
	"tmengine/internal/usecase/maintenance"
	"tmengine/internal/usecase/matcher"
	"tmengine/internal/usecase/translator"
)

var version = "1.0.0"

func main() {
	_ = godotenv.Load()
	setupLogger()

	app := &cli.App{
		Name:    "tmengine",
		Usage:   "Translation memory engine for game localization",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
			},
		},
		Commands: []*cli.Command{
			matchCommand(),
			addCommand(),
			translateCommand(),
			importCommand(),
			exportCommand(),
			cleanupCommand(),
			statsCommand(),
			providerTestCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// engine bundles the wired services a command needs, plus their teardown.
type engine struct {
	cfg     *config.AppConfig
	entries *dbsqlite.EntryRepo
	traces  *dbsqlite.TraceRepo
	cache   ports.MatchCache
	matcher *matcher.Service
	close   func()
}

func buildEngine(c *cli.Context) (*engine, error) {
	var cfg *config.AppConfig
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	db, err := dbsqlite.Init(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = db.Close() }}

	var mc ports.MatchCache
	ttl := time.Duration(cfg.Cache.TTLSecs) * time.Second
	switch cfg.Cache.Type {
	case "redis":
		rc, err := cache.NewRedis(cache.RedisConfig{
			URL:       cfg.Cache.Redis.URL,
			TTL:       ttl,
			KeyPrefix: cfg.Cache.Redis.KeyPrefix,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		mc = rc
	default:
		mc = cache.NewMemory(ttl)
	}

	entries := dbsqlite.NewEntryRepo(db)
	traces := dbsqlite.NewTraceRepo(db)
	m := matcher.New(matcher.Deps{Entries: entries, Traces: traces, Cache: mc},
		matcher.WithWeights(cfg.Matching.Weights),
		matcher.WithThresholds(cfg.Matching.Thresholds),
		matcher.WithMachineQuality(cfg.Matching.MachineQuality),
	)

	return &engine{
		cfg:     cfg,
		entries: entries,
		traces:  traces,
		cache:   mc,
		matcher: m,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func (e *engine) provider() (ports.Provider, error) {
	p := e.cfg.Provider
	if p == nil || p.BaseURL == "" {
		return nil, nil
	}
	apiKey := os.Getenv(p.APIKeyEnv)
	return httpclient.New(p.BaseURL, apiKey, p.Model, time.Duration(p.TimeoutSecs)*time.Second), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func matchCommand() *cli.Command {
	return &cli.Command{
		Name:  "match",
		Usage: "Look up a segment in the translation memory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Required: true, Usage: "Source segment"},
			&cli.StringFlag{Name: "target-lang", Required: true, Usage: "Target language code"},
			&cli.StringFlag{Name: "context", Usage: "Domain context hint"},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEngine(c)
			if err != nil {
				return err
			}
			defer e.close()
			set, err := e.matcher.FindMatches(c.Context, matcher.Query{
				SourceText: c.String("text"),
				TargetLang: c.String("target-lang"),
				Context:    c.String("context"),
			})
			if err != nil {
				return err
			}
			if set.Empty() {
				fmt.Fprintln(os.Stderr, "no match")
				return nil
			}
			return printJSON(set)
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Store a confirmed translation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Required: true, Usage: "Source segment"},
			&cli.StringFlag{Name: "translation", Required: true, Usage: "Target segment"},
			&cli.StringFlag{Name: "source-lang", Value: "en", Usage: "Source language code"},
			&cli.StringFlag{Name: "target-lang", Required: true, Usage: "Target language code"},
			&cli.StringFlag{Name: "context", Usage: "Domain context"},
			&cli.Float64Flag{Name: "quality", Value: -1, Usage: "Quality rating in [0,1]"},
			&cli.BoolFlag{Name: "human", Usage: "Mark as human-confirmed (quality 1.0)"},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEngine(c)
			if err != nil {
				return err
			}
			defer e.close()
			args := matcher.ConfirmArgs{
				SourceText:     c.String("text"),
				SourceLang:     c.String("source-lang"),
				TargetLang:     c.String("target-lang"),
				TargetText:     c.String("translation"),
				Context:        c.String("context"),
				HumanConfirmed: c.Bool("human"),
			}
			if q := c.Float64("quality"); q >= 0 {
				args.Quality = &q
			}
			entry, err := e.matcher.Confirm(c.Context, args)
			if err != nil {
				return err
			}
			return printJSON(entry)
		},
	}
}

func translateCommand() *cli.Command {
	return &cli.Command{
		Name:  "translate",
		Usage: "Translate a segment, memory first, provider fallback",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Required: true, Usage: "Source segment"},
			&cli.StringFlag{Name: "source-lang", Value: "en", Usage: "Source language code"},
			&cli.StringFlag{Name: "target-lang", Required: true, Usage: "Target language code"},
			&cli.StringFlag{Name: "context", Usage: "Domain context hint"},
			&cli.StringFlag{Name: "model", Usage: "Provider model override"},
			&cli.StringFlag{Name: "ref", Usage: "Consumer reference recorded on the usage trace"},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEngine(c)
			if err != nil {
				return err
			}
			defer e.close()
			prov, err := e.provider()
			if err != nil {
				return err
			}
			svc := translator.New(translator.Deps{Matcher: e.matcher, Provider: prov})
			res, err := svc.Translate(c.Context, translator.TranslateArgs{
				SourceText:  c.String("text"),
				SourceLang:  c.String("source-lang"),
				TargetLang:  c.String("target-lang"),
				Context:     c.String("context"),
				Model:       c.String("model"),
				ConsumerRef: c.String("ref"),
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a TMX file into the memory",
		ArgsUsage: "<file.tmx>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "policy", Value: "skip", Usage: "Conflict policy: skip or overwrite"},
			&cli.BoolFlag{Name: "merge-usage", Usage: "Honor exported usage counts"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one TMX file", 2)
			}
			e, err := buildEngine(c)
			if err != nil {
				return err
			}
			defer e.close()
			f, err := os.Open(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()
			report, err := exchange.NewImporter(e.entries, e.cache, nil).Import(c.Context, f, exchange.ImportOptions{
				Policy:     exchange.ConflictPolicy(c.String("policy")),
				MergeUsage: c.Bool("merge-usage"),
			})
			if report != nil {
				for _, recErr := range report.Errors {
					slog.Warn("record skipped", "error", recErr)
				}
				_ = printJSON(report)
			}
			return err
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the memory as TMX",
		ArgsUsage: "<file.tmx>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source-lang", Value: "en", Usage: "Header source language"},
			&cli.StringFlag{Name: "target-lang", Required: true, Usage: "Target language to export"},
			&cli.StringFlag{Name: "context", Usage: "Restrict to one context"},
			&cli.Float64Flag{Name: "min-quality", Value: -1, Usage: "Drop rated entries below this"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one output file", 2)
			}
			e, err := buildEngine(c)
			if err != nil {
				return err
			}
			defer e.close()
			f, err := os.Create(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()
			opts := exchange.ExportOptions{
				SourceLang: c.String("source-lang"),
				TargetLang: c.String("target-lang"),
				Context:    c.String("context"),
			}
			if q := c.Float64("min-quality"); q >= 0 {
				opts.MinQuality = &q
			}
			written, err := exchange.NewExporter(e.entries, nil).Export(c.Context, f, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "exported %d units\n", written)
			return nil
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Evict stale low-quality entries",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "min-quality", Usage: "Evict rated entries below this"},
			&cli.IntFlag{Name: "max-age-days", Usage: "Only entries unused for this long"},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEngine(c)
			if err != nil {
				return err
			}
			defer e.close()
			p := maintenance.Policy{
				MinQuality: e.cfg.Maintenance.MinQuality,
				MaxAge:     time.Duration(e.cfg.Maintenance.MaxAgeDays) * 24 * time.Hour,
			}
			if c.IsSet("min-quality") {
				p.MinQuality = c.Float64("min-quality")
			}
			if c.IsSet("max-age-days") {
				p.MaxAge = time.Duration(c.Int("max-age-days")) * 24 * time.Hour
			}
			n, err := maintenance.New(e.entries, e.cache, nil).Cleanup(c.Context, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "evicted %d entries\n", n)
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregate memory statistics",
		Action: func(c *cli.Context) error {
			e, err := buildEngine(c)
			if err != nil {
				return err
			}
			defer e.close()
			stats, err := e.entries.AggregateStats(c.Context)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func providerTestCommand() *cli.Command {
	return &cli.Command{
		Name:  "provider-test",
		Usage: "Verify provider connectivity and credentials",
		Action: func(c *cli.Context) error {
			e, err := buildEngine(c)
			if err != nil {
				return err
			}
			defer e.close()
			prov, err := e.provider()
			if err != nil {
				return err
			}
			if prov == nil {
				return cli.Exit("no provider configured", 1)
			}
			if err := prov.Test(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "provider ok")
			return nil
		},
	}
}
