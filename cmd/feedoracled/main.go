// feedoracled is the feed oracle daemon. It loads calculators, grants and
// seeds from the config file, keeps base feeds fresh from the BlockScholes API
// and writes Parquet snapshots of the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/feedoracle/internal/config"
	"github.com/xtxerr/feedoracle/internal/logging"
	"github.com/xtxerr/feedoracle/internal/oracle"
	"github.com/xtxerr/feedoracle/internal/snapshot"
	"github.com/xtxerr/feedoracle/internal/source"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("feedoracled")

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	envPath := flag.String("env", ".env", "dotenv file path")
	restore := flag.String("restore", "", "restore a Parquet snapshot at startup")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	noSource := flag.Bool("no-source", false, "disable the live source")
	once := flag.Bool("once", false, "poll the source once, export and exit")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: load %s: %v\n", *envPath, err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "No config file found, using defaults\n")
			cfg = config.DefaultConfig()
		} else {
			fatal("Load config: %v", err)
		}
	}

	// CLI overrides
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *noSource {
		cfg.Source.Enabled = false
	}

	if err := config.Validate(cfg); err != nil {
		fatal("Invalid config:\n%v", err)
	}

	cfg.InitLogging()
	log.Info("feedoracled starting", "version", Version, "config", *cfgPath)

	if err := run(cfg, *restore, *once); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, restorePath string, once bool) error {
	svc := oracle.New(cfg.RouterConfig())

	if restorePath != "" {
		if _, err := snapshot.Restore(restorePath, svc); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}

	// Seeds are applied after a restore so configured values win.
	if err := config.Apply(cfg, svc, time.Now()); err != nil {
		return err
	}

	var poller *source.Poller
	if cfg.Source.Enabled {
		p, err := source.NewFromConfig(cfg.Source, svc)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		poller = p
	}

	exportOpts := snapshot.Options{Compression: snapshot.ParseCompressionType(cfg.Export.Compression)}
	retention := snapshot.NewRetention(cfg.Export.Dir, cfg.Export.MaxAge.Duration(), cfg.Export.Keep)
	export := func() {
		now := time.Now()
		path := filepath.Join(cfg.Export.Dir, snapshot.FileName(now))
		if _, err := snapshot.Export(path, svc.Store().Snapshot(), exportOpts); err != nil {
			log.Warn("export failed", "path", path, "error", err)
			return
		}
		retention.Cleanup(now)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		if poller != nil {
			if err := poller.PollOnce(ctx); err != nil {
				log.Warn("poll failed", "error", err)
			}
		}
		export()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if poller != nil {
		g.Go(func() error { return poller.Run(gctx) })
	} else {
		log.Info("live source disabled")
	}

	if every := cfg.Export.Interval.Duration(); every > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
					export()
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err := g.Wait()
	log.Info("shutting down", "entries", svc.Count())

	if cfg.Export.OnShutdown {
		export()
	}

	st := svc.Stats()
	log.Info("final stats",
		"entries", st.Storage.Entries,
		"hits", st.Storage.Hits,
		"misses", st.Storage.Misses,
		"calculators", st.Calculators)
	if poller != nil {
		ps := poller.Stats()
		log.Info("source stats", "polls", ps.Polls, "failures", ps.Failures, "writes", ps.Writes)
	}
	return err
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
