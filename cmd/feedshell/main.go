// feedshell is an interactive shell over an in-process feed oracle. It loads
// the same configuration as feedoracled, can restore a daemon snapshot and
// optionally runs the live source in the background.
//
// With a terminal on stdin it offers completion and history; otherwise it
// executes commands line by line, which makes it usable for scripts:
//
//	echo "count" | feedshell -config config.yaml
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/xtxerr/feedoracle/internal/config"
	"github.com/xtxerr/feedoracle/internal/oracle"
	"github.com/xtxerr/feedoracle/internal/shell"
	"github.com/xtxerr/feedoracle/internal/snapshot"
	"github.com/xtxerr/feedoracle/internal/source"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	envPath := flag.String("env", ".env", "dotenv file path")
	restore := flag.String("restore", "", "restore a Parquet snapshot at startup")
	live := flag.Bool("live", false, "run the live source in the background")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: load %s: %v\n", *envPath, err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fatal("Load config: %v", err)
		}
		cfg = config.DefaultConfig()
	}
	cfg.Source.Enabled = *live
	if err := config.Validate(cfg); err != nil {
		fatal("Invalid config:\n%v", err)
	}

	// Keep log records out of the interactive output unless a file is set.
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	cfg.InitLogging()

	svc := oracle.New(cfg.RouterConfig())
	if *restore != "" {
		n, err := snapshot.Restore(*restore, svc)
		if err != nil {
			fatal("Restore: %v", err)
		}
		fmt.Printf("restored %d observations from %s\n", n, *restore)
	}
	if err := config.Apply(cfg, svc, time.Now()); err != nil {
		fatal("Apply config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if *live {
		poller, err := source.NewFromConfig(cfg.Source, svc)
		if err != nil {
			fatal("Source: %v", err)
		}
		go poller.Run(ctx)
	}

	sh := shell.New(svc, shell.Options{
		ExportDir:   cfg.Export.Dir,
		Compression: snapshot.ParseCompressionType(cfg.Export.Compression),
	})
	defer sh.Close()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		interactive(sh)
		return
	}
	if err := script(sh, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func interactive(sh *shell.Shell) {
	fmt.Println("feedshell - type help for commands, quit to leave")

	done := false
	executor := func(line string) {
		out, err := sh.Execute(line)
		switch {
		case errors.Is(err, shell.ErrQuit):
			done = true
		case err != nil:
			fmt.Println("error:", err)
		case out != "":
			fmt.Println(out)
		}
	}

	p := prompt.New(
		executor,
		sh.Complete,
		prompt.OptionPrefix("feed> "),
		prompt.OptionTitle("feedshell"),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return done }),
	)
	p.Run()
}

// script executes lines from r and stops at the first failing command.
func script(sh *shell.Shell, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		out, err := sh.Execute(scanner.Text())
		if errors.Is(err, shell.ErrQuit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if out != "" {
			fmt.Fprintln(w, out)
		}
	}
	return scanner.Err()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
