// Package shell implements the line-oriented command interpreter used by
// feedshell. Feeds are written in their string form, for example
//
//	option_price[0,1]{expiry_timestamp=1782460800,strike=100000.0,is_call=true}
package shell

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/logging"
	"github.com/xtxerr/feedoracle/internal/oracle"
	"github.com/xtxerr/feedoracle/internal/permission"
	"github.com/xtxerr/feedoracle/internal/snapshot"
	"github.com/xtxerr/feedoracle/internal/validation"
)

var log = logging.Component("shell")

// ErrQuit is returned by Execute for the quit and exit commands.
var ErrQuit = errors.New("quit")

// Options configures a Shell.
type Options struct {
	// ExportDir is used for export without a path.
	ExportDir string

	// Compression of exported snapshots.
	Compression snapshot.CompressionType

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Shell executes commands against an oracle service.
type Shell struct {
	svc   *oracle.Service
	opts  Options
	query *snapshot.QueryService
}

type command struct {
	usage string
	help  string
	run   func(s *Shell, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"add":    {"add <feed> <value> [ts]", "store a new base observation", (*Shell).cmdAdd},
		"update": {"update <feed> <value> [ts]", "overwrite an existing base observation", (*Shell).cmdUpdate},
		"put":    {"put <feed> <value> [ts]", "add or update a base observation", (*Shell).cmdPut},
		"get":    {"get <principal> <feed>", "read a feed on behalf of principal", (*Shell).cmdGet},
		"read":   {"read <feed>", "read a feed without a permission check", (*Shell).cmdRead},
		"greeks": {"greeks <principal> <feed>", "price an option feed with sensitivities", (*Shell).cmdGreeks},
		"remove": {"remove <feed>", "delete a base observation", (*Shell).cmdRemove},
		"reset":  {"reset", "drop all observations", (*Shell).cmdReset},
		"count":  {"count", "number of stored observations", (*Shell).cmdCount},
		"list":   {"list [type]", "list stored observations", (*Shell).cmdList},
		"grant":  {"grant <principal> <type> <mask>[,<mask>..]", "replace a permission record", (*Shell).cmdGrant},
		"revoke": {"revoke <principal> <type>", "remove a permission record", (*Shell).cmdRevoke},
		"check":  {"check <principal> <feed>", "test access without reading", (*Shell).cmdCheck},
		"grants": {"grants [principal]", "list permission records", (*Shell).cmdGrants},
		"calcs":  {"calcs", "list registered calculators", (*Shell).cmdCalcs},
		"stats":  {"stats", "storage and resolution statistics", (*Shell).cmdStats},
		"export": {"export [path]", "write a Parquet snapshot", (*Shell).cmdExport},
		"import": {"import <path>", "restore a Parquet snapshot", (*Shell).cmdImport},
		"query":  {"query <sql>", "run SQL over snapshot files (use read_parquet)", (*Shell).cmdQuery},
		"help":   {"help", "show this help", (*Shell).cmdHelp},
	}
}

// New creates a shell.
func New(svc *oracle.Service, opts Options) *Shell {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	return &Shell{svc: svc, opts: opts}
}

// Close releases the query engine if one was opened.
func (s *Shell) Close() error {
	if s.query != nil {
		return s.query.Close()
	}
	return nil
}

// Execute runs one command line and returns its output.
func (s *Shell) Execute(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil
	}

	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	if name == "quit" || name == "exit" {
		return "", ErrQuit
	}

	cmd, ok := commands[name]
	if !ok {
		return "", fmt.Errorf("unknown command %q (try help)", name)
	}

	var args []string
	if name == "query" {
		if q := strings.TrimSpace(rest); q != "" {
			args = []string{q}
		}
	} else {
		args = strings.Fields(rest)
	}

	out, err := cmd.run(s, args)
	if err != nil {
		if errors.IsConfigurationError(err) {
			log.Warn("calculator graph rejected command", "command", name, "error", err)
		} else {
			log.Debug("command failed", "command", name, "error", err)
		}
		return "", err
	}
	return out, nil
}

// =============================================================================
// Producer commands
// =============================================================================

func (s *Shell) parseWrite(args []string, usage string) (feed.Feed, float64, int64, error) {
	if len(args) < 2 || len(args) > 3 {
		return feed.Feed{}, 0, 0, usageError(usage)
	}
	f, err := feed.Parse(args[0])
	if err != nil {
		return feed.Feed{}, 0, 0, err
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return feed.Feed{}, 0, 0, errors.NewInvalidInput("value %q", args[1])
	}
	ts := s.opts.Now().Unix()
	if len(args) == 3 {
		ts, err = strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return feed.Feed{}, 0, 0, errors.NewInvalidInput("timestamp %q", args[2])
		}
	}
	return f, v, ts, nil
}

func (s *Shell) cmdAdd(args []string) (string, error) {
	f, v, ts, err := s.parseWrite(args, commands["add"].usage)
	if err != nil {
		return "", err
	}
	slot, err := s.svc.Add(f, v, ts)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("added %s at slot %d", f, slot), nil
}

func (s *Shell) cmdUpdate(args []string) (string, error) {
	f, v, ts, err := s.parseWrite(args, commands["update"].usage)
	if err != nil {
		return "", err
	}
	if err := s.svc.Update(f, v, ts); err != nil {
		return "", err
	}
	return "updated " + f.String(), nil
}

func (s *Shell) cmdPut(args []string) (string, error) {
	f, v, ts, err := s.parseWrite(args, commands["put"].usage)
	if err != nil {
		return "", err
	}
	added, err := s.svc.Put(f, v, ts)
	if err != nil {
		return "", err
	}
	if added {
		return "added " + f.String(), nil
	}
	return "updated " + f.String(), nil
}

func (s *Shell) cmdRemove(args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError(commands["remove"].usage)
	}
	f, err := feed.Parse(args[0])
	if err != nil {
		return "", err
	}
	if err := s.svc.Remove(f); err != nil {
		return "", err
	}
	return "removed " + f.String(), nil
}

func (s *Shell) cmdReset(args []string) (string, error) {
	s.svc.Reset()
	return "storage reset", nil
}

// =============================================================================
// Consumer commands
// =============================================================================

func principalAndFeed(args []string, usage string) (permission.Principal, feed.Feed, error) {
	if len(args) != 2 {
		return "", feed.Feed{}, usageError(usage)
	}
	p, err := parsePrincipal(args[0])
	if err != nil {
		return "", feed.Feed{}, err
	}
	f, err := feed.Parse(args[1])
	if err != nil {
		return "", feed.Feed{}, err
	}
	return p, f, nil
}

func parsePrincipal(s string) (permission.Principal, error) {
	if err := validation.ValidatePrincipal(s); err != nil {
		return "", errors.NewInvalidInput("%v", err)
	}
	return permission.Principal(s), nil
}

func formatData(d feed.Data) string {
	return fmt.Sprintf("%s @ %d (%s)",
		strconv.FormatFloat(d.Value, 'g', -1, 64),
		d.Timestamp,
		time.Unix(d.Timestamp, 0).UTC().Format(time.RFC3339))
}

func (s *Shell) cmdGet(args []string) (string, error) {
	p, f, err := principalAndFeed(args, commands["get"].usage)
	if err != nil {
		return "", err
	}
	d, err := s.svc.GetLatest(p, f)
	if err != nil {
		if errors.Is(err, errors.ErrPermissionDenied) {
			consumerLog(p).Info("read denied", "feed", f.String())
		}
		return "", err
	}
	return formatData(d), nil
}

func consumerLog(p permission.Principal) *slog.Logger {
	ctx := logging.ContextWithPrincipal(context.Background(), string(p))
	return logging.WithContext(ctx).With("component", "shell")
}

func (s *Shell) cmdRead(args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError(commands["read"].usage)
	}
	f, err := feed.Parse(args[0])
	if err != nil {
		return "", err
	}
	d, err := s.svc.GetLatestUnchecked(f)
	if err != nil {
		return "", err
	}
	return formatData(d), nil
}

func (s *Shell) cmdGreeks(args []string) (string, error) {
	p, f, err := principalAndFeed(args, commands["greeks"].usage)
	if err != nil {
		return "", err
	}
	r, ts, err := s.svc.Greeks(p, f)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "timestamp\t%d\n", ts)
	fmt.Fprintf(tw, "premium\t%.10g\n", r.Premium)
	fmt.Fprintf(tw, "delta\t%.10g\n", r.Delta)
	fmt.Fprintf(tw, "gamma\t%.10g\n", r.Gamma)
	fmt.Fprintf(tw, "vega\t%.10g\n", r.Vega)
	fmt.Fprintf(tw, "theta\t%.10g\n", r.Theta)
	fmt.Fprintf(tw, "volga\t%.10g\n", r.Volga)
	fmt.Fprintf(tw, "vanna\t%.10g\n", r.Vanna)
	tw.Flush()
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (s *Shell) cmdCount(args []string) (string, error) {
	return strconv.Itoa(s.svc.Count()), nil
}

func (s *Shell) cmdList(args []string) (string, error) {
	var filter *feed.Type
	if len(args) == 1 {
		t, err := feed.ParseType(args[0])
		if err != nil {
			return "", err
		}
		filter = &t
	} else if len(args) > 1 {
		return "", usageError(commands["list"].usage)
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tFEED\tVALUE\tTIMESTAMP")
	n := 0
	for _, e := range s.svc.Store().Snapshot() {
		if filter != nil && e.Feed.Type != *filter {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", e.Slot, e.Feed, strconv.FormatFloat(e.Data.Value, 'g', -1, 64), e.Data.Timestamp)
		n++
	}
	tw.Flush()
	if n == 0 {
		return "no observations", nil
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// =============================================================================
// Permission commands
// =============================================================================

func (s *Shell) cmdGrant(args []string) (string, error) {
	if len(args) != 3 {
		return "", usageError(commands["grant"].usage)
	}
	p, err := parsePrincipal(args[0])
	if err != nil {
		return "", err
	}
	t, err := feed.ParseType(args[1])
	if err != nil {
		return "", err
	}
	masks, err := parseMasks(args[2])
	if err != nil {
		return "", err
	}
	s.svc.Grant(p, t, masks)
	return fmt.Sprintf("granted %s on %s", args[0], t), nil
}

// parseMasks parses "0x3,6" into bitmasks. Each mask is decimal or 0x hex.
func parseMasks(s string) ([]uint64, error) {
	parts := strings.Split(s, ",")
	masks := make([]uint64, len(parts))
	for i, part := range parts {
		m, err := strconv.ParseUint(strings.TrimSpace(part), 0, 64)
		if err != nil {
			return nil, errors.NewInvalidInput("mask %q", part)
		}
		masks[i] = m
	}
	return masks, nil
}

func (s *Shell) cmdRevoke(args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError(commands["revoke"].usage)
	}
	t, err := feed.ParseType(args[1])
	if err != nil {
		return "", err
	}
	s.svc.Revoke(permission.Principal(args[0]), t)
	return fmt.Sprintf("revoked %s on %s", args[0], t), nil
}

func (s *Shell) cmdCheck(args []string) (string, error) {
	p, f, err := principalAndFeed(args, commands["check"].usage)
	if err != nil {
		return "", err
	}
	if s.svc.Permissions().CheckAccess(p, f) {
		return "allowed", nil
	}
	return "denied", nil
}

func (s *Shell) cmdGrants(args []string) (string, error) {
	var principals []permission.Principal
	switch len(args) {
	case 0:
		principals = s.svc.Permissions().Principals()
	case 1:
		principals = []permission.Principal{permission.Principal(args[0])}
	default:
		return "", usageError(commands["grants"].usage)
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRINCIPAL\tTYPE\tMASKS")
	n := 0
	for _, p := range principals {
		for _, g := range s.svc.Permissions().Grants(p) {
			masks := make([]string, len(g.Masks))
			for i, m := range g.Masks {
				masks[i] = fmt.Sprintf("%#x", m)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", g.Principal, g.Type, strings.Join(masks, ","))
			n++
		}
	}
	tw.Flush()
	if n == 0 {
		return "no grants", nil
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// =============================================================================
// Admin commands
// =============================================================================

func (s *Shell) cmdCalcs(args []string) (string, error) {
	regs := s.svc.Router().Registrations()
	if len(regs) == 0 {
		return "no calculators", nil
	}
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTPUT\tINPUTS")
	for _, r := range regs {
		in := make([]string, len(r.Inputs))
		for i, t := range r.Inputs {
			in[i] = t.String()
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.Output, strings.Join(in, ","))
	}
	tw.Flush()
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (s *Shell) cmdStats(args []string) (string, error) {
	st := s.svc.Stats()

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "entries\t%d\n", st.Storage.Entries)
	fmt.Fprintf(tw, "slots\t%d\n", st.Storage.Slots)
	fmt.Fprintf(tw, "version\t%d\n", st.Storage.Version)
	fmt.Fprintf(tw, "adds/updates/removes\t%d/%d/%d\n", st.Storage.Adds, st.Storage.Updates, st.Storage.Removes)
	fmt.Fprintf(tw, "hits/misses\t%d/%d\n", st.Storage.Hits, st.Storage.Misses)
	fmt.Fprintf(tw, "calculators\t%d\n", st.Calculators)
	fmt.Fprintf(tw, "principals\t%d\n", st.Principals)
	if s.opts.ExportDir != "" {
		if u, err := snapshot.Usage(s.opts.ExportDir); err == nil {
			fmt.Fprintf(tw, "snapshots\t%s\n", u)
		}
	}

	rs := toRouterStats(st)
	sort.Slice(rs, func(i, j int) bool { return rs[i].name < rs[j].name })
	for _, r := range rs {
		fmt.Fprintf(tw, "resolve %s\t%s\n", r.name, r.line)
	}
	tw.Flush()
	return strings.TrimRight(sb.String(), "\n"), nil
}

type routerStats struct {
	name string
	line string
}

func toRouterStats(st oracle.Stats) []routerStats {
	out := make([]routerStats, 0, len(st.Router))
	for _, r := range st.Router {
		out = append(out, routerStats{
			name: r.Output.String(),
			line: fmt.Sprintf("n=%d err=%d p50=%.3fms p99=%.3fms max=%.3fms",
				r.Resolves, r.Errors, r.P50Ms, r.P99Ms, r.MaxMs),
		})
	}
	return out
}

func (s *Shell) cmdExport(args []string) (string, error) {
	var path string
	switch len(args) {
	case 0:
		path = filepath.Join(s.opts.ExportDir, snapshot.FileName(s.opts.Now()))
	case 1:
		path = args[0]
	default:
		return "", usageError(commands["export"].usage)
	}
	n, err := snapshot.Export(path, s.svc.Store().Snapshot(), snapshot.Options{Compression: s.opts.Compression})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("exported %d rows to %s", n, path), nil
}

func (s *Shell) cmdImport(args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError(commands["import"].usage)
	}
	n, err := snapshot.Restore(args[0], s.svc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("restored %d rows from %s", n, args[0]), nil
}

func (s *Shell) cmdQuery(args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError(commands["query"].usage)
	}
	if s.query == nil {
		q, err := snapshot.NewQueryService()
		if err != nil {
			return "", err
		}
		s.query = q
	}

	rows, err := s.query.Query(context.Background(), args[0])
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "(0 rows)", nil
	}

	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, row := range rows {
		vals := make([]string, len(cols))
		for i, c := range cols {
			vals[i] = fmt.Sprint(row[c])
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(&sb, "(%d rows)", len(rows))
	return sb.String(), nil
}

func (s *Shell) cmdHelp(args []string) (string, error) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(tw, "quit\tleave the shell\n")
	tw.Flush()
	return strings.TrimRight(sb.String(), "\n"), nil
}

func usageError(usage string) error {
	return errors.NewInvalidInput("usage: %s", usage)
}
