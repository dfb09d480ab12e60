package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/smileynet/qrcard"
	"github.com/smileynet/qrcard/internal/batch"
	"github.com/smileynet/qrcard/internal/config"
	"github.com/smileynet/qrcard/internal/directory"
	"github.com/smileynet/qrcard/internal/logging"
	"github.com/smileynet/qrcard/internal/output"
	"github.com/smileynet/qrcard/internal/render"
	"github.com/smileynet/qrcard/internal/state"
	"github.com/smileynet/qrcard/internal/tui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// CLI is the top-level command structure for qrcard.
type CLI struct {
	Version  kong.VersionFlag `help:"Show version." short:"V"`
	Generate GenerateCmd      `cmd:"" help:"Generate QR contact cards for directory users."`
	Report   ReportCmd        `cmd:"" help:"Show a stored run report."`
	Init     InitCmd          `cmd:"" help:"Write an example config to .qrcard/config.yaml."`
}

// GenerateCmd runs one batch. Zero-valued flags leave the config untouched.
type GenerateCmd struct {
	Config     string `help:"Config file applied after the user and project config."`
	Source     string `help:"Record source: ldap or file."`
	File       string `help:"Record list for the file source."`
	Filter     string `help:"Search filter (LDAP filter, or key=value for the file source)."`
	BaseDN     string `name:"base-dn" help:"LDAP search base."`
	LDAPURL    string `name:"ldap-url" help:"LDAP server URL."`
	BindDN     string `name:"bind-dn" help:"LDAP bind DN."`
	OutDir     string `name:"out-dir" help:"Output directory."`
	Scale      int    `help:"Pixels per module (10-2000)."`
	Dark       string `help:"Dark module color (#RRGGBB or r,g,b)."`
	Light      string `help:"Light module color (#RRGGBB or r,g,b)."`
	ECC        string `name:"ecc" help:"Error correction: low, medium, quartile or high."`
	Format     string `help:"Image format: png or svg."`
	Collisions string `help:"File name collisions: suffix or fail."`
	Workers    int    `help:"Records processed concurrently."`
	DryRun     bool   `name:"dry-run" help:"Render every card without writing anything."`
	NoTUI      bool   `name:"no-tui" help:"Force plain text output even if stdout is a TTY."`
	LogLevel   string `name:"log-level" help:"Log level: debug, info, warn or error."`
}

// generateDeps holds the collaborators of one batch run.
type generateDeps struct {
	source   directory.Source
	renderer batch.Renderer
	sink     output.Sink
	store    batch.ReportStore // nil on dry runs
	logger   *zap.Logger
}

// loadConfig loads layered config from user, project and explicit paths with
// env overrides. An explicit path must exist.
func loadConfig(explicit string) (*config.Config, error) {
	paths := []string{
		os.ExpandEnv("$HOME/.config/qrcard/config.yaml"),
		".qrcard/config.yaml",
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		paths = append(paths, explicit)
	}

	cfg, err := config.LoadLayered(paths...)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run executes the generate command.
func (g *GenerateCmd) Run() error {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	g.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	// The cancel func is passed to the TUI so keyboard abort (q / Ctrl+C)
	// stops the batch the same way a signal does.
	batchCtx, batchCancel := context.WithCancel(context.Background())
	defer batchCancel()

	bridge := tui.NewBridge()
	display := tui.NewDisplay(tui.DisplayOptions{
		Writer:     os.Stdout,
		ForcePlain: g.NoTUI,
		CancelFunc: batchCancel,
	})

	// Log lines would tear the TUI, so they go to a file while it is up.
	_, tuiMode := display.(*tui.TUIDisplay)
	logger, closeLog, err := newLogger(cfg, tuiMode)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	defer closeLog()

	deps, err := buildDeps(cfg, g.DryRun, logger)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	return g.run(batchCtx, os.Stdout, cfg, deps, display, bridge)
}

// applyFlags copies every set flag onto cfg.
func (g *GenerateCmd) applyFlags(cfg *config.Config) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	setString(&cfg.Source.Kind, g.Source)
	setString(&cfg.Source.File, g.File)
	setString(&cfg.LDAP.BaseDN, g.BaseDN)
	setString(&cfg.LDAP.URL, g.LDAPURL)
	setString(&cfg.LDAP.BindDN, g.BindDN)
	setString(&cfg.Output.Dir, g.OutDir)
	setInt(&cfg.Render.Scale, g.Scale)
	setString(&cfg.Render.Dark, g.Dark)
	setString(&cfg.Render.Light, g.Light)
	setString(&cfg.Render.ECC, g.ECC)
	setString(&cfg.Render.Format, g.Format)
	setString(&cfg.Output.Collisions, g.Collisions)
	setInt(&cfg.Batch.Workers, g.Workers)
	setString(&cfg.Logging.Level, g.LogLevel)

	// Only an LDAP filter goes through config validation.
	if cfg.Source.Kind == config.SourceLDAP {
		setString(&cfg.LDAP.Filter, g.Filter)
	}
}

// searchFilter returns the filter handed to the record source.
func (g *GenerateCmd) searchFilter(cfg *config.Config) string {
	if cfg.Source.Kind == config.SourceFile {
		return g.Filter
	}
	return cfg.LDAP.Filter
}

// newLogger builds the zap logger: stderr normally, a file under the state
// dir while the TUI owns the terminal. The returned func syncs and closes it.
func newLogger(cfg *config.Config, toFile bool) (*zap.Logger, func(), error) {
	if !toFile {
		logger, err := logging.New(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, nil, err
		}
		return logger, func() { _ = logger.Sync() }, nil
	}

	if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.State.Dir, "qrcard.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger, err := logging.New(cfg.Logging, f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return logger, func() {
		_ = logger.Sync()
		_ = f.Close()
	}, nil
}

// buildDeps wires the source, renderer, sink and report store for cfg.
func buildDeps(cfg *config.Config, dryRun bool, logger *zap.Logger) (generateDeps, error) {
	var src directory.Source
	switch cfg.Source.Kind {
	case config.SourceFile:
		src = directory.NewFileSource(cfg.Source.File)
	default:
		src = directory.NewLDAPSource(cfg.LDAPConfig())
	}

	var sink output.Sink
	switch {
	case dryRun:
		sink = output.DiscardSink{}
	case cfg.Output.Sink == config.SinkS3:
		bs, err := output.NewBucketSink(cfg.BucketConfig())
		if err != nil {
			return generateDeps{}, err
		}
		sink = bs
	default:
		sink = output.NewDirSink(cfg.Output.Dir)
	}

	deps := generateDeps{
		source:   src,
		renderer: render.NewRenderer(nil),
		sink:     sink,
		logger:   logger,
	}
	if !dryRun {
		deps.store = state.NewFileStore(cfg.State.Dir)
	}
	return deps, nil
}

// run executes the batch with display lifecycle management, enabling testable wiring.
func (g *GenerateCmd) run(parentCtx context.Context, w io.Writer, cfg *config.Config, deps generateDeps, display tui.Display, bridge *tui.Bridge) error {
	rc, err := cfg.RenderConfig()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	opts := []batch.Option{
		batch.WithConfig(rc),
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithCollisionPolicy(cfg.CollisionPolicy()),
		batch.WithCallback(tui.NewCallback(bridge)),
	}
	if deps.logger != nil {
		opts = append(opts, batch.WithLogger(deps.logger))
	}
	if deps.store != nil {
		opts = append(opts, batch.WithReportStore(deps.store))
	}
	runner := batch.NewRunner(deps.source, deps.renderer, deps.sink, opts...)

	// Start display goroutine.
	displayDone := make(chan error, 1)
	go func() {
		displayDone <- display.Run(context.Background(), bridge.Events())
	}()

	// Wrap with OS signal handling so Ctrl+C in non-TUI mode still works.
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	report, runErr := runner.Run(ctx, g.searchFilter(cfg))
	stop()

	finished := runErr == nil || errors.Is(runErr, batch.ErrInterrupted)
	if finished {
		bridge.Done(report)
	} else {
		bridge.Error(runErr)
	}

	// Wait for display to finish (so it releases the terminal).
	<-displayDone

	if finished {
		if g.DryRun {
			_, _ = fmt.Fprintln(w, "Dry run: nothing was written.")
		}
		report.Summary(w)
	}
	return runErr
}

// errNoReport is returned when the requested report does not exist.
var errNoReport = errors.New("report: no stored report")

// ReportCmd prints a stored run report.
type ReportCmd struct {
	RunID  string `arg:"" optional:"" help:"Run ID to show (latest when omitted)."`
	List   bool   `help:"List stored runs instead of showing one."`
	Config string `help:"Config file applied after the user and project config."`
}

// reportLoader abstracts report history for testing.
type reportLoader interface {
	Load(id string) (batch.Report, bool, error)
	Latest() (batch.Report, bool, error)
	List() ([]batch.Report, error)
}

// Run executes the report command.
func (c *ReportCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return c.run(os.Stdout, state.NewFileStore(cfg.State.Dir))
}

// run prints the report from store, enabling testable wiring.
func (c *ReportCmd) run(w io.Writer, store reportLoader) error {
	if c.List {
		reports, err := store.List()
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if len(reports) == 0 {
			_, _ = fmt.Fprintln(w, "No stored runs.")
			return nil
		}
		for _, r := range reports {
			_, _ = fmt.Fprintf(w, "%s  %s  %d/%d succeeded, %d failed\n",
				r.RunID, r.FinishedAt.Format(time.DateTime), r.Succeeded, r.Total, r.Failed())
		}
		return nil
	}

	var (
		r   batch.Report
		ok  bool
		err error
	)
	if c.RunID == "" {
		r, ok, err = store.Latest()
	} else {
		r, ok, err = store.Load(c.RunID)
	}
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if !ok {
		if c.RunID == "" {
			return errNoReport
		}
		return fmt.Errorf("%w for run %q", errNoReport, c.RunID)
	}

	r.Summary(w)
	return nil
}

// InitCmd writes the example config for the current project.
type InitCmd struct {
	Force bool `help:"Overwrite an existing config."`
}

// Run executes the init command.
func (c *InitCmd) Run() error {
	return c.run(os.Stdout, ".qrcard")
}

// run writes config.yaml under dir, enabling testable wiring.
func (c *InitCmd) run(w io.Writer, dir string) error {
	path := filepath.Join(dir, "config.yaml")
	if !c.Force {
		if _, err := os.Stat(path); err == nil {
			_, _ = fmt.Fprintf(w, "%s already exists (use --force to overwrite)\n", path)
			return nil
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := os.WriteFile(path, qrcard.ExampleConfig(), 0o644); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}

// Exit codes.
const (
	exitSuccess     = 0
	exitRuntime     = 1
	exitSetup       = 2
	exitInterrupted = 130
)

// exitCode maps an error to the appropriate exit code. Per-record failures
// never reach here: a batch that ran to the end returns nil.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, batch.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, directory.ErrSource), errors.Is(err, output.ErrEnsure), errors.Is(err, errNoReport):
		return exitRuntime
	default:
		return exitSetup
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("qrcard"),
		kong.Description("Generate QR-encoded vCards for directory users."),
		kong.Vars{"version": version + " " + commit + " " + date},
	)
	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
