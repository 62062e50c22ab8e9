// Command gmedia manages files and folders on a configured storage adapter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"go.uber.org/zap"

	"github.com/franksops/gomedia/adapter"
	"github.com/franksops/gomedia/config"
	"github.com/franksops/gomedia/engine"
	"github.com/franksops/gomedia/logging"
	"github.com/franksops/gomedia/media"
	"github.com/franksops/gomedia/sanitize"
	"github.com/franksops/gomedia/store"
	"github.com/franksops/gomedia/ui"
)

// Exit codes. Adapter failures exit 1.
const (
	exitOK            = 0
	exitFailure       = 1
	exitUsage         = 2
	exitConfiguration = 3
	exitNotFound      = 4
	exitConflict      = 5
)

const usage = `Usage: gmedia [-config file] [-adapter name] [-v] <command> [args]

Commands:
  ls [-1] [path] [filter]        list a folder (filter: glob or substring)
  stat [path]                    show one file or folder
  mkdir <name> <path>            create a folder
  put <name> <path> <file|->     create a file from a local file or stdin
  update <name> <path> <file|->  replace the content of an existing file
  rm <path>                      delete a file or folder
  cp [-force] <src> <dst>        copy a file or folder
  mv [-force] <src> <dst>        move a file or folder
  sanitize <name>...             print the storage-safe form of each name
  adapters                       list the configured adapters
  jobs [-prune age]              list journaled jobs, or drop finished ones older than age

Examples:
  gmedia -adapter local put "My File!.TXT" /docs ./notes.txt
  GMEDIA_S3_BUCKET=photos gmedia -adapter s3 cp -force /albums /backup
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app is the state shared by one command invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	stdin   io.Reader
	out     *ui.Printer
	errOut  *ui.Printer
	closers []io.Closer

	// progress is set when stdout is a terminal; cp and mv then draw a
	// progress display fed by every saved job record.
	progress bool
	observe  func(store.JobRecord)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gmedia", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	var (
		configPath  string
		adapterName string
		verbose     bool
	)
	fs.StringVar(&configPath, "config", "", "YAML configuration file")
	fs.StringVar(&adapterName, "adapter", "", "adapter to use (local, bolt, s3, gcs); the first configured one by default")
	fs.BoolVar(&verbose, "v", false, "log debug output to stderr")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	errOut := ui.NewPrinter(stderr)

	cfg, err := config.Load(configPath)
	if err != nil {
		errOut.Error(&adapter.Error{Kind: adapter.KindConfiguration, Op: "config", Message: "cannot load configuration", Err: err})
		return exitConfiguration
	}
	if adapterName != "" {
		cfg.Adapter = adapterName
		if err := cfg.Validate(); err != nil {
			errOut.Error(&adapter.Error{Kind: adapter.KindConfiguration, Op: "config", Message: "invalid configuration", Err: err})
			return exitConfiguration
		}
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		errOut.Error(&adapter.Error{Kind: adapter.KindConfiguration, Op: "logger", Message: "cannot create logger", Err: err})
		return exitConfiguration
	}
	defer logger.Sync()

	a := &app{
		cfg:    cfg,
		logger: logger,
		stdin:  stdin,
		out:    ui.NewPrinter(stdout),
		errOut: errOut,
	}
	if f, ok := stdout.(*os.File); ok && term.IsTerminal(f.Fd()) && !verbose {
		a.progress = true
	}
	defer a.close()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if err := a.dispatch(ctx, cmd, cmdArgs); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "gmedia %s: %s\n\n", cmd, ue)
			fmt.Fprint(stderr, usage)
			return exitUsage
		}
		logger.Debug("command failed", zap.String("command", cmd), zap.Error(err))
		errOut.Error(err)
		return exitCode(err)
	}
	return exitOK
}

// usageError reports malformed command-line arguments.
type usageError string

func (e usageError) Error() string { return string(e) }

// exitCode maps an error kind to the process exit code.
func exitCode(err error) int {
	switch adapter.KindOf(err) {
	case adapter.KindConfiguration:
		return exitConfiguration
	case adapter.KindNotFound:
		return exitNotFound
	case adapter.KindConflict:
		return exitConflict
	default:
		return exitFailure
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "sanitize":
		return a.sanitize(args)
	case "adapters":
		return a.adapters(ctx)
	case "jobs":
		return a.jobs(args)
	case "ls":
		return a.ls(ctx, args)
	case "stat":
		return a.stat(ctx, args)
	case "mkdir":
		return a.mkdir(ctx, args)
	case "put":
		return a.put(ctx, args, false)
	case "update":
		return a.put(ctx, args, true)
	case "rm":
		return a.rm(ctx, args)
	case "cp":
		return a.transfer(ctx, "cp", args)
	case "mv":
		return a.transfer(ctx, "mv", args)
	}
	return usageError(fmt.Sprintf("unknown command %q", cmd))
}

// openStore opens the job journal when transfer.state_dir is set.
func (a *app) openStore() (*store.BoltStore, error) {
	if a.cfg.Transfer.StateDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(a.cfg.Transfer.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	s, err := store.NewBoltStore(filepath.Join(a.cfg.Transfer.StateDir, "jobs.db"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s)
	return s, nil
}

// progressCheckpoints saves running jobs often enough for the progress
// display; only the in-memory store is used with it.
var progressCheckpoints = engine.CheckpointConfig{
	BytesInterval: 1024 * 1024,
	TimeInterval:  200 * time.Millisecond,
}

// facade resolves the configured adapter. withJournal attaches the job
// tracker used by folder copies; with a progress observer and no journal
// file the jobs are tracked in memory.
func (a *app) facade(ctx context.Context, withJournal bool) (*media.Facade, error) {
	opts := engine.TransferOptions{Workers: a.cfg.Transfer.Workers}
	if withJournal {
		bs, err := a.openStore()
		if err != nil {
			return nil, &adapter.Error{Kind: adapter.KindConfiguration, Op: "journal", Message: "cannot open job journal", Err: err}
		}
		switch {
		case bs != nil:
			opts.Tracker = engine.NewJobTracker(bs, engine.DefaultCheckpointConfig)
		case a.observe != nil:
			opts.Tracker = engine.NewJobTracker(store.NewMemoryStore(), progressCheckpoints)
		}
		if opts.Tracker != nil && a.observe != nil {
			opts.Tracker.OnUpdate(a.observe)
		}
	}

	reg, err := buildRegistry(a.cfg, a.logger, opts)
	if err != nil {
		return nil, &adapter.Error{Kind: adapter.KindConfiguration, Op: "registry", Message: "cannot register adapters", Err: err}
	}

	f, err := media.NewFromRegistry(ctx, reg, a.cfg.Adapter, media.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if c, ok := f.Adapter().(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return f, nil
}

func (a *app) sanitize(args []string) error {
	if len(args) == 0 {
		return usageError("at least one name is required")
	}
	for _, raw := range args {
		fmt.Fprintln(a.out.Writer(), sanitize.Name(raw))
	}
	return nil
}

func (a *app) adapters(ctx context.Context) error {
	reg, err := buildRegistry(a.cfg, a.logger, engine.TransferOptions{})
	if err != nil {
		return &adapter.Error{Kind: adapter.KindConfiguration, Op: "registry", Message: "cannot register adapters", Err: err}
	}

	names := reg.Names()
	if len(names) == 0 {
		a.out.Info("no adapters configured")
		return nil
	}
	selected := a.cfg.Adapter
	if selected == "" {
		selected = names[0]
	}
	for _, name := range names {
		marker := " "
		if name == selected {
			marker = "*"
		}
		fmt.Fprintf(a.out.Writer(), "%s %s\n", marker, name)
	}
	return nil
}

func (a *app) jobs(args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	prune := fs.Duration("prune", 0, "delete finished jobs older than this")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if *prune < 0 {
		return usageError("-prune must not be negative")
	}

	s, err := a.openStore()
	if err != nil {
		return &adapter.Error{Kind: adapter.KindConfiguration, Op: "jobs", Message: "cannot open job journal", Err: err}
	}
	if s == nil {
		return &adapter.Error{Kind: adapter.KindConfiguration, Op: "jobs", Message: "transfer.state_dir is not set"}
	}

	if *prune > 0 {
		n, err := s.PruneJobs(time.Now().Add(-*prune))
		if err != nil {
			return err
		}
		a.out.Success("pruned %d jobs", n)
		return nil
	}

	jobs, err := s.ListJobs()
	if err != nil {
		return err
	}
	a.out.Jobs(jobs)
	return nil
}

func (a *app) ls(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	namesOnly := fs.Bool("1", false, "print names only")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() > 2 {
		return usageError("ls takes at most a path and a filter")
	}

	f, err := a.facade(ctx, false)
	if err != nil {
		return err
	}
	entries, err := f.GetFiles(ctx, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}

	if *namesOnly {
		if len(entries) > 0 {
			fmt.Fprintln(a.out.Writer(), ui.Names(entries))
		}
		return nil
	}
	a.out.Entries(entries)
	return nil
}

func (a *app) stat(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usageError("stat takes at most one path")
	}
	var p string
	if len(args) == 1 {
		p = args[0]
	}

	f, err := a.facade(ctx, false)
	if err != nil {
		return err
	}
	e, err := f.GetFile(ctx, p)
	if err != nil {
		return err
	}
	a.out.Entry(e)
	return nil
}

func (a *app) mkdir(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("mkdir needs a name and a path")
	}

	f, err := a.facade(ctx, false)
	if err != nil {
		return err
	}
	name, err := f.CreateFolder(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	a.out.Success("created %s", path.Join("/", args[1], name))
	return nil
}

func (a *app) put(ctx context.Context, args []string, replace bool) error {
	if len(args) != 3 {
		return usageError("need a name, a path and a source file")
	}
	data, err := a.readSource(args[2])
	if err != nil {
		return err
	}

	f, err := a.facade(ctx, false)
	if err != nil {
		return err
	}

	if replace {
		if err := f.UpdateFile(ctx, args[0], args[1], data); err != nil {
			return err
		}
		a.out.Success("updated %s (%s)", path.Join("/", args[1], args[0]), ui.FormatSize(int64(len(data))))
		return nil
	}

	name, err := f.CreateFile(ctx, args[0], args[1], data)
	if err != nil {
		return err
	}
	a.out.Success("created %s (%s)", path.Join("/", args[1], name), ui.FormatSize(int64(len(data))))
	return nil
}

func (a *app) readSource(src string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if src == "-" {
		data, err = io.ReadAll(a.stdin)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, &adapter.Error{Kind: adapter.KindAdapter, Op: "read", Path: src, Message: "cannot read source", Err: err}
	}
	return data, nil
}

func (a *app) rm(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("rm needs exactly one path")
	}

	f, err := a.facade(ctx, false)
	if err != nil {
		return err
	}
	if err := f.Delete(ctx, args[0]); err != nil {
		return err
	}
	a.out.Success("deleted %s", args[0])
	return nil
}

func (a *app) transfer(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	force := fs.Bool("force", false, "replace an existing destination")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() != 2 {
		return usageError(cmd + " needs a source and a destination")
	}
	src, dst := fs.Arg(0), fs.Arg(1)

	var prog *tea.Program
	if a.progress {
		title := fmt.Sprintf("gmedia %s %s -> %s", cmd, src, dst)
		prog = tea.NewProgram(ui.NewTransferModel(title), tea.WithOutput(a.out.Writer()), tea.WithInput(a.stdin))
		a.observe = func(rec store.JobRecord) { prog.Send(ui.JobUpdateMsg(rec)) }
	}

	f, err := a.facade(ctx, true)
	if err != nil {
		return err
	}

	do := func(ctx context.Context) error {
		if cmd == "mv" {
			return f.Move(ctx, src, dst, *force)
		}
		return f.Copy(ctx, src, dst, *force)
	}
	if prog != nil {
		err = runWithProgress(ctx, prog, do)
	} else {
		err = do(ctx)
	}
	if err != nil {
		return err
	}

	verb := map[string]string{"cp": "copied", "mv": "moved"}[cmd]
	a.out.Success("%s %s -> %s", verb, src, dst)
	return nil
}

// runWithProgress runs do while prog draws its jobs. Quitting the display
// cancels do.
func runWithProgress(ctx context.Context, prog *tea.Program, do func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		err := do(ctx)
		prog.Send(ui.TransferDoneMsg{Err: err})
		errc <- err
	}()

	final, uiErr := prog.Run()
	if m, ok := final.(ui.TransferModel); uiErr != nil || (ok && m.Aborted()) {
		cancel()
	}
	err := <-errc
	if err == nil && uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return uiErr
	}
	return err
}
