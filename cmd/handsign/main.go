package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/config"
	"github.com/ayusman/handsign/internal/logger"
	"github.com/ayusman/handsign/internal/store"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"extract", "build X_data.npy, y_data.npy and labels.txt from a landmark manifest", runExtract},
	{"trim", "copy a random sample of images per class folder", runTrim},
	{"package", "bundle a classifier with its labels and score threshold", runPackage},
	{"serve", "run the recognition HTTP server", runServe},
	{"recognize", "recognize the sign in an image file", runRecognize},
	{"config", "print the effective configuration", runConfig},
}

// env is what every subcommand shares.
type env struct {
	cfg    *config.Config
	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: handsign <command> [-config handsign.yaml] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'handsign <command> -h' for command flags.")
}

// run executes one subcommand and returns the process exit code:
// 0 on success, 1 on failure, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "-help" || args[0] == "help" {
		usage(stderr)
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "handsign: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	cfgPath, logLevel, rest, err := globalFlags(args[1:])
	if err != nil {
		fmt.Fprintf(stderr, "handsign %s: %v\n", cmd.name, err)
		return 2
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "handsign: failed to load config: %v\n", err)
		return 1
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "handsign: %v\n", err)
		return 2
	}
	defer log.Sync()

	err = cmd.run(ctx, &env{cfg: cfg, log: log.Named(cmd.name), stdout: stdout, stderr: stderr}, rest)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "handsign %s: %v\n", cmd.name, err)
		return 2
	default:
		log.Error("command failed", zap.String("command", cmd.name), zap.Error(err))
		return 1
	}
}

var errUsage = errors.New("usage")

func usageErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, a...)...)
}

// globalFlags pulls -config and -log-level out of args, wherever they
// appear, and returns the remaining arguments for the subcommand.
func globalFlags(args []string) (cfgPath, logLevel string, rest []string, err error) {
	for i := 0; i < len(args); i++ {
		name, value, hasValue := splitFlag(args[i])
		switch name {
		case "config", "log-level":
		default:
			rest = append(rest, args[i])
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return "", "", nil, fmt.Errorf("flag -%s needs a value", name)
			}
			i++
			value = args[i]
		}
		if name == "config" {
			cfgPath = value
		} else {
			logLevel = value
		}
	}
	return cfgPath, logLevel, rest, nil
}

func splitFlag(arg string) (name, value string, hasValue bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", "", false
	}
	name = arg[1:]
	if name[0] == '-' {
		name = name[1:]
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '=' {
			return name[:i], name[i+1:], true
		}
	}
	return name, "", false
}

// newFlagSet returns a FlagSet that reports errors instead of exiting.
func (e *env) newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: handsign %s %s\n\nFlags:\n", name, synopsis)
		fs.PrintDefaults()
		fmt.Fprintln(e.stderr, "  -config string\n    \tpath to YAML config file")
		fmt.Fprintln(e.stderr, "  -log-level string\n    \tdebug, info, warn or error")
	}
	return fs
}

// parse parses args, mapping flag errors to usage errors.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageErrorf("%v", err)
	}
	if fs.NArg() > 0 {
		return usageErrorf("unexpected arguments %q", fs.Args())
	}
	return nil
}

// openStore opens the run history database. History is best effort: a
// store that cannot be opened is logged and nil is returned.
func (e *env) openStore() *store.Store {
	if e.cfg.DBPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.cfg.DBPath), 0o755); err != nil {
		e.log.Warn("run history disabled", zap.Error(err))
		return nil
	}
	st, err := store.New(e.cfg.DBPath)
	if err != nil {
		e.log.Warn("run history disabled", zap.String("db", e.cfg.DBPath), zap.Error(err))
		return nil
	}
	return st
}

// recordRun stores a finished run. runErr marks the run failed.
func (e *env) recordRun(run *store.Run, labels []store.RunLabel, options any, runErr error) {
	st := e.openStore()
	if st == nil {
		return
	}
	defer st.Close()

	if options != nil {
		if raw, err := json.Marshal(options); err == nil {
			run.Options = raw
		}
	}
	if runErr != nil {
		run.Status = store.RunStatusFailed
		run.Error = runErr.Error()
	}
	if err := st.Runs().Create(run, labels); err != nil {
		e.log.Warn("failed to record run", zap.Error(err))
		return
	}
	e.log.Debug("run recorded", zap.String("id", run.ID), zap.String("kind", string(run.Kind)))
}

func runConfig(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("config", "")
	if err := parse(fs, args); err != nil {
		return err
	}
	return config.Encode(e.stdout, e.cfg)
}
