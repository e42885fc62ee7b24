// Package cli implements the kb command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/calvinalkan/docbase/internal/config"
	"github.com/calvinalkan/docbase/internal/engine"
	"github.com/calvinalkan/docbase/internal/store"
)

var errFlagRequiresArg = errors.New("flag requires an argument")

// app is what every command needs: resolved config and a wired engine.
type app struct {
	cfg     config.Config
	engine  *engine.Engine
	backend *store.Backend
	logger  *slog.Logger
	env     map[string]string
	stdin   io.Reader
}

// Run is the main entry point. Returns exit code.
// sigCh may be nil; a received signal cancels the command's context.
func Run(stdin io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(stdin, out, errOut)

	flags, err := parseGlobalFlags(args[min(1, len(args)):])
	if err != nil {
		o.ErrPrintln("error:", err)
		printUsage(o.errOut)

		return exitUsage
	}

	if len(flags.remaining) == 0 || flags.remaining[0] == "-h" || flags.remaining[0] == "--help" || flags.remaining[0] == "help" {
		printUsage(out)

		return exitOK
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride:  flags.workDir,
		ConfigPath:       flags.configPath,
		DataFileOverride: flags.dataFile,
		Env:              env,
	})
	if err != nil {
		o.ErrPrintln("error:", err)

		return exitFailure
	}

	a, err := newApp(cfg, stdin, errOut, env)
	if err != nil {
		o.ErrPrintln("error:", err)

		return exitFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return a.dispatch(ctx, o, flags.remaining)
}

func newApp(cfg config.Config, stdin io.Reader, errOut io.Writer, env map[string]string) (*app, error) {
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	backend, err := store.New(cfg.DataFileAbs, store.Options{LockTimeout: cfg.LockTimeout, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		engine:  engine.New(backend, engine.Options{Logger: logger}),
		backend: backend,
		logger:  logger,
		env:     env,
		stdin:   stdin,
	}, nil
}

// commands builds a fresh command set. FlagSets keep state, so the shell
// calls this once per line.
func (a *app) commands() []*Command {
	return []*Command{
		ListCmd(a),
		ShowCmd(a),
		CreateCmd(a),
		UpdateCmd(a),
		DeleteCmd(a),
		HistoryCmd(a),
		RestoreCmd(a),
		SearchCmd(a),
		TagsCmd(a),
		ExportCmd(a),
		ImportCmd(a),
		ServeCmd(a),
		ShellCmd(a),
		PrintConfigCmd(a),
	}
}

func (a *app) dispatch(ctx context.Context, o *IO, args []string) int {
	name := args[0]

	for _, cmd := range a.commands() {
		if cmd.Name() == name {
			return cmd.Run(ctx, o, args[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", name)
	printUsage(o.errOut)

	return exitUsage
}

func printUsage(w io.Writer) {
	var b strings.Builder

	b.WriteString("kb - personal knowledge base\n\n")
	b.WriteString("Usage: kb [-C dir] [-c config] [--data-file path] <command> [args]\n\n")
	b.WriteString("Commands:\n")

	for _, cmd := range (&app{}).commands() {
		b.WriteString(cmd.HelpLine())
		b.WriteString("\n")
	}

	b.WriteString("\nRun 'kb <command> --help' for command flags.\n")

	_, _ = io.WriteString(w, b.String())
}

type globalFlags struct {
	workDir    string
	configPath string
	dataFile   string
	remaining  []string
}

// parseGlobalFlags consumes global flags up to the first non-flag argument,
// which is the command name.
func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	for i := 0; i < len(args); i++ {
		arg := args[i]

		target, value, consumed, err := matchGlobal(args, i)
		if err != nil {
			return globalFlags{}, err
		}

		if target == "" {
			flags.remaining = args[i:]

			return flags, nil
		}

		switch target {
		case "cwd":
			flags.workDir = value
		case "config":
			flags.configPath = value
		case "data-file":
			flags.dataFile = value
		default:
			return globalFlags{}, fmt.Errorf("unknown flag: %s", arg)
		}

		i += consumed - 1
	}

	return flags, nil
}

// matchGlobal returns the flag name at args[i], its value and how many
// arguments it used. An empty name means args[i] is not a global flag.
func matchGlobal(args []string, i int) (string, string, int, error) {
	arg := args[i]

	long := map[string]string{"--cwd": "cwd", "--config": "config", "--data-file": "data-file"}
	short := map[string]string{"-C": "cwd", "-c": "config"}

	if name, ok := long[arg]; ok {
		return withValue(args, i, name)
	}

	if name, ok := short[arg]; ok {
		return withValue(args, i, name)
	}

	for flag, name := range long {
		if after, ok := strings.CutPrefix(arg, flag+"="); ok {
			return name, after, 1, nil
		}
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok && after != "" {
		return "cwd", after, 1, nil
	}

	return "", "", 0, nil
}

func withValue(args []string, i int, name string) (string, string, int, error) {
	if i+1 >= len(args) {
		return "", "", 0, fmt.Errorf("%w: %s", errFlagRequiresArg, args[i])
	}

	return name, args[i+1], 2, nil
}
