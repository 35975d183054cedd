package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lpdoc/internal/config"
	"github.com/calvinalkan/lpdoc/internal/logging"
	"github.com/calvinalkan/lpdoc/pkg/dirlock"
	"github.com/calvinalkan/lpdoc/pkg/loader"
	"github.com/calvinalkan/lpdoc/pkg/migration"
	"github.com/calvinalkan/lpdoc/pkg/vfs"
)

// app is the state shared by all commands. cfg and log are set once the
// configuration is loaded, before any command executes.
type app struct {
	cfg config.Config
	env map[string]string
	log *logrus.Logger
}

func (a *app) commands() []*Command {
	return []*Command{
		VersionCmd(a),
		UpgradeCmd(a),
		LsCmd(a),
		CatCmd(a),
		GetCmd(a),
		ExportCmd(a),
		StatusCmd(a),
		FmtCmd(a),
		ConfigCmd(a),
	}
}

// abs resolves a command line path against the effective working directory.
func (a *app) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(a.cfg.EffectiveCwd, path)
}

func (a *app) registry() migration.Registry {
	return migration.Registry{Unstable: a.cfg.UnstableMigrations, Logger: a.log}
}

// openOptions maps the autosave and lock settings to [vfs.Options].
func (a *app) openOptions(o *IO, writable bool) vfs.Options {
	opts := vfs.Options{Writable: writable, Logger: a.log}

	switch a.cfg.Autosave {
	case config.AutosaveRestore:
		opts.RestoreAutosave = func(string) bool { return true }
	case config.AutosaveAsk:
		opts.RestoreAutosave = func(path string) bool {
			return o.Confirm(fmt.Sprintf("%s has unsaved changes from an earlier session. Restore them?", path))
		}
	}

	switch a.cfg.Lock {
	case config.LockOverride:
		opts.LockOverride = func(string, dirlock.Status, dirlock.Owner) bool { return true }
	default:
		opts.LockOverride = func(dir string, status dirlock.Status, owner dirlock.Owner) bool {
			return o.Confirm(fmt.Sprintf("%s is %s (%s). Open anyway?", dir, status, owner.DisplayName()))
		}
	}

	return opts
}

func (a *app) open(o *IO, path string, writable bool) (*loader.Document, error) {
	return loader.Open(a.abs(path), a.openOptions(o, writable))
}

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	a := &app{env: env, log: logging.New(errOut, logrus.WarnLevel)}

	globals := flag.NewFlagSet(program, flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	logLevel := globals.String("log-level", "", "Log `level` (error, warning, info, debug)")
	unstable := globals.Bool("unstable", false, "Enable unstable file format migrations")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, a.commands())

		return 1
	}

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out, a.commands())

		return 0
	}

	a.cfg, err = config.Load(config.LoadInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Overrides:       config.Overrides{LogLevel: *logLevel, Unstable: *unstable},
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	a.log.SetLevel(a.cfg.Level())

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

	name := rest[0]

	for _, cmd := range a.commands() {
		if cmd.Name() == name {
			return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
		}
	}

	fprintln(errOut, "error: unknown command:", name)
	printUsage(errOut, a.commands())

	return 1
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, program+` - inspect and upgrade LibrePCB documents

Usage: `+program+` [options] <command> [args]

Options:
  -C, --cwd <dir>          Run as if started in <dir>
  -c, --config <file>      Use specified config file
      --log-level <level>  Log level (error, warning, info, debug)
      --unstable           Enable unstable file format migrations

Documents are directories or zip archives (*.lppz, *.zip).

Commands:`)

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
