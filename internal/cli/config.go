package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lpdoc/internal/config"
)

var errNoHome = errors.New("cannot determine global config path: neither XDG_CONFIG_HOME nor HOME is set")

// ConfigCmd returns the config command.
func ConfigCmd(a *app) *Command {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.Bool("global", false, "With init: write the global config instead of "+config.FileName)

	return &Command{
		Flags: fs,
		Usage: "config <init|show> [flags]",
		Short: "Show resolved configuration or write a default one",
		Long: `"config show" prints the effective configuration and the files it was
loaded from. "config init" writes the defaults to ` + config.FileName + ` in the
working directory, or to the global config file with --global.`,
		MinArgs: 1,
		MaxArgs: 1,
		Exec: func(_ context.Context, o *IO, args []string) error {
			switch args[0] {
			case "show":
				return execConfigShow(a, o)
			case "init":
				global, _ := fs.GetBool("global")

				return execConfigInit(a, o, global)
			default:
				return fmt.Errorf("%w: config %s", errUsage, args[0])
			}
		},
	}
}

func execConfigShow(a *app, o *IO) error {
	formatted, err := config.Format(a.cfg)
	if err != nil {
		return err
	}

	o.Println(formatted)
	o.Println("")
	o.Println("# sources")
	o.Println("effective_cwd=" + a.cfg.EffectiveCwd)

	if a.cfg.Sources.Global == "" && a.cfg.Sources.Project == "" {
		o.Println("(defaults only)")

		return nil
	}

	if a.cfg.Sources.Global != "" {
		o.Println("global_config=" + a.cfg.Sources.Global)
	}

	if a.cfg.Sources.Project != "" {
		o.Println("project_config=" + a.cfg.Sources.Project)
	}

	return nil
}

func execConfigInit(a *app, o *IO, global bool) error {
	path := filepath.Join(a.cfg.EffectiveCwd, config.FileName)

	if global {
		path = config.GlobalPath(a.env)
		if path == "" {
			return errNoHome
		}
	}

	err := config.Init(path)
	if err != nil {
		return err
	}

	o.Println("wrote " + path)

	return nil
}
