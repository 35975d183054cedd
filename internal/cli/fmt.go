package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lpdoc/pkg/sexpr"
)

// FmtCmd returns the fmt command.
func FmtCmd(a *app) *Command {
	fs := flag.NewFlagSet("fmt", flag.ContinueOnError)
	fs.Bool("check", false, "Only report files that are not formatted")

	return &Command{
		Flags:   fs,
		Usage:   "fmt <file.lp>... [flags]",
		Short:   "Rewrite S-expression files in canonical format",
		Long:    "Parse each file and write it back with canonical indentation and quoting. Line breaks are kept.",
		MinArgs: 1,
		MaxArgs: -1,
		Exec: func(_ context.Context, o *IO, args []string) error {
			check, _ := fs.GetBool("check")

			return execFmt(a, o, args, check)
		},
	}
}

func execFmt(a *app, o *IO, files []string, check bool) error {
	unformatted := 0

	for _, file := range files {
		path := a.abs(file)

		original, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		root, err := sexpr.Parse(original, path)
		if err != nil {
			return err
		}

		formatted, err := root.Bytes()
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}

		if bytes.Equal(original, formatted) {
			continue
		}

		unformatted++

		o.Println(file)

		if check {
			continue
		}

		err = atomic.WriteFile(path, bytes.NewReader(formatted))
		if err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
	}

	if check && unformatted > 0 {
		o.Warn(fmt.Sprintf("%d files are not formatted", unformatted), "run '"+program+" fmt' on them")
	}

	return nil
}
