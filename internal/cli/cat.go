package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// CatCmd returns the cat command.
func CatCmd(a *app) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("cat", flag.ContinueOnError),
		Usage:   "cat <doc> <file>",
		Short:   "Print a file of a document",
		MinArgs: 2,
		MaxArgs: 2,
		Exec: func(_ context.Context, o *IO, args []string) error {
			doc, err := a.open(o, args[0], false)
			if err != nil {
				return err
			}

			defer func() { _ = doc.Close() }()

			data, err := doc.Read(args[1])
			if err != nil {
				return err
			}

			_, err = o.Write(data)

			return err
		},
	}
}
