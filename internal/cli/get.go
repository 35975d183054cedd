package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lpdoc/pkg/sexpr"
)

var errNoSuchNode = errors.New("no such node")

// GetCmd returns the get command.
func GetCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("get", flag.ContinueOnError),
		Usage: "get <file.lp> <path>",
		Short: "Print a node of an S-expression file",
		Long: `Print the node at path below the root of an S-expression file.

Path segments are separated by "/". A segment names the first child list with
that name; "@N" selects the N-th value. Example: "pin/name/@0".
Tokens and strings are printed as plain values, lists in file format.`,
		MinArgs: 2,
		MaxArgs: 2,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execGet(a, o, args[0], args[1])
		},
	}
}

func execGet(a *app, o *IO, file, path string) error {
	root, err := parseFile(a.abs(file))
	if err != nil {
		return err
	}

	node := root.TryChild(path)
	if node == nil {
		return fmt.Errorf("%w: %q in %s", errNoSuchNode, path, file)
	}

	if !node.IsList() {
		o.Println(node.Value())

		return nil
	}

	out, err := node.Format(0)
	if err != nil {
		return err
	}

	o.Println(out)

	return nil
}

func parseFile(path string) (*sexpr.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return sexpr.Parse(data, path)
}
