package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/vfs"
)

// LsCmd returns the ls command.
func LsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.BoolP("recursive", "r", false, "List sub directories recursively")

	return &Command{
		Flags:   fs,
		Usage:   "ls <doc> [dir] [flags]",
		Short:   "List directories and files of a document",
		Long:    "List the directories and files below dir (default: the document root) with their sizes. Directories end with a slash.",
		MinArgs: 1,
		MaxArgs: 2,
		Exec: func(_ context.Context, o *IO, args []string) error {
			recursive, _ := fs.GetBool("recursive")

			rel := ""
			if len(args) > 1 {
				rel = vfs.CleanPath(args[1])
			}

			return execLs(a, o, args[0], rel, recursive)
		},
	}
}

func execLs(a *app, o *IO, path, rel string, recursive bool) error {
	doc, err := a.open(o, path, false)
	if err != nil {
		return err
	}

	defer func() { _ = doc.Close() }()

	if doc.Exists(rel) {
		return printFile(o, doc.View(), rel)
	}

	if rel != "" && len(doc.Dirs(rel)) == 0 && len(doc.Files(rel)) == 0 {
		return fmt.Errorf("%w: %s", vfs.ErrNotFound, rel)
	}

	return listDir(o, doc.View(), rel, recursive)
}

func listDir(o *IO, v txdir.View, rel string, recursive bool) error {
	for _, name := range v.Dirs(rel) {
		sub := vfs.Join(rel, name)
		o.Printf("%9s  %s/\n", "-", sub)

		if recursive {
			err := listDir(o, v, sub, true)
			if err != nil {
				return err
			}
		}
	}

	for _, name := range v.Files(rel) {
		err := printFile(o, v, vfs.Join(rel, name))
		if err != nil {
			return err
		}
	}

	return nil
}

func printFile(o *IO, v txdir.View, rel string) error {
	data, err := v.Read(rel)
	if err != nil {
		return err
	}

	o.Printf("%9s  %s\n", humanize.Bytes(uint64(len(data))), rel)

	return nil
}
