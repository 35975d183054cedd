package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"
)

// ExportCmd returns the export command.
func ExportCmd(a *app) *Command {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.StringArray("exclude", nil, "Skip files matching `glob` (repeatable, adds to export_exclude)")

	return &Command{
		Flags:   fs,
		Usage:   "export <doc> <out.zip> [flags]",
		Short:   "Export the saved state of a document to a zip archive",
		Long:    "Write the saved state of a document to a zip archive. Hidden directories and the lock file are skipped. The archive is replaced atomically.",
		MinArgs: 2,
		MaxArgs: 2,
		Exec: func(_ context.Context, o *IO, args []string) error {
			excludes, _ := fs.GetStringArray("exclude")

			return execExport(a, o, args[0], args[1], excludes)
		},
	}
}

func execExport(a *app, o *IO, path, out string, excludes []string) error {
	cfg := a.cfg
	cfg.ExportExclude = append(append([]string{}, cfg.ExportExclude...), excludes...)

	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid --exclude pattern %q", pattern)
		}
	}

	doc, err := a.open(o, path, false)
	if err != nil {
		return err
	}

	defer func() { _ = doc.Close() }()

	count := 0
	dest := a.abs(out)

	err = doc.FS.ExportZip(dest, func(rel string) bool {
		if cfg.Excluded(rel) {
			a.log.WithField("file", rel).Debug("excluded from export")

			return false
		}

		count++

		return true
	})
	if err != nil {
		return err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return err
	}

	o.Printf("exported %d files to %s (%s)\n", count, out, humanize.Bytes(uint64(info.Size())))

	return nil
}
