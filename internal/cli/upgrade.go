package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lpdoc/pkg/loader"
	"github.com/calvinalkan/lpdoc/pkg/migration"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/version"
	"github.com/calvinalkan/lpdoc/pkg/vfs"
)

// UpgradeCmd returns the upgrade command.
func UpgradeCmd(a *app) *Command {
	fs := flag.NewFlagSet("upgrade", flag.ContinueOnError)
	fs.String("kind", "", "Document kind (project, sym, pkg, cmp, dev, lib, cmpcat, pkgcat, data); detected if empty")
	fs.Bool("dry-run", false, "Report changes without saving")

	return &Command{
		Flags:   fs,
		Usage:   "upgrade <doc> [flags]",
		Short:   "Upgrade a document to the current file format",
		Long:    "Run all file format migrations from the document's version to the current one, print their messages and save.",
		MinArgs: 1,
		MaxArgs: 1,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			kindName, _ := fs.GetString("kind")
			dryRun, _ := fs.GetBool("dry-run")

			return execUpgrade(ctx, a, o, args[0], kindName, dryRun)
		},
	}
}

func execUpgrade(ctx context.Context, a *app, o *IO, path, kindName string, dryRun bool) error {
	doc, err := a.open(o, path, !dryRun)
	if err != nil {
		return err
	}

	defer func() { _ = doc.Close() }()

	var kind loader.Kind
	if kindName != "" {
		kind, err = loader.ParseKind(kindName)
	} else {
		kind, err = loader.DetectKind(doc.Dir)
	}

	if err != nil {
		return err
	}

	target, fsys := doc.Dir, doc.FS

	if dryRun {
		fsys = vfs.NewMemory()
		target = txdir.New(fsys, "")

		err = doc.CopyTo(target)
		if err == nil {
			err = fsys.Save()
		}

		if err != nil {
			return fmt.Errorf("dry run: %w", err)
		}
	}

	l := loader.Loader{Registry: a.registry(), Logger: a.log}

	msgs, err := l.Upgrade(target, kind)
	if err != nil {
		return err
	}

	printMessages(o, msgs)

	modified, err := fsys.CheckForModifications()
	if err != nil {
		return err
	}

	if len(modified) == 0 {
		o.Println("up to date")

		return nil
	}

	if dryRun {
		for _, rel := range modified {
			o.Println("would change:", rel)
		}

		return nil
	}

	err = ctx.Err()
	if err != nil {
		return fmt.Errorf("not saved: %w", err)
	}

	err = doc.Save()
	if err != nil {
		return err
	}

	o.Printf("upgraded %s to v%s (%d files changed)\n", kind, version.Current, len(modified))

	return nil
}

func printMessages(o *IO, msgs migration.Messages) {
	critical := 0

	for _, m := range msgs {
		o.Printf("v%s -> v%s %s\n", m.From, m.To, m)

		if m.Severity == migration.Critical {
			critical++
		}
	}

	if critical > 0 {
		o.Warn(fmt.Sprintf("%d critical upgrade messages", critical), "review the document before using it")
	}
}
