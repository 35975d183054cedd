package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lpdoc/pkg/vfs"
)

// StatusCmd returns the status command.
func StatusCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("status", flag.ContinueOnError),
		Usage: "status <doc>",
		Short: "Show lock and recovery state of a document",
		Long: `Show whether a document is locked and whether an interrupted save or an
autosave is pending. The document is not opened, so nothing is recovered.`,
		MinArgs: 1,
		MaxArgs: 1,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execStatus(a, o, args[0])
		},
	}
}

func execStatus(a *app, o *IO, path string) error {
	p, err := vfs.Inspect(a.abs(path), nil)
	if err != nil {
		return err
	}

	lock := p.Lock.String()
	if p.Lock.IsLocked() && p.Owner.User != "" {
		lock = fmt.Sprintf("%s (%s, pid %d, since %s)",
			lock, p.Owner.DisplayName(), p.Owner.PID, humanize.Time(p.Owner.Created))
	}

	o.Println("lock=" + lock)

	if p.Backup {
		o.Println("backup=pending")
		o.Warn("an interrupted save was found", "it is completed the next time the document is opened for writing")
	} else {
		o.Println("backup=none")
	}

	switch {
	case !p.Autosave:
		o.Println("autosave=none")
	case p.AutosaveCreated.IsZero():
		o.Printf("autosave=%d entries\n", p.AutosaveEntries)
	default:
		o.Printf("autosave=%d entries from %s\n", p.AutosaveEntries, humanize.Time(p.AutosaveCreated))
	}

	return nil
}
