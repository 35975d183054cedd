package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/lpdoc/pkg/loader"
	"github.com/calvinalkan/lpdoc/pkg/version"
)

// VersionCmd returns the version command.
func VersionCmd(a *app) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("version", flag.ContinueOnError),
		Usage:   "version <doc>",
		Short:   "Show the file format version of a document",
		Long:    "Detect the document kind by its version marker and print kind, version and whether an upgrade is available.",
		MinArgs: 1,
		MaxArgs: 1,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execVersion(a, o, args[0])
		},
	}
}

func execVersion(a *app, o *IO, path string) error {
	doc, err := a.open(o, path, false)
	if err != nil {
		return err
	}

	defer func() { _ = doc.Close() }()

	kind, err := loader.DetectKind(doc.Dir)
	if err != nil {
		return err
	}

	v, err := loader.DetectVersion(doc.Dir, kind.Marker())
	if err != nil {
		return err
	}

	o.Println("kind=" + string(kind))
	o.Println("version=" + v.String())
	o.Println("current=" + version.Current.String())

	switch {
	case version.Current.Less(v):
		o.Warn("document is newer than this application", "it cannot be opened or upgraded")
	case v.Less(version.Current):
		o.Println("upgrade=available")
	default:
		o.Println("upgrade=none")
	}

	return nil
}
