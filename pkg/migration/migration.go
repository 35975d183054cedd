// Package migration upgrades LibrePCB documents from older file format
// versions.
//
// Each [Migration] is a single step from one version to the next. A step
// rewrites the files of a document in place through a [txdir.Dir]; nothing
// is saved, so a failed chain leaves the committed document untouched. The
// [Registry] returns the steps needed to bring a document of a given version
// up to [version.Current], in order.
//
// Every upgrade first checks the document's version marker. A marker that
// does not match the step's source version means the step was applied out of
// order or twice, and fails with [ErrLogic].
package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/internal/logging"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/version"
)

var (
	// ErrLogic indicates a migration was applied to a document with a
	// different version. It is a programming error, not a document defect.
	ErrLogic = errors.New("migration applied to wrong version")

	// ErrMigration indicates a document with unexpected content.
	ErrMigration = errors.New("migration failed")
)

// Version marker file names, one per document kind.
const (
	MarkerComponentCategory = ".librepcb-cmpcat"
	MarkerPackageCategory   = ".librepcb-pkgcat"
	MarkerSymbol            = ".librepcb-sym"
	MarkerPackage           = ".librepcb-pkg"
	MarkerComponent         = ".librepcb-cmp"
	MarkerDevice            = ".librepcb-dev"
	MarkerLibrary           = ".librepcb-lib"
	MarkerProject           = ".librepcb-project"
	MarkerWorkspaceData     = ".librepcb-data"
)

// Migration upgrades documents from [Migration.From] to [Migration.To].
//
// The set of methods is closed: it mirrors the document kinds of the file
// format.
type Migration interface {
	From() version.Version
	To() version.Version

	UpgradeComponentCategory(dir *txdir.Dir) error
	UpgradePackageCategory(dir *txdir.Dir) error
	UpgradeSymbol(dir *txdir.Dir) error
	UpgradePackage(dir *txdir.Dir) error
	UpgradeComponent(dir *txdir.Dir) error
	UpgradeDevice(dir *txdir.Dir) error
	UpgradeLibrary(dir *txdir.Dir) error

	// UpgradeProject upgrades a whole project including its embedded library
	// elements and appends messages for the user to msgs.
	UpgradeProject(dir *txdir.Dir, msgs *Messages) error

	// UpgradeWorkspaceData upgrades the data directory of a workspace. It
	// has no marker check: the marker is created if missing.
	UpgradeWorkspaceData(dir *txdir.Dir) error
}

// Severity classifies a [Message].
type Severity int

const (
	Note Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Message tells the user about a change a migration could not make
// transparently. Count is the number of affected items, or -1 if unknown.
type Message struct {
	From     version.Version
	To       version.Version
	Severity Severity
	Count    int
	Text     string
}

func (m Message) String() string {
	if m.Count < 0 {
		return fmt.Sprintf("[%s] %s", m.Severity, m.Text)
	}

	return fmt.Sprintf("[%s] %s (%d affected)", m.Severity, m.Text, m.Count)
}

// Messages collects the messages of a project upgrade.
type Messages []Message

// base holds what all steps share.
type base struct {
	from, to version.Version
	log      logrus.FieldLogger
}

func newBase(from, to string, log logrus.FieldLogger) base {
	return base{from: version.MustParse(from), to: version.MustParse(to), log: logging.OrDiscard(log)}
}

func (b base) From() version.Version { return b.from }
func (b base) To() version.Version { return b.to }

func (b base) message(msgs *Messages, sev Severity, count int, text string) {
	*msgs = append(*msgs, Message{From: b.from, To: b.to, Severity: sev, Count: count, Text: text})
}

// upgradeVersionFile checks that marker holds the source version and replaces
// it with the target version.
func (b base) upgradeVersionFile(dir *txdir.Dir, marker string) error {
	data, err := dir.Read(marker)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	file, err := version.ParseFile(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMigration, dir.AbsPath(marker), err)
	}

	if !file.Version.Equal(b.from) {
		return fmt.Errorf("%w: %s: expected version %s, found %s",
			ErrLogic, dir.AbsPath(marker), b.from, file.Version)
	}

	return dir.Write(marker, version.NewFile(b.to).Bytes())
}

// rewrite loads rel, applies fn and writes the result back.
func rewrite(dir *txdir.Dir, rel string, fn func(d *document)) error {
	d, err := load(dir, rel)
	if err != nil {
		return err
	}

	fn(d)

	return d.save(dir)
}

// inspect loads rel and applies fn without writing anything back.
func inspect(dir *txdir.Dir, rel string, fn func(d *document)) error {
	d, err := load(dir, rel)
	if err != nil {
		return err
	}

	fn(d)

	return d.err
}

// rewriteIfExists is like rewrite but skips missing files.
func rewriteIfExists(dir *txdir.Dir, rel string, fn func(d *document)) error {
	if !dir.Exists(rel) {
		return nil
	}

	return rewrite(dir, rel, fn)
}

// forEachElement calls fn for every library element directory below
// "library/<kind>" that has the given marker.
func forEachElement(dir *txdir.Dir, kind, marker string, fn func(sub *txdir.Dir) error) error {
	parent := "library/" + kind

	for _, name := range dir.Dirs(parent) {
		sub := dir.Sub(parent + "/" + name)
		if !sub.Exists(marker) {
			continue
		}

		err := fn(sub)
		if err != nil {
			return err
		}
	}

	return nil
}

// removeLegacyFiles removes files in "libraries/" whose name up to the first
// dot is one of names.
func (b base) removeLegacyFiles(dir *txdir.Dir, names ...string) error {
	libraries := dir.Sub("libraries")

	for _, file := range libraries.Files("") {
		stem, _, _ := strings.Cut(file, ".")

		for _, name := range names {
			if stem != name {
				continue
			}

			b.log.WithField("path", libraries.AbsPath(file)).Info("removing legacy file")

			err := libraries.RemoveFile(file)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
