// Package loader opens LibrePCB documents and brings them up to the current
// file format.
//
// Upgrades run through the [migration.Registry] and only stage changes. The
// caller decides whether to save.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/internal/logging"
	"github.com/calvinalkan/lpdoc/pkg/migration"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/version"
	"github.com/calvinalkan/lpdoc/pkg/vfs"
)

var (
	// ErrNewerVersion means the document was written by a newer application
	// and cannot be upgraded.
	ErrNewerVersion = errors.New("created with a newer application version")

	// ErrUnknownKind is returned for an unsupported [Kind].
	ErrUnknownKind = errors.New("unknown document kind")
)

// Kind is a document kind.
type Kind string

const (
	KindProject           Kind = "project"
	KindSymbol            Kind = "sym"
	KindPackage           Kind = "pkg"
	KindComponent         Kind = "cmp"
	KindDevice            Kind = "dev"
	KindLibrary           Kind = "lib"
	KindComponentCategory Kind = "cmpcat"
	KindPackageCategory   Kind = "pkgcat"
	KindWorkspaceData     Kind = "data"
)

var markers = map[Kind]string{
	KindProject:           migration.MarkerProject,
	KindSymbol:            migration.MarkerSymbol,
	KindPackage:           migration.MarkerPackage,
	KindComponent:         migration.MarkerComponent,
	KindDevice:            migration.MarkerDevice,
	KindLibrary:           migration.MarkerLibrary,
	KindComponentCategory: migration.MarkerComponentCategory,
	KindPackageCategory:   migration.MarkerPackageCategory,
	KindWorkspaceData:     migration.MarkerWorkspaceData,
}

// Kinds returns all kinds in detection order.
func Kinds() []Kind {
	return []Kind{
		KindProject, KindLibrary, KindSymbol, KindPackage, KindComponent,
		KindDevice, KindComponentCategory, KindPackageCategory, KindWorkspaceData,
	}
}

// ParseKind parses a kind name as used on the command line.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := markers[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}

	return k, nil
}

// Marker returns the version marker file name of k.
func (k Kind) Marker() string { return markers[k] }

// DetectKind returns the kind of the document in dir by its marker.
func DetectKind(dir *txdir.Dir) (Kind, error) {
	for _, k := range Kinds() {
		if dir.Exists(k.Marker()) {
			return k, nil
		}
	}

	return "", fmt.Errorf("%w: no version marker in %s", ErrUnknownKind, dir.AbsPath(""))
}

// DetectVersion reads the version marker of the document in dir.
func DetectVersion(dir *txdir.Dir, marker string) (version.Version, error) {
	data, err := dir.Read(marker)
	if err != nil {
		return version.Version{}, err
	}

	file, err := version.ParseFile(data)
	if err != nil {
		return version.Version{}, fmt.Errorf("%s: %w", dir.AbsPath(marker), err)
	}

	return file.Version, nil
}

// Loader upgrades documents.
type Loader struct {
	Registry migration.Registry

	// Logger receives progress. May be nil.
	Logger logrus.FieldLogger
}

func (l Loader) logger() logrus.FieldLogger {
	return logging.OrDiscard(l.Logger)
}

// Upgrade upgrades the document of the given kind in dir.
func (l Loader) Upgrade(dir *txdir.Dir, kind Kind) (migration.Messages, error) {
	switch kind {
	case KindProject:
		return l.UpgradeProject(dir)
	case KindWorkspaceData:
		return nil, l.UpgradeWorkspaceData(dir)
	default:
		return nil, l.UpgradeLibraryElement(dir, kind)
	}
}

// UpgradeProject upgrades a project and returns the messages of all steps.
func (l Loader) UpgradeProject(dir *txdir.Dir) (migration.Messages, error) {
	var msgs migration.Messages

	err := l.run(dir, migration.MarkerProject, func(m migration.Migration) error {
		return m.UpgradeProject(dir, &msgs)
	})

	return msgs, err
}

// UpgradeLibraryElement upgrades a library or library element.
func (l Loader) UpgradeLibraryElement(dir *txdir.Dir, kind Kind) error {
	var upgrade func(m migration.Migration) error

	switch kind {
	case KindSymbol:
		upgrade = func(m migration.Migration) error { return m.UpgradeSymbol(dir) }
	case KindPackage:
		upgrade = func(m migration.Migration) error { return m.UpgradePackage(dir) }
	case KindComponent:
		upgrade = func(m migration.Migration) error { return m.UpgradeComponent(dir) }
	case KindDevice:
		upgrade = func(m migration.Migration) error { return m.UpgradeDevice(dir) }
	case KindLibrary:
		upgrade = func(m migration.Migration) error { return m.UpgradeLibrary(dir) }
	case KindComponentCategory:
		upgrade = func(m migration.Migration) error { return m.UpgradeComponentCategory(dir) }
	case KindPackageCategory:
		upgrade = func(m migration.Migration) error { return m.UpgradePackageCategory(dir) }
	default:
		return fmt.Errorf("%w: %q is not a library element", ErrUnknownKind, string(kind))
	}

	return l.run(dir, kind.Marker(), upgrade)
}

// UpgradeWorkspaceData upgrades a workspace data directory. Directories
// without marker predate it and are upgraded from the oldest version.
func (l Loader) UpgradeWorkspaceData(dir *txdir.Dir) error {
	from := l.Registry.All()[0].From()

	if dir.Exists(migration.MarkerWorkspaceData) {
		v, err := DetectVersion(dir, migration.MarkerWorkspaceData)
		if err != nil {
			return err
		}

		from = v
	}

	return l.runFrom(dir, from, func(m migration.Migration) error {
		return m.UpgradeWorkspaceData(dir)
	})
}

func (l Loader) run(dir *txdir.Dir, marker string, upgrade func(m migration.Migration) error) error {
	v, err := DetectVersion(dir, marker)
	if err != nil {
		return err
	}

	return l.runFrom(dir, v, upgrade)
}

func (l Loader) runFrom(dir *txdir.Dir, v version.Version, upgrade func(m migration.Migration) error) error {
	if version.Current.Less(v) {
		return fmt.Errorf("%w: %s has version %s, supported up to %s",
			ErrNewerVersion, dir.AbsPath(""), v, version.Current)
	}

	log := l.logger().WithField("path", dir.AbsPath(""))

	for _, m := range l.Registry.Migrations(v) {
		log.Infof("upgrading from v%s to v%s", m.From(), m.To())

		err := upgrade(m)
		if err != nil {
			return fmt.Errorf("upgrade from v%s to v%s: %w", m.From(), m.To(), err)
		}
	}

	return nil
}

// Document is an opened document.
type Document struct {
	*txdir.Dir

	FS *vfs.FileSystem
}

// Close releases the file system.
func (d *Document) Close() error { return d.FS.Close() }

// Open opens the document at path. Files with a zip extension and existing
// regular files are opened as zip archives, everything else as directories.
func Open(path string, opts vfs.Options) (*Document, error) {
	var (
		fsys *vfs.FileSystem
		err  error
	)

	if IsArchive(path) {
		fsys, err = vfs.OpenZip(path, opts)
	} else {
		fsys, err = vfs.OpenDir(path, opts)
	}

	if err != nil {
		return nil, err
	}

	return &Document{Dir: txdir.New(fsys, ""), FS: fsys}, nil
}

// IsArchive reports whether path is opened as zip archive.
func IsArchive(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".lppz":
		return true
	}

	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
