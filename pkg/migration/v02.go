package migration

import (
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/version"
)

// V02 upgrades from 0.2 to 1. The content of all documents stays the same,
// only projects gain an empty output jobs file.
type V02 struct {
	base
}

var _ Migration = (*V02)(nil)

// NewV02 returns the 0.2 to 1 step. log may be nil.
func NewV02(log logrus.FieldLogger) *V02 {
	return &V02{base: newBase("0.2", "1", log)}
}

func (m *V02) UpgradeComponentCategory(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerComponentCategory)
}

func (m *V02) UpgradePackageCategory(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerPackageCategory)
}

func (m *V02) UpgradeSymbol(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerSymbol)
}

func (m *V02) UpgradePackage(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerPackage)
}

func (m *V02) UpgradeComponent(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerComponent)
}

func (m *V02) UpgradeDevice(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerDevice)
}

func (m *V02) UpgradeLibrary(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerLibrary)
}

func (m *V02) UpgradeProject(dir *txdir.Dir, _ *Messages) error {
	err := m.upgradeVersionFile(dir, MarkerProject)
	if err != nil {
		return err
	}

	err = upgradeEmbeddedLibrary(dir, m)
	if err != nil {
		return err
	}

	if dir.Exists("project/jobs.lp") {
		return nil
	}

	return dir.Write("project/jobs.lp", []byte("(librepcb_jobs\n)\n"))
}

func (m *V02) UpgradeWorkspaceData(dir *txdir.Dir) error {
	return dir.Write(MarkerWorkspaceData, version.NewFile(m.to).Bytes())
}

// upgradeEmbeddedLibrary runs m on every library element embedded in a
// project.
func upgradeEmbeddedLibrary(dir *txdir.Dir, m Migration) error {
	kinds := []struct {
		kind, marker string
		upgrade      func(*txdir.Dir) error
	}{
		{"sym", MarkerSymbol, m.UpgradeSymbol},
		{"pkg", MarkerPackage, m.UpgradePackage},
		{"cmp", MarkerComponent, m.UpgradeComponent},
		{"dev", MarkerDevice, m.UpgradeDevice},
	}

	for _, k := range kinds {
		err := forEachElement(dir, k.kind, k.marker, k.upgrade)
		if err != nil {
			return err
		}
	}

	return nil
}
