package migration

import (
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/version"
)

// Unstable upgrades documents of the current version to the format under
// development. It only verifies the markers until the next format change
// lands here.
type Unstable struct {
	base
}

var _ Migration = (*Unstable)(nil)

// NewUnstable returns the step from [version.Current] to itself. log may be
// nil.
func NewUnstable(log logrus.FieldLogger) *Unstable {
	return &Unstable{base: newBase(version.Current.String(), version.Current.String(), log)}
}

func (m *Unstable) UpgradeComponentCategory(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerComponentCategory)
}

func (m *Unstable) UpgradePackageCategory(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerPackageCategory)
}

func (m *Unstable) UpgradeSymbol(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerSymbol)
}

func (m *Unstable) UpgradePackage(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerPackage)
}

func (m *Unstable) UpgradeComponent(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerComponent)
}

func (m *Unstable) UpgradeDevice(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerDevice)
}

func (m *Unstable) UpgradeLibrary(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerLibrary)
}

func (m *Unstable) UpgradeProject(dir *txdir.Dir, _ *Messages) error {
	err := m.upgradeVersionFile(dir, MarkerProject)
	if err != nil {
		return err
	}

	return upgradeEmbeddedLibrary(dir, m)
}

func (m *Unstable) UpgradeWorkspaceData(dir *txdir.Dir) error {
	return dir.Write(MarkerWorkspaceData, version.NewFile(m.to).Bytes())
}
