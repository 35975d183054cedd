package migration

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/pkg/sexpr"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/version"
)

// V1 upgrades from 1 to 2.
type V1 struct {
	base
}

var _ Migration = (*V1)(nil)

// NewV1 returns the 1 to 2 step. log may be nil.
func NewV1(log logrus.FieldLogger) *V1 {
	return &V1{base: newBase("1", "2", log)}
}

func (m *V1) UpgradeComponentCategory(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerComponentCategory)
}

func (m *V1) UpgradePackageCategory(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerPackageCategory)
}

func (m *V1) UpgradeSymbol(dir *txdir.Dir) error {
	err := m.upgradeVersionFile(dir, MarkerSymbol)
	if err != nil {
		return err
	}

	return rewrite(dir, "symbol.lp", func(d *document) {
		d.root.AppendToken("grid_interval", "2.54")
	})
}

func (m *V1) UpgradePackage(dir *txdir.Dir) error {
	err := m.upgradeVersionFile(dir, MarkerPackage)
	if err != nil {
		return err
	}

	return rewrite(dir, "package.lp", func(d *document) {
		d.root.AppendToken("grid_interval", "2.54")

		// "press_fit" was a manual workaround for a bug in 1.0.
		for _, fpt := range d.root.ChildrenNamed("footprint") {
			for _, pad := range fpt.ChildrenNamed("pad") {
				function := d.child(pad, "function/@0")
				if function.Value() == "press_fit" {
					function.SetValue("pressfit")
				}
			}
		}
	})
}

func (m *V1) UpgradeComponent(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerComponent)
}

func (m *V1) UpgradeDevice(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerDevice)
}

func (m *V1) UpgradeLibrary(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerLibrary)
}

func (m *V1) UpgradeProject(dir *txdir.Dir, msgs *Messages) error {
	err := m.upgradeVersionFile(dir, MarkerProject)
	if err != nil {
		return err
	}

	err = upgradeEmbeddedLibrary(dir, m)
	if err != nil {
		return err
	}

	err = rewrite(dir, "project/metadata.lp", func(d *document) {
		node := d.child(d.root, "version/@0")
		if name, ok := upgradeFileProofName(node.Value()); ok {
			node.SetValue(name)
			m.message(msgs, Note, 1,
				"Project version has been adjusted due to more restrictive naming requirements. "+
					"Review the new version number.")
		}
	})
	if err != nil {
		return err
	}

	err = inspect(dir, "project/settings.lp", func(d *document) {
		var attrs []string

		for _, attr := range d.child(d.root, "custom_bom_attributes").ChildrenNamed("attribute") {
			attrs = append(attrs, d.value(attr, "@0"))
		}

		if len(attrs) > 0 {
			m.message(msgs, Note, 1, fmt.Sprintf(
				"The project has custom BOM attributes (%s) but the manual BOM export has been "+
					"removed. Use a BOM output job instead, it imports these attributes.",
				strings.Join(attrs, ", ")))
		}
	})
	if err != nil {
		return err
	}

	hasGerberJob := false

	err = rewrite(dir, "project/jobs.lp", func(d *document) {
		hasGerberJob = upgradeOutputJobs(d)
	})
	if err != nil {
		return err
	}

	err = rewrite(dir, "circuit/circuit.lp", func(d *document) {
		renamed := 0

		for _, variant := range d.root.ChildrenNamed("variant") {
			node := d.child(variant, "name/@0")
			if name, ok := upgradeFileProofName(node.Value()); ok {
				node.SetValue(name)
				renamed++
			}
		}

		if renamed > 0 {
			m.message(msgs, Note, renamed,
				"Assembly variants have been renamed due to more restrictive naming requirements. "+
					"Review the new names.")
		}
	})
	if err != nil {
		return err
	}

	boards := 0

	for _, name := range dir.Dirs("boards") {
		rel := "boards/" + name + "/board.lp"
		if !dir.Exists(rel) {
			continue
		}

		boards++

		err = rewrite(dir, rel, upgradeDrcApprovals)
		if err != nil {
			return err
		}
	}

	if boards > 0 && !hasGerberJob {
		m.message(msgs, Warning, 1,
			"The Gerber/Excellon export dialog has been replaced by output jobs and the board "+
				"export settings will be removed in a future release. Add a Gerber/Excellon "+
				"output job now to migrate the old settings.")
	}

	return nil
}

func (m *V1) UpgradeWorkspaceData(dir *txdir.Dir) error {
	err := dir.Write(MarkerWorkspaceData, version.NewFile(m.to).Bytes())
	if err != nil {
		return err
	}

	return m.removeLegacyFiles(dir, "cache_v3", "cache_v4", "cache_v5", "cache_v6")
}

// upgradeOutputJobs converts graphics jobs and reports whether a
// Gerber/Excellon job exists.
func upgradeOutputJobs(d *document) bool {
	hasGerberJob := false

	for _, job := range d.root.ChildrenNamed("job") {
		switch d.value(job, "type/@0") {
		case "graphics":
			for _, content := range job.ChildrenNamed("content") {
				upgradeGraphicsContent(d, content)
			}
		case "gerber_excellon":
			hasGerberJob = true
		}
	}

	return hasGerberJob
}

var renderingLayers = map[bool][][2]string{
	false: {
		{"board_copper_top", "#ffbc9c69"},
		{"board_legend_top", "#00000000"},
		{"board_outlines", "#ff465046"},
		{"board_stop_mask_top", "#00000000"},
	},
	true: {
		{"board_copper_bottom", "#ffbc9c69"},
		{"board_legend_bottom", "#00000000"},
		{"board_outlines", "#ff465046"},
		{"board_stop_mask_bottom", "#00000000"},
	},
}

func upgradeGraphicsContent(d *document, content *sexpr.Node) {
	typ := d.child(content, "type/@0")

	switch typ.Value() {
	case "schematic":
		layer := content.AppendList("layer")
		layer.AppendChild(sexpr.NewToken("schematic_image_borders"))
		layer.AppendString("color", "#ff808080")
	case "board":
		// "realistic" was the only option, so any option means a rendering.
		if content.RemoveChildrenNamed("option") == 0 {
			return
		}

		typ.SetValue("board_rendering")
		content.RemoveChildrenNamed("layer")

		mirror := d.value(content, "mirror/@0") == "true"
		for _, l := range renderingLayers[mirror] {
			layer := content.AppendList("layer")
			layer.AppendChild(sexpr.NewToken(l[0]))
			layer.AppendString("color", l[1])
		}
	}
}

// upgradeDrcApprovals follows the renamed via checks: the old "useless via"
// is now "invalid via" and "antennae via" took over "useless via".
func upgradeDrcApprovals(d *document) {
	drc := d.child(d.root, "design_rule_check")
	approvals := d.value(drc, "approvals_version/@0")

	for _, approved := range drc.ChildrenNamed("approved") {
		typ := d.child(approved, "@0")

		switch {
		case typ.Value() == "useless_via" && approvals != "2":
			typ.SetValue("invalid_via")
		case typ.Value() == "antennae_via":
			typ.SetValue("useless_via")
		}
	}
}

// upgradeFileProofName replaces the dots of a name that consists only of
// dots, which is no longer a valid name.
func upgradeFileProofName(name string) (string, bool) {
	if name == "" || strings.Trim(name, ".") != "" {
		return "", false
	}

	return strings.ReplaceAll(name, ".", "_"), true
}
