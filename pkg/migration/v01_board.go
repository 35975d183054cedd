package migration

import (
	"strings"

	"github.com/calvinalkan/lpdoc/pkg/sexpr"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
)

func upgradeBoards(dir *txdir.Dir, ctx *projectContext) error {
	for _, name := range dir.Dirs("boards") {
		err := rewriteIfExists(dir, "boards/"+name+"/board.lp", func(d *document) {
			upgradeBoard(d, ctx)
		})
		if err != nil {
			return err
		}

		err = rewriteIfExists(dir, "boards/"+name+"/settings.user.lp", upgradeBoardUserSettings)
		if err != nil {
			return err
		}
	}

	return nil
}

func upgradeBoard(d *document, ctx *projectContext) {
	root := d.root

	upgradeStrings(root)
	upgradeGrid(d, root)
	upgradeBoardDesignRules(d, root)
	upgradeBoardDrcSettings(root)
	upgradeLayers(root)
	upgradeCutouts(d, root, ctx)

	root.AppendToken("thickness", "1.6")
	root.AppendToken("solder_resist", "green")
	root.AppendToken("silkscreen", "white")

	upgradeFabricationOutput(d, root)

	for _, dev := range root.ChildrenNamed("device") {
		if d.boolean(dev, "mirror/@0") {
			d.negateRotation(dev)
		}

		dev.AppendToken("lock", "false")

		upgradeStrokeTexts(d, dev)

		d.child(dev, "mirror").SetName("flip")
		dev.AppendToken("lib_3d_model", "none")
	}

	maxViaDrill := d.unsignedLength(root, "design_rules/stopmask_max_via_drill_diameter/@0")

	for _, seg := range root.ChildrenNamed("netsegment") {
		for _, via := range seg.ChildrenNamed("via") {
			shape := d.child(via, "shape")
			if d.value(shape, "@0") != "round" {
				ctx.nonRoundViaCount++
			}

			via.RemoveChild(shape)
			via.AppendToken("from", "top_cu")
			via.AppendToken("to", "bot_cu")

			exposure := "off"
			if d.positiveLength(via, "drill/@0") > maxViaDrill {
				exposure = "auto"
			}

			via.AppendToken("exposure", exposure)
		}
	}

	for _, poly := range root.ChildrenNamed("polygon") {
		poly.AppendToken("lock", "false")
	}

	upgradeStrokeTexts(d, root)

	ctx.holesCount += len(root.ChildrenNamed("hole"))
	upgradeHoles(d, root, true)

	for _, plane := range root.ChildrenNamed("plane") {
		ctx.planeCount++

		if d.value(plane, "connect_style/@0") == "none" {
			ctx.planeConnectNoneCount++
		}

		plane.Append("thermal_gap", d.child(plane, "min_clearance/@0").Clone())
		plane.Append("thermal_spoke", d.child(plane, "min_width/@0").Clone())
		plane.AppendToken("lock", "false")
		d.child(plane, "keep_orphans").SetName("keep_islands")
	}
}

// upgradeStrokeTexts converts the rotation of mirrored stroke texts and
// unlocks all of them.
func upgradeStrokeTexts(d *document, n *sexpr.Node) {
	for _, txt := range n.ChildrenNamed("stroke_text") {
		if d.boolean(txt, "mirror/@0") {
			d.negateRotation(txt)
		}

		txt.AppendToken("lock", "false")
	}
}

func upgradeFabricationOutput(d *document, root *sexpr.Node) {
	settings := d.child(root, "fabrication_output_settings")

	drills := d.child(settings, "drills")
	drills.AppendToken("g85_slots", "false")

	if strings.Contains(d.value(drills, "suffix_merged/@0"), "DRILLS") {
		drills.AppendString("suffix_buried", "_DRILLS-PLATED-{{START_LAYER}}-{{END_LAYER}}.drl")
	} else {
		drills.AppendString("suffix_buried", "_L{{START_NUMBER}}-L{{END_NUMBER}}.drl")
	}

	for _, side := range []string{"top", "bot"} {
		silk := d.child(settings, "silkscreen_"+side)
		layers := d.child(silk, "layers")

		moved := root.AppendChild(layers.Clone())
		moved.SetName("silkscreen_layers_" + side)
		silk.RemoveChild(layers)
	}
}

var designRuleRenames = strings.NewReplacer(
	"restring_pad_", "pad_annular_ring_",
	"restring_via_", "via_annular_ring_",
	"creammask_", "solderpaste_",
)

// upgradeBoardDesignRules groups the ratio/min/max rules into one list each.
func upgradeBoardDesignRules(d *document, root *sexpr.Node) {
	rules := d.child(root, "design_rules")
	rules.RemoveChild(d.child(rules, "name"))
	rules.RemoveChild(d.child(rules, "description"))

	for _, child := range rules.ChildrenOfKind(sexpr.KindList) {
		child.SetName(designRuleRenames.Replace(child.Name()))
	}

	for _, param := range []string{"stopmask_clearance", "solderpaste_clearance", "pad_annular_ring", "via_annular_ring"} {
		grouped := rules.AppendList(param)

		for _, property := range []string{"ratio", "min", "max"} {
			old := d.child(rules, param+"_"+property)
			grouped.Append(property, d.child(old, "@0").Clone())
			rules.RemoveChild(old)
		}
	}

	ring := d.child(rules, "pad_annular_ring")
	ring.AppendToken("outer", "full")
	ring.AppendToken("inner", "full")
}

var drcDefaults = [][2]string{
	{"min_copper_copper_clearance", "0.2"},
	{"min_copper_board_clearance", "0.3"},
	{"min_copper_npth_clearance", "0.25"},
	{"min_drill_drill_clearance", "0.35"},
	{"min_drill_board_clearance", "0.5"},
	{"min_silkscreen_stopmask_clearance", "0.127"},
	{"min_copper_width", "0.2"},
	{"min_annular_ring", "0.2"},
	{"min_npth_drill_diameter", "0.3"},
	{"min_pth_drill_diameter", "0.3"},
	{"min_npth_slot_width", "1.0"},
	{"min_pth_slot_width", "0.7"},
	{"min_silkscreen_width", "0.15"},
	{"min_silkscreen_text_height", "0.8"},
	{"min_outline_tool_diameter", "2.0"},
	{"blind_vias_allowed", "false"},
	{"buried_vias_allowed", "false"},
	{"allowed_npth_slots", "single_segment_straight"},
	{"allowed_pth_slots", "single_segment_straight"},
	{"approvals_version", "0.2"},
}

func upgradeBoardDrcSettings(root *sexpr.Node) {
	drc := root.AppendList("design_rule_check")

	for _, kv := range drcDefaults {
		drc.AppendToken(kv[0], kv[1])
	}
}

// upgradeBoardUserSettings drops the per-layer colors, they are a workspace
// setting now.
func upgradeBoardUserSettings(d *document) {
	upgradeLayers(d.root)

	for _, layer := range d.root.ChildrenNamed("layer") {
		layer.RemoveChildrenNamed("color")
		layer.RemoveChildrenNamed("color_hl")
	}
}
