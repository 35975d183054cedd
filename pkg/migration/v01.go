package migration

import (
	"math"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/pkg/sexpr"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/version"
)

// V01 upgrades from 0.1 to 0.2.
type V01 struct {
	base
}

var _ Migration = (*V01)(nil)

// NewV01 returns the 0.1 to 0.2 step. log may be nil.
func NewV01(log logrus.FieldLogger) *V01 {
	return &V01{base: newBase("0.1", "0.2", log)}
}

func (m *V01) UpgradeComponentCategory(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerComponentCategory)
}

func (m *V01) UpgradePackageCategory(dir *txdir.Dir) error {
	return m.upgradeVersionFile(dir, MarkerPackageCategory)
}

// UpgradeSymbol derives the pin name placement that used to be implicit:
// names sit 1.27mm behind the pin end, left/center aligned, 2.5mm high.
func (m *V01) UpgradeSymbol(dir *txdir.Dir) error {
	err := m.upgradeVersionFile(dir, MarkerSymbol)
	if err != nil {
		return err
	}

	return rewrite(dir, "symbol.lp", func(d *document) {
		root := d.root
		root.AppendString("generated_by", "")

		upgradeStrings(root)
		upgradeLayers(root)
		upgradeInversionCharacters(d, root, "pin", "name/@0")

		for _, pin := range root.ChildrenNamed("pin") {
			length := d.unsignedLength(pin, "length/@0")

			appendPoint(pin, "name_position", Point{X: length + 1_270_000})
			pin.AppendToken("name_rotation", Angle(0).String())
			pin.AppendToken("name_height", Length(2_500_000).String())
			appendAlignment(pin, "name_align", Alignment{H: "left", V: "center"})
		}
	})
}

func (m *V01) UpgradePackage(dir *txdir.Dir) error {
	err := m.upgradeVersionFile(dir, MarkerPackage)
	if err != nil {
		return err
	}

	return rewrite(dir, "package.lp", func(d *document) {
		root := d.root
		root.AppendString("generated_by", "")

		upgradeStrings(root)
		upgradeLayers(root)
		root.AppendToken("assembly_type", "auto")

		for _, fpt := range root.ChildrenNamed("footprint") {
			upgradeFootprint(d, fpt)
		}
	})
}

func upgradeFootprint(d *document, fpt *sexpr.Node) {
	zero := sexpr.NewToken("0.0")
	fpt.Append("3d_position", zero.Clone(), zero.Clone(), zero.Clone())
	fpt.Append("3d_rotation", zero.Clone(), zero.Clone(), zero.Clone())

	for _, pad := range fpt.ChildrenNamed("pad") {
		upgradeFootprintPad(d, pad)
	}

	for _, node := range append(fpt.ChildrenNamed("polygon"), fpt.ChildrenNamed("circle")...) {
		if strings.HasSuffix(d.value(node, "layer/@0"), "_courtyard") {
			d.child(node, "width/@0").SetValue("0.0")
		}
	}

	for _, txt := range fpt.ChildrenNamed("stroke_text") {
		if d.boolean(txt, "mirror/@0") {
			d.negateRotation(txt)
		}
	}

	upgradeHoles(d, fpt, false)
	upgradeCutouts(d, fpt, nil)
}

// upgradeFootprintPad gives the pad its own UUID (the one of its package pad,
// to stay deterministic) and converts shape, drill and side.
func upgradeFootprintPad(d *document, pad *sexpr.Node) {
	id := d.uuid(pad, "@0")
	pad.AppendToken("package_pad", id)

	shape := d.child(pad, "shape/@0")
	round := shape.Value() == "round"
	rect := shape.Value() == "rect"

	radius := "0.0"
	if round {
		radius = "1.0"
	}

	pad.AppendToken("radius", radius)

	if round || rect {
		shape.SetValue("roundrect")
	}

	// Drills on SMT pads were ignored by the Gerber export, so they are
	// dropped. The hole reuses the pad UUID.
	side := d.child(pad, "side/@0")
	drill := d.unsignedLength(pad, "drill/@0")

	if side.Value() == "tht" && drill > 0 {
		hole := pad.AppendList("hole")
		hole.AppendChild(sexpr.NewToken(id))
		hole.AppendToken("diameter", drill.String())

		vertex := hole.AppendList("vertex")
		appendPoint(vertex, "position", Point{})
		vertex.AppendToken("angle", Angle(0).String())
	}

	if side.Value() == "tht" {
		side.SetValue("top")
	}

	paste := "auto"
	if drill > 0 {
		paste = "off"
	}

	pad.AppendToken("stop_mask", "auto")
	pad.AppendToken("solder_paste", paste)
	pad.AppendToken("function", "unspecified")
	pad.AppendToken("clearance", "0.0")
}

func (m *V01) UpgradeComponent(dir *txdir.Dir) error {
	err := m.upgradeVersionFile(dir, MarkerComponent)
	if err != nil {
		return err
	}

	return rewrite(dir, "component.lp", func(d *document) {
		d.root.AppendString("generated_by", "")
		upgradeInversionCharacters(d, d.root, "signal", "name/@0")
		upgradeStrings(d.root)
	})
}

func (m *V01) UpgradeDevice(dir *txdir.Dir) error {
	err := m.upgradeVersionFile(dir, MarkerDevice)
	if err != nil {
		return err
	}

	return rewrite(dir, "device.lp", func(d *document) {
		d.root.AppendString("generated_by", "")
		upgradeStrings(d.root)
	})
}

func (m *V01) UpgradeLibrary(dir *txdir.Dir) error {
	err := m.upgradeVersionFile(dir, MarkerLibrary)
	if err != nil {
		return err
	}

	return rewrite(dir, "library.lp", func(d *document) {
		d.root.AppendString("manufacturer", "")
	})
}

func (m *V01) UpgradeWorkspaceData(dir *txdir.Dir) error {
	err := dir.Write(MarkerWorkspaceData, version.NewFile(m.to).Bytes())
	if err != nil {
		return err
	}

	err = m.removeLegacyFiles(dir, "cache", "cache_v1", "cache_v2", "library_cache")
	if err != nil {
		return err
	}

	return rewriteIfExists(dir, "settings.lp", func(d *document) {
		if repos := d.root.TryChild("repositories"); repos != nil {
			for _, repo := range repos.ChildrenNamed("repository") {
				repo.SetName("url")
			}

			repos.SetName("api_endpoints")
		}

		d.root.ReplaceRecursive(sexpr.NewToken("board_placement_top"), sexpr.NewToken("board_legend_top"))
		d.root.ReplaceRecursive(sexpr.NewToken("board_placement_bottom"), sexpr.NewToken("board_legend_bottom"))
	})
}

var layerRenames = [][2]string{
	{"sch_scheet_frames", "sch_frames"},
	{"brd_sheet_frames", "brd_frames"},
	{"brd_milling_pth", "brd_plated_cutouts"},
	{"top_placement", "top_legend"},
	{"bot_placement", "bot_legend"},
}

// upgradeLayers renames layers and drops objects on "brd_keepout", a layer
// that never officially existed.
func upgradeLayers(n *sexpr.Node) {
	for _, r := range layerRenames[:3] {
		n.ReplaceRecursive(sexpr.NewToken(r[0]), sexpr.NewToken(r[1]))
	}

	keepout := sexpr.NewList("layer")
	keepout.AppendChild(sexpr.NewToken("brd_keepout"))
	n.RemoveChildrenWithNodeRecursive(keepout)

	for _, r := range layerRenames[3:] {
		n.ReplaceRecursive(sexpr.NewToken(r[0]), sexpr.NewToken(r[1]))
	}
}

// upgradeInversionCharacters replaces a leading "/" (the old inversion
// marker) with "!" unless that would collide with an existing name.
func upgradeInversionCharacters(d *document, root *sexpr.Node, childName, valuePath string) {
	children := root.ChildrenNamed(childName)
	reserved := make(map[string]bool, len(children))

	for _, child := range children {
		reserved[d.value(child, valuePath)] = true
	}

	for _, child := range children {
		node := d.child(child, valuePath)

		name, ok := strings.CutPrefix(node.Value(), "/")
		if ok && !reserved["!"+name] {
			node.SetValue("!" + name)
		}
	}
}

var stringReplacer = strings.NewReplacer(
	"MODIFIED_DATE", "DATE",
	"MODIFIED_TIME", "TIME",
	"PARTNUMBER", "MPN",
)

// upgradeStrings renames attribute placeholders in every string of the tree.
func upgradeStrings(n *sexpr.Node) {
	for _, child := range n.ChildrenOfKind(sexpr.KindList) {
		upgradeStrings(child)
	}

	for _, child := range n.ChildrenOfKind(sexpr.KindString) {
		child.SetValue(stringReplacer.Replace(child.Value()))
	}
}

func upgradeGrid(d *document, n *sexpr.Node) {
	grid := d.child(n, "grid")
	grid.RemoveChild(grid.TryChild("type"))
}

// upgradeHoles adds stop mask and vertices to holes.
func upgradeHoles(d *document, n *sexpr.Node, boardHoles bool) {
	for _, hole := range n.ChildrenNamed("hole") {
		hole.AppendToken("stop_mask", "auto")

		vertex := hole.AppendList("vertex")
		appendPoint(vertex, "position", d.point(hole, "position"))
		vertex.AppendToken("angle", Angle(0).String())

		if boardHoles {
			hole.AppendToken("lock", "false")
		}
	}
}

// outline is a closed shape on the board outlines layer.
type outline struct {
	node     *sexpr.Node
	vertices []Point
	center   Point
	radius   float64
	lengthMm float64
}

func (o outline) contains(p Point) bool {
	if o.vertices == nil {
		return o.center.Distance(p) <= o.radius
	}

	return polygonContains(o.vertices, p)
}

// upgradeCutouts moves nested board outlines to the new cutouts layer. The
// longest outline stays the board outline: always in boards (ctx != nil),
// and in footprints only if a pad lies within it.
func upgradeCutouts(d *document, n *sexpr.Node, ctx *projectContext) {
	var outlines []outline

	for _, poly := range n.ChildrenNamed("polygon") {
		if d.value(poly, "layer/@0") != "brd_outlines" {
			continue
		}

		o := outline{node: poly}

		for _, vertex := range poly.ChildrenNamed("vertex") {
			o.vertices = append(o.vertices, d.point(vertex, "position"))
		}

		if o.vertices == nil {
			o.vertices = []Point{}
		}

		for i := 1; i < len(o.vertices); i++ {
			o.lengthMm += o.vertices[i-1].Distance(o.vertices[i]) / nmPerMm
		}

		outlines = append(outlines, o)
	}

	for _, circle := range n.ChildrenNamed("circle") {
		if d.value(circle, "layer/@0") != "brd_outlines" {
			continue
		}

		diameter := d.positiveLength(circle, "diameter/@0")

		outlines = append(outlines, outline{
			node:     circle,
			center:   d.point(circle, "position"),
			radius:   float64(diameter) / 2,
			lengthMm: diameter.Mm() * math.Pi,
		})
	}

	slices.SortStableFunc(outlines, func(a, b outline) int {
		switch {
		case a.lengthMm < b.lengthMm:
			return -1
		case a.lengthMm > b.lengthMm:
			return 1
		default:
			return 0
		}
	})

	if len(outlines) > 0 {
		longest := outlines[len(outlines)-1]

		if ctx != nil {
			outlines = outlines[:len(outlines)-1]
			ctx.topLevelBoardOutlinesObjectCount += len(outlines)
		} else {
			for _, pad := range n.ChildrenNamed("pad") {
				if longest.contains(d.point(pad, "position")) {
					outlines = outlines[:len(outlines)-1]

					break
				}
			}
		}
	}

	for _, o := range outlines {
		d.child(o.node, "layer/@0").SetValue("brd_cutouts")
	}
}

// polygonContains is an even-odd ray casting test. Arc segments are treated
// as straight lines.
func polygonContains(vertices []Point, p Point) bool {
	inside := false
	x, y := float64(p.X), float64(p.Y)

	for i, j := 0, len(vertices)-1; i < len(vertices); j, i = i, i+1 {
		xi, yi := float64(vertices[i].X), float64(vertices[i].Y)
		xj, yj := float64(vertices[j].X), float64(vertices[j].Y)

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}

	return inside
}
