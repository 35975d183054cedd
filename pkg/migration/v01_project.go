package migration

import (
	"maps"
	"slices"
	"strings"

	"github.com/calvinalkan/lpdoc/pkg/sexpr"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
)

// logoComponent is the library component of the LibrePCB logo. It is never
// assembled.
const logoComponent = "b91cf23a-4f07-4b99-8f52-0b42304aef20"

type symbolText struct {
	uuid     string
	layer    string
	value    string
	position Point
	rotation Angle
	height   Length
	align    Alignment
}

type libraryComponent struct {
	schematicOnly bool
	// variant UUID -> gate UUID -> symbol UUID
	gates map[string]map[string]string
}

type componentInstance struct {
	libComponent string
	libVariant   string
}

// projectContext is what the 0.1 project upgrade learns from one file and
// needs in another.
type projectContext struct {
	projectUUID         string
	symbols             map[string][]symbolText
	components          map[string]libraryComponent
	componentInstances  map[string]componentInstance
	devicesUsedInBoards map[string]map[string]bool

	holesCount                        int
	footprintBoardOutlinesObjectCount int
	topLevelBoardOutlinesObjectCount  int
	componentsWithAssemblyOptions     int
	removedErcApprovals               int
	nonRoundViaCount                  int
	planeCount                        int
	planeConnectNoneCount             int
}

// UpgradeProject upgrades the project and its embedded library. Symbol texts
// used to be taken from the library at runtime and are now copied into each
// schematic symbol, so the library is read before it is upgraded.
func (m *V01) UpgradeProject(dir *txdir.Dir, msgs *Messages) error {
	ctx := &projectContext{
		symbols:             map[string][]symbolText{},
		components:          map[string]libraryComponent{},
		componentInstances:  map[string]componentInstance{},
		devicesUsedInBoards: map[string]map[string]bool{},
	}

	err := m.upgradeVersionFile(dir, MarkerProject)
	if err != nil {
		return err
	}

	steps := []func(*txdir.Dir, *projectContext) error{
		m.upgradeProjectSymbols,
		m.upgradeProjectPackages,
		m.upgradeProjectComponents,
		m.upgradeProjectDevices,
		scanBoards,
		upgradeProjectFiles,
		upgradeSchematics,
		upgradeBoards,
	}

	for _, step := range steps {
		err = step(dir, ctx)
		if err != nil {
			return err
		}
	}

	m.projectMessages(msgs, ctx)

	return nil
}

func (m *V01) upgradeProjectSymbols(dir *txdir.Dir, ctx *projectContext) error {
	return forEachElement(dir, "sym", MarkerSymbol, func(sub *txdir.Dir) error {
		err := inspect(sub, "symbol.lp", func(d *document) {
			var texts []symbolText

			for _, txt := range d.root.ChildrenNamed("text") {
				texts = append(texts, symbolText{
					uuid:     d.uuid(txt, "@0"),
					layer:    d.value(txt, "layer/@0"),
					value:    d.value(txt, "value/@0"),
					position: d.point(txt, "position"),
					rotation: d.angle(txt, "rotation/@0"),
					height:   d.positiveLength(txt, "height/@0"),
					align:    d.alignment(txt, "align"),
				})
			}

			ctx.symbols[d.uuid(d.root, "@0")] = texts
		})
		if err != nil {
			return err
		}

		return m.UpgradeSymbol(sub)
	})
}

func (m *V01) upgradeProjectPackages(dir *txdir.Dir, ctx *projectContext) error {
	return forEachElement(dir, "pkg", MarkerPackage, func(sub *txdir.Dir) error {
		err := inspect(sub, "package.lp", func(d *document) {
			for _, fpt := range d.root.ChildrenNamed("footprint") {
				ctx.holesCount += len(fpt.ChildrenNamed("hole"))

				for _, node := range append(fpt.ChildrenNamed("polygon"), fpt.ChildrenNamed("circle")...) {
					if d.value(node, "layer/@0") == "brd_outlines" {
						ctx.footprintBoardOutlinesObjectCount++
					}
				}
			}
		})
		if err != nil {
			return err
		}

		return m.UpgradePackage(sub)
	})
}

func (m *V01) upgradeProjectComponents(dir *txdir.Dir, ctx *projectContext) error {
	return forEachElement(dir, "cmp", MarkerComponent, func(sub *txdir.Dir) error {
		err := inspect(sub, "component.lp", func(d *document) {
			cmp := libraryComponent{
				schematicOnly: d.boolean(d.root, "schematic_only/@0"),
				gates:         map[string]map[string]string{},
			}

			for _, variant := range d.root.ChildrenNamed("variant") {
				gates := map[string]string{}

				for _, gate := range variant.ChildrenNamed("gate") {
					gates[d.uuid(gate, "@0")] = d.uuid(gate, "symbol/@0")
				}

				cmp.gates[d.uuid(variant, "@0")] = gates
			}

			ctx.components[d.uuid(d.root, "@0")] = cmp
		})
		if err != nil {
			return err
		}

		return m.UpgradeComponent(sub)
	})
}

func (m *V01) upgradeProjectDevices(dir *txdir.Dir, _ *projectContext) error {
	return forEachElement(dir, "dev", MarkerDevice, m.UpgradeDevice)
}

// scanBoards records which devices each component instance uses in boards.
func scanBoards(dir *txdir.Dir, ctx *projectContext) error {
	for _, name := range dir.Dirs("boards") {
		rel := "boards/" + name + "/board.lp"
		if !dir.Exists(rel) {
			continue
		}

		err := inspect(dir, rel, func(d *document) {
			for _, dev := range d.root.ChildrenNamed("device") {
				cmp := d.uuid(dev, "@0")
				if ctx.devicesUsedInBoards[cmp] == nil {
					ctx.devicesUsedInBoards[cmp] = map[string]bool{}
				}

				ctx.devicesUsedInBoards[cmp][d.uuid(dev, "lib_device/@0")] = true
			}
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func upgradeProjectFiles(dir *txdir.Dir, ctx *projectContext) error {
	err := inspect(dir, "project/metadata.lp", func(d *document) {
		ctx.projectUUID = d.uuid(d.root, "@0")
	})
	if err != nil {
		return err
	}

	err = rewrite(dir, "project/settings.lp", func(d *document) {
		upgradeStrings(d.root)
		d.root.AppendList("custom_bom_attributes")
		d.root.AppendToken("default_lock_component_assembly", "false")
	})
	if err != nil {
		return err
	}

	err = rewrite(dir, "circuit/circuit.lp", func(d *document) {
		upgradeCircuit(d, ctx)

		for _, cmp := range d.root.ChildrenNamed("component") {
			ctx.componentInstances[d.uuid(cmp, "@0")] = componentInstance{
				libComponent: d.uuid(cmp, "lib_component/@0"),
				libVariant:   d.uuid(cmp, "lib_variant/@0"),
			}
		}
	})
	if err != nil {
		return err
	}

	return rewrite(dir, "circuit/erc.lp", func(d *document) {
		upgradeErc(d, ctx)
	})
}

// upgradeCircuit adds the default assembly variant and turns the MPN and
// MANUFACTURER attributes into parts of the devices the component uses.
func upgradeCircuit(d *document, ctx *projectContext) {
	upgradeStrings(d.root)

	// The project UUID doubles as variant UUID to keep the output
	// deterministic.
	variant := d.root.AppendList("variant")
	variant.AppendChild(sexpr.NewToken(ctx.projectUUID))
	variant.AppendString("name", "Std")
	variant.AppendString("description", "Standard assembly")

	for _, cmp := range d.root.ChildrenNamed("component") {
		id := d.uuid(cmp, "@0")
		libCmp := d.uuid(cmp, "lib_component/@0")
		assembled := !ctx.components[libCmp].schematicOnly && libCmp != logoComponent

		devices := maps.Clone(ctx.devicesUsedInBoards[id])
		if devices == nil {
			devices = map[string]bool{}
		}

		libDevice := cmp.TryChild("lib_device")
		if libDevice != nil {
			if dev := d.optionalUUID(libDevice, "@0"); dev != "" {
				devices[dev] = true
			}
		}

		if len(devices) > 0 {
			mpn, manufacturer := consumePartAttributes(d, cmp)

			for _, dev := range slices.Sorted(maps.Keys(devices)) {
				node := cmp.AppendList("device")
				node.AppendChild(sexpr.NewToken(dev))

				if mpn != "" || manufacturer != "" {
					part := node.AppendList("part")
					part.AppendChild(sexpr.NewString(mpn))
					part.AppendString("manufacturer", manufacturer)
				}

				if assembled {
					node.AppendToken("variant", ctx.projectUUID)
				}
			}

			ctx.componentsWithAssemblyOptions++
		}

		cmp.RemoveChild(libDevice)
		cmp.AppendToken("lock_assembly", "false")
	}
}

// consumePartAttributes removes all MPN and MANUFACTURER attributes of cmp.
// The first of each wins.
func consumePartAttributes(d *document, cmp *sexpr.Node) (mpn, manufacturer string) {
	attributes := cmp.ChildrenNamed("attribute")

	for i := len(attributes) - 1; i >= 0; i-- {
		attr := attributes[i]

		switch d.value(attr, "@0") {
		case "MPN":
			mpn = cleanSimpleString(d.value(attr, "value/@0"))
		case "MANUFACTURER":
			manufacturer = cleanSimpleString(d.value(attr, "value/@0"))
		default:
			continue
		}

		cmp.RemoveChild(attr)
	}

	return mpn, manufacturer
}

// upgradeErc converts the approvals that still have an equivalent and
// counts the others.
func upgradeErc(d *document, ctx *projectContext) {
	root := sexpr.NewList(d.root.Name())

	for _, approved := range d.root.ChildrenNamed("approved") {
		class := d.value(approved, "class/@0")
		instance := d.value(approved, "instance/@0")
		message := d.value(approved, "message/@0")

		switch {
		case class == "NetClass" && message == "Unused":
			node := root.AppendList("approved")
			node.AppendChild(sexpr.NewToken("unused_netclass"))
			node.AppendToken("netclass", instance)
		case class == "NetSignal" && (message == "Unused" || message == "ConnectedToLessThanTwoPins"):
			node := root.AppendList("approved")
			node.AppendChild(sexpr.NewToken("open_net"))
			node.AppendToken("net", instance)
		case message == "UnconnectedRequiredSignal" || message == "ForcedNetSignalNameConflict":
			parts := strings.Split(instance, "/")

			node := root.AppendList("approved")
			node.AppendChild(sexpr.NewToken("unconnected_required_signal"))
			node.EnsureLineBreak()
			node.AppendToken("component", parts[0])
			node.EnsureLineBreak()
			node.AppendToken("signal", parts[len(parts)-1])
			node.EnsureLineBreak()
		default:
			ctx.removedErcApprovals++
		}
	}

	d.root = root
}

func upgradeSchematics(dir *txdir.Dir, ctx *projectContext) error {
	for _, name := range dir.Dirs("schematics") {
		err := rewriteIfExists(dir, "schematics/"+name+"/schematic.lp", func(d *document) {
			upgradeSchematic(d, ctx)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func upgradeSchematic(d *document, ctx *projectContext) {
	upgradeStrings(d.root)
	upgradeGrid(d, d.root)
	upgradeLayers(d.root)

	for _, sym := range d.root.ChildrenNamed("symbol") {
		texts, ok := schematicSymbolTexts(d, sym, ctx)
		if !ok {
			return
		}

		symPos := d.point(sym, "position")
		symRot := d.angle(sym, "rotation/@0")
		mirror := d.boolean(sym, "mirror/@0")

		for _, text := range texts {
			position := text.position.Rotated(symRot)
			rotation := symRot.Add(text.rotation)
			align := text.align

			if mirror {
				position = position.MirroredH()
				rotation = deg180.Sub(symRot).Sub(text.rotation)
				align = align.MirroredV()
			}

			node := sym.AppendList("text")
			node.AppendChild(sexpr.NewToken(text.uuid))
			node.AppendToken("layer", text.layer)
			node.AppendString("value", text.value)
			appendAlignment(node, "align", align)
			node.AppendToken("height", text.height.String())
			appendPoint(node, "position", position.Add(symPos))
			node.AppendToken("rotation", rotation.String())
		}

		// Mirroring is now applied before rotating.
		if mirror {
			d.negateRotation(sym)
		}
	}

	for _, seg := range d.root.ChildrenNamed("netsegment") {
		for _, label := range seg.ChildrenNamed("label") {
			label.AppendToken("mirror", "false")
		}
	}
}

// schematicSymbolTexts resolves the library symbol texts of a schematic
// symbol through its component instance, component, variant and gate.
func schematicSymbolTexts(d *document, sym *sexpr.Node, ctx *projectContext) ([]symbolText, bool) {
	cmpID := d.uuid(sym, "component/@0")
	gateID := d.uuid(sym, "lib_gate/@0")

	if d.err != nil {
		return nil, false
	}

	inst, ok := ctx.componentInstances[cmpID]
	if !ok {
		d.fail("failed to find component instance %q", cmpID)

		return nil, false
	}

	cmp, ok := ctx.components[inst.libComponent]
	if !ok {
		d.fail("failed to find component %q", inst.libComponent)

		return nil, false
	}

	gates, ok := cmp.gates[inst.libVariant]
	if !ok {
		d.fail("failed to find component symbol variant %q", inst.libVariant)

		return nil, false
	}

	symID, ok := gates[gateID]
	if !ok {
		d.fail("failed to find gate %q", gateID)

		return nil, false
	}

	texts, ok := ctx.symbols[symID]
	if !ok {
		d.fail("failed to find symbol %q", symID)

		return nil, false
	}

	return texts, true
}

func (m *V01) projectMessages(msgs *Messages, ctx *projectContext) {
	if ctx.componentsWithAssemblyOptions > 0 {
		m.message(msgs, Note, ctx.componentsWithAssemblyOptions,
			"Components were automatically populated with assembly information required for "+
				"the new MPN management and assembly variants. Review the BOM and pick&place "+
				"output and correct MPNs where needed.")
	}

	if ctx.removedErcApprovals > 0 {
		m.message(msgs, Note, ctx.removedErcApprovals,
			"Some ERC message approvals cannot be migrated and have been removed. "+
				"Check the remaining ERC messages and approve them if desired.")
	}

	if ctx.holesCount > 0 {
		m.message(msgs, Note, ctx.holesCount,
			"All non-plated holes now have automatic stop mask on both board sides. "+
				"The expansion is taken from the board design rules unless overridden per hole.")
	}

	if ctx.nonRoundViaCount > 0 {
		m.message(msgs, Warning, ctx.nonRoundViaCount,
			"Non-circular via shapes are no longer supported, all vias are circular now.")
	}

	if ctx.planeCount > 0 {
		m.message(msgs, Note, ctx.planeCount,
			"Plane area calculations have been adjusted, review the planes and run the DRC.")
	}

	if ctx.planeConnectNoneCount > 0 {
		m.message(msgs, Warning, ctx.planeConnectNoneCount,
			"Vias within planes with connect style 'none' are now fully connected to the planes. "+
				"Traces which only connected such vias may no longer be needed.")
	}

	if ctx.footprintBoardOutlinesObjectCount > 0 || ctx.topLevelBoardOutlinesObjectCount > 1 {
		m.message(msgs, Warning, ctx.footprintBoardOutlinesObjectCount+ctx.topLevelBoardOutlinesObjectCount,
			"Board cutouts now have a dedicated layer and nested board outlines were moved to it. "+
				"The detection is not perfect, check each cutout, for example in the 3D viewer.")
	}
}
