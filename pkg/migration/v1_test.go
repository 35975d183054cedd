package migration_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/lpdoc/pkg/migration"
)

func Test_V1_UpgradePackage_Adds_Grid_And_Fixes_Pressfit(t *testing.T) {
	t.Parallel()

	dir := newDir(t, map[string]string{
		".librepcb-pkg": "1\n",
		"package.lp": "(librepcb_package " + componentLib + "\n" +
			" (footprint " + variantUUID + "\n" +
			"  (pad " + padUUID + " (function press_fit))\n" +
			"  (pad " + gateUUID + " (function standard))\n" +
			" )\n" +
			")\n",
	})

	require.NoError(t, migration.NewV1(nil).UpgradePackage(dir))
	require.Equal(t, "2\n", readMarker(t, dir, ".librepcb-pkg"))

	root := readNode(t, dir, "package.lp")
	require.Equal(t, "2.54", root.TryChild("grid_interval/@0").Value())

	var got []string
	for _, pad := range root.TryChild("footprint").ChildrenNamed("pad") {
		got = append(got, pad.TryChild("function/@0").Value())
	}

	if diff := cmp.Diff([]string{"pressfit", "standard"}, got); diff != "" {
		t.Fatalf("functions mismatch (-want +got):\n%s", diff)
	}
}

func Test_V1_UpgradeSymbol_Adds_Grid_Interval(t *testing.T) {
	t.Parallel()

	dir := newDir(t, map[string]string{
		".librepcb-sym": "1\n",
		"symbol.lp":     "(librepcb_symbol " + symbolUUID + ")\n",
	})

	require.NoError(t, migration.NewV1(nil).UpgradeSymbol(dir))

	data, err := dir.Read("symbol.lp")
	require.NoError(t, err)
	require.Equal(t, "(librepcb_symbol "+symbolUUID+" (grid_interval 2.54))\n", string(data))
}

func Test_V1_UpgradeProject_Converts_Jobs_And_Approvals(t *testing.T) {
	t.Parallel()

	dir := newDir(t, minimalProject("1", map[string]string{
		"project/settings.lp": "(librepcb_project_settings\n" +
			" (custom_bom_attributes (attribute \"SUPPLIER\") (attribute \"SKU\"))\n" +
			")\n",
		"project/jobs.lp": "(librepcb_jobs\n" +
			" (job " + gateUUID + " (name \"Schematic PDF\") (type graphics)\n" +
			"  (content (type schematic) (layer schematic_frames (color \"#ff000000\")))\n" +
			" )\n" +
			" (job " + padUUID + " (name \"Board Image\") (type graphics)\n" +
			"  (content (type board) (mirror true) (option realistic) (layer board_outlines (color \"#ff000000\")))\n" +
			"  (content (type board) (mirror false) (layer board_outlines (color \"#ff000000\")))\n" +
			" )\n" +
			")\n",
		"circuit/circuit.lp": "(librepcb_circuit\n" +
			" (variant " + variantUUID + " (name \"...\") (description \"\"))\n" +
			" (variant " + deviceUUID + " (name \"Std\") (description \"\"))\n" +
			")\n",
		"boards/default/board.lp": "(librepcb_board " + projectUUID + "\n" +
			" (design_rule_check (approvals_version \"1\")\n" +
			"  (approved useless_via (via " + padUUID + "))\n" +
			"  (approved antennae_via (via " + gateUUID + "))\n" +
			"  (approved copper_copper_clearance (via " + textUUID + "))\n" +
			" )\n" +
			")\n",
		"boards/unused/readme.txt": "not a board",
	}))

	var msgs migration.Messages
	require.NoError(t, migration.NewV1(nil).UpgradeProject(dir, &msgs))

	jobs := readNode(t, dir, "project/jobs.lp").ChildrenNamed("job")
	require.Len(t, jobs, 2)
	require.Equal(t, `(content (type schematic) (layer schematic_frames (color "#ff000000"))`+
		` (layer schematic_image_borders (color "#ff808080")))`, childString(t, jobs[0], "content"))

	contents := jobs[1].ChildrenNamed("content")
	require.Len(t, contents, 2)
	require.Equal(t, `(content (type board_rendering) (mirror true)`+
		` (layer board_copper_bottom (color "#ffbc9c69"))`+
		` (layer board_legend_bottom (color "#00000000"))`+
		` (layer board_outlines (color "#ff465046"))`+
		` (layer board_stop_mask_bottom (color "#00000000")))`, contents[0].String())
	require.Equal(t, `(content (type board) (mirror false) (layer board_outlines (color "#ff000000")))`,
		contents[1].String(), "contents without options are left alone")

	variants := readNode(t, dir, "circuit/circuit.lp").ChildrenNamed("variant")
	require.Equal(t, `"___"`, childString(t, variants[0], "name/@0"))
	require.Equal(t, `"Std"`, childString(t, variants[1], "name/@0"))

	var approvals []string
	for _, approved := range readNode(t, dir, "boards/default/board.lp").TryChild("design_rule_check").ChildrenNamed("approved") {
		approvals = append(approvals, approved.TryChild("@0").Value())
	}

	if diff := cmp.Diff([]string{"invalid_via", "useless_via", "copper_copper_clearance"}, approvals); diff != "" {
		t.Fatalf("approvals mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"note 1 1->2", // custom BOM attributes
		"note 1 1->2", // renamed variant
		"warning 1 1->2",
	}
	if diff := cmp.Diff(want, summarize(msgs)); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}

	require.Contains(t, msgs[0].Text, "SUPPLIER, SKU")
}

func Test_V1_UpgradeProject_Keeps_Useless_Via_Approvals_Of_Version_2(t *testing.T) {
	t.Parallel()

	dir := newDir(t, minimalProject("1", map[string]string{
		"project/settings.lp": "(librepcb_project_settings (custom_bom_attributes))\n",
		"project/jobs.lp":     "(librepcb_jobs (job " + gateUUID + " (name \"Gerber\") (type gerber_excellon)))\n",
		"boards/default/board.lp": "(librepcb_board " + projectUUID +
			" (design_rule_check (approvals_version \"2\") (approved useless_via (via " + padUUID + "))))\n",
	}))

	var msgs migration.Messages
	require.NoError(t, migration.NewV1(nil).UpgradeProject(dir, &msgs))

	board := readNode(t, dir, "boards/default/board.lp")
	require.Equal(t, "useless_via", board.TryChild("design_rule_check/approved/@0").Value())
	require.Empty(t, msgs, "a gerber job exists")
}

func Test_V1_UpgradeWorkspaceData_Removes_Newer_Caches(t *testing.T) {
	t.Parallel()

	dir := newDir(t, map[string]string{
		migration.MarkerWorkspaceData: "1\n",
		"libraries/cache_v5.sqlite":   "x",
		"libraries/cache_v6.sqlite":   "x",
		"libraries/cache_v7.sqlite":   "x",
	})

	require.NoError(t, migration.NewV1(nil).UpgradeWorkspaceData(dir))
	require.Equal(t, "2\n", readMarker(t, dir, migration.MarkerWorkspaceData))

	if diff := cmp.Diff([]string{"cache_v7.sqlite"}, dir.Files("libraries")); diff != "" {
		t.Fatalf("remaining files mismatch (-want +got):\n%s", diff)
	}
}

func Test_V02_UpgradeProject_Creates_Jobs_File(t *testing.T) {
	t.Parallel()

	dir := newDir(t, minimalProject("0.2", map[string]string{
		"library/dev/" + deviceUUID + "/.librepcb-dev": "0.2\n",
		"library/dev/" + deviceUUID + "/device.lp":     "(librepcb_device " + deviceUUID + ")\n",
	}))

	var msgs migration.Messages
	require.NoError(t, migration.NewV02(nil).UpgradeProject(dir, &msgs))

	require.Equal(t, "1\n", readMarker(t, dir, ".librepcb-project"))
	require.Equal(t, "1\n", readMarker(t, dir, "library/dev/"+deviceUUID+"/.librepcb-dev"))

	data, err := dir.Read("project/jobs.lp")
	require.NoError(t, err)
	require.Equal(t, "(librepcb_jobs\n)\n", string(data))
	require.Empty(t, msgs)
}
