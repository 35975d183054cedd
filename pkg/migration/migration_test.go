package migration_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/lpdoc/pkg/migration"
	"github.com/calvinalkan/lpdoc/pkg/sexpr"
	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/version"
)

const (
	projectUUID  = "0f8a6c3e-52d4-4d1b-9d6a-6f1e2b3c4d5e"
	symbolUUID   = "1a2b3c4d-0000-4000-8000-000000000001"
	componentLib = "1a2b3c4d-0000-4000-8000-000000000002"
	variantUUID  = "1a2b3c4d-0000-4000-8000-000000000003"
	gateUUID     = "1a2b3c4d-0000-4000-8000-000000000004"
	textUUID     = "1a2b3c4d-0000-4000-8000-000000000005"
	instanceUUID = "1a2b3c4d-0000-4000-8000-000000000006"
	deviceUUID   = "1a2b3c4d-0000-4000-8000-000000000007"
	padUUID      = "1a2b3c4d-0000-4000-8000-000000000008"
)

// newDir returns a memory directory holding files.
func newDir(t *testing.T, files map[string]string) *txdir.Dir {
	t.Helper()

	dir := txdir.NewBlank()

	for rel, content := range files {
		require.NoError(t, dir.Write(rel, []byte(content)))
	}

	return dir
}

func readNode(t *testing.T, dir *txdir.Dir, rel string) *sexpr.Node {
	t.Helper()

	data, err := dir.Read(rel)
	require.NoError(t, err)

	root, err := sexpr.Parse(data, rel)
	require.NoError(t, err)

	return root
}

// childString returns the node at path below root in serialized form.
func childString(t *testing.T, root *sexpr.Node, path string) string {
	t.Helper()

	node := root.TryChild(path)
	require.NotNil(t, node, "missing %q in %s", path, root.Name())

	return node.String()
}

func readMarker(t *testing.T, dir *txdir.Dir, marker string) string {
	t.Helper()

	data, err := dir.Read(marker)
	require.NoError(t, err)

	return string(data)
}

// summarize renders messages as "severity count" for comparison.
func summarize(msgs migration.Messages) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fmt.Sprintf("%s %d %s->%s", m.Severity, m.Count, m.From, m.To))
	}

	return out
}

func steps(ms []migration.Migration) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.From().String()+"->"+m.To().String())
	}

	return out
}

func Test_Registry_Migrations_Returns_Steps_From_Version_In_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		unstable bool
		from     string
		want     []string
	}{
		{name: "oldest", from: "0.1", want: []string{"0.1->0.2", "0.2->1", "1->2"}},
		{name: "middle", from: "0.2", want: []string{"0.2->1", "1->2"}},
		{name: "last", from: "1", want: []string{"1->2"}},
		{name: "current", from: "2", want: []string{}},
		{name: "current unstable", unstable: true, from: "2", want: []string{"2->2"}},
		{name: "oldest unstable", unstable: true, from: "0.1", want: []string{"0.1->0.2", "0.2->1", "1->2", "2->2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg := migration.Registry{Unstable: tt.unstable}
			got := steps(reg.Migrations(version.MustParse(tt.from)))

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("steps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_Registry_Migrations_Chain_Versions(t *testing.T) {
	t.Parallel()

	all := migration.Registry{Unstable: true}.All()

	for i := 1; i < len(all); i++ {
		if !all[i-1].To().Equal(all[i].From()) {
			t.Errorf("step %d ends at %s but step %d starts at %s", i-1, all[i-1].To(), i, all[i].From())
		}
	}

	if got := all[len(all)-2].To(); !got.Equal(version.Current) {
		t.Errorf("last stable step ends at %s, want %s", got, version.Current)
	}
}

func Test_Upgrade_Returns_ErrLogic_When_Applied_Twice(t *testing.T) {
	t.Parallel()

	dir := newDir(t, map[string]string{
		".librepcb-cmpcat": "1\n",
	})

	step := migration.NewV1(nil)

	require.NoError(t, step.UpgradeComponentCategory(dir))
	require.Equal(t, "2\n", readMarker(t, dir, ".librepcb-cmpcat"))

	err := step.UpgradeComponentCategory(dir)
	require.ErrorIs(t, err, migration.ErrLogic)
	require.ErrorContains(t, err, "expected version 1, found 2")
}

func Test_Upgrade_Returns_ErrMigration_When_Marker_Is_Missing_Or_Broken(t *testing.T) {
	t.Parallel()

	step := migration.NewV02(nil)

	err := step.UpgradeLibrary(newDir(t, nil))
	require.ErrorIs(t, err, migration.ErrMigration)

	err = step.UpgradeLibrary(newDir(t, map[string]string{".librepcb-lib": "not a version\n"}))
	require.ErrorIs(t, err, migration.ErrMigration)
	require.False(t, errors.Is(err, migration.ErrLogic))
}

func Test_Unstable_Only_Verifies_Markers(t *testing.T) {
	t.Parallel()

	dir := newDir(t, map[string]string{
		".librepcb-sym": "2\n",
		"symbol.lp":     "(librepcb_symbol " + symbolUUID + ")\n",
	})

	step := migration.NewUnstable(nil)
	require.NoError(t, step.UpgradeSymbol(dir))
	require.Equal(t, "2\n", readMarker(t, dir, ".librepcb-sym"))

	data, err := dir.Read("symbol.lp")
	require.NoError(t, err)
	require.Equal(t, "(librepcb_symbol "+symbolUUID+")\n", string(data))

	err = step.UpgradeSymbol(newDir(t, map[string]string{".librepcb-sym": "1\n"}))
	require.ErrorIs(t, err, migration.ErrLogic)
}

func Test_Message_String(t *testing.T) {
	t.Parallel()

	got := []string{
		migration.Message{Severity: migration.Warning, Count: 3, Text: "vias changed"}.String(),
		migration.Message{Severity: migration.Note, Count: -1, Text: "check"}.String(),
	}
	want := []string{
		"[warning] vias changed (3 affected)",
		"[note] check",
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func Test_Registry_Upgrades_Oldest_Project_To_Current(t *testing.T) {
	t.Parallel()

	dir := newDir(t, minimalProject("0.1", map[string]string{
		"project/metadata.lp": "(librepcb_project_metadata " + projectUUID + " (name \"Demo\") (version \"..\"))\n",
	}))

	var msgs migration.Messages

	for _, step := range (migration.Registry{}).Migrations(version.MustParse("0.1")) {
		require.NoError(t, step.UpgradeProject(dir, &msgs))
	}

	require.Equal(t, "2\n", readMarker(t, dir, ".librepcb-project"))
	require.True(t, dir.Exists("project/jobs.lp"))
	require.Equal(t, `"__"`, childString(t, readNode(t, dir, "project/metadata.lp"), "version/@0"))
	require.Equal(t, `(variant `+projectUUID+` (name "Std") (description "Standard assembly"))`,
		childString(t, readNode(t, dir, "circuit/circuit.lp"), "variant"))

	if diff := cmp.Diff([]string{"note 1 1->2"}, summarize(msgs)); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

// minimalProject returns the files of a project without library, schematics
// or boards, with overrides applied.
func minimalProject(ver string, overrides map[string]string) map[string]string {
	files := map[string]string{
		".librepcb-project":   ver + "\n",
		"project/metadata.lp": "(librepcb_project_metadata " + projectUUID + " (name \"Demo\") (version \"v1\"))\n",
		"project/settings.lp": "(librepcb_project_settings (library_locale_order) (library_norm_order))\n",
		"circuit/circuit.lp":  "(librepcb_circuit)\n",
		"circuit/erc.lp":      "(librepcb_erc)\n",
	}

	for k, v := range overrides {
		files[k] = v
	}

	return files
}
