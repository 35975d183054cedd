package cli_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/lpdoc/internal/cli"
)

func Test_Config_Show_Defaults_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("config", "show")
	cli.AssertContains(t, stdout, `"autosave": "ask"`)
	cli.AssertContains(t, stdout, `"lock": "fail"`)
	cli.AssertContains(t, stdout, "effective_cwd="+c.Dir)
	cli.AssertContains(t, stdout, "(defaults only)")
}

func Test_Config_Show_From_Project_File_With_Comments_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".lpdoc.json", `{
		// restore without asking
		"autosave": "restore",
	}`)

	stdout := c.MustRun("config", "show")
	cli.AssertContains(t, stdout, `"autosave": "restore"`)
	cli.AssertContains(t, stdout, "project_config="+c.Path(".lpdoc.json"))
}

func Test_Config_Show_Env_Enables_Unstable_Migrations_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.Env["LPDOC_UNSTABLE_MIGRATIONS"] = "1"

	stdout := c.MustRun("config", "show")
	cli.AssertContains(t, stdout, `"unstable_migrations": true`)
}

func Test_Config_Explicit_Config_Not_Found_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("-c", "nonexistent.json", "config", "show")
	cli.AssertContains(t, stderr, "config file not found")
}

func Test_Config_Invalid_JSON_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".lpdoc.json", `{invalid json}`)

	stderr := c.MustFail("config", "show")
	cli.AssertContains(t, stderr, "invalid config file")
}

func Test_Config_Init_Writes_Project_File_Once_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("config", "init")
	cli.AssertContains(t, stdout, "wrote "+c.Path(".lpdoc.json"))
	cli.AssertContains(t, c.ReadFile(".lpdoc.json"), `"log_level": "warning"`)

	stdout = c.MustRun("config", "show")
	cli.AssertContains(t, stdout, "project_config="+c.Path(".lpdoc.json"))

	stderr := c.MustFail("config", "init")
	cli.AssertContains(t, stderr, "already exists")
}

func Test_Config_Init_Global_Uses_Home_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("config", "init", "--global")

	want := filepath.Join(c.Env["HOME"], ".config", "lpdoc", "config.json")
	cli.AssertContains(t, stdout, "wrote "+want)

	stdout = c.MustRun("config", "show")
	cli.AssertContains(t, stdout, "global_config="+want)
}

func Test_Config_Rejects_Unknown_Subcommand_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("config", "edit")
	cli.AssertContains(t, stderr, "config edit")
}
