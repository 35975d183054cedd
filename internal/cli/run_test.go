package cli_test

import (
	"testing"

	"github.com/calvinalkan/lpdoc/internal/cli"
)

func Test_Run_Prints_Usage_When_No_Command_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()
	cli.AssertContains(t, stdout, "Commands:")
	cli.AssertContains(t, stdout, "upgrade <doc> [flags]")
	cli.AssertContains(t, stdout, "--log-level <level>")
}

func Test_Run_Fails_When_Command_Is_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")
	cli.AssertContains(t, stderr, "unknown command: frobnicate")
	cli.AssertContains(t, stderr, "Commands:")
}

func Test_Flags_Errors_When_Invoked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown global flag", args: []string{"--unknown-flag", "status", "x"}, want: "unknown flag"},
		{name: "config needs argument", args: []string{"-c"}, want: "flag needs an argument"},
		{name: "unknown command flag", args: []string{"ls", "--bogus", "doc"}, want: "unknown flag: --bogus"},
		{name: "too few arguments", args: []string{"cat", "doc"}, want: "wrong number of arguments"},
		{name: "too many arguments", args: []string{"version", "a", "b"}, want: "usage: lpdoc version <doc>"},
		{name: "bad log level", args: []string{"--log-level", "loud", "config", "show"}, want: "invalid value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stderr := c.MustFail(tt.args...)
			cli.AssertContains(t, stderr, tt.want)
		})
	}
}

func Test_Command_Help_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("upgrade", "--help")
	cli.AssertContains(t, stdout, "Usage: lpdoc upgrade <doc> [flags]")
	cli.AssertContains(t, stdout, "--dry-run")
	cli.AssertContains(t, stdout, "--kind")
}
