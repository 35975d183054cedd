package version_test

import (
	"errors"
	"testing"

	"github.com/calvinalkan/lpdoc/pkg/version"
)

func Test_File_Bytes_Writes_Version_With_Trailing_Newline(t *testing.T) {
	t.Parallel()

	f := version.NewFile(version.MustParse("0.2"))

	if got, want := string(f.Bytes()), "0.2\n"; got != want {
		t.Fatalf("Bytes()=%q, want=%q", got, want)
	}
}

func Test_File_Round_Trips_Every_Version(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"0", "0.1", "0.2", "1", "2", "1.2.3", "123.0.45"} {
		v := version.MustParse(s)

		parsed, err := version.ParseFile(version.NewFile(v).Bytes())
		if err != nil {
			t.Fatalf("ParseFile(%q): %v", s, err)
		}

		if !parsed.Version.Equal(v) || parsed.Version.String() != s {
			t.Fatalf("round trip of %q gave %q", s, parsed.Version)
		}
	}
}

func Test_ParseFile_Ignores_Blank_Lines_And_Whitespace(t *testing.T) {
	t.Parallel()

	f, err := version.ParseFile([]byte("\n  1  \r\n\n"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if got, want := f.Version.String(), "1"; got != want {
		t.Fatalf("version=%q, want=%q", got, want)
	}
}

func Test_ParseFile_Returns_ErrFormat_When_Content_Is_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"only whitespace", " \n\t\n"},
		{"two lines", "1\n2\n"},
		{"not a version", "foo\n"},
		{"leading zero", "01\n"},
		{"too many components", "1.2.3.4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := version.ParseFile([]byte(tt.data))
			if !errors.Is(err, version.ErrFormat) {
				t.Fatalf("err=%v, want ErrFormat", err)
			}
		})
	}
}
