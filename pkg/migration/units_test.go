package migration_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/lpdoc/pkg/migration"
)

func Test_ParseLength_Parses_Millimeters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want migration.Length
	}{
		{in: "2.54", want: 2_540_000},
		{in: "-0.1", want: -100_000},
		{in: "+3", want: 3_000_000},
		{in: "0", want: 0},
		{in: ".5", want: 500_000},
		{in: "7.", want: 7_000_000},
		{in: "1.0000005", want: 1_000_001},
		{in: "-1.0000005", want: -1_000_001},
		{in: "1.0000004", want: 1_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := migration.ParseLength(tt.in)
			if err != nil {
				t.Fatalf("ParseLength(%q): %v", tt.in, err)
			}

			if got != tt.want {
				t.Fatalf("ParseLength(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func Test_ParseLength_Returns_Error_When_Not_A_Plain_Decimal(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "-", ".", "abc", "1e3", "1.2.3", "0x10", "1,5"} {
		_, err := migration.ParseLength(in)
		if err == nil {
			t.Errorf("ParseLength(%q): expected error", in)
		}
	}
}

func Test_Length_String_Keeps_One_Decimal(t *testing.T) {
	t.Parallel()

	got := []string{
		migration.Length(2_540_000).String(),
		migration.Length(0).String(),
		migration.Length(-1_500_000).String(),
		migration.Length(3_810_000).String(),
		migration.Length(1).String(),
	}
	want := []string{"2.54", "0.0", "-1.5", "3.81", "0.000001"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func Test_Angle_Wraps_Into_Full_Turn(t *testing.T) {
	t.Parallel()

	deg := func(d int64) migration.Angle { return migration.NewAngle(d * 1_000_000) }

	got := []string{
		deg(450).String(),
		deg(-90).String(),
		deg(-90).MappedTo0To360().String(),
		deg(0).Neg().String(),
		deg(180).Sub(deg(270)).String(),
		deg(300).Add(deg(90)).String(),
	}
	want := []string{"90.0", "-90.0", "270.0", "0.0", "-90.0", "30.0"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	a, err := migration.ParseAngle("-45.5")
	if err != nil {
		t.Fatal(err)
	}

	if a != -45_500_000 {
		t.Fatalf("ParseAngle = %d", a)
	}
}

func Test_Point_Rotated_Is_Exact_For_Right_Angles(t *testing.T) {
	t.Parallel()

	p := migration.Point{X: 1_000_000, Y: 2_000_000}

	got := []migration.Point{
		p.Rotated(migration.NewAngle(90_000_000)),
		p.Rotated(migration.NewAngle(180_000_000)),
		p.Rotated(migration.NewAngle(-90_000_000)),
		p.Rotated(migration.NewAngle(45_000_000)),
		p.MirroredH(),
	}
	want := []migration.Point{
		{X: -2_000_000, Y: 1_000_000},
		{X: -1_000_000, Y: -2_000_000},
		{X: 2_000_000, Y: -1_000_000},
		{X: -707_107, Y: 2_121_320},
		{X: -1_000_000, Y: 2_000_000},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
