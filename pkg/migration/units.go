package migration

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var errNumber = errors.New("invalid number")

// Length is a distance in nanometers, serialized in millimeters.
type Length int64

const (
	nmPerMm     = 1_000_000
	microPerDeg = 1_000_000
)

// Mm returns l in millimeters.
func (l Length) Mm() float64 { return float64(l) / nmPerMm }

// String formats l in millimeters with at least one decimal: 2.54, 0.0, -1.5.
func (l Length) String() string { return formatFixed(int64(l), 6) }

// ParseLength parses a millimeter value like "2.54" or "-0.1".
func ParseLength(s string) (Length, error) {
	v, err := parseFixed(s, 6)
	if err != nil {
		return 0, fmt.Errorf("length %q: %w", s, err)
	}

	return Length(v), nil
}

// Angle is an angle in microdegrees within (-360°, 360°), serialized in
// degrees.
type Angle int64

// NewAngle returns the angle of micro microdegrees, wrapped into (-360°, 360°).
func NewAngle(micro int64) Angle { return Angle(micro % (360 * microPerDeg)) }

// Deg returns a in degrees.
func (a Angle) Deg() float64 { return float64(a) / microPerDeg }

func (a Angle) Add(b Angle) Angle { return NewAngle(int64(a) + int64(b)) }
func (a Angle) Sub(b Angle) Angle { return NewAngle(int64(a) - int64(b)) }
func (a Angle) Neg() Angle { return NewAngle(-int64(a)) }

// MappedTo0To360 returns the equivalent angle within [0°, 360°).
func (a Angle) MappedTo0To360() Angle {
	if a < 0 {
		return a + 360*microPerDeg
	}

	return a
}

// String formats a in degrees with at least one decimal: 90.0, -45.5.
func (a Angle) String() string { return formatFixed(int64(a), 6) }

// ParseAngle parses a degree value like "90.0".
func ParseAngle(s string) (Angle, error) {
	v, err := parseFixed(s, 6)
	if err != nil {
		return 0, fmt.Errorf("angle %q: %w", s, err)
	}

	return NewAngle(v), nil
}

const deg180 = Angle(180 * microPerDeg)

// Point is a position in nanometers. Y points up.
type Point struct {
	X, Y Length
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// MirroredH mirrors p at the Y axis.
func (p Point) MirroredH() Point { return Point{X: -p.X, Y: p.Y} }

// Rotated rotates p counterclockwise around the origin. Multiples of 90° are
// exact, other angles are rounded to the nanometer.
func (p Point) Rotated(a Angle) Point {
	switch a.MappedTo0To360() {
	case 0:
		return p
	case 90 * microPerDeg:
		return Point{X: -p.Y, Y: p.X}
	case 180 * microPerDeg:
		return Point{X: -p.X, Y: -p.Y}
	case 270 * microPerDeg:
		return Point{X: p.Y, Y: -p.X}
	}

	rad := a.Deg() * math.Pi / 180
	sin, cos := math.Sincos(rad)
	x, y := float64(p.X), float64(p.Y)

	return Point{
		X: Length(math.Round(x*cos - y*sin)),
		Y: Length(math.Round(x*sin + y*cos)),
	}
}

// Distance returns the distance between p and q in nanometers.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(float64(q.X-p.X), float64(q.Y-p.Y))
}

// Alignment is a text alignment like "(align left center)".
type Alignment struct {
	H, V string
}

// MirroredV swaps top and bottom alignment.
func (a Alignment) MirroredV() Alignment {
	switch a.V {
	case "top":
		a.V = "bottom"
	case "bottom":
		a.V = "top"
	}

	return a
}

// parseFixed parses a decimal number into an integer scaled by 10^digits,
// rounding half away from zero. Exponents are not allowed.
func parseFixed(s string, digits int) (int64, error) {
	str := strings.TrimSpace(s)

	neg := false

	switch {
	case strings.HasPrefix(str, "-"):
		neg, str = true, str[1:]
	case strings.HasPrefix(str, "+"):
		str = str[1:]
	}

	intPart, fracPart, _ := strings.Cut(str, ".")
	if intPart == "" && fracPart == "" {
		return 0, errNumber
	}

	if !isDigits(intPart) || !isDigits(fracPart) {
		return 0, errNumber
	}

	round := false
	if len(fracPart) > digits {
		round = fracPart[digits] >= '5'
		fracPart = fracPart[:digits]
	}

	fracPart += strings.Repeat("0", digits-len(fracPart))

	var v int64

	for _, c := range intPart + fracPart {
		if v > (math.MaxInt64-9)/10 {
			return 0, fmt.Errorf("%w: out of range", errNumber)
		}

		v = v*10 + int64(c-'0')
	}

	if round {
		v++
	}

	if neg {
		v = -v
	}

	return v, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}

// formatFixed is the inverse of parseFixed. Trailing zeros are dropped but
// one decimal is always kept.
func formatFixed(v int64, digits int) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}

	scale := int64(math.Pow10(digits))
	frac := fmt.Sprintf("%0*d", digits, v%scale)

	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		frac = "0"
	}

	return fmt.Sprintf("%s%d.%s", sign, v/scale, frac)
}
