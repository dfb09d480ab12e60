// Package render turns contact payloads into matrix barcode images.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Sentinel errors for caller-checkable conditions.
var (
	// ErrConfig marks an invalid render configuration. It is raised before
	// any payload is encoded.
	ErrConfig = errors.New("render: invalid configuration")
	// ErrCapacity marks a payload too large for the chosen error-correction level.
	ErrCapacity = errors.New("render: payload exceeds barcode capacity")
)

// Scale bounds, in pixels per module.
const (
	MinScale = 10
	MaxScale = 2000
)

// Level is an error-correction strength.
type Level int

const (
	LevelLow Level = iota + 1
	LevelMedium
	LevelQuartile
	LevelHigh
)

// String returns the configuration name of l.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelQuartile:
		return "quartile"
	case LevelHigh:
		return "high"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) valid() bool { return l >= LevelLow && l <= LevelHigh }

// ParseLevel accepts low|medium|quartile|high or the single letters L|M|Q|H.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "l":
		return LevelLow, nil
	case "medium", "m":
		return LevelMedium, nil
	case "quartile", "q":
		return LevelQuartile, nil
	case "high", "h":
		return LevelHigh, nil
	}
	return 0, fmt.Errorf("%w: unknown error-correction level %q (want low, medium, quartile or high)", ErrConfig, s)
}

// Format is the output image format.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the media type for f.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// ParseFormat accepts png or svg.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPNG, FormatSVG:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown image format %q (want png or svg)", ErrConfig, s)
}

// ParseColor accepts "#RRGGBB", "RRGGBB" or "r,g,b" with components 0-255.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		if len(parts) != 3 {
			return color.RGBA{}, fmt.Errorf("%w: color %q must have three components", ErrConfig, s)
		}
		var c [3]uint8
		for i, p := range parts {
			n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return color.RGBA{}, fmt.Errorf("%w: color %q: component %q out of range 0-255", ErrConfig, s, p)
			}
			c[i] = uint8(n)
		}
		return color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xff}, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: color %q must be #RRGGBB or r,g,b", ErrConfig, s)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: color %q must be #RRGGBB or r,g,b", ErrConfig, s)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}

// HexColor formats c as #rrggbb.
func HexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Config holds the settings shared by every image of a batch. It is a plain
// value: callers pass it explicitly and never mutate a shared copy.
type Config struct {
	Scale  int
	Level  Level
	Dark   color.RGBA
	Light  color.RGBA
	Format Format
}

// DefaultConfig returns black-on-white PNG output at the minimum scale.
func DefaultConfig() Config {
	return Config{
		Scale:  MinScale,
		Level:  LevelMedium,
		Dark:   color.RGBA{A: 0xff},
		Light:  color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		Format: FormatPNG,
	}
}

// Validate checks that c can be rendered. Low contrast between the two
// colors is not checked.
func (c Config) Validate() error {
	if c.Scale < MinScale || c.Scale > MaxScale {
		return fmt.Errorf("%w: scale %d outside [%d, %d]", ErrConfig, c.Scale, MinScale, MaxScale)
	}
	if !c.Level.valid() {
		return fmt.Errorf("%w: unknown error-correction level %d", ErrConfig, int(c.Level))
	}
	if c.Dark.A != 0xff || c.Light.A != 0xff {
		return fmt.Errorf("%w: colors must be opaque RGB", ErrConfig)
	}
	if c.Format != FormatPNG && c.Format != FormatSVG {
		return fmt.Errorf("%w: unknown image format %q", ErrConfig, c.Format)
	}
	return nil
}
