package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Renderer encodes payloads and writes them as image files.
type Renderer struct {
	enc Encoder
}

// NewRenderer creates a Renderer using enc, or QREncoder when enc is nil.
func NewRenderer(enc Encoder) *Renderer {
	if enc == nil {
		enc = QREncoder{}
	}
	return &Renderer{enc: enc}
}

// Render returns the encoded image file for payload. Config errors are
// reported before the payload is encoded.
func (r *Renderer) Render(payload []byte, cfg Config) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := r.enc.Encode(payload, cfg.Level)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch cfg.Format {
	case FormatSVG:
		writeSVG(&buf, m, cfg)
	default:
		if err := png.Encode(&buf, Raster(m, cfg)); err != nil {
			return nil, fmt.Errorf("render: encoding png: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Raster returns m as a two-color image of Size*Scale pixels per side.
// Pixels are computed on demand, so large scales do not allocate a bitmap.
func Raster(m Matrix, cfg Config) image.PalettedImage {
	return &raster{
		m:       m,
		scale:   cfg.Scale,
		palette: color.Palette{cfg.Light, cfg.Dark},
	}
}

type raster struct {
	m       Matrix
	scale   int
	palette color.Palette
}

func (r *raster) ColorModel() color.Model { return r.palette }

func (r *raster) Bounds() image.Rectangle {
	n := r.m.Size * r.scale
	return image.Rect(0, 0, n, n)
}

func (r *raster) At(x, y int) color.Color {
	return r.palette[r.ColorIndexAt(x, y)]
}

func (r *raster) ColorIndexAt(x, y int) uint8 {
	if r.m.At(x/r.scale, y/r.scale) {
		return 1
	}
	return 0
}

// writeSVG draws the light background plus one path with a rectangle per
// horizontal run of dark modules. Coordinates are in modules; width and
// height carry the pixel size.
func writeSVG(buf *bytes.Buffer, m Matrix, cfg Config) {
	px := m.Size * cfg.Scale
	fmt.Fprintf(buf, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	fmt.Fprintf(buf, `<svg xmlns="http://www.w3.org/2000/svg" version="1.1" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`+"\n",
		px, px, m.Size, m.Size)
	fmt.Fprintf(buf, `<rect width="%d" height="%d" fill="%s"/>`+"\n", m.Size, m.Size, HexColor(cfg.Light))
	fmt.Fprintf(buf, `<path fill="%s" d="`, HexColor(cfg.Dark))
	for y := 0; y < m.Size; y++ {
		for x := 0; x < m.Size; {
			if !m.At(x, y) {
				x++
				continue
			}
			start := x
			for x < m.Size && m.At(x, y) {
				x++
			}
			fmt.Fprintf(buf, "M%d %dh%dv1h-%dz", start, y, x-start, x-start)
		}
	}
	buf.WriteString(`"/>` + "\n</svg>\n")
}
