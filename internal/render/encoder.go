package render

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Matrix is a square grid of barcode modules, quiet zone included.
type Matrix struct {
	Size int
	bits []bool
}

// NewMatrix builds a Matrix from rows of modules, true meaning dark.
// Rows must be square.
func NewMatrix(rows [][]bool) (Matrix, error) {
	n := len(rows)
	bits := make([]bool, 0, n*n)
	for y, row := range rows {
		if len(row) != n {
			return Matrix{}, fmt.Errorf("render: matrix row %d has %d modules, want %d", y, len(row), n)
		}
		bits = append(bits, row...)
	}
	return Matrix{Size: n, bits: bits}, nil
}

// At reports whether the module at column x, row y is dark.
func (m Matrix) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Size || y >= m.Size {
		return false
	}
	return m.bits[y*m.Size+x]
}

// Encoder computes a barcode matrix for raw payload bytes.
// Implementations report oversized payloads as ErrCapacity.
type Encoder interface {
	Encode(data []byte, level Level) (Matrix, error)
}

// QREncoder encodes QR codes. The encoder picks the smallest version that
// fits; bytes outside the numeric and alphanumeric sets use byte mode, so
// UTF-8 payloads pass through unchanged.
type QREncoder struct{}

// Encode returns the QR matrix for data, including the 4-module quiet zone.
func (QREncoder) Encode(data []byte, level Level) (Matrix, error) {
	lvl, err := recoveryLevel(level)
	if err != nil {
		return Matrix{}, err
	}
	q, err := qrcode.New(string(data), lvl)
	if err != nil {
		// New only fails when no version holds the data at this level.
		return Matrix{}, fmt.Errorf("%w: %d bytes at level %s: %v", ErrCapacity, len(data), level, err)
	}
	return NewMatrix(q.Bitmap())
}

func recoveryLevel(l Level) (qrcode.RecoveryLevel, error) {
	switch l {
	case LevelLow:
		return qrcode.Low, nil
	case LevelMedium:
		return qrcode.Medium, nil
	case LevelQuartile:
		return qrcode.High, nil
	case LevelHigh:
		return qrcode.Highest, nil
	}
	return 0, fmt.Errorf("%w: unknown error-correction level %d", ErrConfig, int(l))
}
