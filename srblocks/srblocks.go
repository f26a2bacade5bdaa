/*
The file contains the step and repeat block parameters and its placement grid
*/
package srblocks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wyre-innovations/gerberdump/xy"
)

/*
############################## step and repeat blocks #################################
*/
type SRBlock struct {
	NumX      int     `json:"nx"`
	NumY      int     `json:"ny"`
	DX        float64 `json:"dx"` // mm
	DY        float64 `json:"dy"` // mm
	OpenLine  int     `json:"open_line"`
	CloseLine int     `json:"close_line"` // 0 while open
	// Invalid is set when the declared counts were below 1; the block then
	// behaves as a single placement.
	Invalid bool `json:"invalid,omitempty"`
	Scope   int  `json:"scope"`
}

var (
	ErrXCount = errors.New("SRBlock: X count < 1")
	ErrYCount = errors.New("SRBlock: Y count < 1")
)

// New validates the repeat counts. On error the returned block is usable and
// clamped to a 1x1 repeat.
func New(nx, ny int, dx, dy float64, line int) (*SRBlock, error) {
	sr := &SRBlock{NumX: nx, NumY: ny, DX: dx, DY: dy, OpenLine: line}
	var err error
	if nx < 1 {
		err = ErrXCount
	} else if ny < 1 {
		err = ErrYCount
	}
	if err != nil {
		sr.Invalid = true
		sr.NumX, sr.NumY = max(nx, 1), max(ny, 1)
	}
	return sr, err
}

func (srblock *SRBlock) String() string {
	if srblock == nil {
		return "<nil>"
	}
	return "step and repeat " + strconv.Itoa(srblock.NumX) + "x" + strconv.Itoa(srblock.NumY) +
		", dX=" + strconv.FormatFloat(srblock.DX, 'f', -1, 64) +
		", dY=" + strconv.FormatFloat(srblock.DY, 'f', -1, 64)
}

// Placements returns the number of copies of the block body.
func (srblock *SRBlock) Placements() int {
	return srblock.NumX * srblock.NumY
}

// Offsets returns the offset of every copy, rows along Y outermost.
func (srblock *SRBlock) Offsets() []xy.Point {
	out := make([]xy.Point, 0, srblock.Placements())
	for j := 0; j < srblock.NumY; j++ {
		for i := 0; i < srblock.NumX; i++ {
			out = append(out, xy.Point{X: float64(i) * srblock.DX, Y: float64(j) * srblock.DY})
		}
	}
	return out
}

// IsOpen reports whether the closing %SR*% has not been seen yet.
func (srblock *SRBlock) IsOpen() bool {
	return srblock.CloseLine == 0
}

// ExtractLetterDelimitedFloats splits the input string using template's
// letters as delimiters and returns a map letter:value, e.g. "X2Y3I5.0J0".
func ExtractLetterDelimitedFloats(ins, template string) (map[byte]float64, error) {
	out := make(map[byte]float64)
	i := 0
	for i < len(ins) {
		letter := ins[i]
		if strings.IndexByte(template, letter) < 0 {
			return nil, fmt.Errorf("unexpected letter %q in %q", letter, ins)
		}
		if _, dup := out[letter]; dup {
			return nil, fmt.Errorf("duplicate letter %q in %q", letter, ins)
		}
		j := i + 1
		for j < len(ins) && strings.IndexByte(template, ins[j]) < 0 {
			j++
		}
		fv, err := strconv.ParseFloat(ins[i+1:j], 64)
		if err != nil {
			return nil, err
		}
		out[letter] = fv
		i = j
	}
	return out, nil
}
