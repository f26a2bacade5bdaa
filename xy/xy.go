package xy

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Function checks against non-number characters in the string
func isNumString(ins string) bool {
	if len(ins) == 0 {
		return false
	}
	for i := 0; i < len(ins); i++ {
		if (ins[i] < '0') || (ins[i] > '9') {
			return false
		}
	}
	return true
}

/*
############################ format specification #####################
*/

// FormatSpec is the coordinate format declared by %FS...*%.
type FormatSpec struct {
	Source       string `json:"source"`
	IntDigits    int    `json:"integer_digits"`
	DecDigits    int    `json:"decimal_digits"`
	OmitTrailing bool   `json:"omit_trailing,omitempty"` // 'T' zero omission, deprecated
	Incremental  bool   `json:"incremental,omitempty"`   // 'I' notation, deprecated
}

var (
	ErrBadFormat     = errors.New("unable to parse format specification")
	ErrAxisMismatch  = errors.New("X and Y coordinate formats differ")
	ErrDigitsRange   = errors.New("number of digits out of range")
	ErrBadCoordinate = errors.New("bad coordinate number")
)

// ParseFormatSpec parses the body of an FS command, e.g. "FSLAX24Y24".
// X and Y must carry the same format.
func ParseFormatSpec(body string) (*FormatSpec, error) {
	fs := &FormatSpec{Source: body}
	s := strings.ToUpper(strings.TrimSpace(body))
	if !strings.HasPrefix(s, "FS") || len(s) < 4 {
		return nil, ErrBadFormat
	}
	s = s[2:]
	switch s[0] {
	case 'L':
	case 'T':
		fs.OmitTrailing = true
	case 'D':
		// no zero omission, treated like leading omission
	default:
		return nil, ErrBadFormat
	}
	switch s[1] {
	case 'A':
	case 'I':
		fs.Incremental = true
	default:
		return nil, ErrBadFormat
	}
	xpos := strings.IndexByte(s, 'X')
	ypos := strings.IndexByte(s, 'Y')
	if xpos < 0 || ypos < 0 || ypos < xpos+3 || len(s) < ypos+3 {
		return nil, ErrBadFormat
	}
	xi, xd, err := digitPair(s[xpos+1 : xpos+3])
	if err != nil {
		return nil, err
	}
	yi, yd, err := digitPair(s[ypos+1 : ypos+3])
	if err != nil {
		return nil, err
	}
	if xi != yi || xd != yd {
		return nil, ErrAxisMismatch
	}
	if xi > 7 || xd > 7 || xi+xd == 0 {
		return nil, ErrDigitsRange
	}
	fs.IntDigits = xi
	fs.DecDigits = xd
	return fs, nil
}

func digitPair(s string) (int, int, error) {
	if !isNumString(s) {
		return 0, 0, ErrBadFormat
	}
	return int(s[0] - '0'), int(s[1] - '0'), nil
}

// Equal reports whether two declarations describe the same format.
func (fs *FormatSpec) Equal(other *FormatSpec) bool {
	if fs == nil || other == nil {
		return fs == other
	}
	return fs.IntDigits == other.IntDigits && fs.DecDigits == other.DecDigits &&
		fs.OmitTrailing == other.OmitTrailing && fs.Incremental == other.Incremental
}

func (fs *FormatSpec) String() string {
	if fs == nil {
		return "<not established>"
	}
	s := strconv.Itoa(fs.IntDigits) + "." + strconv.Itoa(fs.DecDigits)
	if fs.OmitTrailing {
		s += " trailing zeros omitted"
	} else {
		s += " leading zeros omitted"
	}
	if fs.Incremental {
		s += ", incremental"
	} else {
		s += ", absolute"
	}
	return s
}

/*
######################### coordinates #########################################
*/

// Decode converts a coordinate number in file units.
// With leading zero omission the digits are right aligned, so any length is
// accepted: the value is the integer divided by 10^DecDigits. With trailing
// zero omission the digits are left aligned and padded to the full width.
func (fs *FormatSpec) Decode(ins string) (float64, error) {
	neg := false
	ws := ins
	if strings.HasPrefix(ws, "-") {
		neg = true
		ws = ws[1:]
	} else if strings.HasPrefix(ws, "+") {
		ws = ws[1:]
	}
	if !isNumString(ws) {
		return 0, ErrBadCoordinate
	}
	if fs.OmitTrailing {
		n := fs.IntDigits + fs.DecDigits
		if len(ws) > n {
			return 0, ErrBadCoordinate
		}
		ps := make([]byte, n)
		copy(ps, ws)
		for i := len(ws); i < n; i++ {
			ps[i] = '0'
		}
		ws = string(ps)
	}
	ival, err := strconv.ParseInt(ws, 10, 64)
	if err != nil {
		return 0, ErrBadCoordinate
	}
	// one rounding step only, to reproduce the literal value
	val := float64(ival) / math.Pow10(fs.DecDigits)
	if neg {
		val = -val
	}
	return val, nil
}

// Point is a location in millimeters.
type Point struct {
	X float64 `json:"x" xml:"x,attr" yaml:"x"`
	Y float64 `json:"y" xml:"y,attr" yaml:"y"`
}

func (p Point) String() string {
	return "(" + strconv.FormatFloat(p.X, 'f', -1, 64) + ", " + strconv.FormatFloat(p.Y, 'f', -1, 64) + ")"
}

// Add returns p shifted by d.
func (p Point) Add(d Point) Point {
	return Point{p.X + d.X, p.Y + d.Y}
}

// Equals reports whether another point lies within tolerance of p.
// tolerance is the radius of the circle around p.
func (p Point) Equals(another Point, tolerance float64) bool {
	return math.Hypot(p.X-another.X, p.Y-another.Y) <= tolerance
}
