// Aperture Macros support
package gerbparser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/akavel/polyclip-go"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/wyre-innovations/gerberdump/calculator"
)

type AMPrimitiveType int

const (
	AMPrimitive_Comment        AMPrimitiveType = 0
	AMPrimitive_Circle         AMPrimitiveType = 1
	AMPrimitive_VectLineLegacy AMPrimitiveType = 2
	AMPrimitive_OutLine        AMPrimitiveType = 4
	AMPrimitive_Polygon        AMPrimitiveType = 5
	AMPrimitive_Moire          AMPrimitiveType = 6
	AMPrimitive_Thermal        AMPrimitiveType = 7
	AMPrimitive_VectLine       AMPrimitiveType = 20
	AMPrimitive_CenterLine     AMPrimitiveType = 21
	AMPrimitive_LowerLeftLine  AMPrimitiveType = 22
)

func (amp AMPrimitiveType) String() string {
	switch amp {
	case AMPrimitive_Comment:
		return "comment"
	case AMPrimitive_Circle:
		return "circle"
	case AMPrimitive_VectLine, AMPrimitive_VectLineLegacy:
		return "vector line"
	case AMPrimitive_CenterLine:
		return "center line"
	case AMPrimitive_LowerLeftLine:
		return "lower left line"
	case AMPrimitive_OutLine:
		return "outline"
	case AMPrimitive_Polygon:
		return "polygon"
	case AMPrimitive_Moire:
		return "moire"
	case AMPrimitive_Thermal:
		return "thermal"
	default:
		return "unknown"
	}
}

func (amp AMPrimitiveType) MarshalText() ([]byte, error) { return []byte(amp.String()), nil }

// minimal modifier count per primitive, rotation excluded
var amMinModifiers = map[AMPrimitiveType]int{
	AMPrimitive_Circle:        4,
	AMPrimitive_VectLine:      6,
	AMPrimitive_CenterLine:    5,
	AMPrimitive_LowerLeftLine: 5,
	AMPrimitive_OutLine:       5,
	AMPrimitive_Polygon:       5,
	AMPrimitive_Moire:         8,
	AMPrimitive_Thermal:       5,
}

// MacroStatement is one sub-statement of an AM body: a primitive, a variable
// definition or a comment.
type MacroStatement struct {
	Line      int             `json:"line"`
	Primitive AMPrimitiveType `json:"primitive"`
	Modifiers []string        `json:"modifiers,omitempty"`
	Variable  int             `json:"variable,omitempty"` // $n assigned by this statement
	Expr      string          `json:"expr,omitempty"`
	Comment   string          `json:"comment,omitempty"`
}

// IsVariable reports whether the statement is a "$n=expr" definition.
func (ms *MacroStatement) IsVariable() bool { return ms.Variable > 0 }

func (ms *MacroStatement) String() string {
	switch {
	case ms.IsVariable():
		return "$" + strconv.Itoa(ms.Variable) + "=" + ms.Expr
	case ms.Primitive == AMPrimitive_Comment:
		return "0 " + ms.Comment
	}
	return strconv.Itoa(int(ms.Primitive)) + " (" + ms.Primitive.String() + ") " + strings.Join(ms.Modifiers, ",")
}

type ApertureMacro struct {
	Loc
	Name       string
	Statements []MacroStatement
}

func (am *ApertureMacro) Primitives() []MacroStatement {
	out := make([]MacroStatement, 0, len(am.Statements))
	for _, s := range am.Statements {
		if !s.IsVariable() && s.Primitive != AMPrimitive_Comment {
			out = append(out, s)
		}
	}
	return out
}

func parseMacroStatement(text string, line int) (MacroStatement, bool, error) {
	ms := MacroStatement{Line: line}
	text = strings.TrimSpace(text)
	if text == "0" || strings.HasPrefix(text, "0 ") || strings.HasPrefix(text, "0,") {
		ms.Primitive = AMPrimitive_Comment
		ms.Comment = strings.TrimSpace(text[1:])
		return ms, false, nil
	}
	if strings.HasPrefix(text, "$") {
		eq := strings.IndexByte(text, '=')
		if eq < 0 {
			return ms, false, errors.New("variable definition without '='")
		}
		n, err := strconv.Atoi(strings.TrimSpace(text[1:eq]))
		if err != nil || n < 1 {
			return ms, false, errors.New("bad variable name " + text[:eq])
		}
		ms.Variable = n
		ms.Expr = strings.Join(strings.Fields(text[eq+1:]), "")
		return ms, false, nil
	}
	fields := strings.Split(text, ",")
	code, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return ms, false, errors.New("bad primitive code " + fields[0])
	}
	deprecated := false
	ms.Primitive = AMPrimitiveType(code)
	switch ms.Primitive {
	case AMPrimitive_VectLineLegacy:
		ms.Primitive = AMPrimitive_VectLine
		deprecated = true
	case AMPrimitive_LowerLeftLine:
		deprecated = true
	}
	minMod, ok := amMinModifiers[ms.Primitive]
	if !ok {
		return ms, false, fmt.Errorf("unknown macro primitive %d", code)
	}
	for _, f := range fields[1:] {
		ms.Modifiers = append(ms.Modifiers, strings.Join(strings.Fields(f), ""))
	}
	if len(ms.Modifiers) < minMod {
		return ms, false, fmt.Errorf("%s primitive needs at least %d modifiers, got %d",
			ms.Primitive, minMod, len(ms.Modifiers))
	}
	if ms.Primitive == AMPrimitive_OutLine {
		n, err := strconv.Atoi(ms.Modifiers[1])
		if err == nil && len(ms.Modifiers) < 2+2*(n+1) {
			return ms, false, fmt.Errorf("outline with %d vertices needs %d modifiers", n, 2+2*(n+1))
		}
	}
	return ms, deprecated, nil
}

// MacroShape is the evaluated envelope of a macro aperture, in file units.
type MacroShape struct {
	Bounds polyclip.Rectangle
	Area   float64 // exposed area, cleared primitives subtracted
	Empty  bool
}

// Evaluate instantiates the macro with the aperture definition parameters
// and returns its envelope.
func (am *ApertureMacro) Evaluate(params []float64) (MacroShape, error) {
	vars := make(map[int]float64, len(params))
	for i, p := range params {
		vars[i+1] = p
	}
	shape := MacroShape{Empty: true}
	eval := func(expr string) (float64, error) {
		return calculator.CalcExpression(expr, vars)
	}
	for _, st := range am.Statements {
		if st.IsVariable() {
			v, err := eval(st.Expr)
			if err != nil {
				return shape, fmt.Errorf("macro %s line %d: %w", am.Name, st.Line, err)
			}
			vars[st.Variable] = v
			continue
		}
		if st.Primitive == AMPrimitive_Comment {
			continue
		}
		mods := make([]float64, len(st.Modifiers))
		for i, m := range st.Modifiers {
			v, err := eval(m)
			if err != nil {
				return shape, fmt.Errorf("macro %s line %d: %w", am.Name, st.Line, err)
			}
			mods[i] = v
		}
		points, area, exposed := primitiveOutline(st.Primitive, mods)
		if !exposed {
			shape.Area -= area
			continue
		}
		shape.Area += area
		for _, p := range points {
			shape.include(p)
		}
	}
	if shape.Area < 0 {
		shape.Area = 0
	}
	return shape, nil
}

func (ms *MacroShape) include(p polyclip.Point) {
	if ms.Empty {
		ms.Bounds = polyclip.Rectangle{Min: p, Max: p}
		ms.Empty = false
		return
	}
	ms.Bounds.Min.X = math.Min(ms.Bounds.Min.X, p.X)
	ms.Bounds.Min.Y = math.Min(ms.Bounds.Min.Y, p.Y)
	ms.Bounds.Max.X = math.Max(ms.Bounds.Max.X, p.X)
	ms.Bounds.Max.Y = math.Max(ms.Bounds.Max.Y, p.Y)
}

func rotated(x, y, deg float64) polyclip.Point {
	if deg == 0 {
		return polyclip.Point{X: x, Y: y}
	}
	v := mgl64.Rotate2D(mgl64.DegToRad(deg)).Mul2x1(mgl64.Vec2{x, y})
	return polyclip.Point{X: v.X(), Y: v.Y()}
}

func optional(mods []float64, i int) float64 {
	if i < len(mods) {
		return mods[i]
	}
	return 0
}

// circleHull returns the axis aligned square hull of a circle, rotated about the origin.
func circleHull(cx, cy, d, rot float64) []polyclip.Point {
	c := rotated(cx, cy, rot)
	r := d / 2
	return []polyclip.Point{{X: c.X - r, Y: c.Y - r}, {X: c.X + r, Y: c.Y + r}}
}

func rectCorners(x0, y0, x1, y1, rot float64) []polyclip.Point {
	return []polyclip.Point{
		rotated(x0, y0, rot), rotated(x1, y0, rot),
		rotated(x1, y1, rot), rotated(x0, y1, rot),
	}
}

// primitiveOutline returns the hull points, the area and the exposure of one primitive.
func primitiveOutline(pt AMPrimitiveType, m []float64) ([]polyclip.Point, float64, bool) {
	switch pt {
	case AMPrimitive_Circle:
		// exposure, diameter, cx, cy[, rotation]
		d := math.Abs(m[1])
		return circleHull(m[2], m[3], d, optional(m, 4)), math.Pi * d * d / 4, m[0] != 0
	case AMPrimitive_VectLine:
		// exposure, width, sx, sy, ex, ey, rotation
		w := math.Abs(m[1])
		dx, dy := m[4]-m[2], m[5]-m[3]
		l := math.Hypot(dx, dy)
		nx, ny := 0.0, w/2
		if l > 0 {
			nx, ny = -dy/l*w/2, dx/l*w/2
		}
		rot := optional(m, 6)
		pts := []polyclip.Point{
			rotated(m[2]+nx, m[3]+ny, rot), rotated(m[2]-nx, m[3]-ny, rot),
			rotated(m[4]+nx, m[5]+ny, rot), rotated(m[4]-nx, m[5]-ny, rot),
		}
		return pts, w * l, m[0] != 0
	case AMPrimitive_CenterLine:
		// exposure, width, height, cx, cy, rotation
		w, h := math.Abs(m[1]), math.Abs(m[2])
		return rectCorners(m[3]-w/2, m[4]-h/2, m[3]+w/2, m[4]+h/2, optional(m, 5)), w * h, m[0] != 0
	case AMPrimitive_LowerLeftLine:
		// exposure, width, height, llx, lly, rotation
		w, h := math.Abs(m[1]), math.Abs(m[2])
		return rectCorners(m[3], m[4], m[3]+w, m[4]+h, optional(m, 5)), w * h, m[0] != 0
	case AMPrimitive_OutLine:
		// exposure, n, x0, y0, ... xn, yn, rotation
		n := int(m[1])
		rot := optional(m, 2+2*(n+1))
		var c polyclip.Contour
		for i := 0; i <= n && 3+2*i < len(m); i++ {
			c.Add(rotated(m[2+2*i], m[3+2*i], rot))
		}
		return c, math.Abs(shoelace(c)), m[0] != 0
	case AMPrimitive_Polygon:
		// exposure, vertices, cx, cy, diameter, rotation
		n := math.Max(3, m[1])
		d := math.Abs(m[4])
		area := n / 2 * (d / 2) * (d / 2) * math.Sin(2*math.Pi/n)
		return circleHull(m[2], m[3], d, optional(m, 5)), area, m[0] != 0
	case AMPrimitive_Moire:
		// cx, cy, outer diameter, ring thickness, gap, rings, cross thickness, cross length[, rotation]
		d := math.Max(math.Abs(m[2]), math.Abs(m[7]))
		rings := 0.0
		for i, n := 0, moireRings(m[2], m[3]+m[4], m[5]); i < n; i++ {
			od := m[2] - 2*float64(i)*(m[3]+m[4])
			id := od - 2*m[3]
			if od <= 0 {
				break
			}
			rings += math.Pi / 4 * (od*od - math.Max(id, 0)*math.Max(id, 0))
		}
		return circleHull(m[0], m[1], d, optional(m, 8)), rings + 2*m[6]*m[7], true
	case AMPrimitive_Thermal:
		// cx, cy, outer diameter, inner diameter, gap[, rotation]
		od, id := math.Abs(m[2]), math.Abs(m[3])
		area := math.Pi/4*(od*od-id*id) - 2*m[4]*(od-id)
		return circleHull(m[0], m[1], od, optional(m, 5)), math.Max(area, 0), true
	}
	return nil, 0, false
}

// MaxMoireRings bounds the rings of a moire primitive taken into account.
const MaxMoireRings = 10000

// moireRings returns how many rings of outer diameter d and the given pitch
// fit in the primitive, at most limit and MaxMoireRings.
func moireRings(d, pitch, limit float64) int {
	if limit < 1 || d <= 0 {
		return 0
	}
	if pitch <= 0 {
		return 1
	}
	return int(math.Min(math.Min(limit, math.Ceil(d/(2*pitch))), MaxMoireRings))
}

// shoelace returns the signed area of a closed contour.
func shoelace(c polyclip.Contour) float64 {
	a := 0.0
	for i := range c {
		j := (i + 1) % len(c)
		a += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return a / 2
}
