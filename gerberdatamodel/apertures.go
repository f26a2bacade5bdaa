package gerberdatamodel

import (
	"math"
	"strconv"

	"github.com/akavel/polyclip-go"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/gerbparser"
)

// Aperture is a resolved aperture. All sizes are in millimeters.
type Aperture struct {
	Number       int              `json:"number"`
	Type         gbt.GerberApType `json:"type"`
	Template     string           `json:"template"`
	Params       []float64        `json:"params,omitempty"` // as written, file units
	Diameter     float64          `json:"diameter,omitempty"`
	XSize        float64          `json:"x_size,omitempty"`
	YSize        float64          `json:"y_size,omitempty"`
	HoleDiameter float64          `json:"hole_diameter,omitempty"`
	Vertices     int              `json:"vertices,omitempty"`
	Rotation     float64          `json:"rotation,omitempty"`
	// Extent is the envelope of a flash at the origin.
	Extent polyclip.Rectangle `json:"-"`
	Area   float64            `json:"area"`
	// ShapeError is set when a macro could not be evaluated.
	ShapeError string           `json:"shape_error,omitempty"`
	Attributes []AttributeValue `json:"attributes,omitempty"`
	Scope      int              `json:"scope"`
	Block      int              `json:"block"` // body scope of a block aperture, -1 otherwise
	Line       int              `json:"line"`
	Deprecated bool             `json:"deprecated,omitempty"`
}

func (ap *Aperture) String() string {
	s := "D" + strconv.Itoa(ap.Number) + " " + ap.Type.String()
	switch ap.Type {
	case gbt.AptypeCircle:
		s += " d=" + ff(ap.Diameter)
	case gbt.AptypeRectangle, gbt.AptypeObround:
		s += " " + ff(ap.XSize) + "x" + ff(ap.YSize)
	case gbt.AptypePoly:
		s += " d=" + ff(ap.Diameter) + " n=" + strconv.Itoa(ap.Vertices)
	case gbt.AptypeMacro:
		s += " " + ap.Template
	}
	if ap.HoleDiameter > 0 {
		s += " hole=" + ff(ap.HoleDiameter)
	}
	return s
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MinSize returns the smallest dimension of the aperture.
func (ap *Aperture) MinSize() float64 {
	switch ap.Type {
	case gbt.AptypeCircle, gbt.AptypePoly:
		return ap.Diameter
	case gbt.AptypeRectangle, gbt.AptypeObround:
		return math.Min(ap.XSize, ap.YSize)
	}
	return math.Min(ap.Extent.Max.X-ap.Extent.Min.X, ap.Extent.Max.Y-ap.Extent.Min.Y)
}

// ShapeKey identifies the geometric shape independently of the D code.
func (ap *Aperture) ShapeKey() string {
	r := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	switch ap.Type {
	case gbt.AptypeCircle:
		return "C" + r(ap.Diameter) + "/" + r(ap.HoleDiameter)
	case gbt.AptypeRectangle, gbt.AptypeObround:
		return string(ap.Template[0]) + r(ap.XSize) + "x" + r(ap.YSize) + "/" + r(ap.HoleDiameter)
	case gbt.AptypePoly:
		return "P" + r(ap.Diameter) + "x" + strconv.Itoa(ap.Vertices) + "@" + r(ap.Rotation)
	case gbt.AptypeBlock:
		return "B" + strconv.Itoa(ap.Block)
	}
	s := "M" + ap.Template
	for _, p := range ap.Params {
		s += "," + r(p)
	}
	return s
}

func centered(w, h float64) polyclip.Rectangle {
	return polyclip.Rectangle{
		Min: polyclip.Point{X: -w / 2, Y: -h / 2},
		Max: polyclip.Point{X: w / 2, Y: h / 2},
	}
}

// NewAperture resolves a definition. scale converts file units to millimeters.
// macro may be nil for standard templates or when the macro is unknown.
func NewAperture(def *gerbparser.ApertureDefinition, macro *gerbparser.ApertureMacro, scale float64) *Aperture {
	ap := &Aperture{
		Number:     def.Number,
		Type:       gbt.ApTypeByTemplate(def.Template),
		Template:   def.Template,
		Params:     def.Params,
		Block:      -1,
		Line:       def.Line,
		Deprecated: def.Deprecated,
	}
	p := func(i int) float64 {
		if i < len(def.Params) {
			return def.Params[i] * scale
		}
		return 0
	}
	hole := func(i int) float64 {
		ap.HoleDiameter = p(i)
		if len(def.Params) > i+1 {
			// historic rectangular hole
			return p(i) * p(i+1)
		}
		return math.Pi * p(i) * p(i) / 4
	}
	switch ap.Type {
	case gbt.AptypeCircle:
		ap.Diameter = p(0)
		ap.Extent = centered(ap.Diameter, ap.Diameter)
		ap.Area = math.Pi*ap.Diameter*ap.Diameter/4 - hole(1)
	case gbt.AptypeRectangle:
		ap.XSize, ap.YSize = p(0), p(1)
		ap.Extent = centered(ap.XSize, ap.YSize)
		ap.Area = ap.XSize*ap.YSize - hole(2)
	case gbt.AptypeObround:
		ap.XSize, ap.YSize = p(0), p(1)
		ap.Extent = centered(ap.XSize, ap.YSize)
		r := math.Min(ap.XSize, ap.YSize) / 2
		ap.Area = ap.XSize*ap.YSize - (4-math.Pi)*r*r - hole(2)
	case gbt.AptypePoly:
		ap.Diameter = p(0)
		ap.Vertices = int(def.Params[1])
		if len(def.Params) > 2 {
			ap.Rotation = def.Params[2]
		}
		ap.Extent = centered(ap.Diameter, ap.Diameter)
		n := float64(ap.Vertices)
		r := ap.Diameter / 2
		ap.Area = n/2*r*r*math.Sin(2*math.Pi/n) - hole(3)
	case gbt.AptypeMacro:
		if macro == nil {
			ap.ShapeError = "macro " + def.Template + " is not defined"
			break
		}
		shape, err := macro.Evaluate(def.Params)
		if err != nil {
			ap.ShapeError = err.Error()
			break
		}
		if !shape.Empty {
			ap.Extent = polyclip.Rectangle{
				Min: polyclip.Point{X: shape.Bounds.Min.X * scale, Y: shape.Bounds.Min.Y * scale},
				Max: polyclip.Point{X: shape.Bounds.Max.X * scale, Y: shape.Bounds.Max.Y * scale},
			}
		}
		ap.Area = shape.Area * scale * scale
		ap.Deprecated = ap.Deprecated || macro.Deprecated
	}
	if ap.Area < 0 {
		ap.Area = 0
	}
	return ap
}

// NewBlockAperture creates the aperture of a closed block body.
func NewBlockAperture(number, body, line int, extent polyclip.Rectangle) *Aperture {
	return &Aperture{
		Number:   number,
		Type:     gbt.AptypeBlock,
		Template: "AB",
		Extent:   extent,
		Block:    body,
		Line:     line,
	}
}
