// Package fabcost estimates the manufacturing complexity of a board from its
// parsed Gerber layers.
package fabcost

import (
	"errors"
	"fmt"
	"math"

	"github.com/akavel/polyclip-go"
	"github.com/golang/glog"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/gerberdatamodel"
	"github.com/wyre-innovations/gerberdump/regions"
)

// Reference values where a factor reaches half of its range.
type Reference struct {
	Area       float64 `json:"area" mapstructure:"area"` // mm²
	Apertures  float64 `json:"apertures" mapstructure:"apertures"`
	Operations float64 `json:"operations" mapstructure:"operations"`
}

// Weights of the complexity score factors. Each factor is normalized as
// f/(f+ref) and the score is the weighted mean scaled to 0..100.
type Weights struct {
	Dimension  float64   `json:"dimension" mapstructure:"dimension"`
	Apertures  float64   `json:"apertures" mapstructure:"apertures"`
	Operations float64   `json:"operations" mapstructure:"operations"`
	Reference  Reference `json:"reference" mapstructure:"reference"`
}

// Defaults: board size 0.4, aperture diversity 0.3, operation count 0.3,
// with a 100x100 mm board, 20 apertures and 5000 operations as references.
const (
	DefaultDimensionWeight = 0.4
	DefaultApertureWeight  = 0.3
	DefaultOperationWeight = 0.3
	DefaultReferenceArea   = 10000.0
	DefaultReferenceAps    = 20.0
	DefaultReferenceOps    = 5000.0
	MaxScore               = 100.0
)

func DefaultWeights() Weights {
	return Weights{
		Dimension:  DefaultDimensionWeight,
		Apertures:  DefaultApertureWeight,
		Operations: DefaultOperationWeight,
		Reference: Reference{
			Area:       DefaultReferenceArea,
			Apertures:  DefaultReferenceAps,
			Operations: DefaultReferenceOps,
		},
	}
}

var (
	ErrNegativeWeight    = errors.New("fabcost: negative weight")
	ErrZeroWeights       = errors.New("fabcost: weights sum to zero")
	ErrNegativeReference = errors.New("fabcost: reference values must be positive")
)

func (w Weights) Validate() error {
	if w.Dimension < 0 || w.Apertures < 0 || w.Operations < 0 {
		return ErrNegativeWeight
	}
	if w.Dimension+w.Apertures+w.Operations == 0 {
		return ErrZeroWeights
	}
	if w.Reference.Area <= 0 || w.Reference.Apertures <= 0 || w.Reference.Operations <= 0 {
		return ErrNegativeReference
	}
	return nil
}

type Dimensions struct {
	MinX   float64 `json:"min_x" xml:"min_x,attr" yaml:"min_x"`
	MinY   float64 `json:"min_y" xml:"min_y,attr" yaml:"min_y"`
	MaxX   float64 `json:"max_x" xml:"max_x,attr" yaml:"max_x"`
	MaxY   float64 `json:"max_y" xml:"max_y,attr" yaml:"max_y"`
	Width  float64 `json:"width" xml:"width,attr" yaml:"width"`
	Height float64 `json:"height" xml:"height,attr" yaml:"height"`
	Area   float64 `json:"area" xml:"area,attr" yaml:"area"`
	Empty  bool    `json:"empty,omitempty" xml:"empty,attr,omitempty" yaml:"empty,omitempty"`
}

func dimensionsOf(r polyclip.Rectangle, ok bool) Dimensions {
	if !ok {
		return Dimensions{Empty: true}
	}
	d := Dimensions{MinX: r.Min.X, MinY: r.Min.Y, MaxX: r.Max.X, MaxY: r.Max.Y}
	d.Width = d.MaxX - d.MinX
	d.Height = d.MaxY - d.MinY
	d.Area = d.Width * d.Height
	return d
}

func (d Dimensions) String() string {
	if d.Empty {
		return "empty"
	}
	return fmt.Sprintf("%.3f x %.3f mm", d.Width, d.Height)
}

// Factor is one term of the complexity score.
type Factor struct {
	Name         string  `json:"name" xml:"name,attr" yaml:"name"`
	Raw          float64 `json:"raw" xml:"raw,attr" yaml:"raw"`
	Normalized   float64 `json:"normalized" xml:"normalized,attr" yaml:"normalized"`
	Weight       float64 `json:"weight" xml:"weight,attr" yaml:"weight"`
	Contribution float64 `json:"contribution" xml:"contribution,attr" yaml:"contribution"`
}

type Report struct {
	Name              string     `json:"name,omitempty" xml:"name,attr,omitempty" yaml:"name,omitempty"`
	FileFunction      string     `json:"file_function,omitempty" xml:"file_function,omitempty" yaml:"file_function,omitempty"`
	Dimensions        Dimensions `json:"dimensions" xml:"dimensions" yaml:"dimensions"`
	LayerCount        int        `json:"layer_count" xml:"layer_count" yaml:"layer_count"`
	ViaCount          int        `json:"via_count" xml:"via_count" yaml:"via_count"` // flashes
	SlotCount         int        `json:"slot_count" xml:"slot_count" yaml:"slot_count"`
	ApertureDiversity int        `json:"aperture_diversity" xml:"aperture_diversity" yaml:"aperture_diversity"`
	// MinTraceWidth is the smallest aperture drawing a track, 0 without tracks.
	MinTraceWidth float64 `json:"min_trace_width" xml:"min_trace_width" yaml:"min_trace_width"`
	// MinApertureSize is the smallest aperture used by any operation.
	MinApertureSize float64 `json:"min_aperture_size" xml:"min_aperture_size" yaml:"min_aperture_size"`
	// CopperCoverage estimates the painted fraction of the bounding box.
	CopperCoverage  float64  `json:"copper_coverage" xml:"copper_coverage" yaml:"copper_coverage"`
	Operations      int      `json:"operations" xml:"operations" yaml:"operations"`
	Factors         []Factor `json:"factors" xml:"factors>factor" yaml:"factors"`
	ComplexityScore float64  `json:"complexity_score" xml:"complexity_score" yaml:"complexity_score"`
}

// tally accumulates the raw figures of one or more layers.
type tally struct {
	bounds    polyclip.Contour
	layers    int
	copper    int
	flashes   int
	slots     int
	shapes    map[string]bool
	minTrace  float64
	minAp     float64
	ops       int
	painted   float64
	reference float64 // summed bounding box areas, for coverage
}

func newTally() *tally {
	return &tally{shapes: make(map[string]bool), minTrace: math.Inf(1), minAp: math.Inf(1)}
}

func isCopper(doc *gerberdatamodel.Document) bool {
	v, _ := doc.Attribute(gbt.AttrScopeFile, ".FileFunction")
	return len(v) > 0 && v[0] == "Copper"
}

func (t *tally) add(doc *gerberdatamodel.Document) {
	t.layers++
	if isCopper(doc) {
		t.copper++
	}
	for _, ap := range doc.Apertures {
		t.shapes[ap.ShapeKey()] = true
	}
	var local polyclip.Contour
	painted := 0.0
	for i := range doc.Operations {
		op := &doc.Operations[i]
		t.ops++
		p := polyclip.Point{X: op.X, Y: op.Y}
		local.Add(p)
		ap := doc.ApertureFor(op)
		if ap == nil || op.InRegion {
			continue
		}
		size := ap.MinSize()
		sign := 1.0
		if op.Polarity == gbt.PolTypeClear {
			sign = -1
		}
		switch op.Kind {
		case gbt.OpcodeD03_FLASH:
			t.flashes++
			if ap.Type == gbt.AptypeObround && ap.XSize != ap.YSize {
				t.slots++
			}
			painted += sign * ap.Area
		case gbt.OpcodeD01_DRAW:
			if size > 0 {
				t.minTrace = math.Min(t.minTrace, size)
			}
			painted += sign * size * trackLength(op)
		}
		if size > 0 {
			t.minAp = math.Min(t.minAp, size)
		}
	}
	for _, r := range placedRegions(doc.Operations) {
		if r.Polarity == gbt.PolTypeClear {
			painted -= r.Area()
		} else {
			painted += r.Area()
		}
	}
	if len(local) > 0 {
		t.bounds = append(t.bounds, local...)
		d := dimensionsOf(local.BoundingBox(), true)
		t.reference += d.Area
		t.painted += math.Max(painted, 0)
	}
}

// trackLength is the length of a linear or circular draw.
func trackLength(op *gerberdatamodel.ResolvedOperation) float64 {
	if !op.Interpolation.IsArc() {
		return math.Hypot(op.X-op.StartX, op.Y-op.StartY)
	}
	cx, cy := op.StartX+op.I, op.StartY+op.J
	r := math.Hypot(op.I, op.J)
	if r == 0 {
		return math.Hypot(op.X-op.StartX, op.Y-op.StartY)
	}
	a0 := math.Atan2(op.StartY-cy, op.StartX-cx)
	a1 := math.Atan2(op.Y-cy, op.X-cx)
	sweep := a1 - a0
	if op.Interpolation == gbt.IPModeCwC {
		sweep = -sweep
	}
	for sweep <= 0 {
		sweep += 2 * math.Pi
	}
	if op.Quadrant == gbt.QuadModeSingle && sweep > math.Pi/2 {
		sweep = 2*math.Pi - sweep
	}
	return r * sweep
}

func normalize(f, ref float64) float64 {
	if f <= 0 {
		return 0
	}
	return f / (f + ref)
}

func (t *tally) report(w Weights) *Report {
	if err := w.Validate(); err != nil {
		glog.Warningf("fabcost: %v, using default weights", err)
		w = DefaultWeights()
	}
	var bb polyclip.Rectangle
	if len(t.bounds) > 0 {
		bb = t.bounds.BoundingBox()
	}
	r := &Report{
		Dimensions:        dimensionsOf(bb, len(t.bounds) > 0),
		LayerCount:        t.layers,
		ViaCount:          t.flashes,
		SlotCount:         t.slots,
		ApertureDiversity: len(t.shapes),
		Operations:        t.ops,
	}
	if t.copper > 0 {
		r.LayerCount = t.copper
	}
	if !math.IsInf(t.minTrace, 1) {
		r.MinTraceWidth = t.minTrace
	}
	if !math.IsInf(t.minAp, 1) {
		r.MinApertureSize = t.minAp
	}
	if t.reference > 0 {
		r.CopperCoverage = math.Min(t.painted/t.reference, 1)
	}
	r.Factors = []Factor{
		{Name: "dimension", Raw: r.Dimensions.Area, Normalized: normalize(r.Dimensions.Area, w.Reference.Area), Weight: w.Dimension},
		{Name: "apertures", Raw: float64(r.ApertureDiversity), Normalized: normalize(float64(r.ApertureDiversity), w.Reference.Apertures), Weight: w.Apertures},
		{Name: "operations", Raw: float64(r.Operations), Normalized: normalize(float64(r.Operations), w.Reference.Operations), Weight: w.Operations},
	}
	sum := w.Dimension + w.Apertures + w.Operations
	for i := range r.Factors {
		f := &r.Factors[i]
		f.Contribution = MaxScore * f.Weight * f.Normalized / sum
		r.ComplexityScore += f.Contribution
	}
	return r
}

// Analyze reports the cost factors of one layer.
func Analyze(doc *gerberdatamodel.Document, w Weights) *Report {
	t := newTally()
	t.add(doc)
	r := t.report(w)
	r.FileFunction = doc.FileFunction()
	return r
}

// Layer is a named document of a board.
type Layer struct {
	Name     string
	Document *gerberdatamodel.Document
}

type Board struct {
	Combined *Report   `json:"combined" xml:"combined" yaml:"combined"`
	Layers   []*Report `json:"layers" xml:"layers>layer" yaml:"layers"`
}

// AnalyzeLayers combines several layers of one board. The bounding box spans
// all layers and the layer count is the number of copper layers, or of all
// layers when none carries a copper file function.
func AnalyzeLayers(layers []Layer, w Weights) *Board {
	b := &Board{}
	all := newTally()
	for _, l := range layers {
		r := Analyze(l.Document, w)
		r.Name = l.Name
		b.Layers = append(b.Layers, r)
		all.add(l.Document)
	}
	b.Combined = all.report(w)
	b.Combined.Name = "board"
	return b
}

// placedRegions rebuilds one region per copy of a G36/G37 statement in the
// flattened operations, so replicated regions count once per placement.
func placedRegions(ops []gerberdatamodel.ResolvedOperation) []*regions.Region {
	type key struct{ region, placement int }
	idx := make(map[key]int)
	var out []*regions.Region
	for i := range ops {
		op := &ops[i]
		if op.Region < 0 {
			continue
		}
		k := key{op.Region, op.Placement}
		n, ok := idx[k]
		if !ok {
			n = len(out)
			idx[k] = n
			out = append(out, regions.NewRegion(n, op.Scope, op.Line, op.Polarity))
		}
		switch op.Kind {
		case gbt.OpcodeD02_MOVE:
			out[n].MoveTo(op.End())
		case gbt.OpcodeD01_DRAW:
			out[n].LineTo(op.Start(), op.End())
		}
	}
	for _, r := range out {
		_ = r.Close(0)
	}
	return out
}
