// Package gerberdatamodel is the order preserving record of a parsed Gerber file.
//
// Block apertures and step-repeat bodies are scopes in an arena indexed by
// integer id; scope 0 is the file itself. Parent and child scopes refer to
// each other by id only, so the structure stays a tree even for damaged input.
package gerberdatamodel

import (
	"strings"

	"github.com/akavel/polyclip-go"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/gerbparser"
	"github.com/wyre-innovations/gerberdump/regions"
	"github.com/wyre-innovations/gerberdump/srblocks"
	"github.com/wyre-innovations/gerberdump/xy"
)

const RootScope = 0

type ScopeKind int

const (
	ScopeRoot ScopeKind = iota
	ScopeBlock
	ScopeStepRepeat
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeRoot:
		return "file"
	case ScopeBlock:
		return "block"
	case ScopeStepRepeat:
		return "step-repeat"
	}
	return "unknown"
}

func (k ScopeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Item is either a captured operation or a nested scope.
type Item struct {
	Op    int `json:"op"`    // index into Document.Captured, -1 for a child scope
	Child int `json:"child"` // scope id, -1 for an operation
}

type Scope struct {
	ID     int       `json:"id"`
	Kind   ScopeKind `json:"kind"`
	Parent int       `json:"parent"`
	// Number is the aperture number of a block scope.
	Number    int               `json:"number,omitempty"`
	SR        *srblocks.SRBlock `json:"step_repeat,omitempty"`
	Items     []Item            `json:"items"`
	OpenLine  int               `json:"open_line"`
	CloseLine int               `json:"close_line"`
	// Cyclic marks a block which referenced its own or an ancestor's number.
	// Its body is kept but never expanded.
	Cyclic bool `json:"cyclic,omitempty"`

	apertures map[int]int // block and file scopes only: number -> index into Document.Apertures
}

// IsOpen reports whether the closing command was never seen.
func (s *Scope) IsOpen() bool {
	return s.Kind != ScopeRoot && s.CloseLine == 0
}

// Operations returns the number of operations captured directly in the scope.
func (s *Scope) Operations() int {
	n := 0
	for _, it := range s.Items {
		if it.Child < 0 {
			n++
		}
	}
	return n
}

// ResolvedOperation is a graphics operation with absolute coordinates in mm.
type ResolvedOperation struct {
	Kind          gbt.ActType  `json:"kind"`
	X             float64      `json:"x"`
	Y             float64      `json:"y"`
	StartX        float64      `json:"start_x"`
	StartY        float64      `json:"start_y"`
	I             float64      `json:"i,omitempty"`
	J             float64      `json:"j,omitempty"`
	Interpolation gbt.IPmode   `json:"interpolation"`
	Quadrant      gbt.QuadMode `json:"quadrant"`
	Aperture      int          `json:"aperture"` // 0 when none is needed
	Polarity      gbt.PolType  `json:"polarity"`
	Mirror        gbt.Mirror   `json:"mirror"`
	Rotation      float64      `json:"rotation"`
	Scale         float64      `json:"scale"`
	InRegion      bool         `json:"in_region,omitempty"`
	Region        int          `json:"region"` // -1 outside regions
	Line          int          `json:"line"`
	Offset        int          `json:"offset"`
	Scope         int          `json:"scope"`
	// Placement numbers the expanded copy of a block or step-repeat body, 0 at top level.
	Placement  int  `json:"placement"`
	Attributes int  `json:"attributes"` // index into Document.ObjectAttributeSets, -1 when none
	Deprecated bool `json:"deprecated,omitempty"`
}

func (op *ResolvedOperation) End() xy.Point   { return xy.Point{X: op.X, Y: op.Y} }
func (op *ResolvedOperation) Start() xy.Point { return xy.Point{X: op.StartX, Y: op.StartY} }

// IsDraw reports whether the operation paints with its aperture.
func (op *ResolvedOperation) IsDraw() bool {
	return !op.InRegion && (op.Kind == gbt.OpcodeD01_DRAW || op.Kind == gbt.OpcodeD03_FLASH)
}

type AttributeValue struct {
	Name   string   `json:"name" yaml:"name"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// AttributeRecord is the latest value of an attribute per scope and name.
type AttributeRecord struct {
	Scope  gbt.AttrScope `json:"scope"`
	Name   string        `json:"name"`
	Values []string      `json:"values,omitempty"`
	Line   int           `json:"line"`
}

type attrKey struct {
	scope gbt.AttrScope
	name  string
}

// ApertureUse is one aperture selection.
type ApertureUse struct {
	Number  int  `json:"number"`
	Line    int  `json:"line"`
	Defined bool `json:"defined"`
}

// Declaration is a format or unit declaration.
type Declaration struct {
	Line  int    `json:"line"`
	Value string `json:"value"`
}

type Document struct {
	Commands []gerbparser.Command `json:"-"`

	Format             *xy.FormatSpec `json:"format"`
	Units              gbt.Units      `json:"units"`
	FormatDeclarations []Declaration  `json:"format_declarations"`
	UnitDeclarations   []Declaration  `json:"unit_declarations"`
	// FirstCoordinateLine is the line of the first coordinate data, 0 if none.
	FirstCoordinateLine int `json:"first_coordinate_line"`

	Apertures           []*Aperture                 `json:"apertures"`
	Macros              []*gerbparser.ApertureMacro `json:"macros"`
	Attributes          []AttributeRecord           `json:"attributes"`
	ObjectAttributeSets [][]AttributeValue          `json:"object_attribute_sets,omitempty"`
	Scopes              []*Scope                    `json:"scopes"`
	Blocks              []int                       `json:"blocks"`
	StepRepeats         []*srblocks.SRBlock         `json:"step_repeats"`
	Regions             []*regions.Region           `json:"regions"`
	ApertureUses        []ApertureUse               `json:"aperture_uses"`
	// Captured holds every resolved operation in source order, each belonging to one scope.
	Captured []ResolvedOperation `json:"-"`
	// Operations is the flattened sequence with blocks and step-repeats expanded.
	Operations    []ResolvedOperation `json:"operations"`
	EndOfFileLine int                 `json:"end_of_file_line"`

	attrIndex  map[attrKey]int
	macroIndex map[string]int
}

func newDocument() *Document {
	d := &Document{
		attrIndex:  make(map[attrKey]int),
		macroIndex: make(map[string]int),
	}
	d.Scopes = append(d.Scopes, &Scope{ID: RootScope, Kind: ScopeRoot, Parent: -1, apertures: make(map[int]int)})
	return d
}

// Macro returns the macro with the given name, or nil.
func (d *Document) Macro(name string) *gerbparser.ApertureMacro {
	if i, ok := d.macroIndex[name]; ok {
		return d.Macros[i]
	}
	return nil
}

// ApertureAt resolves an aperture number from scope outwards.
func (d *Document) ApertureAt(scope, number int) *Aperture {
	for s := scope; s >= 0 && s < len(d.Scopes); s = d.Scopes[s].Parent {
		if i, ok := d.Scopes[s].apertures[number]; ok {
			return d.Apertures[i]
		}
	}
	return nil
}

// Aperture resolves a number in the file namespace.
func (d *Document) Aperture(number int) *Aperture {
	return d.ApertureAt(RootScope, number)
}

// ApertureFor returns the aperture an operation was drawn with, or nil.
func (d *Document) ApertureFor(op *ResolvedOperation) *Aperture {
	if op.Aperture == 0 {
		return nil
	}
	return d.ApertureAt(op.Scope, op.Aperture)
}

// Attribute returns the latest value of an attribute.
func (d *Document) Attribute(scope gbt.AttrScope, name string) ([]string, bool) {
	if i, ok := d.attrIndex[attrKey{scope, name}]; ok {
		return d.Attributes[i].Values, true
	}
	return nil, false
}

// FileFunction returns the .FileFunction file attribute joined with commas.
func (d *Document) FileFunction() string {
	v, _ := d.Attribute(gbt.AttrScopeFile, ".FileFunction")
	return strings.Join(v, ",")
}

// Layer returns the side or layer part of the file function, e.g. "Top" for
// "Copper,L1,Top" or "Bot" for "Soldermask,Bot".
func (d *Document) Layer() string {
	v, _ := d.Attribute(gbt.AttrScopeFile, ".FileFunction")
	for i := len(v) - 1; i > 0; i-- {
		switch v[i] {
		case "Top", "Bot", "Inr":
			return v[i]
		}
		if strings.HasPrefix(v[i], "L") && len(v[i]) > 1 && v[i][1] >= '0' && v[i][1] <= '9' {
			return v[i]
		}
	}
	return ""
}

// Deprecated returns the commands tagged as deprecated, in order.
func (d *Document) Deprecated() []gerbparser.Command {
	var out []gerbparser.Command
	for _, c := range d.Commands {
		if c.Location().Deprecated {
			out = append(out, c)
		}
	}
	return out
}

// BlockScope returns the body of block aperture number as seen from the file scope.
func (d *Document) BlockScope(number int) *Scope {
	ap := d.Aperture(number)
	if ap == nil || ap.Block < 0 {
		return nil
	}
	return d.Scopes[ap.Block]
}

// Bounds returns the bounding box of the flattened operation coordinates.
func (d *Document) Bounds() (polyclip.Rectangle, bool) {
	var r polyclip.Rectangle
	if len(d.Operations) == 0 {
		return r, false
	}
	var c polyclip.Contour
	for i := range d.Operations {
		op := &d.Operations[i]
		c.Add(polyclip.Point{X: op.X, Y: op.Y})
	}
	return c.BoundingBox(), true
}
