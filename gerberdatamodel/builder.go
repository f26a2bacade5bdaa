package gerberdatamodel

import (
	"strconv"

	"github.com/akavel/polyclip-go"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/gerbererrors"
	"github.com/wyre-innovations/gerberdump/gerbparser"
	"github.com/wyre-innovations/gerberdump/regions"
	"github.com/wyre-innovations/gerberdump/srblocks"
	"github.com/wyre-innovations/gerberdump/xy"
)

// Builder accumulates a Document while the state machine walks the file.
// It performs no validation beyond what is needed to keep the structure
// consistent: duplicate numbers keep the first definition and unbalanced
// closes are refused.
type Builder struct {
	doc    *Document
	open   []int // open scope ids, open[0] is the root
	region int   // index of the open region in doc.Regions, -1 when none

	apertureDict []AttributeValue
	objectDict   []AttributeValue
	objectSet    int // snapshot of objectDict in doc.ObjectAttributeSets, -1 none, -2 stale
}

func NewBuilder() *Builder {
	return &Builder{
		doc:       newDocument(),
		open:      []int{RootScope},
		region:    -1,
		objectSet: -1,
	}
}

// Document returns the document under construction.
func (b *Builder) Document() *Document {
	return b.doc
}

func (b *Builder) AddCommand(c gerbparser.Command) {
	b.doc.Commands = append(b.doc.Commands, c)
}

// DeclareFormat records a format declaration and reports whether it was the first.
func (b *Builder) DeclareFormat(fs *xy.FormatSpec, line int) bool {
	b.doc.FormatDeclarations = append(b.doc.FormatDeclarations, Declaration{Line: line, Value: fs.Source})
	if b.doc.Format != nil {
		return false
	}
	b.doc.Format = fs
	return true
}

// DeclareUnits records a unit declaration and reports whether it was the first.
func (b *Builder) DeclareUnits(u gbt.Units, line int) bool {
	b.doc.UnitDeclarations = append(b.doc.UnitDeclarations, Declaration{Line: line, Value: u.String()})
	if b.doc.Units != gbt.UnitsUnset {
		return false
	}
	b.doc.Units = u
	return true
}

// NoteCoordinate remembers the first line carrying coordinate data.
func (b *Builder) NoteCoordinate(line int) {
	if b.doc.FirstCoordinateLine == 0 {
		b.doc.FirstCoordinateLine = line
	}
}

// AddMacro stores a macro. A second macro with the same name is kept in
// Macros but lookups keep resolving to the first one.
func (b *Builder) AddMacro(am *gerbparser.ApertureMacro) bool {
	b.doc.Macros = append(b.doc.Macros, am)
	if _, ok := b.doc.macroIndex[am.Name]; ok {
		return false
	}
	b.doc.macroIndex[am.Name] = len(b.doc.Macros) - 1
	return true
}

// CurrentScope returns the innermost open scope.
func (b *Builder) CurrentScope() int {
	return b.open[len(b.open)-1]
}

// ApertureScope returns the innermost open scope owning an aperture
// namespace: the innermost open block, or the file scope. Step and repeat
// bodies share the namespace of their enclosing scope.
func (b *Builder) ApertureScope() int {
	for i := len(b.open) - 1; i > 0; i-- {
		if id := b.open[i]; b.scope(id).Kind == ScopeBlock {
			return id
		}
	}
	return RootScope
}

func (b *Builder) scope(id int) *Scope {
	return b.doc.Scopes[id]
}

func (b *Builder) addAperture(scope int, ap *Aperture) error {
	s := b.scope(scope)
	if _, ok := s.apertures[ap.Number]; ok {
		return &gerbererrors.Error{
			Class:   gerbererrors.SemanticError,
			Kind:    gerbererrors.DuplicateAperture,
			Line:    ap.Line,
			Number:  ap.Number,
			Message: "D" + strconv.Itoa(ap.Number) + " is already defined in this scope",
		}
	}
	ap.Scope = scope
	b.doc.Apertures = append(b.doc.Apertures, ap)
	s.apertures[ap.Number] = len(b.doc.Apertures) - 1
	return nil
}

// DefineAperture resolves def in the current aperture namespace. scale converts file units to mm.
func (b *Builder) DefineAperture(def *gerbparser.ApertureDefinition, scale float64) (*Aperture, error) {
	var macro *gerbparser.ApertureMacro
	if !def.IsStandard() {
		macro = b.doc.Macro(def.Template)
	}
	ap := NewAperture(def, macro, scale)
	if len(b.apertureDict) > 0 {
		ap.Attributes = append([]AttributeValue(nil), b.apertureDict...)
	}
	if err := b.addAperture(b.ApertureScope(), ap); err != nil {
		return nil, err
	}
	return ap, nil
}

// LookupAperture resolves number from the current scope outwards.
func (b *Builder) LookupAperture(number int) *Aperture {
	return b.doc.ApertureAt(b.CurrentScope(), number)
}

func (b *Builder) push(s *Scope) int {
	s.ID = len(b.doc.Scopes)
	s.Parent = b.CurrentScope()
	if s.Kind == ScopeBlock {
		s.apertures = make(map[int]int)
	}
	b.doc.Scopes = append(b.doc.Scopes, s)
	parent := b.scope(s.Parent)
	parent.Items = append(parent.Items, Item{Op: -1, Child: s.ID})
	b.open = append(b.open, s.ID)
	return s.ID
}

// OpenBlock starts the body of block aperture number.
func (b *Builder) OpenBlock(number, line int) int {
	id := b.push(&Scope{Kind: ScopeBlock, Number: number, OpenLine: line})
	b.doc.Blocks = append(b.doc.Blocks, id)
	return id
}

// OpenBlockScope returns the scope of the open block with the given number, or -1.
func (b *Builder) OpenBlockScope(number int) int {
	for i := len(b.open) - 1; i > 0; i-- {
		s := b.scope(b.open[i])
		if s.Kind == ScopeBlock && s.Number == number {
			return s.ID
		}
	}
	return -1
}

// MarkCyclic excludes a block body from flattening.
func (b *Builder) MarkCyclic(scope int) {
	b.scope(scope).Cyclic = true
}

// CloseBlock closes the innermost block and defines its aperture in the enclosing scope.
func (b *Builder) CloseBlock(line int) (*Aperture, error) {
	id := b.CurrentScope()
	s := b.scope(id)
	if s.Kind != ScopeBlock {
		return nil, gerbererrors.Semantic(gerbererrors.UnbalancedBlock, line, 0, "%AB*% without an open block")
	}
	b.open = b.open[:len(b.open)-1]
	s.CloseLine = line
	ext, _ := b.scopeExtent(id)
	ap := NewBlockAperture(s.Number, id, s.OpenLine, ext)
	if len(b.apertureDict) > 0 {
		ap.Attributes = append([]AttributeValue(nil), b.apertureDict...)
	}
	if err := b.addAperture(b.ApertureScope(), ap); err != nil {
		return nil, err
	}
	return ap, nil
}

// OpenStepRepeat starts a step and repeat body.
func (b *Builder) OpenStepRepeat(sr *srblocks.SRBlock) int {
	id := b.push(&Scope{Kind: ScopeStepRepeat, SR: sr, OpenLine: sr.OpenLine})
	sr.Scope = id
	b.doc.StepRepeats = append(b.doc.StepRepeats, sr)
	return id
}

// InStepRepeat reports whether the innermost scope is a step and repeat body.
func (b *Builder) InStepRepeat() bool {
	return b.scope(b.CurrentScope()).Kind == ScopeStepRepeat
}

func (b *Builder) CloseStepRepeat(line int) error {
	s := b.scope(b.CurrentScope())
	if s.Kind != ScopeStepRepeat {
		return gerbererrors.Semantic(gerbererrors.UnbalancedStepRepeat, line, 0, "%SR*% without an open step and repeat")
	}
	b.open = b.open[:len(b.open)-1]
	s.CloseLine = line
	s.SR.CloseLine = line
	return nil
}

func (b *Builder) InRegion() bool {
	return b.region >= 0
}

// StartRegion opens a region with the given polarity and returns its id.
func (b *Builder) StartRegion(line int, pol gbt.PolType) int {
	id := len(b.doc.Regions)
	b.doc.Regions = append(b.doc.Regions, regions.NewRegion(id, b.CurrentScope(), line, pol))
	b.region = id
	return id
}

func (b *Builder) EndRegion(line int) error {
	if b.region < 0 {
		return gerbererrors.Semantic(gerbererrors.UnbalancedRegion, line, 0, "G37 without G36")
	}
	err := b.doc.Regions[b.region].Close(line)
	b.region = -1
	return err
}

func setValue(dict []AttributeValue, name string, values []string) []AttributeValue {
	for i := range dict {
		if dict[i].Name == name {
			dict[i].Values = values
			return dict
		}
	}
	return append(dict, AttributeValue{Name: name, Values: values})
}

func deleteValue(dict []AttributeValue, name string) ([]AttributeValue, bool) {
	for i := range dict {
		if dict[i].Name == name {
			return append(dict[:i:i], dict[i+1:]...), true
		}
	}
	return dict, false
}

// SetAttribute records an attribute, the latest value winning per scope and name.
func (b *Builder) SetAttribute(a *gerbparser.Attribute) {
	key := attrKey{a.Scope, a.Name}
	rec := AttributeRecord{Scope: a.Scope, Name: a.Name, Values: a.Values, Line: a.Line}
	if i, ok := b.doc.attrIndex[key]; ok {
		b.doc.Attributes[i] = rec
	} else {
		b.doc.Attributes = append(b.doc.Attributes, rec)
		b.doc.attrIndex[key] = len(b.doc.Attributes) - 1
	}
	switch a.Scope {
	case gbt.AttrScopeAperture:
		b.apertureDict = setValue(b.apertureDict, a.Name, a.Values)
	case gbt.AttrScopeObject:
		b.objectDict = setValue(b.objectDict, a.Name, a.Values)
		b.objectSet = -2
	}
}

// DeleteAttribute removes name from the aperture and object dictionaries,
// or clears both when name is empty. File attributes are never deleted.
func (b *Builder) DeleteAttribute(name string) {
	if name == "" {
		b.apertureDict = nil
		b.objectDict = nil
		b.objectSet = -1
		return
	}
	b.apertureDict, _ = deleteValue(b.apertureDict, name)
	var removed bool
	if b.objectDict, removed = deleteValue(b.objectDict, name); removed {
		b.objectSet = -2
	}
}

func (b *Builder) objectAttributes() int {
	if len(b.objectDict) == 0 {
		return -1
	}
	if b.objectSet == -2 {
		b.doc.ObjectAttributeSets = append(b.doc.ObjectAttributeSets, append([]AttributeValue(nil), b.objectDict...))
		b.objectSet = len(b.doc.ObjectAttributeSets) - 1
	}
	return b.objectSet
}

// AppendOperation captures a resolved operation in the current scope.
// Inside a region the operation also traces the region contour.
func (b *Builder) AppendOperation(op ResolvedOperation) int {
	op.Scope = b.CurrentScope()
	op.Attributes = b.objectAttributes()
	op.Region = -1
	if b.region >= 0 {
		op.InRegion = true
		op.Region = b.region
		r := b.doc.Regions[b.region]
		switch op.Kind {
		case gbt.OpcodeD02_MOVE:
			r.MoveTo(op.End())
		case gbt.OpcodeD01_DRAW:
			r.LineTo(op.Start(), op.End())
		}
	}
	b.doc.Captured = append(b.doc.Captured, op)
	idx := len(b.doc.Captured) - 1
	s := b.scope(op.Scope)
	s.Items = append(s.Items, Item{Op: idx, Child: -1})
	return idx
}

func (b *Builder) RecordApertureUse(number, line int, defined bool) {
	b.doc.ApertureUses = append(b.doc.ApertureUses, ApertureUse{Number: number, Line: line, Defined: defined})
}

func (b *Builder) EndOfFile(line int) {
	if b.doc.EndOfFileLine == 0 {
		b.doc.EndOfFileLine = line
	}
}

// Finish expands blocks and step-repeats into Document.Operations and
// returns the document. Scopes left open stay open.
func (b *Builder) Finish() *Document {
	b.doc.Operations = flatten(b.doc)
	return b.doc
}

// scopeExtent is the envelope of the operations of a scope, including
// nested step and repeat bodies and the extent of flashed apertures.
func (b *Builder) scopeExtent(id int) (polyclip.Rectangle, bool) {
	var c polyclip.Contour
	var walk func(id int)
	walk = func(id int) {
		for _, it := range b.scope(id).Items {
			if it.Child >= 0 {
				if b.scope(it.Child).Kind == ScopeStepRepeat {
					walk(it.Child)
				}
				continue
			}
			op := &b.doc.Captured[it.Op]
			c.Add(polyclip.Point{X: op.X, Y: op.Y})
			if !op.IsDraw() {
				continue
			}
			if ap := b.doc.ApertureAt(op.Scope, op.Aperture); ap != nil {
				c.Add(polyclip.Point{X: op.X + ap.Extent.Min.X, Y: op.Y + ap.Extent.Min.Y})
				c.Add(polyclip.Point{X: op.X + ap.Extent.Max.X, Y: op.Y + ap.Extent.Max.Y})
			}
		}
	}
	walk(id)
	if len(c) == 0 {
		return polyclip.Rectangle{}, false
	}
	return c.BoundingBox(), true
}
