/*
################################## State machine ######################################
*/
package gerberstates

import (
	"fmt"
	"strconv"

	"github.com/golang/glog"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/gerberdatamodel"
	gerr "github.com/wyre-innovations/gerberdump/gerbererrors"
	"github.com/wyre-innovations/gerberdump/gerbparser"
	"github.com/wyre-innovations/gerberdump/srblocks"
	"github.com/wyre-innovations/gerberdump/xy"
)

// GraphicsState is the interpreter state between two commands.
// Coordinates are kept in millimeters.
type GraphicsState struct {
	Format        *xy.FormatSpec
	Units         gbt.Units
	Aperture      int  // active aperture number, 0 if none was selected
	ApertureValid bool // false after selecting an undefined number
	Interpolation gbt.IPmode
	Quadrant      gbt.QuadMode
	Region        bool
	Polarity      gbt.PolType
	Mirror        gbt.Mirror
	Rotation      float64
	Scale         float64
	Current       xy.Point
	Incremental   bool
	LastKind      gbt.ActType // repeated by coordinate data without a D code
	EndOfFile     bool
}

// creates and initializes the state with default values
func NewState() *GraphicsState {
	return &GraphicsState{
		Interpolation: gbt.IPModeLinear,
		Polarity:      gbt.PolTypeDark,
		Scale:         1,
		LastKind:      gbt.OpcodeD01_DRAW,
	}
}

func (st *GraphicsState) String() string {
	ap := "<none>"
	if st.Aperture != 0 {
		ap = "D" + strconv.Itoa(st.Aperture)
		if !st.ApertureValid {
			ap += "(undefined)"
		}
	}
	return fmt.Sprintf("%s %s %s aperture=%s region=%v at %s",
		st.Interpolation, st.Quadrant, st.Polarity, ap, st.Region, st.Current)
}

// Machine applies commands to a GraphicsState and accumulates the document.
type Machine struct {
	State   *GraphicsState
	builder *gerberdatamodel.Builder
	halted  bool
}

func NewMachine() *Machine {
	return &Machine{State: NewState(), builder: gerberdatamodel.NewBuilder()}
}

// Format is the coordinate format the command parser must decode with, nil before FS.
func (m *Machine) Format() *xy.FormatSpec {
	return m.State.Format
}

// Halted reports whether a fatal error stopped the interpretation.
func (m *Machine) Halted() bool {
	return m.halted
}

// Document returns the document built so far.
func (m *Machine) Document() *gerberdatamodel.Document {
	return m.builder.Document()
}

// Finish flattens the document. The machine must not be used afterwards.
func (m *Machine) Finish() *gerberdatamodel.Document {
	return m.builder.Finish()
}

func (m *Machine) fatal(e *gerr.Error) error {
	e.Fatal = true
	m.halted = true
	return e
}

// Apply interprets one command. It returns the resolved operation when the
// command produced one, and a *gerbererrors.Error when something was wrong.
// Both may be set: a recoverable finding does not always suppress the
// operation. After a fatal error Apply does nothing.
func (m *Machine) Apply(cmd gerbparser.Command) (*gerberdatamodel.ResolvedOperation, error) {
	if m.halted {
		return nil, nil
	}
	op, err := m.apply(cmd)
	if err != nil && !m.halted {
		glog.Warningf("%v", err)
	}
	if cmd.Location().Deprecated {
		glog.V(1).Infof("line %d: deprecated %s", cmd.Location().Line, cmd.Location().Code)
	}
	return op, err
}

func (m *Machine) apply(cmd gerbparser.Command) (*gerberdatamodel.ResolvedOperation, error) {
	st := m.State
	b := m.builder
	loc := cmd.Location()
	b.AddCommand(cmd)

	switch c := cmd.(type) {
	case *gerbparser.FormatSpec:
		if b.DeclareFormat(c.Format, loc.Line) {
			st.Format = c.Format
			st.Incremental = c.Format.Incremental
			return nil, nil
		}
		if st.Format.Equal(c.Format) {
			return nil, gerr.Semantic(gerr.DuplicateDeclaration, loc.Line, loc.Offset, "format specification repeated")
		}
		return nil, m.fatal(gerr.Semantic(gerr.ConflictingDeclaration, loc.Line, loc.Offset,
			"format "+c.Format.Source+" conflicts with "+st.Format.Source))

	case *gerbparser.UnitSpec:
		if b.DeclareUnits(c.Units, loc.Line) {
			st.Units = c.Units
			return nil, nil
		}
		if st.Units == c.Units {
			return nil, gerr.Semantic(gerr.DuplicateDeclaration, loc.Line, loc.Offset, "units repeated")
		}
		return nil, m.fatal(gerr.Semantic(gerr.ConflictingDeclaration, loc.Line, loc.Offset,
			"units "+c.Units.String()+" conflict with "+st.Units.String()))

	case *gerbparser.ApertureMacro:
		if !b.AddMacro(c) {
			return nil, gerr.Semantic(gerr.DuplicateDeclaration, loc.Line, loc.Offset, "macro "+c.Name+" is defined twice")
		}

	case *gerbparser.ApertureDefinition:
		ap, err := b.DefineAperture(c, st.Units.Scale())
		if err != nil {
			return nil, err
		}
		glog.V(2).Infof("line %d: defined %s", loc.Line, ap)

	case *gerbparser.ApertureSelect:
		return nil, m.selectAperture(c.Number, loc)

	case *gerbparser.GraphicsOperation:
		return m.operate(c, loc)

	case *gerbparser.InterpolationModeSet:
		st.Interpolation = c.Mode

	case *gerbparser.QuadrantModeSet:
		st.Quadrant = c.Mode

	case *gerbparser.RegionStart:
		var err error
		if b.InRegion() {
			_ = b.EndRegion(loc.Line)
			err = gerr.Semantic(gerr.UnbalancedRegion, loc.Line, loc.Offset, "G36 inside an open region")
		}
		b.StartRegion(loc.Line, st.Polarity)
		st.Region = true
		return nil, err

	case *gerbparser.RegionEnd:
		st.Region = false
		return nil, b.EndRegion(loc.Line)

	case *gerbparser.BlockApertureOpen:
		outer := b.OpenBlockScope(c.Number)
		id := b.OpenBlock(c.Number, loc.Line)
		if outer >= 0 {
			b.MarkCyclic(outer)
			b.MarkCyclic(id)
			return nil, cyclic(c.Number, loc)
		}

	case *gerbparser.BlockApertureClose:
		ap, err := b.CloseBlock(loc.Line)
		if err != nil {
			return nil, err
		}
		glog.V(2).Infof("line %d: closed block D%d", loc.Line, ap.Number)

	case *gerbparser.StepRepeatOpen:
		if b.InStepRepeat() {
			_ = b.CloseStepRepeat(loc.Line)
		}
		scale := st.Units.Scale()
		sr, err := srblocks.New(c.NX, c.NY, c.DX*scale, c.DY*scale, loc.Line)
		b.OpenStepRepeat(sr)
		if err != nil {
			e := gerr.Semantic(gerr.InvalidRepeatCount, loc.Line, loc.Offset,
				"repeat "+strconv.Itoa(c.NX)+"x"+strconv.Itoa(c.NY)+" treated as 1x1")
			e.Cause = err
			return nil, e
		}

	case *gerbparser.StepRepeatClose:
		return nil, b.CloseStepRepeat(loc.Line)

	case *gerbparser.Attribute:
		b.SetAttribute(c)

	case *gerbparser.AttributeDelete:
		b.DeleteAttribute(c.Name)

	case *gerbparser.PolaritySet:
		st.Polarity = c.Polarity

	case *gerbparser.MirrorSet:
		st.Mirror = c.Mirror

	case *gerbparser.RotationSet:
		st.Rotation = c.Degrees

	case *gerbparser.ScaleSet:
		st.Scale = c.Factor

	case *gerbparser.NotationSet:
		st.Incremental = c.Incremental

	case *gerbparser.EndOfFile:
		b.EndOfFile(loc.Line)
		st.EndOfFile = true

	case *gerbparser.Comment, *gerbparser.LegacyDirective:
		// no effect on the image
	}
	return nil, nil
}

func cyclic(number int, loc gerbparser.Loc) *gerr.Error {
	return &gerr.Error{
		Class:   gerr.SemanticError,
		Kind:    gerr.CyclicBlockReference,
		Line:    loc.Line,
		Offset:  loc.Offset,
		Number:  number,
		Message: "block D" + strconv.Itoa(number) + " refers to itself",
	}
}

func (m *Machine) selectAperture(number int, loc gerbparser.Loc) error {
	st := m.State
	b := m.builder
	st.Aperture = number
	if scope := b.OpenBlockScope(number); scope >= 0 {
		// the body keeps the operation, flattening skips the block
		b.MarkCyclic(scope)
		b.RecordApertureUse(number, loc.Line, false)
		st.ApertureValid = true
		return cyclic(number, loc)
	}
	ap := b.LookupAperture(number)
	b.RecordApertureUse(number, loc.Line, ap != nil)
	st.ApertureValid = ap != nil
	if ap == nil {
		return &gerr.Error{
			Class:   gerr.SemanticError,
			Kind:    gerr.UndefinedAperture,
			Line:    loc.Line,
			Offset:  loc.Offset,
			Code:    loc.Code,
			Number:  number,
			Message: "D" + strconv.Itoa(number) + " is not defined",
		}
	}
	return nil
}

// axis resolves one coordinate. An omitted axis keeps the current value.
func (m *Machine) axis(v *float64, current float64) float64 {
	if v == nil {
		return current
	}
	mm := *v * m.State.Units.Scale()
	if m.State.Incremental {
		return current + mm
	}
	return mm
}

func (m *Machine) operate(c *gerbparser.GraphicsOperation, loc gerbparser.Loc) (*gerberdatamodel.ResolvedOperation, error) {
	st := m.State
	b := m.builder
	if c.HasCoordinates() {
		if st.Format == nil {
			return nil, m.fatal(gerr.Semantic(gerr.FormatNotEstablished, loc.Line, loc.Offset,
				"coordinate data before the format specification"))
		}
		b.NoteCoordinate(loc.Line)
	}
	kind := c.Kind
	if c.Implicit {
		kind = st.LastKind
	}
	st.LastKind = kind

	if kind == gbt.OpcodeD03_FLASH && st.Region {
		return nil, gerr.Semantic(gerr.InvalidInRegion, loc.Line, loc.Offset, "flash inside a region")
	}
	paints := kind == gbt.OpcodeD03_FLASH || (kind == gbt.OpcodeD01_DRAW && !st.Region)
	if paints && (st.Aperture == 0 || !st.ApertureValid) {
		msg := "no aperture selected"
		if st.Aperture != 0 {
			msg = "D" + strconv.Itoa(st.Aperture) + " is not defined"
		}
		return nil, gerr.Semantic(gerr.NoActiveAperture, loc.Line, loc.Offset, kind.DCode()+" omitted: "+msg)
	}

	var finding error
	if kind == gbt.OpcodeD01_DRAW && st.Interpolation.IsArc() && st.Quadrant == gbt.QuadModeUnset {
		st.Quadrant = gbt.QuadModeMulti
		finding = gerr.Semantic(gerr.QuadrantModeNotSet, loc.Line, loc.Offset, "arc before G74/G75, multi quadrant assumed")
	}

	scale := st.Units.Scale()
	op := gerberdatamodel.ResolvedOperation{
		Kind:          kind,
		X:             m.axis(c.X, st.Current.X),
		Y:             m.axis(c.Y, st.Current.Y),
		StartX:        st.Current.X,
		StartY:        st.Current.Y,
		Interpolation: st.Interpolation,
		Quadrant:      st.Quadrant,
		Polarity:      st.Polarity,
		Mirror:        st.Mirror,
		Rotation:      st.Rotation,
		Scale:         st.Scale,
		Line:          loc.Line,
		Offset:        loc.Offset,
		Deprecated:    loc.Deprecated,
	}
	if c.I != nil {
		op.I = *c.I * scale
	}
	if c.J != nil {
		op.J = *c.J * scale
	}
	if paints {
		op.Aperture = st.Aperture
	}
	idx := b.AppendOperation(op)
	st.Current = op.End()
	res := b.Document().Captured[idx]
	if glog.V(2) {
		glog.Infof("line %d: %s -> %s", loc.Line, kind, st)
	}
	return &res, finding
}
