package gerberdatamodel

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/gerbererrors"
	"github.com/wyre-innovations/gerberdump/gerbparser"
	"github.com/wyre-innovations/gerberdump/srblocks"
)

func circle(number, line int, d float64) *gerbparser.ApertureDefinition {
	return &gerbparser.ApertureDefinition{
		Loc:      gerbparser.Loc{Line: line, Code: "AD"},
		Number:   number,
		Template: "C",
		Params:   []float64{d},
	}
}

func flash(x, y float64, aperture int) ResolvedOperation {
	return ResolvedOperation{
		Kind:     gbt.OpcodeD03_FLASH,
		X:        x,
		Y:        y,
		Aperture: aperture,
		Polarity: gbt.PolTypeDark,
		Scale:    1,
	}
}

func TestScopeKindString(t *testing.T) {
	assert.Equal(t, "file", ScopeRoot.String())
	assert.Equal(t, "block", ScopeBlock.String())
	assert.Equal(t, "step-repeat", ScopeStepRepeat.String())
	txt, err := ScopeBlock.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "block", string(txt))
}

func TestNewApertureShapes(t *testing.T) {
	tests := []struct {
		def     gerbparser.ApertureDefinition
		typ     gbt.GerberApType
		area    float64
		minSize float64
	}{
		{gerbparser.ApertureDefinition{Number: 10, Template: "C", Params: []float64{2}}, gbt.AptypeCircle, math.Pi, 2},
		{gerbparser.ApertureDefinition{Number: 11, Template: "R", Params: []float64{2, 3}}, gbt.AptypeRectangle, 6, 2},
		{gerbparser.ApertureDefinition{Number: 12, Template: "O", Params: []float64{4, 2}}, gbt.AptypeObround, 8 - (4 - math.Pi), 2},
		{gerbparser.ApertureDefinition{Number: 13, Template: "P", Params: []float64{2, 4}}, gbt.AptypePoly, 2, 2},
		{gerbparser.ApertureDefinition{Number: 14, Template: "C", Params: []float64{2, 1}}, gbt.AptypeCircle, math.Pi - math.Pi/4, 2},
	}
	for _, tt := range tests {
		def := tt.def
		ap := NewAperture(&def, nil, 1)
		assert.Equal(t, tt.typ, ap.Type, "D%d", def.Number)
		assert.InDelta(t, tt.area, ap.Area, 1e-9, "D%d", def.Number)
		assert.InDelta(t, tt.minSize, ap.MinSize(), 1e-9, "D%d", def.Number)
		assert.Equal(t, -1, ap.Block)
	}
}

func TestNewApertureScalesToMillimeters(t *testing.T) {
	ap := NewAperture(&gerbparser.ApertureDefinition{Number: 10, Template: "R", Params: []float64{0.1, 0.2}}, nil, 25.4)
	assert.InDelta(t, 2.54, ap.XSize, 1e-12)
	assert.InDelta(t, 5.08, ap.YSize, 1e-12)
	assert.InDelta(t, -1.27, ap.Extent.Min.X, 1e-12)
	assert.Equal(t, []float64{0.1, 0.2}, ap.Params, "parameters stay as written")
	assert.Contains(t, ap.String(), "D10 "+gbt.AptypeRectangle.String())
}

func TestNewApertureUndefinedMacro(t *testing.T) {
	ap := NewAperture(&gerbparser.ApertureDefinition{Number: 10, Template: "THERMAL", Params: []float64{1}}, nil, 1)
	assert.Equal(t, gbt.AptypeMacro, ap.Type)
	assert.Contains(t, ap.ShapeError, "THERMAL")
	assert.Equal(t, 0.0, ap.Area)
}

func TestShapeKey(t *testing.T) {
	a := NewAperture(&gerbparser.ApertureDefinition{Number: 10, Template: "C", Params: []float64{0.5}}, nil, 1)
	b := NewAperture(&gerbparser.ApertureDefinition{Number: 11, Template: "C", Params: []float64{0.5}}, nil, 1)
	c := NewAperture(&gerbparser.ApertureDefinition{Number: 12, Template: "O", Params: []float64{0.5, 0.5}}, nil, 1)
	assert.Equal(t, a.ShapeKey(), b.ShapeKey())
	assert.NotEqual(t, a.ShapeKey(), c.ShapeKey())
}

func TestDuplicateApertureInScope(t *testing.T) {
	b := NewBuilder()
	_, err := b.DefineAperture(circle(10, 1, 0.5), 1)
	require.NoError(t, err)
	_, err = b.DefineAperture(circle(10, 2, 0.8), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gerbererrors.ErrDuplicateAperture))
	assert.Equal(t, 10, err.(*gerbererrors.Error).Number)
	assert.InDelta(t, 0.5, b.LookupAperture(10).Diameter, 1e-12, "first definition wins")

	// a block body has its own namespace
	b.OpenBlock(20, 3)
	ap, err := b.DefineAperture(circle(10, 4, 1.0), 1)
	require.NoError(t, err)
	assert.Equal(t, b.CurrentScope(), ap.Scope)
	assert.InDelta(t, 1.0, b.LookupAperture(10).Diameter, 1e-12)
	_, err = b.CloseBlock(5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, b.LookupAperture(10).Diameter, 1e-12)
	assert.Equal(t, gbt.AptypeBlock, b.LookupAperture(20).Type)
}

func TestApertureLookupThroughScopes(t *testing.T) {
	b := NewBuilder()
	_, err := b.DefineAperture(circle(10, 1, 0.5), 1)
	require.NoError(t, err)
	sr, err := srblocks.New(1, 1, 0, 0, 2)
	require.NoError(t, err)
	b.OpenStepRepeat(sr)
	b.OpenBlock(20, 3)
	assert.NotNil(t, b.LookupAperture(10))
	assert.Nil(t, b.LookupAperture(11))
	assert.Equal(t, 2, b.ApertureScope())
	assert.False(t, b.InStepRepeat())
}

func TestApertureDefinedInStepRepeatOutlivesIt(t *testing.T) {
	b := NewBuilder()
	sr, err := srblocks.New(2, 1, 5, 0, 2)
	require.NoError(t, err)
	b.OpenStepRepeat(sr)
	assert.Equal(t, RootScope, b.ApertureScope())
	ap, err := b.DefineAperture(circle(11, 3, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, RootScope, ap.Scope)
	require.NoError(t, b.CloseStepRepeat(6))
	require.NotNil(t, b.LookupAperture(11))
	assert.InDelta(t, 1.0, b.LookupAperture(11).Diameter, 1e-12)

	// a second definition of the same number after the body is a duplicate
	_, err = b.DefineAperture(circle(11, 7, 2), 1)
	assert.True(t, errors.Is(err, gerbererrors.ErrDuplicateAperture))
}

func TestBlockExtent(t *testing.T) {
	b := NewBuilder()
	_, err := b.DefineAperture(circle(10, 1, 1), 1)
	require.NoError(t, err)
	b.OpenBlock(20, 2)
	b.AppendOperation(flash(0, 0, 10))
	b.AppendOperation(flash(4, 2, 10))
	ap, err := b.CloseBlock(5)
	require.NoError(t, err)
	assert.Equal(t, -0.5, ap.Extent.Min.X)
	assert.Equal(t, -0.5, ap.Extent.Min.Y)
	assert.Equal(t, 4.5, ap.Extent.Max.X)
	assert.Equal(t, 2.5, ap.Extent.Max.Y)
	assert.Equal(t, 3.0, ap.MinSize())
}

func TestApertureTransform(t *testing.T) {
	m := ApertureTransform(gbt.NoMirror, 1, 0)
	assert.True(t, m.ApproxEqual(mgl64.Ident2()))

	m = ApertureTransform(gbt.MirrorX, 2, 0)
	assert.True(t, m.ApproxEqual(mgl64.Mat2{-2, 0, 0, 2}))

	// mirrored first, then rotated
	v := ApertureTransform(gbt.MirrorY, 1, 90).Mul2x1(mgl64.Vec2{0, 1})
	assert.InDelta(t, 1, v[0], 1e-12)
	assert.InDelta(t, 0, v[1], 1e-12)
}

func TestFlattenRotatedBlockFlash(t *testing.T) {
	b := NewBuilder()
	_, err := b.DefineAperture(circle(10, 1, 0.5), 1)
	require.NoError(t, err)
	b.OpenBlock(20, 2)
	b.AppendOperation(flash(1, 0, 10))
	_, err = b.CloseBlock(4)
	require.NoError(t, err)
	op := flash(10, 10, 20)
	op.Rotation = 90
	op.Scale = 2
	b.AppendOperation(op)

	doc := b.Finish()
	require.Len(t, doc.Operations, 1)
	got := doc.Operations[0]
	assert.InDelta(t, 10, got.X, 1e-9)
	assert.InDelta(t, 12, got.Y, 1e-9)
	assert.Equal(t, 10, got.Aperture)
	assert.Equal(t, 1, got.Placement)
}

func TestFlattenMirroredArc(t *testing.T) {
	b := NewBuilder()
	_, err := b.DefineAperture(circle(10, 1, 0.5), 1)
	require.NoError(t, err)
	b.OpenBlock(20, 2)
	b.AppendOperation(ResolvedOperation{
		Kind: gbt.OpcodeD01_DRAW, StartX: 1, StartY: 0, X: 0, Y: 1, I: -1, J: 0,
		Interpolation: gbt.IPModeCCwC, Quadrant: gbt.QuadModeMulti, Aperture: 10, Polarity: gbt.PolTypeDark, Scale: 1,
	})
	_, err = b.CloseBlock(4)
	require.NoError(t, err)
	op := flash(0, 0, 20)
	op.Mirror = gbt.MirrorX
	b.AppendOperation(op)

	doc := b.Finish()
	require.Len(t, doc.Operations, 1)
	arc := doc.Operations[0]
	assert.Equal(t, gbt.IPModeCwC, arc.Interpolation, "mirroring reverses the arc direction")
	assert.Equal(t, -1.0, arc.StartX)
	assert.Equal(t, 1.0, arc.I)
}

func TestFlattenNestedStepRepeatOrder(t *testing.T) {
	b := NewBuilder()
	_, err := b.DefineAperture(circle(10, 1, 0.5), 1)
	require.NoError(t, err)
	sr, err := srblocks.New(2, 2, 10, 20, 2)
	require.NoError(t, err)
	b.OpenStepRepeat(sr)
	b.AppendOperation(flash(1, 1, 10))
	require.NoError(t, b.CloseStepRepeat(4))

	doc := b.Finish()
	type pt struct{ X, Y float64 }
	var got []pt
	for _, op := range doc.Operations {
		got = append(got, pt{op.X, op.Y})
	}
	want := []pt{{1, 1}, {11, 1}, {1, 21}, {11, 21}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("placement order mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenSkipsOpenBlock(t *testing.T) {
	b := NewBuilder()
	_, err := b.DefineAperture(circle(10, 1, 0.5), 1)
	require.NoError(t, err)
	b.OpenBlock(20, 2)
	b.AppendOperation(flash(0, 0, 10))
	doc := b.Finish()
	assert.Empty(t, doc.Operations)
	assert.True(t, doc.Scopes[doc.Blocks[0]].IsOpen())
}

func TestRegionOperations(t *testing.T) {
	b := NewBuilder()
	id := b.StartRegion(1, gbt.PolTypeDark)
	assert.True(t, b.InRegion())
	for _, p := range [][2]float64{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}} {
		kind := gbt.OpcodeD01_DRAW
		if p == [2]float64{0, 0} && len(b.Document().Captured) == 0 {
			kind = gbt.OpcodeD02_MOVE
		}
		var start ResolvedOperation
		if n := len(b.Document().Captured); n > 0 {
			start = b.Document().Captured[n-1]
		}
		b.AppendOperation(ResolvedOperation{Kind: kind, StartX: start.X, StartY: start.Y, X: p[0], Y: p[1]})
	}
	require.NoError(t, b.EndRegion(7))
	require.Error(t, b.EndRegion(8))

	doc := b.Finish()
	r := doc.Regions[id]
	assert.Equal(t, 7, r.G37StringNumber)
	assert.InDelta(t, 4, r.Area(), 1e-12)
	for _, op := range doc.Operations {
		assert.True(t, op.InRegion)
		assert.Equal(t, id, op.Region)
		assert.False(t, op.IsDraw())
	}
}

func TestAttributesLatestWins(t *testing.T) {
	b := NewBuilder()
	b.SetAttribute(&gerbparser.Attribute{Loc: gerbparser.Loc{Line: 1}, Scope: gbt.AttrScopeFile, Name: ".FileFunction", Values: []string{"Copper", "L2", "Inr"}})
	b.SetAttribute(&gerbparser.Attribute{Loc: gerbparser.Loc{Line: 2}, Scope: gbt.AttrScopeFile, Name: ".FileFunction", Values: []string{"Copper", "L1", "Top"}})
	b.SetAttribute(&gerbparser.Attribute{Loc: gerbparser.Loc{Line: 3}, Scope: gbt.AttrScopeObject, Name: ".N", Values: []string{"VCC"}})
	b.DeleteAttribute("")
	b.DeleteAttribute(".FileFunction")

	doc := b.Document()
	assert.Equal(t, "Copper,L1,Top", doc.FileFunction())
	assert.Equal(t, "Top", doc.Layer())
	want := []AttributeRecord{
		{Scope: gbt.AttrScopeFile, Name: ".FileFunction", Values: []string{"Copper", "L1", "Top"}, Line: 2},
		{Scope: gbt.AttrScopeObject, Name: ".N", Values: []string{"VCC"}, Line: 3},
	}
	if diff := cmp.Diff(want, doc.Attributes, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}
	idx := b.AppendOperation(flash(0, 0, 0))
	assert.Equal(t, -1, doc.Captured[idx].Attributes, "TD without a name clears object attributes")
}

func TestLayer(t *testing.T) {
	tests := map[string]string{
		"Copper,L1,Top":    "Top",
		"Copper,L3,Inr":    "Inr",
		"Soldermask,Bot":   "Bot",
		"Copper,L2":        "L2",
		"Profile,NP":       "",
		"Legend,Top,Extra": "Top",
	}
	for ff, want := range tests {
		b := NewBuilder()
		b.SetAttribute(&gerbparser.Attribute{Scope: gbt.AttrScopeFile, Name: ".FileFunction", Values: strings.Split(ff, ",")})
		assert.Equal(t, want, b.Document().Layer(), ff)
	}
}

func TestDeclarations(t *testing.T) {
	b := NewBuilder()
	assert.True(t, b.DeclareUnits(gbt.UnitsInches, 1))
	assert.False(t, b.DeclareUnits(gbt.UnitsMillimeters, 2))
	b.NoteCoordinate(5)
	b.NoteCoordinate(6)
	b.EndOfFile(9)
	b.EndOfFile(10)

	doc := b.Document()
	assert.Equal(t, gbt.UnitsInches, doc.Units)
	assert.Len(t, doc.UnitDeclarations, 2)
	assert.Equal(t, 5, doc.FirstCoordinateLine)
	assert.Equal(t, 9, doc.EndOfFileLine)
}

func TestMacroFirstDefinitionWins(t *testing.T) {
	b := NewBuilder()
	first := &gerbparser.ApertureMacro{Loc: gerbparser.Loc{Line: 1}, Name: "M"}
	second := &gerbparser.ApertureMacro{Loc: gerbparser.Loc{Line: 2}, Name: "M"}
	assert.True(t, b.AddMacro(first))
	assert.False(t, b.AddMacro(second))
	assert.Same(t, first, b.Document().Macro("M"))
	assert.Len(t, b.Document().Macros, 2)
	assert.Nil(t, b.Document().Macro("N"))
}
