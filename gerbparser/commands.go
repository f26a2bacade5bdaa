/*
The file contains the typed commands produced by the command parser
*/
package gerbparser

import (
	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/xy"
)

// Command is one parsed Gerber command. The set of implementations is closed:
// every consumer switches over the concrete types below.
type Command interface {
	Location() Loc
	isCommand()
}

// Loc is the origin of a command in the source file.
type Loc struct {
	Line       int    `json:"line"`
	Offset     int    `json:"offset"`
	Code       string `json:"code"` // normalized function code or extended keyword
	Raw        string `json:"raw"`
	Deprecated bool   `json:"deprecated,omitempty"`
}

func (l Loc) Location() Loc { return l }

type FormatSpec struct {
	Loc
	Format *xy.FormatSpec
}

type UnitSpec struct {
	Loc
	Units gbt.Units
}

// ApertureDefinition is %ADDnn<template>,<params>*%. Params are in file units.
type ApertureDefinition struct {
	Loc
	Number   int
	Template string
	Params   []float64
}

// IsStandard reports whether the template is one of C, R, O, P.
func (ad *ApertureDefinition) IsStandard() bool {
	return gbt.ApTypeByTemplate(ad.Template) != gbt.AptypeMacro
}

type ApertureSelect struct {
	Loc
	Number int
}

// GraphicsOperation is D01/D02/D03 with optional coordinates in file units.
// A nil axis was omitted in the source.
type GraphicsOperation struct {
	Loc
	Kind gbt.ActType // zero when Implicit
	X, Y *float64
	I, J *float64
	// Implicit marks coordinate data without a D code, which repeats the previous operation.
	Implicit bool
}

// HasCoordinates reports whether any axis or offset was given.
func (op *GraphicsOperation) HasCoordinates() bool {
	return op.X != nil || op.Y != nil || op.I != nil || op.J != nil
}

type InterpolationModeSet struct {
	Loc
	Mode gbt.IPmode
}

type QuadrantModeSet struct {
	Loc
	Mode gbt.QuadMode
}

type RegionStart struct{ Loc }

type RegionEnd struct{ Loc }

type BlockApertureOpen struct {
	Loc
	Number int
}

type BlockApertureClose struct{ Loc }

type StepRepeatOpen struct {
	Loc
	NX, NY int
	DX, DY float64 // file units
}

type StepRepeatClose struct{ Loc }

type Attribute struct {
	Loc
	Scope  gbt.AttrScope
	Name   string
	Values []string
}

// AttributeDelete removes Name from the attribute dictionary, or every
// aperture and object attribute when Name is empty.
type AttributeDelete struct {
	Loc
	Name string
}

type PolaritySet struct {
	Loc
	Polarity gbt.PolType
}

type MirrorSet struct {
	Loc
	Mirror gbt.Mirror
}

type RotationSet struct {
	Loc
	Degrees float64
}

type ScaleSet struct {
	Loc
	Factor float64
}

type Comment struct {
	Loc
	Text string
}

type EndOfFile struct{ Loc }

// NotationSet is the historic G90/G91 absolute or incremental notation.
type NotationSet struct {
	Loc
	Incremental bool
}

// LegacyDirective is a historic command without effect on the image:
// G55, M01, IP, AS, IR, MI, OF, SF, IN, LN.
type LegacyDirective struct {
	Loc
	Params string
}

func (*FormatSpec) isCommand()           {}
func (*UnitSpec) isCommand()             {}
func (*ApertureDefinition) isCommand()   {}
func (*ApertureMacro) isCommand()        {}
func (*ApertureSelect) isCommand()       {}
func (*GraphicsOperation) isCommand()    {}
func (*InterpolationModeSet) isCommand() {}
func (*QuadrantModeSet) isCommand()      {}
func (*RegionStart) isCommand()          {}
func (*RegionEnd) isCommand()            {}
func (*BlockApertureOpen) isCommand()    {}
func (*BlockApertureClose) isCommand()   {}
func (*StepRepeatOpen) isCommand()       {}
func (*StepRepeatClose) isCommand()      {}
func (*Attribute) isCommand()            {}
func (*AttributeDelete) isCommand()      {}
func (*PolaritySet) isCommand()          {}
func (*MirrorSet) isCommand()            {}
func (*RotationSet) isCommand()          {}
func (*ScaleSet) isCommand()             {}
func (*Comment) isCommand()              {}
func (*EndOfFile) isCommand()            {}
func (*NotationSet) isCommand()          {}
func (*LegacyDirective) isCommand()      {}
