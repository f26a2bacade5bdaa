// Package report turns analysis results into human or structured output.
// Filters and limits apply here only; the documents are never modified.
package report

import (
	"encoding/xml"
	"strings"

	"github.com/wyre-innovations/gerberdump/batch"
	"github.com/wyre-innovations/gerberdump/fabcost"
	"github.com/wyre-innovations/gerberdump/gerberdatamodel"
	"github.com/wyre-innovations/gerberdump/gerbparser"
	"github.com/wyre-innovations/gerberdump/statistics"
	"github.com/wyre-innovations/gerberdump/validator"
)

// Sections selects what is shown for each file.
type Sections struct {
	FileHeaders     bool
	Apertures       bool
	Commands        bool
	Graphics        bool
	Regions         bool
	Blocks          bool
	StepRepeat      bool
	Attributes      bool
	Macros          bool
	Format          bool
	GraphicsState   bool
	Transformations bool
	Validate        bool
	Stats           bool
	FabCost         bool
	X2              bool
}

func (s Sections) explicit() bool {
	return s.FileHeaders || s.Apertures || s.Commands || s.Graphics || s.Regions ||
		s.Blocks || s.StepRepeat || s.Attributes || s.Macros || s.Format ||
		s.GraphicsState || s.Transformations || s.Validate || s.Stats || s.FabCost
}

// Resolve applies the mode defaults: without any explicit section and
// without X2, the fabrication cost analysis is shown. X2 adds the file
// headers, apertures, attributes and format. defaultFab reports the first case.
func (s Sections) Resolve() (resolved Sections, defaultFab bool) {
	if !s.explicit() && !s.X2 {
		s.FabCost = true
		return s, true
	}
	if s.X2 {
		s.FileHeaders = true
		s.Apertures = true
		s.Attributes = true
		s.Format = true
	}
	return s, false
}

// Filter restricts the rendered items.
type Filter struct {
	Apertures      []int
	FileFunction   string
	Layer          string
	DeprecatedOnly bool
	Limit          int // per list, 0 for no limit
}

func (f Filter) aperture(n int) bool {
	if len(f.Apertures) == 0 {
		return true
	}
	for _, a := range f.Apertures {
		if a == n {
			return true
		}
	}
	return false
}

// Accepts reports whether a document passes the file function and layer filters.
func (f Filter) Accepts(doc *gerberdatamodel.Document) bool {
	if f.FileFunction != "" && !strings.Contains(strings.ToLower(doc.FileFunction()), strings.ToLower(f.FileFunction)) {
		return false
	}
	if f.Layer != "" && !strings.EqualFold(doc.Layer(), f.Layer) {
		return false
	}
	return true
}

type Header struct {
	FileFunction  string `json:"file_function,omitempty" xml:"file_function,omitempty" yaml:"file_function,omitempty"`
	Layer         string `json:"layer,omitempty" xml:"layer,omitempty" yaml:"layer,omitempty"`
	Commands      int    `json:"commands" xml:"commands" yaml:"commands"`
	EndOfFileLine int    `json:"end_of_file_line" xml:"end_of_file_line" yaml:"end_of_file_line"`
}

type FormatInfo struct {
	Format      string `json:"format" xml:"format" yaml:"format"`
	Description string `json:"description" xml:"description" yaml:"description"`
	Units       string `json:"units" xml:"units" yaml:"units"`
	FormatLines []int  `json:"format_lines" xml:"format_lines>line" yaml:"format_lines"`
	UnitLines   []int  `json:"unit_lines" xml:"unit_lines>line" yaml:"unit_lines"`
}

type ApertureRow struct {
	Number     int       `json:"number" xml:"number,attr" yaml:"number"`
	Type       string    `json:"type" xml:"type,attr" yaml:"type"`
	Template   string    `json:"template" xml:"template,attr" yaml:"template"`
	Params     []float64 `json:"params,omitempty" xml:"param,omitempty" yaml:"params,omitempty"`
	Size       string    `json:"size" xml:"size" yaml:"size"`
	Area       float64   `json:"area" xml:"area" yaml:"area"`
	MinSize    float64   `json:"min_size" xml:"min_size" yaml:"min_size"`
	Uses       int       `json:"uses" xml:"uses" yaml:"uses"`
	Line       int       `json:"line" xml:"line,attr" yaml:"line"`
	Scope      int       `json:"scope" xml:"scope,attr" yaml:"scope"`
	Attributes []string  `json:"attributes,omitempty" xml:"attribute,omitempty" yaml:"attributes,omitempty"`
	ShapeError string    `json:"shape_error,omitempty" xml:"shape_error,omitempty" yaml:"shape_error,omitempty"`
	Deprecated bool      `json:"deprecated,omitempty" xml:"deprecated,attr,omitempty" yaml:"deprecated,omitempty"`
}

type CommandRow struct {
	Line       int    `json:"line" xml:"line,attr" yaml:"line"`
	Offset     int    `json:"offset" xml:"offset,attr" yaml:"offset"`
	Code       string `json:"code" xml:"code,attr" yaml:"code"`
	Kind       string `json:"kind" xml:"kind,attr" yaml:"kind"`
	Raw        string `json:"raw" xml:",chardata" yaml:"raw"`
	Deprecated bool   `json:"deprecated,omitempty" xml:"deprecated,attr,omitempty" yaml:"deprecated,omitempty"`
}

type OperationRow struct {
	Line          int     `json:"line" xml:"line,attr" yaml:"line"`
	Offset        int     `json:"offset" xml:"offset,attr" yaml:"offset"`
	Kind          string  `json:"kind" xml:"kind,attr" yaml:"kind"`
	X             float64 `json:"x" xml:"x,attr" yaml:"x"`
	Y             float64 `json:"y" xml:"y,attr" yaml:"y"`
	StartX        float64 `json:"start_x" xml:"start_x,attr" yaml:"start_x"`
	StartY        float64 `json:"start_y" xml:"start_y,attr" yaml:"start_y"`
	I             float64 `json:"i,omitempty" xml:"i,attr,omitempty" yaml:"i,omitempty"`
	J             float64 `json:"j,omitempty" xml:"j,attr,omitempty" yaml:"j,omitempty"`
	Aperture      int     `json:"aperture,omitempty" xml:"aperture,attr,omitempty" yaml:"aperture,omitempty"`
	Interpolation string  `json:"interpolation" xml:"interpolation,attr" yaml:"interpolation"`
	Quadrant      string  `json:"quadrant" xml:"quadrant,attr" yaml:"quadrant"`
	Polarity      string  `json:"polarity" xml:"polarity,attr" yaml:"polarity"`
	Mirror        string  `json:"mirror,omitempty" xml:"mirror,attr,omitempty" yaml:"mirror,omitempty"`
	Rotation      float64 `json:"rotation,omitempty" xml:"rotation,attr,omitempty" yaml:"rotation,omitempty"`
	Scale         float64 `json:"scale,omitempty" xml:"scale,attr,omitempty" yaml:"scale,omitempty"`
	Region        int     `json:"region" xml:"region,attr" yaml:"region"`
	Placement     int     `json:"placement" xml:"placement,attr" yaml:"placement"`
	Deprecated    bool    `json:"deprecated,omitempty" xml:"deprecated,attr,omitempty" yaml:"deprecated,omitempty"`
}

type RegionRow struct {
	ID        int     `json:"id" xml:"id,attr" yaml:"id"`
	StartLine int     `json:"start_line" xml:"start_line,attr" yaml:"start_line"`
	EndLine   int     `json:"end_line" xml:"end_line,attr" yaml:"end_line"`
	Polarity  string  `json:"polarity" xml:"polarity,attr" yaml:"polarity"`
	Contours  int     `json:"contours" xml:"contours" yaml:"contours"`
	Vertices  int     `json:"vertices" xml:"vertices" yaml:"vertices"`
	Area      float64 `json:"area" xml:"area" yaml:"area"`
}

type BlockRow struct {
	Number     int  `json:"number" xml:"number,attr" yaml:"number"`
	OpenLine   int  `json:"open_line" xml:"open_line,attr" yaml:"open_line"`
	CloseLine  int  `json:"close_line" xml:"close_line,attr" yaml:"close_line"`
	Operations int  `json:"operations" xml:"operations" yaml:"operations"`
	Nested     int  `json:"nested" xml:"nested" yaml:"nested"`
	Cyclic     bool `json:"cyclic,omitempty" xml:"cyclic,attr,omitempty" yaml:"cyclic,omitempty"`
}

type StepRepeatRow struct {
	NX         int     `json:"nx" xml:"nx,attr" yaml:"nx"`
	NY         int     `json:"ny" xml:"ny,attr" yaml:"ny"`
	DX         float64 `json:"dx" xml:"dx,attr" yaml:"dx"`
	DY         float64 `json:"dy" xml:"dy,attr" yaml:"dy"`
	OpenLine   int     `json:"open_line" xml:"open_line,attr" yaml:"open_line"`
	CloseLine  int     `json:"close_line" xml:"close_line,attr" yaml:"close_line"`
	Operations int     `json:"operations" xml:"operations" yaml:"operations"`
	Invalid    bool    `json:"invalid,omitempty" xml:"invalid,attr,omitempty" yaml:"invalid,omitempty"`
}

type AttributeRow struct {
	Scope  string   `json:"scope" xml:"scope,attr" yaml:"scope"`
	Name   string   `json:"name" xml:"name,attr" yaml:"name"`
	Values []string `json:"values,omitempty" xml:"value,omitempty" yaml:"values,omitempty"`
	Line   int      `json:"line" xml:"line,attr" yaml:"line"`
}

type MacroRow struct {
	Name       string   `json:"name" xml:"name,attr" yaml:"name"`
	Line       int      `json:"line" xml:"line,attr" yaml:"line"`
	Primitives int      `json:"primitives" xml:"primitives,attr" yaml:"primitives"`
	Statements []string `json:"statements" xml:"statement" yaml:"statements"`
	Deprecated bool     `json:"deprecated,omitempty" xml:"deprecated,attr,omitempty" yaml:"deprecated,omitempty"`
}

type ErrorRow struct {
	Class   string `json:"class" xml:"class,attr" yaml:"class"`
	Kind    string `json:"kind" xml:"kind,attr" yaml:"kind"`
	Line    int    `json:"line" xml:"line,attr" yaml:"line"`
	Message string `json:"message" xml:",chardata" yaml:"message"`
	Fatal   bool   `json:"fatal,omitempty" xml:"fatal,attr,omitempty" yaml:"fatal,omitempty"`
}

// FileReport is the rendered view of one file. Empty sections are omitted.
type FileReport struct {
	XMLName         xml.Name            `json:"-" xml:"file" yaml:"-"`
	Path            string              `json:"path" xml:"path,attr" yaml:"path"`
	Error           string              `json:"error,omitempty" xml:"error,omitempty" yaml:"error,omitempty"`
	Header          *Header             `json:"header,omitempty" xml:"header,omitempty" yaml:"header,omitempty"`
	Format          *FormatInfo         `json:"format,omitempty" xml:"format,omitempty" yaml:"format,omitempty"`
	Apertures       []ApertureRow       `json:"apertures,omitempty" xml:"apertures>aperture,omitempty" yaml:"apertures,omitempty"`
	Commands        []CommandRow        `json:"commands,omitempty" xml:"commands>command,omitempty" yaml:"commands,omitempty"`
	Operations      []OperationRow      `json:"operations,omitempty" xml:"operations>operation,omitempty" yaml:"operations,omitempty"`
	GraphicsState   []CommandRow        `json:"graphics_state,omitempty" xml:"graphics_state>command,omitempty" yaml:"graphics_state,omitempty"`
	Transformations []CommandRow        `json:"transformations,omitempty" xml:"transformations>command,omitempty" yaml:"transformations,omitempty"`
	Regions         []RegionRow         `json:"regions,omitempty" xml:"regions>region,omitempty" yaml:"regions,omitempty"`
	Blocks          []BlockRow          `json:"blocks,omitempty" xml:"blocks>block,omitempty" yaml:"blocks,omitempty"`
	StepRepeats     []StepRepeatRow     `json:"step_repeats,omitempty" xml:"step_repeats>step_repeat,omitempty" yaml:"step_repeats,omitempty"`
	Attributes      []AttributeRow      `json:"attributes,omitempty" xml:"attributes>attribute,omitempty" yaml:"attributes,omitempty"`
	Macros          []MacroRow          `json:"macros,omitempty" xml:"macros>macro,omitempty" yaml:"macros,omitempty"`
	ParseErrors     []ErrorRow          `json:"parse_errors,omitempty" xml:"parse_errors>error,omitempty" yaml:"parse_errors,omitempty"`
	Findings        []validator.Finding `json:"findings,omitempty" xml:"findings>finding,omitempty" yaml:"findings,omitempty"`
	Statistics      *statistics.Report  `json:"statistics,omitempty" xml:"statistics,omitempty" yaml:"statistics,omitempty"`
	FabCost         *fabcost.Report     `json:"fab_cost,omitempty" xml:"fab_cost,omitempty" yaml:"fab_cost,omitempty"`
}

// limit returns at most n items of s, all of them when n is 0.
func limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func commandRow(c gerbparser.Command) CommandRow {
	loc := c.Location()
	return CommandRow{
		Line:       loc.Line,
		Offset:     loc.Offset,
		Code:       loc.Code,
		Kind:       statistics.KindName(c),
		Raw:        loc.Raw,
		Deprecated: loc.Deprecated,
	}
}

func isStateChange(c gerbparser.Command) bool {
	switch c.(type) {
	case *gerbparser.InterpolationModeSet, *gerbparser.QuadrantModeSet, *gerbparser.ApertureSelect,
		*gerbparser.RegionStart, *gerbparser.RegionEnd, *gerbparser.PolaritySet, *gerbparser.NotationSet,
		*gerbparser.FormatSpec, *gerbparser.UnitSpec:
		return true
	}
	return false
}

func isTransformation(c gerbparser.Command) bool {
	switch c.(type) {
	case *gerbparser.PolaritySet, *gerbparser.MirrorSet, *gerbparser.RotationSet, *gerbparser.ScaleSet:
		return true
	}
	return false
}

func apertureOf(c gerbparser.Command) (int, bool) {
	switch v := c.(type) {
	case *gerbparser.ApertureDefinition:
		return v.Number, true
	case *gerbparser.ApertureSelect:
		return v.Number, true
	case *gerbparser.BlockApertureOpen:
		return v.Number, true
	}
	return 0, false
}

func (f Filter) command(c gerbparser.Command) bool {
	if len(f.Apertures) > 0 {
		n, ok := apertureOf(c)
		return ok && f.aperture(n)
	}
	return true
}

func (f Filter) commands(doc *gerberdatamodel.Document, keep func(gerbparser.Command) bool) []CommandRow {
	src := doc.Commands
	if f.DeprecatedOnly {
		src = doc.Deprecated()
	}
	var out []CommandRow
	for _, c := range src {
		if keep != nil && !keep(c) {
			continue
		}
		if !f.command(c) {
			continue
		}
		out = append(out, commandRow(c))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func apertureRow(doc *gerberdatamodel.Document, ap *gerberdatamodel.Aperture) ApertureRow {
	row := ApertureRow{
		Number:     ap.Number,
		Type:       ap.Type.String(),
		Template:   ap.Template,
		Params:     ap.Params,
		Size:       ap.String(),
		Area:       ap.Area,
		MinSize:    ap.MinSize(),
		Line:       ap.Line,
		Scope:      ap.Scope,
		ShapeError: ap.ShapeError,
		Deprecated: ap.Deprecated,
	}
	for _, u := range doc.ApertureUses {
		if u.Number == ap.Number {
			row.Uses++
		}
	}
	for _, a := range ap.Attributes {
		row.Attributes = append(row.Attributes, a.Name+"="+strings.Join(a.Values, ","))
	}
	return row
}

func operationRow(op *gerberdatamodel.ResolvedOperation) OperationRow {
	row := OperationRow{
		Line:          op.Line,
		Offset:        op.Offset,
		Kind:          op.Kind.String(),
		X:             op.X,
		Y:             op.Y,
		StartX:        op.StartX,
		StartY:        op.StartY,
		I:             op.I,
		J:             op.J,
		Aperture:      op.Aperture,
		Interpolation: op.Interpolation.String(),
		Quadrant:      op.Quadrant.String(),
		Polarity:      op.Polarity.String(),
		Region:        op.Region,
		Placement:     op.Placement,
		Deprecated:    op.Deprecated,
	}
	if op.Mirror != 0 {
		row.Mirror = op.Mirror.String()
	}
	if op.Rotation != 0 {
		row.Rotation = op.Rotation
	}
	if op.Scale != 1 {
		row.Scale = op.Scale
	}
	return row
}

// Build renders one batch result into a FileReport. accepted is false when
// the file is excluded by the file function or layer filters.
func Build(r *batch.Result, s Sections, f Filter) (rep *FileReport, accepted bool) {
	rep = &FileReport{Path: r.Path}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	doc := r.Document
	if doc == nil {
		return rep, true
	}
	if !f.Accepts(doc) {
		return nil, false
	}
	if s.FileHeaders {
		rep.Header = &Header{
			FileFunction:  doc.FileFunction(),
			Layer:         doc.Layer(),
			Commands:      len(doc.Commands),
			EndOfFileLine: doc.EndOfFileLine,
		}
	}
	if s.Format {
		fi := &FormatInfo{Description: doc.Format.String(), Units: doc.Units.String()}
		if doc.Format != nil {
			fi.Format = doc.Format.Source
		}
		for _, d := range doc.FormatDeclarations {
			fi.FormatLines = append(fi.FormatLines, d.Line)
		}
		for _, d := range doc.UnitDeclarations {
			fi.UnitLines = append(fi.UnitLines, d.Line)
		}
		rep.Format = fi
	}
	if s.Apertures {
		for _, ap := range doc.Apertures {
			if !f.aperture(ap.Number) || (f.DeprecatedOnly && !ap.Deprecated) {
				continue
			}
			rep.Apertures = append(rep.Apertures, apertureRow(doc, ap))
		}
		rep.Apertures = limit(rep.Apertures, f.Limit)
	}
	if s.Commands {
		rep.Commands = f.commands(doc, nil)
	}
	if s.GraphicsState {
		rep.GraphicsState = f.commands(doc, isStateChange)
	}
	if s.Transformations {
		rep.Transformations = f.commands(doc, isTransformation)
	}
	if s.Graphics {
		for i := range doc.Operations {
			op := &doc.Operations[i]
			if len(f.Apertures) > 0 && !f.aperture(op.Aperture) {
				continue
			}
			if f.DeprecatedOnly && !op.Deprecated {
				continue
			}
			rep.Operations = append(rep.Operations, operationRow(op))
			if f.Limit > 0 && len(rep.Operations) == f.Limit {
				break
			}
		}
	}
	if s.Regions {
		for _, rg := range doc.Regions {
			rep.Regions = append(rep.Regions, RegionRow{
				ID:        rg.ID,
				StartLine: rg.G36StringNumber,
				EndLine:   rg.G37StringNumber,
				Polarity:  rg.Polarity.String(),
				Contours:  len(rg.Contours),
				Vertices:  rg.NumberOfXY(),
				Area:      rg.Area(),
			})
		}
		rep.Regions = limit(rep.Regions, f.Limit)
	}
	if s.Blocks {
		for _, id := range doc.Blocks {
			sc := doc.Scopes[id]
			if !f.aperture(sc.Number) {
				continue
			}
			rep.Blocks = append(rep.Blocks, BlockRow{
				Number:     sc.Number,
				OpenLine:   sc.OpenLine,
				CloseLine:  sc.CloseLine,
				Operations: sc.Operations(),
				Nested:     len(sc.Items) - sc.Operations(),
				Cyclic:     sc.Cyclic,
			})
		}
		rep.Blocks = limit(rep.Blocks, f.Limit)
	}
	if s.StepRepeat {
		for _, sr := range doc.StepRepeats {
			rep.StepRepeats = append(rep.StepRepeats, StepRepeatRow{
				NX:         sr.NumX,
				NY:         sr.NumY,
				DX:         sr.DX,
				DY:         sr.DY,
				OpenLine:   sr.OpenLine,
				CloseLine:  sr.CloseLine,
				Operations: doc.Scopes[sr.Scope].Operations(),
				Invalid:    sr.Invalid,
			})
		}
		rep.StepRepeats = limit(rep.StepRepeats, f.Limit)
	}
	if s.Attributes {
		for _, a := range doc.Attributes {
			rep.Attributes = append(rep.Attributes, AttributeRow{Scope: a.Scope.String(), Name: a.Name, Values: a.Values, Line: a.Line})
		}
		rep.Attributes = limit(rep.Attributes, f.Limit)
	}
	if s.Macros {
		for _, m := range doc.Macros {
			if f.DeprecatedOnly && !m.Deprecated {
				continue
			}
			row := MacroRow{Name: m.Name, Line: m.Line, Primitives: len(m.Primitives()), Deprecated: m.Deprecated}
			for i := range m.Statements {
				row.Statements = append(row.Statements, m.Statements[i].String())
			}
			rep.Macros = append(rep.Macros, row)
		}
		rep.Macros = limit(rep.Macros, f.Limit)
	}
	for _, e := range r.Parse {
		rep.ParseErrors = append(rep.ParseErrors, ErrorRow{Class: e.Class.String(), Kind: e.Kind.String(), Line: e.Line, Message: e.Error(), Fatal: e.Fatal})
	}
	rep.ParseErrors = limit(rep.ParseErrors, f.Limit)
	if r.Analysis != nil {
		if s.Validate {
			rep.Findings = limit(r.Analysis.Findings, f.Limit)
			if rep.Findings == nil {
				rep.Findings = []validator.Finding{}
			}
		}
		if s.Stats {
			rep.Statistics = r.Analysis.Statistics
		}
		if s.FabCost {
			rep.FabCost = r.Analysis.Cost
		}
	}
	return rep, true
}
