// Package validator checks a parsed document against the format rules.
// Every rule runs independently and all violations are reported.
package validator

import (
	"sort"
	"strconv"

	"github.com/golang/glog"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/gerberdatamodel"
	"github.com/wyre-innovations/gerberdump/gerbparser"
)

type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	}
	return "unknown"
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Kind string

const (
	UndefinedAperture      Kind = "UndefinedAperture"
	UndefinedMacro         Kind = "UndefinedMacro"
	MissingFormat          Kind = "MissingFormat"
	DuplicateFormat        Kind = "DuplicateFormat"
	FormatAfterCoordinates Kind = "FormatAfterCoordinates"
	MissingUnits           Kind = "MissingUnits"
	DuplicateUnits         Kind = "DuplicateUnits"
	CoordinateBeforeUnits  Kind = "CoordinateBeforeUnits"
	UnbalancedRegion       Kind = "UnbalancedRegion"
	UnbalancedBlock        Kind = "UnbalancedBlock"
	UnbalancedStepRepeat   Kind = "UnbalancedStepRepeat"
	EmptyBlock             Kind = "EmptyBlock"
	MissingEndOfFile       Kind = "MissingEndOfFile"
	CommandsAfterEndOfFile Kind = "CommandsAfterEndOfFile"
	DeprecatedCommand      Kind = "DeprecatedCommand"
	UnusedAperture         Kind = "UnusedAperture"
	MissingFileFunction    Kind = "MissingFileFunction"
)

// Finding is one rule violation. Line is 0 for file level findings.
type Finding struct {
	Severity Severity `json:"severity" xml:"severity,attr" yaml:"severity"`
	Kind     Kind     `json:"kind" xml:"kind,attr" yaml:"kind"`
	Line     int      `json:"line" xml:"line,attr" yaml:"line"`
	Message  string   `json:"message" xml:",chardata" yaml:"message"`
}

func (f Finding) String() string {
	s := f.Severity.String() + " " + string(f.Kind)
	if f.Line > 0 {
		s += " at line " + strconv.Itoa(f.Line)
	}
	return s + ": " + f.Message
}

type checker struct {
	doc *gerberdatamodel.Document
	out []Finding
}

func (c *checker) add(sev Severity, k Kind, line int, msg string) {
	c.out = append(c.out, Finding{Severity: sev, Kind: k, Line: line, Message: msg})
}

type rule func(*checker)

var rules = []rule{
	checkDeclarations,
	checkApertureUses,
	checkMacros,
	checkBalance,
	checkEmptyBlocks,
	checkEndOfFile,
	checkDeprecated,
	checkUnusedApertures,
	checkFileFunction,
}

// Validate returns the findings ordered by line, file level findings last.
// The document is not modified.
func Validate(doc *gerberdatamodel.Document) []Finding {
	c := &checker{doc: doc}
	for _, r := range rules {
		r(c)
	}
	sort.SliceStable(c.out, func(i, j int) bool {
		li, lj := c.out[i].Line, c.out[j].Line
		if li == 0 || lj == 0 {
			return lj == 0 && li != 0
		}
		return li < lj
	})
	glog.V(2).Infof("validation: %d findings", len(c.out))
	return c.out
}

// HasErrors reports whether any finding is an error.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func checkDeclarations(c *checker) {
	d := c.doc
	first := d.FirstCoordinateLine
	switch {
	case len(d.FormatDeclarations) == 0:
		c.add(SeverityError, MissingFormat, 0, "no %FS*% format specification")
	default:
		if first > 0 && d.FormatDeclarations[0].Line > first {
			c.add(SeverityError, FormatAfterCoordinates, d.FormatDeclarations[0].Line,
				"format declared after coordinates at line "+strconv.Itoa(first))
		}
		for _, decl := range d.FormatDeclarations[1:] {
			c.add(SeverityError, DuplicateFormat, decl.Line, "format "+decl.Value+" declared again")
		}
	}
	switch {
	case len(d.UnitDeclarations) == 0:
		c.add(SeverityError, MissingUnits, 0, "no %MO*% unit declaration")
	default:
		if first > 0 && d.UnitDeclarations[0].Line > first {
			c.add(SeverityError, CoordinateBeforeUnits, first,
				"coordinates before the unit declaration at line "+strconv.Itoa(d.UnitDeclarations[0].Line))
		}
		for _, decl := range d.UnitDeclarations[1:] {
			c.add(SeverityError, DuplicateUnits, decl.Line, "units "+decl.Value+" declared again")
		}
	}
}

func checkApertureUses(c *checker) {
	for _, u := range c.doc.ApertureUses {
		if u.Defined {
			continue
		}
		msg := "D" + strconv.Itoa(u.Number) + " is not defined"
		if ap := c.doc.Aperture(u.Number); ap != nil && ap.Line > u.Line {
			msg = "D" + strconv.Itoa(u.Number) + " is used before its definition at line " + strconv.Itoa(ap.Line)
		}
		c.add(SeverityError, UndefinedAperture, u.Line, msg)
	}
}

func checkMacros(c *checker) {
	for _, ap := range c.doc.Apertures {
		if ap.Type != gbt.AptypeMacro {
			continue
		}
		m := c.doc.Macro(ap.Template)
		switch {
		case m == nil:
			c.add(SeverityError, UndefinedMacro, ap.Line, "D"+strconv.Itoa(ap.Number)+" uses undefined macro "+ap.Template)
		case m.Line > ap.Line:
			c.add(SeverityError, UndefinedMacro, ap.Line,
				"D"+strconv.Itoa(ap.Number)+" uses macro "+ap.Template+" defined later at line "+strconv.Itoa(m.Line))
		}
	}
}

func checkBalance(c *checker) {
	region := 0
	var blocks []int
	sr := 0
	for _, cmd := range c.doc.Commands {
		line := cmd.Location().Line
		switch cmd.(type) {
		case *gerbparser.RegionStart:
			if region > 0 {
				c.add(SeverityError, UnbalancedRegion, region, "G36 is not closed by G37")
			}
			region = line
		case *gerbparser.RegionEnd:
			if region == 0 {
				c.add(SeverityError, UnbalancedRegion, line, "G37 without G36")
			}
			region = 0
		case *gerbparser.BlockApertureOpen:
			blocks = append(blocks, line)
		case *gerbparser.BlockApertureClose:
			if len(blocks) == 0 {
				c.add(SeverityError, UnbalancedBlock, line, "%AB*% without an open block")
				continue
			}
			blocks = blocks[:len(blocks)-1]
		case *gerbparser.StepRepeatOpen:
			sr = line
		case *gerbparser.StepRepeatClose:
			if sr == 0 {
				c.add(SeverityError, UnbalancedStepRepeat, line, "%SR*% without an open step and repeat")
			}
			sr = 0
		}
	}
	if region > 0 {
		c.add(SeverityError, UnbalancedRegion, region, "G36 is not closed by G37")
	}
	for _, l := range blocks {
		c.add(SeverityError, UnbalancedBlock, l, "block is not closed")
	}
	if sr > 0 {
		c.add(SeverityError, UnbalancedStepRepeat, sr, "step and repeat is not closed")
	}
}

func checkEmptyBlocks(c *checker) {
	for _, id := range c.doc.Blocks {
		s := c.doc.Scopes[id]
		if len(s.Items) == 0 {
			c.add(SeverityError, EmptyBlock, s.OpenLine, "block D"+strconv.Itoa(s.Number)+" is empty")
		}
	}
}

func checkEndOfFile(c *checker) {
	eof := c.doc.EndOfFileLine
	if eof == 0 {
		c.add(SeverityError, MissingEndOfFile, 0, "no M02 end of file")
		return
	}
	seen := false
	for _, cmd := range c.doc.Commands {
		if _, ok := cmd.(*gerbparser.EndOfFile); ok && !seen {
			seen = true
			continue
		}
		if seen {
			c.add(SeverityWarning, CommandsAfterEndOfFile, cmd.Location().Line, "commands after M02 are ignored by readers")
			return
		}
	}
}

func checkDeprecated(c *checker) {
	seen := make(map[string]bool)
	for _, cmd := range c.doc.Commands {
		loc := cmd.Location()
		if !loc.Deprecated || seen[loc.Code] {
			continue
		}
		seen[loc.Code] = true
		msg := loc.Code + " is deprecated"
		switch v := cmd.(type) {
		case *gerbparser.GraphicsOperation:
			if v.Implicit {
				msg = "coordinate data without an operation code is deprecated"
			}
		case *gerbparser.FormatSpec:
			msg = "format " + v.Format.Source + " uses deprecated trailing zero omission or incremental notation"
		case *gerbparser.ApertureMacro:
			msg = "macro " + v.Name + " uses deprecated primitives"
		}
		c.add(SeverityWarning, DeprecatedCommand, loc.Line, msg)
	}
}

func checkUnusedApertures(c *checker) {
	used := make(map[int]bool)
	for _, u := range c.doc.ApertureUses {
		used[u.Number] = true
	}
	for _, ap := range c.doc.Apertures {
		if !used[ap.Number] {
			c.add(SeverityWarning, UnusedAperture, ap.Line, "D"+strconv.Itoa(ap.Number)+" is never selected")
		}
	}
}

func checkFileFunction(c *checker) {
	if c.doc.FileFunction() == "" {
		c.add(SeverityWarning, MissingFileFunction, 0, "no .FileFunction attribute")
	}
}
