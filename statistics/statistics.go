// Package statistics tallies commands, apertures and operations of a document.
package statistics

import (
	"sort"

	"github.com/wyre-innovations/gerberdump/gerberdatamodel"
	"github.com/wyre-innovations/gerberdump/gerbparser"
)

type Count struct {
	Name  string `json:"name" xml:"name,attr" yaml:"name"`
	Count int    `json:"count" xml:"count,attr" yaml:"count"`
}

type Report struct {
	Commands        int      `json:"commands" xml:"commands" yaml:"commands"`
	CommandKinds    []Count  `json:"command_kinds" xml:"command_kinds>kind" yaml:"command_kinds"`
	CommandCodes    []Count  `json:"command_codes" xml:"command_codes>code" yaml:"command_codes"`
	ApertureKinds   []Count  `json:"aperture_kinds" xml:"aperture_kinds>kind" yaml:"aperture_kinds"`
	OperationKinds  []Count  `json:"operation_kinds" xml:"operation_kinds>kind" yaml:"operation_kinds"`
	Deprecated      int      `json:"deprecated" xml:"deprecated" yaml:"deprecated"`
	DeprecatedCodes []string `json:"deprecated_codes,omitempty" xml:"deprecated_codes>code,omitempty" yaml:"deprecated_codes,omitempty"`
	// Operations is the number of flattened operations, Captured the number written in the file.
	Operations  int `json:"operations" xml:"operations" yaml:"operations"`
	Captured    int `json:"captured" xml:"captured" yaml:"captured"`
	Apertures   int `json:"apertures" xml:"apertures" yaml:"apertures"`
	Macros      int `json:"macros" xml:"macros" yaml:"macros"`
	Regions     int `json:"regions" xml:"regions" yaml:"regions"`
	Blocks      int `json:"blocks" xml:"blocks" yaml:"blocks"`
	StepRepeats int `json:"step_repeats" xml:"step_repeats" yaml:"step_repeats"`
	Attributes  int `json:"attributes" xml:"attributes" yaml:"attributes"`
}

// KindName names the variant of a command.
func KindName(c gerbparser.Command) string {
	switch c.(type) {
	case *gerbparser.FormatSpec:
		return "FormatSpec"
	case *gerbparser.UnitSpec:
		return "UnitSpec"
	case *gerbparser.ApertureDefinition:
		return "ApertureDefinition"
	case *gerbparser.ApertureMacro:
		return "ApertureMacro"
	case *gerbparser.ApertureSelect:
		return "ApertureSelect"
	case *gerbparser.GraphicsOperation:
		return "GraphicsOperation"
	case *gerbparser.InterpolationModeSet:
		return "InterpolationModeSet"
	case *gerbparser.QuadrantModeSet:
		return "QuadrantModeSet"
	case *gerbparser.RegionStart:
		return "RegionStart"
	case *gerbparser.RegionEnd:
		return "RegionEnd"
	case *gerbparser.BlockApertureOpen:
		return "BlockApertureOpen"
	case *gerbparser.BlockApertureClose:
		return "BlockApertureClose"
	case *gerbparser.StepRepeatOpen:
		return "StepRepeatOpen"
	case *gerbparser.StepRepeatClose:
		return "StepRepeatClose"
	case *gerbparser.Attribute:
		return "Attribute"
	case *gerbparser.AttributeDelete:
		return "AttributeDelete"
	case *gerbparser.PolaritySet:
		return "PolaritySet"
	case *gerbparser.MirrorSet:
		return "MirrorSet"
	case *gerbparser.RotationSet:
		return "RotationSet"
	case *gerbparser.ScaleSet:
		return "ScaleSet"
	case *gerbparser.Comment:
		return "Comment"
	case *gerbparser.EndOfFile:
		return "EndOfFile"
	case *gerbparser.NotationSet:
		return "NotationSet"
	case *gerbparser.LegacyDirective:
		return "LegacyDirective"
	}
	return "Unknown"
}

func sorted(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Collect never fails and never modifies doc.
func Collect(doc *gerberdatamodel.Document) *Report {
	kinds := make(map[string]int)
	codes := make(map[string]int)
	deprecated := make(map[string]bool)
	r := &Report{
		Commands:    len(doc.Commands),
		Operations:  len(doc.Operations),
		Captured:    len(doc.Captured),
		Apertures:   len(doc.Apertures),
		Macros:      len(doc.Macros),
		Regions:     len(doc.Regions),
		Blocks:      len(doc.Blocks),
		StepRepeats: len(doc.StepRepeats),
		Attributes:  len(doc.Attributes),
	}
	for _, c := range doc.Commands {
		loc := c.Location()
		kinds[KindName(c)]++
		if loc.Code != "" {
			codes[loc.Code]++
		}
		if loc.Deprecated {
			r.Deprecated++
			if !deprecated[loc.Code] {
				deprecated[loc.Code] = true
				r.DeprecatedCodes = append(r.DeprecatedCodes, loc.Code)
			}
		}
	}
	apKinds := make(map[string]int)
	for _, ap := range doc.Apertures {
		apKinds[ap.Type.String()]++
	}
	opKinds := make(map[string]int)
	for i := range doc.Operations {
		opKinds[doc.Operations[i].Kind.String()]++
	}
	r.CommandKinds = sorted(kinds)
	r.CommandCodes = sorted(codes)
	r.ApertureKinds = sorted(apKinds)
	r.OperationKinds = sorted(opKinds)
	return r
}

// Of returns the count of name, 0 when absent.
func Of(counts []Count, name string) int {
	for _, c := range counts {
		if c.Name == name {
			return c.Count
		}
	}
	return 0
}
