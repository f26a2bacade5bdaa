/*
The file contains functions used for converting raw command units into typed commands
*/
package gerbparser

import (
	"fmt"
	"strconv"
	"strings"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/gerbererrors"
	"github.com/wyre-innovations/gerberdump/gerberlexer"
	"github.com/wyre-innovations/gerberdump/srblocks"
	"github.com/wyre-innovations/gerberdump/xy"
)

// ParseCommand converts one raw command. fs is the coordinate format known so
// far, nil if none has been declared yet. The returned command is never
// modified afterwards.
func ParseCommand(rc gerberlexer.RawCommand, fs *xy.FormatSpec) (Command, error) {
	loc := Loc{Line: rc.Line, Offset: rc.Offset, Raw: rc.Text}
	if rc.Text == "" {
		return nil, gerbererrors.Malformed(gerbererrors.MalformedSyntax, rc.Line, rc.Offset, "empty command")
	}
	if rc.Extended {
		return parseExtended(rc, loc)
	}
	return parsePlain(rc, loc, fs)
}

func badParams(loc Loc, format string, a ...interface{}) *gerbererrors.Error {
	e := gerbererrors.Malformed(gerbererrors.BadParameters, loc.Line, loc.Offset, fmt.Sprintf(format, a...))
	e.Code = loc.Code
	return e
}

func badNumber(loc Loc, s string, cause error) *gerbererrors.Error {
	e := gerbererrors.Malformed(gerbererrors.BadNumber, loc.Line, loc.Offset, "bad number "+strconv.Quote(s))
	e.Code = loc.Code
	e.Cause = cause
	return e
}

func unknown(loc Loc, code string) *gerbererrors.Error {
	e := gerbererrors.Malformed(gerbererrors.UnknownCommand, loc.Line, loc.Offset, "")
	e.Code = code
	return e
}

var legacyExtended = map[string]bool{
	"IP": true, "AS": true, "IR": true, "MI": true,
	"OF": true, "SF": true, "IN": true, "LN": true,
}

func parseExtended(rc gerberlexer.RawCommand, loc Loc) (Command, error) {
	text := rc.Text
	if len(text) < 2 {
		return nil, unknown(loc, text)
	}
	keyword := text[:2]
	body := text[2:]
	loc.Code = keyword
	switch keyword {
	case "FS":
		f, err := xy.ParseFormatSpec(text)
		if err != nil {
			e := badParams(loc, "%s", err.Error())
			e.Cause = err
			return nil, e
		}
		loc.Deprecated = f.OmitTrailing || f.Incremental
		return &FormatSpec{Loc: loc, Format: f}, nil
	case "MO":
		switch strings.TrimSpace(body) {
		case "IN":
			return &UnitSpec{Loc: loc, Units: gbt.UnitsInches}, nil
		case "MM":
			return &UnitSpec{Loc: loc, Units: gbt.UnitsMillimeters}, nil
		}
		return nil, badParams(loc, "unit must be IN or MM, got %q", body)
	case "AD":
		return parseApertureDefinition(body, loc)
	case "AM":
		am, err := ParseMacro(rc, nil)
		if err != nil {
			return nil, err
		}
		return am, nil
	case "AB":
		if body == "" {
			return &BlockApertureClose{Loc: loc}, nil
		}
		if !strings.HasPrefix(body, "D") {
			return nil, badParams(loc, "block aperture needs a D code")
		}
		n, err := strconv.Atoi(body[1:])
		if err != nil {
			return nil, badNumber(loc, body[1:], err)
		}
		if n < 10 {
			e := gerbererrors.Malformed(gerbererrors.ReservedApertureNumber, loc.Line, loc.Offset, "aperture numbers below 10 are reserved")
			e.Number = n
			return nil, e
		}
		return &BlockApertureOpen{Loc: loc, Number: n}, nil
	case "SR":
		if body == "" {
			return &StepRepeatClose{Loc: loc}, nil
		}
		return parseStepRepeat(body, loc)
	case "LP":
		switch body {
		case "D":
			return &PolaritySet{Loc: loc, Polarity: gbt.PolTypeDark}, nil
		case "C":
			return &PolaritySet{Loc: loc, Polarity: gbt.PolTypeClear}, nil
		}
		return nil, badParams(loc, "polarity must be D or C, got %q", body)
	case "LM":
		m, ok := gbt.MirrorByName(body)
		if !ok {
			return nil, badParams(loc, "mirroring must be N, X, Y or XY, got %q", body)
		}
		return &MirrorSet{Loc: loc, Mirror: m}, nil
	case "LR":
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, badNumber(loc, body, err)
		}
		return &RotationSet{Loc: loc, Degrees: v}, nil
	case "LS":
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, badNumber(loc, body, err)
		}
		if v <= 0 {
			return nil, badParams(loc, "scale factor must be positive, got %v", v)
		}
		return &ScaleSet{Loc: loc, Factor: v}, nil
	case "TF", "TA", "TO":
		return parseAttribute(keyword, body, loc)
	case "TD":
		return &AttributeDelete{Loc: loc, Name: strings.TrimSpace(body)}, nil
	}
	if legacyExtended[keyword] {
		loc.Deprecated = true
		return &LegacyDirective{Loc: loc, Params: body}, nil
	}
	return nil, unknown(loc, keyword)
}

func parseApertureDefinition(body string, loc Loc) (Command, error) {
	if !strings.HasPrefix(body, "D") {
		return nil, badParams(loc, "aperture definition needs a D code")
	}
	i := 1
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(body[1:i])
	if err != nil {
		return nil, badNumber(loc, body[1:i], err)
	}
	if n < 10 {
		e := gerbererrors.Malformed(gerbererrors.ReservedApertureNumber, loc.Line, loc.Offset, "aperture numbers below 10 are reserved")
		e.Number = n
		return nil, e
	}
	rest := body[i:]
	template, paramStr := rest, ""
	if comma := strings.IndexByte(rest, ','); comma >= 0 {
		template, paramStr = rest[:comma], rest[comma+1:]
	}
	template = strings.TrimSpace(template)
	if template == "" {
		return nil, badParams(loc, "aperture D%d has no template", n)
	}
	ad := &ApertureDefinition{Loc: loc, Number: n, Template: template}
	if paramStr != "" {
		for _, p := range strings.Split(paramStr, "X") {
			p = strings.TrimSpace(p)
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, badNumber(loc, p, err)
			}
			ad.Params = append(ad.Params, v)
		}
	}
	if err := checkTemplateParams(ad); err != nil {
		return nil, err
	}
	return ad, nil
}

// parameter count limits of the standard templates; the last one is the
// historic rectangular hole form
var templateParams = map[string][3]int{
	"C": {1, 2, 3},
	"R": {2, 3, 4},
	"O": {2, 3, 4},
	"P": {2, 4, 5},
}

func checkTemplateParams(ad *ApertureDefinition) error {
	lim, ok := templateParams[ad.Template]
	if !ok {
		return nil
	}
	n := len(ad.Params)
	if n < lim[0] || n > lim[2] {
		return badParams(ad.Loc, "bad number of parameters for %s aperture: %d",
			gbt.ApTypeByTemplate(ad.Template), n)
	}
	if n == lim[2] {
		ad.Deprecated = true
	}
	for _, p := range ad.Params {
		if p < 0 && ad.Template != "P" {
			return badParams(ad.Loc, "negative size for %s aperture", gbt.ApTypeByTemplate(ad.Template))
		}
	}
	if ad.Template == "P" {
		v := ad.Params[1]
		if v < 3 || v > 12 || v != float64(int(v)) {
			return badParams(ad.Loc, "polygon vertex count must be an integer 3..12, got %v", v)
		}
	}
	return nil
}

func parseStepRepeat(body string, loc Loc) (Command, error) {
	res, err := srblocks.ExtractLetterDelimitedFloats(body, "XYIJ")
	if err != nil {
		e := badParams(loc, "%s", err.Error())
		e.Cause = err
		return nil, e
	}
	sr := &StepRepeatOpen{Loc: loc, NX: 1, NY: 1}
	if v, ok := res['X']; ok {
		sr.NX = int(v)
	}
	if v, ok := res['Y']; ok {
		sr.NY = int(v)
	}
	sr.DX = res['I']
	sr.DY = res['J']
	return sr, nil
}

func parseAttribute(keyword, body string, loc Loc) (Command, error) {
	fields := strings.Split(body, ",")
	name := strings.TrimSpace(fields[0])
	if name == "" {
		return nil, badParams(loc, "attribute without a name")
	}
	attr := &Attribute{Loc: loc, Name: name}
	switch keyword {
	case "TF":
		attr.Scope = gbt.AttrScopeFile
	case "TA":
		attr.Scope = gbt.AttrScopeAperture
	default:
		attr.Scope = gbt.AttrScopeObject
	}
	if len(fields) > 1 {
		attr.Values = append([]string(nil), fields[1:]...)
	}
	return attr, nil
}

// ParseMacro builds an aperture macro from its header "AMname" and the
// remaining sub-statements of the same extended block.
func ParseMacro(head gerberlexer.RawCommand, body []gerberlexer.RawCommand) (*ApertureMacro, error) {
	loc := Loc{Line: head.Line, Offset: head.Offset, Code: "AM", Raw: head.Text}
	name := strings.TrimSpace(strings.TrimPrefix(head.Text, "AM"))
	if name == "" {
		return nil, badParams(loc, "aperture macro without a name")
	}
	am := &ApertureMacro{Loc: loc, Name: name}
	raw := []string{head.Text}
	for _, rc := range body {
		raw = append(raw, rc.Text)
		st, deprecated, err := parseMacroStatement(rc.Text, rc.Line)
		if err != nil {
			e := badParams(Loc{Line: rc.Line, Offset: rc.Offset, Code: "AM"}, "macro %s: %s", name, err.Error())
			return nil, e
		}
		if deprecated {
			am.Deprecated = true
		}
		am.Statements = append(am.Statements, st)
	}
	am.Raw = strings.Join(raw, "*")
	return am, nil
}

var gCodes = map[string]func(Loc) Command{
	"G01": func(l Loc) Command { return &InterpolationModeSet{Loc: l, Mode: gbt.IPModeLinear} },
	"G02": func(l Loc) Command { return &InterpolationModeSet{Loc: l, Mode: gbt.IPModeCwC} },
	"G03": func(l Loc) Command { return &InterpolationModeSet{Loc: l, Mode: gbt.IPModeCCwC} },
	"G36": func(l Loc) Command { return &RegionStart{Loc: l} },
	"G37": func(l Loc) Command { return &RegionEnd{Loc: l} },
	"G75": func(l Loc) Command { return &QuadrantModeSet{Loc: l, Mode: gbt.QuadModeMulti} },
	"G74": func(l Loc) Command {
		l.Deprecated = true
		return &QuadrantModeSet{Loc: l, Mode: gbt.QuadModeSingle}
	},
	"G54": func(l Loc) Command { l.Deprecated = true; return &LegacyDirective{Loc: l} },
	"G55": func(l Loc) Command { l.Deprecated = true; return &LegacyDirective{Loc: l} },
	"G70": func(l Loc) Command { l.Deprecated = true; return &UnitSpec{Loc: l, Units: gbt.UnitsInches} },
	"G71": func(l Loc) Command { l.Deprecated = true; return &UnitSpec{Loc: l, Units: gbt.UnitsMillimeters} },
	"G90": func(l Loc) Command { l.Deprecated = true; return &NotationSet{Loc: l} },
	"G91": func(l Loc) Command { l.Deprecated = true; return &NotationSet{Loc: l, Incremental: true} },
}

func parsePlain(rc gerberlexer.RawCommand, loc Loc, fs *xy.FormatSpec) (Command, error) {
	text := rc.Text
	switch text[0] {
	case 'G':
		i := 1
		for i < len(text) && text[i] >= '0' && text[i] <= '9' {
			i++
		}
		if i == 1 {
			return nil, unknown(loc, text)
		}
		code := gerberlexer.FormatGCode('G', text[1:i])
		loc.Code = code
		if code == "G04" {
			return &Comment{Loc: loc, Text: strings.TrimSpace(text[i:])}, nil
		}
		mk, ok := gCodes[code]
		if !ok {
			return nil, unknown(loc, code)
		}
		if i != len(text) {
			return nil, badParams(loc, "unexpected data %q after %s", text[i:], code)
		}
		return mk(loc), nil
	case 'M':
		code := gerberlexer.FormatGCode('M', text[1:])
		loc.Code = code
		switch code {
		case "M02":
			return &EndOfFile{Loc: loc}, nil
		case "M00":
			loc.Deprecated = true
			return &EndOfFile{Loc: loc}, nil
		case "M01":
			loc.Deprecated = true
			return &LegacyDirective{Loc: loc}, nil
		}
		return nil, unknown(loc, code)
	case 'D', 'X', 'Y', 'I', 'J':
		return parseOperation(rc, loc, fs)
	}
	i := 0
	for i < len(text) && (text[i] < '0' || text[i] > '9') && i < 3 {
		i++
	}
	return nil, unknown(loc, text[:i])
}

func parseOperation(rc gerberlexer.RawCommand, loc Loc, fs *xy.FormatSpec) (Command, error) {
	text := rc.Text
	words := make(map[byte]string, 5)
	i := 0
	for i < len(text) {
		letter := text[i]
		if strings.IndexByte("XYIJD", letter) < 0 {
			loc.Code = "D"
			return nil, badParams(loc, "unexpected %q in coordinate data", letter)
		}
		if _, dup := words[letter]; dup {
			loc.Code = "D"
			return nil, badParams(loc, "duplicate %c in coordinate data", letter)
		}
		j := i + 1
		for j < len(text) && (text[j] == '-' || text[j] == '+' || (text[j] >= '0' && text[j] <= '9') || text[j] == '.') {
			j++
		}
		words[letter] = text[i+1 : j]
		i = j
	}
	op := &GraphicsOperation{}
	if d, ok := words['D']; ok {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			loc.Code = "D"
			return nil, badNumber(loc, d, err)
		}
		if n > 3 || n == 0 {
			loc.Code = "D" + strconv.Itoa(n)
			if len(words) > 1 {
				return nil, badParams(loc, "aperture selection D%d with coordinate data", n)
			}
			return &ApertureSelect{Loc: loc, Number: n}, nil
		}
		op.Kind = gbt.ActType(n)
		loc.Code = op.Kind.DCode()
	} else {
		op.Implicit = true
		loc.Code = "D"
		loc.Deprecated = true
	}
	if len(words) > 1 || op.Implicit {
		if fs == nil {
			e := gerbererrors.Semantic(gerbererrors.FormatNotEstablished, loc.Line, loc.Offset,
				"coordinate data before the format specification")
			e.Code = loc.Code
			e.Fatal = true
			return nil, e
		}
	}
	for _, axis := range []struct {
		letter byte
		dst    **float64
	}{{'X', &op.X}, {'Y', &op.Y}, {'I', &op.I}, {'J', &op.J}} {
		s, ok := words[axis.letter]
		if !ok {
			continue
		}
		v, err := fs.Decode(s)
		if err != nil {
			return nil, badNumber(loc, string(axis.letter)+s, err)
		}
		*axis.dst = &v
	}
	op.Loc = loc
	return op, nil
}
