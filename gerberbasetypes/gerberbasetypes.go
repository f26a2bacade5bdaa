// Base types for Gerber parsing and processing
package gerberbasetypes

// Apertures
type GerberApType int

const (
	AptypeUnknown GerberApType = iota
	AptypeCircle
	AptypeRectangle
	AptypeObround
	AptypePoly
	AptypeMacro
	AptypeBlock
)

func (ga GerberApType) String() string {
	switch ga {
	case AptypeCircle:
		return "circle"
	case AptypeRectangle:
		return "rectangle"
	case AptypeObround:
		return "obround"
	case AptypePoly:
		return "polygon"
	case AptypeMacro:
		return "macro"
	case AptypeBlock:
		return "block"
	default:
	}
	return "unknown"
}

func (ga GerberApType) MarshalText() ([]byte, error) { return []byte(ga.String()), nil }

// ApTypeByTemplate maps a standard template letter to the aperture type.
// Any other template name denotes a macro.
func ApTypeByTemplate(template string) GerberApType {
	switch template {
	case "C":
		return AptypeCircle
	case "R":
		return AptypeRectangle
	case "O":
		return AptypeObround
	case "P":
		return AptypePoly
	}
	return AptypeMacro
}

type PolType int

const (
	PolTypeDark PolType = iota
	PolTypeClear
)

func (p PolType) String() string {
	switch p {
	case PolTypeDark:
		return "dark"
	case PolTypeClear:
		return "clear"
	default:
	}
	return "unknown"
}

func (p PolType) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Invert returns the opposite polarity.
func (p PolType) Invert() PolType {
	if p == PolTypeClear {
		return PolTypeDark
	}
	return PolTypeClear
}

type ActType int

const (
	OpcodeD01_DRAW ActType = iota + 1
	OpcodeD02_MOVE
	OpcodeD03_FLASH
)

func (act ActType) String() string {
	switch act {
	case OpcodeD01_DRAW:
		return "interpolate"
	case OpcodeD02_MOVE:
		return "move"
	case OpcodeD03_FLASH:
		return "flash"
	default:
	}
	return "unknown"
}

func (act ActType) MarshalText() ([]byte, error) { return []byte(act.String()), nil }

// DCode returns the Gerber function code of the operation.
func (act ActType) DCode() string {
	switch act {
	case OpcodeD01_DRAW:
		return "D01"
	case OpcodeD02_MOVE:
		return "D02"
	case OpcodeD03_FLASH:
		return "D03"
	}
	return "D??"
}

type QuadMode int

const (
	QuadModeUnset QuadMode = iota
	QuadModeSingle
	QuadModeMulti
)

func (q QuadMode) String() string {
	switch q {
	case QuadModeUnset:
		return "unset"
	case QuadModeSingle:
		return "single"
	case QuadModeMulti:
		return "multi"
	default:
	}
	return "unknown"
}

func (q QuadMode) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

type IPmode int

const (
	IPModeLinear IPmode = iota + 1
	IPModeCwC
	IPModeCCwC
)

func (ipm IPmode) String() string {
	switch ipm {
	case IPModeLinear:
		return "linear"
	case IPModeCwC:
		return "clockwise"
	case IPModeCCwC:
		return "counterclockwise"
	default:
	}
	return "unknown"
}

func (ipm IPmode) MarshalText() ([]byte, error) { return []byte(ipm.String()), nil }

// IsArc reports whether the mode is one of the circular modes.
func (ipm IPmode) IsArc() bool {
	return ipm == IPModeCwC || ipm == IPModeCCwC
}

type Units int

const (
	UnitsUnset Units = iota
	UnitsInches
	UnitsMillimeters
)

const InchesToMM float64 = 25.4

func (u Units) String() string {
	switch u {
	case UnitsInches:
		return "inches"
	case UnitsMillimeters:
		return "millimeters"
	case UnitsUnset:
		return "unset"
	}
	return "unknown"
}

func (u Units) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

// Scale returns the factor converting a length in these units to millimeters.
// Undeclared units are treated as millimeters.
func (u Units) Scale() float64 {
	if u == UnitsInches {
		return InchesToMM
	}
	return 1.0
}

type Mirror int

const (
	NoMirror Mirror = iota
	MirrorX
	MirrorY
	MirrorXY
)

func (m Mirror) String() string {
	switch m {
	case NoMirror:
		return "N"
	case MirrorX:
		return "X"
	case MirrorY:
		return "Y"
	case MirrorXY:
		return "XY"
	}
	return "?"
}

func (m Mirror) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// MirrorByName parses the LM argument.
func MirrorByName(s string) (Mirror, bool) {
	switch s {
	case "N":
		return NoMirror, true
	case "X":
		return MirrorX, true
	case "Y":
		return MirrorY, true
	case "XY":
		return MirrorXY, true
	}
	return NoMirror, false
}

// Attribute scopes (TF, TA, TO)
type AttrScope int

const (
	AttrScopeFile AttrScope = iota + 1
	AttrScopeAperture
	AttrScopeObject
)

func (s AttrScope) String() string {
	switch s {
	case AttrScopeFile:
		return "file"
	case AttrScopeAperture:
		return "aperture"
	case AttrScopeObject:
		return "object"
	}
	return "unknown"
}

func (s AttrScope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Code returns the extended command which sets attributes of the scope.
func (s AttrScope) Code() string {
	switch s {
	case AttrScopeFile:
		return "TF"
	case AttrScopeAperture:
		return "TA"
	case AttrScopeObject:
		return "TO"
	}
	return "T?"
}
