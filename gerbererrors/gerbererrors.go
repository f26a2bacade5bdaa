// Package gerbererrors holds the error taxonomy shared by the tokenizer,
// the command parser and the graphics state machine.
package gerbererrors

import (
	"strconv"
	"strings"
)

// Class is the stage which detected the problem.
type Class int

const (
	SyntaxError Class = iota + 1
	MalformedCommand
	SemanticError
)

func (c Class) String() string {
	switch c {
	case SyntaxError:
		return "SyntaxError"
	case MalformedCommand:
		return "MalformedCommand"
	case SemanticError:
		return "SemanticError"
	}
	return "UnknownError"
}

type Kind int

const (
	KindUnknown Kind = iota
	MalformedSyntax
	BadNumber
	BadParameters
	UnknownCommand
	FormatNotEstablished
	DuplicateDeclaration
	ConflictingDeclaration
	UndefinedAperture
	NoActiveAperture
	InvalidInRegion
	UnbalancedRegion
	CyclicBlockReference
	InvalidRepeatCount
	UnbalancedBlock
	UnbalancedStepRepeat
	QuadrantModeNotSet
	DuplicateAperture
	ReservedApertureNumber
)

var kindNames = map[Kind]string{
	KindUnknown:            "Unknown",
	MalformedSyntax:        "MalformedSyntax",
	BadNumber:              "BadNumber",
	BadParameters:          "BadParameters",
	UnknownCommand:         "UnknownCommand",
	FormatNotEstablished:   "FormatNotEstablished",
	DuplicateDeclaration:   "DuplicateDeclaration",
	ConflictingDeclaration: "ConflictingDeclaration",
	UndefinedAperture:      "UndefinedAperture",
	NoActiveAperture:       "NoActiveAperture",
	InvalidInRegion:        "InvalidInRegion",
	UnbalancedRegion:       "UnbalancedRegion",
	CyclicBlockReference:   "CyclicBlockReference",
	InvalidRepeatCount:     "InvalidRepeatCount",
	UnbalancedBlock:        "UnbalancedBlock",
	UnbalancedStepRepeat:   "UnbalancedStepRepeat",
	QuadrantModeNotSet:     "QuadrantModeNotSet",
	DuplicateAperture:      "DuplicateAperture",
	ReservedApertureNumber: "ReservedApertureNumber",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Error is a located parse-level finding.
type Error struct {
	Class   Class
	Kind    Kind
	Line    int    // 1-based source line, 0 if unknown
	Offset  int    // byte offset of the offending command
	Code    string // offending function code or keyword
	Number  int    // aperture number for the aperture related kinds
	Message string
	Fatal   bool
	Cause   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Class.String())
	sb.WriteString("::")
	sb.WriteString(e.Kind.String())
	switch e.Kind {
	case UndefinedAperture, CyclicBlockReference, DuplicateAperture, ReservedApertureNumber:
		sb.WriteString("(" + strconv.Itoa(e.Number) + ")")
	case UnknownCommand:
		sb.WriteString("(" + e.Code + ")")
	}
	if e.Line > 0 {
		sb.WriteString(" at line ")
		sb.WriteString(strconv.Itoa(e.Line))
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
// A conflicting declaration is also a duplicate one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == DuplicateDeclaration && e.Kind == ConflictingDeclaration {
		return true
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrMalformedSyntax        = &Error{Class: SyntaxError, Kind: MalformedSyntax}
	ErrBadNumber              = &Error{Class: MalformedCommand, Kind: BadNumber}
	ErrBadParameters          = &Error{Class: MalformedCommand, Kind: BadParameters}
	ErrUnknownCommand         = &Error{Class: MalformedCommand, Kind: UnknownCommand}
	ErrFormatNotEstablished   = &Error{Class: SemanticError, Kind: FormatNotEstablished}
	ErrDuplicateDeclaration   = &Error{Class: SemanticError, Kind: DuplicateDeclaration}
	ErrConflictingDeclaration = &Error{Class: SemanticError, Kind: ConflictingDeclaration}
	ErrUndefinedAperture      = &Error{Class: SemanticError, Kind: UndefinedAperture}
	ErrNoActiveAperture       = &Error{Class: SemanticError, Kind: NoActiveAperture}
	ErrInvalidInRegion        = &Error{Class: SemanticError, Kind: InvalidInRegion}
	ErrUnbalancedRegion       = &Error{Class: SemanticError, Kind: UnbalancedRegion}
	ErrCyclicBlockReference   = &Error{Class: SemanticError, Kind: CyclicBlockReference}
	ErrInvalidRepeatCount     = &Error{Class: SemanticError, Kind: InvalidRepeatCount}
	ErrUnbalancedBlock        = &Error{Class: SemanticError, Kind: UnbalancedBlock}
	ErrUnbalancedStepRepeat   = &Error{Class: SemanticError, Kind: UnbalancedStepRepeat}
	ErrQuadrantModeNotSet     = &Error{Class: SemanticError, Kind: QuadrantModeNotSet}
	ErrDuplicateAperture      = &Error{Class: SemanticError, Kind: DuplicateAperture}
	ErrReservedApertureNumber = &Error{Class: MalformedCommand, Kind: ReservedApertureNumber}
)

// New builds a located error of the given class and kind.
func New(class Class, kind Kind, line, offset int, msg string) *Error {
	return &Error{Class: class, Kind: kind, Line: line, Offset: offset, Message: msg}
}

// Malformed is a shortcut for MalformedCommand errors.
func Malformed(kind Kind, line, offset int, msg string) *Error {
	return New(MalformedCommand, kind, line, offset, msg)
}

// Semantic is a shortcut for SemanticError errors.
func Semantic(kind Kind, line, offset int, msg string) *Error {
	return New(SemanticError, kind, line, offset, msg)
}

// List is an ordered collection of recoverable findings.
type List []*Error

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	return l[0].Error() + " (and " + strconv.Itoa(len(l)-1) + " more)"
}

// OfKind returns the errors of kind k, in order.
func (l List) OfKind(k Kind) List {
	var out List
	for _, e := range l {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
