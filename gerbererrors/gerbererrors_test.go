package gerbererrors

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorText(t *testing.T) {
	e := Semantic(UndefinedAperture, 12, 140, "no such aperture")
	e.Number = 15
	assert.Equal(t, "SemanticError::UndefinedAperture(15) at line 12: no such aperture", e.Error())

	e = Malformed(UnknownCommand, 0, 0, "")
	e.Code = "G99"
	assert.Equal(t, "MalformedCommand::UnknownCommand(G99)", e.Error())

	_, cause := strconv.Atoi("1x")
	e = Malformed(BadNumber, 3, 9, "X coordinate")
	e.Cause = cause
	assert.Contains(t, e.Error(), "BadNumber at line 3: X coordinate: ")
	assert.ErrorIs(t, e, strconv.ErrSyntax)
}

func TestIsMatchesKind(t *testing.T) {
	e := Semantic(NoActiveAperture, 4, 0, "")
	wrapped := fmt.Errorf("file.gbr: %w", e)
	assert.ErrorIs(t, wrapped, ErrNoActiveAperture)
	assert.NotErrorIs(t, wrapped, ErrUndefinedAperture)
	assert.False(t, errors.Is(e, errors.New("other")))
}

func TestConflictingIsDuplicate(t *testing.T) {
	e := Semantic(ConflictingDeclaration, 5, 0, "units changed")
	assert.ErrorIs(t, e, ErrConflictingDeclaration)
	assert.ErrorIs(t, e, ErrDuplicateDeclaration)
	assert.NotErrorIs(t, Semantic(DuplicateDeclaration, 5, 0, ""), ErrConflictingDeclaration)
}

func TestList(t *testing.T) {
	var l List
	assert.Equal(t, "no errors", l.Error())

	l = List{
		Semantic(NoActiveAperture, 4, 0, ""),
		Malformed(BadParameters, 6, 0, "ADD11C"),
		Semantic(NoActiveAperture, 9, 0, ""),
	}
	assert.Equal(t, "SemanticError::NoActiveAperture at line 4 (and 2 more)", l.Error())
	assert.Equal(t, l[1].Error(), l[1:2].Error())

	got := l.OfKind(NoActiveAperture)
	assert.Len(t, got, 2)
	assert.Equal(t, 9, got[1].Line)
	assert.Empty(t, l.OfKind(CyclicBlockReference))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "SyntaxError", SyntaxError.String())
	assert.Equal(t, "UnknownError", Class(0).String())
	assert.Equal(t, "ReservedApertureNumber", ReservedApertureNumber.String())
}
