package gerbparser

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyre-innovations/gerberdump/gerberlexer"
)

func TestAMPrimitiveType_String(t *testing.T) {
	testArray := []AMPrimitiveType{AMPrimitive_Comment, AMPrimitive_Circle, AMPrimitive_VectLine, AMPrimitive_CenterLine,
		AMPrimitive_OutLine, AMPrimitive_Polygon, AMPrimitive_Moire, AMPrimitive_Thermal, AMPrimitiveType(3)}
	answers := []string{"comment", "circle", "vector line", "center line", "outline", "polygon", "moire", "thermal", "unknown"}
	for i, s := range testArray {
		if s.String() != answers[i] {
			t.Error("Error! " + s.String() + "!=" + answers[i])
		}
	}
}

func macroFrom(t *testing.T, src string) *ApertureMacro {
	rcs, err := gerberlexer.Tokenize([]byte(src))
	require.NoError(t, err)
	require.NotEmpty(t, rcs)
	am, err := ParseMacro(rcs[0], rcs[1:])
	require.NoError(t, err)
	return am
}

const boxMacro = "%AMBox*\n0 Rectangle with rounded corners, with rotation*\n0 $1 X-size*\n0 $2 Y-size*\n" +
	"0 $3 Rounding radius*\n0 $4 Rotation angle, in degrees counterclockwise*\n" +
	"21,1,$1,$2-$3-$3,0,0,$4*\n21,1,$2-$3-$3,$2,0,0,$4*\n$5=$1/2*\n$6=$2/2*\n$7=2X$3*\n1,1,$7,$5-$3,$6-$3,$4*\n" +
	"1,1,$7,-$5+$3,$6-$3,$4*\n1,1,$7,-$5+$3,-$6+$3,$4*\n1,1,$7,$5-$3,-$6+$3,$4*%"

func TestParseMacro(t *testing.T) {
	am := macroFrom(t, boxMacro)
	assert.Equal(t, "Box", am.Name)
	assert.Len(t, am.Statements, 14)
	assert.Len(t, am.Primitives(), 6)
	assert.Equal(t, AMPrimitive_Comment, am.Statements[0].Primitive)
	assert.Equal(t, "Rectangle with rounded corners, with rotation", am.Statements[0].Comment)
	assert.Equal(t, 5, am.Statements[7].Variable)
	assert.Equal(t, "$1/2", am.Statements[7].Expr)
	assert.False(t, am.Deprecated)
}

func TestParseMacroMultiLineOutline(t *testing.T) {
	am := macroFrom(t, "%AMTRIANGLE_30*\n4,1,3,\n1,-1,\n1,1,\n2,1,\n1,-1,\n30*%")
	require.Len(t, am.Statements, 1)
	st := am.Statements[0]
	assert.Equal(t, AMPrimitive_OutLine, st.Primitive)
	assert.Equal(t, []string{"1", "3", "1", "-1", "1", "1", "2", "1", "1", "-1", "30"}, st.Modifiers)
}

func TestParseMacroErrors(t *testing.T) {
	for _, src := range []string{
		"%AM*1,1,1,0,0*%",
		"%AMX*9,1,1*%",
		"%AMX*1,1,1*%",
		"%AMX*$a=1*%",
		"%AMX*4,1,3,0,0,1,1*%",
	} {
		rcs, err := gerberlexer.Tokenize([]byte(src))
		require.NoError(t, err)
		_, err = ParseMacro(rcs[0], rcs[1:])
		assert.Error(t, err, src)
	}
}

func TestParseMacroLegacyPrimitive(t *testing.T) {
	am := macroFrom(t, "%AMLINE*2,1,0.5,0,0,1,0,0*%")
	assert.True(t, am.Deprecated)
	assert.Equal(t, AMPrimitive_VectLine, am.Statements[0].Primitive)
}

func TestApertureMacro_Evaluate(t *testing.T) {
	am := macroFrom(t, "%AMDONUT*1,1,$1,0,0*1,0,$2,0,0*%")
	shape, err := am.Evaluate([]float64{2, 1})
	require.NoError(t, err)
	assert.False(t, shape.Empty)
	assert.InDelta(t, -1, shape.Bounds.Min.X, 1e-9)
	assert.InDelta(t, 1, shape.Bounds.Max.Y, 1e-9)
	assert.InDelta(t, math.Pi*(1-0.25), shape.Area, 1e-9)

	box := macroFrom(t, boxMacro)
	shape, err = box.Evaluate([]float64{4, 2, 0.5, 0})
	require.NoError(t, err)
	assert.InDelta(t, -2, shape.Bounds.Min.X, 1e-9)
	assert.InDelta(t, 2, shape.Bounds.Max.X, 1e-9)
	assert.InDelta(t, -1, shape.Bounds.Min.Y, 1e-9)
	assert.InDelta(t, 1, shape.Bounds.Max.Y, 1e-9)

	rotated, err := box.Evaluate([]float64{4, 2, 0.5, 90})
	require.NoError(t, err)
	assert.InDelta(t, -1, rotated.Bounds.Min.X, 1e-9)
	assert.InDelta(t, 2, rotated.Bounds.Max.Y, 1e-9)
}

func TestApertureMacro_EvaluateVariables(t *testing.T) {
	am := macroFrom(t, "%AMTARGET*1,1,$1,0,0*$1=$1x0.8*1,0,$1,0,0*$1=$1x0.8*1,1,$1,0,0*%")
	shape, err := am.Evaluate([]float64{10})
	require.NoError(t, err)
	want := math.Pi / 4 * (100 - 64 + 40.96)
	assert.InDelta(t, want, shape.Area, 1e-9)
	assert.InDelta(t, 5, shape.Bounds.Max.X, 1e-9)
}

func TestMoireRingCount(t *testing.T) {
	am := macroFrom(t, "%AMMOIRE*6,0,0,2,$1,$2,$3,0.1,1*%")

	shape, err := am.Evaluate([]float64{0.5, 0.25, 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/4*(4-1)+0.2, shape.Area, 1e-9)

	// rings that do not advance collapse into one
	shape, err = am.Evaluate([]float64{0.5, -0.5, 1e12})
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/4*(4-1)+0.2, shape.Area, 1e-9)

	shape, err = am.Evaluate([]float64{0, 0, 1e12})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, shape.Area, 1e-9)

	assert.Equal(t, MaxMoireRings, moireRings(2, 1e-12, 1e12))
	assert.Equal(t, 2, moireRings(2, 0.75, 5))
	assert.Zero(t, moireRings(2, 0.75, 0))
}
