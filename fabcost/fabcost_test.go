package fabcost_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyre-innovations/gerberdump"
	"github.com/wyre-innovations/gerberdump/fabcost"
	"github.com/wyre-innovations/gerberdump/gerberdatamodel"
)

func parse(t *testing.T, src string) *gerberdatamodel.Document {
	t.Helper()
	doc, _, err := gerberdump.Parse([]byte(src))
	require.NoError(t, err)
	return doc
}

// Two round pads 10 mm apart, an obround slot and a 0.2 mm track.
const board = "%FSLAX24Y24*%\n%MOMM*%\n" +
	"%ADD10C,0.5*%\n%ADD11O,1X2*%\n%ADD12C,0.2*%\n" +
	"G01*\n" +
	"D10*\nX0Y0D03*\nX100000Y0D03*\n" +
	"D11*\nX0Y50000D03*\n" +
	"D12*\nX0Y0D02*\nX100000Y0D01*\n" +
	"M02*\n"

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, fabcost.DefaultWeights().Validate())

	tests := []struct {
		name   string
		modify func(*fabcost.Weights)
		want   error
	}{
		{"negative weight", func(w *fabcost.Weights) { w.Apertures = -1 }, fabcost.ErrNegativeWeight},
		{"zero weights", func(w *fabcost.Weights) { w.Dimension, w.Apertures, w.Operations = 0, 0, 0 }, fabcost.ErrZeroWeights},
		{"zero reference", func(w *fabcost.Weights) { w.Reference.Operations = 0 }, fabcost.ErrNegativeReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fabcost.DefaultWeights()
			tt.modify(&w)
			assert.ErrorIs(t, w.Validate(), tt.want)
		})
	}
}

func TestAnalyze(t *testing.T) {
	r := fabcost.Analyze(parse(t, board), fabcost.DefaultWeights())

	assert.Equal(t, 3, r.ViaCount)
	assert.Equal(t, 1, r.SlotCount)
	assert.Equal(t, 3, r.ApertureDiversity)
	assert.Equal(t, 5, r.Operations)
	assert.Equal(t, 1, r.LayerCount)
	assert.InDelta(t, 0.2, r.MinTraceWidth, 1e-9)
	assert.InDelta(t, 0.2, r.MinApertureSize, 1e-9)

	assert.False(t, r.Dimensions.Empty)
	assert.InDelta(t, 10, r.Dimensions.Width, 1e-9)
	assert.InDelta(t, 5, r.Dimensions.Height, 1e-9)
	assert.InDelta(t, 50, r.Dimensions.Area, 1e-9)
	assert.Equal(t, "10.000 x 5.000 mm", r.Dimensions.String())

	assert.Greater(t, r.CopperCoverage, 0.0)
	assert.LessOrEqual(t, r.CopperCoverage, 1.0)

	require.Len(t, r.Factors, 3)
	sum := 0.0
	for _, f := range r.Factors {
		sum += f.Contribution
	}
	assert.InDelta(t, r.ComplexityScore, sum, 1e-9)
	assert.Greater(t, r.ComplexityScore, 0.0)
	assert.Less(t, r.ComplexityScore, fabcost.MaxScore)
}

func TestAnalyzeEmpty(t *testing.T) {
	r := fabcost.Analyze(parse(t, "%FSLAX24Y24*%\n%MOMM*%\nM02*\n"), fabcost.DefaultWeights())
	assert.True(t, r.Dimensions.Empty)
	assert.Equal(t, "empty", r.Dimensions.String())
	assert.Zero(t, r.Operations)
	assert.Zero(t, r.MinTraceWidth)
	assert.Zero(t, r.CopperCoverage)
	assert.Zero(t, r.ComplexityScore)
}

func TestInvalidWeightsUseDefaults(t *testing.T) {
	doc := parse(t, board)
	assert.Equal(t, fabcost.Analyze(doc, fabcost.DefaultWeights()), fabcost.Analyze(doc, fabcost.Weights{}))
}

func TestScoreGrowsWithBoardSize(t *testing.T) {
	small := fabcost.Analyze(parse(t, board), fabcost.DefaultWeights())
	large := fabcost.Analyze(parse(t, "%FSLAX24Y24*%\n%MOMM*%\n"+
		"%ADD10C,0.5*%\n%ADD11O,1X2*%\n%ADD12C,0.2*%\nG01*\n"+
		"D10*\nX0Y0D03*\nX1000000Y0D03*\n"+
		"D11*\nX0Y500000D03*\n"+
		"D12*\nX0Y0D02*\nX1000000Y0D01*\n"+
		"M02*\n"), fabcost.DefaultWeights())
	assert.Greater(t, large.ComplexityScore, small.ComplexityScore)
}

func TestAnalyzeLayers(t *testing.T) {
	top := parse(t, "%FSLAX24Y24*%\n%MOMM*%\n%TF.FileFunction,Copper,L1,Top*%\n%ADD10C,0.5*%\n"+
		"D10*\nX0Y0D03*\nX100000Y0D03*\nM02*\n")
	mask := parse(t, "%FSLAX24Y24*%\n%MOMM*%\n%TF.FileFunction,Soldermask,Top*%\n%ADD10C,0.6*%\n"+
		"D10*\nX0Y50000D03*\nM02*\n")

	b := fabcost.AnalyzeLayers([]fabcost.Layer{
		{Name: "top.gtl", Document: top},
		{Name: "top.gts", Document: mask},
	}, fabcost.DefaultWeights())

	require.Len(t, b.Layers, 2)
	assert.Equal(t, "top.gtl", b.Layers[0].Name)
	assert.Equal(t, "Copper,L1,Top", b.Layers[0].FileFunction)
	assert.Equal(t, "top.gts", b.Layers[1].Name)
	assert.False(t, b.Layers[1].Dimensions.Empty)

	c := b.Combined
	assert.Equal(t, "board", c.Name)
	assert.Equal(t, 1, c.LayerCount)
	assert.Equal(t, 3, c.ViaCount)
	assert.Equal(t, 2, c.ApertureDiversity)
	assert.InDelta(t, 10, c.Dimensions.Width, 1e-9)
	assert.InDelta(t, 5, c.Dimensions.Height, 1e-9)
}

func TestRegionCoverageCountsEveryPlacement(t *testing.T) {
	const head = "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.5*%\nG01*\nD10*\n"
	square := func(x0 string, x1 string) string {
		return "G36*\nX" + x0 + "Y0D02*\nX" + x1 + "Y0D01*\nX" + x1 + "Y100000D01*\nX" + x0 + "Y100000D01*\nX" + x0 + "Y0D01*\nG37*\n"
	}
	written := fabcost.Analyze(parse(t, head+square("0", "100000")+square("200000", "300000")+"M02*\n"),
		fabcost.DefaultWeights())
	repeated := fabcost.Analyze(parse(t, head+"%SRX2Y1I20J0*%\n"+square("0", "100000")+"%SR*%\nM02*\n"),
		fabcost.DefaultWeights())

	assert.InDelta(t, 300, written.Dimensions.Area, 1e-9)
	assert.InDelta(t, 2.0/3, written.CopperCoverage, 1e-9)
	assert.InDelta(t, written.Dimensions.Area, repeated.Dimensions.Area, 1e-9)
	assert.InDelta(t, written.CopperCoverage, repeated.CopperCoverage, 1e-9)
}
