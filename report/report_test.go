package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyre-innovations/gerberdump"
	"github.com/wyre-innovations/gerberdump/batch"
	"github.com/wyre-innovations/gerberdump/fabcost"
)

const top = "%FSLAX24Y24*%\n" +
	"%MOMM*%\n" +
	"%TF.FileFunction,Copper,L1,Top*%\n" +
	"%ADD10C,0.5*%\n" +
	"%ADD11R,1X2*%\n" +
	"G01*\n" +
	"D10*\n" +
	"X0Y0D02*\n" +
	"X10000Y0D01*\n" +
	"G54D11*\n" +
	"X0Y0D03*\n" +
	"M02*\n"

func result(t *testing.T, path, src string) *batch.Result {
	t.Helper()
	doc, findings, err := gerberdump.Parse([]byte(src))
	require.NoError(t, err)
	a, err := gerberdump.Analyze(context.Background(), doc, fabcost.DefaultWeights())
	require.NoError(t, err)
	return &batch.Result{Path: path, Document: doc, Parse: findings, Analysis: a}
}

func TestResolve(t *testing.T) {
	s, def := Sections{}.Resolve()
	assert.True(t, def)
	assert.Equal(t, Sections{FabCost: true}, s)

	s, def = Sections{X2: true}.Resolve()
	assert.False(t, def)
	assert.Equal(t, Sections{X2: true, FileHeaders: true, Apertures: true, Attributes: true, Format: true}, s)

	s, def = Sections{Macros: true}.Resolve()
	assert.False(t, def)
	assert.Equal(t, Sections{Macros: true}, s)
}

func TestFilterAccepts(t *testing.T) {
	doc := result(t, "/b/top.gtl", top).Document
	assert.True(t, Filter{}.Accepts(doc))
	assert.True(t, Filter{FileFunction: "copper"}.Accepts(doc))
	assert.False(t, Filter{FileFunction: "Soldermask"}.Accepts(doc))
	assert.True(t, Filter{Layer: "top"}.Accepts(doc))
	assert.False(t, Filter{Layer: "Bot"}.Accepts(doc))
}

func TestBuildSections(t *testing.T) {
	rep, ok := Build(result(t, "/b/top.gtl", top), Sections{
		FileHeaders: true, Format: true, Apertures: true, Commands: true, Graphics: true,
	}, Filter{})
	require.True(t, ok)

	assert.Equal(t, "/b/top.gtl", rep.Path)
	require.NotNil(t, rep.Header)
	assert.Equal(t, "Copper,L1,Top", rep.Header.FileFunction)
	assert.Equal(t, "Top", rep.Header.Layer)
	assert.Equal(t, 13, rep.Header.Commands)
	assert.Equal(t, 12, rep.Header.EndOfFileLine)

	require.NotNil(t, rep.Format)
	assert.Equal(t, []int{1}, rep.Format.FormatLines)
	assert.Equal(t, []int{2}, rep.Format.UnitLines)

	require.Len(t, rep.Apertures, 2)
	assert.Equal(t, 10, rep.Apertures[0].Number)
	assert.Equal(t, 1, rep.Apertures[0].Uses)
	assert.Equal(t, "rectangle", rep.Apertures[1].Type)

	assert.Len(t, rep.Commands, 13)
	assert.Len(t, rep.Operations, 3)
	assert.Nil(t, rep.Findings)
	assert.Nil(t, rep.FabCost)
}

func TestBuildFilters(t *testing.T) {
	r := result(t, "/b/top.gtl", top)

	rep, _ := Build(r, Sections{Commands: true, Graphics: true}, Filter{Apertures: []int{11}})
	require.Len(t, rep.Commands, 2)
	assert.Equal(t, 5, rep.Commands[0].Line)
	assert.Equal(t, "ApertureSelect", rep.Commands[1].Kind)
	require.Len(t, rep.Operations, 1)
	assert.Equal(t, "flash", rep.Operations[0].Kind)

	rep, _ = Build(r, Sections{Commands: true}, Filter{DeprecatedOnly: true})
	require.Len(t, rep.Commands, 1)
	assert.Equal(t, "G54", rep.Commands[0].Code)

	rep, _ = Build(r, Sections{Commands: true, Apertures: true}, Filter{Limit: 3})
	assert.Len(t, rep.Commands, 3)
	assert.Len(t, rep.Apertures, 2)

	rep, ok := Build(r, Sections{Commands: true}, Filter{Layer: "Bot"})
	assert.False(t, ok)
	assert.Nil(t, rep)
}

func TestBuildDoesNotModifyDocument(t *testing.T) {
	r := result(t, "/b/top.gtl", top)
	commands := len(r.Document.Commands)
	_, _ = Build(r, Sections{Commands: true}, Filter{Limit: 1, DeprecatedOnly: true})
	assert.Len(t, r.Document.Commands, commands)
}

func TestBuildValidateWithoutFindings(t *testing.T) {
	rep, _ := Build(result(t, "/b/top.gtl", strings.Replace(top, "G54D11", "D11", 1)), Sections{Validate: true}, Filter{})
	require.NotNil(t, rep.Findings)
	assert.Empty(t, rep.Findings)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, &Output{Files: []*FileReport{rep}}, Options{}))
	assert.Contains(t, buf.String(), "no problems found")
}

func TestBuildFailedFile(t *testing.T) {
	rep, ok := Build(&batch.Result{Path: "/b/gone.gbr", Err: errors.New("reading /b/gone.gbr: file does not exist")},
		Sections{FabCost: true}, Filter{Layer: "Top"})
	require.True(t, ok)
	assert.Contains(t, rep.Error, "does not exist")
	assert.Nil(t, rep.FabCost)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	assert.Equal(t, "yaml", FormatYAML.String())

	_, err = ParseFormat("pdf")
	assert.ErrorContains(t, err, "pdf")
}

func output(t *testing.T, s Sections) *Output {
	t.Helper()
	rep, _ := Build(result(t, "/b/top.gtl", top), s, Filter{})
	return &Output{Files: []*FileReport{rep}}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, output(t, Sections{Apertures: true, FabCost: true}), Options{Format: FormatJSON}))

	var got struct {
		Files []struct {
			Path      string `json:"path"`
			Apertures []struct {
				Number int `json:"number"`
			} `json:"apertures"`
			FabCost *struct {
				ViaCount int `json:"via_count"`
			} `json:"fab_cost"`
			Commands []interface{} `json:"commands"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Files, 1)
	assert.Equal(t, "/b/top.gtl", got.Files[0].Path)
	assert.Len(t, got.Files[0].Apertures, 2)
	require.NotNil(t, got.Files[0].FabCost)
	assert.Equal(t, 1, got.Files[0].FabCost.ViaCount)
	assert.Nil(t, got.Files[0].Commands)
}

func TestRenderXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, output(t, Sections{Commands: true}), Options{Format: FormatXML}))
	assert.True(t, strings.HasPrefix(buf.String(), xml.Header))

	var got struct {
		Files []struct {
			Path     string `xml:"path,attr"`
			Commands []struct {
				Line int `xml:"line,attr"`
			} `xml:"commands>command"`
		} `xml:"file"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Files, 1)
	assert.Equal(t, "/b/top.gtl", got.Files[0].Path)
	assert.Len(t, got.Files[0].Commands, 13)
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, output(t, Sections{FileHeaders: true}), Options{Format: FormatYAML}))
	assert.Contains(t, buf.String(), "path: /b/top.gtl")
	assert.Contains(t, buf.String(), "file_function: Copper,L1,Top")
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, output(t, Sections{Commands: true}), Options{Format: FormatCSV}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 14)
	assert.Equal(t, []string{"file", "section", "line", "offset", "kind", "detail"}, records[0])
	assert.Equal(t, "/b/top.gtl", records[1][0])
	assert.Equal(t, "command", records[1][1])
	assert.Equal(t, "1", records[1][2])
	assert.Equal(t, "FormatSpec", records[1][4])
}

func TestRenderRaw(t *testing.T) {
	out := output(t, Sections{Commands: true})
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, out, Options{Format: FormatRaw}))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, len(out.Files[0].Commands))
	for i, c := range out.Files[0].Commands {
		assert.Equal(t, c.Raw, lines[i])
	}
}

func TestRenderHuman(t *testing.T) {
	out := output(t, Sections{Apertures: true, Commands: true, FabCost: true})

	var plain bytes.Buffer
	require.NoError(t, Render(&plain, out, Options{LineNumbers: true}))
	s := plain.String()
	assert.NotContains(t, s, "\x1b[")
	assert.Contains(t, s, "/b/top.gtl")
	assert.Contains(t, s, "Apertures (2)")
	assert.Contains(t, s, "Commands (13)")
	assert.Contains(t, s, "complexity score: ")
	assert.Contains(t, s, "deprecated")

	var colored bytes.Buffer
	require.NoError(t, Render(&colored, out, Options{Color: true}))
	assert.Contains(t, colored.String(), "\x1b[")
}

func TestRenderBoard(t *testing.T) {
	a := result(t, "/b/top.gtl", top)
	b := result(t, "/b/bottom.gbl", strings.Replace(top, "Top", "Bot", 1))
	out := &Output{
		Files: []*FileReport{},
		Board: fabcost.AnalyzeLayers(batch.Layers([]*batch.Result{a, b}), fabcost.DefaultWeights()),
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, out, Options{}))
	assert.Contains(t, buf.String(), "board (2 layers)")
	assert.Contains(t, buf.String(), "Combined fabrication cost")

	buf.Reset()
	require.NoError(t, Render(&buf, out, Options{Format: FormatCSV}))
	assert.Contains(t, buf.String(), "board_complexity_score")
}
