package report

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/wyre-innovations/gerberdump/fabcost"
	"github.com/wyre-innovations/gerberdump/statistics"
	"github.com/wyre-innovations/gerberdump/validator"
)

type Format int

const (
	FormatHuman Format = iota
	FormatJSON
	FormatXML
	FormatCSV
	FormatRaw
	FormatYAML
)

var formatNames = map[string]Format{
	"human": FormatHuman,
	"json":  FormatJSON,
	"xml":   FormatXML,
	"csv":   FormatCSV,
	"raw":   FormatRaw,
	"yaml":  FormatYAML,
}

func (f Format) String() string {
	for k, v := range formatNames {
		if v == f {
			return k
		}
	}
	return "unknown"
}

// ParseFormat accepts the output format names, case-insensitively.
func ParseFormat(s string) (Format, error) {
	if f, ok := formatNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return FormatHuman, fmt.Errorf("unknown output format %q (want human, json, xml, csv, raw or yaml)", s)
}

type Options struct {
	Format      Format
	LineNumbers bool
	Offsets     bool
	// Raw shows the source text of commands in the human output.
	Raw   bool
	Color bool
}

// Output is everything rendered in one run.
type Output struct {
	XMLName xml.Name       `json:"-" xml:"gerberdump" yaml:"-"`
	Files   []*FileReport  `json:"files" xml:"file" yaml:"files"`
	Board   *fabcost.Board `json:"board,omitempty" xml:"board,omitempty" yaml:"board,omitempty"`
}

// Render writes out in the selected format.
func Render(w io.Writer, out *Output, opt Options) error {
	switch opt.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	case FormatXML:
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	case FormatCSV:
		return renderCSV(w, out)
	case FormatRaw:
		return renderRaw(w, out)
	}
	return newHuman(w, opt).render(out)
}

func renderRaw(w io.Writer, out *Output) error {
	for _, f := range out.Files {
		for _, c := range f.Commands {
			if _, err := fmt.Fprintln(w, c.Raw); err != nil {
				return err
			}
		}
	}
	return nil
}

func itoa(i int) string { return strconv.Itoa(i) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func renderCSV(w io.Writer, out *Output) error {
	cw := csv.NewWriter(w)
	row := func(file, section string, line, offset int, kind, detail string) {
		_ = cw.Write([]string{file, section, itoa(line), itoa(offset), kind, detail})
	}
	_ = cw.Write([]string{"file", "section", "line", "offset", "kind", "detail"})
	for _, f := range out.Files {
		if f.Error != "" {
			row(f.Path, "error", 0, 0, "fatal", f.Error)
		}
		if h := f.Header; h != nil {
			row(f.Path, "header", 0, 0, "file_function", h.FileFunction)
			row(f.Path, "header", 0, 0, "layer", h.Layer)
		}
		if fi := f.Format; fi != nil {
			row(f.Path, "format", 0, 0, "format", fi.Description)
			row(f.Path, "format", 0, 0, "units", fi.Units)
		}
		for _, a := range f.Apertures {
			row(f.Path, "aperture", a.Line, 0, a.Type, a.Size)
		}
		for _, c := range f.Commands {
			row(f.Path, "command", c.Line, c.Offset, c.Kind, c.Raw)
		}
		for _, c := range f.GraphicsState {
			row(f.Path, "graphics_state", c.Line, c.Offset, c.Kind, c.Raw)
		}
		for _, c := range f.Transformations {
			row(f.Path, "transformation", c.Line, c.Offset, c.Kind, c.Raw)
		}
		for _, o := range f.Operations {
			row(f.Path, "operation", o.Line, o.Offset, o.Kind, operationDetail(o))
		}
		for _, r := range f.Regions {
			row(f.Path, "region", r.StartLine, 0, r.Polarity,
				fmt.Sprintf("contours=%d vertices=%d area=%s", r.Contours, r.Vertices, ftoa(r.Area)))
		}
		for _, b := range f.Blocks {
			row(f.Path, "block", b.OpenLine, 0, "D"+itoa(b.Number),
				fmt.Sprintf("operations=%d nested=%d cyclic=%t", b.Operations, b.Nested, b.Cyclic))
		}
		for _, s := range f.StepRepeats {
			row(f.Path, "step_repeat", s.OpenLine, 0, "SR",
				fmt.Sprintf("%dx%d step %sx%s", s.NX, s.NY, ftoa(s.DX), ftoa(s.DY)))
		}
		for _, a := range f.Attributes {
			row(f.Path, "attribute", a.Line, 0, a.Scope, a.Name+"="+strings.Join(a.Values, ","))
		}
		for _, m := range f.Macros {
			row(f.Path, "macro", m.Line, 0, m.Name, strings.Join(m.Statements, "; "))
		}
		for _, e := range f.ParseErrors {
			row(f.Path, "parse_error", e.Line, 0, e.Kind, e.Message)
		}
		for _, fd := range f.Findings {
			row(f.Path, "finding", fd.Line, 0, string(fd.Kind), fd.Severity.String()+": "+fd.Message)
		}
		if s := f.Statistics; s != nil {
			for _, c := range s.CommandKinds {
				row(f.Path, "statistics", 0, 0, c.Name, itoa(c.Count))
			}
		}
		if fc := f.FabCost; fc != nil {
			row(f.Path, "fab_cost", 0, 0, "complexity_score", ftoa(fc.ComplexityScore))
		}
	}
	if out.Board != nil && out.Board.Combined != nil {
		row("", "fab_cost", 0, 0, "board_complexity_score", ftoa(out.Board.Combined.ComplexityScore))
	}
	cw.Flush()
	return cw.Error()
}

func operationDetail(o OperationRow) string {
	s := fmt.Sprintf("(%s,%s)->(%s,%s)", ftoa(o.StartX), ftoa(o.StartY), ftoa(o.X), ftoa(o.Y))
	if o.Aperture > 0 {
		s += " D" + itoa(o.Aperture)
	}
	s += " " + o.Interpolation + " " + o.Polarity
	if o.Region >= 0 {
		s += " region=" + itoa(o.Region)
	}
	return s
}

func getColor(noColor bool, attributes ...color.Attribute) *color.Color {
	if noColor {
		c := color.New()
		c.DisableColor()
		return c
	}
	c := color.New(attributes...)
	c.EnableColor()
	return c
}

type human struct {
	w     io.Writer
	opt   Options
	title *color.Color
	head  *color.Color
	value *color.Color
	warn  *color.Color
	fail  *color.Color
	succ  *color.Color
	gray  *color.Color
	err   error
}

func newHuman(w io.Writer, opt Options) *human {
	noColor := !opt.Color
	return &human{
		w:     w,
		opt:   opt,
		title: getColor(noColor, color.Bold),
		head:  getColor(noColor, color.FgYellow),
		value: getColor(noColor, color.FgCyan),
		warn:  getColor(noColor, color.FgYellow),
		fail:  getColor(noColor, color.FgRed),
		succ:  getColor(noColor, color.FgGreen),
		gray:  getColor(noColor, color.Faint),
	}
}

func (h *human) printf(c *color.Color, format string, a ...interface{}) {
	if h.err != nil {
		return
	}
	_, h.err = c.Fprintf(h.w, format, a...)
}

func (h *human) section(name string, n int) {
	h.printf(h.head, "\n%s", name)
	h.printf(h.gray, " (%d)\n", n)
}

// table writes tab separated rows aligned in columns.
func (h *human) table(rows [][]string) {
	if h.err != nil {
		return
	}
	tw := tabwriter.NewWriter(h.w, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		if _, err := fmt.Fprintln(tw, "  "+strings.Join(r, "\t")); err != nil {
			h.err = err
			return
		}
	}
	h.err = tw.Flush()
}

func (h *human) located(line, offset int, rest ...string) []string {
	var r []string
	if h.opt.LineNumbers {
		r = append(r, itoa(line))
	}
	if h.opt.Offsets {
		r = append(r, "@"+itoa(offset))
	}
	return append(r, rest...)
}

func (h *human) render(out *Output) error {
	for i, f := range out.Files {
		if i > 0 {
			h.printf(h.gray, "\n")
		}
		h.file(f)
	}
	if out.Board != nil {
		h.board(out.Board)
	}
	return h.err
}

func (h *human) commands(name string, rows []CommandRow) {
	if len(rows) == 0 {
		return
	}
	h.section(name, len(rows))
	t := make([][]string, 0, len(rows))
	for _, c := range rows {
		r := h.located(c.Line, c.Offset, c.Code, c.Kind)
		if h.opt.Raw {
			r = append(r, c.Raw)
		}
		if c.Deprecated {
			r = append(r, "deprecated")
		}
		t = append(t, r)
	}
	h.table(t)
}

func (h *human) file(f *FileReport) {
	h.printf(h.title, "%s\n", f.Path)
	if f.Error != "" {
		h.printf(h.fail, "  fatal: %s\n", f.Error)
	}
	if hd := f.Header; hd != nil {
		h.section("File", 1)
		h.table([][]string{
			{"file function", orNone(hd.FileFunction)},
			{"layer", orNone(hd.Layer)},
			{"commands", itoa(hd.Commands)},
			{"end of file", lineOrNone(hd.EndOfFileLine)},
		})
	}
	if fi := f.Format; fi != nil {
		h.section("Format", 1)
		h.table([][]string{
			{"coordinates", fi.Description},
			{"units", fi.Units},
		})
	}
	if len(f.Apertures) > 0 {
		h.section("Apertures", len(f.Apertures))
		t := [][]string{}
		for _, a := range f.Apertures {
			r := h.located(a.Line, 0, "D"+itoa(a.Number), a.Type, a.Size, "uses="+itoa(a.Uses))
			if a.ShapeError != "" {
				r = append(r, "shape error: "+a.ShapeError)
			}
			if len(a.Attributes) > 0 {
				r = append(r, strings.Join(a.Attributes, " "))
			}
			t = append(t, r)
		}
		h.table(t)
	}
	h.commands("Commands", f.Commands)
	h.commands("Graphics state", f.GraphicsState)
	h.commands("Transformations", f.Transformations)
	if len(f.Operations) > 0 {
		h.section("Graphics", len(f.Operations))
		t := [][]string{}
		for _, o := range f.Operations {
			t = append(t, h.located(o.Line, o.Offset, o.Kind, operationDetail(o)))
		}
		h.table(t)
	}
	if len(f.Regions) > 0 {
		h.section("Regions", len(f.Regions))
		t := [][]string{}
		for _, r := range f.Regions {
			t = append(t, h.located(r.StartLine, 0, "#"+itoa(r.ID), r.Polarity,
				itoa(r.Contours)+" contour(s)", itoa(r.Vertices)+" vertices", "area="+ftoa(r.Area), "end="+lineOrNone(r.EndLine)))
		}
		h.table(t)
	}
	if len(f.Blocks) > 0 {
		h.section("Block apertures", len(f.Blocks))
		t := [][]string{}
		for _, b := range f.Blocks {
			r := h.located(b.OpenLine, 0, "D"+itoa(b.Number), itoa(b.Operations)+" operation(s)",
				itoa(b.Nested)+" nested", "close="+lineOrNone(b.CloseLine))
			if b.Cyclic {
				r = append(r, "cyclic")
			}
			t = append(t, r)
		}
		h.table(t)
	}
	if len(f.StepRepeats) > 0 {
		h.section("Step and repeat", len(f.StepRepeats))
		t := [][]string{}
		for _, s := range f.StepRepeats {
			r := h.located(s.OpenLine, 0, fmt.Sprintf("%dx%d", s.NX, s.NY), "step "+ftoa(s.DX)+"x"+ftoa(s.DY),
				itoa(s.Operations)+" operation(s)", "close="+lineOrNone(s.CloseLine))
			if s.Invalid {
				r = append(r, "invalid count")
			}
			t = append(t, r)
		}
		h.table(t)
	}
	if len(f.Attributes) > 0 {
		h.section("Attributes", len(f.Attributes))
		t := [][]string{}
		for _, a := range f.Attributes {
			t = append(t, h.located(a.Line, 0, a.Scope, a.Name, strings.Join(a.Values, ",")))
		}
		h.table(t)
	}
	if len(f.Macros) > 0 {
		h.section("Macros", len(f.Macros))
		for _, m := range f.Macros {
			h.printf(h.value, "  %s", m.Name)
			h.printf(h.gray, " line %d, %d primitive(s)\n", m.Line, m.Primitives)
			for _, s := range m.Statements {
				h.printf(h.gray, "    %s\n", s)
			}
		}
	}
	if len(f.ParseErrors) > 0 {
		h.section("Parse errors", len(f.ParseErrors))
		for _, e := range f.ParseErrors {
			c := h.warn
			if e.Fatal {
				c = h.fail
			}
			h.printf(c, "  %s\n", e.Message)
		}
	}
	if f.Findings != nil {
		h.findings(f)
	}
	if f.Statistics != nil {
		h.statistics(f.Statistics)
	}
	if f.FabCost != nil {
		h.fabCost("Fabrication cost", f.FabCost)
	}
}

func (h *human) findings(f *FileReport) {
	h.section("Validation", len(f.Findings))
	if len(f.Findings) == 0 {
		h.printf(h.succ, "  no problems found\n")
		return
	}
	for _, fd := range f.Findings {
		c := h.warn
		if fd.Severity == validator.SeverityError {
			c = h.fail
		}
		h.printf(c, "  %s\n", fd.String())
	}
}

func (h *human) statistics(s *statistics.Report) {
	h.section("Statistics", s.Commands)
	t := [][]string{
		{"operations", itoa(s.Operations) + " (" + itoa(s.Captured) + " in file)"},
		{"apertures", itoa(s.Apertures)},
		{"macros", itoa(s.Macros)},
		{"regions", itoa(s.Regions)},
		{"blocks", itoa(s.Blocks)},
		{"step-repeats", itoa(s.StepRepeats)},
		{"attributes", itoa(s.Attributes)},
		{"deprecated", itoa(s.Deprecated) + " " + strings.Join(s.DeprecatedCodes, " ")},
	}
	for _, c := range s.CommandKinds {
		t = append(t, []string{c.Name, itoa(c.Count)})
	}
	h.table(t)
}

func (h *human) fabCost(title string, r *fabcost.Report) {
	h.section(title, r.Operations)
	t := [][]string{
		{"dimensions", r.Dimensions.String()},
		{"layers", itoa(r.LayerCount)},
		{"vias", itoa(r.ViaCount)},
		{"slots", itoa(r.SlotCount)},
		{"aperture diversity", itoa(r.ApertureDiversity)},
		{"min trace width", fmt.Sprintf("%.4f mm", r.MinTraceWidth)},
		{"min aperture", fmt.Sprintf("%.4f mm", r.MinApertureSize)},
		{"copper coverage", fmt.Sprintf("%.1f%%", r.CopperCoverage*100)},
	}
	for _, f := range r.Factors {
		t = append(t, []string{f.Name, fmt.Sprintf("%.3f x %.2f = %.3f", f.Normalized, f.Weight, f.Contribution)})
	}
	h.table(t)
	h.printf(h.title, "  complexity score: ")
	h.printf(h.value, "%.1f / %.0f\n", r.ComplexityScore, fabcost.MaxScore)
}

func (h *human) board(b *fabcost.Board) {
	if b.Combined == nil {
		return
	}
	h.printf(h.title, "\nboard (%d layers)\n", len(b.Layers))
	h.fabCost("Combined fabrication cost", b.Combined)
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func lineOrNone(line int) string {
	if line <= 0 {
		return "-"
	}
	return itoa(line)
}
