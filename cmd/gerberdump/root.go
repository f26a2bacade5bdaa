package main

import (
	"context"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wyre-innovations/gerberdump/batch"
	"github.com/wyre-innovations/gerberdump/configurator"
	"github.com/wyre-innovations/gerberdump/fabcost"
	"github.com/wyre-innovations/gerberdump/filefinder"
	"github.com/wyre-innovations/gerberdump/report"
	"github.com/wyre-innovations/gerberdump/validator"
)

type options struct {
	sections report.Sections
	filter   report.Filter

	verbose       bool
	quiet         bool
	lineNumbers   bool
	offsets       bool
	raw           bool
	recursive     bool
	includeHidden bool
	configFile    string
	dumpConfig    bool
}

// addGlogFlags exposes the glog flags. Its "v" flag is left out, since -v is
// the verbose switch here.
func addGlogFlags(flags *pflag.FlagSet) {
	goflag.CommandLine.VisitAll(func(f *goflag.Flag) {
		if f.Name == "v" || flags.Lookup(f.Name) != nil {
			return
		}
		flags.AddFlag(pflag.PFlagFromGoFlag(f))
	})
}

func newRootCmd(out io.Writer, fs afero.Fs) *cobra.Command {
	opt := &options{}
	v := viper.New()
	v.SetFs(fs)
	configurator.SetDefaults(v)

	cmd := &cobra.Command{
		Use:   "gerberdump [flags] FILE|DIR",
		Short: "Analyze Gerber RS-274X / X2 files",
		Long: "gerberdump interprets Gerber files and reports their apertures, commands, " +
			"graphics, attributes and validation findings, or estimates their fabrication cost.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError("expected exactly one FILE or DIR argument, got %d\n%s", len(args), cmd.UsageString())
			}
			return analyze(cmd.Context(), out, fs, v, opt, args[0])
		},
	}
	cmd.SetOut(out)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError("%v\n%s", err, c.UsageString())
	})

	flags := cmd.Flags()
	s := &opt.sections
	flags.BoolVarP(&s.FileHeaders, "file-headers", "H", false, "show file headers (file function, layer)")
	flags.BoolVarP(&s.Apertures, "apertures", "a", false, "show the aperture table")
	flags.BoolVarP(&s.Commands, "commands", "c", false, "show every command")
	flags.BoolVarP(&s.Graphics, "graphics", "g", false, "show the resolved graphics operations")
	flags.BoolVarP(&s.Regions, "regions", "r", false, "show regions")
	flags.BoolVarP(&s.Blocks, "blocks", "b", false, "show block apertures")
	flags.BoolVarP(&s.StepRepeat, "step-repeat", "s", false, "show step and repeat blocks")
	flags.BoolVarP(&s.Attributes, "attributes", "x", false, "show attributes")
	flags.BoolVarP(&s.X2, "x2", "2", false, "X2 analysis: file headers, apertures, attributes and format")
	flags.BoolVarP(&s.Macros, "macros", "m", false, "show aperture macros")
	flags.BoolVarP(&s.Format, "format", "f", false, "show the coordinate format and units")
	flags.BoolVar(&s.GraphicsState, "graphics-state", false, "show graphics state changes")
	flags.BoolVarP(&s.Transformations, "transformations", "t", false, "show polarity, mirror, rotation and scale commands")
	flags.BoolVar(&s.Validate, "validate", false, "run the validation rules")
	flags.BoolVar(&s.Stats, "stats", false, "show statistics")
	flags.BoolVar(&s.FabCost, "fab-cost", false, "show the fabrication cost analysis")
	flags.BoolVar(&s.FabCost, "manufacturing", false, "alias of --fab-cost")

	flags.StringP("output-format", "o", "human", "output format: human, json, xml, csv, raw or yaml")
	flags.IntP("workers", "j", 0, "number of files analyzed concurrently (default: number of CPUs)")
	flags.StringSlice("pattern", nil, "file name pattern for directory input (repeatable)")

	flags.IntSliceVar(&opt.filter.Apertures, "aperture", nil, "only show items of this aperture number (repeatable)")
	flags.StringVar(&opt.filter.FileFunction, "file-function", "", "only show files whose .FileFunction contains this text")
	flags.StringVar(&opt.filter.Layer, "layer", "", "only show files of this layer (Top, Bot, L2...)")
	flags.BoolVar(&opt.filter.DeprecatedOnly, "deprecated", false, "only show deprecated constructs")
	flags.IntVar(&opt.filter.Limit, "limit", 0, "show at most N items per list (0: no limit)")

	flags.BoolVarP(&opt.verbose, "verbose", "v", false, "verbose logging")
	flags.BoolVarP(&opt.quiet, "quiet", "q", false, "log errors only")
	flags.BoolVarP(&opt.lineNumbers, "line-numbers", "n", false, "prefix items with their line number")
	flags.BoolVar(&opt.offsets, "offsets", false, "prefix items with their byte offset")
	flags.BoolVar(&opt.raw, "raw", false, "show the source text of commands")
	flags.BoolVarP(&opt.recursive, "recursive", "R", false, "descend into subdirectories")
	flags.BoolVar(&opt.includeHidden, "include-hidden", false, "include hidden files and directories")
	flags.StringVar(&opt.configFile, "config", "", "configuration file")
	flags.BoolVar(&opt.dumpConfig, "dump-config", false, "print the effective configuration and exit")

	_ = v.BindPFlag(configurator.CfgOutputFormat, flags.Lookup("output-format"))
	_ = v.BindPFlag(configurator.CfgBatchWorkers, flags.Lookup("workers"))
	_ = v.BindPFlag(configurator.CfgDiscoveryPatterns, flags.Lookup("pattern"))

	addGlogFlags(cmd.PersistentFlags())
	return cmd
}

func setupLogging(opt *options) {
	_ = goflag.Set("logtostderr", "true")
	switch {
	case opt.quiet:
		_ = goflag.Set("stderrthreshold", "ERROR")
		_ = goflag.Set("v", "0")
	case opt.verbose:
		_ = goflag.Set("v", "2")
	}
}

func useColor(out io.Writer, setting string) bool {
	switch strings.ToLower(setting) {
	case "always", "true", "yes":
		return true
	case "never", "false", "no":
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func analyze(ctx context.Context, out io.Writer, fs afero.Fs, v *viper.Viper, opt *options, input string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	setupLogging(opt)

	if err := configurator.ProcessConfigFile(v, opt.configFile); err != nil {
		return usageError("%v", err)
	}
	if opt.dumpConfig {
		configurator.DiagnosticAllCfgPrint(v, out)
		return nil
	}
	format, err := report.ParseFormat(v.GetString(configurator.CfgOutputFormat))
	if err != nil {
		return usageError("%v", err)
	}
	weights, err := configurator.FabWeights(v)
	if err != nil {
		glog.Warningf("%v, using the default weights", err)
	}

	sections, defaultFab := opt.sections.Resolve()
	if format == report.FormatRaw {
		sections.Commands = true
	}
	glog.V(1).Infof("sections %+v (default mode: %t)", sections, defaultFab)

	paths, err := filefinder.Find(fs, input, filefinder.Options{
		Recursive:     opt.recursive,
		IncludeHidden: opt.includeHidden,
		Patterns:      configurator.Patterns(v),
	})
	if err != nil {
		return usageError("%v", err)
	}
	if len(paths) == 0 {
		return &ExitError{Code: exitProblems, Message: fmt.Sprintf("no Gerber files found in %s", input)}
	}

	results, err := batch.Run(ctx, fs, paths, batch.Options{
		Workers: configurator.BatchWorkers(v),
		Weights: weights,
	})
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", input, err)
	}

	output := &report.Output{}
	var accepted []*batch.Result
	problems := 0
	for _, r := range results {
		rep, ok := report.Build(r, sections, opt.filter)
		if !ok {
			continue
		}
		accepted = append(accepted, r)
		output.Files = append(output.Files, rep)
		if r.Failed() {
			problems++
		} else if sections.Validate && r.Analysis != nil && validator.HasErrors(r.Analysis.Findings) {
			problems++
		}
	}
	if sections.FabCost && len(accepted) > 1 {
		output.Board = fabcost.AnalyzeLayers(batch.Layers(accepted), weights)
	}

	err = report.Render(out, output, report.Options{
		Format:      format,
		LineNumbers: opt.lineNumbers,
		Offsets:     opt.offsets,
		Raw:         opt.raw,
		Color:       useColor(out, v.GetString(configurator.CfgOutputColor)),
	})
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if problems > 0 {
		return &ExitError{Code: exitProblems}
	}
	return nil
}
