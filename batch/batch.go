// Package batch analyzes many files with a bounded pool of workers.
// Every file is parsed in isolation; results keep the input order.
package batch

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/wyre-innovations/gerberdump"
	"github.com/wyre-innovations/gerberdump/fabcost"
	"github.com/wyre-innovations/gerberdump/gerberdatamodel"
	"github.com/wyre-innovations/gerberdump/gerbererrors"
)

// Result is the outcome of one file. Err is set when the file could not be
// read or its parse stopped on a fatal error; Document then holds what was
// interpreted before.
type Result struct {
	Path     string
	Document *gerberdatamodel.Document
	Parse    gerbererrors.List
	Analysis *gerberdump.Analysis
	Err      error
}

// Failed reports whether the file hit a fatal error.
func (r *Result) Failed() bool {
	return r.Err != nil
}

type Options struct {
	Workers int
	Weights fabcost.Weights
}

// Run processes paths concurrently. A failing file never stops the batch:
// its error is reported in its Result. Only cancellation of ctx is returned.
func Run(ctx context.Context, fs afero.Fs, paths []string, opt Options) ([]*Result, error) {
	results := make([]*Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if opt.Workers > 0 {
		g.SetLimit(opt.Workers)
	} else {
		g.SetLimit(1)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = processFile(ctx, fs, path, opt.Weights)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func processFile(ctx context.Context, fs afero.Fs, path string, w fabcost.Weights) *Result {
	r := &Result{Path: path}
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		r.Err = fmt.Errorf("reading %s: %w", path, err)
		glog.Errorf("%v", r.Err)
		return r
	}
	doc, findings, err := gerberdump.Parse(src)
	r.Document = doc
	r.Parse = findings
	if err != nil {
		r.Err = fmt.Errorf("%s: %w", path, err)
		glog.Errorf("%v", r.Err)
	}
	a, err := gerberdump.Analyze(ctx, doc, w)
	if err != nil {
		if r.Err == nil {
			r.Err = err
		}
		return r
	}
	r.Analysis = a
	glog.V(1).Infof("%s: %d commands, %d operations, %d parse findings, %d validation findings",
		path, len(doc.Commands), len(doc.Operations), len(findings), len(a.Findings))
	return r
}

// Layers returns the parsed documents for a combined board analysis.
func Layers(results []*Result) []fabcost.Layer {
	var out []fabcost.Layer
	for _, r := range results {
		if r != nil && r.Document != nil {
			out = append(out, fabcost.Layer{Name: r.Path, Document: r.Document})
		}
	}
	return out
}
