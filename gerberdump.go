// Package gerberdump analyzes Gerber (RS-274X / X2) files.
//
// Parse builds a gerberdatamodel.Document from the raw file. The validator,
// the fabrication cost analyzer and the statistics collector are read-only
// passes over the finished document.
package gerberdump

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/wyre-innovations/gerberdump/fabcost"
	"github.com/wyre-innovations/gerberdump/gerberdatamodel"
	"github.com/wyre-innovations/gerberdump/gerbererrors"
	"github.com/wyre-innovations/gerberdump/gerberlexer"
	"github.com/wyre-innovations/gerberdump/gerberstates"
	"github.com/wyre-innovations/gerberdump/gerbparser"
	"github.com/wyre-innovations/gerberdump/statistics"
	"github.com/wyre-innovations/gerberdump/validator"
)

// stream is the lexer with one command of lookahead, used to gather macro bodies.
type stream struct {
	lx     *gerberlexer.Lexer
	peeked *gerberlexer.RawCommand
}

func (s *stream) next() (gerberlexer.RawCommand, error) {
	if s.peeked != nil {
		rc := *s.peeked
		s.peeked = nil
		return rc, nil
	}
	return s.lx.Next()
}

func (s *stream) unread(rc gerberlexer.RawCommand) {
	s.peeked = &rc
}

func asGerberError(err error, rc gerberlexer.RawCommand) *gerbererrors.Error {
	var e *gerbererrors.Error
	if errors.As(err, &e) {
		return e
	}
	e = gerbererrors.Malformed(gerbererrors.MalformedSyntax, rc.Line, rc.Offset, "")
	e.Cause = err
	return e
}

func isMacroHead(rc gerberlexer.RawCommand) bool {
	return rc.Extended && rc.Index == 0 && strings.HasPrefix(rc.Text, "AM")
}

// readCommand parses the next command, gathering a whole macro block when needed.
func (s *stream) readCommand(m *gerberstates.Machine) (gerbparser.Command, gerberlexer.RawCommand, error) {
	rc, err := s.next()
	if err != nil {
		return nil, rc, err
	}
	if !isMacroHead(rc) {
		cmd, err := gerbparser.ParseCommand(rc, m.Format())
		return cmd, rc, err
	}
	var body []gerberlexer.RawCommand
	for {
		sub, err := s.next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, rc, err
		}
		if sub.Group != rc.Group {
			s.unread(sub)
			break
		}
		body = append(body, sub)
	}
	am, err := gerbparser.ParseMacro(rc, body)
	if err != nil {
		return nil, rc, err
	}
	return am, rc, nil
}

// Parse interprets a whole Gerber file. It returns the document, the
// recoverable findings in source order and the fatal error which stopped the
// parse, if any. The document is returned in every case; after a fatal error
// it holds what was interpreted before it.
func Parse(src []byte) (*gerberdatamodel.Document, gerbererrors.List, error) {
	s := &stream{lx: gerberlexer.New(src)}
	m := gerberstates.NewMachine()
	var findings gerbererrors.List
	var fatal *gerbererrors.Error

	for fatal == nil {
		cmd, rc, err := s.readCommand(m)
		if err == io.EOF {
			break
		}
		if rc.Unterminated {
			findings = append(findings, gerbererrors.Malformed(gerbererrors.MalformedSyntax, rc.Line, rc.Offset,
				"command "+rc.Text+" is not terminated by '*'"))
		}
		if err != nil {
			e := asGerberError(err, rc)
			if e.Fatal || e.Class == gerbererrors.SyntaxError {
				fatal = e
				break
			}
			findings = append(findings, e)
			continue
		}
		_, err = m.Apply(cmd)
		if err != nil {
			e := asGerberError(err, rc)
			if e.Fatal {
				fatal = e
				break
			}
			findings = append(findings, e)
		}
	}

	doc := m.Finish()
	glog.V(1).Infof("parsed %d commands, %d operations, %d findings", len(doc.Commands), len(doc.Operations), len(findings))
	if fatal != nil {
		glog.V(1).Infof("parse stopped: %v", fatal)
		return doc, findings, fatal
	}
	return doc, findings, nil
}

// Validate runs the rule checks over a parsed document.
func Validate(doc *gerberdatamodel.Document) []validator.Finding {
	return validator.Validate(doc)
}

// AnalyzeFabricationCost derives the manufacturing complexity metrics.
func AnalyzeFabricationCost(doc *gerberdatamodel.Document, w fabcost.Weights) *fabcost.Report {
	return fabcost.Analyze(doc, w)
}

func CollectStatistics(doc *gerberdatamodel.Document) *statistics.Report {
	return statistics.Collect(doc)
}

// Analysis gathers the results of the read-only passes over one document.
type Analysis struct {
	Findings   []validator.Finding
	Cost       *fabcost.Report
	Statistics *statistics.Report
}

// Analyze runs the validator, the cost analyzer and the statistics collector
// concurrently. None of them modifies doc.
func Analyze(ctx context.Context, doc *gerberdatamodel.Document, w fabcost.Weights) (*Analysis, error) {
	a := &Analysis{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Findings = validator.Validate(doc)
		return ctx.Err()
	})
	g.Go(func() error {
		a.Cost = fabcost.Analyze(doc, w)
		return ctx.Err()
	})
	g.Go(func() error {
		a.Statistics = statistics.Collect(doc)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return a, nil
}
