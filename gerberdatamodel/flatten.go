package gerberdatamodel

import (
	"github.com/go-gl/mathgl/mgl64"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
)

// MaxBlockDepth limits the nesting of block flashes during expansion.
const MaxBlockDepth = 64

// placement maps body coordinates to file coordinates: p' = M*p + Off.
type placement struct {
	M      mgl64.Mat2
	Off    mgl64.Vec2
	Invert bool // clear polarity flash of a block
	Number int
}

var identity = placement{M: mgl64.Ident2()}

func (pl placement) apply(x, y float64) (float64, float64) {
	v := pl.M.Mul2x1(mgl64.Vec2{x, y}).Add(pl.Off)
	return v[0], v[1]
}

// shifted places a body copy at offset d of the current placement.
func (pl placement) shifted(d mgl64.Vec2, number int) placement {
	return placement{M: pl.M, Off: pl.M.Mul2x1(d).Add(pl.Off), Invert: pl.Invert, Number: number}
}

// ApertureTransform is the linear part of a flash under LM, LS and LR:
// mirroring first, then scaling, then rotation.
func ApertureTransform(m gbt.Mirror, scale, degrees float64) mgl64.Mat2 {
	mx, my := 1.0, 1.0
	switch m {
	case gbt.MirrorX:
		mx = -1
	case gbt.MirrorY:
		my = -1
	case gbt.MirrorXY:
		mx, my = -1, -1
	}
	if scale == 0 {
		scale = 1
	}
	mir := mgl64.Mat2{mx, 0, 0, my}
	s := mgl64.Mat2{scale, 0, 0, scale}
	return mgl64.Rotate2D(mgl64.DegToRad(degrees)).Mul2(s).Mul2(mir)
}

type flattener struct {
	doc      *Document
	out      []ResolvedOperation
	next     int
	visiting map[int]bool
}

func flatten(doc *Document) []ResolvedOperation {
	f := &flattener{doc: doc, next: 1, visiting: make(map[int]bool)}
	f.walk(RootScope, identity, 0)
	return f.out
}

func (f *flattener) walk(scope int, pl placement, depth int) {
	for _, it := range f.doc.Scopes[scope].Items {
		if it.Child >= 0 {
			child := f.doc.Scopes[it.Child]
			// block bodies are only reached through flashes
			if child.Kind != ScopeStepRepeat || child.SR == nil {
				continue
			}
			for _, d := range child.SR.Offsets() {
				f.walk(child.ID, pl.shifted(mgl64.Vec2{d.X, d.Y}, f.next), depth)
				f.next++
			}
			continue
		}
		op := f.doc.Captured[it.Op]
		if op.Kind == gbt.OpcodeD03_FLASH && !op.InRegion {
			if ap := f.doc.ApertureAt(op.Scope, op.Aperture); ap != nil && ap.Block >= 0 {
				f.expandBlock(ap, &op, pl, depth)
				continue
			}
		}
		f.out = append(f.out, transformed(op, pl))
	}
}

func (f *flattener) expandBlock(ap *Aperture, op *ResolvedOperation, pl placement, depth int) {
	body := f.doc.Scopes[ap.Block]
	if body.Cyclic || body.IsOpen() || depth >= MaxBlockDepth || f.visiting[body.ID] {
		return
	}
	x, y := pl.apply(op.X, op.Y)
	inner := placement{
		M:      pl.M.Mul2(ApertureTransform(op.Mirror, op.Scale, op.Rotation)),
		Off:    mgl64.Vec2{x, y},
		Invert: pl.Invert != (op.Polarity == gbt.PolTypeClear),
		Number: f.next,
	}
	f.next++
	f.visiting[body.ID] = true
	f.walk(body.ID, inner, depth+1)
	delete(f.visiting, body.ID)
}

func transformed(op ResolvedOperation, pl placement) ResolvedOperation {
	op.Placement = pl.Number
	if pl.Number == 0 {
		return op
	}
	op.X, op.Y = pl.apply(op.X, op.Y)
	op.StartX, op.StartY = pl.apply(op.StartX, op.StartY)
	ij := pl.M.Mul2x1(mgl64.Vec2{op.I, op.J})
	op.I, op.J = ij[0], ij[1]
	if pl.M.Det() < 0 {
		switch op.Interpolation {
		case gbt.IPModeCwC:
			op.Interpolation = gbt.IPModeCCwC
		case gbt.IPModeCCwC:
			op.Interpolation = gbt.IPModeCwC
		}
	}
	if pl.Invert {
		op.Polarity = op.Polarity.Invert()
	}
	return op
}
