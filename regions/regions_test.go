package regions

import (
	"testing"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/xy"
)

func TestRegion_IsRegionOpened(t *testing.T) {
	regPtr := NewRegion(0, 0, 100, gbt.PolTypeDark)
	a, err := regPtr.IsRegionOpened()
	if err != nil {
		t.Fatal("unexpected error")
	}
	if !a {
		t.Fatal("region must be opened")
	}
	if err := regPtr.Close(120); err != nil {
		t.Fatal(err)
	}
	if a, _ = regPtr.IsRegionOpened(); a {
		t.Fatal("region is not opened")
	}

	regPtr = nil
	a, err = regPtr.IsRegionOpened()
	if err == nil {
		t.Fatal("must be an error")
	}
	if a {
		t.Fatal("region is not opened")
	}
}

func TestRegion_Contours(t *testing.T) {
	r := NewRegion(1, 0, 10, gbt.PolTypeDark)
	r.MoveTo(xy.Point{X: 0, Y: 0})
	r.LineTo(xy.Point{X: 0, Y: 0}, xy.Point{X: 2, Y: 0})
	r.LineTo(xy.Point{X: 2, Y: 0}, xy.Point{X: 2, Y: 2})
	r.LineTo(xy.Point{X: 2, Y: 2}, xy.Point{X: 0, Y: 2})
	r.LineTo(xy.Point{X: 0, Y: 2}, xy.Point{X: 0, Y: 0})
	// second contour without a preceding move
	r.MoveTo(xy.Point{X: 5, Y: 5})
	r.LineTo(xy.Point{X: 5, Y: 5}, xy.Point{X: 6, Y: 5})
	r.LineTo(xy.Point{X: 6, Y: 5}, xy.Point{X: 6, Y: 6})
	if err := r.Close(20); err != nil {
		t.Fatal(err)
	}
	if len(r.Contours) != 2 {
		t.Fatalf("got %d contours", len(r.Contours))
	}
	if r.NumberOfXY() != 8 {
		t.Fatalf("got %d vertices", r.NumberOfXY())
	}
	if a := r.Area(); a != 4.5 {
		t.Fatalf("area = %v", a)
	}
	bb, ok := r.BoundingBox()
	if !ok || bb.Min.X != 0 || bb.Max.X != 6 || bb.Max.Y != 6 {
		t.Fatalf("bounding box %v", bb)
	}
}

func TestRegion_LineToWithoutMove(t *testing.T) {
	r := NewRegion(2, 0, 1, gbt.PolTypeClear)
	r.LineTo(xy.Point{X: 1, Y: 1}, xy.Point{X: 3, Y: 1})
	r.LineTo(xy.Point{X: 3, Y: 1}, xy.Point{X: 3, Y: 3})
	_ = r.Close(2)
	if len(r.Contours) != 1 || len(r.Contours[0]) != 3 {
		t.Fatalf("contours %v", r.Contours)
	}
	if ContourArea(r.Contours[0]) != 2 {
		t.Fatalf("area %v", ContourArea(r.Contours[0]))
	}
}
