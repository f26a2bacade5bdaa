package regions

import (
	"errors"
	"math"
	"strconv"

	"github.com/akavel/polyclip-go"

	gbt "github.com/wyre-innovations/gerberdump/gerberbasetypes"
	"github.com/wyre-innovations/gerberdump/xy"
)

/*####################  regions ##################################
 */
type Region struct {
	ID              int              `json:"id"`
	Scope           int              `json:"scope"`
	Polarity        gbt.PolType      `json:"polarity"`
	Contours        polyclip.Polygon `json:"-"`
	G36StringNumber int              `json:"start_line"` // line of the G36 command
	G37StringNumber int              `json:"end_line"`   // line of the G37 command, -1 while open
	current         polyclip.Contour
}

var ErrNilRegion = errors.New("bad region referenced (by nil ptr)")

// creates and initialises a region object
func NewRegion(id, scope, strNum int, pol gbt.PolType) *Region {
	return &Region{
		ID:              id,
		Scope:           scope,
		Polarity:        pol,
		G36StringNumber: strNum,
		G37StringNumber: -1,
	}
}

func (region *Region) String() string {
	if region == nil {
		return "<nil>"
	}
	return "region #" + strconv.Itoa(region.ID) +
		": " + strconv.Itoa(len(region.Contours)) + " contour(s), " +
		strconv.Itoa(region.NumberOfXY()) + " vertices, G36 at line " +
		strconv.Itoa(region.G36StringNumber) + ", G37 at line " + strconv.Itoa(region.G37StringNumber)
}

// MoveTo finishes the current contour and starts a new one at p.
func (region *Region) MoveTo(p xy.Point) {
	region.flush()
	region.current = polyclip.Contour{{X: p.X, Y: p.Y}}
}

// LineTo adds a vertex to the current contour. A contour implicitly
// starts at from when no MoveTo preceded it.
func (region *Region) LineTo(from, p xy.Point) {
	if len(region.current) == 0 {
		region.current.Add(polyclip.Point{X: from.X, Y: from.Y})
	}
	region.current.Add(polyclip.Point{X: p.X, Y: p.Y})
}

func (region *Region) flush() {
	if len(region.current) > 1 {
		region.Contours.Add(region.current)
	}
	region.current = nil
}

// closes the region
func (region *Region) Close(strnum int) error {
	if region == nil {
		return ErrNilRegion
	}
	region.flush()
	region.G37StringNumber = strnum
	return nil
}

// returns true if region is opened
func (region *Region) IsRegionOpened() (bool, error) {
	if region == nil {
		return false, ErrNilRegion
	}
	return region.G37StringNumber == -1, nil
}

// NumberOfXY returns the number of vertices of all contours.
func (region *Region) NumberOfXY() int {
	return region.Contours.NumVertices() + len(region.current)
}

// Area returns the filled area, each contour counted on its own.
func (region *Region) Area() float64 {
	a := 0.0
	for _, c := range region.Contours {
		a += math.Abs(ContourArea(c))
	}
	return a
}

// BoundingBox returns the bounds of all contours; ok is false for an empty region.
func (region *Region) BoundingBox() (polyclip.Rectangle, bool) {
	if region.Contours.NumVertices() == 0 {
		return polyclip.Rectangle{}, false
	}
	return region.Contours.BoundingBox(), true
}

// ContourArea returns the signed area of a contour, positive when counterclockwise.
func ContourArea(c polyclip.Contour) float64 {
	if len(c) < 3 {
		return 0
	}
	a := 0.0
	for i := range c {
		j := (i + 1) % len(c)
		a += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return a / 2
}
