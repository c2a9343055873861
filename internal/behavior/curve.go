package behavior

import (
	"errors"
	"fmt"
	"time"
)

// Point is a node of a Curve.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Curve is a piecewise-linear function of one variable. Inputs outside the
// node range are clamped to the first or last node. The zero Curve is
// identically zero.
type Curve struct {
	points []Point
}

// ErrCurveOrder is returned for nodes whose X values are not strictly
// increasing.
var ErrCurveOrder = errors.New("behavior: curve X values must be strictly increasing")

// NewCurve builds a curve from nodes ordered by X.
func NewCurve(points ...Point) (Curve, error) {
	for i := 1; i < len(points); i++ {
		if points[i].X <= points[i-1].X {
			return Curve{}, fmt.Errorf("%w: node %d (x=%g) after x=%g",
				ErrCurveOrder, i, points[i].X, points[i-1].X)
		}
	}
	return Curve{points: append([]Point(nil), points...)}, nil
}

// MustCurve is like NewCurve but panics on error.
func MustCurve(points ...Point) Curve {
	c, err := NewCurve(points...)
	if err != nil {
		panic(err)
	}
	return c
}

// Empty reports whether the curve has no nodes.
func (c Curve) Empty() bool { return len(c.points) == 0 }

// Points returns a copy of the nodes.
func (c Curve) Points() []Point { return append([]Point(nil), c.points...) }

// Eval returns the curve's value at x.
func (c Curve) Eval(x float64) float64 {
	n := len(c.points)
	switch {
	case n == 0:
		return 0
	case x <= c.points[0].X:
		return c.points[0].Y
	case x >= c.points[n-1].X:
		return c.points[n-1].Y
	}
	for i := 1; i < n; i++ {
		p1 := c.points[i]
		if x > p1.X {
			continue
		}
		p0 := c.points[i-1]
		t := (x - p0.X) / (p1.X - p0.X)
		return p0.Y + t*(p1.Y-p0.Y)
	}
	return c.points[n-1].Y
}

// EvalDuration evaluates the curve with x in seconds.
func (c Curve) EvalDuration(d time.Duration) float64 {
	return c.Eval(d.Seconds())
}
