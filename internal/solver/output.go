package solver

import (
	"fmt"
	"math"
	"sort"
)

// Epsilon is the absolute slack used when comparing solver outputs.
const Epsilon = 1e-10

// Value is one named output: a scalar (empty shape) or a dense row-major array.
type Value struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Output maps variable names to values. Both solvers return one.
type Output map[string]Value

// Scalar wraps a single number.
func Scalar(v float64) Value {
	return Value{Shape: []int{}, Data: []float64{v}}
}

// Vector wraps a 1-D series. The slice is copied.
func Vector(v []float64) Value {
	return Value{Shape: []int{len(v)}, Data: append([]float64(nil), v...)}
}

// Matrix flattens a rows x cols array.
func Matrix(m [][]float64) Value {
	rows := len(m)
	cols := 0
	if rows > 0 {
		cols = len(m[0])
	}
	data := make([]float64, 0, rows*cols)
	for _, row := range m {
		data = append(data, row...)
	}
	return Value{Shape: []int{rows, cols}, Data: data}
}

// Cube flattens a d0 x d1 x d2 array.
func Cube(c [][][]float64) Value {
	d0, d1, d2 := len(c), 0, 0
	if d0 > 0 {
		d1 = len(c[0])
		if d1 > 0 {
			d2 = len(c[0][0])
		}
	}
	data := make([]float64, 0, d0*d1*d2)
	for _, m := range c {
		for _, row := range m {
			data = append(data, row...)
		}
	}
	return Value{Shape: []int{d0, d1, d2}, Data: data}
}

// IsScalar reports whether v holds a single number.
func (v Value) IsScalar() bool {
	return len(v.Shape) == 0
}

// Float returns the scalar value, or the first element of an array.
func (v Value) Float() float64 {
	if len(v.Data) == 0 {
		return math.NaN()
	}
	return v.Data[0]
}

// At indexes a value with as many indices as it has dimensions.
func (v Value) At(idx ...int) float64 {
	if len(idx) != len(v.Shape) {
		panic(fmt.Sprintf("solver: %d indices for %d-d value", len(idx), len(v.Shape)))
	}
	off := 0
	for k, i := range idx {
		if i < 0 || i >= v.Shape[k] {
			panic(fmt.Sprintf("solver: index %d out of range [0,%d)", i, v.Shape[k]))
		}
		off = off*v.Shape[k] + i
	}
	return v.Data[off]
}

// Float returns a scalar output, or NaN when absent.
func (o Output) Float(name string) float64 {
	v, ok := o[name]
	if !ok {
		return math.NaN()
	}
	return v.Float()
}

// Names returns the output keys in sorted order.
func (o Output) Names() []string {
	names := make([]string, 0, len(o))
	for k := range o {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Difference describes one mismatch found by Compare.
type Difference struct {
	Name   string  `json:"name"`
	Reason string  `json:"reason"`
	MaxAbs float64 `json:"maxAbs"`
}

// Compare checks two outputs key by key. Arrays must agree in shape and
// elementwise within tol (relative to the magnitude of want when relative is
// set) plus Epsilon. Keys listed in skip are ignored.
func Compare(got, want Output, tol float64, relative bool, skip ...string) []Difference {
	ignored := make(map[string]bool, len(skip))
	for _, k := range skip {
		ignored[k] = true
	}

	var diffs []Difference
	for _, name := range want.Names() {
		if ignored[name] {
			continue
		}
		w := want[name]
		g, ok := got[name]
		if !ok {
			diffs = append(diffs, Difference{Name: name, Reason: "missing"})
			continue
		}
		if !sameShape(g.Shape, w.Shape) {
			diffs = append(diffs, Difference{Name: name, Reason: fmt.Sprintf("shape %v != %v", g.Shape, w.Shape)})
			continue
		}
		maxAbs := 0.0
		bad := false
		for i := range w.Data {
			d := math.Abs(g.Data[i] - w.Data[i])
			if math.IsNaN(d) {
				if math.IsNaN(g.Data[i]) && math.IsNaN(w.Data[i]) {
					continue
				}
				d = math.Inf(1)
			}
			maxAbs = math.Max(maxAbs, d)
			limit := tol + Epsilon
			if relative {
				limit = tol*math.Abs(w.Data[i]) + Epsilon
			}
			if d > limit {
				bad = true
			}
		}
		if bad {
			diffs = append(diffs, Difference{Name: name, Reason: "values differ", MaxAbs: maxAbs})
		}
	}
	for _, name := range got.Names() {
		if ignored[name] {
			continue
		}
		if _, ok := want[name]; !ok {
			diffs = append(diffs, Difference{Name: name, Reason: "unexpected"})
		}
	}
	return diffs
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
