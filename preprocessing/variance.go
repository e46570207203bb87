package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ZeroDeviationColumns returns the indices of columns whose sample
// standard deviation (ddof=1) over the non-missing values is exactly 0,
// i.e. every present value is identical. Columns with fewer than two
// present values have an undefined deviation and are not reported.
func ZeroDeviationColumns(X mat.Matrix) []int {
	r, c := X.Dims()
	var out []int
	for j := 0; j < c; j++ {
		n := 0
		first := math.NaN()
		constant := true
		for i := 0; i < r && constant; i++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			if n == 0 {
				first = v
			} else if v != first {
				constant = false
			}
			n++
		}
		if constant && n >= 2 {
			out = append(out, j)
		}
	}
	return out
}
