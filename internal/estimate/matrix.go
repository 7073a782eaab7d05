package estimate

import "errors"

var errSingular = errors.New("normal matrix is singular")

// ridgeSolve fits w minimizing ||Xw - y||^2 + lambda*||w||^2 via the normal
// equations (X'X + lambda*I) w = X'y. The bias column is not penalized.
func ridgeSolve(x [][]float64, y []float64, lambda float64) ([]float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("empty or mismatched design matrix")
	}
	n := len(x[0])

	// X'X
	xtx := make([][]float64, n)
	for i := range xtx {
		xtx[i] = make([]float64, n)
	}
	for _, row := range x {
		for i := 0; i < n; i++ {
			if row[i] == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}
	// +lambda*I, skipping the bias at column 0
	for i := 1; i < n; i++ {
		xtx[i][i] += lambda
	}

	// X'y
	xty := make([]float64, n)
	for k, row := range x {
		for i := 0; i < n; i++ {
			xty[i] += row[i] * y[k]
		}
	}

	inv, err := invert(xtx)
	if err != nil {
		return nil, err
	}
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w[i] += inv[i][j] * xty[j]
		}
	}
	return w, nil
}

// invert does Gauss-Jordan elimination with partial pivoting.
func invert(m [][]float64) ([][]float64, error) {
	n := len(m)
	a := make([][]float64, n)
	inv := make([][]float64, n)
	for i := range m {
		a[i] = append([]float64(nil), m[i]...)
		inv[i] = make([]float64, n)
		inv[i][i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		if abs(a[pivot][col]) < 1e-12 {
			return nil, errSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		p := a[col][col]
		for j := 0; j < n; j++ {
			a[col][j] /= p
			inv[col][j] /= p
		}
		for r := 0; r < n; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for j := 0; j < n; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
