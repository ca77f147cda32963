package matter

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// rankTol is the relative singular value cutoff for least squares solves.
const rankTol = 1e-10

// minNormSolve returns the x of smallest weighted size ‖colW∘x‖ that
// minimizes ‖rowW∘(A·x − b)‖. Rows and columns are scaled, the scaled system
// is solved with a truncated SVD, and the column scaling is undone. It never
// fails; rank deficiency just drops directions.
func minNormSolve(a *mat.Dense, rowW, colW, b []float64) []float64 {
	x := make([]float64, len(colW))
	if a == nil {
		return x
	}
	m, n := a.Dims()
	if m == 0 || n == 0 {
		return x
	}
	scaled := mat.NewDense(m, n, nil)
	scaled.Apply(func(i, j int, v float64) float64 {
		return rowW[i] * v / colW[j]
	}, a)
	rhs := make([]float64, m)
	floats.MulTo(rhs, rowW, b)

	var svd mat.SVD
	if !svd.Factorize(scaled, mat.SVDThin) {
		return x
	}
	rank := svd.Rank(rankTol)
	if rank == 0 {
		return x
	}
	var sol mat.VecDense
	svd.SolveVecTo(&sol, mat.NewVecDense(m, rhs), rank)
	for j := range x {
		x[j] = sol.AtVec(j) / colW[j]
	}
	return x
}

// pseudoInverse returns the SVD pseudo-inverse of the n×n row-major matrix d,
// row-major. Singular directions map to zero.
func pseudoInverse(d []float64, n int) []float64 {
	out := make([]float64, n*n)
	if n == 1 {
		if math.Abs(d[0]) > rankTol*rankTol {
			out[0] = 1 / d[0]
		}
		return out
	}
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(n, n, append([]float64(nil), d...)), mat.SVDThin) {
		return out
	}
	rank := svd.Rank(rankTol)
	if rank == 0 {
		return out
	}
	var inv mat.Dense
	svd.SolveTo(&inv, eye(n), rank)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = inv.At(i, j)
		}
	}
	return out
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// weightedRMS is sqrt(Σ(wᵢeᵢ)²/n), zero for an empty vector.
func weightedRMS(e, w []float64) float64 {
	if len(e) == 0 {
		return 0
	}
	scaled := make([]float64, len(e))
	floats.MulTo(scaled, w, e)
	return floats.Norm(scaled, 2) / math.Sqrt(float64(len(e)))
}

// selectRows copies the listed rows of a into a new matrix. It returns nil
// when rows is empty.
func selectRows(a *mat.Dense, rows []int) *mat.Dense {
	if a == nil || len(rows) == 0 {
		return nil
	}
	_, n := a.Dims()
	out := mat.NewDense(len(rows), n, nil)
	for i, r := range rows {
		out.SetRow(i, a.RawRowView(r))
	}
	return out
}
