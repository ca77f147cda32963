package spatial

import "math"

// Mat33 is a row-major 3x3 matrix.
type Mat33 [3][3]float64

// Identity33 returns the 3x3 identity.
func Identity33() Mat33 {
	return Mat33{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Diag returns diag(x, y, z).
func Diag(x, y, z float64) Mat33 {
	return Mat33{{x, 0, 0}, {0, y, 0}, {0, 0, z}}
}

// CrossMat returns [v×], the matrix with CrossMat(v).MulVec(w) == v.Cross(w).
func CrossMat(v Vec3) Mat33 {
	return Mat33{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

// Outer returns a bᵀ.
func Outer(a, b Vec3) Mat33 {
	return Mat33{
		{a.X * b.X, a.X * b.Y, a.X * b.Z},
		{a.Y * b.X, a.Y * b.Y, a.Y * b.Z},
		{a.Z * b.X, a.Z * b.Y, a.Z * b.Z},
	}
}

func (m Mat33) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

func (m Mat33) Mul(o Mat33) Mat33 {
	var r Mat33
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j] + m[i][2]*o[2][j]
		}
	}
	return r
}

func (m Mat33) T() Mat33 {
	var r Mat33
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[j][i]
		}
	}
	return r
}

func (m Mat33) Add(o Mat33) Mat33 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] += o[i][j]
		}
	}
	return m
}

func (m Mat33) Sub(o Mat33) Mat33 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] -= o[i][j]
		}
	}
	return m
}

func (m Mat33) Scale(s float64) Mat33 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] *= s
		}
	}
	return m
}

// Col returns column j.
func (m Mat33) Col(j int) Vec3 {
	return Vec3{X: m[0][j], Y: m[1][j], Z: m[2][j]}
}

func (m Mat33) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns m⁻¹ and false when m is numerically singular.
func (m Mat33) Inverse() (Mat33, bool) {
	det := m.Det()
	if math.Abs(det) < SignificantReal {
		return Mat33{}, false
	}
	inv := 1 / det
	return Mat33{
		{
			(m[1][1]*m[2][2] - m[1][2]*m[2][1]) * inv,
			(m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv,
			(m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv,
		},
		{
			(m[1][2]*m[2][0] - m[1][0]*m[2][2]) * inv,
			(m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv,
			(m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv,
		},
		{
			(m[1][0]*m[2][1] - m[1][1]*m[2][0]) * inv,
			(m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv,
			(m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv,
		},
	}, true
}

// IsSymmetric reports whether m equals its transpose to within tol.
func (m Mat33) IsSymmetric(tol float64) bool {
	return math.Abs(m[0][1]-m[1][0]) <= tol &&
		math.Abs(m[0][2]-m[2][0]) <= tol &&
		math.Abs(m[1][2]-m[2][1]) <= tol
}
