// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned by MultiplyMatrices when the column count
// of the left operand does not match the row count of the right one.
var ErrDimensionMismatch = errors.New("matrix dimension mismatch")

// Vec3 is a 3-component vector in device or world coordinates.
type Vec3 = r3.Vector

// Mat3 is a row-major 3x3 matrix. Used for rotation matrices on the hot path
// so every sensor callback works on fixed-size values.
type Mat3 [3][3]float64

// Identity returns the 3x3 identity matrix.
func Identity() Mat3 {
	return Mat3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// RotX is a right-handed rotation of rad radians about the X axis.
func RotX(rad float64) Mat3 {
	s, c := math.Sincos(rad)
	return Mat3{
		{1, 0, 0},
		{0, c, -s},
		{0, s, c},
	}
}

// RotY is a right-handed rotation of rad radians about the Y axis.
func RotY(rad float64) Mat3 {
	s, c := math.Sincos(rad)
	return Mat3{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}
}

// RotZ is a right-handed rotation of rad radians about the Z axis.
func RotZ(rad float64) Mat3 {
	s, c := math.Sincos(rad)
	return Mat3{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
}

// Mul returns m·o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[i][k] * o[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Transpose returns the transpose of m. For a rotation this is its inverse.
func (m Mat3) Transpose() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Matrix converts m to the generic row-slice form.
func (m Mat3) Matrix() Matrix {
	return Matrix{
		{m[0][0], m[0][1], m[0][2]},
		{m[1][0], m[1][1], m[1][2]},
		{m[2][0], m[2][1], m[2][2]},
	}
}

// Matrix is a generic real matrix stored as rows. All rows must have the
// same length.
type Matrix [][]float64

// Dims returns the row and column count of m, or an error if m is empty or
// ragged.
func (m Matrix) Dims() (rows, cols int, err error) {
	if len(m) == 0 || len(m[0]) == 0 {
		return 0, 0, fmt.Errorf("empty matrix: %w", ErrDimensionMismatch)
	}
	cols = len(m[0])
	for i, row := range m {
		if len(row) != cols {
			return 0, 0, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), cols, ErrDimensionMismatch)
		}
	}
	return len(m), cols, nil
}

// MultiplyMatrices returns a·b for an m×n a and an n×p b. The result is m×p.
// It is the shape-checked form of Mat3.Mul for operands of any size.
func MultiplyMatrices(a, b Matrix) (Matrix, error) {
	ar, ac, err := a.Dims()
	if err != nil {
		return nil, fmt.Errorf("left operand: %w", err)
	}
	br, bc, err := b.Dims()
	if err != nil {
		return nil, fmt.Errorf("right operand: %w", err)
	}
	if ac != br {
		return nil, fmt.Errorf("cannot multiply %dx%d by %dx%d: %w", ar, ac, br, bc, ErrDimensionMismatch)
	}

	var prod mat.Dense
	prod.Mul(a.dense(ar, ac), b.dense(br, bc))

	out := make(Matrix, ar)
	for i := range out {
		out[i] = mat.Row(nil, i, &prod)
	}
	return out, nil
}

// dense copies m into a gonum matrix of the already validated shape.
func (m Matrix) dense(rows, cols int) *mat.Dense {
	data := make([]float64, 0, rows*cols)
	for _, row := range m {
		data = append(data, row...)
	}
	return mat.NewDense(rows, cols, data)
}
