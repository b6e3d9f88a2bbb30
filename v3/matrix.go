/*
 * matrix.go, part of postfold.
 *
 * Copyright 2026 The postfold authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package v3

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const cols int = 3

// Matrix is a set of vectors in 3D space.
// Within the package a "vector" is a row vector, i.e. the
// cartesian coordinates of a point in 3D space.
type Matrix struct {
	*mat.Dense
}

// Dense2Matrix wraps a gonum Dense with 3 columns. Panics otherwise.
func Dense2Matrix(A *mat.Dense) *Matrix {
	_, c := A.Dims()
	if c != cols {
		panic(ErrNotXx3Matrix)
	}
	return &Matrix{A}
}

// NewMatrix generates and returns a Matrix with 3 columns from data.
// data is used as backing storage, not copied.
func NewMatrix(data []float64) (*Matrix, error) {
	l := len(data)
	rows := l / cols
	if l%cols != 0 {
		return nil, Error{fmt.Sprintf("Input slice length %d not divisible by %d: %d", l, cols, l%cols), []string{"NewMatrix"}, true}
	}
	if rows == 0 {
		return nil, Error{"Input slice is empty", []string{"NewMatrix"}, true}
	}
	return &Matrix{mat.NewDense(rows, cols, data)}, nil
}

// Zeros returns a zero-filled Matrix with vecs vectors.
func Zeros(vecs int) *Matrix {
	return &Matrix{mat.NewDense(vecs, cols, make([]float64, cols*vecs))}
}

// NVecs returns the number of vectors in F.
func (F *Matrix) NVecs() int {
	r, c := F.Dims()
	if c != cols {
		panic(ErrNotXx3Matrix)
	}
	return r
}

// Len is an alias for NVecs.
func (F *Matrix) Len() int {
	return F.NVecs()
}

// VecView returns a view of the ith vector of the matrix.
// Changes in the view are reflected in F and vice-versa.
func (F *Matrix) VecView(i int) *Matrix {
	return &Matrix{F.Dense.Slice(i, i+1, 0, cols).(*mat.Dense)}
}

// View returns a view of r vectors of F starting from the ith one.
func (F *Matrix) View(i, r int) *Matrix {
	return &Matrix{F.Dense.Slice(i, i+r, 0, cols).(*mat.Dense)}
}

// Clone returns a deep copy of F.
func (F *Matrix) Clone() *Matrix {
	r := Zeros(F.NVecs())
	r.Copy(F.Dense)
	return r
}

// Scale puts in the receiver the matrix A multiplied by v.
// A can be the receiver itself.
func (F *Matrix) Scale(v float64, A mat.Matrix) {
	if a, ok := A.(*Matrix); ok {
		A = a.Dense
	}
	F.Dense.Scale(v, A)
}

// RawData returns the row-major backing slice of F. Only valid
// for matrices that are not views.
func (F *Matrix) RawData() []float64 {
	return F.RawMatrix().Data
}

// SomeVecs puts in the receiver the vectors of A with the indexes in clist,
// in the same order as clist.
func (F *Matrix) SomeVecs(A *Matrix, clist []int) {
	ar := A.NVecs()
	if F.NVecs() != len(clist) {
		panic(ErrShape)
	}
	for key, val := range clist {
		if val >= ar {
			panic(ErrIndexOutOfRange)
		}
		for j := 0; j < cols; j++ {
			F.Set(key, j, A.At(val, j))
		}
	}
}

// SomeVecsSafe is like SomeVecs but returns an error instead of panicking.
func (F *Matrix) SomeVecsSafe(A *Matrix, clist []int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case PanicMsg:
				err = Error{string(e), []string{"SomeVecsSafe"}, true}
			case mat.Error:
				err = Error{fmt.Sprintf("%s: %s", ErrGonum, e.Error()), []string{"SomeVecsSafe"}, true}
			default:
				panic(r)
			}
		}
	}()
	F.SomeVecs(A, clist)
	return err
}

// SetVecs sets the vectors with index n = each value of clist, in the receiver, to the
// n vector of A.
func (F *Matrix) SetVecs(A *Matrix, clist []int) {
	if A.NVecs() < len(clist) {
		panic(ErrShape)
	}
	fr := F.NVecs()
	for key, val := range clist {
		if val >= fr {
			panic(ErrIndexOutOfRange)
		}
		for j := 0; j < cols; j++ {
			F.Set(val, j, A.At(key, j))
		}
	}
}

// AddVec adds the 1x3 vec to each vector of A, putting the result in the receiver.
func (F *Matrix) AddVec(A, vec *Matrix) {
	ar := A.NVecs()
	if vec.NVecs() != 1 || F.NVecs() != ar {
		panic(ErrShape)
	}
	x, y, z := vec.At(0, 0), vec.At(0, 1), vec.At(0, 2)
	for i := 0; i < ar; i++ {
		F.Set(i, 0, A.At(i, 0)+x)
		F.Set(i, 1, A.At(i, 1)+y)
		F.Set(i, 2, A.At(i, 2)+z)
	}
}

// SubVec subtracts the 1x3 vec from each vector of A, putting the result in the receiver.
func (F *Matrix) SubVec(A, vec *Matrix) {
	ar := A.NVecs()
	if vec.NVecs() != 1 || F.NVecs() != ar {
		panic(ErrShape)
	}
	x, y, z := vec.At(0, 0), vec.At(0, 1), vec.At(0, 2)
	for i := 0; i < ar; i++ {
		F.Set(i, 0, A.At(i, 0)-x)
		F.Set(i, 1, A.At(i, 1)-y)
		F.Set(i, 2, A.At(i, 2)-z)
	}
}

// Centroid returns the geometric center of F as a 1x3 Matrix.
func (F *Matrix) Centroid() *Matrix {
	n := F.NVecs()
	c := Zeros(1)
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			c.Set(0, j, c.At(0, j)+F.At(i, j))
		}
	}
	c.Scale(1/float64(n), c)
	return c
}

// Dist returns the euclidean distance between the ith and jth vectors of F.
func (F *Matrix) Dist(i, j int) float64 {
	dx := F.At(i, 0) - F.At(j, 0)
	dy := F.At(i, 1) - F.At(j, 1)
	dz := F.At(i, 2) - F.At(j, 2)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Perturb adds to each coordinate of F a random gaussian displacement with
// standard deviation sigma, drawn from rng.
func (F *Matrix) Perturb(rng *rand.Rand, sigma float64) {
	if sigma <= 0 {
		return
	}
	r := F.NVecs()
	for i := 0; i < r; i++ {
		for j := 0; j < cols; j++ {
			F.Set(i, j, F.At(i, j)+rng.NormFloat64()*sigma)
		}
	}
}

// String returns a neat string representation of a Matrix
func (F *Matrix) String() string {
	r := F.NVecs()
	v := make([]string, 0, r+2)
	v = append(v, "[")
	for i := 0; i < r; i++ {
		v = append(v, fmt.Sprintf(" %8.3f %8.3f %8.3f", F.At(i, 0), F.At(i, 1), F.At(i, 2)))
	}
	v = append(v, " ]")
	return strings.Join(v, "\n")
}
