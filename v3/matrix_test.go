/*
 * matrix_test.go, part of postfold.
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
	"math"
	"math/rand"
	"testing"
)

func TestNewMatrix(Te *testing.T) {
	A, err := NewMatrix([]float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		Te.Fatal(err)
	}
	if A.NVecs() != 2 {
		Te.Errorf("expected 2 vectors, got %d", A.NVecs())
	}
	if _, err := NewMatrix([]float64{1, 2, 3, 4}); err == nil {
		Te.Error("a slice not divisible by 3 should fail")
	}
	if _, err := NewMatrix(nil); err == nil {
		Te.Error("an empty slice should fail")
	}
}

func TestViewsShareData(Te *testing.T) {
	A, _ := NewMatrix([]float64{0, 0, 0, 1, 1, 1, 2, 2, 2})
	v := A.VecView(1)
	v.Set(0, 2, 9)
	if A.At(1, 2) != 9 {
		Te.Errorf("VecView should share storage, got %v", A.At(1, 2))
	}
	c := A.Clone()
	c.Set(0, 0, 7)
	if A.At(0, 0) != 0 {
		Te.Error("Clone should not share storage")
	}
}

func TestSomeSetVecs(Te *testing.T) {
	A, _ := NewMatrix([]float64{0, 0, 0, 1, 1, 1, 2, 2, 2})
	B := Zeros(2)
	B.SomeVecs(A, []int{2, 0})
	if B.At(0, 0) != 2 || B.At(1, 0) != 0 {
		Te.Errorf("unexpected SomeVecs result %v", B)
	}
	if err := B.SomeVecsSafe(A, []int{5, 0}); err == nil {
		Te.Error("out of range index should give an error")
	}
	B.Scale(10, B)
	A.SetVecs(B, []int{1, 2})
	if A.At(1, 1) != 20 || A.At(2, 1) != 0 {
		Te.Errorf("unexpected SetVecs result %v", A)
	}
}

func TestCentroidSubVec(Te *testing.T) {
	A, _ := NewMatrix([]float64{1, 0, 0, -1, 0, 0, 0, 3, 0, 0, 1, 0})
	c := A.Centroid()
	if c.At(0, 0) != 0 || c.At(0, 1) != 1 {
		Te.Errorf("unexpected centroid %v", c)
	}
	A.SubVec(A, c)
	if A.At(2, 1) != 2 {
		Te.Errorf("unexpected SubVec result %v", A)
	}
	A.AddVec(A, c)
	if A.At(2, 1) != 3 {
		Te.Errorf("unexpected AddVec result %v", A)
	}
	if d := A.Dist(0, 1); d != 2 {
		Te.Errorf("expected distance 2, got %v", d)
	}
}

func TestScaleInPlace(Te *testing.T) {
	A, _ := NewMatrix([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	A.Scale(2, A)
	if A.At(2, 2) != 18 || A.At(0, 1) != 4 {
		Te.Errorf("unexpected in-place Scale result %v", A)
	}
	c := A.Centroid()
	if c.At(0, 0) != 8 || c.At(0, 1) != 10 || c.At(0, 2) != 12 {
		Te.Errorf("unexpected centroid %v", c)
	}
	v := A.VecView(1)
	v.Scale(0.5, v)
	if A.At(1, 0) != 4 || A.At(0, 0) != 2 {
		Te.Errorf("scaling a view should only change its vector: %v", A)
	}
}

func TestPerturb(Te *testing.T) {
	A := Zeros(200)
	A.Perturb(rand.New(rand.NewSource(1)), 0)
	for i := 0; i < A.NVecs(); i++ {
		if A.At(i, 0) != 0 {
			Te.Fatal("sigma 0 should leave the matrix untouched")
		}
	}
	A.Perturb(rand.New(rand.NewSource(1)), 0.5)
	B := Zeros(200)
	B.Perturb(rand.New(rand.NewSource(1)), 0.5)
	var sum float64
	for i := 0; i < A.NVecs(); i++ {
		if A.At(i, 1) != B.At(i, 1) {
			Te.Fatal("same seed should give the same perturbation")
		}
		sum += A.At(i, 0) * A.At(i, 0)
	}
	sd := math.Sqrt(sum / 200)
	if sd < 0.3 || sd > 0.7 {
		Te.Errorf("perturbation standard deviation %v too far from 0.5", sd)
	}
}
