/*
 * rmsd.go, part of postfold.
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

package chem

import (
	"fmt"
	"math"
	"sort"

	v3 "github.com/postfold/postfold/v3"
	"gonum.org/v1/gonum/mat"
)

// RMSD returns the root mean square deviation between test and templa after
// optimal superposition (Kabsch). Neither matrix is modified.
func RMSD(test, templa *v3.Matrix) (float64, error) {
	n := test.NVecs()
	if n != templa.NVecs() {
		return 0, CError{fmt.Sprintf("Mismatched sets: %d vs %d vectors", n, templa.NVecs()), []string{"RMSD"}}
	}
	if n == 0 {
		return 0, CError{"Empty sets", []string{"RMSD"}}
	}
	p := test.Clone()
	q := templa.Clone()
	p.SubVec(p, p.Centroid())
	q.SubVec(q, q.Centroid())
	var h mat.Dense
	h.Mul(p.T(), q)
	var svd mat.SVD
	if ok := svd.Factorize(&h, mat.SVDNone); !ok {
		return 0, CError{"SVD failed", []string{"mat.SVD", "RMSD"}}
	}
	s := svd.Values(nil)
	d := 1.0
	if mat.Det(&h) < 0 {
		d = -1.0
	}
	e0 := mat.Norm(p, 2)*mat.Norm(p, 2) + mat.Norm(q, 2)*mat.Norm(q, 2)
	e := e0 - 2*(s[0]+s[1]+d*s[2])
	if e < 0 {
		e = 0
	}
	return math.Sqrt(e / float64(n)), nil
}

// CARMSD returns the RMSD, after superposition, between the CA atoms of the
// first conformations of a and b. Residues are matched by chain, number and
// insertion code, so the topologies don't need to be identical.
func CARMSD(a, b *Molecule) (float64, error) {
	ca := CAIndexes(a)
	cb := CAIndexes(b)
	keys := make([]ResidueKey, 0, len(ca))
	for k := range ca {
		if _, ok := cb[k]; ok {
			keys = append(keys, k)
		}
	}
	if len(keys) < 3 {
		return 0, CError{fmt.Sprintf("Only %d matching CA atoms", len(keys)), []string{"CARMSD"}}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Chain != keys[j].Chain {
			return keys[i].Chain < keys[j].Chain
		}
		if keys[i].ID != keys[j].ID {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].ICode < keys[j].ICode
	})
	ia := make([]int, len(keys))
	ib := make([]int, len(keys))
	for i, k := range keys {
		ia[i] = ca[k]
		ib[i] = cb[k]
	}
	pa := v3.Zeros(len(keys))
	pb := v3.Zeros(len(keys))
	pa.SomeVecs(a.Coords[0], ia)
	pb.SomeVecs(b.Coords[0], ib)
	r, err := RMSD(pa, pb)
	return r, errDecorate(err, "CARMSD")
}
