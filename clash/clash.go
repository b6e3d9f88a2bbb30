/*
 * clash.go, part of postfold.
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

// Package clash detects covalent bonds and steric clashes from coordinates.
package clash

import (
	"math"
	"sort"

	"github.com/postfold/postfold/chem"
	v3 "github.com/postfold/postfold/v3"
)

// DefaultTolerance is the van der Waals overlap, in Å, above which two atoms clash.
const DefaultTolerance = 0.4

// bondTolerance is added to the sum of covalent radii when detecting bonds.
const bondTolerance = 0.45

// Covalent radii, Å.
var covalent = map[string]float64{
	"H": 0.31, "D": 0.31, "C": 0.76, "N": 0.71, "O": 0.66, "S": 1.05, "P": 1.07, "Se": 1.20,
	"F": 0.57, "Cl": 1.02, "Br": 1.20, "I": 1.39,
	"Na": 1.66, "Mg": 1.41, "K": 2.03, "Ca": 1.76, "Mn": 1.39, "Fe": 1.32, "Co": 1.26,
	"Ni": 1.24, "Cu": 1.32, "Zn": 1.22,
}

// Van der Waals radii (Bondi), Å.
var vdw = map[string]float64{
	"H": 1.20, "D": 1.20, "C": 1.70, "N": 1.55, "O": 1.52, "S": 1.80, "P": 1.80, "Se": 1.90,
	"F": 1.47, "Cl": 1.75, "Br": 1.85, "I": 1.98,
	"Na": 2.27, "Mg": 1.73, "K": 2.75, "Ca": 2.31, "Ni": 1.63, "Cu": 1.40, "Zn": 1.39,
}

// CovalentRadius returns the covalent radius for the element symbol, or 1.5 Å
// if it is not known.
func CovalentRadius(symbol string) float64 {
	if r, ok := covalent[symbol]; ok {
		return r
	}
	return 1.5
}

// VdWRadius returns the van der Waals radius for the element symbol, or 2 Å
// if it is not known.
func VdWRadius(symbol string) float64 {
	if r, ok := vdw[symbol]; ok {
		return r
	}
	return 2.0
}

func isH(at *chem.Atom) bool { return at.Symbol == "H" || at.Symbol == "D" }

// Bond is a covalent bond between atoms I < J, of length Length.
type Bond struct {
	I, J   int
	Length float64
}

// Bonds returns the bonds in coords, detected from distances and covalent
// radii. Two hydrogens are never bonded.
func Bonds(top chem.Atomer, coords *v3.Matrix) []Bond {
	n := top.Len()
	var bonds []Bond
	for i := 0; i < n; i++ {
		ai := top.Atom(i)
		ri := CovalentRadius(ai.Symbol)
		for j := i + 1; j < n; j++ {
			aj := top.Atom(j)
			if isH(ai) && isH(aj) {
				continue
			}
			d := coords.Dist(i, j)
			if d < ri+CovalentRadius(aj.Symbol)+bondTolerance {
				bonds = append(bonds, Bond{i, j, d})
			}
		}
	}
	return bonds
}

// Exclusions is a set of atom pairs separated by few bonds.
type Exclusions map[[2]int]bool

// Has returns whether the pair i, j is in the set, in any order.
func (E Exclusions) Has(i, j int) bool {
	if i > j {
		i, j = j, i
	}
	return E[[2]int{i, j}]
}

// Exclude returns the pairs of the n atoms that are separated by depth bonds
// or fewer. A depth of 2 excludes bonded and 1-3 pairs.
func Exclude(n int, bonds []Bond, depth int) Exclusions {
	neighbors := make([][]int, n)
	for _, b := range bonds {
		neighbors[b.I] = append(neighbors[b.I], b.J)
		neighbors[b.J] = append(neighbors[b.J], b.I)
	}
	ex := make(Exclusions, len(bonds)*depth*2)
	for start := 0; start < n; start++ {
		front := []int{start}
		seen := map[int]bool{start: true}
		for level := 0; level < depth && len(front) > 0; level++ {
			var next []int
			for _, a := range front {
				for _, b := range neighbors[a] {
					if seen[b] {
						continue
					}
					seen[b] = true
					next = append(next, b)
					if start < b {
						ex[[2]int{start, b}] = true
					}
				}
			}
			front = next
		}
	}
	return ex
}

// Clash is a pair of non-bonded atoms closer than the sum of their van der
// Waals radii minus the tolerance.
type Clash struct {
	I, J     int
	Distance float64
	Overlap  float64
}

// Find returns the clashes in the frame-th conformation of mol, from the
// largest overlap to the smallest. Pairs separated by 3 bonds or fewer are
// not considered, and neither are polar hydrogens against N or O, which are
// hydrogen bonds.
func Find(mol *chem.Molecule, frame int, tolerance float64) []Clash {
	coords := mol.Coords[frame]
	n := mol.Len()
	bonds := Bonds(mol, coords)
	ex := Exclude(n, bonds, 3)
	polar := make([]bool, n)
	for _, b := range bonds {
		for _, p := range [][2]int{{b.I, b.J}, {b.J, b.I}} {
			if isH(mol.Atom(p[0])) && acceptor(mol.Atom(p[1])) {
				polar[p[0]] = true
			}
		}
	}
	var clashes []Clash
	for i := 0; i < n; i++ {
		ai := mol.Atom(i)
		ri := VdWRadius(ai.Symbol)
		for j := i + 1; j < n; j++ {
			if ex.Has(i, j) {
				continue
			}
			aj := mol.Atom(j)
			if (polar[i] && acceptor(aj)) || (polar[j] && acceptor(ai)) {
				continue
			}
			d := coords.Dist(i, j)
			over := ri + VdWRadius(aj.Symbol) - d
			if over >= tolerance {
				clashes = append(clashes, Clash{i, j, d, over})
			}
		}
	}
	sort.SliceStable(clashes, func(a, b int) bool { return clashes[a].Overlap > clashes[b].Overlap })
	return clashes
}

func acceptor(at *chem.Atom) bool { return at.Symbol == "N" || at.Symbol == "O" }

// LowestDist returns the shortest distance between a point in test and one
// in clash, and the indexes of both points.
func LowestDist(test, clash *v3.Matrix) (dist float64, indexes [2]int) {
	dist = math.Inf(1)
	for i := 0; i < test.NVecs(); i++ {
		for j := 0; j < clash.NVecs(); j++ {
			dx := test.At(i, 0) - clash.At(j, 0)
			dy := test.At(i, 1) - clash.At(j, 1)
			dz := test.At(i, 2) - clash.At(j, 2)
			if dt := math.Sqrt(dx*dx + dy*dy + dz*dz); dt < dist {
				dist = dt
				indexes[0] = i
				indexes[1] = j
			}
		}
	}
	return
}
