/*
 * residues.go, part of postfold.
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

import "fmt"

// ResidueKey identifies a residue across different topologies of the same
// structure, i.e. before and after hydrogens are added.
type ResidueKey struct {
	Chain string
	ID    int
	ICode byte
}

func (k ResidueKey) String() string {
	if k.ICode == 0 || k.ICode == ' ' {
		return fmt.Sprintf("%s:%d", k.Chain, k.ID)
	}
	return fmt.Sprintf("%s:%d%c", k.Chain, k.ID, k.ICode)
}

// Residue is a contiguous set of atoms sharing chain, residue number,
// insertion code and residue name.
type Residue struct {
	ResidueKey
	Name  string
	Atoms []int // indexes in the topology
}

// AtomIndex returns the index in top of the atom called name in the residue,
// or -1 if the residue has no such atom.
func (R Residue) AtomIndex(top Atomer, name string) int {
	for _, i := range R.Atoms {
		if top.Atom(i).Name == name {
			return i
		}
	}
	return -1
}

func normICode(b byte) byte {
	if b == ' ' {
		return 0
	}
	return b
}

// Residues groups the atoms of top into residues, in the order they appear.
func Residues(top Atomer) []Residue {
	ret := make([]Residue, 0, top.Len()/8+1)
	for i := 0; i < top.Len(); i++ {
		at := top.Atom(i)
		key := ResidueKey{Chain: at.Chain, ID: at.MolID, ICode: normICode(at.ICode)}
		if n := len(ret); n > 0 && ret[n-1].ResidueKey == key && ret[n-1].Name == at.MolName {
			ret[n-1].Atoms = append(ret[n-1].Atoms, i)
			continue
		}
		ret = append(ret, Residue{ResidueKey: key, Name: at.MolName, Atoms: []int{i}})
	}
	return ret
}

// CAIndexes returns the indexes of the CA atoms of the amino acid residues
// of top, keyed by residue. Modified residues written as HETATM (MSE, SEP...)
// are included, calcium ions are not.
func CAIndexes(top Atomer) map[ResidueKey]int {
	ret := make(map[ResidueKey]int)
	for _, r := range Residues(top) {
		if r.Name == PlaceholderResidue {
			continue
		}
		i := r.AtomIndex(top, "CA")
		if i < 0 || isCalcium(top.Atom(i), r) {
			continue
		}
		ret[r.ResidueKey] = i
	}
	return ret
}

// isCalcium tells a calcium ion called CA apart from an alpha carbon.
func isCalcium(at *Atom, r Residue) bool {
	if at.Symbol == "Ca" {
		return true
	}
	return r.Name == "CA" && len(r.Atoms) == 1
}
