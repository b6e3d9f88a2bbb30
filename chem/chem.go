/*
 * chem.go, part of postfold.
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

	v3 "github.com/postfold/postfold/v3"
)

// Atom contains the information of an atom, except for the coordinates
// and b-factors, which are kept in the Molecule.
type Atom struct {
	Name      string
	ID        int
	Tag       int // Free for the user, not read or written.
	MolName   string
	MolName1  byte // one-letter name for amino acid residues
	MolID     int
	Chain     string
	Char16    byte // alternate location indicator
	ICode     byte // residue insertion code
	Mass      float64
	Occupancy float64
	Charge    float64
	Symbol    string
	Het       bool // HETATM in the PDB file
}

// Copy returns a copy of the Atom object.
func (A *Atom) Copy() *Atom {
	if A == nil {
		panic(ErrNilAtom)
	}
	n := *A
	return &n
}

// Atomer is the basic interface for a topology.
type Atomer interface {
	// Atom returns the Atom corresponding to the index i.
	// Should panic if out of range.
	Atom(i int) *Atom
	Len() int
}

// AtomMultiCharger is an Atomer that also gives a charge and multiplicity.
type AtomMultiCharger interface {
	Atomer
	Charge() int
	Multi() int
}

// Topology contains information about a molecule which is not expected to
// change between conformations, i.e. everything except coordinates and b-factors.
type Topology struct {
	Atoms  []*Atom
	charge int
	multi  int
}

// NewTopology returns a topology with the given charge, multiplicity and atoms.
// If ats is nil an empty topology is returned.
func NewTopology(charge, multi int, ats []*Atom) *Topology {
	top := new(Topology)
	if ats == nil {
		ats = make([]*Atom, 0)
	}
	top.Atoms = ats
	top.charge = charge
	top.multi = multi
	return top
}

// Charge returns the total charge of the topology
func (T *Topology) Charge() int { return T.charge }

// Multi returns the multiplicity of the topology
func (T *Topology) Multi() int { return T.multi }

// SetCharge sets the total charge of the topology to i
func (T *Topology) SetCharge(i int) { T.charge = i }

// SetMulti sets the multiplicity of the topology to i
func (T *Topology) SetMulti(i int) { T.multi = i }

// Atom returns the Atom corresponding to the index i
// of the Atom slice in the Topology. Panics if out of range.
func (T *Topology) Atom(i int) *Atom {
	if i >= T.Len() {
		panic(ErrAtomOutOfRange)
	}
	return T.Atoms[i]
}

// Len returns the number of atoms in the topology.
func (T *Topology) Len() int {
	return len(T.Atoms)
}

// CopyAtoms returns a deep copy of the topology.
func (T *Topology) CopyAtoms() *Topology {
	ats := make([]*Atom, T.Len())
	for i, v := range T.Atoms {
		ats[i] = v.Copy()
	}
	return NewTopology(T.charge, T.multi, ats)
}

// Molecule contains a topology and one or more conformations of it.
// Coordinates and b-factors are stored separately from the atomic info,
// one matrix (and b-factor slice) per conformation.
type Molecule struct {
	*Topology
	Coords   []*v3.Matrix
	Bfactors [][]float64
	Crystal  string // CRYST1 record, if any, written back unchanged
}

// NewMolecule makes a molecule with ats atoms, coords coordinates and bfactors b-factors.
// It returns an error if the number of atoms and coordinates don't match. bfactors
// can be nil, in which case zero-filled slices are allocated.
func NewMolecule(coords []*v3.Matrix, ats Atomer, bfactors [][]float64) (*Molecule, error) {
	if ats == nil {
		return nil, CError{"Supplied a nil Topology", []string{"NewMolecule"}}
	}
	if len(coords) == 0 {
		return nil, CError{"Supplied no coordinates", []string{"NewMolecule"}}
	}
	mol := new(Molecule)
	if top, ok := ats.(*Topology); ok {
		mol.Topology = top
	} else {
		atoms := make([]*Atom, ats.Len())
		for i := range atoms {
			atoms[i] = ats.Atom(i)
		}
		mol.Topology = NewTopology(0, 1, atoms)
	}
	for i, c := range coords {
		if c.NVecs() != mol.Len() {
			return nil, CError{fmt.Sprintf("Frame %d has %d coordinates for %d atoms", i, c.NVecs(), mol.Len()), []string{"NewMolecule"}}
		}
	}
	mol.Coords = coords
	mol.Bfactors = bfactors
	if err := mol.fillBfactors(); err != nil {
		return nil, errDecorate(err, "NewMolecule")
	}
	return mol, nil
}

// fillBfactors completes missing b-factor slices with zeroes and
// checks the existing ones.
func (M *Molecule) fillBfactors() error {
	if len(M.Bfactors) > len(M.Coords) {
		return CError{fmt.Sprintf("%d b-factor sets for %d frames", len(M.Bfactors), len(M.Coords)), []string{"fillBfactors"}}
	}
	for i := range M.Bfactors {
		if M.Bfactors[i] == nil {
			M.Bfactors[i] = make([]float64, M.Len())
		} else if len(M.Bfactors[i]) != M.Len() {
			return CError{fmt.Sprintf("Frame %d has %d b-factors for %d atoms", i, len(M.Bfactors[i]), M.Len()), []string{"fillBfactors"}}
		}
	}
	for len(M.Bfactors) < len(M.Coords) {
		M.Bfactors = append(M.Bfactors, make([]float64, M.Len()))
	}
	return nil
}

// Copy returns a deep copy of the molecule.
func (M *Molecule) Copy() *Molecule {
	r := new(Molecule)
	r.Topology = M.Topology.CopyAtoms()
	r.Coords = make([]*v3.Matrix, len(M.Coords))
	for i, c := range M.Coords {
		r.Coords[i] = c.Clone()
	}
	r.Bfactors = make([][]float64, len(M.Bfactors))
	for i, b := range M.Bfactors {
		r.Bfactors[i] = append([]float64(nil), b...)
	}
	r.Crystal = M.Crystal
	return r
}

// WithCoords returns a molecule sharing the topology and crystal information
// of M, with the single conformation coords. The b-factors of the first frame
// of M are copied.
func (M *Molecule) WithCoords(coords *v3.Matrix) (*Molecule, error) {
	var bf [][]float64
	if len(M.Bfactors) > 0 {
		bf = [][]float64{append([]float64(nil), M.Bfactors[0]...)}
	}
	r, err := NewMolecule([]*v3.Matrix{coords}, M.Topology, bf)
	if err != nil {
		return nil, errDecorate(err, "WithCoords")
	}
	r.Crystal = M.Crystal
	return r, nil
}
