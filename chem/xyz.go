/*
 * xyz.go, part of postfold.
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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	v3 "github.com/postfold/postfold/v3"
)

// XYZFileRead reads the first frame of the xyz file xyzname.
func XYZFileRead(xyzname string) (*Molecule, error) {
	in, err := OpenFile(xyzname)
	if err != nil {
		return nil, errDecorate(err, "XYZFileRead")
	}
	defer in.Close()
	mol, err := XYZRead(in)
	if err != nil {
		return nil, errDecorate(err, "XYZFileRead "+xyzname)
	}
	return mol, nil
}

// XYZRead reads the first frame of an xyz file from xyz. The comment line is
// kept, untouched, as the Crystal field of the returned molecule.
func XYZRead(xyz io.Reader) (*Molecule, error) {
	scanner := bufio.NewScanner(xyz)
	if !scanner.Scan() {
		return nil, CError{"Empty XYZ file", []string{"XYZRead"}}
	}
	natoms, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || natoms <= 0 {
		return nil, CError{fmt.Sprintf("Ill formatted XYZ file, bad atom count %q", scanner.Text()), []string{"XYZRead"}}
	}
	if !scanner.Scan() {
		return nil, CError{"Ill formatted XYZ file, no comment line", []string{"XYZRead"}}
	}
	comment := scanner.Text()
	atoms := make([]*Atom, natoms)
	coords := make([]float64, natoms*3)
	for i := 0; i < natoms; i++ {
		if !scanner.Scan() {
			return nil, CError{fmt.Sprintf("Expected %d atoms, found %d", natoms, i), []string{"XYZRead"}}
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			return nil, CError{fmt.Sprintf("Line number %d ill formed", i+3), []string{"XYZRead"}}
		}
		atoms[i] = &Atom{Symbol: fixSymbol(fields[0]), ID: i + 1, Occupancy: 1}
		atoms[i].Name = strings.ToUpper(atoms[i].Symbol)
		atoms[i].Mass = symbolMass[atoms[i].Symbol]
		for j := 0; j < 3; j++ {
			coords[3*i+j], err = strconv.ParseFloat(fields[j+1], 64)
			if err != nil {
				return nil, CError{fmt.Sprintf("Line number %d: %s", i+3, err), []string{"strconv.ParseFloat", "XYZRead"}}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, CError{err.Error(), []string{"bufio.Scanner", "XYZRead"}}
	}
	c, _ := v3.NewMatrix(coords)
	mol, err := NewMolecule([]*v3.Matrix{c}, NewTopology(0, 1, atoms), nil)
	if err != nil {
		return nil, errDecorate(err, "XYZRead")
	}
	mol.Crystal = comment
	return mol, nil
}

// XYZFileWrite writes the coordinates coords for the topology mol in the xyz file xyzname.
func XYZFileWrite(xyzname string, coords *v3.Matrix, mol Atomer) error {
	out, err := CreateFile(xyzname)
	if err != nil {
		return errDecorate(err, "XYZFileWrite")
	}
	if err := XYZWrite(out, coords, mol); err != nil {
		out.Close()
		return errDecorate(err, "XYZFileWrite "+xyzname)
	}
	return errDecorate(out.Close(), "XYZFileWrite "+xyzname)
}

// XYZWrite writes the coordinates coords for the topology mol in xyz format to out.
func XYZWrite(out io.Writer, coords *v3.Matrix, mol Atomer) error {
	if coords.NVecs() != mol.Len() {
		return CError{fmt.Sprintf("%d coordinates for %d atoms", coords.NVecs(), mol.Len()), []string{"XYZWrite"}}
	}
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "%-4d\n\n", mol.Len())
	for i := 0; i < mol.Len(); i++ {
		fmt.Fprintf(w, "%-2s  %12.6f%12.6f%12.6f\n", mol.Atom(i).Symbol, coords.At(i, 0), coords.At(i, 1), coords.At(i, 2))
	}
	if err := w.Flush(); err != nil {
		return CError{err.Error(), []string{"bufio.Flush", "XYZWrite"}}
	}
	return nil
}
