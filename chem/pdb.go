/*
 * pdb.go, part of postfold.
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

// parsePDBLine parses a valid ATOM or HETATM line of a PDB file, and returns an Atom
// with the info except for the coordinates and b-factor, which are returned
// separately. Only the first model is read in full, so the atom is only
// parsed if atom is true.
func parsePDBLine(line string, atom bool) (*Atom, [3]float64, float64, error) {
	var coords [3]float64
	if len(line) < 54 {
		return nil, coords, 0, fmt.Errorf("line too short (%d characters)", len(line))
	}
	var err error
	for i, fields := range [3][2]int{{30, 38}, {38, 46}, {46, 54}} {
		coords[i], err = strconv.ParseFloat(strings.TrimSpace(line[fields[0]:fields[1]]), 64)
		if err != nil {
			return nil, coords, 0, fmt.Errorf("coordinate %d: %w", i, err)
		}
	}
	var bfactor float64
	if len(line) >= 66 {
		if s := strings.TrimSpace(line[60:66]); s != "" {
			bfactor, err = strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, coords, 0, fmt.Errorf("b-factor: %w", err)
			}
		}
	}
	if !atom {
		return nil, coords, bfactor, nil
	}
	at := new(Atom)
	at.Het = strings.HasPrefix(line, "HETATM")
	// Large structures overflow the serial field, so a failure here is not fatal.
	at.ID, _ = strconv.Atoi(strings.TrimSpace(line[6:11]))
	at.Name = strings.TrimSpace(line[12:16])
	at.Char16 = line[16]
	at.MolName = strings.TrimSpace(line[17:20])
	at.MolName1 = OneLetter(at.MolName)
	at.Chain = strings.TrimSpace(line[21:22])
	at.MolID, err = strconv.Atoi(strings.TrimSpace(line[22:26]))
	if err != nil {
		return nil, coords, 0, fmt.Errorf("residue number: %w", err)
	}
	at.ICode = line[26]
	at.Occupancy = 1.0
	if s := strings.TrimSpace(line[54:min(60, len(line))]); s != "" {
		at.Occupancy, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, coords, 0, fmt.Errorf("occupancy: %w", err)
		}
	}
	if len(line) >= 78 {
		at.Symbol = fixSymbol(line[76:78])
	}
	if len(line) >= 80 {
		// charges are written like "1+" or "2-"
		if q := strings.TrimSpace(line[78:80]); len(q) == 2 {
			if v, err := strconv.Atoi(q[:1]); err == nil {
				at.Charge = float64(v)
				if q[1] == '-' {
					at.Charge *= -1
				}
			}
		}
	}
	if at.Symbol == "" {
		at.Symbol = symbolFromName(at.Name)
		if at.Het && at.Name == "CA" && at.MolName == "CA" {
			at.Symbol = "Ca"
		}
	}
	at.Mass = symbolMass[at.Symbol]
	return at, coords, bfactor, nil
}

// PDBFileRead reads the structure in the PDB file pdbname, which can be
// compressed.
func PDBFileRead(pdbname string) (*Molecule, error) {
	in, err := OpenFile(pdbname)
	if err != nil {
		return nil, errDecorate(err, "PDBFileRead")
	}
	defer in.Close()
	mol, err := PDBRead(in)
	if err != nil {
		return nil, errDecorate(err, "PDBFileRead "+pdbname)
	}
	return mol, nil
}

// PDBRead reads the atomic entries of a PDB file from pdb. The atoms are read
// from the first model, and coordinates and b-factors from every model.
// The CRYST1 record, if present, is kept in the Crystal field.
func PDBRead(pdb io.Reader) (*Molecule, error) {
	molecule := make([]*Atom, 0)
	coords := [][]float64{make([]float64, 0, 300)}
	bfactors := [][]float64{make([]float64, 0, 100)}
	firstModel := true
	crystal := ""
	scanner := bufio.NewScanner(pdb)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		line := scanner.Text()
		lineno++
		switch {
		case strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM"):
			at, c, b, err := parsePDBLine(line, firstModel)
			if err != nil {
				return nil, CError{fmt.Sprintf("line %d: %s", lineno, err), []string{"PDBRead"}}
			}
			if firstModel {
				molecule = append(molecule, at)
			}
			last := len(coords) - 1
			coords[last] = append(coords[last], c[0], c[1], c[2])
			bfactors[last] = append(bfactors[last], b)
		case strings.HasPrefix(line, "CRYST1"):
			crystal = strings.TrimRight(line, " \r")
		case strings.HasPrefix(line, "ENDMDL"):
			// the atoms of a structure are only read from the first model.
			if len(molecule) > 0 {
				firstModel = false
			}
		case strings.HasPrefix(line, "MODEL"):
			if !firstModel {
				coords = append(coords, make([]float64, 0, len(molecule)*3))
				bfactors = append(bfactors, make([]float64, 0, len(molecule)))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, CError{err.Error(), []string{"bufio.Scanner", "PDBRead"}}
	}
	if len(molecule) == 0 {
		return nil, CError{"No atoms found", []string{"PDBRead"}}
	}
	// A trailing MODEL record without atoms leaves an empty frame.
	if len(coords) > 1 && len(coords[len(coords)-1]) == 0 {
		coords = coords[:len(coords)-1]
		bfactors = bfactors[:len(bfactors)-1]
	}
	mcoords := make([]*v3.Matrix, len(coords))
	for i, c := range coords {
		if len(c) != len(molecule)*3 {
			return nil, CError{fmt.Sprintf("Model %d has %d atoms, the first one has %d", i+1, len(c)/3, len(molecule)), []string{"PDBRead"}}
		}
		var err error
		mcoords[i], err = v3.NewMatrix(c)
		if err != nil {
			return nil, CError{err.Error(), []string{"v3.NewMatrix", "PDBRead"}}
		}
	}
	mol, err := NewMolecule(mcoords, NewTopology(0, 1, molecule), bfactors)
	if err != nil {
		return nil, errDecorate(err, "PDBRead")
	}
	mol.Crystal = crystal
	return mol, nil
}

// pdbAtomName returns the atom name aligned as in the 13-16 columns of a PDB file.
// Names with one-letter elements start at column 14.
func pdbAtomName(at *Atom) string {
	name := at.Name
	if len(name) >= 4 {
		return name[:4]
	}
	if len(at.Symbol) == 2 || (len(name) > 0 && name[0] >= '0' && name[0] <= '9') {
		return fmt.Sprintf("%-4s", name)
	}
	return fmt.Sprintf(" %-3s", name)
}

func blankIfZero(b byte) byte {
	if b == 0 {
		return ' '
	}
	return b
}

func pdbCharge(q float64) string {
	iq := int(q)
	switch {
	case iq > 0 && iq < 10:
		return fmt.Sprintf("%d+", iq)
	case iq < 0 && iq > -10:
		return fmt.Sprintf("%d-", -iq)
	}
	return "  "
}

// PDBFileWrite writes mol to the PDB file pdbname, which is compressed if
// its name ends in .gz or .zst.
func PDBFileWrite(pdbname string, mol *Molecule) error {
	out, err := CreateFile(pdbname)
	if err != nil {
		return errDecorate(err, "PDBFileWrite")
	}
	if err := PDBWrite(out, mol); err != nil {
		out.Close()
		return errDecorate(err, "PDBFileWrite "+pdbname)
	}
	return errDecorate(out.Close(), "PDBFileWrite "+pdbname)
}

// PDBWrite writes every conformation of mol in PDB format to out. If there is more
// than one conformation, each goes in a MODEL/ENDMDL block.
func PDBWrite(out io.Writer, mol *Molecule) error {
	if mol == nil || len(mol.Coords) == 0 {
		return CError{"Nothing to write", []string{"PDBWrite"}}
	}
	w := bufio.NewWriter(out)
	fmt.Fprint(w, "REMARK     WRITTEN WITH POSTFOLD\n")
	if mol.Crystal != "" {
		fmt.Fprintln(w, mol.Crystal)
	}
	multi := len(mol.Coords) > 1
	for j, coords := range mol.Coords {
		if coords.NVecs() != mol.Len() {
			return CError{fmt.Sprintf("Frame %d has %d coordinates for %d atoms", j, coords.NVecs(), mol.Len()), []string{"PDBWrite"}}
		}
		var bf []float64
		if j < len(mol.Bfactors) {
			bf = mol.Bfactors[j]
		}
		if multi {
			fmt.Fprintf(w, "MODEL     %4d\n", j+1)
		}
		for i := 0; i < mol.Len(); i++ {
			at := mol.Atom(i)
			if i > 0 && at.Chain != mol.Atom(i-1).Chain && !at.Het && !mol.Atom(i-1).Het {
				fmt.Fprintln(w, "TER")
			}
			record := "ATOM"
			if at.Het {
				record = "HETATM"
			}
			var b float64
			if bf != nil {
				b = bf[i]
			}
			chain := at.Chain
			if chain == "" {
				chain = " "
			}
			id := at.ID
			if id <= 0 {
				id = i + 1
			}
			_, err := fmt.Fprintf(w, "%-6s%5d %4s%c%3s %1s%4d%c   %8.3f%8.3f%8.3f%6.2f%6.2f          %2s%2s\n",
				record, id%100000, pdbAtomName(at), blankIfZero(at.Char16), at.MolName, chain[:1],
				at.MolID%10000, blankIfZero(at.ICode), coords.At(i, 0), coords.At(i, 1), coords.At(i, 2),
				at.Occupancy, b, strings.ToUpper(at.Symbol), pdbCharge(at.Charge))
			if err != nil {
				return CError{err.Error(), []string{"PDBWrite"}}
			}
		}
		if !mol.Atom(mol.Len() - 1).Het {
			fmt.Fprintln(w, "TER")
		}
		if multi {
			fmt.Fprintln(w, "ENDMDL")
		}
	}
	fmt.Fprintln(w, "END")
	if err := w.Flush(); err != nil {
		return CError{err.Error(), []string{"bufio.Flush", "PDBWrite"}}
	}
	return nil
}
