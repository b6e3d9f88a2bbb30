/*
 * pdbx.go, part of postfold.
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

// pdbxmap maps the _atom_site fields to their column in the loop.
type pdbxmap map[string]int

// get returns the column for the first of the given fields present
// in the map, or -1.
func (m pdbxmap) get(fields ...string) int {
	for _, s := range fields {
		if i, ok := m[s]; ok {
			return i
		}
	}
	return -1
}

// str returns the value of the first available field, or "" if none is
// present or the value is one of mmCIF's "unknown" markers.
func (m pdbxmap) str(data []string, fields ...string) string {
	k := m.get(fields...)
	if k < 0 || k >= len(data) {
		return ""
	}
	if data[k] == "?" || data[k] == "." {
		return ""
	}
	return data[k]
}

// pdbxTokens splits a data line of a loop, honoring single and double quotes.
func pdbxTokens(line string) []string {
	ret := make([]string, 0, 20)
	i := 0
	for i < len(line) {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) {
			break
		}
		if q := line[i]; q == '\'' || q == '"' {
			j := i + 1
			// a quote only closes a token if followed by blank or end of line
			for j < len(line) && !(line[j] == q && (j+1 == len(line) || line[j+1] == ' ' || line[j+1] == '\t')) {
				j++
			}
			ret = append(ret, line[i+1:min(j, len(line))])
			i = j + 1
			continue
		}
		j := i
		for j < len(line) && line[j] != ' ' && line[j] != '\t' {
			j++
		}
		ret = append(ret, line[i:j])
		i = j
	}
	return ret
}

func pdbxFillAtom(data []string, m pdbxmap) (*Atom, error) {
	var err error
	at := new(Atom)
	at.Symbol = fixSymbol(m.str(data, "_atom_site.type_symbol"))
	at.Name = m.str(data, "_atom_site.auth_atom_id", "_atom_site.label_atom_id")
	if at.Symbol == "" {
		at.Symbol = symbolFromName(at.Name)
	}
	at.Mass = symbolMass[at.Symbol]
	at.MolName = m.str(data, "_atom_site.auth_comp_id", "_atom_site.label_comp_id")
	at.MolName1 = OneLetter(at.MolName)
	if s := m.str(data, "_atom_site.label_alt_id"); s != "" {
		at.Char16 = s[0]
	}
	if s := m.str(data, "_atom_site.pdbx_pdb_ins_code"); s != "" {
		at.ICode = s[0]
	}
	at.Chain = m.str(data, "_atom_site.auth_asym_id", "_atom_site.label_asym_id")
	if s := m.str(data, "_atom_site.id"); s != "" {
		if at.ID, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("Couldn't parse ID from %s: %w", s, err)
		}
	}
	if s := m.str(data, "_atom_site.auth_seq_id", "_atom_site.label_seq_id"); s != "" {
		if at.MolID, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("Couldn't parse MolID from %s: %w", s, err)
		}
	}
	at.Occupancy = 1
	if s := m.str(data, "_atom_site.occupancy"); s != "" {
		if at.Occupancy, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("Couldn't parse Occupancy from %s: %w", s, err)
		}
	}
	// We won't do anything if we somehow can't read the charge.
	if s := m.str(data, "_atom_site.pdbx_formal_charge"); s != "" {
		at.Charge, _ = strconv.ParseFloat(s, 64)
	}
	at.Het = m.str(data, "_atom_site.group_pdb") == "HETATM"
	return at, nil
}

func pdbxCoords(data []string, m pdbxmap) ([3]float64, float64, error) {
	var c [3]float64
	var err error
	for j, v := range []string{"_atom_site.cartn_x", "_atom_site.cartn_y", "_atom_site.cartn_z"} {
		s := m.str(data, v)
		if s == "" {
			return c, 0, fmt.Errorf("Field %s not present in data %v", v, data)
		}
		if c[j], err = strconv.ParseFloat(s, 64); err != nil {
			return c, 0, fmt.Errorf("Couldn't parse cartesian coordinate %d from %s: %w", j, s, err)
		}
	}
	var b float64
	if s := m.str(data, "_atom_site.b_iso_or_equiv"); s != "" {
		if b, err = strconv.ParseFloat(s, 64); err != nil {
			return c, 0, fmt.Errorf("Couldn't parse b-factor from %s: %w", s, err)
		}
	}
	return c, b, nil
}

// PDBxRead reads the _atom_site loop of a PDBx/mmCIF file from pdb. Atoms are
// read from the first model, coordinates and b-factors from all of them.
func PDBxRead(pdb io.Reader) (*Molecule, error) {
	m := pdbxmap{}
	molecule := make([]*Atom, 0)
	coords := [][]float64{make([]float64, 0, 300)}
	bfactors := [][]float64{make([]float64, 0, 100)}
	firstModel := ""
	currentModel := ""
	inLoop, reading, done := false, false, false
	field := 0
	scanner := bufio.NewScanner(pdb)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() && !done {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			if reading {
				done = true
			}
			inLoop = false
			continue
		}
		ll := strings.ToLower(line)
		switch {
		case strings.HasPrefix(ll, "loop_"):
			if reading {
				done = true
			}
			inLoop = true
			continue
		case strings.HasPrefix(ll, "_"):
			if reading {
				done = true
				continue
			}
			if inLoop && strings.HasPrefix(ll, "_atom_site.") {
				m[strings.Fields(ll)[0]] = field
				field++
			}
			continue
		}
		if !inLoop || len(m) == 0 {
			continue
		}
		reading = true
		data := pdbxTokens(line)
		if k := m.get("_atom_site.pdbx_pdb_model_num"); k >= 0 && k < len(data) {
			model := data[k]
			if firstModel == "" {
				firstModel = model
				currentModel = model
			}
			if model != currentModel {
				coords = append(coords, make([]float64, 0, len(molecule)*3))
				bfactors = append(bfactors, make([]float64, 0, len(molecule)))
				currentModel = model
			}
		}
		if currentModel == firstModel {
			at, err := pdbxFillAtom(data, m)
			if err != nil {
				return nil, CError{fmt.Sprintf("Couldn't read atom %d: %s", len(molecule)+1, err), []string{"PDBxRead"}}
			}
			molecule = append(molecule, at)
		}
		c, b, err := pdbxCoords(data, m)
		if err != nil {
			return nil, CError{fmt.Sprintf("Frame %d: %s", len(coords), err), []string{"PDBxRead"}}
		}
		last := len(coords) - 1
		coords[last] = append(coords[last], c[0], c[1], c[2])
		bfactors[last] = append(bfactors[last], b)
	}
	if err := scanner.Err(); err != nil {
		return nil, CError{err.Error(), []string{"bufio.Scanner", "PDBxRead"}}
	}
	if len(molecule) == 0 {
		return nil, CError{"No _atom_site entries found", []string{"PDBxRead"}}
	}
	mcoords := make([]*v3.Matrix, len(coords))
	for i, c := range coords {
		if len(c) != 3*len(molecule) {
			return nil, CError{fmt.Sprintf("Model %d has %d atoms, the first one has %d", i+1, len(c)/3, len(molecule)), []string{"PDBxRead"}}
		}
		var err error
		if mcoords[i], err = v3.NewMatrix(c); err != nil {
			return nil, CError{err.Error(), []string{"v3.NewMatrix", "PDBxRead"}}
		}
	}
	mol, err := NewMolecule(mcoords, NewTopology(0, 1, molecule), bfactors)
	if err != nil {
		return nil, errDecorate(err, "PDBxRead")
	}
	return mol, nil
}

// PDBxWrite writes the conformations in coords for the topology mol, with the
// b-factors bfact, as a PDBx/mmCIF file with the data block name.
func PDBxWrite(out io.Writer, coords []*v3.Matrix, mol Atomer, bfact [][]float64, name string) error {
	if name == "" {
		name = "postfold"
	}
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "data_%s\n#\nloop_\n", name)
	for _, f := range []string{"group_PDB", "id", "type_symbol", "label_atom_id", "label_alt_id", "label_comp_id",
		"label_asym_id", "label_seq_id", "pdbx_PDB_ins_code", "Cartn_x", "Cartn_y", "Cartn_z", "occupancy",
		"B_iso_or_equiv", "pdbx_formal_charge", "auth_seq_id", "auth_comp_id", "auth_asym_id", "auth_atom_id",
		"pdbx_PDB_model_num"} {
		fmt.Fprintf(w, "_atom_site.%s\n", f)
	}
	dot := func(b byte) string {
		if b == 0 || b == ' ' {
			return "."
		}
		return string(b)
	}
	quote := func(s string) string {
		if s == "" {
			return "."
		}
		if strings.ContainsAny(s, "' ") {
			return "\"" + s + "\""
		}
		if strings.Contains(s, "\"") {
			return "'" + s + "'"
		}
		return s
	}
	for i, v := range coords {
		if v.NVecs() != mol.Len() {
			return CError{fmt.Sprintf("Topology (%d) and Coords (%d) don't have the same number of atoms", mol.Len(), v.NVecs()), []string{"PDBxWrite"}}
		}
		for j := 0; j < mol.Len(); j++ {
			a := mol.Atom(j)
			het := "ATOM"
			if a.Het {
				het = "HETATM"
			}
			var b float64
			if i < len(bfact) && j < len(bfact[i]) {
				b = bfact[i][j]
			}
			chain := a.Chain
			if chain == "" {
				chain = "A"
			}
			fmt.Fprintf(w, "%s %d %s %s %s %s %s %d %s %.3f %.3f %.3f %.2f %.2f %d %d %s %s %s %d\n",
				het, a.ID, a.Symbol, quote(a.Name), dot(a.Char16), a.MolName, chain, a.MolID, dot(a.ICode),
				v.At(j, 0), v.At(j, 1), v.At(j, 2), a.Occupancy, b, int(a.Charge), a.MolID, a.MolName,
				chain, quote(a.Name), i+1)
		}
	}
	fmt.Fprint(w, "#\n")
	if err := w.Flush(); err != nil {
		return CError{err.Error(), []string{"bufio.Flush", "PDBxWrite"}}
	}
	return nil
}
